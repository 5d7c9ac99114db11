// Package config loads application configuration from config.yaml and
// VALOR_-prefixed environment variables, and initializes the global logger.
package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Ranking   RankingConfig   `yaml:"ranking" mapstructure:"ranking"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Jina      JinaConfig      `yaml:"jina" mapstructure:"jina"`
	Neo4j     Neo4jConfig     `yaml:"neo4j" mapstructure:"neo4j"`
	CVM       CVMConfig       `yaml:"cvm" mapstructure:"cvm"`
	Pipeline  PipelineConfig  `yaml:"pipeline" mapstructure:"pipeline"`
	Data      DataConfig      `yaml:"data" mapstructure:"data"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// RankingConfig locates the Valor 1000 ranking export.
type RankingConfig struct {
	URL         string `yaml:"url" mapstructure:"url"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key         string `yaml:"key" mapstructure:"key"`
	Model       string `yaml:"model" mapstructure:"model"`
	MaxTokens   int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// JinaConfig holds Jina Reader/Search settings.
type JinaConfig struct {
	Key           string `yaml:"key" mapstructure:"key"`
	BaseURL       string `yaml:"base_url" mapstructure:"base_url"`
	SearchBaseURL string `yaml:"search_base_url" mapstructure:"search_base_url"`
	TimeoutSecs   int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// Neo4jConfig holds graph database connection settings.
type Neo4jConfig struct {
	URI      string `yaml:"uri" mapstructure:"uri"`
	User     string `yaml:"user" mapstructure:"user"`
	Password string `yaml:"password" mapstructure:"password"`
	Database string `yaml:"database" mapstructure:"database"`
}

// CVMConfig locates the CVM FRE shareholding dataset.
type CVMConfig struct {
	ZipURL          string `yaml:"zip_url" mapstructure:"zip_url"`
	ShareholdingCSV string `yaml:"shareholding_csv" mapstructure:"shareholding_csv"`
	GovernanceCSV   string `yaml:"governance_csv" mapstructure:"governance_csv"`
	DownloadTimeout int    `yaml:"download_timeout_secs" mapstructure:"download_timeout_secs"`
}

// PipelineConfig tunes the discovery run.
type PipelineConfig struct {
	CompanyLimit     int `yaml:"company_limit" mapstructure:"company_limit"`
	MaxConcurrent    int `yaml:"max_concurrent" mapstructure:"max_concurrent"`
	SearchMaxResults int `yaml:"search_max_results" mapstructure:"search_max_results"`
	IngestBatchSize  int `yaml:"ingest_batch_size" mapstructure:"ingest_batch_size"`
}

// DataConfig holds local data and log directories.
type DataConfig struct {
	Dir    string `yaml:"dir" mapstructure:"dir"`
	LogDir string `yaml:"log_dir" mapstructure:"log_dir"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// DefaultRankingURL is the Valor 1000 JSON export for the current edition.
const DefaultRankingURL = "https://infovalorbucket.s3.amazonaws.com/arquivos/valor-1000/2025/ranking-das-1000-maiores/RankingValor10002025.json"

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("VALOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("ranking.url", DefaultRankingURL)
	v.SetDefault("ranking.timeout_secs", 60)
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 1024)
	v.SetDefault("anthropic.timeout_secs", 60)
	v.SetDefault("jina.base_url", "https://r.jina.ai")
	v.SetDefault("jina.search_base_url", "https://s.jina.ai")
	v.SetDefault("jina.timeout_secs", 45)
	v.SetDefault("neo4j.database", "")
	v.SetDefault("cvm.zip_url", "https://dados.cvm.gov.br/dados/CIA_ABERTA/DOC/FRE/DADOS/fre_cia_aberta_2025.zip")
	v.SetDefault("cvm.shareholding_csv", "fre_cia_aberta_posicao_acionaria_2025.csv")
	v.SetDefault("cvm.governance_csv", "fre_cia_aberta_remuneracao_total_orgao_2025.csv")
	v.SetDefault("cvm.download_timeout_secs", 120)
	v.SetDefault("pipeline.company_limit", 10)
	v.SetDefault("pipeline.max_concurrent", 5)
	v.SetDefault("pipeline.search_max_results", 4)
	v.SetDefault("pipeline.ingest_batch_size", 25)
	v.SetDefault("data.dir", "data")
	v.SetDefault("data.log_dir", "logs")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// RequireNeo4j validates the graph connection settings at the first point
// of use. Missing values are a fatal configuration error, stated once.
func (c *Config) RequireNeo4j() error {
	switch {
	case c.Neo4j.URI == "":
		return eris.New("config: missing required setting VALOR_NEO4J_URI")
	case c.Neo4j.User == "":
		return eris.New("config: missing required setting VALOR_NEO4J_USER")
	case c.Neo4j.Password == "":
		return eris.New("config: missing required setting VALOR_NEO4J_PASSWORD")
	}
	return nil
}

// RequireAnthropic validates the LLM credential at the first point of use.
func (c *Config) RequireAnthropic() error {
	if c.Anthropic.Key == "" {
		return eris.New("config: missing required setting VALOR_ANTHROPIC_KEY")
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
