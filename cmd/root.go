package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/valor-intel/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "valor-intel",
	Short: "Corporate intelligence discovery over the Valor 1000 ranking",
	Long:  "Fetches the Valor 1000 ranking, enriches each company via web evidence, LLM extraction and CVM shareholding data, and ingests the result into a Neo4j graph.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// .env is a developer convenience; absence is fine.
		_ = godotenv.Load()

		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
