package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/valor-intel/internal/cost"
	"github.com/sells-group/valor-intel/internal/cvm"
	"github.com/sells-group/valor-intel/internal/evidence"
	"github.com/sells-group/valor-intel/internal/extract"
	"github.com/sells-group/valor-intel/internal/fetcher"
	"github.com/sells-group/valor-intel/internal/ingest"
	"github.com/sells-group/valor-intel/internal/model"
	"github.com/sells-group/valor-intel/internal/ownership"
	"github.com/sells-group/valor-intel/internal/pipeline"
	"github.com/sells-group/valor-intel/internal/runlog"
	"github.com/sells-group/valor-intel/internal/scrape"
	"github.com/sells-group/valor-intel/internal/summarize"
	anthropicpkg "github.com/sells-group/valor-intel/pkg/anthropic"
	"github.com/sells-group/valor-intel/pkg/jina"
)

var (
	runRankingURL string
	runLimit      int
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the discovery pipeline over the ranking",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		start := time.Now()

		if err := cfg.RequireAnthropic(); err != nil {
			return err
		}
		if err := cfg.RequireNeo4j(); err != nil {
			return err
		}
		if runRankingURL != "" {
			cfg.Ranking.URL = runRankingURL
		}
		if runLimit > 0 {
			cfg.Pipeline.CompanyLimit = runLimit
		}

		// Clients
		anthropicClient := anthropicpkg.NewClient(cfg.Anthropic.Key)
		jinaClient := jina.NewClient(cfg.Jina.Key,
			jina.WithBaseURL(cfg.Jina.BaseURL),
			jina.WithSearchBaseURL(cfg.Jina.SearchBaseURL),
		)
		httpFetcher := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
			Timeout:      time.Duration(cfg.Ranking.TimeoutSecs) * time.Second,
			RateLimiters: fetcher.DefaultRateLimiters(),
		})

		store, err := ingest.NewNeo4jStore(ctx, ingest.Neo4jConfig{
			URI:      cfg.Neo4j.URI,
			User:     cfg.Neo4j.User,
			Password: cfg.Neo4j.Password,
			Database: cfg.Neo4j.Database,
		})
		if err != nil {
			return eris.Wrap(err, "connect graph store")
		}
		defer store.Close(ctx) //nolint:errcheck

		// Domain collaborators
		freCache := cvm.NewCache(httpFetcher, cvm.Options{
			ZIPURL:          cfg.CVM.ZipURL,
			DataDir:         cfg.Data.Dir,
			ShareholdingCSV: cfg.CVM.ShareholdingCSV,
			GovernanceCSV:   cfg.CVM.GovernanceCSV,
		})
		calc := cost.NewCalculator(cost.DefaultRates())

		p := pipeline.New(cfg, pipeline.Deps{
			Fetcher:    httpFetcher,
			Evidence:   evidence.NewAggregator(evidence.NewJinaSearcher(jinaClient), 1, cfg.Pipeline.SearchMaxResults),
			Extractor:  extract.NewExtractor(anthropicClient, cfg.Anthropic.Model, cfg.Anthropic.MaxTokens),
			Resolver:   ownership.NewResolver(freCache),
			Scraper:    scrape.NewJinaAdapter(jinaClient),
			Summarizer: summarize.NewSummarizer(anthropicClient, cfg.Anthropic.Model, cfg.Anthropic.MaxTokens),
			IngestorFor: func(expected int) pipeline.Ingestor {
				return ingest.NewIngestor(store, cfg.Pipeline.IngestBatchSize, expected)
			},
			Calculator: calc,
			RunLog:     runlog.NewWriter(cfg.Data.LogDir),
		})

		state, err := p.Run(ctx)
		if err != nil {
			return eris.Wrap(err, "pipeline run")
		}

		ledger := cost.NewLedger(cfg.Data.Dir)
		totals, err := ledger.Append(state.Usage)
		if err != nil {
			zap.L().Warn("usage ledger append failed", zap.Error(err))
		}

		printSummary(state, totals, time.Since(start))
		return nil
	},
}

func printSummary(state *model.RunState, totals cost.Totals, elapsed time.Duration) {
	enriched := 0
	relationships := 0
	for _, c := range state.Companies {
		if c.Enriched() {
			enriched++
		}
		relationships += len(c.Relationships)
	}

	w := os.Stdout
	fmt.Fprintln(w, "=== Discovery run summary ===")
	fmt.Fprintf(w, "Companies processed:   %d\n", len(state.Companies))
	fmt.Fprintf(w, "Enriched:              %d\n", enriched)
	fmt.Fprintf(w, "Pending (unenriched):  %d\n", len(state.Companies)-enriched)
	fmt.Fprintf(w, "Ownership edges:       %d\n", relationships)
	fmt.Fprintf(w, "Ingested into graph:   %d\n", len(state.IngestedIDs))
	fmt.Fprintf(w, "LLM requests:          %d\n", state.Usage.Requests)
	fmt.Fprintf(w, "Tokens (in/out):       %d / %d\n", state.Usage.InputTokens, state.Usage.OutputTokens)
	fmt.Fprintf(w, "Run cost:              $%.4f\n", state.Usage.CostUSD)
	fmt.Fprintf(w, "Cumulative cost:       $%.4f over %d run(s)\n", totals.TotalCostUSD, totals.Runs)
	fmt.Fprintf(w, "Elapsed:               %s\n", elapsed.Round(time.Millisecond))
}

func init() {
	runCmd.Flags().StringVar(&runRankingURL, "ranking-url", "", "override the ranking export URL")
	runCmd.Flags().IntVar(&runLimit, "limit", 0, "override the company limit")
	rootCmd.AddCommand(runCmd)
}
