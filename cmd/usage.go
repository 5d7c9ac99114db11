package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sells-group/valor-intel/internal/cost"
)

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Print cumulative LLM usage across runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		totals := cost.NewLedger(cfg.Data.Dir).Load()

		w := os.Stdout
		fmt.Fprintln(w, "=== Cumulative LLM usage ===")
		fmt.Fprintf(w, "Runs:           %d\n", totals.Runs)
		fmt.Fprintf(w, "Requests:       %d\n", totals.TotalRequests)
		fmt.Fprintf(w, "Input tokens:   %d\n", totals.TotalInputTokens)
		fmt.Fprintf(w, "Output tokens:  %d\n", totals.TotalOutputTokens)
		fmt.Fprintf(w, "Total tokens:   %d\n", totals.TotalTokens)
		fmt.Fprintf(w, "Total cost:     $%.4f\n", totals.TotalCostUSD)
		if totals.UpdatedAt != "" {
			fmt.Fprintf(w, "Last updated:   %s\n", totals.UpdatedAt)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(usageCmd)
}
