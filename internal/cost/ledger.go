package cost

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/valor-intel/internal/model"
)

const ledgerFileName = "llm_usage_totals.json"

// Totals is the cumulative cross-run usage record persisted to disk.
type Totals struct {
	Runs              int     `json:"runs"`
	TotalRequests     int64   `json:"total_requests"`
	TotalInputTokens  int64   `json:"total_input_tokens"`
	TotalOutputTokens int64   `json:"total_output_tokens"`
	TotalTokens       int64   `json:"total_tokens"`
	TotalCostUSD      float64 `json:"total_cost_usd"`
	UpdatedAt         string  `json:"updated_at"`
}

// Ledger accumulates usage across runs in a JSON file. Concurrent runs
// on the same machine serialize through a sibling lock file.
type Ledger struct {
	path string
	lock *flock.Flock
}

// NewLedger creates a Ledger rooted at dataDir.
func NewLedger(dataDir string) *Ledger {
	path := filepath.Join(dataDir, ledgerFileName)
	return &Ledger{
		path: path,
		lock: flock.New(path + ".lock"),
	}
}

// Load reads the cumulative totals. A missing or corrupt file yields
// zero totals; the ledger is advisory, never a reason to fail a run.
func (l *Ledger) Load() Totals {
	raw, err := os.ReadFile(l.path)
	if err != nil {
		return Totals{}
	}
	var t Totals
	if err := json.Unmarshal(raw, &t); err != nil {
		zap.L().Warn("cost: usage ledger corrupt, starting from zero",
			zap.String("path", l.path),
			zap.Error(err),
		)
		return Totals{}
	}
	return t
}

// Append folds one run's usage into the cumulative totals and persists
// them, returning the updated totals.
func (l *Ledger) Append(usage model.TokenUsage) (Totals, error) {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return Totals{}, eris.Wrap(err, "cost: create ledger dir")
	}

	if err := l.lock.Lock(); err != nil {
		return Totals{}, eris.Wrap(err, "cost: acquire ledger lock")
	}
	defer l.lock.Unlock() //nolint:errcheck

	t := l.Load()
	t.Runs++
	t.TotalRequests += int64(usage.Requests)
	t.TotalInputTokens += int64(usage.InputTokens)
	t.TotalOutputTokens += int64(usage.OutputTokens)
	t.TotalTokens += int64(usage.TotalTokens)
	t.TotalCostUSD += usage.CostUSD
	t.UpdatedAt = time.Now().UTC().Format(time.RFC3339)

	raw, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return Totals{}, eris.Wrap(err, "cost: marshal ledger")
	}
	if err := os.WriteFile(l.path, raw, 0o644); err != nil {
		return Totals{}, eris.Wrap(err, "cost: write ledger")
	}
	return t, nil
}
