package cost

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/valor-intel/internal/model"
)

func TestCalculator_Claude(t *testing.T) {
	c := NewCalculator(DefaultRates())

	got := c.Claude("claude-haiku-4-5-20251001", 1_000_000, 500_000)
	assert.InDelta(t, 0.80+2.00, got, 1e-9)

	assert.Zero(t, c.Claude("unknown-model", 1_000_000, 1_000_000))
}

func TestCalculator_Jina(t *testing.T) {
	c := NewCalculator(DefaultRates())
	assert.InDelta(t, 0.02, c.Jina(1_000_000), 1e-9)
}

func TestLedger_AppendAccumulates(t *testing.T) {
	dir := t.TempDir()
	l := NewLedger(dir)

	first, err := l.Append(model.TokenUsage{
		Requests: 10, InputTokens: 1000, OutputTokens: 400, TotalTokens: 1400, CostUSD: 0.05,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, first.Runs)
	assert.Equal(t, int64(1400), first.TotalTokens)

	second, err := l.Append(model.TokenUsage{
		Requests: 5, InputTokens: 500, OutputTokens: 100, TotalTokens: 600, CostUSD: 0.02,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, second.Runs)
	assert.Equal(t, int64(15), second.TotalRequests)
	assert.Equal(t, int64(2000), second.TotalTokens)
	assert.InDelta(t, 0.07, second.TotalCostUSD, 1e-9)
	assert.NotEmpty(t, second.UpdatedAt)

	loaded := l.Load()
	assert.Equal(t, second.Runs, loaded.Runs)
	assert.Equal(t, second.TotalTokens, loaded.TotalTokens)
}

func TestLedger_MissingFileIsZero(t *testing.T) {
	l := NewLedger(t.TempDir())
	assert.Equal(t, Totals{}, l.Load())
}

func TestLedger_CorruptFileIsZero(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ledgerFileName), []byte("{broken"), 0o644))

	l := NewLedger(dir)
	assert.Equal(t, Totals{}, l.Load())

	// A corrupt ledger restarts from zero on the next append.
	totals, err := l.Append(model.TokenUsage{Requests: 1, TotalTokens: 10})
	require.NoError(t, err)
	assert.Equal(t, 1, totals.Runs)
	assert.Equal(t, int64(10), totals.TotalTokens)
}
