package ingest

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/sells-group/valor-intel/internal/model"
)

// Ingestor accumulates enriched companies across concurrent branches and
// flushes them to the graph store per the batching policy. One Ingestor
// serves a whole run; it is safe for concurrent Ingest calls.
type Ingestor struct {
	store     GraphStore
	batchSize int
	expected  int // declared total companies this run will produce

	mu          sync.Mutex
	constrained bool
	pending     []model.CompanyRecord
	pendingIDs  map[string]bool
	ingested    map[string]bool
}

// NewIngestor builds an Ingestor. expected is the run's declared company
// total; it drives the partial-slice flush rule. A non-positive expected
// falls back to the ready count at each decision.
func NewIngestor(store GraphStore, batchSize, expected int) *Ingestor {
	if batchSize <= 0 {
		batchSize = 25
	}
	return &Ingestor{
		store:      store,
		batchSize:  batchSize,
		expected:   expected,
		pendingIDs: make(map[string]bool),
		ingested:   make(map[string]bool),
	}
}

// Ingest admits the invocation's companies into the pending set and
// flushes when the policy says so. Returns the CNPJs actually committed
// by this call; on a mid-flush failure, the committed IDs are still
// returned alongside the error and everything unflushed stays pending
// for a later invocation.
func (ing *Ingestor) Ingest(ctx context.Context, companies []model.CompanyRecord) ([]string, error) {
	ing.mu.Lock()
	defer ing.mu.Unlock()

	admitted := 0
	for _, c := range companies {
		id := c.ValidCNPJ()
		if id == "" {
			zap.L().Info("ingest: skipping company without valid CNPJ",
				zap.String("company", c.Name),
			)
			continue
		}
		// Idempotence across invocations and first-occurrence-wins
		// within one.
		if ing.ingested[id] || ing.pendingIDs[id] {
			continue
		}
		ing.pendingIDs[id] = true
		ing.pending = append(ing.pending, c)
		admitted++
	}

	ready := len(ing.ingested) + len(ing.pending)
	if !ing.shouldFlush(len(companies), ready) {
		zap.L().Info("ingest: waiting for more companies",
			zap.Int("ready", ready),
			zap.Int("expected", ing.expected),
			zap.Int("pending", len(ing.pending)),
		)
		return nil, nil
	}

	zap.L().Info("ingest: flushing",
		zap.Int("pending", len(ing.pending)),
		zap.Int("admitted", admitted),
		zap.Int("batch_size", ing.batchSize),
	)
	return ing.flushLocked(ctx)
}

// shouldFlush applies the batching policy. visible is how many companies
// this invocation carried; a visible count below the declared total means
// a fan-out slice whose siblings will never appear in the same call, so
// waiting would starve the graph.
func (ing *Ingestor) shouldFlush(visible, ready int) bool {
	if len(ing.pending) == 0 {
		return false
	}
	expected := ing.expected
	if expected <= 0 {
		expected = ready
	}
	if visible < ing.expected {
		return true // partial fan-out slice
	}
	if len(ing.pending) >= ing.batchSize {
		return true
	}
	return ready >= expected
}

// flushLocked writes the pending set in batch-size chunks. A failing
// chunk stops the flush; committed chunks stay committed (no rollback)
// and their IDs are recorded, while the failed chunk and everything
// after it remain pending.
func (ing *Ingestor) flushLocked(ctx context.Context) ([]string, error) {
	if !ing.constrained {
		if err := ing.store.EnsureConstraints(ctx); err != nil {
			return nil, err
		}
		ing.constrained = true
	}

	var committed []string
	for len(ing.pending) > 0 {
		n := min(ing.batchSize, len(ing.pending))
		chunk := ing.pending[:n]

		if err := ing.writeChunk(ctx, chunk); err != nil {
			zap.L().Error("ingest: chunk failed, keeping it pending",
				zap.Int("chunk_size", n),
				zap.Int("committed_so_far", len(committed)),
				zap.Error(err),
			)
			return committed, err
		}

		for _, c := range chunk {
			id := c.ValidCNPJ()
			ing.ingested[id] = true
			delete(ing.pendingIDs, id)
			committed = append(committed, id)
		}
		ing.pending = ing.pending[n:]
	}

	zap.L().Info("ingest: flush complete",
		zap.Int("committed", len(committed)),
		zap.Int("total_ingested", len(ing.ingested)),
	)
	return committed, nil
}

func (ing *Ingestor) writeChunk(ctx context.Context, chunk []model.CompanyRecord) error {
	if err := ing.store.UpsertCompanies(ctx, chunk); err != nil {
		return err
	}

	var edges []model.OwnershipEdge
	for _, c := range chunk {
		edges = append(edges, c.Relationships...)
	}
	return ing.store.UpsertOwnership(ctx, edges)
}

// IngestedCount reports how many distinct companies the run has
// committed so far.
func (ing *Ingestor) IngestedCount() int {
	ing.mu.Lock()
	defer ing.mu.Unlock()
	return len(ing.ingested)
}

// PendingCount reports how many admitted companies await a flush.
func (ing *Ingestor) PendingCount() int {
	ing.mu.Lock()
	defer ing.mu.Unlock()
	return len(ing.pending)
}
