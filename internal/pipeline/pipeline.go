// Package pipeline orchestrates a discovery run: ranking fetch, limit,
// per-company fan-out enrichment, and batched graph ingestion.
//
// Concurrency model: each company runs in its own branch under an
// errgroup with a concurrency cap. Branches share nothing mutable; every
// branch returns a Delta on a channel and one reducer goroutine folds
// deltas into the RunState with append/sum-only merges, so completion
// order never loses information. A branch failure downgrades to logs and
// null fields — it never cancels siblings.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/valor-intel/internal/config"
	"github.com/sells-group/valor-intel/internal/cost"
	"github.com/sells-group/valor-intel/internal/evidence"
	"github.com/sells-group/valor-intel/internal/extract"
	"github.com/sells-group/valor-intel/internal/fetcher"
	"github.com/sells-group/valor-intel/internal/model"
	"github.com/sells-group/valor-intel/internal/ownership"
	"github.com/sells-group/valor-intel/internal/ranking"
	"github.com/sells-group/valor-intel/internal/runlog"
	"github.com/sells-group/valor-intel/internal/scrape"
	"github.com/sells-group/valor-intel/pkg/anthropic"
)

// EvidenceCollector gathers categorized search evidence for a company.
type EvidenceCollector interface {
	Collect(ctx context.Context, company model.CompanyRecord) (*evidence.Bundle, error)
}

// Extractor applies LLM-extracted fields to a company record.
type Extractor interface {
	Extract(ctx context.Context, company *model.CompanyRecord, document string) (extract.Outcome, error)
}

// Resolver resolves deterministic ownership for a CNPJ.
type Resolver interface {
	Resolve(ctx context.Context, companyCNPJ string) (*ownership.Resolution, error)
}

// Summarizer produces the institutional summary from page markdown.
type Summarizer interface {
	Summarize(ctx context.Context, companyName, markdown string) (*string, anthropic.TokenUsage)
}

// Ingestor admits companies into the batched graph-write protocol.
type Ingestor interface {
	Ingest(ctx context.Context, companies []model.CompanyRecord) ([]string, error)
}

// Deps are the pipeline's injected collaborators. IngestorFor is a
// factory because the declared expected total is only known after the
// ranking fetch.
type Deps struct {
	Fetcher     fetcher.Fetcher
	Evidence    EvidenceCollector
	Extractor   Extractor
	Resolver    Resolver
	Scraper     scrape.Scraper
	Summarizer  Summarizer
	IngestorFor func(expectedTotal int) Ingestor
	Calculator  *cost.Calculator
	RunLog      *runlog.Writer
}

// Pipeline runs the whole discovery flow.
type Pipeline struct {
	cfg  *config.Config
	deps Deps
}

// New builds a Pipeline.
func New(cfg *config.Config, deps Deps) *Pipeline {
	return &Pipeline{cfg: cfg, deps: deps}
}

// Run executes one discovery run and returns the merged state.
func (p *Pipeline) Run(ctx context.Context) (*model.RunState, error) {
	start := time.Now()
	state := &model.RunState{InitialURL: p.cfg.Ranking.URL}

	p.deps.RunLog.Clear()

	companies := ranking.Fetch(ctx, p.deps.Fetcher, p.cfg.Ranking.URL)
	limited := ranking.Limit(companies, p.cfg.Pipeline.CompanyLimit)
	if len(limited) == 0 {
		zap.L().Warn("pipeline: no companies to process")
		return state, nil
	}

	ingestor := p.deps.IngestorFor(len(limited))

	zap.L().Info("pipeline: fan-out starting",
		zap.Int("companies", len(limited)),
		zap.Int("max_concurrent", p.cfg.Pipeline.MaxConcurrent),
	)

	deltaCh := make(chan model.Delta)
	reducerDone := make(chan struct{})
	go func() {
		defer close(reducerDone)
		for d := range deltaCh {
			state.Apply(d)
		}
	}()

	g := &errgroup.Group{}
	g.SetLimit(max(1, p.cfg.Pipeline.MaxConcurrent))
	for i := range limited {
		company := &limited[i]
		g.Go(func() error {
			deltaCh <- p.enrich(ctx, company, ingestor)
			return nil
		})
	}
	_ = g.Wait() // branches never return errors
	close(deltaCh)
	<-reducerDone

	zap.L().Info("pipeline: run complete",
		zap.Int("companies", len(state.Companies)),
		zap.Int("ingested", len(state.IngestedIDs)),
		zap.Int("llm_requests", state.Usage.Requests),
		zap.Duration("elapsed", time.Since(start)),
	)
	return state, nil
}

// enrich runs the sequential per-company chain and returns the branch's
// delta. Every failure is absorbed into logs and null fields.
func (p *Pipeline) enrich(ctx context.Context, company *model.CompanyRecord, ingestor Ingestor) model.Delta {
	var delta model.Delta
	if company == nil {
		line := "[unknown|FANOUT] branch received no company payload, skipping"
		zap.L().Warn("pipeline: branch without company payload")
		delta.Logs = append(delta.Logs, line)
		return delta
	}

	logf := func(stage, format string, args ...any) {
		line := p.deps.RunLog.Event(company, stage, fmt.Sprintf(format, args...))
		delta.Logs = append(delta.Logs, line)
	}

	p.stageExtract(ctx, company, &delta, logf)
	p.stageDeepSearch(ctx, company, logf)
	markdown := p.stageScrapeAbout(ctx, company, &delta, logf)
	p.stageSummarize(ctx, company, markdown, &delta, logf)
	p.stageIngest(ctx, company, ingestor, &delta, logf)

	delta.Company = company
	return delta
}

type stageLogger func(stage, format string, args ...any)

func (p *Pipeline) stageExtract(ctx context.Context, company *model.CompanyRecord, delta *model.Delta, logf stageLogger) {
	bundle, err := p.deps.Evidence.Collect(ctx, *company)
	if err != nil {
		logf("EXTRACT", "evidence collection aborted: %v", err)
		return
	}

	outcome, err := p.deps.Extractor.Extract(ctx, company, bundle.Document())
	delta.Usage.Add(p.usageOf(outcome.Usage))
	if err != nil {
		logf("EXTRACT", "extraction call failed: %v", err)
		return
	}
	if outcome.Status == extract.StatusParseFailed {
		logf("EXTRACT", "oracle returned unparseable output, fields left null")
		return
	}

	accepted := 0
	for _, d := range outcome.Decisions {
		if d.Accepted {
			accepted++
		}
	}
	logf("EXTRACT", "applied %d/%d fields, cnpj=%s", accepted, len(outcome.Decisions), orNull(company.ValidCNPJ()))
}

func (p *Pipeline) stageDeepSearch(ctx context.Context, company *model.CompanyRecord, logf stageLogger) {
	if !ownership.Qualifies(company.Sector, company.NetRevenueMillions) {
		logf("DEEP_SEARCH", "company does not qualify for ownership resolution")
		return
	}
	id := company.ValidCNPJ()
	if id == "" {
		logf("DEEP_SEARCH", "qualified but no valid CNPJ, skipping ownership resolution")
		return
	}

	res, err := p.deps.Resolver.Resolve(ctx, id)
	if err != nil {
		logf("DEEP_SEARCH", "ownership resolution failed: %v", err)
		return
	}

	company.Relationships = res.Edges
	company.CorporateGroupNotes = res.Notes
	if len(res.Governance) > 0 {
		g := "Governance bodies: " + strings.Join(res.Governance, ", ")
		if company.CorporateGroupNotes == nil {
			company.CorporateGroupNotes = &g
		} else {
			merged := *company.CorporateGroupNotes + ". " + g
			company.CorporateGroupNotes = &merged
		}
	}
	logf("DEEP_SEARCH", "resolved %d edges from %d rows, notes=%s",
		len(res.Edges), res.RowCount, orNullPtr(res.Notes))
}

func (p *Pipeline) stageScrapeAbout(ctx context.Context, company *model.CompanyRecord, delta *model.Delta, logf stageLogger) string {
	if company.AboutPageURL == nil || *company.AboutPageURL == "" {
		logf("SCRAPE_ABOUT", "no about-page URL extracted, skipping scrape")
		return ""
	}
	url := *company.AboutPageURL
	if !p.deps.Scraper.Supports(url) {
		logf("SCRAPE_ABOUT", "scraper %s unavailable for %s", p.deps.Scraper.Name(), url)
		return ""
	}

	result, err := p.deps.Scraper.Scrape(ctx, url)
	if err != nil {
		logf("SCRAPE_ABOUT", "scrape failed for %s: %v", url, err)
		return ""
	}

	delta.InstitutionalMarkdown = append(delta.InstitutionalMarkdown, result.Markdown)
	logf("SCRAPE_ABOUT", "scraped %s via %s (%d chars)", url, result.Source, len(result.Markdown))
	return result.Markdown
}

func (p *Pipeline) stageSummarize(ctx context.Context, company *model.CompanyRecord, markdown string, delta *model.Delta, logf stageLogger) {
	if markdown == "" {
		logf("SUMMARIZE", "no institutional markdown, skipping summary")
		return
	}

	summary, usage := p.deps.Summarizer.Summarize(ctx, company.Name, markdown)
	delta.Usage.Add(p.usageOf(usage))
	company.InstitutionalSummary = summary
	if summary == nil {
		logf("SUMMARIZE", "no institutional content in page")
		return
	}
	logf("SUMMARIZE", "summary produced (%d chars)", len(*summary))
}

func (p *Pipeline) stageIngest(ctx context.Context, company *model.CompanyRecord, ingestor Ingestor, delta *model.Delta, logf stageLogger) {
	ids, err := ingestor.Ingest(ctx, []model.CompanyRecord{*company})
	delta.IngestedIDs = append(delta.IngestedIDs, ids...)
	if err != nil {
		logf("INGEST", "graph write failed after %d committed: %v", len(ids), err)
		return
	}
	logf("INGEST", "committed %d company(ies)", len(ids))
}

// usageOf converts an API-level usage report into the run accumulator's
// shape, pricing it on the way.
func (p *Pipeline) usageOf(u anthropic.TokenUsage) model.TokenUsage {
	if u.InputTokens == 0 && u.OutputTokens == 0 {
		return model.TokenUsage{}
	}
	return model.TokenUsage{
		Requests:     1,
		InputTokens:  int(u.InputTokens),
		OutputTokens: int(u.OutputTokens),
		TotalTokens:  int(u.InputTokens + u.OutputTokens),
		CostUSD:      p.deps.Calculator.Claude(p.cfg.Anthropic.Model, u.InputTokens, u.OutputTokens),
	}
}

func orNull(s string) string {
	if s == "" {
		return "null"
	}
	return s
}

func orNullPtr(s *string) string {
	if s == nil {
		return "null"
	}
	return *s
}
