package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/valor-intel/internal/config"
	"github.com/sells-group/valor-intel/internal/cost"
	"github.com/sells-group/valor-intel/internal/evidence"
	"github.com/sells-group/valor-intel/internal/extract"
	"github.com/sells-group/valor-intel/internal/model"
	"github.com/sells-group/valor-intel/internal/ownership"
	"github.com/sells-group/valor-intel/internal/runlog"
	"github.com/sells-group/valor-intel/internal/scrape"
	"github.com/sells-group/valor-intel/pkg/anthropic"
)

type fakeFetcher struct{ body string }

func (f *fakeFetcher) Download(ctx context.Context, url string) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader(f.body)), nil
}

func (f *fakeFetcher) DownloadToFile(ctx context.Context, url, path string) (int64, error) {
	return 0, eris.New("not implemented")
}

type fakeEvidence struct{}

func (f *fakeEvidence) Collect(ctx context.Context, company model.CompanyRecord) (*evidence.Bundle, error) {
	return &evidence.Bundle{Company: company.Name, Results: map[evidence.Category][]evidence.Result{}}, nil
}

// fakeExtractor assigns a CNPJ and about URL per company name; a name in
// failFor errors instead.
type fakeExtractor struct {
	cnpjByName map[string]string
	failFor    string
}

func (f *fakeExtractor) Extract(ctx context.Context, company *model.CompanyRecord, document string) (extract.Outcome, error) {
	usage := anthropic.TokenUsage{InputTokens: 100, OutputTokens: 20}
	if company.Name == f.failFor {
		return extract.Outcome{Status: extract.StatusParseFailed, Usage: usage}, eris.New("oracle down")
	}
	if id, ok := f.cnpjByName[company.Name]; ok {
		company.SetPrimaryCNPJ(id)
		url := fmt.Sprintf("https://%s.example/sobre", strings.ToLower(company.Name))
		company.AboutPageURL = &url
	}
	return extract.Outcome{
		Status:    extract.StatusOK,
		Decisions: []extract.FieldDecision{{Field: "primary_cnpj", Accepted: true}},
		Usage:     usage,
	}, nil
}

type fakeResolver struct {
	calls []string
}

func (f *fakeResolver) Resolve(ctx context.Context, companyCNPJ string) (*ownership.Resolution, error) {
	f.calls = append(f.calls, companyCNPJ)
	pct := 60.0
	notes := "Controlled by Holding X"
	return &ownership.Resolution{
		Edges: []model.OwnershipEdge{{
			SourceID: "61155248000116", SourceLabel: model.LabelCompany,
			TargetID: companyCNPJ, Type: model.RelOwns, Percentage: &pct,
		}},
		Notes:      &notes,
		Governance: []string{"Conselho de Administração"},
		RowCount:   1,
	}, nil
}

type fakeScraper struct{}

func (f *fakeScraper) Name() string             { return "fake" }
func (f *fakeScraper) Supports(url string) bool { return true }
func (f *fakeScraper) Scrape(ctx context.Context, url string) (*scrape.Result, error) {
	return &scrape.Result{URL: url, Markdown: "# Sobre\nConteúdo institucional.", Source: "fake"}, nil
}

type fakeSummarizer struct{}

func (f *fakeSummarizer) Summarize(ctx context.Context, companyName, markdown string) (*string, anthropic.TokenUsage) {
	s := "Resumo de " + companyName
	return &s, anthropic.TokenUsage{InputTokens: 50, OutputTokens: 30}
}

// fakeIngestor records invocations and reports every valid company as
// committed.
type fakeIngestor struct {
	mu       sync.Mutex
	expected int
	batches  [][]model.CompanyRecord
}

func (f *fakeIngestor) Ingest(ctx context.Context, companies []model.CompanyRecord) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, companies)
	var ids []string
	for _, c := range companies {
		if id := c.ValidCNPJ(); id != "" {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func rankingPayload(t *testing.T, rows ...[]string) string {
	t.Helper()
	data := make([]any, 0, len(rows))
	for _, row := range rows {
		data = append(data, []any{strings.Join(row, ";")})
	}
	raw, err := json.Marshal(map[string]any{"data": data})
	require.NoError(t, err)
	return string(raw)
}

func rankedRow(rank, name, city, sector, revenue string) []string {
	row := make([]string, 23)
	row[0] = rank
	row[2] = name
	row[3] = city
	row[4] = sector
	row[5] = revenue
	row[7] = "100,0"
	return row
}

func testConfig(t *testing.T, limit int) *config.Config {
	t.Helper()
	return &config.Config{
		Ranking:   config.RankingConfig{URL: "http://example.test/ranking"},
		Anthropic: config.AnthropicConfig{Model: "claude-haiku-4-5-20251001"},
		Pipeline:  config.PipelineConfig{CompanyLimit: limit, MaxConcurrent: 3},
		Data:      config.DataConfig{Dir: t.TempDir(), LogDir: t.TempDir()},
	}
}

func newTestPipeline(t *testing.T, cfg *config.Config, ext Extractor, res Resolver, ing *fakeIngestor) *Pipeline {
	t.Helper()
	return New(cfg, Deps{
		Fetcher: &fakeFetcher{body: rankingPayload(t,
			rankedRow("1", "Petrobras", "Rio de Janeiro", "Petróleo e Gás", "511.994,0"),
			rankedRow("2", "Varejinho", "Curitiba", "Varejo", "120,5"),
		)},
		Evidence:   &fakeEvidence{},
		Extractor:  ext,
		Resolver:   res,
		Scraper:    &fakeScraper{},
		Summarizer: &fakeSummarizer{},
		IngestorFor: func(expected int) Ingestor {
			ing.expected = expected
			return ing
		},
		Calculator: cost.NewCalculator(cost.DefaultRates()),
		RunLog:     runlog.NewWriter(cfg.Data.LogDir),
	})
}

func TestRun_FullEnrichment(t *testing.T) {
	cfg := testConfig(t, 10)
	resolver := &fakeResolver{}
	ingestor := &fakeIngestor{}
	extractor := &fakeExtractor{cnpjByName: map[string]string{
		"Petrobras": "33.000.167/0001-01",
		"Varejinho": "11222333000181",
	}}

	state, err := newTestPipeline(t, cfg, extractor, resolver, ingestor).Run(context.Background())
	require.NoError(t, err)

	require.Len(t, state.Companies, 2)
	assert.Equal(t, 2, ingestor.expected, "declared total is the limited company count")

	byName := map[string]model.CompanyRecord{}
	for _, c := range state.Companies {
		byName[c.Name] = c
	}

	petro := byName["Petrobras"]
	assert.Equal(t, "33000167000101", *petro.PrimaryCNPJ)
	require.Len(t, petro.Relationships, 1, "oil sector qualifies for ownership resolution")
	require.NotNil(t, petro.CorporateGroupNotes)
	assert.Contains(t, *petro.CorporateGroupNotes, "Controlled by Holding X")
	assert.Contains(t, *petro.CorporateGroupNotes, "Governance bodies: Conselho de Administração")
	require.NotNil(t, petro.InstitutionalSummary)
	assert.Equal(t, "Resumo de Petrobras", *petro.InstitutionalSummary)

	varejo := byName["Varejinho"]
	assert.Empty(t, varejo.Relationships, "small retail does not qualify for deep search")
	assert.Nil(t, varejo.CorporateGroupNotes)

	assert.Equal(t, []string{"33000167000101"}, resolver.calls)
	assert.Len(t, ingestor.batches, 2, "one single-company slice per branch")
	assert.ElementsMatch(t, []string{"33000167000101", "11222333000181"}, state.IngestedIDs)

	// 2 extract calls + 2 summarize calls.
	assert.Equal(t, 4, state.Usage.Requests)
	assert.Equal(t, 2*100+2*50, state.Usage.InputTokens)
	assert.Positive(t, state.Usage.CostUSD)
	assert.Len(t, state.InstitutionalMarkdown, 2)
	assert.NotEmpty(t, state.Logs)
}

func TestRun_BranchFailureIsolated(t *testing.T) {
	cfg := testConfig(t, 10)
	resolver := &fakeResolver{}
	ingestor := &fakeIngestor{}
	extractor := &fakeExtractor{
		cnpjByName: map[string]string{"Varejinho": "11222333000181"},
		failFor:    "Petrobras",
	}

	state, err := newTestPipeline(t, cfg, extractor, resolver, ingestor).Run(context.Background())
	require.NoError(t, err, "a failing branch never fails the run")

	require.Len(t, state.Companies, 2, "failed branch still contributes its company")
	assert.Equal(t, []string{"11222333000181"}, state.IngestedIDs)
	assert.Empty(t, resolver.calls,
		"ownership resolution never runs without a valid CNPJ, even for a qualifying sector")

	var failLog string
	for _, line := range state.Logs {
		if strings.Contains(line, "extraction call failed") {
			failLog = line
		}
	}
	assert.Contains(t, failLog, "oracle down")
	assert.Equal(t, 3, state.Usage.Requests, "failed extract usage still counted")
}

func TestRun_CompanyLimit(t *testing.T) {
	cfg := testConfig(t, 1)
	ingestor := &fakeIngestor{}
	extractor := &fakeExtractor{cnpjByName: map[string]string{"Petrobras": "33000167000101"}}

	state, err := newTestPipeline(t, cfg, extractor, &fakeResolver{}, ingestor).Run(context.Background())
	require.NoError(t, err)

	require.Len(t, state.Companies, 1)
	assert.Equal(t, "Petrobras", state.Companies[0].Name)
	assert.Equal(t, 1, ingestor.expected)
}

func TestRun_EmptyRanking(t *testing.T) {
	cfg := testConfig(t, 10)
	p := New(cfg, Deps{
		Fetcher:     &fakeFetcher{body: `{"data":[]}`},
		IngestorFor: func(int) Ingestor { t.Fatal("ingestor must not be built"); return nil },
		RunLog:      runlog.NewWriter(cfg.Data.LogDir),
	})

	state, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, state.Companies)
}
