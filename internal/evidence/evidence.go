// Package evidence gathers categorized web search results for one
// company and renders them into a single document the extraction oracle
// reads. Five fixed categories map to five pt-BR query templates; a CNPJ
// retry policy reformulates the registry query when the first pass finds
// nothing that looks like a CNPJ.
package evidence

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/valor-intel/internal/cnpj"
	"github.com/sells-group/valor-intel/internal/model"
)

// Result is one search hit attributed to a category.
type Result struct {
	Title   string
	Link    string
	Snippet string
}

// Searcher is the minimal search surface the aggregator needs. SiteFilter,
// when non-empty, restricts results to the given domain.
type Searcher interface {
	Search(ctx context.Context, query, siteFilter string, maxResults int) ([]Result, error)
}

// Category identifies one evidence bucket.
type Category string

const (
	CategorySite    Category = "site"
	CategoryCNPJ    Category = "cnpj"
	CategoryLinked  Category = "linkedin"
	CategoryAddress Category = "address"
	CategoryAbout   Category = "about"
)

// Categories lists the buckets in rendering order.
var Categories = []Category{CategorySite, CategoryCNPJ, CategoryLinked, CategoryAddress, CategoryAbout}

// Bundle holds the per-category evidence for one company.
type Bundle struct {
	Company string
	Results map[Category][]Result
}

// Aggregator runs the category queries against a Searcher with paced
// requests.
type Aggregator struct {
	searcher   Searcher
	limiter    *rate.Limiter
	maxResults int
}

// NewAggregator builds an Aggregator. qps paces queries to the search
// backend; maxResults caps hits per query.
func NewAggregator(s Searcher, qps float64, maxResults int) *Aggregator {
	if qps <= 0 {
		qps = 1
	}
	if maxResults <= 0 {
		maxResults = 4
	}
	return &Aggregator{
		searcher:   s,
		limiter:    rate.NewLimiter(rate.Limit(qps), 1),
		maxResults: maxResults,
	}
}

func categoryQuery(cat Category, name, city string) string {
	switch cat {
	case CategorySite:
		return fmt.Sprintf("%s %s site oficial", name, city)
	case CategoryCNPJ:
		return fmt.Sprintf("%s %s CNPJ Receita Federal", name, city)
	case CategoryLinked:
		return fmt.Sprintf("%s %s LinkedIn perfil oficial", name, city)
	case CategoryAddress:
		return fmt.Sprintf("%s %s endereço físico sede", name, city)
	case CategoryAbout:
		return fmt.Sprintf("%s sobre a empresa institucional", name)
	}
	return name
}

// cnpjRetryQueries are the reformulations tried, in order, when the
// registry category surfaces no CNPJ-shaped text. The last alternate
// pins results to government domains.
func cnpjRetryQueries(name, city string) []struct{ query, site string } {
	return []struct{ query, site string }{
		{query: fmt.Sprintf("%s CNPJ", name)},
		{query: fmt.Sprintf("%s %s CNPJ", name, city)},
		{query: fmt.Sprintf("%q CNPJ Receita Federal", name)},
		{query: fmt.Sprintf("%s CNPJ", name), site: "gov.br"},
	}
}

// Collect runs every category query for the company and returns the
// deduplicated evidence bundle. Individual query failures degrade to an
// empty category; Collect itself only fails on context cancellation.
func (a *Aggregator) Collect(ctx context.Context, company model.CompanyRecord) (*Bundle, error) {
	bundle := &Bundle{
		Company: company.Name,
		Results: make(map[Category][]Result, len(Categories)),
	}

	for _, cat := range Categories {
		results, err := a.search(ctx, categoryQuery(cat, company.Name, company.City), "")
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			zap.L().Warn("evidence: category search failed",
				zap.String("company", company.Name),
				zap.String("category", string(cat)),
				zap.Error(err),
			)
			results = nil
		}
		bundle.Results[cat] = dedupe(results)
	}

	if err := a.retryCNPJ(ctx, company, bundle); err != nil {
		return nil, err
	}
	return bundle, nil
}

// retryCNPJ reformulates the registry query when no current cnpj-category
// result carries CNPJ-shaped text. Alternates merge into the category;
// the retry stops at the first alternate that produces a match.
func (a *Aggregator) retryCNPJ(ctx context.Context, company model.CompanyRecord, bundle *Bundle) error {
	if hasCNPJEvidence(bundle.Results[CategoryCNPJ]) {
		return nil
	}

	for _, alt := range cnpjRetryQueries(company.Name, company.City) {
		results, err := a.search(ctx, alt.query, alt.site)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			zap.L().Warn("evidence: cnpj retry search failed",
				zap.String("company", company.Name),
				zap.String("query", alt.query),
				zap.Error(err),
			)
			continue
		}
		bundle.Results[CategoryCNPJ] = dedupe(append(bundle.Results[CategoryCNPJ], results...))
		if hasCNPJEvidence(bundle.Results[CategoryCNPJ]) {
			zap.L().Info("evidence: cnpj retry succeeded",
				zap.String("company", company.Name),
				zap.String("query", alt.query),
			)
			return nil
		}
	}

	zap.L().Info("evidence: no cnpj-shaped evidence after retries",
		zap.String("company", company.Name),
	)
	return nil
}

func (a *Aggregator) search(ctx context.Context, query, site string) ([]Result, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return a.searcher.Search(ctx, query, site, a.maxResults)
}

func hasCNPJEvidence(results []Result) bool {
	for _, r := range results {
		if cnpj.HasPattern(r.Title) || cnpj.HasPattern(r.Link) || cnpj.HasPattern(r.Snippet) {
			return true
		}
	}
	return false
}

// dedupe removes duplicate results keyed by lowercase link, falling back
// to title|snippet for link-less hits. First-seen order wins.
func dedupe(results []Result) []Result {
	if len(results) == 0 {
		return results
	}
	seen := make(map[string]bool, len(results))
	out := results[:0:0]
	for _, r := range results {
		key := strings.ToLower(strings.TrimSpace(r.Link))
		if key == "" {
			key = r.Title + "|" + r.Snippet
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, r)
	}
	return out
}

// Document renders the bundle as the labelled evidence listing consumed
// by extraction. Empty categories render an explicit placeholder so the
// oracle never invents support for them.
func (b *Bundle) Document() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Evidência de busca para: %s\n", b.Company)

	for _, cat := range Categories {
		fmt.Fprintf(&sb, "\n## %s\n", cat)
		results := b.Results[cat]
		if len(results) == 0 {
			sb.WriteString("no evidence found\n")
			continue
		}
		for i, r := range results {
			fmt.Fprintf(&sb, "%d. %s\n   link: %s\n   snippet: %s\n", i+1, r.Title, r.Link, r.Snippet)
		}
	}
	return sb.String()
}
