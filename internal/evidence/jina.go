package evidence

import (
	"context"

	"github.com/sells-group/valor-intel/pkg/jina"
)

// JinaSearcher adapts the Jina Search API to the Searcher interface.
type JinaSearcher struct {
	client jina.Client
}

// NewJinaSearcher wraps a Jina client.
func NewJinaSearcher(c jina.Client) *JinaSearcher {
	return &JinaSearcher{client: c}
}

func (s *JinaSearcher) Search(ctx context.Context, query, siteFilter string, maxResults int) ([]Result, error) {
	opts := []jina.SearchOption{jina.WithMaxResults(maxResults)}
	if siteFilter != "" {
		opts = append(opts, jina.WithSiteFilter(siteFilter))
	}

	resp, err := s.client.Search(ctx, query, opts...)
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(resp.Data))
	for _, r := range resp.Data {
		results = append(results, Result{
			Title:   r.Title,
			Link:    r.URL,
			Snippet: r.Description,
		})
	}
	return results, nil
}
