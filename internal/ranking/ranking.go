// Package ranking fetches and parses the Valor 1000 ranking export.
//
// The export is a JSON document whose rows live under "data" (or the
// legacy "aaData" key); each row is either a single ";"-joined string or
// an already-split column list. Column positions are fixed by the export:
// 0 rank 2024, 1 rank 2023, 2 company name (may carry HTML), 3 city,
// 4 sector, 5 net revenue, 7 net profit, 22 registered name.
package ranking

import (
	"context"
	"encoding/json"
	"io"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/valor-intel/internal/fetcher"
	"github.com/sells-group/valor-intel/internal/model"
)

var htmlTagPattern = regexp.MustCompile(`<[^>]*>`)

// Fetch downloads the ranking export and parses it into company records.
// Per the collaborator contract, failure yields an empty slice plus an
// error log; no error escapes to the caller.
func Fetch(ctx context.Context, f fetcher.Fetcher, url string) []model.CompanyRecord {
	body, err := f.Download(ctx, url)
	if err != nil {
		zap.L().Error("ranking: fetch failed", zap.String("url", url), zap.Error(err))
		return nil
	}
	defer body.Close() //nolint:errcheck

	raw, err := io.ReadAll(body)
	if err != nil {
		zap.L().Error("ranking: read body failed", zap.String("url", url), zap.Error(err))
		return nil
	}

	companies := Parse(raw)
	zap.L().Info("ranking: fetched",
		zap.String("url", url),
		zap.Int("companies", len(companies)),
	)
	return companies
}

// Parse extracts company records from the raw ranking JSON payload.
// Rows with fewer than 8 columns are skipped.
func Parse(raw []byte) []model.CompanyRecord {
	var doc struct {
		Data   json.RawMessage `json:"data"`
		AAData json.RawMessage `json:"aaData"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		zap.L().Error("ranking: payload is not JSON", zap.Error(err))
		return nil
	}

	rows := doc.Data
	if len(rows) == 0 {
		rows = doc.AAData
	}
	if len(rows) == 0 {
		zap.L().Warn("ranking: payload has no data rows")
		return nil
	}

	var companies []model.CompanyRecord
	for _, parts := range splitRows(rows) {
		if len(parts) < 8 {
			continue
		}

		name := strings.TrimSpace(htmlTagPattern.ReplaceAllString(parts[2], ""))
		c := model.CompanyRecord{
			Rank2024:           parts[0],
			Rank2023:           parts[1],
			Name:               name,
			City:               parts[3],
			Sector:             parts[4],
			NetRevenueMillions: parts[5],
			NetProfitMillions:  parts[7],
			OriginCompany:      true,
		}
		if len(parts) > 22 {
			c.RegisteredName = strings.TrimSpace(parts[22])
		}
		companies = append(companies, c)
	}
	return companies
}

// splitRows normalizes the export's row encodings into column lists.
func splitRows(raw json.RawMessage) [][]string {
	var out [][]string

	appendRow := func(row any) {
		switch v := row.(type) {
		case string:
			out = append(out, splitLine(v))
		case []any:
			// The export wraps each row string in a one-element list;
			// a longer list is an already-split column set.
			if len(v) == 1 {
				if s, ok := v[0].(string); ok {
					out = append(out, splitLine(s))
					return
				}
			}
			parts := make([]string, 0, len(v))
			for _, col := range v {
				if s, ok := col.(string); ok {
					parts = append(parts, strings.TrimSpace(s))
				}
			}
			out = append(out, parts)
		}
	}

	var asList []any
	if err := json.Unmarshal(raw, &asList); err == nil {
		for _, row := range asList {
			appendRow(row)
		}
		return out
	}

	var asMap map[string]any
	if err := json.Unmarshal(raw, &asMap); err == nil {
		for _, row := range asMap {
			appendRow(row)
		}
	}
	return out
}

func splitLine(line string) []string {
	normalized := strings.TrimSpace(strings.ReplaceAll(line, "\ufeff", ""))
	parts := strings.Split(normalized, ";")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

// Limit returns the first n companies, the whole slice when n is zero or
// negative, keeping ranking order.
func Limit(companies []model.CompanyRecord, n int) []model.CompanyRecord {
	if n <= 0 || n >= len(companies) {
		return companies
	}
	return companies[:n]
}
