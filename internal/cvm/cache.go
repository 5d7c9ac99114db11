// Package cvm loads the CVM FRE open-data tables (shareholding positions
// and governance bodies) and serves per-company lookups from memory.
//
// The FRE ("Formulário de Referência") annual filing ZIP carries one CSV
// per table, ';'-separated and Latin-1 encoded. The ZIP is downloaded
// once per data directory, validated, and individual CSVs extracted on
// demand; tables load into memory behind a mutex-guarded get-or-create,
// after which concurrent readers are safe.
package cvm

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"

	"github.com/sells-group/valor-intel/internal/cnpj"
	"github.com/sells-group/valor-intel/internal/fetcher"
)

// ShareholdingRow is one raw shareholder position from the FRE table.
// Identifier and percentage keep the CSV's original text; normalization
// and parsing are the resolver's concern.
type ShareholdingRow struct {
	CompanyCNPJ   string // normalized to 14 digits at load time
	ShareholderID string // raw CPF/CNPJ text
	Name          string
	Percentage    string // raw pt-BR decimal text
	Controller    string // "S" or "N"
}

// Options configures a Cache.
type Options struct {
	ZIPURL          string
	DataDir         string
	ShareholdingCSV string // file name suffix inside the ZIP
	GovernanceCSV   string
}

// Cache is the FRE table provider. Construct one at startup and share it;
// tables load lazily on first lookup.
type Cache struct {
	fetcher fetcher.Fetcher
	opts    Options

	mu           sync.Mutex
	shareholding map[string][]ShareholdingRow
	governance   map[string][]string
}

// NewCache creates a Cache backed by f for dataset downloads.
func NewCache(f fetcher.Fetcher, opts Options) *Cache {
	return &Cache{fetcher: f, opts: opts}
}

// Shareholding returns the shareholding rows whose company column
// normalizes to the given CNPJ. The table loads on first call.
func (c *Cache) Shareholding(ctx context.Context, companyCNPJ string) ([]ShareholdingRow, error) {
	target := cnpj.Normalize(companyCNPJ)
	if !cnpj.IsCNPJ(target) {
		return nil, eris.Errorf("cvm: invalid company CNPJ %q", companyCNPJ)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.shareholding == nil {
		m, err := c.loadShareholding(ctx)
		if err != nil {
			return nil, err
		}
		c.shareholding = m
	}
	return c.shareholding[target], nil
}

// Governance returns the distinct administration-body names filed by the
// company, in first-seen order. Best-effort auxiliary data.
func (c *Cache) Governance(ctx context.Context, companyCNPJ string) ([]string, error) {
	target := cnpj.Normalize(companyCNPJ)
	if !cnpj.IsCNPJ(target) {
		return nil, eris.Errorf("cvm: invalid company CNPJ %q", companyCNPJ)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.governance == nil {
		m, err := c.loadGovernance(ctx)
		if err != nil {
			return nil, err
		}
		c.governance = m
	}
	return c.governance[target], nil
}

func (c *Cache) loadShareholding(ctx context.Context) (map[string][]ShareholdingRow, error) {
	path, err := c.ensureCSV(ctx, c.opts.ShareholdingCSV)
	if err != nil {
		return nil, err
	}

	out := make(map[string][]ShareholdingRow)
	rows := 0
	err = c.scanCSV(ctx, path, func(col func(string) string) {
		company := cnpj.Normalize(col("CNPJ_Companhia"))
		if !cnpj.IsCNPJ(company) {
			return
		}
		out[company] = append(out[company], ShareholdingRow{
			CompanyCNPJ:   company,
			ShareholderID: col("CPF_CNPJ_Acionista"),
			Name:          col("Acionista"),
			Percentage:    col("Percentual_Total_Acoes_Circulacao"),
			Controller:    col("Acionista_Controlador"),
		})
		rows++
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("cvm: shareholding table loaded",
		zap.String("csv", filepath.Base(path)),
		zap.Int("rows", rows),
		zap.Int("companies", len(out)),
	)
	return out, nil
}

func (c *Cache) loadGovernance(ctx context.Context) (map[string][]string, error) {
	path, err := c.ensureCSV(ctx, c.opts.GovernanceCSV)
	if err != nil {
		return nil, err
	}

	out := make(map[string][]string)
	seen := make(map[string]map[string]bool)
	err = c.scanCSV(ctx, path, func(col func(string) string) {
		company := cnpj.Normalize(col("CNPJ_Companhia"))
		if !cnpj.IsCNPJ(company) {
			return
		}
		body := col("Orgao_Administracao")
		if body == "" {
			return
		}
		if seen[company] == nil {
			seen[company] = make(map[string]bool)
		}
		if seen[company][body] {
			return
		}
		seen[company][body] = true
		out[company] = append(out[company], body)
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("cvm: governance table loaded",
		zap.String("csv", filepath.Base(path)),
		zap.Int("companies", len(out)),
	)
	return out, nil
}

// scanCSV streams the Latin-1 CSV at path, calling visit for each data
// row with a by-header-name column accessor.
func (c *Cache) scanCSV(ctx context.Context, path string, visit func(col func(string) string)) error {
	f, err := os.Open(path)
	if err != nil {
		return eris.Wrap(err, "cvm: open csv")
	}
	defer f.Close() //nolint:errcheck

	decoded := transform.NewReader(f, charmap.ISO8859_1.NewDecoder())

	headerCh := make(chan []string, 1)
	rowCh, errCh := fetcher.StreamCSV(ctx, decoded, fetcher.CSVOptions{
		Delimiter:  ';',
		HasHeader:  true,
		HeaderCh:   headerCh,
		LazyQuotes: true,
		TrimSpace:  true,
	})

	var index map[string]int
	for row := range rowCh {
		if index == nil {
			header := <-headerCh
			index = make(map[string]int, len(header))
			for i, name := range header {
				index[name] = i
			}
		}
		record := row
		visit(func(name string) string {
			i, ok := index[name]
			if !ok || i >= len(record) {
				return ""
			}
			return record[i]
		})
	}
	if err := <-errCh; err != nil {
		return eris.Wrap(err, "cvm: stream csv")
	}
	return nil
}

// ensureCSV returns the local path of the named FRE CSV, downloading and
// extracting the dataset ZIP when needed. An empty or corrupt artifact
// is removed and re-fetched rather than trusted.
func (c *Cache) ensureCSV(ctx context.Context, fileName string) (string, error) {
	if fileName == "" {
		return "", eris.New("cvm: no CSV file name configured")
	}
	if err := os.MkdirAll(c.opts.DataDir, 0o755); err != nil {
		return "", eris.Wrap(err, "cvm: create data dir")
	}

	csvPath := filepath.Join(c.opts.DataDir, fileName)
	if fileNonEmpty(csvPath) {
		return csvPath, nil
	}
	_ = os.Remove(csvPath)

	zipPath := filepath.Join(c.opts.DataDir, "fre_cia_aberta.zip")
	if !fetcher.ValidateZIP(zipPath) {
		_ = os.Remove(zipPath)
		if err := c.downloadZIP(ctx, zipPath); err != nil {
			return "", err
		}
	}

	extracted, err := fetcher.ExtractZIPSuffix(zipPath, fileName, c.opts.DataDir)
	if err != nil {
		return "", err
	}
	if extracted != csvPath {
		if err := os.Rename(extracted, csvPath); err != nil {
			return "", eris.Wrap(err, "cvm: place extracted csv")
		}
	}
	if !fileNonEmpty(csvPath) {
		return "", eris.Errorf("cvm: extracted csv %s is empty", fileName)
	}
	return csvPath, nil
}

// downloadZIP fetches the FRE ZIP to a .part tempfile, validates it, and
// renames it into place so a crashed download never poses as a dataset.
func (c *Cache) downloadZIP(ctx context.Context, zipPath string) error {
	part := zipPath + ".part"
	defer os.Remove(part) //nolint:errcheck

	zap.L().Info("cvm: downloading FRE dataset", zap.String("url", c.opts.ZIPURL))
	n, err := c.fetcher.DownloadToFile(ctx, c.opts.ZIPURL, part)
	if err != nil {
		return eris.Wrap(err, "cvm: download FRE zip")
	}
	if !fetcher.ValidateZIP(part) {
		return eris.Errorf("cvm: downloaded archive failed validation (%d bytes)", n)
	}
	if err := os.Rename(part, zipPath); err != nil {
		return eris.Wrap(err, "cvm: finalize FRE zip")
	}
	zap.L().Info("cvm: FRE dataset ready", zap.Int64("bytes", n))
	return nil
}

func fileNonEmpty(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Size() > 0
}
