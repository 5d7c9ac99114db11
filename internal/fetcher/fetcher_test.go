package fetcher

import (
	"archive/zip"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPFetcher_Download(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "valor-intel/1.0", r.Header.Get("User-Agent"))
		_, _ = w.Write([]byte("payload"))
	}))
	defer srv.Close()

	f := NewHTTPFetcher(HTTPOptions{})
	body, err := f.Download(context.Background(), srv.URL)
	require.NoError(t, err)
	defer body.Close()

	buf := make([]byte, 16)
	n, _ := body.Read(buf)
	assert.Equal(t, "payload", string(buf[:n]))
}

func TestHTTPFetcher_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	f := NewHTTPFetcher(HTTPOptions{MaxRetries: 3})
	body, err := f.Download(context.Background(), srv.URL)
	require.NoError(t, err)
	_ = body.Close()
	assert.Equal(t, int32(3), calls.Load())
}

func TestHTTPFetcher_NotFoundIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f := NewHTTPFetcher(HTTPOptions{})
	_, err := f.Download(context.Background(), srv.URL)
	assert.Error(t, err)
}

func TestHTTPFetcher_DownloadToFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("file content"))
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "out.bin")
	f := NewHTTPFetcher(HTTPOptions{})
	n, err := f.DownloadToFile(context.Background(), srv.URL, path)
	require.NoError(t, err)
	assert.Equal(t, int64(len("file content")), n)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "file content", string(data))
}

func TestStreamCSV_SemicolonWithHeader(t *testing.T) {
	input := "CNPJ_Companhia;Acionista\n12.345.678/0001-90;Fulano\n98.765.432/0001-10;Beltrano\n"

	headerCh := make(chan []string, 1)
	rowCh, errCh := StreamCSV(context.Background(), strings.NewReader(input), CSVOptions{
		Delimiter: ';',
		HasHeader: true,
		HeaderCh:  headerCh,
		TrimSpace: true,
	})

	var rows [][]string
	for row := range rowCh {
		rows = append(rows, row)
	}
	require.NoError(t, <-errCh)

	header := <-headerCh
	assert.Equal(t, []string{"CNPJ_Companhia", "Acionista"}, header)
	require.Len(t, rows, 2)
	assert.Equal(t, "12.345.678/0001-90", rows[0][0])
	assert.Equal(t, "Beltrano", rows[1][1])
}

func TestStreamCSV_ContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rowCh, errCh := StreamCSV(ctx, strings.NewReader("a;b\nc;d\n"), CSVOptions{Delimiter: ';'})
	for range rowCh {
	}
	assert.Error(t, <-errCh)
}

func writeTestZIP(t *testing.T, entries map[string]string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.zip")
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	for name, content := range entries {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
	return path
}

func TestValidateZIP(t *testing.T) {
	path := writeTestZIP(t, map[string]string{"a.csv": "x;y\n"})
	assert.True(t, ValidateZIP(path))

	bad := filepath.Join(t.TempDir(), "bad.zip")
	require.NoError(t, os.WriteFile(bad, []byte("not a zip"), 0644))
	assert.False(t, ValidateZIP(bad))

	assert.False(t, ValidateZIP(filepath.Join(t.TempDir(), "missing.zip")))
}

func TestExtractZIPSuffix(t *testing.T) {
	path := writeTestZIP(t, map[string]string{
		"fre/2025/fre_cia_aberta_posicao_acionaria_2025.csv": "CNPJ;Acionista\n",
		"fre/2025/other.csv": "ignored\n",
	})

	dest := t.TempDir()
	out, err := ExtractZIPSuffix(path, "posicao_acionaria_2025.csv", dest)
	require.NoError(t, err)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "CNPJ;Acionista\n", string(data))

	_, err = ExtractZIPSuffix(path, "missing.csv", dest)
	assert.Error(t, err)
}
