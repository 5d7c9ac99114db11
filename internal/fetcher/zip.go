package fetcher

import (
	"archive/zip"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// ValidateZIP reports whether the file at path is a readable ZIP archive
// with intact entry checksums.
func ValidateZIP(path string) bool {
	r, err := zip.OpenReader(path)
	if err != nil {
		return false
	}
	defer r.Close() //nolint:errcheck

	for _, f := range r.File {
		rc, err := f.Open()
		if err != nil {
			return false
		}
		// Reading to EOF forces the CRC check for the entry.
		_, copyErr := io.Copy(io.Discard, rc)
		_ = rc.Close()
		if copyErr != nil {
			return false
		}
	}
	return true
}

// ExtractZIPSuffix extracts the first archive entry whose name ends with
// fileName (CVM archives nest CSVs under a dated directory). Returns the
// path to the extracted file.
func ExtractZIPSuffix(zipPath, fileName, destDir string) (string, error) {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return "", eris.Wrap(err, "zip: open archive")
	}
	defer r.Close() //nolint:errcheck

	for _, f := range r.File {
		if f.FileInfo().IsDir() || !strings.HasSuffix(f.Name, fileName) {
			continue
		}

		destPath := filepath.Join(destDir, filepath.Base(f.Name))
		// Sanitize against zip slip
		if !strings.HasPrefix(filepath.Clean(destPath), filepath.Clean(destDir)+string(os.PathSeparator)) {
			return "", eris.Errorf("zip: illegal path %q (zip slip attempt)", f.Name)
		}

		rc, err := f.Open()
		if err != nil {
			return "", eris.Wrap(err, "zip: open entry")
		}

		out, err := os.Create(destPath)
		if err != nil {
			_ = rc.Close()
			return "", eris.Wrap(err, "zip: create file")
		}

		_, copyErr := io.Copy(out, rc)
		_ = rc.Close()
		_ = out.Close()
		if copyErr != nil {
			return "", eris.Wrap(copyErr, "zip: write file")
		}

		return destPath, nil
	}

	return "", eris.Errorf("zip: file %q not found in archive", fileName)
}
