// Package runlog keeps the per-company run log files: one append-only
// file per company per run, identified by a timestamp-slug-uuid run ID.
package runlog

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/valor-intel/internal/model"
)

var (
	nonSlugPattern   = regexp.MustCompile(`[^a-z0-9\s-]`)
	separatorPattern = regexp.MustCompile(`[\s_-]+`)
)

// Slugify folds a company name into a file-name-safe slug: diacritics
// stripped (São Paulo → sao-paulo), lowered, separators collapsed.
func Slugify(name string) string {
	folded, _, err := transform.String(
		transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC),
		strings.ToLower(strings.TrimSpace(name)),
	)
	if err != nil {
		folded = strings.ToLower(strings.TrimSpace(name))
	}
	folded = nonSlugPattern.ReplaceAllString(folded, "")
	folded = separatorPattern.ReplaceAllString(folded, "-")
	folded = strings.Trim(folded, "-")
	if folded == "" {
		return "company"
	}
	return folded
}

// NewRunID builds the log correlation ID for a company:
// {timestamp}-{slug}-{short uuid}.
func NewRunID(companyName string, now time.Time) string {
	short := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("%s-%s-%s", now.Format("20060102-150405"), Slugify(companyName), short)
}

// Writer appends per-company events to their run log files. Safe for
// concurrent branches.
type Writer struct {
	dir string
	mu  sync.Mutex
}

// NewWriter creates a Writer rooted at dir.
func NewWriter(dir string) *Writer {
	return &Writer{dir: dir}
}

// Clear removes every file in the log directory and returns how many
// were removed. Called once at run start so logs always describe the
// current run.
func (w *Writer) Clear() int {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		zap.L().Warn("runlog: create log dir", zap.Error(err))
		return 0
	}

	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return 0
	}
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if err := os.Remove(filepath.Join(w.dir, entry.Name())); err == nil {
			removed++
		}
	}
	zap.L().Info("runlog: cleared previous run logs", zap.Int("removed", removed))
	return removed
}

// Ensure assigns the company's run ID and log file path when missing.
func (w *Writer) Ensure(company *model.CompanyRecord) {
	if company.RunID == "" {
		name := company.Name
		if name == "" {
			name = company.RegisteredName
		}
		company.RunID = NewRunID(name, time.Now())
	}
	if company.LogFile == "" {
		company.LogFile = filepath.Join(w.dir, company.RunID+".log")
	}
}

// Event formats a stage-prefixed line, appends it to the company's log
// file, and returns the line for the run-state accumulator. File write
// failures degrade to the returned line only.
func (w *Writer) Event(company *model.CompanyRecord, stage, message string) string {
	w.Ensure(company)
	line := fmt.Sprintf("[%s|%s] %s", company.RunID, stage, message)

	w.mu.Lock()
	defer w.mu.Unlock()

	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		zap.L().Warn("runlog: create log dir", zap.Error(err))
		return line
	}
	f, err := os.OpenFile(company.LogFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		zap.L().Warn("runlog: open company log", zap.String("file", company.LogFile), zap.Error(err))
		return line
	}
	defer f.Close() //nolint:errcheck

	if _, err := f.WriteString(line + "\n"); err != nil {
		zap.L().Warn("runlog: append company log", zap.String("file", company.LogFile), zap.Error(err))
	}
	return line
}
