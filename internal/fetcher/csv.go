package fetcher

import (
	"context"
	"encoding/csv"
	"io"
	"strings"

	"github.com/rotisserie/eris"
)

// CSVOptions configures the streaming CSV parser. The CVM FRE exports use
// ';' delimiters and occasionally unbalanced quotes, hence LazyQuotes.
type CSVOptions struct {
	Delimiter  rune            // default ','
	HasHeader  bool            // if true, first row is skipped but sent to HeaderCh
	HeaderCh   chan<- []string // optional: receives the header row
	LazyQuotes bool
	TrimSpace  bool
}

// StreamCSV reads a CSV file and sends rows to a channel.
// Caller must consume the returned row channel. Errors are sent on the error channel.
// Both channels are closed when processing completes.
func StreamCSV(ctx context.Context, r io.Reader, opts CSVOptions) (<-chan []string, <-chan error) {
	rowCh := make(chan []string, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(rowCh)
		defer close(errCh)

		reader := csv.NewReader(r)
		if opts.Delimiter != 0 {
			reader.Comma = opts.Delimiter
		}
		reader.LazyQuotes = opts.LazyQuotes
		reader.FieldsPerRecord = -1 // allow variable fields

		first := true
		for {
			if ctx.Err() != nil {
				errCh <- eris.Wrap(ctx.Err(), "csv: context cancelled")
				return
			}

			record, err := reader.Read()
			if err == io.EOF {
				return
			}
			if err != nil {
				errCh <- eris.Wrap(err, "csv: read row")
				return
			}

			if opts.TrimSpace {
				for i, field := range record {
					record[i] = strings.TrimSpace(field)
				}
			}

			if first && opts.HasHeader {
				first = false
				if opts.HeaderCh != nil {
					select {
					case opts.HeaderCh <- record:
					case <-ctx.Done():
						errCh <- eris.Wrap(ctx.Err(), "csv: context cancelled sending header")
						return
					}
				}
				continue
			}
			first = false

			select {
			case rowCh <- record:
			case <-ctx.Done():
				errCh <- eris.Wrap(ctx.Err(), "csv: context cancelled")
				return
			}
		}
	}()

	return rowCh, errCh
}
