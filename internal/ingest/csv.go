// Package ingest reads tabular files into field maps ready for bulk
// loading.
package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"iter"
	"strconv"
	"strings"
	"time"

	"azureorm/internal/schema"
)

var ErrMalformed = errors.New("malformed record")

var timeLayouts = []string{time.RFC3339Nano, "2006-01-02 15:04:05", time.DateOnly}

// Options controls how a CSV file is read.
type Options struct {
	// Comma is the field delimiter. Zero means ','.
	Comma rune
	// Aliases maps header names to column names, for files whose headers
	// differ from the table's.
	Aliases map[string]string
}

// Rows yields one field map per CSV record. The first record is the header;
// every header must name a column of t, directly or through an alias.
// Cells are parsed according to the column type and an empty cell in a
// nullable column becomes nil.
func Rows(r io.Reader, t *schema.Table, opts Options) iter.Seq2[map[string]any, error] {
	return func(yield func(map[string]any, error) bool) {
		cr := csv.NewReader(r)
		if opts.Comma != 0 {
			cr.Comma = opts.Comma
		}
		cr.TrimLeadingSpace = true
		cr.ReuseRecord = true

		header, err := cr.Read()
		if err != nil {
			yield(nil, fmt.Errorf("read header: %w", err))
			return
		}
		columns, err := resolveHeader(t, header, opts.Aliases)
		if err != nil {
			yield(nil, err)
			return
		}

		for {
			record, err := cr.Read()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(nil, fmt.Errorf("%w: %w", ErrMalformed, err))
				return
			}

			line, _ := cr.FieldPos(0)
			fields, err := parseRecord(columns, record)
			if err != nil {
				yield(nil, fmt.Errorf("line %d: %w", line, err))
				return
			}
			if !yield(fields, nil) {
				return
			}
		}
	}
}

func resolveHeader(t *schema.Table, header []string, aliases map[string]string) ([]schema.Column, error) {
	columns := make([]schema.Column, len(header))
	seen := make(map[string]struct{}, len(header))
	for i, h := range header {
		name := strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		if alias, ok := aliases[name]; ok {
			name = alias
		}
		c, ok := t.Column(name)
		if !ok {
			return nil, fmt.Errorf("%w: %s.%s", schema.ErrUnknownColumn, t.Name, name)
		}
		if _, dup := seen[c.Name]; dup {
			return nil, fmt.Errorf("%w: column %s appears twice in header", ErrMalformed, c.Name)
		}
		seen[c.Name] = struct{}{}
		columns[i] = c
	}
	return columns, nil
}

func parseRecord(columns []schema.Column, record []string) (map[string]any, error) {
	fields := make(map[string]any, len(columns))
	for i, c := range columns {
		v, err := parseCell(c, record[i])
		if err != nil {
			return nil, err
		}
		fields[c.Name] = v
	}
	return fields, nil
}

func parseCell(c schema.Column, cell string) (any, error) {
	cell = strings.TrimSpace(cell)
	if cell == "" && c.Type != schema.String {
		if c.Nullable {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %s is empty", ErrMalformed, c.Name)
	}

	switch c.Type {
	case schema.String:
		if cell == "" && c.Nullable {
			return nil, nil
		}
		return cell, nil
	case schema.Float32:
		f, err := strconv.ParseFloat(cell, 32)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrMalformed, c.Name, err)
		}
		return float32(f), nil
	case schema.Int16:
		n, err := strconv.ParseInt(cell, 10, 16)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrMalformed, c.Name, err)
		}
		return int16(n), nil
	case schema.Bool:
		b, err := strconv.ParseBool(cell)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrMalformed, c.Name, err)
		}
		return b, nil
	case schema.Timestamp:
		for _, layout := range timeLayouts {
			if ts, err := time.Parse(layout, cell); err == nil {
				return ts, nil
			}
		}
		return nil, fmt.Errorf("%w: %s: unrecognized time %q", ErrMalformed, c.Name, cell)
	default:
		return cell, nil
	}
}
