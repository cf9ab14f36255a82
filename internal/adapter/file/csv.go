package file

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"

	"github.com/couchcryptid/accesslog-geo-etl/internal/domain"
)

// CSVWriter writes one row per event in domain.Columns order.
// It implements pipeline.BatchLoader.
type CSVWriter struct {
	w      *csv.Writer
	closer io.Closer
	header bool
	rows   int
}

// Create truncates or creates the output file at path.
func Create(path string, header bool) (*CSVWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create output: %w", err)
	}
	w := NewCSVWriter(f, header)
	w.closer = f
	return w, nil
}

// NewCSVWriter writes rows to w. With header set, a column name row is
// written before the first batch.
func NewCSVWriter(w io.Writer, header bool) *CSVWriter {
	return &CSVWriter{w: csv.NewWriter(w), header: header}
}

// LoadBatch appends the events and flushes, so a batch is either fully
// handed to the underlying writer or reported as failed.
func (c *CSVWriter) LoadBatch(_ context.Context, events []domain.Event) error {
	if c.header {
		if err := c.w.Write(domain.Columns); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
		c.header = false
	}
	for i := range events {
		if err := c.w.Write(events[i].Row()); err != nil {
			return fmt.Errorf("write row for %s: %w", events[i].Access.IP, err)
		}
	}
	c.w.Flush()
	if err := c.w.Error(); err != nil {
		return fmt.Errorf("flush output: %w", err)
	}
	c.rows += len(events)
	return nil
}

// Rows returns the number of data rows written so far.
func (c *CSVWriter) Rows() int { return c.rows }

// Close flushes any buffered output and closes the file, writing the header
// first if no batch was ever loaded.
func (c *CSVWriter) Close() error {
	if c.header {
		if err := c.LoadBatch(context.Background(), nil); err != nil {
			return err
		}
	}
	c.w.Flush()
	if err := c.w.Error(); err != nil {
		return fmt.Errorf("flush output: %w", err)
	}
	if c.closer == nil {
		return nil
	}
	return c.closer.Close()
}
