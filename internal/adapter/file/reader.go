// Package file implements the line source and CSV sink of a batch run.
package file

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/couchcryptid/accesslog-geo-etl/internal/domain"
)

// maxLineBytes bounds a single log line. Longer lines fail the run.
const maxLineBytes = 1 << 20

// Reader reads numbered log lines from an input stream.
// It implements pipeline.BatchExtractor.
type Reader struct {
	scanner *bufio.Scanner
	closer  io.Closer
	line    int
	done    bool
}

// Open opens the log file at path.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	r := NewReader(f)
	r.closer = f
	return r, nil
}

// NewReader reads lines from r. The caller keeps ownership of r.
func NewReader(r io.Reader) *Reader {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	return &Reader{scanner: s}
}

// ExtractBatch returns up to batchSize lines. Blank lines are consumed but not
// returned; line numbers still count them. Once the input is exhausted it
// returns io.EOF with no lines.
func (r *Reader) ExtractBatch(ctx context.Context, batchSize int) ([]domain.RawLine, error) {
	if r.done {
		return nil, io.EOF
	}

	batch := make([]domain.RawLine, 0, batchSize)
	for len(batch) < batchSize {
		if err := ctx.Err(); err != nil {
			return batch, err
		}
		if !r.scanner.Scan() {
			if err := r.scanner.Err(); err != nil {
				return batch, fmt.Errorf("read line %d: %w", r.line+1, err)
			}
			r.done = true
			break
		}
		r.line++
		text := strings.TrimRight(r.scanner.Text(), "\r")
		if strings.TrimSpace(text) == "" {
			continue
		}
		batch = append(batch, domain.RawLine{Number: r.line, Text: text})
	}

	if len(batch) == 0 && r.done {
		return nil, io.EOF
	}
	return batch, nil
}

func (r *Reader) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer.Close()
}
