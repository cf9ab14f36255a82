package pipeline

import (
	"context"
	"fmt"

	"github.com/couchcryptid/accesslog-geo-etl/internal/domain"
)

// MultiLoader fans a batch out to several loaders in order, stopping at the
// first failure.
type MultiLoader []BatchLoader

func (m MultiLoader) LoadBatch(ctx context.Context, events []domain.Event) error {
	for i, l := range m {
		if err := l.LoadBatch(ctx, events); err != nil {
			return fmt.Errorf("loader %d: %w", i, err)
		}
	}
	return nil
}
