package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"net/netip"
	"time"

	"github.com/couchcryptid/accesslog-geo-etl/internal/domain"
	"github.com/couchcryptid/accesslog-geo-etl/internal/observability"
	"github.com/couchcryptid/storm-data-shared/retry"
)

const (
	initialBackoff = 200 * time.Millisecond
	maxBackoff     = 5 * time.Second
)

// LineTransformer implements Transformer: it parses a line, builds the access
// record, resolves the client address and assembles the event.
type LineTransformer struct {
	locator    domain.Locator
	metrics    *observability.Metrics
	logger     *slog.Logger
	maxRetries int
	backoff    time.Duration
}

// NewTransformer creates a LineTransformer. Retryable lookup errors are
// repeated up to maxRetries times with exponential backoff.
func NewTransformer(locator domain.Locator, maxRetries int, metrics *observability.Metrics, logger *slog.Logger) *LineTransformer {
	return &LineTransformer{
		locator:    locator,
		metrics:    metrics,
		logger:     logger,
		maxRetries: maxRetries,
		backoff:    initialBackoff,
	}
}

func (t *LineTransformer) Transform(ctx context.Context, raw domain.RawLine) (domain.Event, bool, error) {
	fields, err := domain.ParseLine(raw.Text)
	if err != nil {
		return domain.Event{}, false, err
	}
	access, err := domain.NewAccess(fields)
	if err != nil {
		return domain.Event{}, false, err
	}
	attrs, err := t.lookup(ctx, access.IP)
	if err != nil {
		return domain.Event{}, false, err
	}
	event, skipped, err := domain.Assemble(access, attrs)
	if err == nil && !skipped && (event.City.Name == "" || event.City.Region == "") {
		t.logger.Debug("location lacks city or region", "line", raw.Number, "ip", access.IP.String(),
			"city", event.City.Name, "region", event.City.Region, "country", event.City.Country.Code)
	}
	return event, skipped, err
}

func (t *LineTransformer) lookup(ctx context.Context, ip netip.Addr) (domain.Attributes, error) {
	backoff := t.backoff
	for attempt := 0; ; attempt++ {
		attrs, err := t.locator.Lookup(ctx, ip)
		if err == nil {
			return attrs, nil
		}
		var lerr *domain.LookupError
		if !errors.As(err, &lerr) || !lerr.Retryable || attempt >= t.maxRetries {
			return domain.Attributes{}, err
		}

		t.metrics.LookupRetries.Inc()
		t.logger.Debug("lookup failed, retrying", "ip", ip.String(), "attempt", attempt+1, "backoff", backoff, "error", err)
		if !retry.SleepWithContext(ctx, backoff) {
			return domain.Attributes{}, &domain.LookupError{IP: ip.String(), Err: ctx.Err()}
		}
		backoff = retry.NextBackoff(backoff, maxBackoff)
	}
}
