//go:build ipinfo

package ipinfo

import (
	"context"
	"io"
	"log/slog"
	"net/netip"
	"os"
	"testing"
	"time"

	"github.com/couchcryptid/accesslog-geo-etl/internal/domain"
	"github.com/couchcryptid/accesslog-geo-etl/internal/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// These tests hit the real ipinfo.io API and require a valid IPINFO_TOKEN env var.
// Run with: go test -tags=ipinfo ./internal/adapter/ipinfo/ -v -count=1

func smokeClient(t *testing.T) *Client {
	t.Helper()
	token := os.Getenv("IPINFO_TOKEN")
	if token == "" {
		t.Fatal("IPINFO_TOKEN must be set to run smoke tests")
	}
	return NewClient(token, 10*time.Second, 0, observability.NewMetricsForTesting(), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestSmoke_Lookup(t *testing.T) {
	attrs, err := smokeClient(t).Lookup(context.Background(), netip.MustParseAddr("8.8.8.8"))
	require.NoError(t, err)

	assert.Equal(t, "US", attrs.Country)
	city, err := domain.NewCity(attrs)
	require.NoError(t, err)
	assert.Equal(t, "NA", city.Country.Continent.Code)
}

func TestSmoke_Bogon(t *testing.T) {
	attrs, err := smokeClient(t).Lookup(context.Background(), netip.MustParseAddr("192.168.1.1"))
	require.NoError(t, err)
	assert.True(t, attrs.Bogon)
}

func TestSmoke_CachedLocator(t *testing.T) {
	metrics := observability.NewMetricsForTesting()
	cached := NewCachedLocator(smokeClient(t), 10, time.Minute, nil, metrics)

	r1, err := cached.Lookup(context.Background(), netip.MustParseAddr("1.1.1.1"))
	require.NoError(t, err)
	r2, err := cached.Lookup(context.Background(), netip.MustParseAddr("1.1.1.1"))
	require.NoError(t, err)
	assert.Equal(t, r1, r2)
}
