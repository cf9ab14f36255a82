package ipinfo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"testing"
	"time"

	"github.com/couchcryptid/accesslog-geo-etl/internal/domain"
	"github.com/couchcryptid/accesslog-geo-etl/internal/observability"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testToken         = "test-token"
	contentTypeJSON   = "application/json"
	headerContentType = "Content-Type"
)

var testIP = netip.MustParseAddr("8.8.8.8")

func testClient(baseURL string) *Client {
	return &Client{
		token:      testToken,
		httpClient: &http.Client{Timeout: 5 * time.Second},
		baseURL:    baseURL,
		metrics:    observability.NewMetricsForTesting(),
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func TestClient_Lookup_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/8.8.8.8", r.URL.Path)
		assert.Equal(t, "Bearer "+testToken, r.Header.Get("Authorization"))

		w.Header().Set(headerContentType, contentTypeJSON)
		_, _ = w.Write([]byte(`{
			"ip": "8.8.8.8",
			"hostname": "dns.google",
			"city": "Mountain View",
			"region": "California",
			"country": "US",
			"loc": "37.4056,-122.0775",
			"org": "AS15169 Google LLC",
			"postal": "94043",
			"timezone": "America/Los_Angeles"
		}`))
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	attrs, err := c.Lookup(context.Background(), testIP)
	require.NoError(t, err)

	assert.False(t, attrs.Bogon)
	assert.Equal(t, "8.8.8.8", attrs.IP)
	assert.Equal(t, "Mountain View", attrs.City)
	assert.Equal(t, "California", attrs.Region)
	assert.Equal(t, "US", attrs.Country)
	assert.Equal(t, "United States", attrs.CountryName)
	require.NotNil(t, attrs.Continent)
	assert.Equal(t, domain.ContinentAttributes{Code: "NA", Name: "North America"}, *attrs.Continent)
	assert.Equal(t, "37.4056,-122.0775", attrs.Loc)
	assert.Equal(t, "AS15169 Google LLC", attrs.Org)
	assert.InDelta(t, 1, testutil.ToFloat64(c.metrics.LookupRequests.WithLabelValues("success")), 0)

	city, err := domain.NewCity(attrs)
	require.NoError(t, err)
	assert.Equal(t, 37.4056, city.Position.Latitude)
}

func TestClient_Lookup_Bogon(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set(headerContentType, contentTypeJSON)
		_, _ = w.Write([]byte(`{"ip": "10.0.0.1", "bogon": true}`))
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	attrs, err := c.Lookup(context.Background(), netip.MustParseAddr("10.0.0.1"))
	require.NoError(t, err)
	assert.True(t, attrs.Bogon)
	assert.Nil(t, attrs.Continent)
	assert.InDelta(t, 1, testutil.ToFloat64(c.metrics.LookupRequests.WithLabelValues("bogon")), 0)
}

func TestClient_Lookup_StatusClassification(t *testing.T) {
	tests := []struct {
		status    int
		retryable bool
	}{
		{http.StatusTooManyRequests, true},
		{http.StatusInternalServerError, true},
		{http.StatusBadGateway, true},
		{http.StatusUnauthorized, false},
		{http.StatusForbidden, false},
		{http.StatusNotFound, false},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"error":{"title":"nope"}}`))
			}))
			defer srv.Close()

			_, err := testClient(srv.URL).Lookup(context.Background(), testIP)
			require.Error(t, err)

			var lerr *domain.LookupError
			require.ErrorAs(t, err, &lerr)
			assert.Equal(t, tt.retryable, lerr.Retryable)
			assert.Equal(t, "8.8.8.8", lerr.IP)
			assert.Contains(t, err.Error(), fmt.Sprintf("status %d", tt.status))
		})
	}
}

func TestClient_Lookup_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	c.httpClient = &http.Client{Timeout: 50 * time.Millisecond}

	_, err := c.Lookup(context.Background(), testIP)
	require.Error(t, err)

	var lerr *domain.LookupError
	require.ErrorAs(t, err, &lerr)
	assert.True(t, lerr.Retryable)
}

func TestClient_Lookup_Cancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := testClient(srv.URL).Lookup(ctx, testIP)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))

	var lerr *domain.LookupError
	require.ErrorAs(t, err, &lerr)
	assert.False(t, lerr.Retryable)
}

func TestClient_Lookup_BadJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{not json`))
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).Lookup(context.Background(), testIP)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode response")
}

func TestNewClient_RateLimit(t *testing.T) {
	c := NewClient(testToken, time.Second, 0, observability.NewMetricsForTesting(), slog.Default())
	assert.Nil(t, c.limiter)

	c = NewClient(testToken, time.Second, 10, observability.NewMetricsForTesting(), slog.Default())
	require.NotNil(t, c.limiter)
	assert.InDelta(t, 10, float64(c.limiter.Limit()), 0)
}

func TestNewClient_WithBaseURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/8.8.8.8", r.URL.Path)
		_, _ = w.Write([]byte(`{"ip": "8.8.8.8", "country": "US", "loc": "1,2"}`))
	}))
	defer srv.Close()

	c := NewClient(testToken, time.Second, 0, observability.NewMetricsForTesting(), slog.Default(), WithBaseURL(srv.URL+"/"))
	assert.Equal(t, srv.URL, c.baseURL)

	attrs, err := c.Lookup(context.Background(), testIP)
	require.NoError(t, err)
	assert.Equal(t, "United States", attrs.CountryName)

	c = NewClient(testToken, time.Second, 0, observability.NewMetricsForTesting(), slog.Default(), WithBaseURL(""))
	assert.Equal(t, defaultBaseURL, c.baseURL)
}
