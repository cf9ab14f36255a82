package ipinfo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"strings"
	"time"

	"github.com/couchcryptid/accesslog-geo-etl/internal/domain"
	"github.com/couchcryptid/accesslog-geo-etl/internal/observability"
	"golang.org/x/time/rate"
)

const defaultBaseURL = "https://ipinfo.io"

// Client implements domain.Locator using the ipinfo.io API.
type Client struct {
	token      string
	httpClient *http.Client
	baseURL    string
	limiter    *rate.Limiter
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithBaseURL points the client at a different API root, such as a caching
// proxy. A trailing slash is ignored.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// NewClient creates an ipinfo client. requestsPerSecond <= 0 disables
// client-side throttling.
func NewClient(token string, timeout time.Duration, requestsPerSecond float64, metrics *observability.Metrics, logger *slog.Logger, opts ...Option) *Client {
	var limiter *rate.Limiter
	if requestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), 1)
	}
	c := &Client{
		token: token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: defaultBaseURL,
		limiter: limiter,
		metrics: metrics,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Lookup fetches the attribute bag for ip. Country name and continent are
// filled in locally from the country code, since the API returns only the code.
func (c *Client) Lookup(ctx context.Context, ip netip.Addr) (domain.Attributes, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return domain.Attributes{}, &domain.LookupError{IP: ip.String(), Err: err}
		}
	}

	start := time.Now()
	attrs, err := c.doRequest(ctx, ip)
	c.metrics.LookupAPIDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		var lerr *domain.LookupError
		if errors.As(err, &lerr) && lerr.Retryable {
			c.metrics.LookupRequests.WithLabelValues("retryable_error").Inc()
		} else {
			c.metrics.LookupRequests.WithLabelValues("fatal_error").Inc()
		}
		return domain.Attributes{}, err
	}

	if attrs.Bogon {
		c.metrics.LookupRequests.WithLabelValues("bogon").Inc()
		return attrs, nil
	}
	c.metrics.LookupRequests.WithLabelValues("success").Inc()
	return withCountryDetails(attrs), nil
}

func (c *Client) doRequest(ctx context.Context, ip netip.Addr) (domain.Attributes, error) {
	addr := ip.String()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/"+addr, nil)
	if err != nil {
		return domain.Attributes{}, &domain.LookupError{IP: addr, Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.Attributes{}, &domain.LookupError{
			IP:        addr,
			Retryable: isRetryableTransportError(err),
			Err:       fmt.Errorf("ipinfo request: %w", err),
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.logger.Debug("ipinfo API error", "ip", addr, "status", resp.StatusCode)
		return domain.Attributes{}, &domain.LookupError{
			IP:        addr,
			Retryable: resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500,
			Err:       fmt.Errorf("ipinfo API error: status %d: %s", resp.StatusCode, body),
		}
	}

	var r response
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return domain.Attributes{}, &domain.LookupError{IP: addr, Err: fmt.Errorf("decode response: %w", err)}
	}

	return domain.Attributes{
		IP:       r.IP,
		Bogon:    r.Bogon,
		Loc:      r.Loc,
		City:     r.City,
		Region:   r.Region,
		Country:  r.Country,
		Org:      r.Org,
		Postal:   r.Postal,
		Timezone: r.Timezone,
	}, nil
}

// isRetryableTransportError treats timeouts and connection failures as
// transient. Cancellation by the caller is not retried.
func isRetryableTransportError(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// ipinfo API response.
type response struct {
	IP       string `json:"ip"`
	Bogon    bool   `json:"bogon"`
	City     string `json:"city"`
	Region   string `json:"region"`
	Country  string `json:"country"`
	Loc      string `json:"loc"` // "lat,long"
	Org      string `json:"org"`
	Postal   string `json:"postal"`
	Timezone string `json:"timezone"`
}
