//go:build integration

package integration_test

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/couchcryptid/accesslog-geo-etl/internal/adapter/file"
	"github.com/couchcryptid/accesslog-geo-etl/internal/adapter/ipinfo"
	"github.com/couchcryptid/accesslog-geo-etl/internal/adapter/kafka"
	"github.com/couchcryptid/accesslog-geo-etl/internal/domain"
	"github.com/couchcryptid/accesslog-geo-etl/internal/observability"
	"github.com/couchcryptid/accesslog-geo-etl/internal/pipeline"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSinkTopic = "test-enriched-access-logs"

const accessLog = `81.2.69.142 - - [10/Oct/2023:13:55:36 +0000] "GET /search?q=kafka HTTP/1.1" 200 2326 "-" "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/118.0.0.0 Safari/537.36" "-"
10.0.0.7 - - [10/Oct/2023:13:55:37 +0000] "GET /internal HTTP/1.1" 200 12 "-" "curl/8.4.0" "-"
this is not an access log line
81.2.69.142 - - [10/Oct/2023:13:55:40 +0000] "POST /cart HTTP/1.1" 302 0 "https://shop.example/search?q=kafka" "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1" "-"
`

// fakeIPInfo answers like ipinfo.io and counts requests.
func fakeIPInfo(t *testing.T, requests *atomic.Int64) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.Header().Set("Content-Type", "application/json")
		switch strings.TrimPrefix(r.URL.Path, "/") {
		case "10.0.0.7":
			_, _ = w.Write([]byte(`{"ip": "10.0.0.7", "bogon": true}`))
		default:
			_, _ = w.Write([]byte(`{"ip": "81.2.69.142", "city": "London", "region": "England", "country": "GB", "loc": "51.5085,-0.1257"}`))
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestPipelineEndToEnd(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testSinkTopic)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	metrics := observability.NewMetricsForTesting()

	var requests atomic.Int64
	api := fakeIPInfo(t, &requests)
	client := ipinfo.NewClient("token", 5*time.Second, 0, metrics, logger, ipinfo.WithBaseURL(api.URL))
	locator := ipinfo.NewCachedLocator(client, 512, 2*time.Minute, nil, metrics)

	var out bytes.Buffer
	csvWriter := file.NewCSVWriter(&out, true)
	kafkaWriter := kafka.NewWriter([]string{broker}, testSinkTopic, logger)
	defer kafkaWriter.Close()

	p := pipeline.New(
		file.NewReader(strings.NewReader(accessLog)),
		pipeline.NewTransformer(locator, 1, metrics, logger),
		pipeline.MultiLoader{csvWriter, kafkaWriter},
		logger, metrics,
		pipeline.Options{BatchSize: 2, Concurrency: 2},
	)
	require.NoError(t, p.Run(ctx))
	require.NoError(t, csvWriter.Close())

	assert.Equal(t, pipeline.Stats{Read: 4, Emitted: 2, Skipped: 1, Rejected: 1}, p.Stats())
	assert.Equal(t, int64(2), requests.Load(), "repeated address served from cache")

	// CSV sink.
	records, err := csv.NewReader(&out).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, domain.Columns, records[0])
	assert.Equal(t, []string{
		"81.2.69.142", "2023-10-10T13:55:36Z", `{"q":["kafka"]}`, "200", "2.27 KiB", "",
	}, records[1][:6])
	assert.Equal(t, []string{
		"London", "England", "United Kingdom", "GB", "EU", "Europe", "51.5085", "-0.1257",
	}, records[1][7:])
	assert.Equal(t, "https://shop.example/search?q=kafka", records[2][5])
	assert.Equal(t, "0 bytes", records[2][4])

	// Kafka sink.
	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:   []string{broker},
		Topic:     testSinkTopic,
		Partition: 0,
		MinBytes:  1,
		MaxBytes:  10e6,
	})
	defer consumer.Close()

	for i, wantStatus := range []string{"200", "302"} {
		readCtx, readCancel := context.WithTimeout(ctx, 30*time.Second)
		msg, err := consumer.ReadMessage(readCtx)
		readCancel()
		require.NoError(t, err, "read message %d", i)

		assert.Equal(t, "81.2.69.142", string(msg.Key))
		headers := make(map[string]string, len(msg.Headers))
		for _, h := range msg.Headers {
			headers[h.Key] = string(h.Value)
		}
		assert.Equal(t, map[string]string{"schema_version": "1", "status": wantStatus}, headers)

		var decoded struct {
			Access struct {
				Status int `json:"status"`
			} `json:"access"`
			City domain.City `json:"city"`
		}
		require.NoError(t, json.Unmarshal(msg.Value, &decoded))
		assert.Equal(t, wantStatus, strconv.Itoa(decoded.Access.Status))
		assert.Equal(t, "United Kingdom", decoded.City.Country.Name)
	}
}
