package provider

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qfactor/internal/config"
	"qfactor/internal/dataset"
	qerrors "qfactor/internal/errors"
)

// testClient builds a client against the test server with a rate limit
// and retry delay that keep tests fast.
func testClient(t *testing.T, baseURL string, maxRetries int) *Client {
	t.Helper()
	c, err := NewClient(config.ProviderConfig{
		BaseURL:    baseURL,
		RatePerSec: 1000,
		Burst:      1000,
		MaxRetries: maxRetries,
		Timeout:    5 * time.Second,
	}, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	c.retryDelay = time.Millisecond
	return c
}

func wireRow(stockID, date string, close float64) barRow {
	return barRow{
		StockID:  stockID,
		Date:     date,
		Open:     close,
		High:     close * 1.01,
		Low:      close * 0.99,
		Close:    close,
		PreClose: close,
		Volume:   1000,
		Amount:   1000 * close,
	}
}

func serveRows(t *testing.T, rows []barRow) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(rows)
	}))
}

func TestNewClientValidation(t *testing.T) {
	t.Run("base url required", func(t *testing.T) {
		_, err := NewClient(config.ProviderConfig{}, nil, nil)
		require.Error(t, err)
		assert.True(t, qerrors.IsConfiguration(err))
	})

	t.Run("defaults applied", func(t *testing.T) {
		c, err := NewClient(config.ProviderConfig{BaseURL: "http://localhost:9999/"}, nil, nil)
		require.NoError(t, err)
		assert.Equal(t, "http://localhost:9999", c.baseURL)
		assert.Equal(t, retryBaseDelay, c.retryDelay)
	})
}

func TestFetchDailyBars(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/daily", r.URL.Path)
		assert.Equal(t, "sh.600000", r.URL.Query().Get("stock_id"))
		assert.Equal(t, "2024-01-01", r.URL.Query().Get("start"))
		assert.Equal(t, "2024-01-31", r.URL.Query().Get("end"))
		// Out of order on the wire; the client must sort.
		rows := []barRow{
			wireRow("sh.600000", "2024-01-03", 10.4),
			wireRow("sh.600000", "2024-01-02", 10.2),
		}
		json.NewEncoder(w).Encode(rows)
	}))
	defer server.Close()

	dr, err := dataset.NewDateRange("2024-01-01", "2024-01-31")
	require.NoError(t, err)

	c := testClient(t, server.URL, 0)
	bars, err := c.FetchDailyBars(context.Background(), "sh.600000", dr)
	require.NoError(t, err)
	require.Len(t, bars, 2)

	assert.Equal(t, "2024-01-02", bars[0].Date.Format(dataset.DateFormat))
	assert.Equal(t, "2024-01-03", bars[1].Date.Format(dataset.DateFormat))
	assert.Equal(t, "sh.600000", bars[0].StockID)
	assert.InDelta(t, 10.2, bars[0].Close, 1e-9)
	assert.InDelta(t, 10.2, bars[0].PreClose, 1e-9)
}

func TestFetchDailyBarsOpenRange(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.False(t, r.URL.Query().Has("start"))
		assert.False(t, r.URL.Query().Has("end"))
		json.NewEncoder(w).Encode([]barRow{})
	}))
	defer server.Close()

	c := testClient(t, server.URL, 0)
	bars, err := c.FetchDailyBars(context.Background(), "sh.600000", dataset.DateRange{})
	require.NoError(t, err)
	assert.Empty(t, bars)
}

func TestFetchDailyBarsEmptyStockID(t *testing.T) {
	c := testClient(t, "http://localhost:9999", 0)
	_, err := c.FetchDailyBars(context.Background(), "", dataset.DateRange{})
	require.Error(t, err)
	assert.True(t, qerrors.IsDataIntegrity(err))
}

func TestFetchDailyBarsNoData(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	c := testClient(t, server.URL, 3)
	bars, err := c.FetchDailyBars(context.Background(), "sz.000001", dataset.DateRange{})
	require.NoError(t, err)
	assert.Nil(t, bars)
}

func TestFetchDailyBarsDropsUnusableRows(t *testing.T) {
	rows := []barRow{
		wireRow("sh.600000", "2024-01-02", 10),
		wireRow("sh.600000", "not-a-date", 10),
		wireRow("sz.999999", "2024-01-03", 10),
		{StockID: "sh.600000", Date: "2024-01-04", Open: -1, High: 1, Low: 1, Close: 1},
		wireRow("sh.600000", "2024-01-05", 11),
	}
	server := serveRows(t, rows)
	defer server.Close()

	c := testClient(t, server.URL, 0)
	bars, err := c.FetchDailyBars(context.Background(), "sh.600000", dataset.DateRange{})
	require.NoError(t, err)

	require.Len(t, bars, 2)
	assert.Equal(t, "2024-01-02", bars[0].Date.Format(dataset.DateFormat))
	assert.Equal(t, "2024-01-05", bars[1].Date.Format(dataset.DateFormat))
}

func TestFetchDailyBarsRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			http.Error(w, "busy", http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode([]barRow{wireRow("sh.600000", "2024-01-02", 10)})
	}))
	defer server.Close()

	c := testClient(t, server.URL, 3)
	bars, err := c.FetchDailyBars(context.Background(), "sh.600000", dataset.DateRange{})
	require.NoError(t, err)
	assert.Len(t, bars, 1)
	assert.Equal(t, int32(3), calls.Load())
}

func TestFetchDailyBarsExhaustsRetries(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "busy", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	c := testClient(t, server.URL, 2)
	_, err := c.FetchDailyBars(context.Background(), "sh.600000", dataset.DateRange{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 3 attempts")
	assert.Equal(t, int32(3), calls.Load())
}

func TestFetchDailyBarsFailsFastOnClientError(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad range", http.StatusBadRequest)
	}))
	defer server.Close()

	c := testClient(t, server.URL, 5)
	_, err := c.FetchDailyBars(context.Background(), "sh.600000", dataset.DateRange{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 400")
	assert.Equal(t, int32(1), calls.Load(), "client errors must not retry")
}

func TestFetchDailyBarsCancelDuringBackoff(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "busy", http.StatusInternalServerError)
	}))
	defer server.Close()

	c := testClient(t, server.URL, 10)
	c.retryDelay = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := c.FetchDailyBars(ctx, "sh.600000", dataset.DateRange{})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFetchStockList(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/stocks", r.URL.Path)
		json.NewEncoder(w).Encode([]string{"sh.600000", "sz.000001", "sz.300001"})
	}))
	defer server.Close()

	c := testClient(t, server.URL, 0)
	stocks, err := c.FetchStockList(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"sh.600000", "sz.000001", "sz.300001"}, stocks)
}

func TestFetchUniverse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("stock_id") {
		case "sh.600000":
			json.NewEncoder(w).Encode([]barRow{
				wireRow("sh.600000", "2024-01-02", 10),
				wireRow("sh.600000", "2024-01-03", 11),
			})
		case "sz.000001":
			http.NotFound(w, r)
		default:
			http.Error(w, "broken", http.StatusInternalServerError)
		}
	}))
	defer server.Close()

	c := testClient(t, server.URL, 1)
	bars, noData, err := c.FetchUniverse(context.Background(),
		[]string{"sh.600000", "sz.000001", "sz.999999"}, dataset.DateRange{})
	require.NoError(t, err)

	assert.Len(t, bars, 2)
	assert.Equal(t, []string{"sz.000001", "sz.999999"}, noData)
}

// countingMetrics tallies request outcomes by status.
type countingMetrics struct {
	statuses map[string]int
}

func (m *countingMetrics) RequestCompleted(_ context.Context, status string) {
	if m.statuses == nil {
		m.statuses = make(map[string]int)
	}
	m.statuses[status]++
}

func TestClientReportsMetrics(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("stock_id") == "sz.000001" {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode([]barRow{wireRow("sh.600000", "2024-01-02", 10)})
	}))
	defer server.Close()

	metrics := &countingMetrics{}
	c := testClient(t, server.URL, 0)
	c.metrics = metrics

	_, err := c.FetchDailyBars(context.Background(), "sh.600000", dataset.DateRange{})
	require.NoError(t, err)
	_, err = c.FetchDailyBars(context.Background(), "sz.000001", dataset.DateRange{})
	require.NoError(t, err)

	assert.Equal(t, 1, metrics.statuses["ok"])
	assert.Equal(t, 1, metrics.statuses["no_data"])
}
