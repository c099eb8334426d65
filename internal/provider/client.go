// Package provider pulls daily OHLCV bars from the upstream market data
// API. The client is rate limited and retries transient failures with
// exponential backoff; a stock the provider has nothing for is missing
// data, never a failure.
package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"qfactor/internal/config"
	"qfactor/internal/dataset"
	qerrors "qfactor/internal/errors"
)

const (
	retryBaseDelay  = 1 * time.Second
	maxRetryBackoff = 30 * time.Second
)

// errNoData marks a request the provider answered with "nothing here".
var errNoData = errors.New("provider has no data")

// Metrics receives request outcomes. Satisfied by
// infrastructure.EngineMetrics; nil disables counting.
type Metrics interface {
	RequestCompleted(ctx context.Context, status string)
}

// Client is the pull client for the daily-bar API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	maxRetries int
	retryDelay time.Duration
	logger     *slog.Logger
	metrics    Metrics
}

// NewClient builds a client from provider configuration. metrics and
// logger may be nil.
func NewClient(cfg config.ProviderConfig, metrics Metrics, logger *slog.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, &qerrors.ConfigurationError{
			Field:   "provider.base_url",
			Message: "required to fetch market data",
		}
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, &qerrors.ConfigurationError{
			Field:   "provider.base_url",
			Message: "not a valid URL",
			Value:   cfg.BaseURL,
		}
	}
	if logger == nil {
		logger = slog.Default()
	}

	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 5
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Limit(rps), burst),
		maxRetries: cfg.MaxRetries,
		retryDelay: retryBaseDelay,
		logger:     logger.With(slog.String("component", "provider")),
		metrics:    metrics,
	}, nil
}

// barRow is the wire format of one daily observation.
type barRow struct {
	StockID  string  `json:"stock_id"`
	Date     string  `json:"date"`
	Open     float64 `json:"open"`
	High     float64 `json:"high"`
	Low      float64 `json:"low"`
	Close    float64 `json:"close"`
	PreClose float64 `json:"pre_close"`
	Volume   float64 `json:"volume"`
	Amount   float64 `json:"amount"`
}

// FetchStockList pulls the provider's tradable universe.
func (c *Client) FetchStockList(ctx context.Context) ([]string, error) {
	var stocks []string
	if err := c.getJSON(ctx, "/stocks", nil, &stocks); err != nil {
		if errors.Is(err, errNoData) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetch stock list: %w", err)
	}
	return stocks, nil
}

// FetchDailyBars pulls one stock's bars for the range, sorted by date.
// A stock the provider has no rows for yields (nil, nil).
func (c *Client) FetchDailyBars(ctx context.Context, stockID string, dateRange dataset.DateRange) ([]dataset.Bar, error) {
	if stockID == "" {
		return nil, &qerrors.DataIntegrityError{
			Op:      "fetch_daily_bars",
			Message: "empty stock id",
		}
	}

	query := url.Values{}
	query.Set("stock_id", stockID)
	if !dateRange.Start.IsZero() {
		query.Set("start", dateRange.Start.Format(dataset.DateFormat))
	}
	if !dateRange.End.IsZero() {
		query.Set("end", dateRange.End.Format(dataset.DateFormat))
	}

	var rows []barRow
	if err := c.getJSON(ctx, "/daily", query, &rows); err != nil {
		if errors.Is(err, errNoData) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetch daily bars for %s: %w", stockID, err)
	}
	return c.toBars(stockID, rows), nil
}

// FetchUniverse pulls every listed stock. Per-stock failures and absent
// data are tolerated: such stocks land on the returned noData list and
// the pull continues. Only context cancellation aborts the whole run.
func (c *Client) FetchUniverse(ctx context.Context, stockIDs []string, dateRange dataset.DateRange) ([]dataset.Bar, []string, error) {
	var all []dataset.Bar
	var noData []string

	for _, stockID := range stockIDs {
		bars, err := c.FetchDailyBars(ctx, stockID, dateRange)
		if err != nil {
			if ctx.Err() != nil {
				return all, noData, ctx.Err()
			}
			c.logger.Warn("stock fetch failed",
				slog.String("stock_id", stockID),
				slog.String("error", err.Error()))
			noData = append(noData, stockID)
			continue
		}
		if len(bars) == 0 {
			noData = append(noData, stockID)
			continue
		}
		all = append(all, bars...)
	}
	return all, noData, nil
}

// toBars converts wire rows, dropping any that cannot form a usable
// observation. Upstream quirks must not reach the panel.
func (c *Client) toBars(stockID string, rows []barRow) []dataset.Bar {
	bars := make([]dataset.Bar, 0, len(rows))
	for _, row := range rows {
		if row.StockID != "" && row.StockID != stockID {
			c.logger.Warn("dropping bar for wrong stock",
				slog.String("want", stockID),
				slog.String("got", row.StockID))
			continue
		}
		date, err := time.Parse(dataset.DateFormat, row.Date)
		if err != nil {
			c.logger.Warn("dropping bar with malformed date",
				slog.String("stock_id", stockID),
				slog.String("date", row.Date))
			continue
		}

		bar := dataset.Bar{
			StockID:  stockID,
			Date:     date,
			Open:     row.Open,
			High:     row.High,
			Low:      row.Low,
			Close:    row.Close,
			PreClose: row.PreClose,
			Volume:   row.Volume,
			Amount:   row.Amount,
		}
		if !bar.IsValid() {
			c.logger.Warn("dropping invalid bar",
				slog.String("stock_id", stockID),
				slog.String("date", row.Date))
			continue
		}
		bars = append(bars, bar)
	}
	dataset.SortBars(bars)
	return bars
}

// getJSON performs a rate-limited GET with bounded retries, decoding the
// body into out. Returns errNoData when the provider answers 404.
func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out interface{}) error {
	var lastErr error
	backoff := c.retryDelay

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
				backoff *= 2
				if backoff > maxRetryBackoff {
					backoff = maxRetryBackoff
				}
			}
			c.logger.Debug("retrying provider request",
				slog.String("path", path),
				slog.Int("attempt", attempt))
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		err := c.getJSONOnce(ctx, path, query, out)
		if err == nil {
			c.countRequest(ctx, "ok")
			return nil
		}
		if errors.Is(err, errNoData) {
			c.countRequest(ctx, "no_data")
			return err
		}

		lastErr = err
		c.countRequest(ctx, "error")
		if !isRetryable(err) {
			break
		}
	}

	return fmt.Errorf("request failed after %d attempts: %w", c.maxRetries+1, lastErr)
}

func (c *Client) getJSONOnce(ctx context.Context, path string, query url.Values, out interface{}) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		io.Copy(io.Discard, resp.Body)
		return errNoData
	case resp.StatusCode != http.StatusOK:
		io.Copy(io.Discard, resp.Body)
		return &statusError{status: resp.StatusCode}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) countRequest(ctx context.Context, status string) {
	if c.metrics != nil {
		c.metrics.RequestCompleted(ctx, status)
	}
}

// statusError carries a non-2xx response status through the retry loop.
type statusError struct {
	status int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("provider returned status %d", e.status)
}

// isRetryable reports whether another attempt could succeed: transport
// failures, throttling, and server errors retry; everything else is
// deterministic and fails fast.
func isRetryable(err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		return se.status == http.StatusTooManyRequests || se.status >= http.StatusInternalServerError
	}
	var ue *url.Error
	return errors.As(err, &ue)
}
