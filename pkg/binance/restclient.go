package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"cryptomirror/internal/common"
	"cryptomirror/internal/timeseries"

	"go.uber.org/zap"
)

// APIError is a non-200 response from the REST API.
type APIError struct {
	StatusCode int
	Code       int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("binance error: status=%d code=%d msg=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("binance error: status=%d", e.StatusCode)
}

type RESTClient struct {
	baseURL    string
	httpClient *http.Client
	now        func() time.Time
	logger     *zap.Logger
}

func NewRESTClient(baseURL string, timeout time.Duration, logger *zap.Logger) *RESTClient {
	return &RESTClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		now:        time.Now,
		logger:     logger,
	}
}

// Klines fetches the most recent limit bars for symbol at res, oldest first.
// Malformed rows are skipped; an empty slice is a valid result.
func (c *RESTClient) Klines(ctx context.Context, symbol string, res Resolution, limit int) ([]timeseries.Bar, error) {
	q := url.Values{}
	q.Set("symbol", strings.ToUpper(symbol))
	q.Set("interval", res.String())
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}

	var rows []json.RawMessage
	if err := c.get(ctx, "/api/v3/klines", q, &rows); err != nil {
		return nil, err
	}

	bars, skipped := ParseKlineRows(rows)
	if skipped > 0 {
		c.logger.Warn(common.ErrMsgMalformedMessage.String(),
			common.Code(common.ErrCodeMalformedMessage),
			zap.String("symbol", symbol),
			zap.String("interval", res.String()),
			zap.Int("skipped", skipped),
			zap.Int("kept", len(bars)),
		)
	}
	return bars, nil
}

// Tickers24h fetches 24h summaries for all symbols in one batched request.
func (c *RESTClient) Tickers24h(ctx context.Context, symbols []string) ([]Ticker, error) {
	upper := make([]string, len(symbols))
	for i, s := range symbols {
		upper[i] = strings.ToUpper(s)
	}
	param, err := json.Marshal(upper)
	if err != nil {
		return nil, fmt.Errorf("encode symbols: %w", err)
	}

	q := url.Values{}
	q.Set("symbols", string(param))

	var raw []Ticker24hResponse
	if err := c.get(ctx, "/api/v3/ticker/24hr", q, &raw); err != nil {
		return nil, err
	}

	now := c.now().UnixMilli()
	out := make([]Ticker, 0, len(raw))
	for _, r := range raw {
		price, _ := r.LastPrice.Float64()
		pct, _ := r.PriceChangePercent.Float64()
		out = append(out, Ticker{
			Symbol:           strings.ToLower(r.Symbol),
			Price:            price,
			PercentChange24h: pct,
			LastUpdated:      now,
		})
	}
	return out, nil
}

func (c *RESTClient) get(ctx context.Context, path string, q url.Values, out any) error {
	endpoint := c.baseURL + path + "?" + q.Encode()

	// Construct the GET request with context for timeout/cancel support
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var eb errorBody
		if json.Unmarshal(body, &eb) == nil {
			apiErr.Code, apiErr.Message = eb.Code, eb.Msg
		} else {
			apiErr.Message = string(body)
		}
		return apiErr
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
