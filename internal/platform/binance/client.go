package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/quantpulse/pulsebot/internal/domain"
)

// RESTClient is the client for the Binance spot market data REST API. All
// endpoints it touches are public and unauthenticated.
type RESTClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewRESTClient creates a new REST client.
//
// baseURL is the API root, e.g. "https://api.binance.com".
func NewRESTClient(baseURL string) *RESTClient {
	return &RESTClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Klines returns up to limit candlesticks for the symbol at the given
// interval ("1m", "5m", ...), oldest first.
func (c *RESTClient) Klines(ctx context.Context, symbol, interval string, limit int) ([]Kline, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("interval", interval)
	params.Set("limit", strconv.Itoa(limit))

	path := "/api/v3/klines?" + params.Encode()

	body, err := c.doGet(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("binance: get klines %s: %w", symbol, err)
	}

	var klines []Kline
	if err := json.Unmarshal(body, &klines); err != nil {
		return nil, fmt.Errorf("binance: decode klines %s: %w", symbol, err)
	}
	return klines, nil
}

// TickerPrice returns the latest traded price for the symbol.
func (c *RESTClient) TickerPrice(ctx context.Context, symbol string) (float64, error) {
	params := url.Values{}
	params.Set("symbol", symbol)

	path := "/api/v3/ticker/price?" + params.Encode()

	body, err := c.doGet(ctx, path)
	if err != nil {
		return 0, fmt.Errorf("binance: get ticker price %s: %w", symbol, err)
	}

	var ticker tickerPriceResponse
	if err := json.Unmarshal(body, &ticker); err != nil {
		return 0, fmt.Errorf("binance: decode ticker price %s: %w", symbol, err)
	}

	price, err := strconv.ParseFloat(ticker.Price, 64)
	if err != nil {
		return 0, fmt.Errorf("binance: parse ticker price %q: %w", ticker.Price, err)
	}
	return price, nil
}

// doGet sends an unauthenticated GET request to the Binance API.
func (c *RESTClient) doGet(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if err := checkHTTPStatus(resp.StatusCode, body); err != nil {
		return nil, err
	}

	return body, nil
}

// checkHTTPStatus maps non-2xx status codes to appropriate domain errors.
// Binance signals bans with 418 alongside the usual 429.
func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	bodyStr := string(body)
	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, bodyStr)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, bodyStr)
	case http.StatusTooManyRequests, http.StatusTeapot:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, bodyStr)
	default:
		return fmt.Errorf("HTTP %d: %s", statusCode, bodyStr)
	}
}
