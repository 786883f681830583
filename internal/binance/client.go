package binance

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"candle-signals/internal/candle"
	"candle-signals/internal/trace"
)

const klinesEndpoint = "/api/v3/klines"

// Client fetches klines from the Binance spot REST API
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	limiter    *RateLimiter
}

// NewClient creates a REST client. A zero timeout defaults to 10 seconds.
func NewClient(apiKey, baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		apiKey:     apiKey,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// SetRateLimiter gates every request through rl
func (c *Client) SetRateLimiter(rl *RateLimiter) {
	c.limiter = rl
}

// Fetch implements CandleSource. The payload is returned as-is; decoding the
// tuples is left to the candle package.
func (c *Client) Fetch(ctx context.Context, req KlineRequest) ([]candle.RawCandle, error) {
	if err := ValidateInterval(req.Interval); err != nil {
		return nil, err
	}

	ctx, span := trace.StartSpan(ctx, "binance.fetch_klines",
		attribute.String("symbol", req.Symbol),
		attribute.String("interval", req.Interval),
	)
	defer span.End()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, klinesEndpoint, req.Priority); err != nil {
			return nil, &SourceError{Symbol: req.Symbol, Err: fmt.Errorf("rate limiter: %w", err)}
		}
	}

	params := url.Values{}
	params.Set("symbol", req.Symbol)
	params.Set("interval", req.Interval)
	params.Set("limit", strconv.Itoa(req.limit()))
	if req.StartTime != nil {
		params.Set("startTime", strconv.FormatInt(*req.StartTime, 10))
	}
	if req.EndTime != nil {
		params.Set("endTime", strconv.FormatInt(*req.EndTime, 10))
	}

	endpoint := fmt.Sprintf("%s%s?%s", c.baseURL, klinesEndpoint, params.Encode())

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, &SourceError{Symbol: req.Symbol, Err: fmt.Errorf("error creating request: %w", err)}
	}
	if c.apiKey != "" {
		httpReq.Header.Set("X-MBX-APIKEY", c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		trace.RecordError(span, err)
		return nil, &SourceError{Symbol: req.Symbol, Err: fmt.Errorf("error fetching klines: %w", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &SourceError{Symbol: req.Symbol, Err: fmt.Errorf("error reading response: %w", err)}
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusTeapot {
		if c.limiter != nil {
			c.limiter.RecordRateLimitHit(retryAfter(resp.Header.Get("Retry-After")))
		}
	}

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("API error: %s", string(body))
		trace.RecordError(span, err)
		return nil, &SourceError{Symbol: req.Symbol, StatusCode: resp.StatusCode, Err: err}
	}

	// UseNumber keeps integer fields such as open time exact
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var raws []candle.RawCandle
	if err := dec.Decode(&raws); err != nil {
		return nil, &SourceError{Symbol: req.Symbol, Err: fmt.Errorf("error parsing klines: %w", err)}
	}
	if raws == nil {
		raws = []candle.RawCandle{}
	}

	span.SetAttributes(attribute.Int("klines", len(raws)))
	return raws, nil
}

func retryAfter(header string) time.Duration {
	secs, err := strconv.Atoi(header)
	if err != nil || secs <= 0 {
		return time.Minute
	}
	return time.Duration(secs) * time.Second
}
