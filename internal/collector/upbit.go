package collector

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

	"TradeSentinel/internal/model"
)

const (
	upbitBaseURL  = "https://api.upbit.com"
	upbitPageSize = 200
	upbitTimeFmt  = "2006-01-02T15:04:05"
)

// UpbitFetcher implements Fetcher using the Upbit public candle API.
// Requests are paged backwards from now using the "to" parameter.
type UpbitFetcher struct {
	BaseURL string
	Client  *http.Client
	// Pause is waited between pages to stay under the rate limit.
	Pause time.Duration
	now   func() time.Time
}

// NewUpbitFetcher creates a new fetcher with optional proxy support.
func NewUpbitFetcher(proxyURL string) *UpbitFetcher {
	return &UpbitFetcher{
		BaseURL: upbitBaseURL,
		Client:  newHTTPClient(proxyURL),
		Pause:   200 * time.Millisecond,
		now:     time.Now,
	}
}

func (f *UpbitFetcher) Name() string { return "upbit" }

// upbitCandle is the JSON shape of one Upbit candle.
type upbitCandle struct {
	Market    string  `json:"market"`
	TimeUTC   string  `json:"candle_date_time_utc"`
	Open      float64 `json:"opening_price"`
	High      float64 `json:"high_price"`
	Low       float64 `json:"low_price"`
	Close     float64 `json:"trade_price"`
	Volume    float64 `json:"candle_acc_trade_volume"`
	Timestamp int64   `json:"timestamp"`
}

// upbitPath maps an interval such as "5m", "minute5", "1d" or "week" to its
// candle endpoint.
func upbitPath(interval string) (string, error) {
	iv := strings.ToLower(strings.TrimSpace(interval))
	switch iv {
	case "day", "days", "1d", "d":
		return "/v1/candles/days", nil
	case "week", "weeks", "1w", "w":
		return "/v1/candles/weeks", nil
	case "month", "months", "1mo":
		return "/v1/candles/months", nil
	}
	iv = strings.TrimPrefix(iv, "minute")
	iv = strings.TrimSuffix(iv, "m")
	n, err := strconv.Atoi(iv)
	if err != nil {
		return "", fmt.Errorf("unsupported upbit interval %q", interval)
	}
	switch n {
	case 1, 3, 5, 10, 15, 30, 60, 240:
		return fmt.Sprintf("/v1/candles/minutes/%d", n), nil
	}
	return "", fmt.Errorf("unsupported upbit minute unit %d", n)
}

func (f *UpbitFetcher) FetchBars(ctx context.Context, symbol, interval string, count int) ([]model.Bar, error) {
	if count <= 0 {
		return nil, fmt.Errorf("count must be positive, got %d", count)
	}
	path, err := upbitPath(interval)
	if err != nil {
		return nil, err
	}

	now := time.Now
	if f.now != nil {
		now = f.now
	}
	to := now().UTC()
	collected := make([]model.Bar, 0, count)
	for len(collected) < count {
		size := count - len(collected)
		if size > upbitPageSize {
			size = upbitPageSize
		}
		page, err := f.fetchPage(ctx, path, symbol, size, to)
		if err != nil {
			return nil, err
		}
		if len(page) == 0 {
			break
		}
		// Pages arrive newest first; drop any candle repeated across the boundary.
		for _, b := range page {
			if n := len(collected); n > 0 && !b.Time.Before(collected[n-1].Time) {
				continue
			}
			if len(collected) < count {
				collected = append(collected, b)
			}
		}
		oldest := page[len(page)-1].Time
		if !oldest.Before(to) {
			break
		}
		to = oldest
		if len(collected) < count && f.Pause > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(f.Pause):
			}
		}
	}

	for i, j := 0, len(collected)-1; i < j; i, j = i+1, j-1 {
		collected[i], collected[j] = collected[j], collected[i]
	}
	return collected, nil
}

func (f *UpbitFetcher) fetchPage(ctx context.Context, path, symbol string, size int, to time.Time) ([]model.Bar, error) {
	q := url.Values{}
	q.Set("market", symbol)
	q.Set("count", strconv.Itoa(size))
	q.Set("to", to.UTC().Format(upbitTimeFmt)+"Z")
	endpoint := strings.TrimRight(f.BaseURL, "/") + path + "?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upbit fetch: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("upbit: status %d, body: %s", resp.StatusCode, string(body))
	}

	var candles []upbitCandle
	if err := json.NewDecoder(resp.Body).Decode(&candles); err != nil {
		return nil, fmt.Errorf("upbit decode: %w", err)
	}
	bars := make([]model.Bar, 0, len(candles))
	for _, c := range candles {
		t, err := time.ParseInLocation(upbitTimeFmt, c.TimeUTC, time.UTC)
		if err != nil {
			return nil, fmt.Errorf("upbit candle time %q: %w", c.TimeUTC, err)
		}
		bars = append(bars, model.Bar{
			Time:   t,
			Open:   c.Open,
			High:   c.High,
			Low:    c.Low,
			Close:  c.Close,
			Volume: c.Volume,
		})
	}
	return bars, nil
}
