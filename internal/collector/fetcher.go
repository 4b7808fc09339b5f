package collector

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"TradeSentinel/internal/model"
)

// Fetcher defines the interface for fetching candles.
type Fetcher interface {
	// FetchBars returns up to count of the most recent bars, oldest first.
	FetchBars(ctx context.Context, symbol, interval string, count int) ([]model.Bar, error)
	Name() string
}

// newHTTPClient builds a client that optionally routes through proxyURL.
func newHTTPClient(proxyURL string) *http.Client {
	transport := &http.Transport{Proxy: http.ProxyFromEnvironment}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	return &http.Client{
		Timeout:   30 * time.Second,
		Transport: transport,
	}
}
