package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"midiplayer/logger"
)

// HTTPFetcher fetches http(s) locations.
type HTTPFetcher struct {
	httpClient *http.Client
}

// NewHTTPFetcher creates a fetcher with the given request timeout.
func NewHTTPFetcher(timeout time.Duration) *HTTPFetcher {
	return &HTTPFetcher{
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// SetTimeout changes the request timeout.
func (f *HTTPFetcher) SetTimeout(timeout time.Duration) {
	f.httpClient.Timeout = timeout
}

// Fetch GETs location. Anything but 200 is a *StatusError.
func (f *HTTPFetcher) Fetch(ctx context.Context, location string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	start := time.Now()
	resp, err := f.httpClient.Do(req)
	if err != nil {
		logger.Warn("[HTTPFetcher.Fetch] request failed", logger.String("location", location), logger.ErrorField(err))
		return nil, fmt.Errorf("request %s: %w", location, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		logger.Warn("[HTTPFetcher.Fetch] unexpected status", logger.String("location", location), logger.Int("status", resp.StatusCode))
		return nil, &StatusError{Location: location, Code: resp.StatusCode}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body %s: %w", location, err)
	}

	logger.Debug("[HTTPFetcher.Fetch] fetched",
		logger.String("location", location),
		logger.Int("bytes", len(data)),
		logger.Duration("took", time.Since(start)))
	return data, nil
}
