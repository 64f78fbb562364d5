// Package fetch implements the bounded-concurrency fetch executor.
package fetch

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/bookwatch/internal/catalog"
)

// CollyConfig controls collector behavior.
type CollyConfig struct {
	UserAgent string
	Timeout   time.Duration
}

// CollyFetcher implements catalog.Fetcher using a Colly collector. Each fetch
// clones the base collector so per-request state never leaks between calls.
// Non-2xx responses are returned as pages, not errors; classification belongs
// to the Executor.
type CollyFetcher struct {
	cfg           CollyConfig
	baseCollector *colly.Collector
}

// NewCollyFetcher builds a CollyFetcher.
func NewCollyFetcher(cfg CollyConfig) *CollyFetcher {
	c := colly.NewCollector(colly.Async(false))
	c.AllowURLRevisit = true
	c.IgnoreRobotsTxt = true
	if cfg.UserAgent != "" {
		c.UserAgent = cfg.UserAgent
	}
	c.WithTransport(newHTTPTransport())

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	c.SetRequestTimeout(timeout)

	return &CollyFetcher{
		cfg:           cfg,
		baseCollector: c,
	}
}

// Fetch executes a single HTTP GET. A response with any status code yields a
// Page; only transport-level failures yield an error.
func (f *CollyFetcher) Fetch(ctx context.Context, rawURL string) (catalog.Page, error) {
	collector := f.baseCollector.Clone()

	var (
		once     sync.Once
		page     catalog.Page
		fetchErr error
	)
	start := time.Now()

	collector.OnResponse(func(r *colly.Response) {
		once.Do(func() {
			page = catalog.Page{
				URL:        rawURL,
				FinalURL:   r.Request.URL.String(),
				StatusCode: r.StatusCode,
				Body:       append([]byte(nil), r.Body...),
				Duration:   time.Since(start),
			}
		})
	})

	collector.OnError(func(r *colly.Response, err error) {
		once.Do(func() {
			if r != nil && r.StatusCode > 0 {
				// HTTP-level failure: surface the status so the executor can
				// classify not-found vs transient.
				page = catalog.Page{
					URL:        rawURL,
					StatusCode: r.StatusCode,
					Body:       append([]byte(nil), r.Body...),
					Duration:   time.Since(start),
				}
				return
			}
			fetchErr = err
		})
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(rawURL)
	}()

	select {
	case <-ctx.Done():
		return catalog.Page{}, ctx.Err()
	case err := <-done:
		// Colly surfaces non-2xx statuses as errors from Visit as well; if
		// the OnError hook captured a real HTTP response, prefer it so the
		// executor can classify by status code.
		if page.StatusCode > 0 {
			return page, nil
		}
		if err != nil {
			return catalog.Page{}, fmt.Errorf("visit %s: %w", rawURL, err)
		}
	}

	if fetchErr != nil {
		return catalog.Page{}, fmt.Errorf("fetch %s: %w", rawURL, fetchErr)
	}
	if page.StatusCode == 0 {
		return catalog.Page{}, fmt.Errorf("fetch %s: no response produced", rawURL)
	}
	return page, nil
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   32,
		IdleConnTimeout:       90 * time.Second,
		ForceAttemptHTTP2:     true,
	}
}
