// Package collyfetch implements the page fetcher using gocolly.
package collyfetch

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/seolens/ai-visibility/internal/analysis"
	"github.com/seolens/ai-visibility/internal/fetch"
)

// Config controls collector behavior.
type Config struct {
	UserAgent    string
	Timeout      time.Duration
	MaxBodyBytes int
}

// Fetcher loads the target page plus the auxiliary resources checks rely on:
// robots.txt, llms.txt, and sitemap.xml. The auxiliary probes are
// best-effort; only the main page fetch can fail the job.
type Fetcher struct {
	cfg    Config
	base   *colly.Collector
	logger *zap.Logger
}

// New builds a Fetcher.
func New(cfg Config, logger *zap.Logger) *Fetcher {
	if cfg.UserAgent == "" {
		cfg.UserAgent = "aivis/1.0 (+https://seolens.dev/bot)"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 5 << 20
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c := colly.NewCollector(colly.Async(false))
	// The analyzer inspects robots.txt itself; the fetch must not be
	// filtered by it.
	c.IgnoreRobotsTxt = true
	c.MaxBodySize = cfg.MaxBodyBytes
	c.WithTransport(newHTTPTransport())

	return &Fetcher{cfg: cfg, base: c, logger: logger}
}

// FetchPage loads the page and assembles the PageContext shared by all
// checks.
func (f *Fetcher) FetchPage(ctx context.Context, rawURL string) (*analysis.PageContext, error) {
	target, err := normalizeURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", fetch.ErrUnreachable, err)
	}
	baseURL := target.Scheme + "://" + target.Host

	start := time.Now()
	page, err := f.get(ctx, target.String())
	if err != nil {
		return nil, err
	}
	loadTime := time.Since(start)

	pageCtx := &analysis.PageContext{
		URL:        target.String(),
		BaseURL:    baseURL,
		StatusCode: page.status,
		Headers:    page.headers,
		Body:       page.body,
		LoadTime:   loadTime,
	}

	// Auxiliary probes never fail the fetch; absence is signal, not error.
	robots, err := f.get(ctx, baseURL+"/robots.txt")
	if err == nil && robots.status == http.StatusOK {
		pageCtx.RobotsTxt = robots.body
	} else if err != nil {
		f.logger.Debug("robots.txt probe failed", zap.String("base_url", baseURL), zap.Error(err))
	}
	if llms, err := f.get(ctx, baseURL+"/llms.txt"); err == nil && llms.status == http.StatusOK {
		pageCtx.LLMsTxt = true
	}
	if sitemap, err := f.get(ctx, baseURL+"/sitemap.xml"); err == nil && sitemap.status == http.StatusOK {
		pageCtx.Sitemap = true
	}
	return pageCtx, nil
}

type response struct {
	status  int
	headers http.Header
	body    []byte
}

// get executes one GET through a collector clone, honoring ctx.
func (f *Fetcher) get(ctx context.Context, target string) (*response, error) {
	collector := f.base.Clone()
	collector.UserAgent = f.cfg.UserAgent
	collector.SetRequestTimeout(f.cfg.Timeout)

	var (
		result   *response
		fetchErr error
	)
	collector.OnResponse(func(r *colly.Response) {
		result = &response{
			status:  r.StatusCode,
			headers: r.Headers.Clone(),
			body:    append([]byte(nil), r.Body...),
		}
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode > 0 {
			result = &response{
				status:  r.StatusCode,
				headers: http.Header{},
				body:    append([]byte(nil), r.Body...),
			}
			if r.Headers != nil {
				result.headers = r.Headers.Clone()
			}
		}
		fetchErr = err
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(target)
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: fetch canceled: %v", fetch.ErrUnreachable, ctx.Err())
	case visitErr := <-done:
		switch {
		case result != nil && isBlockedStatus(result.status):
			return nil, fmt.Errorf("%w: status %d from %s", fetch.ErrBlocked, result.status, target)
		case result != nil:
			return result, nil
		case fetchErr != nil:
			return nil, fmt.Errorf("%w: %v", fetch.ErrUnreachable, fetchErr)
		case visitErr != nil:
			return nil, fmt.Errorf("%w: %v", fetch.ErrUnreachable, visitErr)
		default:
			return nil, fmt.Errorf("%w: no response from %s", fetch.ErrUnreachable, target)
		}
	}
}

func isBlockedStatus(status int) bool {
	return status == http.StatusUnauthorized || status == http.StatusForbidden
}

// normalizeURL fills in a missing scheme and validates the host.
func normalizeURL(rawURL string) (*url.URL, error) {
	trimmed := strings.TrimSpace(rawURL)
	if trimmed == "" {
		return nil, fmt.Errorf("empty url")
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "https://" + trimmed
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("parse url %q: %w", rawURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("url %q has no host", rawURL)
	}
	return u, nil
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
		IdleConnTimeout:       90 * time.Second,
	}
}
