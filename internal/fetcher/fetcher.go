// Package fetcher retrieves raw document content over HTTP with a
// bounded timeout, an enforced inter-request delay, and browser-like
// request headers for sites that challenge automated clients.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/phapluat-cloud/lexdex/internal/domain"
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) " +
	"AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36"

// Config holds fetcher settings.
type Config struct {
	Timeout   time.Duration
	MinDelay  time.Duration // rate-limit floor between requests
	MaxJitter time.Duration // random extra delay added to the floor
	UserAgent string
	Stealth   bool // send a realistic browser fingerprint
}

// Fetcher fetches document URLs sequentially. The limiter enforces the
// politeness floor across calls; jitter is added per request on top.
type Fetcher struct {
	client    *http.Client
	limiter   *rate.Limiter
	maxJitter time.Duration
	userAgent string
	stealth   bool
	logger    *zap.Logger
}

// New creates a fetcher. A zero MinDelay disables the rate floor.
func New(cfg Config, logger *zap.Logger) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.MinDelay > 0 {
		limiter = rate.NewLimiter(rate.Every(cfg.MinDelay), 1)
	}
	return &Fetcher{
		client:    &http.Client{Timeout: cfg.Timeout},
		limiter:   limiter,
		maxJitter: cfg.MaxJitter,
		userAgent: cfg.UserAgent,
		stealth:   cfg.Stealth,
		logger:    logger,
	}
}

// Fetch retrieves one URL. Timeouts and non-200 responses come back
// wrapped in domain.ErrFetch so the pipeline can count them as
// per-document failures without aborting the run.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate wait: %w", err)
	}
	if err := f.sleepJitter(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request for %s: %w", url, domain.ErrFetch)
	}
	f.setHeaders(req)

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return nil, fmt.Errorf("timeout fetching %s: %w", url, domain.ErrFetch)
		}
		return nil, fmt.Errorf("fetch %s: %v: %w", url, err, domain.ErrFetch)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: status %d: %w", url, resp.StatusCode, domain.ErrFetch)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body of %s: %w", url, domain.ErrFetch)
	}

	f.logger.Debug("fetched document",
		zap.String("url", url),
		zap.Int("bytes", len(body)),
		zap.Duration("latency", time.Since(start)),
	)
	return body, nil
}

func (f *Fetcher) sleepJitter(ctx context.Context) error {
	if f.maxJitter <= 0 {
		return nil
	}
	delay := time.Duration(rand.Int64N(int64(f.maxJitter)))
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(delay):
		return nil
	}
}

func (f *Fetcher) setHeaders(req *http.Request) {
	req.Header.Set("User-Agent", f.userAgent)
	if !f.stealth {
		return
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")
	req.Header.Set("Accept-Language", "vi-VN,vi;q=0.9,en-US;q=0.8,en;q=0.7")
	req.Header.Set("Sec-Ch-Ua", `"Not/A)Brand";v="8", "Chromium";v="126", "Google Chrome";v="126"`)
	req.Header.Set("Sec-Ch-Ua-Mobile", "?0")
	req.Header.Set("Sec-Ch-Ua-Platform", `"Windows"`)
	req.Header.Set("Sec-Fetch-Dest", "document")
	req.Header.Set("Sec-Fetch-Mode", "navigate")
	req.Header.Set("Sec-Fetch-Site", "none")
	req.Header.Set("Upgrade-Insecure-Requests", "1")
}

func isTimeout(err error) bool {
	var ne interface{ Timeout() bool }
	return errors.As(err, &ne) && ne.Timeout()
}
