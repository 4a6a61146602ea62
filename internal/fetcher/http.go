package fetcher

import (
	"context"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/spec-search/internal/model"
	"github.com/sells-group/spec-search/internal/resilience"
)

const (
	defaultUserAgent = "spec-search/1.0"
	defaultMediaType = "application/pdf"
	defaultFilename  = "document.pdf"
)

// HTTPOptions configures the HTTP fetcher.
type HTTPOptions struct {
	UserAgent  string
	Timeout    time.Duration
	MaxRetries int
	// MaxBytes caps the body size. Zero means 50MB.
	MaxBytes int64
	// HostRate is the starting request rate per host, per second.
	HostRate float64
}

// AdaptiveLimiter wraps a rate.Limiter with adaptive rate adjustment.
// On success it increases the rate by 20% (up to 2x initial).
// On 429 it halves the rate (down to initial/4 minimum).
type AdaptiveLimiter struct {
	mu          sync.Mutex
	limiter     *rate.Limiter
	maxRate     rate.Limit
	minRate     rate.Limit
	currentRate rate.Limit
}

// NewAdaptiveLimiter creates an adaptive rate limiter that auto-tunes.
func NewAdaptiveLimiter(initialRate rate.Limit, burst int) *AdaptiveLimiter {
	return &AdaptiveLimiter{
		limiter:     rate.NewLimiter(initialRate, burst),
		maxRate:     initialRate * 2,
		minRate:     initialRate / 4,
		currentRate: initialRate,
	}
}

// Wait blocks until the limiter allows an event.
func (a *AdaptiveLimiter) Wait(ctx context.Context) error {
	return a.limiter.Wait(ctx)
}

// OnSuccess increases the rate by 20%, up to 2x initial.
func (a *AdaptiveLimiter) OnSuccess() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.set(min(a.currentRate*1.2, a.maxRate))
}

// OnRateLimit halves the rate on 429 responses.
func (a *AdaptiveLimiter) OnRateLimit() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.set(max(a.currentRate*0.5, a.minRate))
	zap.L().Warn("fetcher: reducing rate after 429",
		zap.Float64("new_rate", float64(a.currentRate)),
	)
}

func (a *AdaptiveLimiter) set(r rate.Limit) {
	a.currentRate = r
	a.limiter.SetLimit(r)
}

// Limit returns the current rate limit.
func (a *AdaptiveLimiter) Limit() rate.Limit {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.currentRate
}

// HTTPFetcher implements Fetcher using net/http with retry and per-host
// rate limiting.
type HTTPFetcher struct {
	client *http.Client
	opts   HTTPOptions

	mu       sync.Mutex
	limiters map[string]*AdaptiveLimiter
}

// NewHTTPFetcher creates a new HTTPFetcher with the given options.
func NewHTTPFetcher(opts HTTPOptions) *HTTPFetcher {
	if opts.Timeout == 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = 3
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = 50 << 20
	}
	if opts.HostRate <= 0 {
		opts.HostRate = 2
	}
	return &HTTPFetcher{
		client: &http.Client{
			Timeout: opts.Timeout,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				MaxConnsPerHost:     20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		opts:     opts,
		limiters: make(map[string]*AdaptiveLimiter),
	}
}

// limiterFor returns the limiter for host, creating it on first use.
func (f *HTTPFetcher) limiterFor(host string) *AdaptiveLimiter {
	f.mu.Lock()
	defer f.mu.Unlock()
	lim, ok := f.limiters[host]
	if !ok {
		lim = NewAdaptiveLimiter(rate.Limit(f.opts.HostRate), 1)
		f.limiters[host] = lim
	}
	return lim
}

// Fetch implements Fetcher.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) (model.Document, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return model.Document{}, eris.Wrap(err, "fetcher: parse url")
	}
	lim := f.limiterFor(u.Host)

	retry := resilience.DefaultRetry("fetch_document")
	retry.MaxAttempts = f.opts.MaxRetries
	doc, err := resilience.Retry(ctx, retry, func(ctx context.Context) (model.Document, error) {
		if err := lim.Wait(ctx); err != nil {
			return model.Document{}, eris.Wrap(err, "fetcher: rate limiter wait")
		}
		return f.get(ctx, u, lim)
	})
	if err != nil {
		return model.Document{}, eris.Wrapf(err, "fetcher: download %s", rawURL)
	}

	zap.L().Debug("fetcher: downloaded document",
		zap.String("url", rawURL),
		zap.String("media_type", doc.MediaType),
		zap.Int("bytes", len(doc.Data)),
	)
	return doc, nil
}

func (f *HTTPFetcher) get(ctx context.Context, u *url.URL, lim *AdaptiveLimiter) (model.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return model.Document{}, eris.Wrap(err, "create request")
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return model.Document{}, resilience.Transient(eris.Wrap(err, "send request"), 0)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode == http.StatusTooManyRequests {
		lim.OnRateLimit()
	}
	if resp.StatusCode != http.StatusOK {
		err := eris.Errorf("unexpected status %d", resp.StatusCode)
		if resilience.RetryableStatus(resp.StatusCode) {
			return model.Document{}, resilience.Transient(err, resp.StatusCode)
		}
		return model.Document{}, err
	}
	lim.OnSuccess()

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.opts.MaxBytes+1))
	if err != nil {
		return model.Document{}, resilience.Transient(eris.Wrap(err, "read body"), 0)
	}
	if int64(len(data)) > f.opts.MaxBytes {
		return model.Document{}, eris.Errorf("document exceeds %d bytes", f.opts.MaxBytes)
	}

	name := filename(u, resp.Header.Get("Content-Disposition"))
	return model.Document{
		Filename:  name,
		MediaType: mediaType(resp.Header.Get("Content-Type"), name),
		Data:      data,
	}, nil
}

// filename prefers the Content-Disposition name, then the last URL path
// segment.
func filename(u *url.URL, disposition string) string {
	if _, params, err := mime.ParseMediaType(disposition); err == nil && params["filename"] != "" {
		return path.Base(params["filename"])
	}
	if base := path.Base(u.Path); base != "." && base != "/" {
		return base
	}
	return defaultFilename
}

// mediaType trusts a specific Content-Type, falling back to the file
// extension and then to PDF. Servers often label datasheets
// application/octet-stream.
func mediaType(contentType, name string) string {
	if mt, _, err := mime.ParseMediaType(contentType); err == nil && mt != "application/octet-stream" && mt != "binary/octet-stream" {
		return mt
	}
	if ext := path.Ext(name); ext != "" {
		if mt, _, err := mime.ParseMediaType(mime.TypeByExtension(strings.ToLower(ext))); err == nil {
			return mt
		}
	}
	return defaultMediaType
}
