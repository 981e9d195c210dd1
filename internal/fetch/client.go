// Package fetch provides the HTTP capability sources use to reach upstream
// feeds and APIs: identifying headers, politeness delays, retries on
// transient failures, and a conditional-request response cache.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const (
	DefaultTimeout     = 30 * time.Second
	DefaultMinInterval = time.Second
	DefaultMaxRetries  = 3
	DefaultRetryDelay  = time.Second
	DefaultCacheTTL    = 5 * time.Minute
	maxBodyBytes       = 32 << 20
)

var (
	// ErrUnavailable marks transport failures and 5xx responses.
	ErrUnavailable = errors.New("source unavailable")
	// ErrClient marks 4xx responses other than 429.
	ErrClient = errors.New("request rejected")
)

// Request describes one fetch.
type Request struct {
	Method      string // defaults to GET
	URI         string
	Header      http.Header
	BypassCache bool
}

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Body       []byte
	Header     http.Header
	FromCache  bool // served without a network request
}

// Err classifies the status: nil for 2xx, 304 and 429, ErrUnavailable for
// 5xx, ErrClient for other 4xx.
func (r *Response) Err() error {
	switch {
	case r.StatusCode == http.StatusNotModified, r.StatusCode == http.StatusTooManyRequests:
		return nil
	case r.StatusCode >= 500:
		return fmt.Errorf("%w: HTTP %d", ErrUnavailable, r.StatusCode)
	case r.StatusCode >= 400:
		return fmt.Errorf("%w: HTTP %d", ErrClient, r.StatusCode)
	case r.StatusCode >= 200 && r.StatusCode < 300:
		return nil
	}
	return fmt.Errorf("%w: unexpected HTTP %d", ErrUnavailable, r.StatusCode)
}

// Fetcher is the capability sources consume.
type Fetcher interface {
	Fetch(ctx context.Context, req Request) (*Response, error)
}

// Config is fixed at construction; every request carries its identity
// headers.
type Config struct {
	UserAgent   string
	From        string
	Timeout     time.Duration
	MinInterval time.Duration // per host, between requests
	MaxRetries  int
	RetryDelay  time.Duration
	CacheTTL    time.Duration
}

type cacheEntry struct {
	status       int
	body         []byte
	header       http.Header
	etag         string
	lastModified string
	storedAt     time.Time
}

// Client implements Fetcher over net/http.
type Client struct {
	cfg      Config
	header   http.Header
	http     *http.Client
	executor failsafe.Executor[*Response]
	log      logrus.FieldLogger

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	cache    map[string]cacheEntry
}

// nowFunc is overridable in tests.
var nowFunc = time.Now

// NewClient validates cfg and builds a client.
func NewClient(cfg Config, log logrus.FieldLogger) (*Client, error) {
	if strings.TrimSpace(cfg.UserAgent) == "" {
		return nil, errors.New("fetch: user agent is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	if log == nil {
		log = logrus.StandardLogger()
	}

	header := http.Header{}
	header.Set("User-Agent", cfg.UserAgent)
	if cfg.From != "" {
		header.Set("From", cfg.From)
	}

	retry := retrypolicy.NewBuilder[*Response]().
		HandleIf(func(resp *Response, err error) bool {
			if err != nil {
				return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
			}
			return resp != nil && resp.StatusCode >= 500
		}).
		WithBackoff(cfg.RetryDelay, 8*cfg.RetryDelay).
		WithMaxRetries(cfg.MaxRetries).
		ReturnLastFailure().
		Build()

	return &Client{
		cfg:      cfg,
		header:   header,
		http:     &http.Client{Timeout: cfg.Timeout},
		executor: failsafe.With(retry),
		log:      log,
		limiters: make(map[string]*rate.Limiter),
		cache:    make(map[string]cacheEntry),
	}, nil
}

// Fetch performs req. Non-2xx statuses are returned as responses, not
// errors; only transport failures produce an error.
func (c *Client) Fetch(ctx context.Context, req Request) (*Response, error) {
	u, err := url.Parse(req.URI)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("fetch: invalid uri %q", req.URI)
	}
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	key := method + " " + req.URI
	cacheable := method == http.MethodGet

	entry, cached := c.lookup(key)
	if cacheable && cached && !req.BypassCache && c.cfg.CacheTTL > 0 && nowFunc().Sub(entry.storedAt) < c.cfg.CacheTTL {
		return entry.response(entry.status), nil
	}

	if err := c.wait(ctx, u.Host); err != nil {
		return nil, err
	}

	resp, err := c.executor.WithContext(ctx).Get(func() (*Response, error) {
		return c.do(ctx, method, req, cacheable && cached, entry)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnavailable, req.URI, err)
	}

	switch {
	case resp.StatusCode == http.StatusNotModified && cached:
		entry.storedAt = nowFunc()
		c.store(key, entry)
		out := entry.response(http.StatusNotModified)
		out.Header = resp.Header
		out.FromCache = false
		return out, nil
	case resp.StatusCode == http.StatusOK && cacheable:
		c.store(key, cacheEntry{
			status:       resp.StatusCode,
			body:         resp.Body,
			header:       resp.Header.Clone(),
			etag:         resp.Header.Get("ETag"),
			lastModified: resp.Header.Get("Last-Modified"),
			storedAt:     nowFunc(),
		})
	}

	c.log.WithFields(logrus.Fields{"uri": req.URI, "status": resp.StatusCode}).Debug("fetched")
	return resp, nil
}

func (c *Client) do(ctx context.Context, method string, req Request, conditional bool, entry cacheEntry) (*Response, error) {
	hreq, err := http.NewRequestWithContext(ctx, method, req.URI, nil)
	if err != nil {
		return nil, err
	}
	for k, v := range c.header {
		hreq.Header[k] = append([]string(nil), v...)
	}
	for k, v := range req.Header {
		hreq.Header[k] = append([]string(nil), v...)
	}
	if conditional {
		if entry.etag != "" && hreq.Header.Get("If-None-Match") == "" {
			hreq.Header.Set("If-None-Match", entry.etag)
		}
		if entry.lastModified != "" && hreq.Header.Get("If-Modified-Since") == "" {
			hreq.Header.Set("If-Modified-Since", entry.lastModified)
		}
	}

	hresp, err := c.http.Do(hreq)
	if err != nil {
		return nil, err
	}
	defer func() { _ = hresp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(hresp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return &Response{
		StatusCode: hresp.StatusCode,
		Body:       body,
		Header:     hresp.Header,
	}, nil
}

func (c *Client) wait(ctx context.Context, host string) error {
	if c.cfg.MinInterval <= 0 {
		return nil
	}
	c.mu.Lock()
	lim, ok := c.limiters[host]
	if !ok {
		lim = rate.NewLimiter(rate.Every(c.cfg.MinInterval), 1)
		c.limiters[host] = lim
	}
	c.mu.Unlock()
	return lim.Wait(ctx)
}

func (c *Client) lookup(key string) (cacheEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.cache[key]
	return e, ok
}

func (c *Client) store(key string, e cacheEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache[key] = e
}

func (e cacheEntry) response(status int) *Response {
	h := e.header.Clone()
	h.Del("Retry-After")
	h.Del("Backoff")
	return &Response{
		StatusCode: status,
		Body:       e.body,
		Header:     h,
		FromCache:  true,
	}
}
