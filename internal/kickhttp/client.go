package kickhttp

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// Client wraps an *http.Client with the headers Kick and 7TV expect from a
// browser, rotating user agents, optional proxying, and request pacing so
// bursts of lookups do not trip upstream rate limits.
type Client struct {
	inner   *http.Client
	limiter *rate.Limiter

	mu    sync.Mutex
	proxy *url.URL

	counter atomic.Uint64
}

type Options struct {
	ProxyURL string
	Timeout  time.Duration
	PaceRPS  float64
}

var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:109.0) Gecko/20100101 Firefox/121.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
}

func New(opts Options) (*Client, error) {
	c := &Client{}

	if opts.ProxyURL != "" {
		u, err := url.Parse(opts.ProxyURL)
		if err != nil {
			return nil, fmt.Errorf("kickhttp: parse proxy url: %w", err)
		}
		c.proxy = u
	}

	rps := opts.PaceRPS
	if rps <= 0 {
		rps = 2.0
	}
	c.limiter = rate.NewLimiter(rate.Limit(rps), 4)

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = c.proxyFunc

	c.inner = &http.Client{
		Timeout:   timeout,
		Transport: &headerTransport{client: c, base: transport},
	}
	return c, nil
}

// HTTPClient returns the configured client for injection into resolvers.
func (c *Client) HTTPClient() *http.Client {
	return c.inner
}

// SetProxy swaps the outbound proxy at runtime. An empty URL disables it.
func (c *Client) SetProxy(proxyURL string) error {
	var u *url.URL
	if strings.TrimSpace(proxyURL) != "" {
		parsed, err := url.Parse(strings.TrimSpace(proxyURL))
		if err != nil {
			return fmt.Errorf("kickhttp: parse proxy url: %w", err)
		}
		u = parsed
	}
	c.mu.Lock()
	c.proxy = u
	c.mu.Unlock()
	return nil
}

func (c *Client) proxyFunc(*http.Request) (*url.URL, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.proxy, nil
}

func (c *Client) nextUserAgent() string {
	n := c.counter.Add(1)
	return userAgents[int(n)%len(userAgents)]
}

// headerTransport paces requests and fills in browser-like headers that the
// caller has not set explicitly.
type headerTransport struct {
	client *Client
	base   http.RoundTripper
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.client.limiter.Wait(req.Context()); err != nil {
		return nil, err
	}

	clone := req.Clone(req.Context())
	if clone.Header.Get("User-Agent") == "" {
		clone.Header.Set("User-Agent", t.client.nextUserAgent())
	}
	if clone.Header.Get("Accept") == "" {
		clone.Header.Set("Accept", "application/json, text/plain, */*")
	}
	if clone.Header.Get("Accept-Language") == "" {
		clone.Header.Set("Accept-Language", "en-US,en;q=0.9")
	}
	return t.base.RoundTrip(clone)
}
