package graph

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/sheetflow/sheetflow/pkg/sheetflow"
)

const (
	pageTimeout     = 60 * time.Second
	downloadTimeout = 300 * time.Second

	// tokenRefreshMargin forces a refresh slightly before the reported
	// expiry so in-flight requests never carry a token about to lapse.
	tokenRefreshMargin = 2 * time.Minute
)

// Client talks to the Graph drive API. It caches the bearer token until
// shortly before expiry and rate-limits outgoing requests.
// Safe for concurrent use, though the watcher drives it single-threaded.
type Client struct {
	httpClient *http.Client
	tokens     sheetflow.TokenProvider
	limiter    *rate.Limiter
	logger     sheetflow.Logger

	mu      sync.Mutex
	token   string
	expires time.Time
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient substitutes the underlying HTTP client (tests).
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

// WithRateLimit overrides the default request rate limit.
func WithRateLimit(perSecond float64, burst int) ClientOption {
	return func(c *Client) { c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst) }
}

// NewClient creates a Graph client. Panics if tokens or logger is nil.
func NewClient(tokens sheetflow.TokenProvider, logger sheetflow.Logger, opts ...ClientOption) *Client {
	if tokens == nil {
		panic("token provider cannot be nil")
	}
	if logger == nil {
		panic("logger cannot be nil")
	}

	c := &Client{
		httpClient: &http.Client{},
		tokens:     tokens,
		// Graph allows far more, this is a conservative default.
		limiter: rate.NewLimiter(rate.Limit(8), 10),
		logger:  logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchPage retrieves and decodes one listing or delta page.
func (c *Client) FetchPage(ctx context.Context, url string) (Page, error) {
	body, err := c.get(ctx, url, pageTimeout)
	if err != nil {
		return Page{}, err
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return Page{}, fmt.Errorf("read page body: %w", err)
	}

	page, err := decodePage(data)
	if err != nil {
		return Page{}, fmt.Errorf("decode page: %w", err)
	}
	return page, nil
}

// Fetch implements sheetflow.Downloader: it streams sourceRef to a scoped
// temporary file and atomically renames it to localPath on completion.
func (c *Client) Fetch(ctx context.Context, sourceRef, localPath string) error {
	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return fmt.Errorf("create download dir: %w", err)
	}

	body, err := c.get(ctx, sourceRef, downloadTimeout)
	if err != nil {
		return err
	}
	defer body.Close()

	tmp := localPath + ".part"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("create download temp: %w", err)
	}

	if _, err := io.Copy(f, body); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("download %s: %w", sourceRef, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("finish download temp: %w", err)
	}

	if err := os.Rename(tmp, localPath); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("finalize download: %w", err)
	}
	return nil
}

// get issues an authorized GET and returns the response body on 2xx.
func (c *Client) get(ctx context.Context, url string, timeout time.Duration) (io.ReadCloser, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	bearer, err := c.bearer(ctx)
	if err != nil {
		return nil, err
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+bearer)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("GET %s: %w", url, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("GET %s: unexpected status %s", url, resp.Status)
	}

	return &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}, nil
}

// bearer returns a cached token, refreshing through the provider when the
// cached one is within the refresh margin of expiry.
func (c *Client) bearer(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && time.Until(c.expires) > tokenRefreshMargin {
		return c.token, nil
	}

	token, expires, err := c.tokens.GetToken(ctx)
	if err != nil {
		return "", err
	}
	c.logger.Verbose("Acquired bearer token via %s (expires %s)", c.tokens, expires.Format(time.RFC3339))

	c.token = token
	c.expires = expires
	return token, nil
}

// cancelOnClose ties a request-scoped context to the response body lifetime.
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}
