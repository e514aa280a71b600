package api

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/tacoza/seller-live/internal/auth"
	"github.com/tacoza/seller-live/internal/version"
)

// Defaults for a new Client.
const (
	DefaultTimeout      = 10 * time.Second
	DefaultMaxRetries   = 3
	DefaultRetryBackoff = time.Second
)

// Client talks to the shop API on behalf of one seller session. Reads are
// retried; status updates and menu patches are sent once.
type Client struct {
	baseURL    string
	session    *auth.Session
	httpClient *http.Client
	logger     *slog.Logger
	userAgent  string

	maxRetries   int
	retryBackoff time.Duration
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// NewClient creates a shop API client rooted at baseURL. A nil session sends
// unauthenticated requests.
func NewClient(baseURL string, session *auth.Session, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:      strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		session:      session,
		httpClient:   &http.Client{Timeout: DefaultTimeout},
		logger:       slog.Default(),
		userAgent:    "seller-live/" + version.Version,
		maxRetries:   DefaultMaxRetries,
		retryBackoff: DefaultRetryBackoff,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// WithTimeout bounds each HTTP exchange. Non-positive values keep the default.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithRetries sets how often a failed read is retried and the first backoff.
// Negative counts disable retries.
func WithRetries(n int, backoff time.Duration) ClientOption {
	return func(c *Client) {
		c.maxRetries = max(n, 0)
		if backoff > 0 {
			c.retryBackoff = backoff
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithHTTPClient replaces the HTTP client, for example to add a proxy.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithUserAgent overrides the User-Agent sent with every request.
func WithUserAgent(ua string) ClientOption {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}
