// Package platform talks to the external content platform: it lists recent posts
// of a topic and publishes replies to them.
package platform

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// ErrUnexpectedResponse marks a platform response that could not be interpreted.
var ErrUnexpectedResponse = errors.New("unexpected platform response")

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// StatusError is returned when the platform answers with a non-success status.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.Code)
}

// Options configures a Client.
type Options struct {
	APIURL    string
	PublicURL string
	UserAgent string
	// RPS caps outgoing requests per second; zero disables the limit.
	RPS float64
}

// Client is the platform API client.
type Client struct {
	http      HTTPClient
	apiURL    string
	publicURL string
	userAgent string
	limiter   *rate.Limiter
	maxBody   int64
}

// New creates a Client with the given HTTP client.
func New(client HTTPClient, opts Options) *Client {
	limit := rate.Inf
	if opts.RPS > 0 {
		limit = rate.Limit(opts.RPS)
	}
	ua := opts.UserAgent
	if ua == "" {
		ua = "SignalBot/1.0"
	}
	return &Client{
		http:      client,
		apiURL:    strings.TrimRight(opts.APIURL, "/"),
		publicURL: strings.TrimRight(opts.PublicURL, "/"),
		userAgent: ua,
		limiter:   rate.NewLimiter(limit, 1),
		maxBody:   5 * 1024 * 1024,
	}
}

// DefaultHTTPClient returns the HTTP client used outside tests.
func DefaultHTTPClient() *http.Client {
	return &http.Client{Timeout: 30 * time.Second}
}
