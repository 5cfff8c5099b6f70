// Package credential reads and refreshes users' platform credentials.
package credential

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"signal_bot/internal/model"
	"signal_bot/internal/storage"
)

// Errors returned by the Accessor.
var (
	ErrNotFound       = errors.New("credential not found")
	ErrNoRefreshToken = errors.New("no refresh token available")
)

// Store is the persistence the Accessor needs.
type Store interface {
	GetCredential(ctx context.Context, userID string) (*model.ExternalCredential, error)
	UpdateAccessToken(ctx context.Context, userID, token string, expiresAt *time.Time) error
	SaveCredential(ctx context.Context, c *model.ExternalCredential) error
}

// Options configures the refresh-token grant.
type Options struct {
	ClientID     string
	ClientSecret string
	TokenURL     string
	UserAgent    string
	// HTTPClient is used for token requests; nil means http.DefaultClient.
	HTTPClient *http.Client
}

// Accessor implements the credential store boundary: get and refresh.
type Accessor struct {
	store  Store
	oauth  *oauth2.Config
	client *http.Client
	log    *slog.Logger
}

// New creates an Accessor.
func New(store Store, opts Options, log *slog.Logger) *Accessor {
	client := opts.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	if opts.UserAgent != "" {
		client = withUserAgent(client, opts.UserAgent)
	}
	return &Accessor{
		store: store,
		oauth: &oauth2.Config{
			ClientID:     opts.ClientID,
			ClientSecret: opts.ClientSecret,
			Endpoint: oauth2.Endpoint{
				TokenURL:  opts.TokenURL,
				AuthStyle: oauth2.AuthStyleInHeader,
			},
		},
		client: client,
		log:    log,
	}
}

// Get returns the current credential of a user.
func (a *Accessor) Get(ctx context.Context, userID string) (*model.ExternalCredential, error) {
	c, err := a.store.GetCredential(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get credential: %w", err)
	}
	return c, nil
}

// Refresh exchanges the stored refresh token for a new access token and persists it.
func (a *Accessor) Refresh(ctx context.Context, userID string) (*model.ExternalCredential, error) {
	c, err := a.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if c.RefreshToken == "" {
		return nil, ErrNoRefreshToken
	}

	a.log.Info("refreshing platform token", "user_id", userID)

	// An expired token forces the source to hit the token endpoint.
	stale := &oauth2.Token{RefreshToken: c.RefreshToken, Expiry: time.Now().Add(-time.Minute)}
	tok, err := a.oauth.TokenSource(context.WithValue(ctx, oauth2.HTTPClient, a.client), stale).Token()
	if err != nil {
		return nil, fmt.Errorf("refresh token: %w", err)
	}

	var expiresAt *time.Time
	if !tok.Expiry.IsZero() {
		exp := tok.Expiry.UTC()
		expiresAt = &exp
	}
	rotated := tok.RefreshToken != "" && tok.RefreshToken != c.RefreshToken
	c.AccessToken = tok.AccessToken
	c.ExpiresAt = expiresAt

	if rotated {
		c.RefreshToken = tok.RefreshToken
		err = a.store.SaveCredential(ctx, c)
	} else {
		err = a.store.UpdateAccessToken(ctx, userID, tok.AccessToken, expiresAt)
	}
	if err != nil {
		return nil, fmt.Errorf("store refreshed token: %w", err)
	}
	return c, nil
}

type userAgentTransport struct {
	base http.RoundTripper
	ua   string
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	r := req.Clone(req.Context())
	r.Header.Set("User-Agent", t.ua)
	return t.base.RoundTrip(r)
}

func withUserAgent(c *http.Client, ua string) *http.Client {
	base := c.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	cp := *c
	cp.Transport = &userAgentTransport{base: base, ua: ua}
	return &cp
}
