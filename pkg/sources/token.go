package sources

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"

	"github.com/gridpulse/resload/pkg/forecast"
)

// tokenSkew is subtracted from the advertised token lifetime so a token is
// refreshed before the upstream considers it expired.
const tokenSkew = 60 * time.Second

// TokenProvider supplies bearer tokens for the demand API. Invalidate drops
// the cached token so the next Token call fetches a fresh one; it is called
// after an authenticated request comes back 401.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
	Invalidate()
}

// ClientCredentials implements the OAuth2 client-credentials grant against a
// token endpoint, caching the access token until shortly before expiry.
// It is safe for concurrent use.
type ClientCredentials struct {
	tokenURL     string
	clientID     string
	clientSecret string
	client       *http.Client
	logger       *slog.Logger
	now          func() time.Time

	mu     sync.Mutex
	token  string
	expiry time.Time
}

// NewClientCredentials builds a token provider. The client id and secret are
// expected to come from environment configuration; they are never logged.
func NewClientCredentials(tokenURL, clientID, clientSecret string, client *http.Client, logger *slog.Logger) (*ClientCredentials, error) {
	if tokenURL == "" || clientID == "" || clientSecret == "" {
		return nil, fmt.Errorf("%w: token url, client id and client secret are required", forecast.ErrValidation)
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ClientCredentials{
		tokenURL:     tokenURL,
		clientID:     clientID,
		clientSecret: clientSecret,
		client:       client,
		logger:       logger,
		now:          time.Now,
	}, nil
}

// Token returns a cached access token, fetching a new one when the cache is
// empty or within tokenSkew of expiry.
func (c *ClientCredentials) Token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && c.now().Before(c.expiry.Add(-tokenSkew)) {
		return c.token, nil
	}

	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("building token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(c.clientID, c.clientSecret)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: token endpoint: %v", forecast.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("reading token response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", classifyStatus(resp.StatusCode, "token endpoint")
	}

	tok := gjson.GetBytes(body, "access_token").String()
	if tok == "" {
		return "", fmt.Errorf("%w: token response has no access_token", forecast.ErrAuth)
	}
	lifetime := time.Duration(gjson.GetBytes(body, "expires_in").Int()) * time.Second
	if lifetime <= 0 {
		lifetime = 5 * time.Minute
	}

	c.token = tok
	c.expiry = c.now().Add(lifetime)
	c.logger.Debug("obtained access token", "expires_in", lifetime.String())
	return c.token, nil
}

// Invalidate drops the cached token.
func (c *ClientCredentials) Invalidate() {
	c.mu.Lock()
	c.token = ""
	c.expiry = time.Time{}
	c.mu.Unlock()
}

// classifyStatus maps an upstream HTTP status to the resload error taxonomy.
func classifyStatus(code int, what string) error {
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return fmt.Errorf("%w: %s returned %d", forecast.ErrAuth, what, code)
	case code == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s returned 429", forecast.ErrRateLimited, what)
	case code >= 500:
		return fmt.Errorf("%w: %s returned %d", forecast.ErrUpstreamUnavailable, what, code)
	case code >= 400:
		return fmt.Errorf("%w: %s returned %d", forecast.ErrValidation, what, code)
	default:
		return fmt.Errorf("%s returned unexpected status %d", what, code)
	}
}
