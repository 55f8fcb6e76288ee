package auth

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/tidwall/gjson"
)

//go:generate mockgen -source=exchange.go -destination=mock_exchange_test.go -package=auth

// Exchanger obtains a fresh credential from a partner's token endpoint.
// Implementations must reach the endpoint through a transport that does
// not route back through Transport, or a refresh would recurse into the
// middleware that triggered it.
type Exchanger interface {
	Exchange(ctx context.Context) (Credential, error)
}

const (
	// maxRedirects matches the default net/http limit.
	maxRedirects = 10

	// exchangeTimeout bounds the token endpoint call when no custom
	// client is provided.
	exchangeTimeout = 30 * time.Second

	// maxTokenResponseBytes caps response body reads. Token responses
	// are small JSON payloads.
	maxTokenResponseBytes = 1024 * 1024

	// expirySkew is subtracted from the server-reported expiry so a
	// credential is refreshed shortly before the server-side deadline
	// rather than at it.
	expirySkew = 30 * time.Second
)

// ExchangeConfig carries the credentials for a password-grant token
// request.
type ExchangeConfig struct {
	// TokenURL is the full URL of the partner's token endpoint.
	TokenURL string

	ClientID     string
	ClientSecret string
	Username     string
	Password     string
}

// HTTPExchanger performs an OAuth password-grant exchange over its own
// HTTP client, independent of any Transport.
type HTTPExchanger struct {
	httpClient *http.Client
	cfg        ExchangeConfig
}

// sameHostRedirectPolicy follows redirects only when the target host
// matches the original request host, so credentials never leak to
// third-party domains.
func sameHostRedirectPolicy(req *http.Request, via []*http.Request) error {
	if len(via) >= maxRedirects {
		return errors.New("stopped after 10 redirects")
	}

	if len(via) > 0 {
		origHost := via[0].URL.Host
		if req.URL.Host != origHost {
			return fmt.Errorf("redirect to different host blocked: %s -> %s", origHost, req.URL.Host)
		}
	}

	return nil
}

// NewHTTPExchanger creates an exchanger for the given credentials. If
// httpClient is nil, a client with a 30-second timeout and same-host
// redirect policy is used.
func NewHTTPExchanger(cfg ExchangeConfig, httpClient *http.Client) *HTTPExchanger {
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout:       exchangeTimeout,
			CheckRedirect: sameHostRedirectPolicy,
		}
	}

	return &HTTPExchanger{
		httpClient: httpClient,
		cfg:        cfg,
	}
}

// Exchange posts a password-grant request and parses the returned token
// and its expiry. Every failure is wrapped in ErrExchange.
func (e *HTTPExchanger) Exchange(ctx context.Context) (Credential, error) {
	form := url.Values{
		"grant_type":    {"password"},
		"client_id":     {e.cfg.ClientID},
		"client_secret": {e.cfg.ClientSecret},
		"username":      {e.cfg.Username},
		"password":      {e.cfg.Password},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.cfg.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return Credential{}, fmt.Errorf("%w: creating token request: %w", ErrExchange, err)
	}

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return Credential{}, fmt.Errorf("%w: sending token request: %w", ErrExchange, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxTokenResponseBytes))
	if err != nil {
		return Credential{}, fmt.Errorf("%w: reading token response: %w", ErrExchange, err)
	}

	if resp.StatusCode != http.StatusOK {
		return Credential{}, fmt.Errorf("%w: token endpoint returned status %d: %s",
			ErrExchange, resp.StatusCode, sanitizeResponseBody(body))
	}

	token := gjson.GetBytes(body, "access_token").Str
	if token == "" {
		return Credential{}, fmt.Errorf("%w: %w", ErrExchange, ErrNoToken)
	}

	expiresAt, err := tokenExpiry(body, token)
	if err != nil {
		return Credential{}, fmt.Errorf("%w: %w", ErrExchange, err)
	}

	return Credential{Token: token, ExpiresAt: expiresAt.Add(-expirySkew)}, nil
}

// tokenExpiry derives the expiry instant from the expires_in field,
// falling back to the exp claim when the access token is a JWT.
func tokenExpiry(body []byte, token string) (time.Time, error) {
	if v := gjson.GetBytes(body, "expires_in"); v.Exists() && v.Int() > 0 {
		return time.Now().Add(time.Duration(v.Int()) * time.Second), nil
	}

	if exp, ok := jwtExpiry(token); ok {
		return exp, nil
	}

	return time.Time{}, ErrNoExpiry
}

// jwtExpiry extracts the exp claim from a JWT payload without verifying
// the signature. The token arrived over TLS from the endpoint we are
// about to trust it with; only the deadline matters here.
func jwtExpiry(token string) (time.Time, bool) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return time.Time{}, false
	}

	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return time.Time{}, false
	}

	exp := gjson.GetBytes(payload, "exp")
	if !exp.Exists() || exp.Int() <= 0 {
		return time.Time{}, false
	}

	return time.Unix(exp.Int(), 0), true
}

// sanitizeResponseBody truncates and sanitizes a response body for
// inclusion in error messages. Limits to 256 bytes and replaces
// non-printable characters to prevent log injection.
func sanitizeResponseBody(body []byte) string {
	const maxLen = 256
	if len(body) > maxLen {
		body = body[:maxLen]
	}

	var clean []byte

	for len(body) > 0 {
		r, size := utf8.DecodeRune(body)
		if r == utf8.RuneError && size <= 1 {
			clean = append(clean, '?')
			body = body[1:]

			continue
		}

		if r < 0x20 && r != '\n' && r != '\r' && r != '\t' {
			clean = append(clean, '?')
		} else {
			clean = append(clean, body[:size]...)
		}

		body = body[size:]
	}

	return string(clean)
}
