package auth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
)

// maxDrainBytes caps how much of a rejected response body is read
// before the connection is released for the retry.
const maxDrainBytes = 64 * 1024

// Transport wraps an http.RoundTripper with partner authentication. It
// attaches the cached bearer credential to outgoing requests,
// refreshes the credential single-flight when it is missing or
// expired, and retries a request exactly once after a 401.
//
// One Transport per partner; Transports are never shared across
// partners, so a slow refresh for one partner cannot stall another.
type Transport struct {
	base      http.RoundTripper
	exchanger Exchanger

	cache     Cache
	refreshMu sync.Mutex

	authHost string
	authPath string
	scheme   string
	bypass   func() bool
}

var _ http.RoundTripper = (*Transport)(nil)

// TransportConfig configures a Transport.
type TransportConfig struct {
	// Base is the wrapped pipeline that performs the actual network
	// I/O. Defaults to http.DefaultTransport.
	Base http.RoundTripper

	// Exchanger obtains fresh credentials. Required.
	Exchanger Exchanger

	// AuthURL is the token endpoint. Requests targeting it are
	// forwarded without a credential, since attaching a token to the
	// call that produces one makes no sense.
	AuthURL string

	// Scheme is the Authorization scheme to stamp, "Bearer" when empty.
	Scheme string

	// Bypass is consulted once per request; when it returns true the
	// request is forwarded untouched with no caching or retry. Nil
	// means never bypass.
	Bypass func() bool
}

// NewTransport creates a Transport from cfg.
func NewTransport(cfg TransportConfig) (*Transport, error) {
	if cfg.Exchanger == nil {
		return nil, errors.New("auth: exchanger is required")
	}

	t := &Transport{
		base:      cfg.Base,
		exchanger: cfg.Exchanger,
		scheme:    cfg.Scheme,
		bypass:    cfg.Bypass,
	}

	if t.base == nil {
		t.base = http.DefaultTransport
	}

	if t.scheme == "" {
		t.scheme = "Bearer"
	}

	if cfg.AuthURL != "" {
		u, err := url.Parse(cfg.AuthURL)
		if err != nil {
			return nil, fmt.Errorf("parsing auth URL: %w", err)
		}

		t.authHost = u.Host
		t.authPath = u.Path
	}

	return t, nil
}

// RoundTrip implements http.RoundTripper. The caller's request is
// never mutated: every authenticated attempt goes out on a clone, and
// a retry after 401 goes out on a second, independent clone carrying a
// freshly exchanged credential. Transport-level errors from the
// wrapped pipeline propagate unchanged and do not invalidate the
// cache; only an observed 401 does.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.bypass != nil && t.bypass() {
		return t.base.RoundTrip(req)
	}

	if t.isAuthEndpoint(req.URL) {
		return t.base.RoundTrip(req)
	}

	body, err := bufferBody(req)
	if err != nil {
		return nil, err
	}

	resp, err := t.send(req, body)
	if err != nil || resp.StatusCode != http.StatusUnauthorized {
		return resp, err
	}

	// The partner rejected a credential that looked valid locally.
	// Invalidate it and resend once with a fresh one. A second 401 is
	// returned to the caller as-is.
	drainBody(resp)
	t.cache.Clear()

	return t.send(req, body)
}

// send attaches a valid credential to a clone of req and forwards it
// through the wrapped pipeline.
func (t *Transport) send(req *http.Request, body []byte) (*http.Response, error) {
	if err := t.ensure(req.Context()); err != nil {
		return nil, err
	}

	clone := cloneRequest(req, body)
	clone.Header.Set("Authorization", t.scheme+" "+t.cache.Get().Token)

	return t.base.RoundTrip(clone)
}

// ensure guarantees a valid cached credential, performing at most one
// exchange across concurrent callers. Double-checked acquisition: the
// lock-free fast path covers the common case, and the re-check under
// the mutex skips the exchange when another caller refreshed while
// this one was waiting. The mutex is released on every path, including
// exchange failure and cancellation.
func (t *Transport) ensure(ctx context.Context) error {
	if t.cache.Valid() {
		return nil
	}

	t.refreshMu.Lock()
	defer t.refreshMu.Unlock()

	if t.cache.Valid() {
		return nil
	}

	cred, err := t.exchanger.Exchange(ctx)
	if err != nil {
		return err
	}

	t.cache.Store(cred)

	return nil
}

// isAuthEndpoint reports whether u targets the token endpoint.
func (t *Transport) isAuthEndpoint(u *url.URL) bool {
	return t.authHost != "" && u.Host == t.authHost && strings.HasPrefix(u.Path, t.authPath)
}

// drainBody discards and closes a response body so the underlying
// connection can be reused for the retry.
func drainBody(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrainBytes))
	_ = resp.Body.Close()
}
