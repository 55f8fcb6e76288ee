package auth

import "net/http"

// BasicTransport stamps a fixed Basic-auth header onto every request.
// No caching, no refresh, no retry; for partners whose API accepts
// static credentials.
type BasicTransport struct {
	// Base is the wrapped pipeline. Defaults to http.DefaultTransport.
	Base http.RoundTripper

	Username string
	Password string
}

var _ http.RoundTripper = (*BasicTransport)(nil)

// RoundTrip stamps the header onto a clone so the caller's request is
// never mutated.
func (b *BasicTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := b.Base
	if base == nil {
		base = http.DefaultTransport
	}

	clone := req.Clone(req.Context())
	clone.SetBasicAuth(b.Username, b.Password)

	return base.RoundTrip(clone)
}
