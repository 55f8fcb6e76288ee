package auth

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testExchangeConfig(tokenURL string) ExchangeConfig {
	return ExchangeConfig{
		TokenURL:     tokenURL,
		ClientID:     "client-1",
		ClientSecret: "secret-1",
		Username:     "svc-user",
		Password:     "svc-pass",
	}
}

func TestExchange_Success_ExpiresIn(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "password", r.PostFormValue("grant_type"))
		assert.Equal(t, "client-1", r.PostFormValue("client_id"))
		assert.Equal(t, "secret-1", r.PostFormValue("client_secret"))
		assert.Equal(t, "svc-user", r.PostFormValue("username"))
		assert.Equal(t, "svc-pass", r.PostFormValue("password"))

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token":"tok-abc","token_type":"Bearer","expires_in":3600}`)
	}))
	defer srv.Close()

	ex := NewHTTPExchanger(testExchangeConfig(srv.URL), srv.Client())

	cred, err := ex.Exchange(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-abc", cred.Token)

	// Expiry is expires_in from now, minus the refresh skew.
	expected := time.Now().Add(3600*time.Second - expirySkew)
	assert.WithinDuration(t, expected, cred.ExpiresAt, 5*time.Second)
}

func TestExchange_Success_JWTExpClaim(t *testing.T) {
	exp := time.Now().Add(15 * time.Minute).Unix()
	payload := base64.RawURLEncoding.EncodeToString(fmt.Appendf(nil, `{"sub":"svc-user","exp":%d}`, exp))
	jwt := "eyJhbGciOiJIUzI1NiJ9." + payload + ".sig"

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"access_token":%q,"token_type":"Bearer"}`, jwt)
	}))
	defer srv.Close()

	ex := NewHTTPExchanger(testExchangeConfig(srv.URL), srv.Client())

	cred, err := ex.Exchange(context.Background())
	require.NoError(t, err)
	assert.Equal(t, jwt, cred.Token)
	assert.WithinDuration(t, time.Unix(exp, 0).Add(-expirySkew), cred.ExpiresAt, time.Second)
}

func TestExchange_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid_client"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	ex := NewHTTPExchanger(testExchangeConfig(srv.URL), srv.Client())

	_, err := ex.Exchange(context.Background())
	require.ErrorIs(t, err, ErrExchange)
	assert.ErrorContains(t, err, "status 400")
	assert.ErrorContains(t, err, "invalid_client")
}

func TestExchange_MissingToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"token_type":"Bearer","expires_in":3600}`)
	}))
	defer srv.Close()

	ex := NewHTTPExchanger(testExchangeConfig(srv.URL), srv.Client())

	_, err := ex.Exchange(context.Background())
	assert.ErrorIs(t, err, ErrExchange)
	assert.ErrorIs(t, err, ErrNoToken)
}

func TestExchange_MissingExpiry(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Opaque token, no expires_in: nothing to derive a deadline from.
		fmt.Fprint(w, `{"access_token":"opaque-tok"}`)
	}))
	defer srv.Close()

	ex := NewHTTPExchanger(testExchangeConfig(srv.URL), srv.Client())

	_, err := ex.Exchange(context.Background())
	assert.ErrorIs(t, err, ErrExchange)
	assert.ErrorIs(t, err, ErrNoExpiry)
}

func TestExchange_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ex := NewHTTPExchanger(testExchangeConfig(srv.URL), srv.Client())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := ex.Exchange(ctx)
	require.ErrorIs(t, err, ErrExchange)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestJWTExpiry_Malformed(t *testing.T) {
	_, ok := jwtExpiry("not-a-jwt")
	assert.False(t, ok)

	_, ok = jwtExpiry("a.!!!.c")
	assert.False(t, ok)

	noExp := "h." + base64.RawURLEncoding.EncodeToString([]byte(`{"sub":"x"}`)) + ".s"
	_, ok = jwtExpiry(noExp)
	assert.False(t, ok)
}

func TestSanitizeResponseBody(t *testing.T) {
	assert.Equal(t, "plain text", sanitizeResponseBody([]byte("plain text")))
	assert.Equal(t, "a?b", sanitizeResponseBody([]byte("a\x00b")), "control characters are replaced")
	assert.Len(t, sanitizeResponseBody(make([]byte, 1024)), 256, "long bodies are truncated")
}
