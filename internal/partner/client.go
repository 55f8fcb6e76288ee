// Package partner implements the HTTP client for a downstream partner
// API. Authentication is handled entirely by the transport installed
// underneath the client, so request methods never see a credential.
package partner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/alexjbarnes/partnerlink/internal/auth"
	"github.com/alexjbarnes/partnerlink/internal/config"
)

const (
	// clientTimeout bounds a whole partner call, including the
	// credential refresh a stale token can trigger.
	clientTimeout = 60 * time.Second

	// maxAPIResponseBytes caps response body reads to prevent a
	// misbehaving partner from consuming unbounded memory.
	maxAPIResponseBytes = 4 * 1024 * 1024
)

// Client talks to one partner's REST API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	name       string
}

// NewClient builds a client for the given partner. The transport is
// chosen from the partner's configuration: canned responses for mock
// partners, a static Basic header for basic partners, and the caching
// bearer transport otherwise. bypass is consulted per request by the
// bearer transport; nil means never bypass.
func NewClient(p config.Partner, bypass func() bool) (*Client, error) {
	rt, err := buildTransport(p, bypass)
	if err != nil {
		return nil, err
	}

	return &Client{
		httpClient: &http.Client{
			Transport: rt,
			Timeout:   clientTimeout,
		},
		baseURL: strings.TrimRight(p.BaseURL, "/"),
		name:    p.Name,
	}, nil
}

func buildTransport(p config.Partner, bypass func() bool) (http.RoundTripper, error) {
	switch {
	case p.Mock:
		return mockTransport{}, nil

	case p.Scheme == config.SchemeBasic:
		return &auth.BasicTransport{Username: p.Username, Password: p.Password}, nil

	default:
		exchanger := auth.NewHTTPExchanger(auth.ExchangeConfig{
			TokenURL:     p.AuthURL,
			ClientID:     p.ClientID,
			ClientSecret: p.ClientSecret,
			Username:     p.Username,
			Password:     p.Password,
		}, nil)

		transport, err := auth.NewTransport(auth.TransportConfig{
			Exchanger: exchanger,
			AuthURL:   p.AuthURL,
			Bypass:    bypass,
		})
		if err != nil {
			return nil, fmt.Errorf("building transport for partner %s: %w", p.Name, err)
		}

		return transport, nil
	}
}

// Name returns the configured partner name.
func (c *Client) Name() string {
	return c.name
}

// Order is one order record as the partner API reports it.
type Order struct {
	ID        string    `json:"id"`
	Status    string    `json:"status"`
	UpdatedAt time.Time `json:"updated_at"`
}

type ordersResponse struct {
	Orders []Order `json:"orders"`
}

// Orders fetches the partner's current orders.
func (c *Client) Orders(ctx context.Context) ([]Order, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/orders", nil)
	if err != nil {
		return nil, fmt.Errorf("creating orders request: %w", err)
	}

	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching orders from %s: %w", c.name, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxAPIResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("reading orders response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("partner %s /orders returned status %d: %.120q", c.name, resp.StatusCode, body)
	}

	var parsed ordersResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decoding orders response: %w", err)
	}

	return parsed.Orders, nil
}

// PutObject stores body under key in the partner's object store.
// Uploads are idempotent overwrites, which is what makes the drain
// loop's at-least-once delivery safe.
func (c *Client) PutObject(ctx context.Context, key string, body []byte) error {
	target := c.baseURL + "/objects/" + url.PathEscape(key)

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, target, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating object request: %w", err)
	}

	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("uploading object %s to %s: %w", key, c.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusNoContent {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxAPIResponseBytes))

		return fmt.Errorf("partner %s object upload returned status %d: %.120q", c.name, resp.StatusCode, msg)
	}

	return nil
}
