package partner

import (
	"io"
	"net/http"
	"strings"
)

// cannedOrders is the fixed payload mock partners serve.
const cannedOrders = `{"orders":[` +
	`{"id":"mock-1","status":"open","updated_at":"2026-01-02T15:04:05Z"},` +
	`{"id":"mock-2","status":"shipped","updated_at":"2026-01-03T10:00:00Z"}]}`

// mockTransport serves canned responses in-process so integration
// environments run without partner connectivity or credentials. It
// never touches the network and never sees a token.
type mockTransport struct{}

var _ http.RoundTripper = mockTransport{}

func (mockTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	switch {
	case req.Method == http.MethodGet && req.URL.Path == "/orders":
		return cannedResponse(req, http.StatusOK, cannedOrders), nil

	case req.Method == http.MethodPut && strings.HasPrefix(req.URL.Path, "/objects/"):
		// Consume the body like a real server would.
		if req.Body != nil {
			_, _ = io.Copy(io.Discard, req.Body)
			_ = req.Body.Close()
		}

		return cannedResponse(req, http.StatusNoContent, ""), nil

	default:
		return cannedResponse(req, http.StatusNotFound, `{"error":"not found"}`), nil
	}
}

func cannedResponse(req *http.Request, status int, body string) *http.Response {
	header := make(http.Header)
	header.Set("Content-Type", "application/json")

	return &http.Response{
		Status:        http.StatusText(status),
		StatusCode:    status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(strings.NewReader(body)),
		ContentLength: int64(len(body)),
		Request:       req,
	}
}
