package auth

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
)

// bufferBody fully reads and closes req.Body, returning its bytes.
// Bodies are not generally replayable once consumed, so this happens
// before the first send; every attempt then gets its own reader over
// the same buffer. Returns nil for bodyless requests.
func bufferBody(req *http.Request) ([]byte, error) {
	if req.Body == nil || req.Body == http.NoBody {
		return nil, nil
	}
	defer req.Body.Close()

	body, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, fmt.Errorf("reading request body: %w", err)
	}

	return body, nil
}

// cloneRequest produces an independent copy of req carrying the given
// buffered body. Method, URL, and every header entry are copied
// verbatim; the clone shares no mutable state with the original, so it
// can be sent without disturbing an already-dispatched request.
func cloneRequest(req *http.Request, body []byte) *http.Request {
	clone := req.Clone(req.Context())

	if body == nil {
		clone.Body = nil
		clone.GetBody = nil

		return clone
	}

	clone.Body = io.NopCloser(bytes.NewReader(body))
	clone.ContentLength = int64(len(body))
	clone.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(body)), nil
	}

	return clone
}
