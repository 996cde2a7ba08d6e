package webhooks

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"
)

// Sender performs one HTTP attempt and reports the response status.
// A non-nil error means no response was received.
type Sender interface {
	Send(ctx context.Context, url string, header http.Header, body []byte) (int, error)
}

type HTTPSender struct {
	client *http.Client
}

func NewHTTPSender(timeout time.Duration) *HTTPSender {
	return &HTTPSender{client: &http.Client{Timeout: timeout, CheckRedirect: noRedirects}}
}

// NewHTTPSenderWithClient lets callers supply transport settings, e.g. a test server's TLS client.
// The client is copied so redirects are never followed.
func NewHTTPSenderWithClient(client *http.Client) *HTTPSender {
	c := *client
	c.CheckRedirect = noRedirects
	return &HTTPSender{client: &c}
}

// A 3xx is the subscriber's answer, not a hop: the signed body must only go to the stored HTTPS URL.
func noRedirects(*http.Request, []*http.Request) error {
	return http.ErrUseLastResponse
}

func (s *HTTPSender) Send(ctx context.Context, url string, header http.Header, body []byte) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	for k, v := range header {
		req.Header[k] = v
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	// Drain a bounded amount so the connection can be reused.
	io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	return resp.StatusCode, nil
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}
