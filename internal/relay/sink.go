package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Sink delivers one normalized document downstream. A nil error means the
// document was durably accepted.
type Sink interface {
	Deliver(ctx context.Context, doc map[string]any) error
}

// HTTPSink posts JSON documents to a fixed URL. Any non-2xx status or
// transport failure counts as not accepted.
type HTTPSink struct {
	url    string
	client *http.Client
}

func NewHTTPSink(url string, timeout time.Duration) *HTTPSink {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &HTTPSink{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

func (s *HTTPSink) Deliver(ctx context.Context, doc map[string]any) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("relay: marshal sink document: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("relay: sink request: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("relay: sink returned status %d", resp.StatusCode)
	}
	return nil
}
