// Package identity resolves subject targeting attributes from the external
// identity service over HTTP.
package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ignite/experiment-engine/internal/domain"
	"github.com/ignite/experiment-engine/internal/pkg/httpretry"
)

// DefaultTimeout bounds a single resolution round trip, retries included.
const DefaultTimeout = 10 * time.Second

// Client fetches subject attributes from the identity service. Transient
// upstream failures are retried; a subject the service does not know is
// reported as nil attributes so callers fail closed.
type Client struct {
	baseURL string
	http    httpretry.HTTPDoer
	timeout time.Duration
}

// New creates an identity client for the given base URL, e.g.
// "http://identity.internal:8080".
func New(baseURL string, maxRetries int) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpretry.New(nil, maxRetries),
		timeout: DefaultTimeout,
	}
}

// NewWithDoer creates a client with a custom HTTP doer. Used by tests.
func NewWithDoer(baseURL string, doer httpretry.HTTPDoer) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    doer,
		timeout: DefaultTimeout,
	}
}

type subjectResponse struct {
	Role       string            `json:"role"`
	DeviceType string            `json:"device_type"`
	Region     string            `json:"region"`
	Attributes map[string]string `json:"attributes"`
}

// Resolve looks up a subject's attributes. Returns (nil, nil) when the
// identity service does not know the subject.
func (c *Client) Resolve(ctx context.Context, subjectID string) (*domain.SubjectAttributes, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	endpoint := fmt.Sprintf("%s/subjects/%s", c.baseURL, url.PathEscape(subjectID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build identity request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("identity lookup: %w", err)
	}
	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, nil
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("identity lookup: unexpected status %d", resp.StatusCode)
	}

	var body subjectResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode identity response: %w", err)
	}
	return &domain.SubjectAttributes{
		Role:       body.Role,
		DeviceType: body.DeviceType,
		Region:     body.Region,
		Custom:     body.Attributes,
	}, nil
}
