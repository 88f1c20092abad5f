package client

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

	"github.com/telhawk-systems/slack-connector/common/middleware"
	"github.com/telhawk-systems/slack-connector/connector/internal/installation"
	"github.com/telhawk-systems/slack-connector/connector/internal/verifier"
)

// ConnectorClient posts signed Slack-shaped requests to a running connector,
// the way Slack itself would.
type ConnectorClient struct {
	baseURL string
	inst    installation.Installation
	client  *http.Client
	now     func() time.Time
	retry   middleware.SlackRetry
}

type Option func(*ConnectorClient)

// WithClock sets the time used for X-Slack-Request-Timestamp. Shifting it
// produces stale requests.
func WithClock(now func() time.Time) Option {
	return func(c *ConnectorClient) { c.now = now }
}

// WithRetry marks every request as a Slack redelivery.
func WithRetry(num int, reason string) Option {
	return func(c *ConnectorClient) {
		c.retry = middleware.SlackRetry{Num: fmt.Sprint(num), Reason: reason}
	}
}

// WithHTTPClient replaces the default client with its 10s timeout.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *ConnectorClient) { c.client = hc }
}

// NewConnectorClient targets baseURL with webhook routes under prefix. An
// empty secret sends unsigned requests.
func NewConnectorClient(baseURL, prefix, secret string, opts ...Option) *ConnectorClient {
	base := strings.TrimRight(baseURL, "/")
	c := &ConnectorClient{
		baseURL: base,
		inst: installation.Installation{
			SigningSecret:   secret,
			CallbackBaseURL: base + "/" + strings.Trim(prefix, "/"),
		},
		client: &http.Client{Timeout: 10 * time.Second},
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Response is what the connector answered.
type Response struct {
	StatusCode int    `json:"status_code"`
	Body       string `json:"body,omitempty"`
	RequestID  string `json:"request_id,omitempty"`
}

func (r *Response) OK() bool {
	return r.StatusCode == http.StatusOK
}

// SendEvent posts an Events API body to {prefix}/events.
func (c *ConnectorClient) SendEvent(ctx context.Context, body []byte) (*Response, error) {
	return c.post(ctx, c.inst.CallbackURL("events"), "application/json", body)
}

// SendInteraction form-encodes payload and posts it to {prefix}/interactivity.
func (c *ConnectorClient) SendInteraction(ctx context.Context, payload []byte) (*Response, error) {
	form := url.Values{"payload": {string(payload)}}.Encode()
	return c.post(ctx, c.inst.CallbackURL("interactivity"), "application/x-www-form-urlencoded", []byte(form))
}

// ReadyStatus is the body of /readyz.
type ReadyStatus struct {
	StatusCode int               `json:"status_code"`
	Status     string            `json:"status"`
	Failures   map[string]string `json:"failures,omitempty"`
}

// Ready queries /readyz. A 503 is reported through ReadyStatus, not as an
// error.
func (c *ConnectorClient) Ready(ctx context.Context) (*ReadyStatus, error) {
	resp, err := c.get(ctx, "/readyz")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	status := &ReadyStatus{StatusCode: resp.StatusCode}
	if err := json.NewDecoder(resp.Body).Decode(status); err != nil {
		return nil, fmt.Errorf("failed to decode readiness: %w", err)
	}
	return status, nil
}

// Health returns nil when /healthz answers 200.
func (c *ConnectorClient) Health(ctx context.Context) error {
	resp, err := c.get(ctx, "/healthz")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check failed with status %d", resp.StatusCode)
	}
	return nil
}

func (c *ConnectorClient) post(ctx context.Context, target, contentType string, body []byte) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)
	if c.inst.Validate() == nil {
		verifier.SignRequest(req, c.inst.SigningSecret, c.now(), body)
	}
	if c.retry.Num != "" {
		req.Header.Set(middleware.HeaderSlackRetryNum, c.retry.Num)
		req.Header.Set(middleware.HeaderSlackRetryReason, c.retry.Reason)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return &Response{
		StatusCode: resp.StatusCode,
		Body:       string(data),
		RequestID:  resp.Header.Get(middleware.HeaderRequestID),
	}, nil
}

func (c *ConnectorClient) get(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	return c.client.Do(req)
}
