package client

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telhawk-systems/slack-connector/connector/internal/installation"
	"github.com/telhawk-systems/slack-connector/connector/internal/verifier"
)

const testSecret = "8f742231b10e8888abcd99yyyzzz85a5"

func TestNewConnectorClient(t *testing.T) {
	c := NewConnectorClient("http://localhost:8095/", "/slack/", testSecret)

	assert.Equal(t, "http://localhost:8095", c.baseURL)
	assert.Equal(t, "http://localhost:8095/slack/events", c.inst.CallbackURL("events"))
	assert.Equal(t, 10*time.Second, c.client.Timeout)
}

func TestSendEvent_Signed(t *testing.T) {
	now := time.Now()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/slack/events", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		assert.JSONEq(t, `{"type":"event_callback"}`, string(body))

		v := verifier.New(verifier.WithClock(func() time.Time { return now }))
		assert.NoError(t, v.Verify(installation.Installation{SigningSecret: testSecret}, r.Header, body))

		w.Header().Set("X-Request-ID", "req-1")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	c := NewConnectorClient(server.URL, "/slack", testSecret, WithClock(func() time.Time { return now }))
	resp, err := c.SendEvent(context.Background(), []byte(`{"type":"event_callback"}`))
	require.NoError(t, err)

	assert.True(t, resp.OK())
	assert.Equal(t, "req-1", resp.RequestID)
}

func TestSendEvent_Unsigned(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get(verifier.HeaderSignature))
		assert.Empty(t, r.Header.Get(verifier.HeaderTimestamp))
		http.Error(w, `{"error":"invalid request signature"}`, http.StatusForbidden)
	}))
	defer server.Close()

	c := NewConnectorClient(server.URL, "/slack", "")
	resp, err := c.SendEvent(context.Background(), []byte(`{}`))
	require.NoError(t, err)

	assert.False(t, resp.OK())
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Contains(t, resp.Body, "invalid request signature")
}

func TestSendEvent_RetryHeaders(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "2", r.Header.Get("X-Slack-Retry-Num"))
		assert.Equal(t, "http_timeout", r.Header.Get("X-Slack-Retry-Reason"))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	c := NewConnectorClient(server.URL, "/slack", testSecret, WithRetry(2, "http_timeout"))
	_, err := c.SendEvent(context.Background(), []byte(`{}`))
	require.NoError(t, err)
}

func TestSendInteraction_FormEncoded(t *testing.T) {
	payload := `{"type":"block_actions","container":{"message_ts":"1700000000.000100"}}`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/slack/interactivity", r.URL.Path)
		assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		form, err := url.ParseQuery(string(body))
		require.NoError(t, err)
		assert.Equal(t, payload, form.Get("payload"))

		v := verifier.New()
		assert.True(t, v.Valid(installation.Installation{SigningSecret: testSecret}, r.Header, body))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	c := NewConnectorClient(server.URL, "slack", testSecret)
	resp, err := c.SendInteraction(context.Background(), []byte(payload))
	require.NoError(t, err)
	assert.True(t, resp.OK())
}

func TestSendEvent_ServerDown(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	server.Close()

	c := NewConnectorClient(server.URL, "/slack", testSecret)
	_, err := c.SendEvent(context.Background(), []byte(`{}`))
	assert.Error(t, err)
}

func TestSendEvent_Timeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer server.Close()
	defer close(release)

	c := NewConnectorClient(server.URL, "/slack", testSecret,
		WithHTTPClient(&http.Client{Timeout: 50 * time.Millisecond}))
	_, err := c.SendEvent(context.Background(), []byte(`{}`))
	assert.Error(t, err)
}

func TestReady(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantStatus string
		failures   map[string]string
	}{
		{
			name:       "ready",
			status:     http.StatusOK,
			body:       `{"status":"ready"}`,
			wantStatus: "ready",
		},
		{
			name:       "not ready",
			status:     http.StatusServiceUnavailable,
			body:       `{"status":"not_ready","failures":{"correlation":"dial tcp: refused"}}`,
			wantStatus: "not_ready",
			failures:   map[string]string{"correlation": "dial tcp: refused"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/readyz", r.URL.Path)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			c := NewConnectorClient(server.URL, "/slack", testSecret)
			status, err := c.Ready(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.status, status.StatusCode)
			assert.Equal(t, tt.wantStatus, status.Status)
			assert.Equal(t, tt.failures, status.Failures)
		})
	}
}

func TestHealth(t *testing.T) {
	healthy := true
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if healthy {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	c := NewConnectorClient(server.URL, "/slack", testSecret)
	assert.NoError(t, c.Health(context.Background()))

	healthy = false
	assert.Error(t, c.Health(context.Background()))
}
