package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telhawk-systems/slack-connector/common/middleware"
	"github.com/telhawk-systems/slack-connector/connector/internal/installation"
	"github.com/telhawk-systems/slack-connector/connector/internal/router"
	"github.com/telhawk-systems/slack-connector/connector/internal/verifier"
)

const testSecret = "8f742231b10e8888abcd99yyyzzz85a5"

var testNow = time.Unix(1_700_000_000, 0)

type fakeRouter struct {
	events       [][]byte
	interactions [][]byte
	eventOut     router.Outcome
	interactOut  router.Outcome
}

func (f *fakeRouter) RouteEvent(_ context.Context, _ installation.Installation, body []byte) router.Outcome {
	f.events = append(f.events, body)
	return f.eventOut
}

func (f *fakeRouter) RouteInteraction(_ context.Context, _ installation.Installation, payload []byte) router.Outcome {
	f.interactions = append(f.interactions, payload)
	return f.interactOut
}

func newTestHandler(secret string, r Router, checks ...ReadinessCheck) *SlackHandler {
	inst := installation.NewStatic(installation.Installation{TeamID: "T1", SigningSecret: secret})
	v := verifier.New(verifier.WithClock(func() time.Time { return testNow }))
	return NewSlackHandler(inst, v, r, nil, checks...)
}

func signedRequest(t *testing.T, path, body string, at time.Time) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	verifier.SignRequest(req, testSecret, at, []byte(body))
	return req
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body["error"]
}

func TestHandleEvents_Challenge(t *testing.T) {
	fr := &fakeRouter{eventOut: router.Outcome{Action: router.ActionEchoChallenge, Challenge: "abc123"}}
	h := newTestHandler(testSecret, fr)

	body := `{"type":"url_verification","challenge":"abc123"}`
	rec := httptest.NewRecorder()
	h.HandleEvents(rec, signedRequest(t, "/slack/events", body, testNow))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "abc123", rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/plain")
	require.Len(t, fr.events, 1)
	assert.Equal(t, body, string(fr.events[0]))
}

func TestHandleEvents_FixedAcknowledgement(t *testing.T) {
	for _, action := range []router.Action{
		router.ActionDispatched,
		router.ActionNoRecipients,
		router.ActionIgnored,
		router.ActionFailed,
	} {
		t.Run(string(action), func(t *testing.T) {
			fr := &fakeRouter{eventOut: router.Outcome{Action: action, Err: errors.New("maybe")}}
			h := newTestHandler(testSecret, fr)

			rec := httptest.NewRecorder()
			h.HandleEvents(rec, signedRequest(t, "/slack/events", `{"type":"event_callback"}`, testNow))

			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Empty(t, rec.Body.String())
		})
	}
}

func TestHandleEvents_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		req    func(t *testing.T) *http.Request
		status int
	}{
		{
			name: "stale timestamp",
			req: func(t *testing.T) *http.Request {
				return signedRequest(t, "/slack/events", `{}`, testNow.Add(-301*time.Second))
			},
			status: http.StatusForbidden,
		},
		{
			name: "tampered body",
			req: func(t *testing.T) *http.Request {
				req := signedRequest(t, "/slack/events", `{"a":1}`, testNow)
				req.Body = io.NopCloser(strings.NewReader(`{"a":2}`))
				return req
			},
			status: http.StatusForbidden,
		},
		{
			name: "unsigned",
			req: func(t *testing.T) *http.Request {
				return httptest.NewRequest(http.MethodPost, "/slack/events", strings.NewReader(`{}`))
			},
			status: http.StatusForbidden,
		},
		{
			name: "wrong method",
			req: func(t *testing.T) *http.Request {
				return httptest.NewRequest(http.MethodGet, "/slack/events", nil)
			},
			status: http.StatusMethodNotAllowed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fr := &fakeRouter{}
			h := newTestHandler(testSecret, fr)

			rec := httptest.NewRecorder()
			h.HandleEvents(rec, tt.req(t))

			assert.Equal(t, tt.status, rec.Code)
			assert.NotEmpty(t, decodeError(t, rec))
			assert.Empty(t, fr.events)
		})
	}
}

func TestHandleEvents_MissingSecret(t *testing.T) {
	fr := &fakeRouter{}
	h := newTestHandler("", fr)

	// a perfectly signed request still fails before verification
	rec := httptest.NewRecorder()
	h.HandleEvents(rec, signedRequest(t, "/slack/events", `{}`, testNow))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "signing secret is not configured", decodeError(t, rec))
	assert.Empty(t, fr.events)
}

func TestHandleEvents_BodyTooLarge(t *testing.T) {
	fr := &fakeRouter{}
	h := newTestHandler(testSecret, fr)
	handler := middleware.BodyLimit(16)(http.HandlerFunc(h.HandleEvents))

	body := strings.Repeat("x", 64)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, signedRequest(t, "/slack/events", body, testNow))

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Empty(t, fr.events)
}

func TestHandleInteractivity(t *testing.T) {
	fr := &fakeRouter{interactOut: router.Outcome{Action: router.ActionUnknownSubject}}
	h := newTestHandler(testSecret, fr)

	payload := `{"type":"block_actions","container":{"type":"message","message_ts":"1.0"}}`
	form := url.Values{"payload": {payload}}.Encode()
	req := signedRequest(t, "/slack/interactivity", form, testNow)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	rec := httptest.NewRecorder()
	h.HandleInteractivity(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.String())
	require.Len(t, fr.interactions, 1)
	assert.JSONEq(t, payload, string(fr.interactions[0]))
}

func TestHandleInteractivity_NoPayload(t *testing.T) {
	fr := &fakeRouter{}
	h := newTestHandler(testSecret, fr)

	rec := httptest.NewRecorder()
	h.HandleInteractivity(rec, signedRequest(t, "/slack/interactivity", "foo=bar", testNow))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, fr.interactions)
}

func TestHandleInteractivity_Forbidden(t *testing.T) {
	fr := &fakeRouter{}
	h := newTestHandler(testSecret, fr)

	form := url.Values{"payload": {`{"type":"view_submission"}`}}.Encode()
	req := httptest.NewRequest(http.MethodPost, "/slack/interactivity", strings.NewReader(form))
	verifier.SignRequest(req, "some-other-secret", testNow, []byte(form))

	rec := httptest.NewRecorder()
	h.HandleInteractivity(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Empty(t, fr.interactions)
}

func TestReady(t *testing.T) {
	ok := ReadinessCheck{Name: "registry", Check: func(context.Context) error { return nil }}
	bad := ReadinessCheck{Name: "nats", Check: func(context.Context) error { return errors.New("disconnected") }}

	rec := httptest.NewRecorder()
	newTestHandler(testSecret, &fakeRouter{}, ok).Ready(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ready"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	newTestHandler(testSecret, &fakeRouter{}, ok, bad).Ready(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"status":"not_ready","failures":{"nats":"disconnected"}}`, rec.Body.String())
}

func TestHealthAndNotFound(t *testing.T) {
	h := newTestHandler(testSecret, &fakeRouter{})

	rec := httptest.NewRecorder()
	h.Health(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.NotFound(rec, httptest.NewRequest(http.MethodPost, "/slack/commands", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not found", decodeError(t, rec))
}
