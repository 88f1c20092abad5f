package verifier

import (
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/telhawk-systems/slack-connector/connector/internal/installation"
)

const testSecret = "8f742231b10e8888abcd99yyyzzz85a5"

var (
	testInst = installation.Installation{TeamID: "T1", SigningSecret: testSecret}
	testBody = []byte("token=xyzz0WbapA4vBCDEFasx0q6G&team_id=T1DC2JH3J&command=%2Fweather")
	fixedNow = time.Unix(1531420618, 0)
)

func signedHeader(secret string, ts time.Time, body []byte) http.Header {
	h := http.Header{}
	timestamp := strconv.FormatInt(ts.Unix(), 10)
	h.Set(HeaderTimestamp, timestamp)
	h.Set(HeaderSignature, Sign(secret, timestamp, body))
	return h
}

func newTestVerifier() *Verifier {
	return New(WithClock(func() time.Time { return fixedNow }))
}

func TestSign_KnownVector(t *testing.T) {
	body := []byte("token=xyzz0WbapA4vBCDEFasx0q6G&team_id=T1DC2JH3J&team_domain=testteamnow&channel_id=G8PSS9T3V&channel_name=foobar&user_id=U2CERLKJA&user_name=roadrunner&command=%2Fwebhook-collect&text=&response_url=https%3A%2F%2Fhooks.slack.com%2Fcommands%2FT1DC2JH3J%2F397700885554%2F96rGlfmibIGlgcZRskXaIFfN&trigger_id=398738663015.47445629121.803a0bc887a14d10d2c447fce8b6703c")
	got := Sign(testSecret, "1531420618", body)
	assert.Equal(t, "v0=a2114d57b48eac39b9ad189dd8316235a7b4a8d21a10bd27519666489c69b503", got)
}

func TestVerify_Valid(t *testing.T) {
	v := newTestVerifier()
	err := v.Verify(testInst, signedHeader(testSecret, fixedNow, testBody), testBody)
	assert.NoError(t, err)
	assert.True(t, v.Valid(testInst, signedHeader(testSecret, fixedNow, testBody), testBody))
}

func TestVerify_Freshness(t *testing.T) {
	v := newTestVerifier()

	tests := []struct {
		name    string
		offset  time.Duration
		wantErr error
	}{
		{name: "exactly at limit in the past", offset: -300 * time.Second, wantErr: nil},
		{name: "exactly at limit in the future", offset: 300 * time.Second, wantErr: nil},
		{name: "one second too old", offset: -301 * time.Second, wantErr: ErrStaleTimestamp},
		{name: "one second too far ahead", offset: 301 * time.Second, wantErr: ErrStaleTimestamp},
		{name: "an hour old", offset: -time.Hour, wantErr: ErrStaleTimestamp},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// The signature is correct for the stale timestamp; freshness
			// alone must decide.
			h := signedHeader(testSecret, fixedNow.Add(tt.offset), testBody)
			err := v.Verify(testInst, h, testBody)
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestVerify_SingleByteFlip(t *testing.T) {
	v := newTestVerifier()
	h := signedHeader(testSecret, fixedNow, testBody)
	good := h.Get(HeaderSignature)

	for i := len(Version) + 1; i < len(good); i++ {
		b := []byte(good)
		if b[i] == 'a' {
			b[i] = 'b'
		} else {
			b[i] = 'a'
		}
		h.Set(HeaderSignature, string(b))
		require.ErrorIs(t, v.Verify(testInst, h, testBody), ErrSignatureMismatch, "flipped index %d", i)
	}
}

func TestVerify_Rejections(t *testing.T) {
	v := newTestVerifier()

	tests := []struct {
		name    string
		inst    installation.Installation
		header  func() http.Header
		body    []byte
		wantErr error
	}{
		{
			name:    "missing secret",
			inst:    installation.Installation{},
			header:  func() http.Header { return signedHeader(testSecret, fixedNow, testBody) },
			body:    testBody,
			wantErr: ErrMissingSecret,
		},
		{
			name: "missing signature",
			inst: testInst,
			header: func() http.Header {
				h := signedHeader(testSecret, fixedNow, testBody)
				h.Del(HeaderSignature)
				return h
			},
			body:    testBody,
			wantErr: ErrMissingSignature,
		},
		{
			name: "missing timestamp",
			inst: testInst,
			header: func() http.Header {
				h := signedHeader(testSecret, fixedNow, testBody)
				h.Del(HeaderTimestamp)
				return h
			},
			body:    testBody,
			wantErr: ErrMissingTimestamp,
		},
		{
			name: "malformed timestamp",
			inst: testInst,
			header: func() http.Header {
				h := signedHeader(testSecret, fixedNow, testBody)
				h.Set(HeaderTimestamp, "yesterday")
				return h
			},
			body:    testBody,
			wantErr: ErrInvalidTimestamp,
		},
		{
			name:    "wrong secret",
			inst:    testInst,
			header:  func() http.Header { return signedHeader("other-secret", fixedNow, testBody) },
			body:    testBody,
			wantErr: ErrSignatureMismatch,
		},
		{
			name:    "tampered body",
			inst:    testInst,
			header:  func() http.Header { return signedHeader(testSecret, fixedNow, testBody) },
			body:    []byte(string(testBody) + "!"),
			wantErr: ErrSignatureMismatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Verify(tt.inst, tt.header(), tt.body)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.NotEqual(t, "unknown", Reason(err))
		})
	}
}

func TestWithMaxSkew(t *testing.T) {
	v := New(WithClock(func() time.Time { return fixedNow }), WithMaxSkew(10*time.Second))
	h := signedHeader(testSecret, fixedNow.Add(-11*time.Second), testBody)
	assert.ErrorIs(t, v.Verify(testInst, h, testBody), ErrStaleTimestamp)
}

func TestSignRequest(t *testing.T) {
	req, err := http.NewRequest(http.MethodPost, "http://localhost/slack/events", nil)
	require.NoError(t, err)

	SignRequest(req, testSecret, fixedNow, testBody)
	assert.NoError(t, newTestVerifier().Verify(testInst, req.Header, testBody))
}

func TestReason(t *testing.T) {
	assert.Equal(t, "ok", Reason(nil))
	assert.Equal(t, "stale_timestamp", Reason(ErrStaleTimestamp))
	assert.Equal(t, "unknown", Reason(assert.AnError))
}
