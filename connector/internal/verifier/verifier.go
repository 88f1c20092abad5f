// Package verifier checks the authenticity and freshness of inbound Slack
// requests using the v0 request signing scheme.
package verifier

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/telhawk-systems/slack-connector/connector/internal/installation"
)

const (
	HeaderTimestamp = "X-Slack-Request-Timestamp"
	HeaderSignature = "X-Slack-Signature"

	// Version is the signing scheme prefix on both the base string and the
	// signature value.
	Version = "v0"

	// DefaultMaxSkew is the largest accepted distance between the request
	// timestamp and the local clock.
	DefaultMaxSkew = 5 * time.Minute
)

var (
	ErrMissingSecret     = installation.ErrMissingSigningSecret
	ErrMissingSignature  = errors.New("verifier: missing signature header")
	ErrMissingTimestamp  = errors.New("verifier: missing timestamp header")
	ErrInvalidTimestamp  = errors.New("verifier: malformed timestamp header")
	ErrStaleTimestamp    = errors.New("verifier: timestamp outside tolerance")
	ErrSignatureMismatch = errors.New("verifier: signature mismatch")
)

// Verifier validates request signatures. The zero value is not usable; use New.
type Verifier struct {
	now     func() time.Time
	maxSkew time.Duration
}

// Option configures a Verifier.
type Option func(*Verifier)

// WithClock replaces time.Now, for tests and replay tooling.
func WithClock(now func() time.Time) Option {
	return func(v *Verifier) {
		v.now = now
	}
}

// WithMaxSkew overrides DefaultMaxSkew.
func WithMaxSkew(d time.Duration) Option {
	return func(v *Verifier) {
		if d > 0 {
			v.maxSkew = d
		}
	}
}

// New returns a Verifier using the wall clock and DefaultMaxSkew.
func New(opts ...Option) *Verifier {
	v := &Verifier{
		now:     time.Now,
		maxSkew: DefaultMaxSkew,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify returns nil when body was signed with the installation's signing
// secret within the allowed clock skew. The returned error names the reason
// for rejection; use Reason to turn it into a metric label.
func (v *Verifier) Verify(inst installation.Installation, header http.Header, body []byte) error {
	if err := inst.Validate(); err != nil {
		return err
	}

	signature := header.Get(HeaderSignature)
	if signature == "" {
		return ErrMissingSignature
	}
	timestamp := header.Get(HeaderTimestamp)
	if timestamp == "" {
		return ErrMissingTimestamp
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return ErrInvalidTimestamp
	}

	skew := v.now().Sub(time.Unix(ts, 0))
	if skew < 0 {
		skew = -skew
	}
	if skew > v.maxSkew {
		return ErrStaleTimestamp
	}

	expected := Sign(inst.SigningSecret, timestamp, body)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return ErrSignatureMismatch
	}
	return nil
}

// Valid is Verify reduced to a boolean.
func (v *Verifier) Valid(inst installation.Installation, header http.Header, body []byte) bool {
	return v.Verify(inst, header, body) == nil
}

// Sign computes the X-Slack-Signature value for body sent at timestamp
// (unix seconds as a decimal string).
func Sign(secret, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(Version + ":" + timestamp + ":"))
	mac.Write(body)
	return Version + "=" + hex.EncodeToString(mac.Sum(nil))
}

// SignRequest sets the timestamp and signature headers on req for body.
func SignRequest(req *http.Request, secret string, at time.Time, body []byte) {
	timestamp := strconv.FormatInt(at.Unix(), 10)
	req.Header.Set(HeaderTimestamp, timestamp)
	req.Header.Set(HeaderSignature, Sign(secret, timestamp, body))
}

// Reason maps a verification error to a short label.
func Reason(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrMissingSecret):
		return "missing_secret"
	case errors.Is(err, ErrMissingSignature):
		return "missing_signature"
	case errors.Is(err, ErrMissingTimestamp):
		return "missing_timestamp"
	case errors.Is(err, ErrInvalidTimestamp):
		return "invalid_timestamp"
	case errors.Is(err, ErrStaleTimestamp):
		return "stale_timestamp"
	case errors.Is(err, ErrSignatureMismatch):
		return "signature_mismatch"
	default:
		return "unknown"
	}
}
