package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

type contextKey string

const (
	RequestIDKey  = contextKey("request-id")
	slackRetryKey = contextKey("slack-retry")
)

const (
	HeaderRequestID        = "X-Request-ID"
	HeaderSlackRetryNum    = "X-Slack-Retry-Num"
	HeaderSlackRetryReason = "X-Slack-Retry-Reason"
)

// SlackRetry describes a redelivery announced by Slack. Num is empty on the
// first delivery.
type SlackRetry struct {
	Num    string
	Reason string
}

// RequestID propagates X-Request-ID (or generates a UUID), echoes it on the
// response and stores it in the request context. Slack's retry headers are
// captured alongside so redeliveries can be told apart in logs.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(HeaderRequestID)
		if requestID == "" {
			requestID = uuid.New().String()
		}
		w.Header().Set(HeaderRequestID, requestID)

		ctx := context.WithValue(r.Context(), RequestIDKey, requestID)
		if num := r.Header.Get(HeaderSlackRetryNum); num != "" {
			ctx = context.WithValue(ctx, slackRetryKey, SlackRetry{
				Num:    num,
				Reason: r.Header.Get(HeaderSlackRetryReason),
			})
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetRequestID returns the request id stored in ctx, or "".
func GetRequestID(ctx context.Context) string {
	if reqID, ok := ctx.Value(RequestIDKey).(string); ok {
		return reqID
	}
	return ""
}

// GetSlackRetry returns the retry metadata stored in ctx. The zero value means
// the request was a first delivery.
func GetSlackRetry(ctx context.Context) SlackRetry {
	if retry, ok := ctx.Value(slackRetryKey).(SlackRetry); ok {
		return retry
	}
	return SlackRetry{}
}
