// Package database holds the PostgreSQL plumbing shared by the connector and
// slackctl: pool construction, schema migrations and operation timeouts.
package database

import (
	"context"
	"time"
)

const (
	// DefaultQueryTimeout bounds registry reads on the webhook path.
	DefaultQueryTimeout = 2 * time.Second

	// DefaultWriteTimeout bounds administrative writes.
	DefaultWriteTimeout = 10 * time.Second
)

// QueryContext derives a context with DefaultQueryTimeout.
func QueryContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, DefaultQueryTimeout)
}

// WriteContext derives a context with DefaultWriteTimeout.
func WriteContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, DefaultWriteTimeout)
}
