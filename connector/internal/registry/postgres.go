package registry

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/telhawk-systems/slack-connector/common/database"
)

// PostgresRegistry stores descriptors in the slack_subscribers table.
type PostgresRegistry struct {
	pool *pgxpool.Pool
}

// NewPostgresRegistry wraps an existing pool. The schema is created by the
// migrations under connector/migrations.
func NewPostgresRegistry(pool *pgxpool.Pool) *PostgresRegistry {
	return &PostgresRegistry{pool: pool}
}

const selectColumns = `block_id, kind, channel_filter, include_self_events, created_at, updated_at`

func (r *PostgresRegistry) ListByKind(ctx context.Context, kinds ...Kind) ([]Descriptor, error) {
	if len(kinds) == 0 {
		return nil, nil
	}
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = string(k)
	}

	ctx, cancel := database.QueryContext(ctx)
	defer cancel()

	rows, err := r.pool.Query(ctx,
		`SELECT `+selectColumns+` FROM slack_subscribers WHERE kind = ANY($1) ORDER BY block_id`,
		names)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscribers by kind: %w", err)
	}
	return collectDescriptors(rows)
}

func (r *PostgresRegistry) Get(ctx context.Context, blockID string) (*Descriptor, error) {
	ctx, cancel := database.QueryContext(ctx)
	defer cancel()

	row := r.pool.QueryRow(ctx,
		`SELECT `+selectColumns+` FROM slack_subscribers WHERE block_id = $1`, blockID)

	d, err := scanDescriptor(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrSubscriberNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get subscriber: %w", err)
	}
	return d, nil
}

func (r *PostgresRegistry) List(ctx context.Context) ([]Descriptor, error) {
	ctx, cancel := database.QueryContext(ctx)
	defer cancel()

	rows, err := r.pool.Query(ctx, `SELECT `+selectColumns+` FROM slack_subscribers ORDER BY block_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscribers: %w", err)
	}
	return collectDescriptors(rows)
}

func (r *PostgresRegistry) Upsert(ctx context.Context, d Descriptor) error {
	if err := d.Validate(); err != nil {
		return err
	}

	ctx, cancel := database.WriteContext(ctx)
	defer cancel()

	_, err := r.pool.Exec(ctx, `
		INSERT INTO slack_subscribers (block_id, kind, channel_filter, include_self_events)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (block_id) DO UPDATE SET
			kind = EXCLUDED.kind,
			channel_filter = EXCLUDED.channel_filter,
			include_self_events = EXCLUDED.include_self_events,
			updated_at = NOW()`,
		d.BlockID, string(d.Kind), d.ChannelFilter, d.IncludeSelfEvents)
	if err != nil {
		return fmt.Errorf("failed to upsert subscriber: %w", err)
	}
	return nil
}

func (r *PostgresRegistry) Delete(ctx context.Context, blockID string) error {
	ctx, cancel := database.WriteContext(ctx)
	defer cancel()

	tag, err := r.pool.Exec(ctx, `DELETE FROM slack_subscribers WHERE block_id = $1`, blockID)
	if err != nil {
		return fmt.Errorf("failed to delete subscriber: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSubscriberNotFound
	}
	return nil
}

func (r *PostgresRegistry) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Close releases the pool.
func (r *PostgresRegistry) Close() {
	r.pool.Close()
}

func scanDescriptor(row pgx.Row) (*Descriptor, error) {
	var (
		d    Descriptor
		kind string
	)
	if err := row.Scan(&d.BlockID, &kind, &d.ChannelFilter, &d.IncludeSelfEvents, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return nil, err
	}
	d.Kind = Kind(kind)
	return &d, nil
}

func collectDescriptors(rows pgx.Rows) ([]Descriptor, error) {
	defer rows.Close()

	var out []Descriptor
	for rows.Next() {
		d, err := scanDescriptor(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan subscriber: %w", err)
		}
		out = append(out, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate subscribers: %w", err)
	}
	return out, nil
}
