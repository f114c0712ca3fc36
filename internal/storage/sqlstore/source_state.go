package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"feedmaster/internal/domain"
)

type SourceStateStore struct {
	db *sqlx.DB
}

func NewSourceStateStore(db *sqlx.DB) *SourceStateStore {
	return &SourceStateStore{db: db}
}

func (s *SourceStateStore) Get(ctx context.Context, sourceName string) (*domain.SourceState, error) {
	var state domain.SourceState
	query := s.db.Rebind(`
		SELECT source_name, feed_url, last_synced_at, last_error, total_new
		FROM source_state
		WHERE source_name = ?`)

	err := s.db.GetContext(ctx, &state, query, sourceName)
	if errors.Is(err, sql.ErrNoRows) {
		// Return empty state for new sources
		return &domain.SourceState{SourceName: sourceName}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get source state: %w", err)
	}
	return &state, nil
}

// Update stores the outcome of one sync. state.TotalNew is added to the stored total.
func (s *SourceStateStore) Update(ctx context.Context, state *domain.SourceState) error {
	query := s.db.Rebind(`
		INSERT INTO source_state (source_name, feed_url, last_synced_at, last_error, total_new)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (source_name) DO UPDATE SET
			feed_url = excluded.feed_url,
			last_synced_at = excluded.last_synced_at,
			last_error = excluded.last_error,
			total_new = source_state.total_new + excluded.total_new`)

	_, err := s.db.ExecContext(ctx, query,
		state.SourceName,
		state.FeedURL,
		state.LastSyncedAt.UTC(),
		state.LastError,
		state.TotalNew,
	)
	if err != nil {
		return fmt.Errorf("update source state: %w", err)
	}
	return nil
}

func (s *SourceStateStore) List(ctx context.Context) ([]domain.SourceState, error) {
	var states []domain.SourceState
	err := s.db.SelectContext(ctx, &states, `
		SELECT source_name, feed_url, last_synced_at, last_error, total_new
		FROM source_state
		ORDER BY source_name`)
	if err != nil {
		return nil, fmt.Errorf("list source state: %w", err)
	}
	return states, nil
}
