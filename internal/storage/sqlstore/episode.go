package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"feedmaster/internal/domain"
)

const episodeColumns = `id, title, description, enclosure_url, enclosure_length, enclosure_type, published, source`

type episodeRow struct {
	ID              string    `db:"id"`
	Title           string    `db:"title"`
	Description     string    `db:"description"`
	EnclosureURL    string    `db:"enclosure_url"`
	EnclosureLength int64     `db:"enclosure_length"`
	EnclosureType   string    `db:"enclosure_type"`
	Published       time.Time `db:"published"`
	Source          string    `db:"source"`
}

func (r episodeRow) toDomain() domain.Episode {
	return domain.Episode{
		ID:          r.ID,
		Title:       r.Title,
		Description: r.Description,
		Enclosure: domain.Enclosure{
			URL:    r.EnclosureURL,
			Length: r.EnclosureLength,
			Type:   r.EnclosureType,
		},
		Published: r.Published.UTC(),
		Source:    r.Source,
	}
}

// EpisodeStore is the only place where episodes are deduplicated: the unique
// constraint on id decides which of several concurrent writers is first.
type EpisodeStore struct {
	db *sqlx.DB
}

func NewEpisodeStore(db *sqlx.DB) *EpisodeStore {
	return &EpisodeStore{db: db}
}

// Upsert inserts the episode unless its id is already stored. Existing records are never
// modified. It reports whether a new record was created.
func (s *EpisodeStore) Upsert(ctx context.Context, episode *domain.Episode) (bool, error) {
	if episode.ID == "" {
		return false, errors.New("episode id is empty")
	}

	query := s.db.Rebind(`
		INSERT INTO episodes (` + episodeColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING`)

	res, err := s.db.ExecContext(ctx, query,
		episode.ID,
		episode.Title,
		episode.Description,
		episode.Enclosure.URL,
		episode.Enclosure.Length,
		episode.Enclosure.Type,
		episode.Published.UTC().Truncate(time.Microsecond),
		episode.Source,
	)
	if err != nil {
		return false, fmt.Errorf("insert episode: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}

	return n > 0, nil
}

// TopN returns up to limit episodes, newest first; equal timestamps keep insertion order.
func (s *EpisodeStore) TopN(ctx context.Context, limit int) ([]domain.Episode, error) {
	if limit <= 0 {
		return nil, nil
	}

	query := s.db.Rebind(`
		SELECT ` + episodeColumns + `
		FROM episodes
		ORDER BY published DESC, seq ASC
		LIMIT ?`)

	var rows []episodeRow
	if err := s.db.SelectContext(ctx, &rows, query, limit); err != nil {
		return nil, fmt.Errorf("select episodes: %w", err)
	}

	episodes := make([]domain.Episode, 0, len(rows))
	for _, r := range rows {
		episodes = append(episodes, r.toDomain())
	}
	return episodes, nil
}

// Latest returns the most recent episode, or nil for an empty store.
func (s *EpisodeStore) Latest(ctx context.Context) (*domain.Episode, error) {
	episodes, err := s.TopN(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(episodes) == 0 {
		return nil, nil
	}
	return &episodes[0], nil
}

func (s *EpisodeStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM episodes"); err != nil {
		return 0, fmt.Errorf("count episodes: %w", err)
	}
	return n, nil
}

// Prune deletes everything except the keep most recent episodes.
func (s *EpisodeStore) Prune(ctx context.Context, keep int) (int64, error) {
	if keep < 1 {
		return 0, fmt.Errorf("keep must be positive, got %d", keep)
	}

	query := s.db.Rebind(`
		DELETE FROM episodes
		WHERE seq NOT IN (
			SELECT seq FROM episodes
			ORDER BY published DESC, seq ASC
			LIMIT ?
		)`)

	res, err := s.db.ExecContext(ctx, query, keep)
	if err != nil {
		return 0, fmt.Errorf("prune episodes: %w", err)
	}
	return res.RowsAffected()
}
