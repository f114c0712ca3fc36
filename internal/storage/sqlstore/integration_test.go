//go:build integration

package sqlstore

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"feedmaster/internal/domain"
)

type PostgresIntegrationSuite struct {
	suite.Suite
	ctx       context.Context
	container *postgres.PostgresContainer
	db        *sqlx.DB
}

func (s *PostgresIntegrationSuite) SetupSuite() {
	s.ctx = context.Background()

	container, err := postgres.Run(s.ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("feed_master"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	s.Require().NoError(err)
	s.container = container

	connStr, err := container.ConnectionString(s.ctx, "sslmode=disable")
	s.Require().NoError(err)

	db, err := sqlx.Connect("postgres", connStr)
	s.Require().NoError(err)
	s.db = db

	s.Require().NoError(Migrate(db))
}

func (s *PostgresIntegrationSuite) TearDownSuite() {
	if s.db != nil {
		s.db.Close()
	}
	if s.container != nil {
		_ = s.container.Terminate(s.ctx)
	}
}

func (s *PostgresIntegrationSuite) SetupTest() {
	_, _ = s.db.ExecContext(s.ctx, "DELETE FROM episodes")
	_, _ = s.db.ExecContext(s.ctx, "DELETE FROM source_state")
}

func TestPostgresIntegrationSuite(t *testing.T) {
	suite.Run(t, new(PostgresIntegrationSuite))
}

func (s *PostgresIntegrationSuite) TestMigrate_Twice() {
	s.NoError(Migrate(s.db))
}

func (s *PostgresIntegrationSuite) TestEpisodeStore_Upsert_Insert() {
	store := NewEpisodeStore(s.db)
	now := time.Now().UTC().Truncate(time.Microsecond)

	inserted, err := store.Upsert(s.ctx, episode("https://cdn.example.com/1.mp3", now))
	s.NoError(err)
	s.True(inserted)

	var count int
	err = s.db.GetContext(s.ctx, &count, "SELECT COUNT(*) FROM episodes WHERE id = $1", "https://cdn.example.com/1.mp3")
	s.NoError(err)
	s.Equal(1, count)

	latest, err := store.Latest(s.ctx)
	s.Require().NoError(err)
	s.True(now.Equal(latest.Published))
}

func (s *PostgresIntegrationSuite) TestEpisodeStore_Upsert_SkipExisting() {
	store := NewEpisodeStore(s.db)
	now := time.Now().UTC()

	_, err := store.Upsert(s.ctx, episode("https://cdn.example.com/1.mp3", now.Add(-time.Hour)))
	s.Require().NoError(err)

	changed := episode("https://cdn.example.com/1.mp3", now)
	changed.Title = "Updated Title"
	inserted, err := store.Upsert(s.ctx, changed)
	s.NoError(err)
	s.False(inserted)

	var title string
	err = s.db.GetContext(s.ctx, &title, "SELECT title FROM episodes WHERE id = $1", changed.ID)
	s.NoError(err)
	s.Equal("title https://cdn.example.com/1.mp3", title)
}

func (s *PostgresIntegrationSuite) TestEpisodeStore_ConcurrentWriters() {
	// two stores on separate pools behave like two deployments
	other, err := sqlx.Connect("postgres", s.mustConnString())
	s.Require().NoError(err)
	defer other.Close()

	stores := []*EpisodeStore{NewEpisodeStore(s.db), NewEpisodeStore(other)}
	published := time.Now().UTC().AddDate(0, 0, -1)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners = map[string]int{}
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("https://cdn.example.com/%d.mp3", i%4)
			inserted, err := stores[i%2].Upsert(s.ctx, episode(id, published))
			s.NoError(err)
			if inserted {
				mu.Lock()
				winners[id]++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	s.Len(winners, 4)
	for id, n := range winners {
		s.Equal(1, n, id)
	}

	n, err := stores[0].Count(s.ctx)
	s.NoError(err)
	s.Equal(int64(4), n)
}

func (s *PostgresIntegrationSuite) TestEpisodeStore_TopNAndPrune() {
	store := NewEpisodeStore(s.db)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 150; i++ {
		_, err := store.Upsert(s.ctx, episode(fmt.Sprintf("ep-%03d", i), base.Add(time.Duration(i)*time.Minute)))
		s.Require().NoError(err)
	}
	_, err := store.Upsert(s.ctx, episode("tie-1", base.Add(149*time.Minute)))
	s.Require().NoError(err)

	got, err := store.TopN(s.ctx, 100)
	s.Require().NoError(err)
	s.Require().Len(got, 100)
	s.Equal("ep-149", got[0].ID)
	s.Equal("tie-1", got[1].ID)

	removed, err := store.Prune(s.ctx, 10)
	s.NoError(err)
	s.Equal(int64(141), removed)
}

func (s *PostgresIntegrationSuite) TestSourceStateStore() {
	store := NewSourceStateStore(s.db)
	now := time.Now().UTC().Truncate(time.Microsecond)

	s.NoError(store.Update(s.ctx, &domain.SourceState{SourceName: "p", FeedURL: "http://x", LastSyncedAt: now, TotalNew: 2}))
	s.NoError(store.Update(s.ctx, &domain.SourceState{SourceName: "p", FeedURL: "http://x", LastSyncedAt: now, TotalNew: 3}))

	state, err := store.Get(s.ctx, "p")
	s.Require().NoError(err)
	s.Equal(int64(5), state.TotalNew)
	s.True(now.Equal(state.LastSyncedAt))
}

func (s *PostgresIntegrationSuite) mustConnString() string {
	connStr, err := s.container.ConnectionString(s.ctx, "sslmode=disable")
	s.Require().NoError(err)
	return connStr
}
