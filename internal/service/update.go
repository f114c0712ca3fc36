package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"feedmaster/internal/domain"
	"feedmaster/internal/metrics"
)

// UpdateService pulls every configured source into the episode store.
type UpdateService struct {
	sources     []domain.Source
	fetcher     Fetcher
	episodes    EpisodeStore
	states      SourceStateStore
	concurrency int
	skipTitle   func(title string) bool
	now         func() time.Time
	logger      *slog.Logger
}

func NewUpdateService(
	sources []domain.Source,
	fetcher Fetcher,
	episodes EpisodeStore,
	states SourceStateStore,
	concurrency int,
	logger *slog.Logger,
) *UpdateService {
	if concurrency < 1 {
		concurrency = 1
	}
	return &UpdateService{
		sources:     sources,
		fetcher:     fetcher,
		episodes:    episodes,
		states:      states,
		concurrency: concurrency,
		skipTitle:   func(string) bool { return false },
		now:         time.Now,
		logger:      logger.With("component", "update"),
	}
}

// WithTitleFilter drops entries whose title matches skip before they reach the store.
func (s *UpdateService) WithTitleFilter(skip func(title string) bool) *UpdateService {
	if skip != nil {
		s.skipTitle = skip
	}
	return s
}

type sourceResult struct {
	fetched    int
	inserted   int
	duplicates int
	skipped    int
	filtered   int
	failed     bool
}

// Update runs one ingestion pass. A source that cannot be fetched is logged and skipped;
// a store error stops the whole pass and is returned together with the partial stats.
func (s *UpdateService) Update(ctx context.Context) (*domain.UpdateStats, error) {
	startTime := time.Now()
	s.logger.Info("starting update",
		"sources", len(s.sources),
		"concurrency", s.concurrency,
	)

	stats := &domain.UpdateStats{Sources: len(s.sources)}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for _, src := range s.sources {
		g.Go(func() error {
			res, err := s.syncSource(gctx, src)

			mu.Lock()
			stats.Fetched += res.fetched
			stats.New += res.inserted
			stats.Duplicates += res.duplicates
			stats.SkippedEntries += res.skipped
			stats.Filtered += res.filtered
			if res.failed {
				stats.FailedSources++
			}
			mu.Unlock()

			return err
		})
	}

	err := g.Wait()
	stats.Duration = time.Since(startTime)
	if err != nil {
		return stats, err
	}

	s.logger.Info("update completed",
		"sources", stats.Sources,
		"failed_sources", stats.FailedSources,
		"fetched", stats.Fetched,
		"new", stats.New,
		"duplicates", stats.Duplicates,
		"skipped", stats.SkippedEntries,
		"filtered", stats.Filtered,
		"duration", stats.Duration,
	)

	return stats, nil
}

func (s *UpdateService) syncSource(ctx context.Context, src domain.Source) (sourceResult, error) {
	var res sourceResult
	if err := ctx.Err(); err != nil {
		return res, err
	}

	logger := s.logger.With("source", src.Name)
	now := s.now()

	entries, err := s.fetcher.Fetch(ctx, src)
	if err != nil {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		logger.Warn("skipping source", "url", src.URL, "error", err)
		metrics.SourceFailures.WithLabelValues(src.Name).Inc()
		res.failed = true
		return res, s.recordState(ctx, src, now, err, 0)
	}

	res.fetched = len(entries)
	logger.Debug("fetched entries", "count", len(entries))

	for _, entry := range entries {
		if s.skipTitle(entry.Title) {
			logger.Debug("entry filtered by title", "title", entry.Title)
			res.filtered++
			continue
		}

		episode, ok := toEpisode(entry, src, now)
		if !ok {
			logger.Debug("entry has no enclosure", "title", entry.Title)
			res.skipped++
			continue
		}

		inserted, err := s.episodes.Upsert(ctx, episode)
		if err != nil {
			return res, fmt.Errorf("store episode from %s: %w", src.Name, err)
		}

		if inserted {
			res.inserted++
			metrics.EpisodesInserted.Inc()
			logger.Debug("new episode", "id", episode.ID, "title", episode.Title)
		} else {
			res.duplicates++
			metrics.EpisodesDuplicate.Inc()
		}
	}

	logger.Info("source synced",
		"fetched", res.fetched,
		"new", res.inserted,
		"duplicates", res.duplicates,
	)

	return res, s.recordState(ctx, src, now, nil, res.inserted)
}

func (s *UpdateService) recordState(ctx context.Context, src domain.Source, now time.Time, fetchErr error, inserted int) error {
	state := &domain.SourceState{
		SourceName:   src.Name,
		FeedURL:      src.URL,
		LastSyncedAt: now,
		TotalNew:     int64(inserted),
	}
	if fetchErr != nil {
		state.LastError = fetchErr.Error()
	}

	if err := s.states.Update(ctx, state); err != nil {
		return fmt.Errorf("update state of %s: %w", src.Name, err)
	}
	return nil
}

// toEpisode keys the entry by its enclosure URL and pins its publish time with now.
func toEpisode(entry domain.RawEntry, src domain.Source, now time.Time) (*domain.Episode, bool) {
	enc, ok := entry.Enclosure()
	if !ok {
		return nil, false
	}

	return &domain.Episode{
		ID:          enc.Href,
		Title:       entry.Title,
		Description: entry.Description,
		Enclosure: domain.Enclosure{
			URL:    enc.Href,
			Length: enc.Length,
			Type:   enc.Type,
		},
		Published: domain.NormalizePublished(entry.Published, now),
		Source:    src.Name,
	}, true
}
