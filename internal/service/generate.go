package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"feedmaster/internal/domain"
	"feedmaster/internal/metrics"
	"feedmaster/internal/rss"
)

// GenerateService renders the newest stored episodes into the output file.
type GenerateService struct {
	episodes EpisodeStore
	renderer Renderer
	path     string
	maxItems int
	logger   *slog.Logger
}

func NewGenerateService(episodes EpisodeStore, renderer Renderer, path string, maxItems int, logger *slog.Logger) *GenerateService {
	return &GenerateService{
		episodes: episodes,
		renderer: renderer,
		path:     path,
		maxItems: maxItems,
		logger:   logger.With("component", "generate"),
	}
}

// Generate replaces the output file atomically. Nothing is written when reading the
// store fails, and a failed publish leaves the previous file in place.
func (s *GenerateService) Generate(ctx context.Context) (*domain.GenerateStats, error) {
	startTime := time.Now()

	episodes, err := s.episodes.TopN(ctx, s.maxItems)
	if err != nil {
		return nil, fmt.Errorf("load episodes: %w", err)
	}

	latest, err := s.episodes.Latest(ctx)
	if err != nil {
		return nil, fmt.Errorf("load latest episode: %w", err)
	}

	var rendered rss.RenderStats
	err = rss.Publish(s.path, func(w io.Writer) error {
		var err error
		rendered, err = s.renderer.Render(w, episodes, latest)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("publish %s: %w", s.path, err)
	}

	stats := &domain.GenerateStats{
		Path:         s.path,
		Items:        rendered.Items,
		SkippedItems: rendered.Skipped,
		Duration:     time.Since(startTime),
	}

	metrics.FeedItems.Set(float64(stats.Items))
	metrics.GenerateDuration.Observe(stats.Duration.Seconds())

	s.logger.Info("feed generated",
		"path", stats.Path,
		"items", stats.Items,
		"skipped", stats.SkippedItems,
		"duration", stats.Duration,
	)

	return stats, nil
}
