package service

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"io"

	"feedmaster/internal/domain"
	"feedmaster/internal/rss"
)

type Fetcher interface {
	Fetch(ctx context.Context, src domain.Source) ([]domain.RawEntry, error)
}

type EpisodeStore interface {
	Upsert(ctx context.Context, episode *domain.Episode) (bool, error)
	TopN(ctx context.Context, limit int) ([]domain.Episode, error)
	Latest(ctx context.Context) (*domain.Episode, error)
}

type SourceStateStore interface {
	Update(ctx context.Context, state *domain.SourceState) error
}

type Renderer interface {
	Render(w io.Writer, episodes []domain.Episode, latest *domain.Episode) (rss.RenderStats, error)
}
