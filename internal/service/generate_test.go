package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"feedmaster/internal/domain"
	"feedmaster/internal/rss"
	"feedmaster/internal/service/mocks"
)

type GenerateServiceTestSuite struct {
	suite.Suite
	ctrl *gomock.Controller

	episodes *mocks.MockEpisodeStore
	path     string
	logger   *slog.Logger
}

func (s *GenerateServiceTestSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.episodes = mocks.NewMockEpisodeStore(s.ctrl)
	s.path = filepath.Join(s.T().TempDir(), "feed.xml")
	s.logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func (s *GenerateServiceTestSuite) TearDownTest() {
	s.ctrl.Finish()
}

func TestGenerateServiceTestSuite(t *testing.T) {
	suite.Run(t, new(GenerateServiceTestSuite))
}

func (s *GenerateServiceTestSuite) renderer() *rss.Renderer {
	return rss.NewRenderer(rss.Meta{Title: "Combined", Link: "http://example.com"}, s.logger)
}

func (s *GenerateServiceTestSuite) TestGenerate_Publishes() {
	ctx := context.Background()
	now := time.Now().UTC()
	episodes := []domain.Episode{
		{ID: "http://cdn.example.com/2.mp3", Title: "two", Enclosure: domain.Enclosure{URL: "http://cdn.example.com/2.mp3"}, Published: now.Add(-3 * time.Hour)},
		{ID: "http://cdn.example.com/1.mp3", Title: "one", Enclosure: domain.Enclosure{URL: "http://cdn.example.com/1.mp3"}, Published: now.Add(-24 * time.Hour)},
	}

	s.episodes.EXPECT().TopN(gomock.Any(), 50).Return(episodes, nil)
	s.episodes.EXPECT().Latest(gomock.Any()).Return(&episodes[0], nil)

	stats, err := NewGenerateService(s.episodes, s.renderer(), s.path, 50, s.logger).Generate(ctx)

	s.Require().NoError(err)
	s.Equal(s.path, stats.Path)
	s.Equal(2, stats.Items)
	s.Zero(stats.SkippedItems)

	f, err := os.Open(s.path)
	s.Require().NoError(err)
	defer f.Close()

	parsed, err := gofeed.NewParser().Parse(f)
	s.Require().NoError(err)
	s.Require().Len(parsed.Items, 2)
	s.Equal("two", parsed.Items[0].Title)
	s.Equal("one", parsed.Items[1].Title)
}

func (s *GenerateServiceTestSuite) TestGenerate_EmptyStore() {
	ctx := context.Background()

	s.episodes.EXPECT().TopN(gomock.Any(), 100).Return(nil, nil)
	s.episodes.EXPECT().Latest(gomock.Any()).Return(nil, nil)

	stats, err := NewGenerateService(s.episodes, s.renderer(), s.path, 100, s.logger).Generate(ctx)

	s.Require().NoError(err)
	s.Zero(stats.Items)

	data, err := os.ReadFile(s.path)
	s.Require().NoError(err)
	parsed, err := gofeed.NewParser().ParseString(string(data))
	s.Require().NoError(err)
	s.Equal("Combined", parsed.Title)
	s.Empty(parsed.Items)
}

func (s *GenerateServiceTestSuite) TestGenerate_StoreErrorWritesNothing() {
	ctx := context.Background()

	s.episodes.EXPECT().TopN(gomock.Any(), 100).Return(nil, errors.New("connection refused"))

	_, err := NewGenerateService(s.episodes, s.renderer(), s.path, 100, s.logger).Generate(ctx)

	s.ErrorContains(err, "load episodes")
	s.NoFileExists(s.path)
}

func (s *GenerateServiceTestSuite) TestGenerate_RenderErrorKeepsPreviousFile() {
	ctx := context.Background()
	s.Require().NoError(os.WriteFile(s.path, []byte("previous"), 0o644))

	renderErr := errors.New("boom")
	renderer := mocks.NewMockRenderer(s.ctrl)
	renderer.EXPECT().Render(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
		func(w io.Writer, _ []domain.Episode, _ *domain.Episode) (rss.RenderStats, error) {
			_, _ = io.WriteString(w, "<rss><chan")
			return rss.RenderStats{}, renderErr
		},
	)
	s.episodes.EXPECT().TopN(gomock.Any(), 100).Return(nil, nil)
	s.episodes.EXPECT().Latest(gomock.Any()).Return(nil, nil)

	_, err := NewGenerateService(s.episodes, renderer, s.path, 100, s.logger).Generate(ctx)

	s.Require().ErrorIs(err, renderErr)
	data, err := os.ReadFile(s.path)
	s.Require().NoError(err)
	s.Equal("previous", string(data))
}
