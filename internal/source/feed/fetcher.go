package feed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"feedmaster/internal/domain"
)

const maxFeedBytes = 10 << 20

// ErrNoEnclosures is returned when none of the considered entries carries an enclosure.
var ErrNoEnclosures = errors.New("no entries with enclosure")

// Config holds fetcher configuration.
type Config struct {
	Timeout   time.Duration
	MaxItems  int
	UserAgent string
}

// Fetcher retrieves and parses upstream RSS/Atom feeds.
type Fetcher struct {
	httpClient *http.Client
	parser     *gofeed.Parser
	maxItems   int
	userAgent  string
	now        func() time.Time
	logger     *slog.Logger
}

// New creates a new feed fetcher.
func New(cfg Config, logger *slog.Logger) *Fetcher {
	return &Fetcher{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		parser:    gofeed.NewParser(),
		maxItems:  cfg.MaxItems,
		userAgent: cfg.UserAgent,
		now:       time.Now,
		logger:    logger.With("component", "fetcher"),
	}
}

// Fetch downloads one source and returns up to MaxItems entries that carry an enclosure,
// in document order.
func (f *Fetcher) Fetch(ctx context.Context, src domain.Source) ([]domain.RawEntry, error) {
	parsed, err := f.download(ctx, src.URL)
	if err != nil {
		return nil, err
	}

	items := parsed.Items
	if f.maxItems > 0 && len(items) > f.maxItems {
		items = items[:f.maxItems]
	}

	entries := make([]domain.RawEntry, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		entry := f.transform(src, item)
		if _, ok := entry.Enclosure(); !ok {
			f.logger.Debug("entry without enclosure, skipped",
				"source", src.Name,
				"title", entry.Title,
			)
			continue
		}
		entries = append(entries, entry)
	}

	if len(entries) == 0 && len(items) > 0 {
		return nil, ErrNoEnclosures
	}

	return entries, nil
}

func (f *Fetcher) download(ctx context.Context, url string) (*gofeed.Feed, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml;q=0.9, */*;q=0.8")
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	parsed, err := f.parser.Parse(io.LimitReader(resp.Body, maxFeedBytes))
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}
	if parsed == nil {
		return nil, errors.New("parse feed: empty document")
	}

	return parsed, nil
}

// transform keeps the title as the parser delivers it.
func (f *Fetcher) transform(src domain.Source, item *gofeed.Item) domain.RawEntry {
	entry := domain.RawEntry{
		Title:       item.Title,
		Description: item.Description,
	}
	if entry.Description == "" {
		entry.Description = item.Content
	}

	switch {
	case item.PublishedParsed != nil:
		entry.Published = *item.PublishedParsed
	case item.UpdatedParsed != nil:
		entry.Published = *item.UpdatedParsed
	default:
		entry.Published = f.now()
	}

	if item.Link != "" {
		entry.Links = append(entry.Links, domain.Link{Rel: "alternate", Href: item.Link})
	}
	for _, enc := range item.Enclosures {
		if enc == nil {
			continue
		}
		length, err := parseLength(enc.Length)
		if err != nil {
			f.logger.Debug("bad enclosure length",
				"source", src.Name,
				"title", item.Title,
				"length", enc.Length,
			)
		}
		entry.Links = append(entry.Links, domain.Link{
			Rel:    domain.RelEnclosure,
			Href:   strings.TrimSpace(enc.URL),
			Length: length,
			Type:   enc.Type,
		})
	}

	return entry
}

// parseLength reads an enclosure length; an absent length is 0 without error.
func parseLength(raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, err
	}
	return n, nil
}
