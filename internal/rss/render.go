package rss

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"feedmaster/internal/domain"
)

const (
	generator            = "feed-master"
	defaultEnclosureType = "audio/mpeg"
)

// Meta is the channel-level description of the output feed.
type Meta struct {
	Title       string
	Description string
	Link        string
	Language    string
	SelfLink    string
	Image       string
	Author      string
}

type RenderStats struct {
	Items   int
	Skipped int
}

type Renderer struct {
	meta   Meta
	now    func() time.Time
	logger *slog.Logger
}

func NewRenderer(meta Meta, logger *slog.Logger) *Renderer {
	return &Renderer{
		meta:   meta,
		now:    time.Now,
		logger: logger.With("component", "renderer"),
	}
}

// Render writes an RSS 2.0 document with one item per episode, in the given order.
// latest is the newest episode of the whole store and sets the channel pubDate; it may be nil.
// Episodes missing an id, an enclosure URL or a publish time are logged and left out.
func (r *Renderer) Render(w io.Writer, episodes []domain.Episode, latest *domain.Episode) (RenderStats, error) {
	var stats RenderStats

	ch := Channel{
		Title:         r.meta.Title,
		Link:          r.meta.Link,
		Description:   r.meta.Description,
		Language:      r.meta.Language,
		Generator:     generator,
		LastBuildDate: formatDate(r.now()),
		Items:         make([]Item, 0, len(episodes)),
	}
	if latest != nil {
		ch.PubDate = formatDate(latest.Published)
	}
	if r.meta.Image != "" {
		ch.ItunesImage = &ItunesImage{Href: r.meta.Image}
	}
	ch.ItunesAuthor = r.meta.Author
	if r.meta.SelfLink != "" {
		ch.AtomLink = &AtomLink{Href: r.meta.SelfLink, Rel: "self", Type: "application/rss+xml"}
	}

	for _, ep := range episodes {
		item, err := toItem(ep)
		if err != nil {
			r.logger.Warn("skipping episode",
				"id", ep.ID,
				"title", ep.Title,
				"error", err,
			)
			stats.Skipped++
			continue
		}
		ch.Items = append(ch.Items, item)
	}
	stats.Items = len(ch.Items)

	doc := RSS{
		Version:   "2.0",
		NsMedia:   nsMedia,
		NsContent: nsContent,
		NsAtom:    nsAtom,
		NsItunes:  nsItunes,
		NsGeo:     nsGeo,
		Channel:   ch,
	}

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return stats, fmt.Errorf("write header: %w", err)
	}

	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return stats, fmt.Errorf("encode feed: %w", err)
	}
	if err := enc.Close(); err != nil {
		return stats, fmt.Errorf("encode feed: %w", err)
	}
	if _, err := io.WriteString(w, "\n"); err != nil {
		return stats, fmt.Errorf("write trailer: %w", err)
	}

	return stats, nil
}

func toItem(ep domain.Episode) (Item, error) {
	switch {
	case ep.ID == "":
		return Item{}, errors.New("missing id")
	case ep.Enclosure.URL == "":
		return Item{}, errors.New("missing enclosure url")
	case ep.Published.IsZero():
		return Item{}, errors.New("missing publish time")
	}

	encType := ep.Enclosure.Type
	if encType == "" {
		encType = defaultEnclosureType
	}

	return Item{
		Title:       ep.Title,
		Description: ep.Description,
		Link:        ep.ID,
		GUID:        GUID{IsPermaLink: "false", Value: ep.ID},
		PubDate:     formatDate(ep.Published),
		Enclosure: Enclosure{
			URL:    ep.Enclosure.URL,
			Length: ep.Enclosure.Length,
			Type:   encType,
		},
	}, nil
}

func formatDate(t time.Time) string {
	return t.UTC().Format(time.RFC1123Z)
}
