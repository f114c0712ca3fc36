package rss

import (
	"bytes"
	"encoding/xml"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"feedmaster/internal/domain"
)

var testMeta = Meta{
	Title:       "Combined <Radio> & Co",
	Description: "All the programs",
	Link:        "http://example.com",
	Language:    "ru-ru",
}

func newTestRenderer(now time.Time) *Renderer {
	r := NewRenderer(testMeta, slog.New(slog.NewTextHandler(io.Discard, nil)))
	r.now = func() time.Time { return now }
	return r
}

func testEpisode(id string, published time.Time) domain.Episode {
	return domain.Episode{
		ID:          id,
		Title:       "Episode " + id,
		Description: "About " + id,
		Enclosure:   domain.Enclosure{URL: id, Length: 12345, Type: "audio/mpeg"},
		Published:   published,
	}
}

func TestRender_Document(t *testing.T) {
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	first := testEpisode("http://cdn.example.com/2.mp3", now.Add(-time.Hour))
	second := testEpisode("http://cdn.example.com/1.mp3", now.Add(-48*time.Hour))
	second.Enclosure.Type = ""

	var buf bytes.Buffer
	stats, err := newTestRenderer(now).Render(&buf, []domain.Episode{first, second}, &first)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Items)
	assert.Zero(t, stats.Skipped)

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, `<?xml version="1.0" encoding="UTF-8"?>`))
	for _, ns := range []string{
		`xmlns:media="http://search.yahoo.com/mrss/"`,
		`xmlns:content="http://purl.org/rss/1.0/modules/content/"`,
		`xmlns:atom="http://www.w3.org/2005/Atom"`,
		`xmlns:itunes="http://www.itunes.com/dtds/podcast-1.0.dtd"`,
		`xmlns:geo="http://www.w3.org/2003/01/geo/wgs84_pos#"`,
	} {
		assert.Contains(t, out, ns)
	}
	assert.Contains(t, out, "<generator>feed-master</generator>")
	assert.Contains(t, out, "<pubDate>Sun, 10 Mar 2024 11:00:00 +0000</pubDate>")
	assert.Contains(t, out, `<guid isPermaLink="false">http://cdn.example.com/2.mp3</guid>`)
	assert.Contains(t, out, `<enclosure url="http://cdn.example.com/1.mp3" length="12345" type="audio/mpeg"></enclosure>`)

	parsed, err := gofeed.NewParser().ParseString(out)
	require.NoError(t, err)
	assert.Contains(t, parsed.Title, "Combined")
	assert.Equal(t, "ru-ru", parsed.Language)
	require.Len(t, parsed.Items, 2)
	assert.Equal(t, "Episode http://cdn.example.com/2.mp3", parsed.Items[0].Title)
	assert.Equal(t, "http://cdn.example.com/2.mp3", parsed.Items[0].GUID)
	require.Len(t, parsed.Items[1].Enclosures, 1)
	assert.Equal(t, "12345", parsed.Items[1].Enclosures[0].Length)
	require.NotNil(t, parsed.Items[1].PublishedParsed)
	assert.True(t, second.Published.Equal(*parsed.Items[1].PublishedParsed))
}

func TestRender_Empty(t *testing.T) {
	var buf bytes.Buffer
	stats, err := newTestRenderer(time.Now()).Render(&buf, nil, nil)
	require.NoError(t, err)
	assert.Zero(t, stats.Items)

	var doc RSS
	require.NoError(t, xml.Unmarshal(buf.Bytes(), &doc))
	assert.Equal(t, "2.0", doc.Version)
	assert.Equal(t, "All the programs", doc.Channel.Description)
	assert.Empty(t, doc.Channel.Items)
	assert.Empty(t, doc.Channel.PubDate)
	assert.NotContains(t, buf.String(), "<item>")
}

func TestRender_EscapesMarkup(t *testing.T) {
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	ep := testEpisode("http://cdn.example.com/a.mp3?x=1&y=2", now.AddDate(0, 0, -1))
	ep.Title = `Tom & Jerry <live> "special" </title></item>`
	ep.Description = `<p>Hello <b>world</b></p> ]]> & more`

	var buf bytes.Buffer
	_, err := newTestRenderer(now).Render(&buf, []domain.Episode{ep}, &ep)
	require.NoError(t, err)

	var doc RSS
	require.NoError(t, xml.Unmarshal(buf.Bytes(), &doc))
	require.Len(t, doc.Channel.Items, 1)
	assert.Equal(t, ep.Title, doc.Channel.Items[0].Title)
	assert.Equal(t, ep.Description, doc.Channel.Items[0].Description)
	assert.Equal(t, ep.ID, doc.Channel.Items[0].Link)
	assert.Equal(t, ep.ID, doc.Channel.Items[0].Enclosure.URL)
	assert.Equal(t, testMeta.Title, doc.Channel.Title)
}

func TestRender_SkipsBrokenItems(t *testing.T) {
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	good := testEpisode("http://cdn.example.com/ok.mp3", now.AddDate(0, 0, -1))
	noID := testEpisode("", now.AddDate(0, 0, -2))
	noEnclosure := testEpisode("http://cdn.example.com/x.mp3", now.AddDate(0, 0, -3))
	noEnclosure.Enclosure.URL = ""
	noDate := testEpisode("http://cdn.example.com/y.mp3", time.Time{})

	var buf bytes.Buffer
	stats, err := newTestRenderer(now).Render(&buf, []domain.Episode{noID, good, noEnclosure, noDate}, &good)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Items)
	assert.Equal(t, 3, stats.Skipped)

	var doc RSS
	require.NoError(t, xml.Unmarshal(buf.Bytes(), &doc))
	require.Len(t, doc.Channel.Items, 1)
	assert.Equal(t, good.ID, doc.Channel.Items[0].GUID.Value)
}

func TestRender_SelfLink(t *testing.T) {
	meta := testMeta
	meta.SelfLink = "http://example.com/rss"
	r := NewRenderer(meta, slog.New(slog.NewTextHandler(io.Discard, nil)))

	var buf bytes.Buffer
	_, err := r.Render(&buf, nil, nil)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), `<atom:link href="http://example.com/rss" rel="self" type="application/rss+xml"></atom:link>`)
}

func TestRender_ItunesChannelMetadata(t *testing.T) {
	meta := testMeta
	meta.Image = "http://example.com/cover.jpg"
	meta.Author = "Radio & Friends"
	r := NewRenderer(meta, slog.New(slog.NewTextHandler(io.Discard, nil)))

	var buf bytes.Buffer
	_, err := r.Render(&buf, nil, nil)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), `<itunes:author>Radio &amp; Friends</itunes:author>`)
	assert.Contains(t, buf.String(), `<itunes:image href="http://example.com/cover.jpg"></itunes:image>`)

	parsed, err := gofeed.NewParser().ParseString(buf.String())
	require.NoError(t, err)
	require.NotNil(t, parsed.ITunesExt)
	assert.Equal(t, "http://example.com/cover.jpg", parsed.ITunesExt.Image)
	assert.Equal(t, "Radio & Friends", parsed.ITunesExt.Author)

	buf.Reset()
	_, err = newTestRenderer(time.Now()).Render(&buf, nil, nil)
	require.NoError(t, err)
	assert.NotContains(t, buf.String(), "itunes:image")
	assert.NotContains(t, buf.String(), "itunes:author")
}
