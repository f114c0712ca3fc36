package domain

import (
	"time"

	"github.com/samber/lo"
)

// RelEnclosure marks the link of a feed entry that points at the downloadable resource.
const RelEnclosure = "enclosure"

// Source is one upstream feed.
type Source struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

type Enclosure struct {
	URL    string
	Length int64
	Type   string
}

// Episode is keyed by its enclosure URL across all sources.
type Episode struct {
	ID          string
	Title       string
	Description string
	Enclosure   Enclosure
	Published   time.Time
	Source      string // first source that delivered it
}

type Link struct {
	Rel    string
	Href   string
	Length int64
	Type   string
}

// RawEntry is a parsed upstream entry before normalization.
type RawEntry struct {
	Title       string
	Description string
	Links       []Link
	Published   time.Time
}

// Enclosure returns the first link tagged as an enclosure.
func (e RawEntry) Enclosure() (Link, bool) {
	return lo.Find(e.Links, func(l Link) bool {
		return l.Rel == RelEnclosure && l.Href != ""
	})
}
