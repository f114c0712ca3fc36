// Package rss renders the combined podcast feed and publishes it atomically.
package rss

import "encoding/xml"

const (
	nsMedia   = "http://search.yahoo.com/mrss/"
	nsContent = "http://purl.org/rss/1.0/modules/content/"
	nsAtom    = "http://www.w3.org/2005/Atom"
	nsItunes  = "http://www.itunes.com/dtds/podcast-1.0.dtd"
	nsGeo     = "http://www.w3.org/2003/01/geo/wgs84_pos#"
)

// RSS is the root element of an RSS feed.
type RSS struct {
	XMLName   xml.Name `xml:"rss"`
	Version   string   `xml:"version,attr"`
	NsMedia   string   `xml:"xmlns:media,attr"`
	NsContent string   `xml:"xmlns:content,attr"`
	NsAtom    string   `xml:"xmlns:atom,attr"`
	NsItunes  string   `xml:"xmlns:itunes,attr"`
	NsGeo     string   `xml:"xmlns:geo,attr"`
	Channel   Channel  `xml:"channel"`
}

// Channel represents the channel element in an RSS feed.
type Channel struct {
	Title         string       `xml:"title"`
	Link          string       `xml:"link"`
	Description   string       `xml:"description"`
	Language      string       `xml:"language,omitempty"`
	Generator     string       `xml:"generator"`
	PubDate       string       `xml:"pubDate,omitempty"`       // RFC1123Z
	LastBuildDate string       `xml:"lastBuildDate,omitempty"` // RFC1123Z
	AtomLink      *AtomLink    `xml:"atom:link,omitempty"`
	ItunesAuthor  string       `xml:"itunes:author,omitempty"`
	ItunesImage   *ItunesImage `xml:"itunes:image,omitempty"`
	Items         []Item       `xml:"item"`
}

type AtomLink struct {
	Href string `xml:"href,attr"`
	Rel  string `xml:"rel,attr"`
	Type string `xml:"type,attr"`
}

type ItunesImage struct {
	Href string `xml:"href,attr"`
}

// Item represents an item element in an RSS feed.
type Item struct {
	Title       string    `xml:"title"`
	Description string    `xml:"description"`
	Link        string    `xml:"link"`
	GUID        GUID      `xml:"guid"`
	PubDate     string    `xml:"pubDate"`
	Enclosure   Enclosure `xml:"enclosure"`
}

type GUID struct {
	IsPermaLink string `xml:"isPermaLink,attr"`
	Value       string `xml:",chardata"`
}

type Enclosure struct {
	URL    string `xml:"url,attr"`
	Length int64  `xml:"length,attr"`
	Type   string `xml:"type,attr"`
}
