package domain

import "time"

// UpdateStats holds statistics about one update run.
type UpdateStats struct {
	Sources        int
	FailedSources  int
	Fetched        int
	New            int
	Duplicates     int
	SkippedEntries int
	Filtered       int
	Duration       time.Duration
}

// GenerateStats holds statistics about one generate run.
type GenerateStats struct {
	Path         string
	Items        int
	SkippedItems int
	Duration     time.Duration
}

type SourceState struct {
	SourceName   string    `db:"source_name"`
	FeedURL      string    `db:"feed_url"`
	LastSyncedAt time.Time `db:"last_synced_at"`
	LastError    string    `db:"last_error"`
	TotalNew     int64     `db:"total_new"`
}
