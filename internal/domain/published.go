package domain

import "time"

// SkewWindow is the distance from "now" inside which a publish time is considered
// indistinguishable from the moment of ingestion.
const SkewWindow = 2 * time.Hour

// NormalizePublished pins timestamps that are in the future, or within SkewWindow of now,
// to now. Everything else is returned unchanged.
func NormalizePublished(raw, now time.Time) time.Time {
	if raw.After(now) {
		return now
	}
	if now.Sub(raw) < SkewWindow {
		return now
	}
	return raw
}
