package catalog

import (
	"regexp"
	"strings"
)

const (
	// UnknownTrack is the title sentinel for entries without a usable title.
	UnknownTrack = "Unknown track"
	// UnknownArtist is the artist sentinel for entries without an uploader.
	UnknownArtist = "Unknown artist"
)

// Track is one immutable catalog entry. JSON tags match the persisted
// user state format.
type Track struct {
	Title    string `json:"title"`
	URL      string `json:"webpage_url"`
	Duration int    `json:"duration"`
	Artist   string `json:"artist"`
}

// marketing tags stripped from raw catalog titles, longest first so that
// "official music video" is not reduced to "music" by a shorter match.
var marketingTagRe = regexp.MustCompile(`(?i)\b(official music video|official video|lyric video|hd|4k)\b`)

// CleanTitle strips marketing/quality tags from a raw title and collapses
// the surrounding whitespace. An empty result yields the UnknownTrack sentinel.
func CleanTitle(title string) string {
	cleaned := marketingTagRe.ReplaceAllString(title, " ")
	cleaned = strings.Join(strings.Fields(cleaned), " ")
	if cleaned == "" {
		return UnknownTrack
	}
	return cleaned
}
