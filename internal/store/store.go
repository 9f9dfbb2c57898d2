// Package store persists per-user session records. The whole user mapping is
// the unit of durability: drivers load it once at startup and rewrite it on
// every mutating operation.
package store

import "github.com/m3rciful/tunebot/internal/catalog"

// User is one persisted session record, keyed by the canonical string form
// of the Telegram user ID.
type User struct {
	SearchResults   []catalog.Track `json:"search_results"`
	SearchQuery     string          `json:"search_query"`
	DownloadHistory []catalog.Track `json:"download_history"`
}

// Clone returns a deep-enough copy for snapshotting: track values are
// immutable, so copying the slices suffices.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	out := &User{SearchQuery: u.SearchQuery}
	out.SearchResults = append(out.SearchResults, u.SearchResults...)
	out.DownloadHistory = append(out.DownloadHistory, u.DownloadHistory...)
	return out
}

// Store is the durability contract. Both operations fail soft: Load returns
// an empty (never nil) mapping alongside the error, and callers are expected
// to log a Save error and keep the in-memory state authoritative.
type Store interface {
	Load() (map[string]*User, error)
	Save(users map[string]*User) error
}
