// package models defines the data model for the playlist synchronization job
package models

import (
	"fmt"
	"time"
)

// Literal formats used by the source page.
const (
	DayFormat  = "01/02/2006" // MM/DD/YYYY day selector
	HourFormat = "15:04"      // HH:mm, zero padded, compared lexicographically
)

// Checkpoint is the watermark below which aired items are considered processed.
//
// Durable is the last committed value. Transient, when set, is a newer
// candidate observed mid-run that has not been committed yet.
type Checkpoint struct {
	Durable   time.Time
	Transient *time.Time
	FirstRun  bool // no durable value existed before this run
	Repaired  bool // durable was replaced by a newer transient value
}

// AiredItem is one row of the source listing, as read from the page.
type AiredItem struct {
	Artist      string
	Title       string
	Hour        string // HH:mm
	DayDate     string // MM/DD/YYYY
	SourceLinks []string
}

// Track is an aired item after link classification and id correction.
//
// All fields are comparable, so two tracks are duplicates when they are ==.
type Track struct {
	Artist    string
	Title     string
	SpotifyID string
	DeezerID  string
}

func (t Track) String() string {
	return fmt.Sprintf("%s - %s", t.Artist, t.Title)
}

// ResolvedTrack is a track mapped to a destination identifier.
// An empty DestinationID means the track is dropped from the run.
type ResolvedTrack struct {
	Artist        string
	Title         string
	DestinationID string
}

// PlaylistSnapshot is the ordered list of destination ids on the managed playlist.
type PlaylistSnapshot struct {
	IDs           []string
	ExpectedTotal int // total reported by the listing, used to check completeness only
}

// Complete reports whether every item the listing announced was fetched.
func (s PlaylistSnapshot) Complete() bool {
	return len(s.IDs) == s.ExpectedTotal
}

// ReconciliationPlan holds the removals and ordered insertions applied to the destination playlist.
type ReconciliationPlan struct {
	ToRemove        []string
	ToInsertOrdered []string
}

// Empty reports whether the plan has nothing to apply.
func (p ReconciliationPlan) Empty() bool {
	return len(p.ToRemove) == 0 && len(p.ToInsertOrdered) == 0
}

// SyncRun is one pipeline execution bound to the window [From, Until).
type SyncRun struct {
	ID         string
	From       time.Time
	Until      time.Time
	StartedAt  time.Time
	FinishedAt time.Time
	Crawled    int
	Resolved   int
	Dropped    int
	Removed    int
	Inserted   int
	Committed  *time.Time // watermark committed at the end of the run, if any
	Err        error
}

// Duration returns how long the run took.
func (r SyncRun) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
