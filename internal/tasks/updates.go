package tasks

import (
	"fmt"
	"time"

	"github.com/desertthunder/radiosync/internal/models"
)

// ProgressUpdate represents a progress event during a sync run.
//
// Sent to the CLI layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Run phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data
}

// Run phase enumeration
type Phase int

const (
	ResolveCheckpoint Phase = iota
	CrawlSource
	ResolveTracks
	FetchPlaylist
	RemoveItems
	InsertItems
	CommitCheckpoint
)

func (p Phase) String() string {
	switch p {
	case ResolveCheckpoint:
		return "resolve_checkpoint"
	case CrawlSource:
		return "crawl_source"
	case ResolveTracks:
		return "resolve_tracks"
	case FetchPlaylist:
		return "fetch_playlist"
	case RemoveItems:
		return "remove_items"
	case InsertItems:
		return "insert_items"
	case CommitCheckpoint:
		return "commit_checkpoint"
	default:
		return ""
	}
}

// sendProgress sends update without blocking; a nil or full channel drops it.
func sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}

func checkpointUpdate(cp models.Checkpoint) ProgressUpdate {
	msg := fmt.Sprintf("Crawling from %s", cp.Durable.Format(time.DateTime))
	if cp.FirstRun {
		msg += " (first run)"
	}
	return ProgressUpdate{Phase: ResolveCheckpoint, Step: 1, Total: 1, Message: msg, Data: cp}
}

func crawlUpdate(tracks, days int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   CrawlSource,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Crawled %d tracks over %d days", tracks, days),
	}
}

func resolveUpdate(resolved, total int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ResolveTracks,
		Step:    resolved,
		Total:   total,
		Message: fmt.Sprintf("Resolved %d/%d tracks", resolved, total),
	}
}

func fetchPlaylistUpdate(snapshot models.PlaylistSnapshot) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchPlaylist,
		Step:    len(snapshot.IDs),
		Total:   snapshot.ExpectedTotal,
		Message: fmt.Sprintf("Fetched %d/%d playlist items", len(snapshot.IDs), snapshot.ExpectedTotal),
	}
}

func batchUpdate(phase Phase, step, total, size int) ProgressUpdate {
	verb := "Inserted"
	if phase == RemoveItems {
		verb = "Removed"
	}
	return ProgressUpdate{
		Phase:   phase,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] %s %d items", step, total, verb, size),
	}
}

func commitUpdate(ts time.Time, committed bool) ProgressUpdate {
	msg := "Checkpoint unchanged"
	if committed {
		msg = fmt.Sprintf("Checkpoint committed at %s", ts.Format(time.DateTime))
	}
	return ProgressUpdate{Phase: CommitCheckpoint, Step: 1, Total: 1, Message: msg}
}
