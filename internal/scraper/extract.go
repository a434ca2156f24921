package scraper

import (
	"math"
	"strings"

	"github.com/desertthunder/radiosync/internal/models"
	"github.com/desertthunder/radiosync/internal/shared"
)

// Platform identifies the service an outbound link points to.
type Platform string

const (
	PlatformNone    Platform = ""
	PlatformSpotify Platform = "spotify"
	PlatformDeezer  Platform = "deezer"
)

// Corrections fixes identifiers the source is known to publish wrongly.
type Corrections struct {
	aliases   map[string]string
	blacklist map[string]struct{}
}

// NewCorrections builds the alias and blacklist tables from config.
func NewCorrections(cfg shared.CorrectionsConfig) Corrections {
	c := Corrections{
		aliases:   make(map[string]string, len(cfg.Aliases)),
		blacklist: make(map[string]struct{}, len(cfg.Blacklist)),
	}
	for from, to := range cfg.Aliases {
		c.aliases[from] = to
	}
	for _, id := range cfg.Blacklist {
		c.blacklist[id] = struct{}{}
	}
	return c
}

// Fix applies the alias table, then the blacklist. A blacklisted id becomes empty.
func (c Corrections) Fix(id string) string {
	if alias, ok := c.aliases[id]; ok {
		id = alias
	}
	if _, ok := c.blacklist[id]; ok {
		return ""
	}
	return id
}

// Classify returns the platform of url and the raw identifier after "track/".
func Classify(url string) (Platform, string) {
	var platform Platform
	switch {
	case strings.Contains(url, "spotify"):
		platform = PlatformSpotify
	case strings.Contains(url, "deezer"):
		platform = PlatformDeezer
	default:
		return PlatformNone, ""
	}
	return platform, TrackID(url)
}

// TrackID returns the path segment following "track/", without any query string.
func TrackID(url string) string {
	_, after, found := strings.Cut(url, "track/")
	if !found {
		return ""
	}
	if i := strings.IndexAny(after, "?#/"); i >= 0 {
		after = after[:i]
	}
	return after
}

// ToTrack classifies the item's links and corrects the ids.
//
// When a row carries several links for one platform the first one is kept.
func ToTrack(item models.AiredItem, corrections Corrections) models.Track {
	track := models.Track{Artist: item.Artist, Title: item.Title}
	seen := map[Platform]bool{}
	for _, link := range item.SourceLinks {
		platform, id := Classify(link)
		if platform == PlatformNone || seen[platform] {
			continue
		}
		seen[platform] = true

		switch platform {
		case PlatformSpotify:
			track.SpotifyID = corrections.Fix(id)
		case PlatformDeezer:
			track.DeezerID = corrections.Fix(id)
		}
	}
	return track
}

// Dedup drops structurally equal tracks, keeping the first occurrence.
func Dedup(tracks []models.Track) []models.Track {
	seen := make(map[models.Track]struct{}, len(tracks))
	result := make([]models.Track, 0, len(tracks))
	for _, t := range tracks {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		result = append(result, t)
	}
	return result
}

// LoadTimes estimates how many "load more" expansions cover the hours in (toHour, fromHour).
//
// times = ceil((fromHour - toHour - 1) * avgPerHour / perExpansion), never negative.
func LoadTimes(fromHour, toHour, avgPerHour, perExpansion int) int {
	if perExpansion <= 0 {
		return 0
	}
	span := fromHour - toHour - 1
	if span <= 0 {
		return 0
	}
	return int(math.Ceil(float64(span*avgPerHour) / float64(perExpansion)))
}
