package scraper

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/radiosync/internal/browser"
	"github.com/desertthunder/radiosync/internal/models"
	"github.com/desertthunder/radiosync/internal/shared"
)

// Page selectors and literals of the schedule listing.
const (
	CookieButtonSelector = "#didomi-notice-agree-button"
	DayInputSelector     = `input[name=programDate]`
	TimePickerSelector   = ".ui-timepicker-select"
	StationSelector      = `select[name="radio"]`
	FilterSelector       = "text=Filtrer"
	LoadMoreSelector     = "#load_more"
	RowSelector          = "#js-programs-list .wwtt_right"
	ArtistSelector       = "h2"
	TitleSelector        = "p:nth-of-type(2)"
	HourSelector         = ".time"
	LinkSelector         = "a"
	DownMarker           = "Service momentanément indisponible."

	hiddenStyle = "display: none;"
	resetStyle  = "inherit"
	scrollDown  = "window.scrollTo(0, document.body.scrollHeight)"
)

// Options tunes the day scraper.
type Options struct {
	URL                string
	Station            string
	Location           *time.Location
	AvgItemsPerHour    int
	ItemsPerExpansion  int
	SettleDelay        time.Duration // wait before and after each scroll
	ReadDelay          time.Duration // wait between the last expansion and reading rows
	ValidationAttempts int
	MarkerTimeout      time.Duration // how long to look for the down marker
}

// OptionsFromConfig maps [shared.SourceConfig] to scraper options.
func OptionsFromConfig(cfg shared.SourceConfig) (Options, error) {
	loc, err := cfg.Location()
	if err != nil {
		return Options{}, err
	}
	return Options{
		URL:                cfg.URL,
		Station:            cfg.Station,
		Location:           loc,
		AvgItemsPerHour:    cfg.AvgItemsPerHour,
		ItemsPerExpansion:  cfg.ItemsPerExpansion,
		SettleDelay:        cfg.SettleDelay.Duration,
		ReadDelay:          time.Second,
		ValidationAttempts: cfg.ValidationAttempts,
		MarkerTimeout:      5 * time.Second,
	}, nil
}

// DayResult is what one day-scrape produced.
//
// Latest is the timestamp of the first (newest) visible row, zero when the
// listing was empty. It may be older than the lower bound.
type DayResult struct {
	Items  []models.AiredItem
	Tracks []models.Track
	Latest time.Time
}

// DayScraper extracts aired items for one calendar day.
type DayScraper struct {
	page        browser.PageDriver
	opts        Options
	corrections Corrections
	logger      *log.Logger
	now         func() time.Time
	sleep       func(ctx context.Context, d time.Duration) error
}

// NewDayScraper creates a DayScraper bound to page.
func NewDayScraper(page browser.PageDriver, opts Options, corrections Corrections, logger *log.Logger) *DayScraper {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.ValidationAttempts <= 0 {
		opts.ValidationAttempts = 3
	}
	return &DayScraper{
		page:        page,
		opts:        opts,
		corrections: corrections,
		logger:      logger,
		now:         time.Now,
		sleep:       sleep,
	}
}

// Open loads the listing and dismisses the cookie banner when present.
func (s *DayScraper) Open(ctx context.Context) error {
	if err := s.page.Navigate(ctx, s.opts.URL); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrSourceUnavailable, err)
	}

	banner, err := s.page.QuerySelector(ctx, CookieButtonSelector)
	if err != nil {
		return err
	}
	if banner != nil {
		if err := s.page.Click(ctx, CookieButtonSelector); err != nil {
			s.logger.Warn("accept_cookies", "reason", "click failed", "err", err)
		}
	}
	return nil
}

// ScrapeDay returns the items aired on day at or after toHour ("HH:mm"), newest first.
//
// An empty listing returns [shared.ErrSourceUnavailable] when the down marker
// is shown and [shared.ErrNoItemsForDay] otherwise. Missing row fields return
// [shared.ErrExtraction].
func (s *DayScraper) ScrapeDay(ctx context.Context, day time.Time, toHour string) (DayResult, error) {
	dayDate := day.In(s.opts.Location).Format(models.DayFormat)
	logger := s.logger.With("day", dayDate, "to_hour", toHour)
	logger.Info("crawl_day")

	if err := s.filter(ctx, dayDate); err != nil {
		logger.Error("crawl_day", "err", err)
		return DayResult{}, err
	}

	times := LoadTimes(s.fromHour(day), hourOf(toHour), s.opts.AvgItemsPerHour, s.opts.ItemsPerExpansion)
	if err := s.loadMore(ctx, times); err != nil {
		return DayResult{}, err
	}
	if err := s.sleep(ctx, s.opts.ReadDelay); err != nil {
		return DayResult{}, err
	}

	rows, err := s.page.QuerySelectorAll(ctx, RowSelector)
	if err != nil {
		return DayResult{}, err
	}
	if len(rows) == 0 {
		down, err := s.page.WaitForSelectorOrTimeout(ctx, "text="+DownMarker, s.opts.MarkerTimeout)
		if err != nil {
			return DayResult{}, err
		}
		if down {
			logger.Warn("crawl_day", "reason", "source down for this day")
			return DayResult{}, fmt.Errorf("%w: %s", shared.ErrSourceUnavailable, dayDate)
		}
		logger.Warn("crawl_day", "reason", "no items for this day")
		return DayResult{}, fmt.Errorf("%w: %s", shared.ErrNoItemsForDay, dayDate)
	}

	for attempt := 1; attempt <= s.opts.ValidationAttempts; attempt++ {
		complete, err := s.validateDisplay(ctx, rows, toHour)
		if err != nil {
			return DayResult{}, err
		}
		if complete {
			break
		}
		logger.Debug("validate_display", "attempt", attempt, "rows", len(rows))
		if err := s.loadMore(ctx, 1); err != nil {
			return DayResult{}, err
		}
		if rows, err = s.page.QuerySelectorAll(ctx, RowSelector); err != nil {
			return DayResult{}, err
		}
	}

	items, latest, err := s.extract(ctx, rows, dayDate, toHour)
	if err != nil {
		logger.Error("extract", "err", err)
		return DayResult{}, err
	}

	tracks := make([]models.Track, 0, len(items))
	for _, item := range items {
		tracks = append(tracks, ToTrack(item, s.corrections))
	}
	tracks = Dedup(tracks)

	logger.Info("extract", "rows", len(rows), "items", len(items), "tracks", len(tracks))
	return DayResult{Items: items, Tracks: tracks, Latest: latest}, nil
}

// filter selects the whole day (up to 23:59) on the configured station.
func (s *DayScraper) filter(ctx context.Context, dayDate string) error {
	if err := s.page.TypeText(ctx, DayInputSelector, dayDate); err != nil {
		return err
	}
	if err := s.page.SelectOption(ctx, TimePickerSelector+" >> nth=0", "23"); err != nil {
		return err
	}
	if err := s.page.SelectOption(ctx, TimePickerSelector+" >> nth=1", "59"); err != nil {
		return err
	}
	if err := s.page.SelectOption(ctx, StationSelector, s.opts.Station); err != nil {
		return err
	}

	found, err := s.page.WaitForSelectorOrTimeout(ctx, FilterSelector, s.opts.MarkerTimeout)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: filter control not found", shared.ErrSourceUnavailable)
	}
	return s.page.Click(ctx, FilterSelector)
}

// fromHour is the hour after the current one for today, 24 for any past day.
func (s *DayScraper) fromHour(day time.Time) int {
	now := s.now().In(s.opts.Location)
	d := day.In(s.opts.Location)
	if d.Year() == now.Year() && d.YearDay() == now.YearDay() {
		return now.Hour() + 1
	}
	return 24
}

// loadMore clicks the expansion control up to times times, stopping once it hides itself.
//
// Page errors are logged, not returned: a partial expansion is caught by validation.
func (s *DayScraper) loadMore(ctx context.Context, times int) error {
	control, err := s.page.QuerySelector(ctx, LoadMoreSelector)
	if err != nil || control == nil {
		s.logger.Warn("load_more", "reason", "control not found", "err", err)
		return ctx.Err()
	}

	disabled, err := s.isDisabled(ctx, control)
	if err != nil {
		s.logger.Warn("load_more", "err", err)
		return ctx.Err()
	}
	if disabled {
		if _, err := s.page.EvaluateScript(ctx, fmt.Sprintf(
			"document.querySelector(%q).setAttribute('style', %q)", LoadMoreSelector, resetStyle,
		)); err != nil {
			s.logger.Warn("load_more", "reason", "reset failed", "err", err)
			return ctx.Err()
		}
	}

	clicks := 0
	for ; clicks < times; clicks++ {
		if disabled, err := s.isDisabled(ctx, control); err != nil || disabled {
			break
		}
		if err := s.page.Click(ctx, LoadMoreSelector); err != nil {
			s.logger.Warn("load_more", "reason", "click failed", "err", err)
			break
		}
		if err := s.sleep(ctx, s.opts.SettleDelay); err != nil {
			return err
		}
		if _, err := s.page.EvaluateScript(ctx, scrollDown); err != nil {
			s.logger.Warn("load_more", "reason", "scroll failed", "err", err)
		}
		if err := s.sleep(ctx, s.opts.SettleDelay); err != nil {
			return err
		}
	}

	s.logger.Debug("load_more", "requested", times, "clicks", clicks)
	return ctx.Err()
}

func (s *DayScraper) isDisabled(ctx context.Context, control browser.Element) (bool, error) {
	style, err := control.Attribute(ctx, "style")
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(style) == hiddenStyle, nil
}

// validateDisplay reports whether the oldest visible row is before toHour,
// meaning every row of the window has been loaded.
func (s *DayScraper) validateDisplay(ctx context.Context, rows []browser.Element, toHour string) (bool, error) {
	hour, err := field(ctx, rows[len(rows)-1], HourSelector)
	if err != nil {
		return false, err
	}
	return hour != "" && hour < toHour, nil
}

// extract reads rows in page order until the first one older than toHour.
func (s *DayScraper) extract(ctx context.Context, rows []browser.Element, dayDate, toHour string) ([]models.AiredItem, time.Time, error) {
	var (
		items  []models.AiredItem
		latest time.Time
	)

	for i, row := range rows {
		hour, err := field(ctx, row, HourSelector)
		if err != nil {
			return nil, time.Time{}, err
		}
		if i == 0 {
			if latest, err = s.timestamp(dayDate, hour); err != nil {
				return nil, time.Time{}, err
			}
		}
		if hour < toHour {
			break
		}

		artist, err := field(ctx, row, ArtistSelector)
		if err != nil {
			return nil, time.Time{}, err
		}
		title, err := field(ctx, row, TitleSelector)
		if err != nil {
			return nil, time.Time{}, err
		}

		anchors, err := row.QueryAll(ctx, LinkSelector)
		if err != nil {
			return nil, time.Time{}, fmt.Errorf("%w: links: %v", shared.ErrExtraction, err)
		}
		links := make([]string, 0, len(anchors))
		for _, a := range anchors {
			href, err := a.Attribute(ctx, "href")
			if err != nil {
				return nil, time.Time{}, fmt.Errorf("%w: href: %v", shared.ErrExtraction, err)
			}
			if href != "" {
				links = append(links, href)
			}
		}

		items = append(items, models.AiredItem{
			Artist:      artist,
			Title:       title,
			Hour:        hour,
			DayDate:     dayDate,
			SourceLinks: links,
		})
	}
	return items, latest, nil
}

// timestamp interprets dayDate and hour in the source time zone.
func (s *DayScraper) timestamp(dayDate, hour string) (time.Time, error) {
	ts, err := time.ParseInLocation(models.DayFormat+" "+models.HourFormat, dayDate+" "+hour, s.opts.Location)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: hour %q: %v", shared.ErrExtraction, hour, err)
	}
	return ts, nil
}

// field returns the trimmed text of the first descendant matching selector.
func field(ctx context.Context, row browser.Element, selector string) (string, error) {
	el, err := row.Query(ctx, selector)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", shared.ErrExtraction, selector, err)
	}
	if el == nil {
		return "", fmt.Errorf("%w: %s missing", shared.ErrExtraction, selector)
	}
	text, err := el.Text(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", shared.ErrExtraction, selector, err)
	}
	return strings.TrimSpace(text), nil
}

// hourOf parses the HH part of an "HH:mm" string, 0 when malformed.
func hourOf(hhmm string) int {
	h, err := strconv.Atoi(strings.SplitN(hhmm, ":", 2)[0])
	if err != nil {
		return 0
	}
	return h
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
