package scraper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/radiosync/internal/browser"
	"github.com/desertthunder/radiosync/internal/models"
	"github.com/desertthunder/radiosync/internal/shared"
)

// DriverFactory opens a fresh page driver for one crawl.
type DriverFactory func(ctx context.Context) (browser.PageDriver, error)

type dayScraper interface {
	ScrapeDay(ctx context.Context, day time.Time, toHour string) (DayResult, error)
}

// CrawlResult is the output of one crawl.
type CrawlResult struct {
	Tracks  []models.Track // newest-first, deduplicated
	Latest  time.Time      // newest row timestamp seen, zero when nothing was seen
	Days    int            // days scraped, including skipped ones
	Skipped int            // days skipped because the source was down
}

// Crawler drives the [DayScraper] across the days since a checkpoint.
type Crawler struct {
	newDriver   DriverFactory
	opts        Options
	corrections Corrections
	logger      *log.Logger
	now         func() time.Time
	sleep       func(ctx context.Context, d time.Duration) error
}

// NewCrawler creates a Crawler that opens a page with newDriver on every crawl.
func NewCrawler(newDriver DriverFactory, opts Options, corrections Corrections, logger *log.Logger) *Crawler {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &Crawler{
		newDriver:   newDriver,
		opts:        opts,
		corrections: corrections,
		logger:      logger,
		now:         time.Now,
		sleep:       sleep,
	}
}

// Crawl scrapes every calendar day from the day of from up to today.
//
// The page driver is released before returning, on success or failure.
func (c *Crawler) Crawl(ctx context.Context, from time.Time) (CrawlResult, error) {
	driver, err := c.newDriver(ctx)
	if err != nil {
		return CrawlResult{}, fmt.Errorf("failed to open page driver: %w", err)
	}
	defer func() {
		if err := driver.Close(); err != nil {
			c.logger.Warn("browser_release", "err", err)
		}
	}()

	scraper := NewDayScraper(driver, c.opts, c.corrections, c.logger)
	scraper.now = c.now
	scraper.sleep = c.sleep

	if err := scraper.Open(ctx); err != nil {
		return CrawlResult{}, err
	}
	return c.crawlDays(ctx, scraper, from)
}

// crawlDays scrapes oldest day first and prepends each day's tracks.
//
// The first day starts at the exact HH:mm of from, later days at 00:00.
// A down day is skipped; an empty day stops the crawl. A first day with
// nothing after the bound moves on, so a watermark set past that day's last
// row still reaches the following days.
func (c *Crawler) crawlDays(ctx context.Context, days dayScraper, from time.Time) (CrawlResult, error) {
	start := from.In(c.opts.Location)
	diff := DayDiff(from, c.now(), c.opts.Location)
	c.logger.Info("crawl", "from", start.Format(models.DayFormat+" "+models.HourFormat), "days", diff+1)

	var (
		result CrawlResult
		tracks []models.Track
	)

	for i := 0; i <= diff; i++ {
		day := time.Date(start.Year(), start.Month(), start.Day()+i, 0, 0, 0, 0, c.opts.Location)
		toHour := "00:00"
		if i == 0 {
			toHour = start.Format(models.HourFormat)
		}

		res, err := days.ScrapeDay(ctx, day, toHour)
		result.Days++
		switch {
		case errors.Is(err, shared.ErrSourceUnavailable):
			result.Skipped++
			c.logger.Warn("crawl", "reason", "skipping unavailable day", "day", day.Format(models.DayFormat))
			continue
		case errors.Is(err, shared.ErrNoItemsForDay):
			c.logger.Info("crawl", "stop", day.Format(models.DayFormat), "reason", "no items")
			result.Tracks = Dedup(tracks)
			return result, nil
		case err != nil:
			return CrawlResult{}, err
		}

		if res.Latest.After(result.Latest) {
			result.Latest = res.Latest
		}
		if len(res.Tracks) == 0 {
			if i == 0 && i < diff {
				c.logger.Info("crawl", "day", day.Format(models.DayFormat), "reason", "nothing after bound")
				continue
			}
			c.logger.Info("crawl", "stop", day.Format(models.DayFormat), "reason", "caught up")
			break
		}
		tracks = append(append(make([]models.Track, 0, len(res.Tracks)+len(tracks)), res.Tracks...), tracks...)
	}

	result.Tracks = Dedup(tracks)
	return result, nil
}

// DayDiff counts calendar days between from and now in loc, ignoring the time of day.
func DayDiff(from, now time.Time, loc *time.Location) int {
	f, n := from.In(loc), now.In(loc)
	fromDay := time.Date(f.Year(), f.Month(), f.Day(), 0, 0, 0, 0, time.UTC)
	nowDay := time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, time.UTC)
	return int(nowDay.Sub(fromDay).Hours() / 24)
}
