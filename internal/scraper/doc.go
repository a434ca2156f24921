// package scraper reads aired items from the schedule page.
//
// [DayScraper] filters the listing on one calendar day, expands it with the
// "load more" control and extracts rows down to a lower-bound hour.
// [Crawler] walks the days between the checkpoint and today, oldest first,
// and returns tracks newest-first.
package scraper
