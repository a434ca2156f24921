package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	pw "github.com/playwright-community/playwright-go"
)

// Options configures the playwright driver.
type Options struct {
	Headless bool
	Timeout  time.Duration // default timeout for every page action
	Install  bool          // download the browser before launching
}

// PlaywrightDriver drives a single Chromium page.
type PlaywrightDriver struct {
	pw      *pw.Playwright
	browser pw.Browser
	page    pw.Page
	logger  *log.Logger
}

// NewPlaywrightDriver starts playwright, launches Chromium and opens one page.
func NewPlaywrightDriver(opts Options, logger *log.Logger) (*PlaywrightDriver, error) {
	if opts.Install {
		if err := pw.Install(&pw.RunOptions{Browsers: []string{"chromium"}}); err != nil {
			return nil, fmt.Errorf("failed to install playwright: %w", err)
		}
	}

	instance, err := pw.Run()
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}

	browser, err := instance.Chromium.Launch(pw.BrowserTypeLaunchOptions{
		Headless: pw.Bool(opts.Headless),
	})
	if err != nil {
		instance.Stop()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	page, err := browser.NewPage()
	if err != nil {
		browser.Close()
		instance.Stop()
		return nil, fmt.Errorf("failed to open page: %w", err)
	}

	if opts.Timeout > 0 {
		page.SetDefaultTimeout(float64(opts.Timeout.Milliseconds()))
	}

	logger.Debug("browser_launch", "headless", opts.Headless)
	return &PlaywrightDriver{pw: instance, browser: browser, page: page, logger: logger}, nil
}

func (d *PlaywrightDriver) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := d.page.Goto(url, pw.PageGotoOptions{WaitUntil: pw.WaitUntilStateNetworkidle}); err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	return nil
}

func (d *PlaywrightDriver) QuerySelector(ctx context.Context, selector string) (Element, error) {
	return first(ctx, d.page.Locator(selector))
}

func (d *PlaywrightDriver) QuerySelectorAll(ctx context.Context, selector string) ([]Element, error) {
	return all(ctx, d.page.Locator(selector))
}

func (d *PlaywrightDriver) Click(ctx context.Context, selector string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := d.page.Locator(selector).First().Click(); err != nil {
		return fmt.Errorf("failed to click %s: %w", selector, err)
	}
	return nil
}

// TypeText focuses the field, clears it and types text key by key so the page's input handlers fire.
func (d *PlaywrightDriver) TypeText(ctx context.Context, selector, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	field := d.page.Locator(selector).First()
	if err := field.Fill(""); err != nil {
		return fmt.Errorf("failed to clear %s: %w", selector, err)
	}
	if err := field.PressSequentially(text); err != nil {
		return fmt.Errorf("failed to type into %s: %w", selector, err)
	}
	return nil
}

func (d *PlaywrightDriver) SelectOption(ctx context.Context, selector, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	values := []string{value}
	if _, err := d.page.Locator(selector).First().SelectOption(pw.SelectOptionValues{Values: &values}); err != nil {
		return fmt.Errorf("failed to select %q in %s: %w", value, selector, err)
	}
	return nil
}

func (d *PlaywrightDriver) EvaluateScript(ctx context.Context, script string) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	result, err := d.page.Evaluate(script)
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate script: %w", err)
	}
	return result, nil
}

func (d *PlaywrightDriver) WaitForSelectorOrTimeout(ctx context.Context, selector string, timeout time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	err := d.page.Locator(selector).First().WaitFor(pw.LocatorWaitForOptions{
		State:   pw.WaitForSelectorStateVisible,
		Timeout: pw.Float(float64(timeout.Milliseconds())),
	})
	if errors.Is(err, pw.ErrTimeout) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed waiting for %s: %w", selector, err)
	}
	return true, nil
}

// Close releases the page, the browser and the playwright process.
func (d *PlaywrightDriver) Close() error {
	var errs []error
	if err := d.page.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := d.browser.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := d.pw.Stop(); err != nil {
		errs = append(errs, err)
	}
	d.logger.Debug("browser_close")
	return errors.Join(errs...)
}

type locatorElement struct {
	loc pw.Locator
}

func (e locatorElement) Text(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	text, err := e.loc.TextContent()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

func (e locatorElement) Attribute(ctx context.Context, name string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return e.loc.GetAttribute(name)
}

func (e locatorElement) Query(ctx context.Context, selector string) (Element, error) {
	return first(ctx, e.loc.Locator(selector))
}

func (e locatorElement) QueryAll(ctx context.Context, selector string) ([]Element, error) {
	return all(ctx, e.loc.Locator(selector))
}

func first(ctx context.Context, loc pw.Locator) (Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	count, err := loc.Count()
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, nil
	}
	return locatorElement{loc: loc.First()}, nil
}

func all(ctx context.Context, loc pw.Locator) ([]Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	locators, err := loc.All()
	if err != nil {
		return nil, err
	}
	elements := make([]Element, 0, len(locators))
	for _, l := range locators {
		elements = append(elements, locatorElement{loc: l})
	}
	return elements, nil
}
