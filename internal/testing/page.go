package testing

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/desertthunder/radiosync/internal/browser"
)

// FakeRow is one row of the fake schedule listing.
type FakeRow struct {
	Artist string
	Title  string
	Hour   string
	Links  []string
	// Broken omits the hour element to simulate a layout change.
	Broken bool
}

// FakePage is an in-memory [browser.PageDriver] that mimics the schedule page:
// typing a day and clicking "Filtrer" shows the first PageSize rows of that
// day, each "load more" click shows PageSize more and the control hides itself
// once every row is visible.
type FakePage struct {
	mu sync.Mutex

	Days         map[string][]FakeRow // by MM/DD/YYYY, newest first
	Down         map[string]bool
	PageSize     int
	CookieBanner bool

	Navigated     []string
	Filtered      []string // days for which the filter was applied, in order
	Selected      []string // selector=value pairs
	LoadMoreClick int
	Scrolls       int
	Closed        bool

	typed   string
	day     string
	visible int
	hidden  bool
}

// NewFakePage creates a FakePage with a page size of 10.
func NewFakePage(days map[string][]FakeRow) *FakePage {
	return &FakePage{Days: days, Down: map[string]bool{}, PageSize: 10, hidden: true}
}

var _ browser.PageDriver = (*FakePage)(nil)

func (p *FakePage) Navigate(_ context.Context, url string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Navigated = append(p.Navigated, url)
	return nil
}

func (p *FakePage) QuerySelector(_ context.Context, selector string) (browser.Element, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch selector {
	case "#didomi-notice-agree-button":
		if p.CookieBanner {
			return FakeElement{}, nil
		}
	case "#load_more":
		return loadMoreElement{page: p}, nil
	}
	return nil, nil
}

func (p *FakePage) QuerySelectorAll(_ context.Context, selector string) ([]browser.Element, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !strings.Contains(selector, "wwtt_right") || p.day == "" {
		return nil, nil
	}
	rows := p.Days[p.day]
	elements := make([]browser.Element, 0, p.visible)
	for _, row := range rows[:min(p.visible, len(rows))] {
		elements = append(elements, rowElement(row))
	}
	return elements, nil
}

func (p *FakePage) Click(_ context.Context, selector string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch {
	case selector == "#didomi-notice-agree-button":
		p.CookieBanner = false
	case strings.Contains(selector, "Filtrer"):
		p.day = p.typed
		p.Filtered = append(p.Filtered, p.day)
		p.visible = min(p.PageSize, len(p.Days[p.day]))
		p.hidden = p.visible >= len(p.Days[p.day])
	case selector == "#load_more":
		p.LoadMoreClick++
		total := len(p.Days[p.day])
		p.visible = min(p.visible+p.PageSize, total)
		p.hidden = p.visible >= total
	}
	return nil
}

func (p *FakePage) TypeText(_ context.Context, _ string, text string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.typed = text
	return nil
}

func (p *FakePage) SelectOption(_ context.Context, selector, value string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Selected = append(p.Selected, selector+"="+value)
	return nil
}

func (p *FakePage) EvaluateScript(_ context.Context, script string) (any, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch {
	case strings.Contains(script, "setAttribute"):
		p.hidden = false
	case strings.Contains(script, "scrollTo"):
		p.Scrolls++
	}
	return nil, nil
}

func (p *FakePage) WaitForSelectorOrTimeout(_ context.Context, selector string, _ time.Duration) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch {
	case strings.Contains(selector, "Filtrer"):
		return true, nil
	case strings.Contains(selector, "indisponible"):
		return p.Down[p.day], nil
	}
	return false, nil
}

func (p *FakePage) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Closed = true
	return nil
}

// FakeElement is a static element with text, attributes and children by selector.
type FakeElement struct {
	Content  string
	Attrs    map[string]string
	Children map[string][]browser.Element
}

func (e FakeElement) Text(context.Context) (string, error) {
	return e.Content, nil
}

func (e FakeElement) Attribute(_ context.Context, name string) (string, error) {
	return e.Attrs[name], nil
}

func (e FakeElement) Query(_ context.Context, selector string) (browser.Element, error) {
	if children := e.Children[selector]; len(children) > 0 {
		return children[0], nil
	}
	return nil, nil
}

func (e FakeElement) QueryAll(_ context.Context, selector string) ([]browser.Element, error) {
	return e.Children[selector], nil
}

func rowElement(row FakeRow) FakeElement {
	links := make([]browser.Element, 0, len(row.Links))
	for _, href := range row.Links {
		links = append(links, FakeElement{Attrs: map[string]string{"href": href}})
	}
	children := map[string][]browser.Element{
		"h2":               {FakeElement{Content: row.Artist}},
		"p:nth-of-type(2)": {FakeElement{Content: row.Title}},
		"a":                links,
	}
	if !row.Broken {
		children[".time"] = []browser.Element{FakeElement{Content: row.Hour}}
	}
	return FakeElement{Children: children}
}

// loadMoreElement reads the control's style from the page state on every call.
type loadMoreElement struct {
	FakeElement
	page *FakePage
}

func (e loadMoreElement) Attribute(_ context.Context, name string) (string, error) {
	if name != "style" {
		return "", nil
	}
	e.page.mu.Lock()
	defer e.page.mu.Unlock()
	if e.page.hidden {
		return "display: none;", nil
	}
	return "display: block;", nil
}
