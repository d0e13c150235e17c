package collect

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"

	"newsroom/internal/core"
)

// HTMLAdapter collects items from an HTML listing page (forums, aggregators)
// using CSS selectors.
type HTMLAdapter struct {
	name         string
	pageURL      string
	itemSelector string
	titleSel     string
	bodySel      string
	client       *http.Client
}

// NewHTMLAdapter creates an adapter scraping pageURL. itemSelector selects
// one element per listing entry; titleSel and bodySel are resolved relative
// to each entry (bodySel may be empty). The source tag is "html:<name>".
func NewHTMLAdapter(name, pageURL, itemSelector, titleSel, bodySel string) *HTMLAdapter {
	return &HTMLAdapter{
		name:         "html:" + name,
		pageURL:      pageURL,
		itemSelector: itemSelector,
		titleSel:     titleSel,
		bodySel:      bodySel,
		client:       &http.Client{Timeout: 20 * time.Second},
	}
}

// Name returns the source tag.
func (a *HTMLAdapter) Name() string {
	return a.name
}

// Fetch downloads the listing page and extracts one RawItem per entry.
func (a *HTMLAdapter) Fetch(ctx context.Context) ([]core.RawItem, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "newsroom/1.0")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch page: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("page returned status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse page: %w", err)
	}

	now := time.Now().UTC()
	var items []core.RawItem
	doc.Find(a.itemSelector).Each(func(_ int, sel *goquery.Selection) {
		title := strings.TrimSpace(sel.Find(a.titleSel).First().Text())
		if title == "" {
			return
		}
		body := ""
		if a.bodySel != "" {
			body = strings.TrimSpace(sel.Find(a.bodySel).First().Text())
		}
		items = append(items, core.RawItem{
			ID:          uuid.NewString(),
			Source:      a.name,
			Title:       title,
			Body:        body,
			CollectedAt: now,
		})
	})

	return items, nil
}
