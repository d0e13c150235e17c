package collect

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"newsroom/internal/core"
)

// rss represents an RSS feed document.
type rss struct {
	XMLName xml.Name `xml:"rss"`
	Channel channel  `xml:"channel"`
}

type channel struct {
	Title string    `xml:"title"`
	Items []rssItem `xml:"item"`
}

type rssItem struct {
	Title       string `xml:"title"`
	Link        string `xml:"link"`
	Description string `xml:"description"`
	PubDate     string `xml:"pubDate"`
	GUID        string `xml:"guid"`
}

// atom represents an Atom feed document.
type atom struct {
	XMLName xml.Name    `xml:"feed"`
	Title   string      `xml:"title"`
	Entries []atomEntry `xml:"entry"`
}

type atomEntry struct {
	Title     string `xml:"title"`
	Summary   string `xml:"summary"`
	Published string `xml:"published"`
	Updated   string `xml:"updated"`
	ID        string `xml:"id"`
}

// RSSAdapter collects items from one RSS or Atom feed.
type RSSAdapter struct {
	name    string
	feedURL string
	client  *http.Client
}

// NewRSSAdapter creates an adapter for the given feed. The source tag is
// "rss:<name>".
func NewRSSAdapter(name, feedURL string) *RSSAdapter {
	return &RSSAdapter{
		name:    "rss:" + name,
		feedURL: feedURL,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

// Name returns the source tag.
func (a *RSSAdapter) Name() string {
	return a.name
}

// Fetch downloads and parses the feed, returning one RawItem per entry.
func (a *RSSAdapter) Fetch(ctx context.Context) ([]core.RawItem, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "newsroom/1.0")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch feed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read feed body: %w", err)
	}

	return a.parse(body)
}

// parse tries RSS first, then Atom.
func (a *RSSAdapter) parse(body []byte) ([]core.RawItem, error) {
	now := time.Now().UTC()

	var rssFeed rss
	if err := xml.Unmarshal(body, &rssFeed); err == nil && len(rssFeed.Channel.Items) > 0 {
		items := make([]core.RawItem, 0, len(rssFeed.Channel.Items))
		for _, entry := range rssFeed.Channel.Items {
			if strings.TrimSpace(entry.Title) == "" {
				continue
			}
			items = append(items, core.RawItem{
				ID:          uuid.NewString(),
				Source:      a.name,
				Title:       strings.TrimSpace(entry.Title),
				Body:        strings.TrimSpace(stripTags(entry.Description)),
				CollectedAt: now,
			})
		}
		return items, nil
	}

	var atomFeed atom
	if err := xml.Unmarshal(body, &atomFeed); err == nil && len(atomFeed.Entries) > 0 {
		items := make([]core.RawItem, 0, len(atomFeed.Entries))
		for _, entry := range atomFeed.Entries {
			if strings.TrimSpace(entry.Title) == "" {
				continue
			}
			items = append(items, core.RawItem{
				ID:          uuid.NewString(),
				Source:      a.name,
				Title:       strings.TrimSpace(entry.Title),
				Body:        strings.TrimSpace(stripTags(entry.Summary)),
				CollectedAt: now,
			})
		}
		return items, nil
	}

	return nil, fmt.Errorf("unrecognized feed format")
}

// stripTags removes angle-bracket markup from feed descriptions. Good enough
// for term extraction; the body is never rendered.
func stripTags(s string) string {
	var b strings.Builder
	inTag := false
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
			b.WriteRune(' ')
		case !inTag:
			b.WriteRune(r)
		}
	}
	return b.String()
}
