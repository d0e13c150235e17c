package collect

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"newsroom/internal/core"
)

func TestCollectAll_NoAdapters(t *testing.T) {
	c := NewCollector(nil)
	result := c.CollectAll(context.Background())

	if len(result.Items) != 0 {
		t.Errorf("Expected no items, got %d", len(result.Items))
	}
	if len(result.Errors) != 0 {
		t.Errorf("Expected no errors, got %d", len(result.Errors))
	}
}

func TestCollectAll_BestEffortJoin(t *testing.T) {
	items := []core.RawItem{
		{ID: "1", Title: "one", CollectedAt: time.Now().UTC()},
		{ID: "2", Title: "two", CollectedAt: time.Now().UTC()},
	}

	c := NewCollector([]Adapter{
		NewStaticAdapter("good", items),
		NewFailingAdapter("bad", errors.New("connection refused")),
	})

	result := c.CollectAll(context.Background())

	if len(result.Items) != 2 {
		t.Errorf("Expected 2 items from the healthy adapter, got %d", len(result.Items))
	}
	if len(result.Errors) != 1 {
		t.Fatalf("Expected 1 captured error, got %d", len(result.Errors))
	}
	if result.PerSource["good"] != 2 {
		t.Errorf("Expected 2 items from good, got %d", result.PerSource["good"])
	}
	if result.PerSource["bad"] != 0 {
		t.Errorf("Expected 0 items from bad, got %d", result.PerSource["bad"])
	}
}

func TestStaticAdapter_StampsSource(t *testing.T) {
	a := NewStaticAdapter("test-source", []core.RawItem{{ID: "1", Title: "x"}})

	items, err := a.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if items[0].Source != "test-source" {
		t.Errorf("Expected stamped source, got %q", items[0].Source)
	}
}

const sampleRSS = `<?xml version="1.0"?>
<rss version="2.0">
  <channel>
    <title>Example Feed</title>
    <item>
      <title>First Post</title>
      <link>https://example.org/1</link>
      <description>Some &lt;b&gt;bold&lt;/b&gt; text</description>
    </item>
    <item>
      <title>Second Post</title>
      <link>https://example.org/2</link>
      <description>More text</description>
    </item>
  </channel>
</rss>`

func TestRSSAdapter_Fetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(sampleRSS))
	}))
	defer srv.Close()

	a := NewRSSAdapter("example", srv.URL)
	if a.Name() != "rss:example" {
		t.Errorf("Expected source tag rss:example, got %q", a.Name())
	}

	items, err := a.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("Expected 2 items, got %d", len(items))
	}
	if items[0].Title != "First Post" {
		t.Errorf("Expected title %q, got %q", "First Post", items[0].Title)
	}
	if items[0].Body != "Some  bold  text" {
		t.Errorf("Expected markup stripped from body, got %q", items[0].Body)
	}
}

const sampleAtom = `<?xml version="1.0"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>Atom Feed</title>
  <entry>
    <title>Atom Entry</title>
    <summary>Entry summary</summary>
    <id>urn:1</id>
  </entry>
</feed>`

func TestRSSAdapter_FetchAtom(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(sampleAtom))
	}))
	defer srv.Close()

	a := NewRSSAdapter("atomfeed", srv.URL)
	items, err := a.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("Expected 1 item, got %d", len(items))
	}
	if items[0].Title != "Atom Entry" {
		t.Errorf("Expected Atom entry title, got %q", items[0].Title)
	}
}

func TestRSSAdapter_BadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	a := NewRSSAdapter("broken", srv.URL)
	if _, err := a.Fetch(context.Background()); err == nil {
		t.Error("Expected error for 500 response")
	}
}

const sampleHTML = `<html><body>
  <div class="story">
    <a class="title">HTML Story One</a>
    <p class="excerpt">Excerpt one</p>
  </div>
  <div class="story">
    <a class="title">HTML Story Two</a>
    <p class="excerpt">Excerpt two</p>
  </div>
  <div class="story">
    <a class="title"></a>
  </div>
</body></html>`

func TestHTMLAdapter_Fetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(sampleHTML))
	}))
	defer srv.Close()

	a := NewHTMLAdapter("forum", srv.URL, "div.story", "a.title", "p.excerpt")
	items, err := a.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	// The third entry has an empty title and must be skipped.
	if len(items) != 2 {
		t.Fatalf("Expected 2 items, got %d", len(items))
	}
	if items[0].Title != "HTML Story One" {
		t.Errorf("Unexpected first title %q", items[0].Title)
	}
	if items[1].Body != "Excerpt two" {
		t.Errorf("Unexpected second body %q", items[1].Body)
	}
	if items[0].Source != "html:forum" {
		t.Errorf("Expected source html:forum, got %q", items[0].Source)
	}
}
