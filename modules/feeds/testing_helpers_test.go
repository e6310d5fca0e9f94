package feeds

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

// listingTransport serves canned listing pages keyed by feed and cursor.
type listingTransport struct {
	mu       sync.Mutex
	pages    map[string]string
	statuses map[string]int
	failures map[string]int
	requests []*http.Request
}

func newListingTransport() *listingTransport {
	return &listingTransport{
		pages:    make(map[string]string),
		statuses: make(map[string]int),
		failures: make(map[string]int),
	}
}

func pageKey(feed string, after string) string {
	return feed + "|" + after
}

func (l *listingTransport) setPage(feed string, after string, body string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pages[pageKey(feed, after)] = body
}

func (l *listingTransport) setStatus(feed string, after string, status int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.statuses[pageKey(feed, after)] = status
}

// failTimes makes the next times requests for the page answer 503.
func (l *listingTransport) failTimes(feed string, after string, times int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failures[pageKey(feed, after)] = times
}

func (l *listingTransport) requestCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.requests)
}

func (l *listingTransport) request(index int) *http.Request {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.requests[index]
}

func (l *listingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	feed := feedFromPath(req.URL.Path)
	key := pageKey(feed, req.URL.Query().Get("after"))

	l.mu.Lock()
	l.requests = append(l.requests, req)
	status, hasStatus := l.statuses[key]
	body, hasBody := l.pages[key]
	failing := l.failures[key] > 0
	if failing {
		l.failures[key]--
	}
	l.mu.Unlock()

	switch {
	case failing:
		status, body = http.StatusServiceUnavailable, `{"message":"unavailable"}`
	case hasStatus:
	case hasBody:
		status = http.StatusOK
	default:
		status = http.StatusNotFound
		body = `{"message":"Not Found","error":404}`
	}

	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(bytes.NewBufferString(body)),
		Request:    req,
	}, nil
}

func feedFromPath(path string) string {
	return strings.TrimSuffix(strings.TrimPrefix(path, "/r/"), ".json")
}

type testChild struct {
	URL       string
	VideoURL  string
	Title     string
	Permalink string
	Feed      string
}

func imageChild(feed string, name string) testChild {
	return testChild{
		URL:       "https://i.redd.it/" + name + ".png",
		Title:     "title " + name,
		Permalink: "/r/" + feed + "/comments/" + name + "/",
		Feed:      feed,
	}
}

func listingJSON(after string, children ...testChild) string {
	rawChildren := make([]map[string]any, 0, len(children))
	for _, child := range children {
		data := map[string]any{
			"title":                   child.Title,
			"permalink":               child.Permalink,
			"subreddit_name_prefixed": "r/" + child.Feed,
			"thumbnail":               "https://b.thumbs.redditmedia.com/thumb.jpg",
		}
		if child.URL != "" {
			data["url"] = child.URL
		}
		if child.VideoURL != "" {
			data["preview"] = map[string]any{
				"reddit_video_preview": map[string]any{
					"fallback_url": child.VideoURL,
				},
			}
		}
		rawChildren = append(rawChildren, map[string]any{"kind": "t3", "data": data})
	}

	listing := map[string]any{
		"kind": "Listing",
		"data": map[string]any{
			"after":    nil,
			"children": rawChildren,
		},
	}
	if after != "" {
		listing["data"].(map[string]any)["after"] = after
	}

	encoded, err := json.Marshal(listing)
	if err != nil {
		panic(err)
	}

	return string(encoded)
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.BaseURL = "https://listing.test"
	cfg.PageDelay = 0

	return cfg
}

func noWait(context.Context, time.Duration) error {
	return nil
}

// fakeClock is a manually advanced time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(delta time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(delta)
}
