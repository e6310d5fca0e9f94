package feeds

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"
)

func newTestFetcher(transport *listingTransport, options ...FetcherOption) *Fetcher {
	options = append([]FetcherOption{
		WithHTTPClient(&http.Client{Transport: transport}),
		withWait(noWait),
	}, options...)

	return NewFetcher(testConfig(), options...)
}

func TestFetcherFetchPageRequest(t *testing.T) {
	t.Parallel()

	transport := newListingTransport()
	transport.setPage("cats", "t3_next", listingJSON(""))
	fetcher := newTestFetcher(transport)

	if _, err := fetcher.FetchPage(context.Background(), "cats", "t3_next"); err != nil {
		t.Fatalf("FetchPage failed: %v", err)
	}

	req := transport.request(0)
	if req.Method != http.MethodGet {
		t.Fatalf("method = %s, want GET", req.Method)
	}
	if req.URL.Host != "listing.test" || req.URL.Path != "/r/cats.json" {
		t.Fatalf("url = %s, want listing.test/r/cats.json", req.URL)
	}
	query := req.URL.Query()
	wantQuery := map[string]string{"sort": "top", "t": "all", "limit": "100", "after": "t3_next"}
	for name, want := range wantQuery {
		if got := query.Get(name); got != want {
			t.Fatalf("query %s = %q, want %q", name, got, want)
		}
	}
	if req.Header.Get("User-Agent") != DefaultUserAgent {
		t.Fatalf("user agent = %q, want %q", req.Header.Get("User-Agent"), DefaultUserAgent)
	}
}

func TestFetcherFetchPageFirstPageOmitsCursor(t *testing.T) {
	t.Parallel()

	transport := newListingTransport()
	transport.setPage("cats", "", listingJSON(""))
	fetcher := newTestFetcher(transport)

	if _, err := fetcher.FetchPage(context.Background(), "cats", ""); err != nil {
		t.Fatalf("FetchPage failed: %v", err)
	}
	if _, exists := transport.request(0).URL.Query()["after"]; exists {
		t.Fatal("first page request carries an after parameter")
	}
}

func TestFetcherFetchPageErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		body       string
		status     int
		wantStatus int
	}{
		{name: "server error", body: "oops", status: http.StatusInternalServerError, wantStatus: http.StatusInternalServerError},
		{name: "invalid json", body: "{not json", status: http.StatusOK, wantStatus: http.StatusOK},
		{name: "array document", body: "[]", status: http.StatusOK, wantStatus: http.StatusOK},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			transport := newListingTransport()
			transport.setPage("cats", "", testCase.body)
			transport.setStatus("cats", "", testCase.status)
			fetcher := newTestFetcher(transport)

			_, err := fetcher.FetchPage(context.Background(), "cats", "")
			var fetchErr *FetchError
			if !errors.As(err, &fetchErr) {
				t.Fatalf("error = %v, want FetchError", err)
			}
			if fetchErr.Feed != "cats" || fetchErr.StatusCode != testCase.wantStatus {
				t.Fatalf("fetch error = %+v, want feed cats status %d", fetchErr, testCase.wantStatus)
			}
		})
	}
}

func TestFetcherPopulateFiltersEntries(t *testing.T) {
	t.Parallel()

	transport := newListingTransport()
	transport.setPage("pics", "", listingJSON("",
		testChild{URL: "https://x.com/img", Title: "no extension", Permalink: "/r/pics/1/", Feed: "pics"},
		testChild{URL: "https://x.com/img.png", Title: "png", Permalink: "/r/pics/2/", Feed: "pics"},
		testChild{VideoURL: "https://v.redd.it/abc/DASH_720.mp4", Title: "video", Permalink: "/r/pics/3/", Feed: "pics"},
		testChild{Title: "nothing", Permalink: "/r/pics/4/", Feed: "pics"},
		testChild{URL: "https://x.com/gallery/", VideoURL: "https://v.redd.it/x/DASH.mp4", Title: "bad url", Permalink: "/r/pics/5/", Feed: "pics"},
	))
	fetcher := newTestFetcher(transport)

	items, err := fetcher.Populate(context.Background(), "pics", DefaultDepth)
	if err != nil {
		t.Fatalf("Populate failed: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("items = %+v, want 2 items", items)
	}

	image := items[0]
	if image.URL != "https://x.com/img.png" || image.VideoURL != "" {
		t.Fatalf("image item = %+v", image)
	}
	if image.Permalink != "https://reddit.com//r/pics/2/" {
		t.Fatalf("permalink = %q, want https://reddit.com//r/pics/2/", image.Permalink)
	}
	if image.FeedLabel != "r/pics" || image.Title != "png" {
		t.Fatalf("label/title = %q/%q", image.FeedLabel, image.Title)
	}
	if image.Thumbnail == "" {
		t.Fatal("thumbnail not mapped")
	}

	video := items[1]
	if video.URL != "" || video.VideoURL != "https://v.redd.it/abc/DASH_720.mp4" {
		t.Fatalf("video item = %+v", video)
	}
}

func TestFetcherPopulateWalksPages(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		pages        int
		wantItems    int
		wantRequests int
	}{
		{name: "stops when cursor ends", pages: DefaultDepth, wantItems: 3, wantRequests: 3},
		{name: "stops at requested depth", pages: 2, wantItems: 2, wantRequests: 2},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			transport := newListingTransport()
			transport.setPage("cats", "", listingJSON("p2", imageChild("cats", "a")))
			transport.setPage("cats", "p2", listingJSON("p3", imageChild("cats", "b")))
			transport.setPage("cats", "p3", listingJSON("", imageChild("cats", "c")))

			waits := 0
			fetcher := newTestFetcher(transport, withWait(func(context.Context, time.Duration) error {
				waits++
				return nil
			}))

			items, err := fetcher.Populate(context.Background(), "cats", testCase.pages)
			if err != nil {
				t.Fatalf("Populate failed: %v", err)
			}
			if len(items) != testCase.wantItems {
				t.Fatalf("items = %d, want %d", len(items), testCase.wantItems)
			}
			if got := transport.requestCount(); got != testCase.wantRequests {
				t.Fatalf("requests = %d, want %d", got, testCase.wantRequests)
			}
			if waits != testCase.wantRequests-1 {
				t.Fatalf("waits = %d, want %d", waits, testCase.wantRequests-1)
			}
		})
	}
}

func TestFetcherPopulateEmptyFeed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		setup     func(*listingTransport)
		pages     int
		wantEmpty bool
	}{
		{
			name:      "empty first page at full depth",
			setup:     func(l *listingTransport) { l.setPage("emptysub", "", listingJSON("")) },
			pages:     DefaultDepth,
			wantEmpty: true,
		},
		{
			name:      "missing feed at full depth",
			setup:     func(*listingTransport) {},
			pages:     DefaultDepth,
			wantEmpty: true,
		},
		{
			name:  "empty first page at partial depth",
			setup: func(l *listingTransport) { l.setPage("emptysub", "", listingJSON("")) },
			pages: 3,
		},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			transport := newListingTransport()
			testCase.setup(transport)
			fetcher := newTestFetcher(transport)

			items, err := fetcher.Populate(context.Background(), "emptysub", testCase.pages)
			if testCase.wantEmpty {
				if !errors.Is(err, ErrEmptyFeed) {
					t.Fatalf("error = %v, want ErrEmptyFeed", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Populate failed: %v", err)
			}
			if len(items) != 0 {
				t.Fatalf("items = %d, want 0", len(items))
			}
		})
	}
}

func TestFetcherPopulateContinuesAfterPageFailure(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		setup        func(*listingTransport)
		pages        int
		wantItems    int
		wantRequests int
	}{
		{
			name: "transient failure retried from same cursor",
			setup: func(l *listingTransport) {
				l.failTimes("cats", "p2", 1)
			},
			pages:        DefaultDepth,
			wantItems:    4,
			wantRequests: 4,
		},
		{
			name: "persistent failure consumes remaining depth",
			setup: func(l *listingTransport) {
				l.setPage("cats", "p2", "{broken")
			},
			pages:        4,
			wantItems:    2,
			wantRequests: 4,
		},
		{
			name: "failure on last allowed page",
			setup: func(l *listingTransport) {
				l.failTimes("cats", "p2", 1)
			},
			pages:        2,
			wantItems:    2,
			wantRequests: 2,
		},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			transport := newListingTransport()
			transport.setPage("cats", "", listingJSON("p2", imageChild("cats", "a"), imageChild("cats", "b")))
			transport.setPage("cats", "p2", listingJSON("p3", imageChild("cats", "c")))
			transport.setPage("cats", "p3", listingJSON("", imageChild("cats", "d")))
			testCase.setup(transport)
			fetcher := newTestFetcher(transport)

			items, err := fetcher.Populate(context.Background(), "cats", testCase.pages)
			if err != nil {
				t.Fatalf("Populate failed: %v", err)
			}
			if len(items) != testCase.wantItems {
				t.Fatalf("items = %d, want %d", len(items), testCase.wantItems)
			}
			if got := transport.requestCount(); got != testCase.wantRequests {
				t.Fatalf("requests = %d, want %d", got, testCase.wantRequests)
			}
			for index := 1; index < transport.requestCount(); index++ {
				if after := transport.request(index).URL.Query().Get("after"); after == "" {
					t.Fatalf("request %d restarted from the first page", index)
				}
			}
		})
	}
}

func TestFetcherPopulateCancelledWait(t *testing.T) {
	t.Parallel()

	transport := newListingTransport()
	transport.setPage("cats", "", listingJSON("p2", imageChild("cats", "a")))

	ctx, cancel := context.WithCancel(context.Background())
	fetcher := newTestFetcher(transport, withWait(func(ctx context.Context, delay time.Duration) error {
		cancel()
		return waitDelay(ctx, time.Hour)
	}))

	_, err := fetcher.Populate(ctx, "cats", DefaultDepth)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
	if got := transport.requestCount(); got != 1 {
		t.Fatalf("requests = %d, want 1", got)
	}
}

func TestWaitDelay(t *testing.T) {
	t.Parallel()

	if err := waitDelay(context.Background(), time.Millisecond); err != nil {
		t.Fatalf("waitDelay failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := waitDelay(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Fatalf("waitDelay error = %v, want context.Canceled", err)
	}
}
