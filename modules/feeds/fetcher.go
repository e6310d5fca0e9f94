package feeds

import (
	"context"
	"errors"
	"fmt"
	"html"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

const (
	listingPageLimit   = 100
	maxListingBodySize = 16 << 20
	permalinkPrefix    = "https://reddit.com/"
)

// extensionPattern keeps urls that end in a file-extension-like suffix.
var extensionPattern = regexp.MustCompile(`\.[A-Za-z0-9]+$`)

// Page is one decoded listing page.
type Page struct {
	// Children are the raw listing entries in upstream order.
	Children []gjson.Result
	// After is the continuation cursor, empty on the last page.
	After string
}

// FetcherOption mutates fetcher configuration.
type FetcherOption func(*Fetcher)

// WithHTTPClient replaces the HTTP client used for listing requests.
func WithHTTPClient(client *http.Client) FetcherOption {
	return func(fetcher *Fetcher) {
		if client != nil {
			fetcher.client = client
		}
	}
}

// WithFetcherLogger sets the logger for tolerated page failures.
func WithFetcherLogger(logger *slog.Logger) FetcherOption {
	return func(fetcher *Fetcher) {
		if logger != nil {
			fetcher.logger = logger
		}
	}
}

// withWait replaces the inter-page wait.
func withWait(wait func(ctx context.Context, delay time.Duration) error) FetcherOption {
	return func(fetcher *Fetcher) {
		if wait != nil {
			fetcher.wait = wait
		}
	}
}

// Fetcher reads feed listing pages and walks them into feed items.
type Fetcher struct {
	baseURL        string
	userAgent      string
	depth          int
	pageDelay      time.Duration
	requestTimeout time.Duration
	client         *http.Client
	logger         *slog.Logger
	wait           func(ctx context.Context, delay time.Duration) error
}

// NewFetcher creates a fetcher for the listing endpoint described by cfg.
func NewFetcher(cfg Config, options ...FetcherOption) *Fetcher {
	fetcher := &Fetcher{
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		userAgent:      cfg.UserAgent,
		depth:          cfg.Depth,
		pageDelay:      cfg.PageDelay,
		requestTimeout: cfg.RequestTimeout,
		client:         http.DefaultClient,
		logger:         slog.Default(),
		wait:           waitDelay,
	}
	for _, option := range options {
		option(fetcher)
	}

	return fetcher
}

// Depth returns the page count of a full population.
func (f *Fetcher) Depth() int {
	return f.depth
}

// FetchPage requests one listing page, continuing from after when it is set.
func (f *Fetcher) FetchPage(ctx context.Context, feed string, after string) (Page, error) {
	endpoint := f.pageURL(feed, after)

	requestCtx := ctx
	if f.requestTimeout > 0 {
		var cancel context.CancelFunc
		requestCtx, cancel = context.WithTimeout(ctx, f.requestTimeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(requestCtx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Page{}, &FetchError{Feed: feed, After: after, Err: err}
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return Page{}, &FetchError{Feed: feed, After: after, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxListingBodySize))
		return Page{}, &FetchError{
			Feed:       feed,
			After:      after,
			StatusCode: resp.StatusCode,
			Err:        errors.New(http.StatusText(resp.StatusCode)),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxListingBodySize))
	if err != nil {
		return Page{}, &FetchError{Feed: feed, After: after, StatusCode: resp.StatusCode, Err: err}
	}

	page, err := decodePage(body)
	if err != nil {
		return Page{}, &FetchError{Feed: feed, After: after, StatusCode: resp.StatusCode, Err: err}
	}

	return page, nil
}

// Populate walks up to pages listing pages of feed and returns the surviving items.
//
// A failed page is logged and counts as an empty page against the depth; the
// next iteration retries from the same cursor. Only a successful page without
// a cursor ends pagination early. When pages equals the full depth and the
// first page has no entries, Populate fails with ErrEmptyFeed.
func (f *Fetcher) Populate(ctx context.Context, feed string, pages int) ([]FeedItem, error) {
	items := make([]FeedItem, 0)
	after := ""

	for remaining := pages; remaining > 0; remaining-- {
		page, err := f.FetchPage(ctx, feed, after)
		failed := err != nil
		if failed {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, fmt.Errorf("populate %s: %w", feed, ctxErr)
			}
			feedPagesFetched.WithLabelValues(resultError).Inc()
			f.logger.WarnContext(ctx, "feed page fetch failed, treating page as empty",
				"feed", feed,
				"after", after,
				"remaining", remaining,
				"error", err,
			)
			page = Page{}
		} else {
			feedPagesFetched.WithLabelValues(resultOK).Inc()
		}

		if remaining == pages && pages == f.depth && len(page.Children) == 0 {
			return nil, ErrEmptyFeed
		}

		items = append(items, filterChildren(page.Children)...)

		if remaining == 1 || (!failed && page.After == "") {
			break
		}
		if err := f.wait(ctx, f.pageDelay); err != nil {
			return nil, fmt.Errorf("populate %s: wait for next page: %w", feed, err)
		}
		if !failed {
			after = page.After
		}
	}

	return items, nil
}

func (f *Fetcher) pageURL(feed string, after string) string {
	query := url.Values{}
	query.Set("sort", "top")
	query.Set("t", "all")
	query.Set("limit", strconv.Itoa(listingPageLimit))
	if after != "" {
		query.Set("after", after)
	}

	return f.baseURL + "/r/" + url.PathEscape(feed) + ".json?" + query.Encode()
}

func decodePage(body []byte) (Page, error) {
	if !gjson.ValidBytes(body) {
		return Page{}, fmt.Errorf("decode listing: invalid json")
	}
	root := gjson.ParseBytes(body)
	if !root.IsObject() {
		return Page{}, fmt.Errorf("decode listing: unexpected %s document", root.Type)
	}

	data := root.Get("data")
	if !data.IsObject() {
		return Page{}, nil
	}

	page := Page{After: data.Get("after").String()}
	children := data.Get("children")
	if children.IsArray() {
		page.Children = children.Array()
	}

	return page, nil
}

func filterChildren(children []gjson.Result) []FeedItem {
	items := make([]FeedItem, 0, len(children))
	for _, child := range children {
		item, ok := mapChild(child)
		if !ok {
			continue
		}
		items = append(items, item)
	}

	return items
}

func mapChild(child gjson.Result) (FeedItem, bool) {
	data := child.Get("data")
	if !data.IsObject() {
		return FeedItem{}, false
	}

	videoURL := videoPreviewURL(data)
	link := stringField(data, "url")
	if link == "" && videoURL == "" {
		return FeedItem{}, false
	}
	if link != "" && !extensionPattern.MatchString(link) {
		return FeedItem{}, false
	}

	return FeedItem{
		Thumbnail: stringField(data, "thumbnail"),
		Permalink: permalinkPrefix + data.Get("permalink").String(),
		URL:       link,
		VideoURL:  videoURL,
		Title:     html.UnescapeString(data.Get("title").String()),
		FeedLabel: data.Get("subreddit_name_prefixed").String(),
	}, true
}

// videoPreviewURL reads preview.reddit_video_preview.fallback_url one level at a time.
func videoPreviewURL(data gjson.Result) string {
	preview := data.Get("preview")
	if !preview.IsObject() {
		return ""
	}
	video := preview.Get("reddit_video_preview")
	if !video.IsObject() {
		return ""
	}

	return stringField(video, "fallback_url")
}

func stringField(value gjson.Result, path string) string {
	field := value.Get(path)
	if field.Type != gjson.String {
		return ""
	}

	return html.UnescapeString(field.Str)
}

func waitDelay(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
