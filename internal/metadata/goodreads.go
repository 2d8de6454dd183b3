package metadata

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/jollyrodger/pika/internal/entities"
)

const userAgent = "Pika/1.0 (+https://github.com/jollyrodger/pika)"

var (
	ErrTitleNotFound    = errors.New("book title not found on page")
	ErrUnexpectedStatus = errors.New("unexpected response status")
)

// BookMetadata is what a Goodreads book page tells about a book.
type BookMetadata struct {
	Title       string        `json:"title"`
	SeriesTitle string        `json:"series_title,omitempty"`
	VolumeNr    *float64      `json:"volume_nr,omitempty"`
	AuthorName  string        `json:"author_name,omitempty"`
	ReleaseDate entities.Date `json:"release_date"`
	Synopsis    string        `json:"synopsis,omitempty"`
	CoverURL    string        `json:"cover_url,omitempty"`
}

// Client fetches pages from third-party sites, at most one request per interval.
type Client struct {
	httpClient  *http.Client
	rateLimiter *rateLimiter
}

type rateLimiter struct {
	mu       sync.Mutex
	lastCall time.Time
	interval time.Duration
}

func newRateLimiter(interval time.Duration) *rateLimiter {
	return &rateLimiter{interval: interval}
}

func (r *rateLimiter) wait(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if since := time.Since(r.lastCall); since < r.interval {
		timer := time.NewTimer(r.interval - since)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
	r.lastCall = time.Now()
	return nil
}

// NewClient creates a client with the given per-request timeout, limited to 1 request per second.
func NewClient(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		httpClient:  &http.Client{Timeout: timeout},
		rateLimiter: newRateLimiter(time.Second),
	}
}

// Get performs a rate limited GET and fails with ErrUnexpectedStatus unless the response is 200.
// The caller closes the body.
func (c *Client) Get(ctx context.Context, url string) (*http.Response, error) {
	if err := c.rateLimiter.wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}
	return resp, nil
}

// FetchBook downloads and parses a Goodreads book page.
func (c *Client) FetchBook(ctx context.Context, pageURL string) (*BookMetadata, error) {
	resp, err := c.Get(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return ParseGoodreads(resp.Body)
}

// ParseGoodreads extracts book metadata from a Goodreads book page.
// Missing series, release date and cover leave zero values.
func ParseGoodreads(r io.Reader) (*BookMetadata, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse page: %w", err)
	}

	titleSection := find(doc, func(n *html.Node) bool {
		return n.DataAtom == atom.Div && hasClass(n, "BookPageTitleSection")
	})
	main := find(doc, isElement(atom.Main))

	meta := &BookMetadata{}

	title := find(titleSection, func(n *html.Node) bool {
		return n.DataAtom == atom.H1 && attr(n, "data-testid") == "bookTitle"
	})
	meta.Title = strings.TrimSpace(text(title))
	if meta.Title == "" {
		return nil, ErrTitleNotFound
	}

	if series := find(titleSection, isElement(atom.H3)); series != nil {
		meta.SeriesTitle, meta.VolumeNr = parseSeries(text(series))
	}

	author := find(main, func(n *html.Node) bool {
		return n.DataAtom == atom.Span && attr(n, "data-testid") == "name"
	})
	meta.AuthorName = strings.TrimSpace(text(author))

	published := find(main, func(n *html.Node) bool {
		return n.DataAtom == atom.P && attr(n, "data-testid") == "publicationInfo"
	})
	if published != nil {
		meta.ReleaseDate, _ = parsePublicationInfo(text(published))
	}

	synopsis := find(main, func(n *html.Node) bool {
		return n.DataAtom == atom.Div && attr(n, "data-testid") == "contentContainer"
	})
	meta.Synopsis = strings.Join(textNodes(synopsis), "\n")

	if img := find(main, isElement(atom.Img)); img != nil {
		meta.CoverURL = attr(img, "src")
	}

	return meta, nil
}

// parseSeries splits "The Expanse #3" into its title and volume.
func parseSeries(s string) (string, *float64) {
	title, volume, found := strings.Cut(s, "#")
	title = strings.TrimSpace(title)
	if !found {
		return title, nil
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(volume), 64)
	if err != nil {
		return title, nil
	}
	return title, &v
}

func parsePublicationInfo(s string) (entities.Date, error) {
	s = strings.TrimSpace(s)
	for _, prefix := range []string{"First published", "Published"} {
		if rest, ok := strings.CutPrefix(s, prefix); ok {
			s = strings.TrimSpace(rest)
			break
		}
	}
	t, err := time.Parse("January 2, 2006", s)
	if err != nil {
		return entities.Date{}, fmt.Errorf("parse publication date %q: %w", s, err)
	}
	return entities.NewDate(t.Year(), t.Month(), t.Day()), nil
}

func isElement(a atom.Atom) func(*html.Node) bool {
	return func(n *html.Node) bool { return n.DataAtom == a }
}

// find returns the first element below root, in document order, that matches.
func find(root *html.Node, match func(*html.Node) bool) *html.Node {
	if root == nil {
		return nil
	}
	for c := root.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && match(c) {
			return c
		}
		if found := find(c, match); found != nil {
			return found
		}
	}
	return nil
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

func text(n *html.Node) string {
	return strings.Join(textNodes(n), " ")
}

// textNodes collects the non-blank text nodes below n.
func textNodes(n *html.Node) []string {
	var parts []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			if s := strings.TrimSpace(n.Data); s != "" {
				parts = append(parts, s)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	if n != nil {
		walk(n)
	}
	return parts
}
