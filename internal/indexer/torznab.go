package indexer

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/vmunix/grabarr/internal/queue"
)

// TorznabClient is a Gateway backed by a remote Torznab-compatible indexer.
type TorznabClient struct {
	name       string
	baseURL    string
	apiKey     string
	httpClient *http.Client
	log        *slog.Logger

	capsMu sync.Mutex
	caps   []QueryType // cached after first Capabilities call
}

// NewTorznabClient creates a Torznab gateway.
func NewTorznabClient(name, baseURL, apiKey string, log *slog.Logger) *TorznabClient {
	var clientLog *slog.Logger
	if log != nil {
		clientLog = log.With("component", "torznab", "source", name)
	} else {
		clientLog = slog.Default()
	}
	return &TorznabClient{
		name:    name,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		log: clientLog,
	}
}

// Name returns the source identifier.
func (c *TorznabClient) Name() string {
	return c.name
}

// Torznab XML response structures.
type capsResponse struct {
	XMLName   xml.Name `xml:"caps"`
	Searching struct {
		Search      capsMode `xml:"search"`
		TVSearch    capsMode `xml:"tv-search"`
		MovieSearch capsMode `xml:"movie-search"`
		MusicSearch capsMode `xml:"music-search"`
		BookSearch  capsMode `xml:"book-search"`
	} `xml:"searching"`
}

type capsMode struct {
	Available string `xml:"available,attr"`
}

type rssResponse struct {
	XMLName xml.Name   `xml:"rss"`
	Channel rssChannel `xml:"channel"`
}

type rssChannel struct {
	Items []rssItem `xml:"item"`
}

type rssItem struct {
	Title     string        `xml:"title"`
	GUID      string        `xml:"guid"`
	Link      string        `xml:"link"`
	Size      int64         `xml:"size"`
	PubDate   string        `xml:"pubDate"`
	Enclosure rssEnclosure  `xml:"enclosure"`
	Attrs     []torznabAttr `xml:"http://torznab.com/schemas/2015/feed attr"`
}

type rssEnclosure struct {
	URL    string `xml:"url,attr"`
	Length int64  `xml:"length,attr"`
}

type torznabAttr struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

// Capabilities fetches and caches the source's supported query types.
func (c *TorznabClient) Capabilities(ctx context.Context) ([]QueryType, error) {
	c.capsMu.Lock()
	defer c.capsMu.Unlock()
	if c.caps != nil {
		return c.caps, nil
	}

	body, err := c.get(ctx, url.Values{"t": {"caps"}})
	if err != nil {
		return nil, err
	}

	var caps capsResponse
	if err := xml.Unmarshal(body, &caps); err != nil {
		return nil, fmt.Errorf("parse caps: %w", err)
	}

	types := []QueryType{}
	if caps.Searching.Search.Available == "yes" {
		types = append(types, QuerySearch)
	}
	if caps.Searching.TVSearch.Available == "yes" {
		types = append(types, QueryTVSearch)
	}
	if caps.Searching.MovieSearch.Available == "yes" {
		types = append(types, QueryMovie)
	}
	if caps.Searching.MusicSearch.Available == "yes" {
		types = append(types, QueryMusic)
	}
	if caps.Searching.BookSearch.Available == "yes" {
		types = append(types, QueryBook)
	}
	c.caps = types
	return types, nil
}

// CanHandle reports whether the source can serve the query. A source
// without cached capabilities is assumed to handle generic searches.
func (c *TorznabClient) CanHandle(q Query) bool {
	c.capsMu.Lock()
	caps := c.caps
	c.capsMu.Unlock()
	if caps == nil {
		return q.Type == QuerySearch || q.Type == ""
	}
	for _, t := range caps {
		if t == q.Type {
			return true
		}
	}
	return false
}

// Search queries the source for releases.
func (c *TorznabClient) Search(ctx context.Context, q Query) ([]Release, error) {
	params := url.Values{}
	t := string(q.Type)
	if t == "" {
		t = string(QuerySearch)
	}
	params.Set("t", t)
	if q.Text != "" {
		params.Set("q", q.Text)
	}
	if q.Season > 0 {
		params.Set("season", strconv.Itoa(q.Season))
	}
	if q.Episode > 0 {
		params.Set("ep", strconv.Itoa(q.Episode))
	}
	if q.Year > 0 {
		params.Set("year", strconv.Itoa(q.Year))
	}
	if len(q.Categories) > 0 {
		cats := make([]string, len(q.Categories))
		for i, cat := range q.Categories {
			cats[i] = strconv.Itoa(cat)
		}
		params.Set("cat", strings.Join(cats, ","))
	}

	start := time.Now()
	body, err := c.get(ctx, params)
	if err != nil {
		return nil, err
	}

	var rss rssResponse
	if err := xml.Unmarshal(body, &rss); err != nil {
		// Unparseable response is terminal, not retryable
		return nil, fmt.Errorf("parse response: %w", err)
	}

	releases := make([]Release, 0, len(rss.Channel.Items))
	for _, item := range rss.Channel.Items {
		rel := Release{
			Title:       item.Title,
			GUID:        item.GUID,
			DownloadURL: item.Link,
			Seeders:     -1,
			Source:      c.name,
		}

		if item.Enclosure.Length > 0 {
			rel.Size = item.Enclosure.Length
		} else if item.Size > 0 {
			rel.Size = item.Size
		}
		if rel.DownloadURL == "" && item.Enclosure.URL != "" {
			rel.DownloadURL = item.Enclosure.URL
		}

		if item.PubDate != "" {
			for _, format := range []string{
				time.RFC1123Z,
				time.RFC1123,
				"Mon, 02 Jan 2006 15:04:05 MST",
			} {
				if parsed, err := time.Parse(format, item.PubDate); err == nil {
					rel.PublishDate = parsed
					break
				}
			}
		}

		for _, attr := range item.Attrs {
			switch attr.Name {
			case "size":
				if rel.Size == 0 {
					rel.Size, _ = strconv.ParseInt(attr.Value, 10, 64)
				}
			case "seeders":
				rel.Seeders, _ = strconv.Atoi(attr.Value)
			}
		}

		releases = append(releases, rel)
	}

	c.log.Debug("search done", "type", t, "query", q.Text,
		"results", len(releases), "duration_ms", time.Since(start).Milliseconds())
	return releases, nil
}

// get performs a Torznab API request. Network failures and server-side
// errors are marked transient so the work queue retries them.
func (c *TorznabClient) get(ctx context.Context, params url.Values) ([]byte, error) {
	reqURL, err := url.Parse(c.baseURL + "/api")
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	params.Set("apikey", c.apiKey)
	reqURL.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, queue.Transient(fmt.Errorf("request failed: %w", err))
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 500 {
		return nil, queue.Transient(fmt.Errorf("server error: %d", resp.StatusCode))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, queue.Transient(fmt.Errorf("read response: %w", err))
	}
	return body, nil
}
