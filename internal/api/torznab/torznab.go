// Package torznab exposes the search pool as a Torznab-compatible
// HTTP endpoint, so standard automation clients can query it.
package torznab

import (
	"encoding/xml"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/vmunix/grabarr/internal/config"
	"github.com/vmunix/grabarr/internal/indexer"
)

// Torznab error codes.
const (
	codeBadCredentials = 100
	codeMissingParam   = 200
	codeIncorrectParam = 201
	codeUnknownError   = 900
)

// Handler serves Torznab queries against the search pool.
type Handler struct {
	pool *indexer.Pool
	cfg  config.TorznabConfig
	log  *slog.Logger
}

// NewHandler creates a Torznab handler.
func NewHandler(pool *indexer.Pool, cfg config.TorznabConfig, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{
		pool: pool,
		cfg:  cfg,
		log:  log.With("component", "torznab"),
	}
}

// Routes builds the router for the Torznab endpoint.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/api", h.handle)
	return r
}

func (h *Handler) handle(w http.ResponseWriter, r *http.Request) {
	t := r.URL.Query().Get("t")
	if t == "" {
		writeError(w, codeMissingParam, "missing parameter: t")
		return
	}

	// Caps are served without credentials, per convention.
	if t == "caps" {
		h.caps(w)
		return
	}

	if h.cfg.APIKey == "" || r.URL.Query().Get("apikey") != h.cfg.APIKey {
		writeError(w, codeBadCredentials, "incorrect user credentials")
		return
	}

	var queryType indexer.QueryType
	var libraryType string
	switch t {
	case "search":
		queryType = indexer.QuerySearch
	case "tvsearch":
		queryType, libraryType = indexer.QueryTVSearch, "tv"
	case "movie":
		queryType, libraryType = indexer.QueryMovie, "movie"
	case "music":
		queryType, libraryType = indexer.QueryMusic, "music"
	default:
		writeError(w, codeIncorrectParam, "unsupported query type: "+t)
		return
	}

	q := indexer.Query{
		Type: queryType,
		Text: r.URL.Query().Get("q"),
	}
	var err error
	if q.Season, err = intParam(r, "season"); err != nil {
		writeError(w, codeIncorrectParam, "incorrect parameter: season")
		return
	}
	if q.Episode, err = intParam(r, "ep"); err != nil {
		writeError(w, codeIncorrectParam, "incorrect parameter: ep")
		return
	}
	if q.Year, err = intParam(r, "year"); err != nil {
		writeError(w, codeIncorrectParam, "incorrect parameter: year")
		return
	}
	for _, c := range strings.Split(r.URL.Query().Get("cat"), ",") {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		cat, err := strconv.Atoi(c)
		if err != nil {
			writeError(w, codeIncorrectParam, "incorrect parameter: cat")
			return
		}
		q.Categories = append(q.Categories, cat)
	}

	releases, err := h.pool.Search(r.Context(), "default", libraryType, nil, q)
	if err != nil {
		h.log.Error("search failed", "type", t, "query", q.Text, "error", err)
		writeError(w, codeUnknownError, "search failed")
		return
	}

	if limit, _ := intParam(r, "limit"); limit > 0 && limit < len(releases) {
		releases = releases[:limit]
	}
	writeFeed(w, releases)
}

func intParam(r *http.Request, name string) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}

type errorXML struct {
	XMLName     xml.Name `xml:"error"`
	Code        int      `xml:"code,attr"`
	Description string   `xml:"description,attr"`
}

type capModeXML struct {
	Available       string `xml:"available,attr"`
	SupportedParams string `xml:"supportedParams,attr"`
}

type capsXML struct {
	XMLName   xml.Name `xml:"caps"`
	Searching struct {
		Search      capModeXML `xml:"search"`
		TVSearch    capModeXML `xml:"tv-search"`
		MovieSearch capModeXML `xml:"movie-search"`
		MusicSearch capModeXML `xml:"music-search"`
	} `xml:"searching"`
}

type attrXML struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

type itemXML struct {
	Title   string    `xml:"title"`
	GUID    string    `xml:"guid"`
	Link    string    `xml:"link,omitempty"`
	Size    int64     `xml:"size"`
	PubDate string    `xml:"pubDate"`
	Attrs   []attrXML `xml:"torznab:attr"`
}

type rssXML struct {
	XMLName xml.Name `xml:"rss"`
	Version string   `xml:"version,attr"`
	NS      string   `xml:"xmlns:torznab,attr"`
	Channel struct {
		Title string    `xml:"title"`
		Items []itemXML `xml:"item"`
	} `xml:"channel"`
}

func (h *Handler) caps(w http.ResponseWriter) {
	var caps capsXML
	caps.Searching.Search = capModeXML{Available: "yes", SupportedParams: "q"}
	caps.Searching.TVSearch = capModeXML{Available: "yes", SupportedParams: "q,season,ep"}
	caps.Searching.MovieSearch = capModeXML{Available: "yes", SupportedParams: "q,year"}
	caps.Searching.MusicSearch = capModeXML{Available: "yes", SupportedParams: "q"}
	writeXML(w, http.StatusOK, caps)
}

func writeFeed(w http.ResponseWriter, releases []indexer.Release) {
	feed := rssXML{
		Version: "2.0",
		NS:      "http://torznab.com/schemas/2015/feed",
	}
	feed.Channel.Title = "grabarr"
	for _, rel := range releases {
		item := itemXML{
			Title:   rel.Title,
			GUID:    rel.GUID,
			Link:    rel.DownloadURL,
			Size:    rel.Size,
			PubDate: rel.PublishDate.Format(time.RFC1123Z),
			Attrs: []attrXML{
				{Name: "size", Value: strconv.FormatInt(rel.Size, 10)},
			},
		}
		if rel.Seeders >= 0 {
			item.Attrs = append(item.Attrs, attrXML{Name: "seeders", Value: strconv.Itoa(rel.Seeders)})
		}
		feed.Channel.Items = append(feed.Channel.Items, item)
	}
	writeXML(w, http.StatusOK, feed)
}

func writeError(w http.ResponseWriter, code int, description string) {
	// Torznab errors ride on HTTP 200 with a typed body.
	writeXML(w, http.StatusOK, errorXML{Code: code, Description: description})
}

func writeXML(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(xml.Header))
	_ = xml.NewEncoder(w).Encode(v)
}
