package indexer

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/vmunix/grabarr/internal/queue"
	"github.com/vmunix/grabarr/internal/sources"
	"github.com/vmunix/grabarr/pkg/relname"
)

// Pool searches a set of gateways in the order a priority rule dictates.
type Pool struct {
	gateways map[string]Gateway
	order    []string // default order (configuration order by priority)
	resolver *sources.Resolver
	searchQ  *queue.Queue
	log      *slog.Logger
}

// NewPool creates a pool. The gateways slice fixes the default order.
func NewPool(gateways []Gateway, resolver *sources.Resolver, searchQ *queue.Queue, log *slog.Logger) *Pool {
	if log == nil {
		log = slog.Default()
	}
	byName := make(map[string]Gateway, len(gateways))
	order := make([]string, 0, len(gateways))
	for _, g := range gateways {
		byName[g.Name()] = g
		order = append(order, g.Name())
	}
	return &Pool{
		gateways: byName,
		order:    order,
		resolver: resolver,
		searchQ:  searchQ,
		log:      log.With("component", "indexer-pool"),
	}
}

// Gateway returns the named gateway, or nil.
func (p *Pool) Gateway(name string) Gateway {
	return p.gateways[name]
}

// Search resolves the source order for (user, libraryType, library) and
// queries. Without a search-all rule, sources are tried in order and the
// first one returning results wins; with search-all (or no rule listing
// fewer sources), every capable source is queried in parallel and the
// results merged, sorted by seeders then publish date.
func (p *Pool) Search(ctx context.Context, userID, libraryType string, libraryID *int64, q Query) ([]Release, error) {
	q.Text = relname.NormalizeSearchQuery(q.Text)

	res, err := p.resolver.Resolve(userID, libraryType, libraryID)
	if err != nil {
		return nil, err
	}

	ordered := p.order
	searchAll := true
	if res.Found {
		ordered = res.Sources
		searchAll = res.SearchAll
	}

	var capable []Gateway
	for _, name := range ordered {
		g, ok := p.gateways[name]
		if !ok {
			p.log.Warn("rule references unknown source", "source", name)
			continue
		}
		// Typed queries need the capability list; gateways cache it
		// after the first fetch.
		if _, err := g.Capabilities(ctx); err != nil {
			p.log.Warn("capabilities fetch failed", "source", name, "error", err)
		}
		if g.CanHandle(q) {
			capable = append(capable, g)
		}
	}
	if len(capable) == 0 {
		return nil, ErrNoSources
	}

	if !searchAll {
		return p.searchOrdered(ctx, capable, q)
	}
	return p.searchAll(ctx, capable, q)
}

// searchOrdered tries sources one at a time, returning the first
// non-empty result set.
func (p *Pool) searchOrdered(ctx context.Context, gateways []Gateway, q Query) ([]Release, error) {
	var lastErr error
	for _, g := range gateways {
		var releases []Release
		err := p.searchQ.Do(ctx, func(ctx context.Context) error {
			var err error
			releases, err = g.Search(ctx, q)
			return err
		})
		if err != nil {
			p.log.Warn("source failed", "source", g.Name(), "error", err)
			lastErr = err
			continue
		}
		if len(releases) > 0 {
			return releases, nil
		}
	}
	return nil, lastErr
}

// searchAll fans out to every source and merges results.
func (p *Pool) searchAll(ctx context.Context, gateways []Gateway, q Query) ([]Release, error) {
	start := time.Now()

	type result struct {
		releases []Release
		err      error
	}
	results := make(chan result, len(gateways))
	var wg sync.WaitGroup

	for _, g := range gateways {
		wg.Add(1)
		go func(g Gateway) {
			defer wg.Done()
			var releases []Release
			err := p.searchQ.Do(ctx, func(ctx context.Context) error {
				var err error
				releases, err = g.Search(ctx, q)
				return err
			})
			if err != nil {
				p.log.Warn("source failed", "source", g.Name(), "error", err)
			}
			results <- result{releases: releases, err: err}
		}(g)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	var all []Release
	var lastErr error
	for r := range results {
		if r.err != nil {
			lastErr = r.err
			continue
		}
		all = append(all, r.releases...)
	}
	if len(all) == 0 && lastErr != nil {
		return nil, lastErr
	}

	sort.SliceStable(all, func(i, j int) bool {
		if all[i].Seeders != all[j].Seeders {
			return all[i].Seeders > all[j].Seeders
		}
		return all[i].PublishDate.After(all[j].PublishDate)
	})

	p.log.Info("search complete", "query", q.Text, "sources", len(gateways),
		"results", len(all), "duration_ms", time.Since(start).Milliseconds())
	return all, nil
}
