// Package server wires the pipeline components together and manages
// their lifecycle.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sort"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vmunix/grabarr/internal/analyze"
	apitorznab "github.com/vmunix/grabarr/internal/api/torznab"
	"github.com/vmunix/grabarr/internal/config"
	"github.com/vmunix/grabarr/internal/dispatch"
	"github.com/vmunix/grabarr/internal/download"
	"github.com/vmunix/grabarr/internal/events"
	"github.com/vmunix/grabarr/internal/indexer"
	"github.com/vmunix/grabarr/internal/library"
	"github.com/vmunix/grabarr/internal/match"
	"github.com/vmunix/grabarr/internal/notify"
	"github.com/vmunix/grabarr/internal/organize"
	"github.com/vmunix/grabarr/internal/quality"
	"github.com/vmunix/grabarr/internal/queue"
	"github.com/vmunix/grabarr/internal/sources"
)

// cleanupInterval is how often stale library file records are swept.
const cleanupInterval = time.Hour

// Runner owns the assembled pipeline.
type Runner struct {
	db     *sql.DB
	cfg    *config.Config
	client download.Downloader
	logger *slog.Logger
}

// NewRunner creates a runner. The download backend is injected; the
// rest is built from config.
func NewRunner(db *sql.DB, cfg *config.Config, client download.Downloader, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		db:     db,
		cfg:    cfg,
		client: client,
		logger: logger,
	}
}

// Run starts all components and blocks until the context is canceled
// or a component fails.
func (r *Runner) Run(ctx context.Context) error {
	bus := events.NewBus(r.logger.With("component", "bus"))
	defer bus.Close()

	libStore := library.NewStore(r.db)
	taskStore := download.NewStore(r.db)
	pendingStore := match.NewPendingStore(r.db)
	resolver := sources.NewResolver(r.db)

	if err := r.syncLibraries(libStore); err != nil {
		return fmt.Errorf("sync libraries: %w", err)
	}

	searchQ := queue.New(queue.Config{
		Name:        "search",
		Concurrency: r.cfg.Queues.SearchConcurrency,
		Attempts:    uint(r.cfg.Queues.RetryAttempts),
	}, r.logger)
	defer searchQ.Close()

	workQ := queue.New(queue.Config{
		Name:        "work",
		Concurrency: r.cfg.Queues.AnalyzeConcurrency,
		Attempts:    uint(r.cfg.Queues.RetryAttempts),
	}, r.logger)
	defer workQ.Close()

	pool := indexer.NewPool(r.gateways(), resolver, searchQ, r.logger)

	coordinator := download.NewCoordinator(r.client, taskStore, bus,
		r.cfg.Downloads.MaxConcurrent, r.cfg.Downloads.DeleteOnCancel, r.logger)

	matcher := match.NewMatcher(pendingStore, libStore, r.cfg.Matching, bus, r.logger)
	evaluator := quality.NewEvaluator(r.cfg.Quality)
	renamer := organize.NewRenamer(r.cfg.Naming)
	organizer := organize.NewOrganizer(libStore, pendingStore, evaluator, renamer,
		r.cfg.Matching.CopyAttemptCap, bus, r.logger)
	analyzer := analyze.NewAnalyzer(libStore, workQ, nil, bus, r.logger)
	dispatcher := dispatch.NewDispatcher(taskStore, libStore, pendingStore, matcher,
		organizer, workQ, bus, r.logger)
	notifier := notify.NewNotifier(r.cfg.Notify, bus, r.logger)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return dispatcher.Run(ctx) })
	g.Go(func() error { return analyzer.Run(ctx) })
	g.Go(func() error { return notifier.Run(ctx) })

	// Poll loop drives task state off the download backend.
	g.Go(func() error {
		interval := r.cfg.Downloads.PollInterval
		if interval <= 0 {
			interval = 15 * time.Second
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				if err := coordinator.Refresh(ctx); err != nil {
					r.logger.Error("refresh failed", "error", err)
				}
			}
		}
	})

	g.Go(func() error {
		ticker := time.NewTicker(cleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				if err := organizer.Cleanup(ctx); err != nil {
					r.logger.Error("cleanup failed", "error", err)
				}
			}
		}
	})

	if r.cfg.Torznab.Enabled {
		handler := apitorznab.NewHandler(pool, r.cfg.Torznab, r.logger)
		srv := &http.Server{
			Addr:              net.JoinHostPort(r.cfg.Server.Host, strconv.Itoa(r.cfg.Server.Port)),
			Handler:           handler.Routes(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		g.Go(func() error {
			r.logger.Info("torznab endpoint listening", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	// Pick up where a previous run left off.
	if err := coordinator.Restore(ctx); err != nil {
		r.logger.Error("restore tasks failed", "error", err)
	}
	if err := dispatcher.Recover(ctx); err != nil {
		r.logger.Error("recover dispatch failed", "error", err)
	}

	return g.Wait()
}

// gateways builds one Torznab client per configured indexer, highest
// priority first.
func (r *Runner) gateways() []indexer.Gateway {
	names := make([]string, 0, len(r.cfg.Indexers))
	for name := range r.cfg.Indexers {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		pi, pj := r.cfg.Indexers[names[i]].Priority, r.cfg.Indexers[names[j]].Priority
		if pi != pj {
			return pi > pj
		}
		return names[i] < names[j]
	})

	gateways := make([]indexer.Gateway, 0, len(names))
	for _, name := range names {
		ic := r.cfg.Indexers[name]
		gateways = append(gateways, indexer.NewTorznabClient(name, ic.URL, ic.APIKey, r.logger))
	}
	return gateways
}

// syncLibraries makes sure every configured library has a record.
func (r *Runner) syncLibraries(libStore *library.Store) error {
	existing, err := libStore.ListLibraries("")
	if err != nil {
		return err
	}
	byName := make(map[string]*library.Library, len(existing))
	for _, l := range existing {
		byName[l.Name] = l
	}

	for name, lc := range r.cfg.Libraries {
		if _, ok := byName[name]; ok {
			continue
		}
		l := &library.Library{
			UserID: "default",
			Name:   name,
			Type:   library.Type(lc.Type),
			Root:   lc.Root,
		}
		if err := libStore.AddLibrary(l); err != nil {
			return err
		}
		r.logger.Info("library registered", "name", name, "type", lc.Type, "root", lc.Root)
	}
	return nil
}
