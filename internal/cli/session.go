package cli

import (
	"fmt"

	"github.com/roach88/skillwave/internal/cache"
	"github.com/roach88/skillwave/internal/compiler"
	"github.com/roach88/skillwave/internal/graph"
	"github.com/roach88/skillwave/internal/store"
)

// session bundles the execution cache and its optional SQLite backend.
type session struct {
	cache *cache.Cache
	store *store.Store // nil when the cache is memory only
}

// openSession builds the cache from config. dbPath overrides cache.db.
func openSession(opts *RootOptions, dbPath string) (*session, error) {
	cfg := opts.Config
	if dbPath == "" {
		dbPath = cfg.Cache.DB
	}

	cacheOpts := []cache.Option{
		cache.WithReplayFailures(cfg.Cache.ReplayFailures),
		cache.WithLogger(opts.Logger),
	}

	s := &session{}
	if dbPath != "" {
		opts.Logger.Debug("opening database", "path", dbPath)
		st, err := store.Open(dbPath)
		if err != nil {
			return nil, err
		}
		s.store = st
		cacheOpts = append(cacheOpts, cache.WithBackend(st))
	}

	c, err := cache.New(cfg.Cache.Capacity, cacheOpts...)
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	s.cache = c
	return s, nil
}

// openStore opens the database named by dbPath or cache.db. One of the two
// must be set.
func openStore(opts *RootOptions, dbPath string) (*store.Store, error) {
	if dbPath == "" {
		dbPath = opts.Config.Cache.DB
	}
	if dbPath == "" {
		return nil, fmt.Errorf("a database is required (--db or cache.db)")
	}
	return store.Open(dbPath)
}

func (s *session) Close() error {
	if s.store == nil {
		return nil
	}
	return s.store.Close()
}

// loadGraph reads and builds the graph in path, rendering failures with f.
// A structural graph error exits with ExitFailure; an unreadable or
// malformed file with ExitCommandError.
func loadGraph(f *OutputFormatter, path string) (*graph.Graph, error) {
	decls, err := compiler.LoadFile(path)
	if err != nil {
		return nil, f.fail(ExitCommandError, ErrCodeLoadFailed, "failed to load graph", err)
	}
	g, err := graph.Build(decls)
	if err != nil {
		return nil, f.fail(ExitFailure, ErrCodeInvalidGraph, "invalid graph", err)
	}
	return g, nil
}
