// Package catalog orchestrates schema generation and persistence. It
// owns the degrade path: when the store refuses writes the generated
// tables stay readable through an in-process cache, so a restricted
// connection can still run queries it just cannot share metadata for.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"doctable/internal/infer"
	"doctable/internal/schema"
	"doctable/internal/store"
)

// SourceFunc opens a document source for one collection. The catalog
// closes the source when generation is done with it.
type SourceFunc func(ctx context.Context, collection string) (infer.DocumentSource, error)

// CollectionsFunc lists the collections to generate tables for.
type CollectionsFunc func(ctx context.Context) ([]string, error)

// Config assembles a Service.
type Config struct {
	Store       store.Store
	Database    string
	Collections CollectionsFunc
	Sample      SourceFunc
	Logger      *slog.Logger

	// NameLimit overrides the SQL identifier length budget; zero means
	// the default.
	NameLimit int
}

// Outcome reports where a generated schema ended up.
type Outcome string

const (
	// Persisted means the schema and its tables were written to the
	// store.
	Persisted Outcome = "persisted"

	// CachedOnly means the store refused the write and the schema is
	// held in process memory only.
	CachedOnly Outcome = "cachedOnly"
)

// GenerateResult is the explicit result of a generation run.
type GenerateResult struct {
	Outcome Outcome
	Schema  *schema.Schema
	Tables  map[string]*schema.Table
}

// Service generates, persists and resolves schemas.
type Service struct {
	store       store.Store
	database    string
	collections CollectionsFunc
	sample      SourceFunc
	gen         *infer.Generator
	log         *slog.Logger

	mu            sync.RWMutex
	cachedTables  map[string]*schema.Table  // keyed by table id
	cachedSchemas map[string]*schema.Schema // keyed by schema name
}

// New builds a Service from the config. Store, Collections and Sample
// are required.
func New(cfg Config) (*Service, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("catalog: store is required")
	}
	if cfg.Collections == nil || cfg.Sample == nil {
		return nil, fmt.Errorf("catalog: collection lister and sampler are required")
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	gen := infer.NewGenerator()
	if cfg.NameLimit > 0 {
		gen = infer.NewGeneratorWithNameLimit(cfg.NameLimit)
	}
	return &Service{
		store:         cfg.Store,
		database:      cfg.Database,
		collections:   cfg.Collections,
		sample:        cfg.Sample,
		gen:           gen,
		log:           log,
		cachedTables:  make(map[string]*schema.Table),
		cachedSchemas: make(map[string]*schema.Schema),
	}, nil
}

// Ensure returns the latest version of the named schema, generating one
// if neither the cache nor the store has it.
func (s *Service) Ensure(ctx context.Context, name string) (*schema.Schema, error) {
	s.mu.RLock()
	cached := s.cachedSchemas[name]
	s.mu.RUnlock()
	if cached != nil {
		return cached, nil
	}

	sc, err := s.store.ReadLatest(ctx, name)
	if err != nil {
		return nil, err
	}
	if sc != nil {
		return sc, nil
	}

	res, err := s.Generate(ctx, name)
	if err != nil {
		return nil, err
	}
	return res.Schema, nil
}

// Generate samples every collection, infers tables and persists them as
// the next version of the named schema. A store that refuses the write
// degrades to CachedOnly instead of failing.
func (s *Service) Generate(ctx context.Context, name string) (*GenerateResult, error) {
	colls, err := s.collections(ctx)
	if err != nil {
		return nil, fmt.Errorf("catalog: list collections: %w", err)
	}

	tables := make(map[string]*schema.Table)
	for _, coll := range colls {
		src, err := s.sample(ctx, coll)
		if err != nil {
			return nil, fmt.Errorf("catalog: sample %s: %w", coll, err)
		}
		generated, err := s.gen.Generate(ctx, coll, src)
		if err != nil {
			return nil, fmt.Errorf("catalog: infer %s: %w", coll, err)
		}
		for tname, t := range generated {
			if _, dup := tables[tname]; dup {
				return nil, fmt.Errorf("catalog: collections %q produce colliding table name %q", colls, tname)
			}
			tables[tname] = t
		}
	}

	prev, err := s.store.ReadLatest(ctx, name)
	if err != nil {
		return nil, err
	}
	var sc *schema.Schema
	if prev == nil {
		sc = schema.NewSchema(name, s.database, tables)
	} else {
		sc = prev.NextVersion(tables)
	}

	if err := s.store.Write(ctx, sc, tables); err != nil {
		var secErr *store.SecurityError
		if !errors.As(err, &secErr) {
			return nil, err
		}
		s.log.Warn("schema store refused write, keeping schema in process cache",
			"schema", sc.Name,
			"version", sc.Version,
			"error", secErr.Err)
		s.cachePut(sc, tables)
		return &GenerateResult{Outcome: CachedOnly, Schema: sc, Tables: tables}, nil
	}

	s.log.Info("schema persisted",
		"schema", sc.Name,
		"version", sc.Version,
		"tables", len(tables))
	return &GenerateResult{Outcome: Persisted, Schema: sc, Tables: tables}, nil
}

// Tables resolves every table a schema references, consulting the
// degrade cache before the store.
func (s *Service) Tables(ctx context.Context, sc *schema.Schema) (map[string]*schema.Table, error) {
	tables := make(map[string]*schema.Table, len(sc.Tables))
	var missing []schema.TableRef

	s.mu.RLock()
	for _, ref := range sc.Tables {
		if t, ok := s.cachedTables[ref.ID]; ok {
			tables[t.SQLName] = t
		} else {
			missing = append(missing, ref)
		}
	}
	s.mu.RUnlock()

	for _, ref := range missing {
		t, err := s.store.ReadTable(ctx, sc.Name, sc.Version, ref.ID)
		if err != nil {
			return nil, err
		}
		if t == nil {
			return nil, fmt.Errorf("catalog: schema %s v%d references missing table %s", sc.Name, sc.Version, ref.SQLName)
		}
		tables[t.SQLName] = t
	}
	return tables, nil
}

func (s *Service) cachePut(sc *schema.Schema, tables map[string]*schema.Table) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cachedSchemas[sc.Name] = sc
	for _, t := range tables {
		s.cachedTables[t.ID] = t
	}
}
