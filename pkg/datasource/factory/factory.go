// Package factory builds the datasources named by a configuration.
package factory

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/marshallshelly/pebble-api/pkg/builder"
	"github.com/marshallshelly/pebble-api/pkg/config"
	"github.com/marshallshelly/pebble-api/pkg/datasource"
	"github.com/marshallshelly/pebble-api/pkg/datasource/document"
	"github.com/marshallshelly/pebble-api/pkg/datasource/relational"
	"github.com/marshallshelly/pebble-api/pkg/schema"
)

// DataSource is the record datasource served to the API layer.
type DataSource = datasource.DataSource[datasource.Record]

// Backend is one configured backend and the entities it serves.
type Backend struct {
	// Name is the key in the datasources map, or "" for database_config.
	Name     string
	Config   config.DatabaseConfig
	Entities []string
	Source   DataSource
	Err      error
}

// Label returns the backend name for logs.
func (b *Backend) Label() string {
	if b.Name == "" {
		return "default"
	}
	return b.Name
}

// Set holds the backends built from a configuration.
type Set struct {
	backends []*Backend
	byEntity map[string]DataSource
}

// Open connects a single backend and registers the entities it serves.
func Open(ctx context.Context, db config.DatabaseConfig, entities []schema.Entity, log logrus.FieldLogger) (DataSource, error) {
	if db.DBType == config.Memory {
		return datasource.NewMemory[datasource.Record](entities), nil
	}

	dsn, err := db.DSN()
	if err != nil {
		return nil, datasource.Wrap(datasource.KindConnection, err, "invalid %s configuration", db.DBType)
	}

	switch db.DBType {
	case config.MongoDB:
		ds := document.New[datasource.Record](document.Options{
			URI:          dsn,
			Database:     db.DatabaseName,
			QueryTimeout: db.Timeout(),
			Logger:       log,
		})
		if err := ds.Configure(ctx, entities); err != nil {
			return nil, err
		}
		return ds, nil
	case config.PostgreSQL, config.MySQL, config.SQLite:
		dialect, err := DialectOf(db.DBType)
		if err != nil {
			return nil, err
		}
		ds := relational.New[datasource.Record](relational.Options{
			Dialect:      dialect,
			DSN:          dsn,
			MaxConns:     db.MaxConnections,
			QueryTimeout: db.Timeout(),
			Logger:       log,
		})
		if err := ds.Configure(ctx, entities); err != nil {
			return nil, err
		}
		return ds, nil
	}
	return nil, datasource.Errorf(datasource.KindConnection, "unsupported database type %q", db.DBType)
}

// DialectOf returns the SQL dialect of a relational backend type.
func DialectOf(t config.DatabaseType) (builder.Dialect, error) {
	switch t {
	case config.PostgreSQL:
		return builder.Postgres, nil
	case config.MySQL:
		return builder.MySQL, nil
	case config.SQLite:
		return builder.SQLite, nil
	}
	return 0, fmt.Errorf("%s is not a relational backend", t)
}

// openBackend is replaced in tests.
var openBackend = Open

// Build connects every backend referenced by the configured entities.
// Backends connect concurrently. A failing default backend is fatal; a
// failing named backend only disables its entities.
func Build(ctx context.Context, cfg *config.Config, log logrus.FieldLogger) (*Set, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}

	groups := make(map[string][]schema.Entity)
	var names []string
	for _, e := range cfg.Entities {
		name, _, err := cfg.DatasourceFor(&e)
		if err != nil {
			log.WithField("entity", e.Name).Warnf("skipping entity: %v", err)
			continue
		}
		if _, ok := groups[name]; !ok {
			names = append(names, name)
		}
		groups[name] = append(groups[name], e)
	}
	slices.Sort(names)

	backends := make([]*Backend, len(names))
	var g errgroup.Group
	for i, name := range names {
		_, db, _ := cfg.DatasourceFor(&schema.Entity{Datasource: name})
		b := &Backend{Name: name, Config: db}
		for _, e := range groups[name] {
			b.Entities = append(b.Entities, e.Name)
		}
		backends[i] = b

		g.Go(func() error {
			blog := log.WithField("datasource", b.Label())
			b.Source, b.Err = openBackend(ctx, b.Config, groups[name], blog)
			return nil
		})
	}
	_ = g.Wait()

	// Every backend belongs to the set before any early return so Close
	// reaches the ones that connected.
	set := &Set{backends: backends, byEntity: make(map[string]DataSource)}
	var failed []error
	for _, b := range backends {
		if b.Err != nil {
			failed = append(failed, fmt.Errorf("%s: %w", b.Label(), b.Err))
			if b.Name == "" {
				_ = set.Close()
				return nil, fmt.Errorf("failed to connect default datasource: %w", b.Err)
			}
			log.WithField("datasource", b.Label()).WithError(b.Err).
				Warnf("datasource unavailable, disabling entities %v", b.Entities)
			continue
		}
		for _, name := range b.Entities {
			set.byEntity[name] = b.Source
		}
		log.WithFields(logrus.Fields{
			"datasource": b.Label(),
			"type":       b.Config.DBType,
			"target":     b.Config.Redacted(),
		}).Infof("datasource ready for %d entities", len(b.Entities))
	}

	if len(backends) > 0 && len(failed) == len(backends) {
		_ = set.Close()
		return nil, fmt.Errorf("no datasource could be connected: %w", errors.Join(failed...))
	}
	return set, nil
}

// DataSources returns the datasource serving each entity, keyed by the
// configured entity name. Entities whose backend failed are absent.
func (s *Set) DataSources() map[string]DataSource {
	out := make(map[string]DataSource, len(s.byEntity))
	for k, v := range s.byEntity {
		out[k] = v
	}
	return out
}

// For returns the datasource of an entity.
func (s *Set) For(entity string) (DataSource, bool) {
	ds, ok := s.byEntity[entity]
	return ds, ok
}

// Backends returns every configured backend, including failed ones.
func (s *Set) Backends() []*Backend {
	return s.backends
}

// Ping checks every connected backend and returns the failures by label.
func (s *Set) Ping(ctx context.Context) map[string]error {
	out := make(map[string]error)
	for _, b := range s.backends {
		if b.Source == nil {
			out[b.Label()] = b.Err
			continue
		}
		if p, ok := b.Source.(datasource.Pinger); ok {
			if err := p.Ping(ctx); err != nil {
				out[b.Label()] = err
			}
		}
	}
	return out
}

// Close releases every backend.
func (s *Set) Close() error {
	var errs []error
	for _, b := range s.backends {
		if c, ok := b.Source.(datasource.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", b.Label(), err))
			}
		}
	}
	return errors.Join(errs...)
}
