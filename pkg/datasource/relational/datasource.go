// Package relational implements the SQL-backed datasource.
package relational

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/marshallshelly/pebble-api/pkg/builder"
	"github.com/marshallshelly/pebble-api/pkg/config"
	"github.com/marshallshelly/pebble-api/pkg/datasource"
	"github.com/marshallshelly/pebble-api/pkg/registry"
	"github.com/marshallshelly/pebble-api/pkg/schema"
)

// DefaultQueryTimeout bounds every statement execution.
const DefaultQueryTimeout = 10 * time.Second

// Options configures a relational datasource.
type Options struct {
	Dialect      builder.Dialect
	DSN          string
	MaxConns     int
	QueryTimeout time.Duration
	Logger       logrus.FieldLogger
}

// shared is the state common to a datasource and all of its duplicates.
type shared struct {
	mu       sync.Mutex
	opts     Options
	exec     Executor
	mappings *registry.Registry
	log      logrus.FieldLogger
	open     func(ctx context.Context) (Executor, error)
}

// Datasource is a relational datasource generic over the entity payload.
type Datasource[T any] struct {
	s *shared
}

// New creates an unconnected datasource. Configure connects it.
func New[T any](opts Options) *Datasource[T] {
	s := newShared(opts)
	s.open = func(ctx context.Context) (Executor, error) {
		return Open(ctx, opts.Dialect, opts.DSN, opts.MaxConns)
	}
	return &Datasource[T]{s: s}
}

// NewWithExecutor creates a datasource over an already connected executor.
func NewWithExecutor[T any](exec Executor, opts Options) *Datasource[T] {
	s := newShared(opts)
	s.exec = exec
	return &Datasource[T]{s: s}
}

func newShared(opts Options) *shared {
	if opts.QueryTimeout <= 0 {
		opts.QueryTimeout = DefaultQueryTimeout
	}
	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &shared{
		opts:     opts,
		mappings: registry.NewRegistry(),
		log:      log.WithField("datasource", opts.Dialect.String()),
	}
}

// Configure connects the pool if needed and registers the entity mappings.
// It is idempotent.
func (d *Datasource[T]) Configure(ctx context.Context, entities []schema.Entity) error {
	d.s.mu.Lock()
	defer d.s.mu.Unlock()

	if d.s.exec == nil {
		if d.s.open == nil {
			return datasource.Errorf(datasource.KindConnection, "no executor configured")
		}
		exec, err := d.s.open(ctx)
		if err != nil {
			return datasource.Errorf(datasource.KindConnection, "Error connecting to %s database: %s",
				d.s.opts.Dialect, config.RedactSecret(err.Error(), d.s.opts.DSN))
		}
		d.s.exec = exec
		d.s.log.Info("connected to database")
	}

	d.s.mappings.RegisterAll(entities)
	return nil
}

// Duplicate returns a handle sharing the pool and mappings.
func (d *Datasource[T]) Duplicate() datasource.DataSource[T] {
	return &Datasource[T]{s: d.s}
}

// Ping verifies the connection.
func (d *Datasource[T]) Ping(ctx context.Context) error {
	exec, err := d.executor()
	if err != nil {
		return err
	}
	return d.withTimeout(ctx, exec.Ping)
}

// Close releases the pool shared by every duplicate.
func (d *Datasource[T]) Close() error {
	d.s.mu.Lock()
	defer d.s.mu.Unlock()

	if d.s.exec == nil {
		return nil
	}
	err := d.s.exec.Close()
	d.s.exec = nil
	return err
}

func (d *Datasource[T]) executor() (Executor, error) {
	d.s.mu.Lock()
	defer d.s.mu.Unlock()

	if d.s.exec == nil {
		return nil, datasource.Errorf(datasource.KindConnection, "database not connected")
	}
	return d.s.exec, nil
}

func (d *Datasource[T]) prepare(entity string) (*builder.Builder, Executor, error) {
	exec, err := d.executor()
	if err != nil {
		return nil, nil, err
	}
	name := datasource.ResolveEntity[T](entity)
	table, err := d.s.mappings.Lookup(name)
	if err != nil {
		return nil, nil, &datasource.Error{Kind: datasource.KindNotFound, Message: err.Error(), Err: err}
	}
	return builder.New(d.s.opts.Dialect, table), exec, nil
}

// withTimeout runs op under the query timeout. The operation keeps running
// in the background when the timeout fires first.
func (d *Datasource[T]) withTimeout(ctx context.Context, op func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, d.s.opts.QueryTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- op(ctx)
	}()

	select {
	case err := <-done:
		if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return d.timeoutError()
		}
		return err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return d.timeoutError()
		}
		return datasource.Wrap(datasource.KindQuery, ctx.Err(), "query cancelled")
	}
}

func (d *Datasource[T]) timeoutError() error {
	return datasource.Errorf(datasource.KindQuery, "Query timed out after %d seconds",
		int(d.s.opts.QueryTimeout/time.Second))
}

func (d *Datasource[T]) query(ctx context.Context, exec Executor, sql string, args ...any) ([]map[string]any, error) {
	var rows []map[string]any
	err := d.withTimeout(ctx, func(ctx context.Context) error {
		var err error
		rows, err = exec.Query(ctx, sql, args...)
		return err
	})
	if err != nil {
		return nil, asQueryError(err)
	}
	return rows, nil
}

func (d *Datasource[T]) execute(ctx context.Context, exec Executor, sql string, args ...any) (int64, error) {
	var n int64
	err := d.withTimeout(ctx, func(ctx context.Context) error {
		var err error
		n, err = exec.Exec(ctx, sql, args...)
		return err
	})
	if err != nil {
		return 0, asQueryError(err)
	}
	return n, nil
}

func asQueryError(err error) error {
	var dsErr *datasource.Error
	if errors.As(err, &dsErr) {
		return err
	}
	return datasource.Wrap(datasource.KindQuery, err, "statement failed")
}

// GetAll returns every row of the entity's table.
func (d *Datasource[T]) GetAll(ctx context.Context, entity string) ([]T, error) {
	b, exec, err := d.prepare(entity)
	if err != nil {
		return nil, err
	}

	rows, err := d.query(ctx, exec, b.SelectAll())
	if err != nil {
		return nil, err
	}

	items := make([]T, 0, len(rows))
	for _, row := range rows {
		item, err := d.decode(b.Table(), row)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

// GetByID returns the row whose primary key equals id.
func (d *Datasource[T]) GetByID(ctx context.Context, id, entity string) (T, bool, error) {
	var zero T
	b, exec, err := d.prepare(entity)
	if err != nil {
		return zero, false, err
	}

	rows, err := d.query(ctx, exec, b.SelectByID(), id)
	if err != nil {
		return zero, false, err
	}
	if len(rows) == 0 {
		return zero, false, nil
	}

	item, err := d.decode(b.Table(), rows[0])
	if err != nil {
		return zero, false, err
	}
	return item, true, nil
}

// Create inserts item and returns it unchanged.
func (d *Datasource[T]) Create(ctx context.Context, item T, entity string) (T, error) {
	var zero T
	b, exec, err := d.prepare(entity)
	if err != nil {
		return zero, err
	}

	record, err := builder.ToRecord(item)
	if err != nil {
		return zero, datasource.Wrap(datasource.KindSerialization, err, "failed to serialize %s", b.Table().EntityName)
	}
	d.validate(b.Table(), record)

	values, err := builder.InsertValues(b.Table(), record)
	if err != nil {
		return zero, bindError(err)
	}

	if _, err := d.execute(ctx, exec, b.Insert(), values...); err != nil {
		return zero, err
	}
	return item, nil
}

// Update overwrites every non-key column of the row with the given id.
// Rows affected are not checked.
func (d *Datasource[T]) Update(ctx context.Context, id string, item T, entity string) (T, error) {
	var zero T
	b, exec, err := d.prepare(entity)
	if err != nil {
		return zero, err
	}

	record, err := builder.ToRecord(item)
	if err != nil {
		return zero, datasource.Wrap(datasource.KindSerialization, err, "failed to serialize %s", b.Table().EntityName)
	}
	d.validate(b.Table(), record)

	values, err := builder.UpdateValues(b.Table(), id, record)
	if err != nil {
		return zero, bindError(err)
	}

	if _, err := d.execute(ctx, exec, b.Update(), values...); err != nil {
		return zero, err
	}

	// The key column is never updated, so the response carries the path id.
	pk := b.Table().PrimaryKey
	record[pk] = datasource.KeyValue(id, numericKey(b.Table(), record[pk]))
	updated, err := builder.Decode[T](b.Table().EntityName, record)
	if err != nil {
		return zero, &datasource.Error{Kind: datasource.KindMapping, Message: err.Error(), Err: err}
	}
	return updated, nil
}

func numericKey(table *registry.TableMapping, current any) bool {
	if _, ok := current.(json.Number); ok {
		return true
	}
	f, ok := table.Field(table.PrimaryKey)
	return ok && (f.Type == schema.Integer || f.Type == schema.Float)
}

// Delete removes the row with the given id.
func (d *Datasource[T]) Delete(ctx context.Context, id, entity string) (bool, error) {
	b, exec, err := d.prepare(entity)
	if err != nil {
		return false, err
	}

	n, err := d.execute(ctx, exec, b.Delete(), id)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (d *Datasource[T]) decode(table *registry.TableMapping, row map[string]any) (T, error) {
	item, err := builder.Decode[T](table.EntityName, builder.RowToRecord(table, row))
	if err != nil {
		return item, &datasource.Error{Kind: datasource.KindMapping, Message: err.Error(), Err: err}
	}
	return item, nil
}

// validate logs fields whose values do not match their declared type.
func (d *Datasource[T]) validate(table *registry.TableMapping, record map[string]any) {
	for _, f := range table.Fields {
		v, ok := record[f.FieldName]
		if !ok || f.Type.Accepts(v) {
			continue
		}
		d.s.log.WithFields(logrus.Fields{
			"entity": table.EntityName,
			"field":  f.FieldName,
		}).Warnf("Field '%s' type mismatch: expected %s, got %T", f.FieldName, f.Type, v)
	}
}

func bindError(err error) error {
	if errors.Is(err, builder.ErrUnsupportedValue) {
		return &datasource.Error{Kind: datasource.KindValidation, Message: err.Error(), Err: err}
	}
	return datasource.Wrap(datasource.KindSerialization, err, "failed to bind values")
}

// String describes the datasource without credentials.
func (d *Datasource[T]) String() string {
	return fmt.Sprintf("%s(%s)", d.s.opts.Dialect, config.RedactDSN(d.s.opts.DSN))
}
