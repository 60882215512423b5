// Package document implements a MongoDB-backed datasource. Each entity is
// stored in the collection named by its table name, keyed by its primary
// key field.
package document

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/marshallshelly/pebble-api/pkg/builder"
	"github.com/marshallshelly/pebble-api/pkg/config"
	"github.com/marshallshelly/pebble-api/pkg/datasource"
	"github.com/marshallshelly/pebble-api/pkg/registry"
	"github.com/marshallshelly/pebble-api/pkg/schema"
)

// DefaultQueryTimeout bounds every collection operation.
const DefaultQueryTimeout = 10 * time.Second

// Options configures a document datasource.
type Options struct {
	URI          string
	Database     string
	QueryTimeout time.Duration
	Logger       logrus.FieldLogger
}

type shared struct {
	mu       sync.Mutex
	opts     Options
	client   *mongo.Client
	db       *mongo.Database
	mappings *registry.Registry
	log      logrus.FieldLogger
}

// Datasource stores entities as MongoDB documents.
type Datasource[T any] struct {
	s *shared
}

// New creates an unconnected datasource. Configure connects it.
func New[T any](opts Options) *Datasource[T] {
	if opts.QueryTimeout <= 0 {
		opts.QueryTimeout = DefaultQueryTimeout
	}
	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Datasource[T]{s: &shared{
		opts:     opts,
		mappings: registry.NewRegistry(),
		log:      log.WithField("datasource", "mongodb"),
	}}
}

// Configure connects the client if needed, registers the entity mappings
// and ensures a unique index on each primary key.
func (d *Datasource[T]) Configure(ctx context.Context, entities []schema.Entity) error {
	d.s.mu.Lock()
	defer d.s.mu.Unlock()

	if d.s.client == nil {
		cctx, cancel := context.WithTimeout(ctx, d.s.opts.QueryTimeout)
		defer cancel()

		client, err := mongo.Connect(cctx, options.Client().ApplyURI(d.s.opts.URI))
		if err != nil {
			return d.connectError(err)
		}
		if err := client.Ping(cctx, readpref.Primary()); err != nil {
			_ = client.Disconnect(context.Background())
			return d.connectError(err)
		}
		d.s.client = client
		d.s.db = client.Database(d.s.opts.Database)
		d.s.log.WithField("database", d.s.opts.Database).Info("connected to mongodb")
	}

	d.s.mappings.RegisterAll(entities)
	for _, table := range d.s.mappings.All() {
		if table.PrimaryKey == "_id" {
			continue
		}
		index := mongo.IndexModel{
			Keys:    bson.D{{Key: table.PrimaryKeyColumn(), Value: 1}},
			Options: options.Index().SetUnique(true),
		}
		if _, err := d.s.db.Collection(table.TableName).Indexes().CreateOne(ctx, index); err != nil {
			d.s.log.WithError(err).WithField("collection", table.TableName).Warn("failed to create primary key index")
		}
	}
	return nil
}

func (d *Datasource[T]) connectError(err error) error {
	return datasource.Errorf(datasource.KindConnection, "Error connecting to MongoDB database: %s",
		config.RedactSecret(err.Error(), d.s.opts.URI))
}

// Duplicate returns a handle sharing the client and mappings.
func (d *Datasource[T]) Duplicate() datasource.DataSource[T] {
	return &Datasource[T]{s: d.s}
}

// Ping verifies the connection.
func (d *Datasource[T]) Ping(ctx context.Context) error {
	d.s.mu.Lock()
	client := d.s.client
	d.s.mu.Unlock()
	if client == nil {
		return datasource.Errorf(datasource.KindConnection, "database not connected")
	}

	ctx, cancel := context.WithTimeout(ctx, d.s.opts.QueryTimeout)
	defer cancel()
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return datasource.Wrap(datasource.KindConnection, err, "ping failed")
	}
	return nil
}

// Close disconnects the client shared by every duplicate.
func (d *Datasource[T]) Close() error {
	d.s.mu.Lock()
	defer d.s.mu.Unlock()

	if d.s.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), d.s.opts.QueryTimeout)
	defer cancel()
	err := d.s.client.Disconnect(ctx)
	d.s.client, d.s.db = nil, nil
	return err
}

func (d *Datasource[T]) collection(entity string) (*mongo.Collection, *registry.TableMapping, error) {
	d.s.mu.Lock()
	db := d.s.db
	d.s.mu.Unlock()
	if db == nil {
		return nil, nil, datasource.Errorf(datasource.KindConnection, "database not connected")
	}

	table, err := d.s.mappings.Lookup(datasource.ResolveEntity[T](entity))
	if err != nil {
		return nil, nil, &datasource.Error{Kind: datasource.KindNotFound, Message: err.Error(), Err: err}
	}
	return db.Collection(table.TableName), table, nil
}

func (d *Datasource[T]) timeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, d.s.opts.QueryTimeout)
}

func (d *Datasource[T]) queryError(ctx context.Context, err error, op string) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || mongo.IsTimeout(err) {
		return datasource.Errorf(datasource.KindQuery, "Query timed out after %d seconds",
			int(d.s.opts.QueryTimeout/time.Second))
	}
	return datasource.Wrap(datasource.KindQuery, err, "%s failed", op)
}

// GetAll returns every document of the entity's collection.
func (d *Datasource[T]) GetAll(ctx context.Context, entity string) ([]T, error) {
	coll, table, err := d.collection(entity)
	if err != nil {
		return nil, err
	}

	ctx, cancel := d.timeout(ctx)
	defer cancel()

	cur, err := coll.Find(ctx, bson.D{})
	if err != nil {
		return nil, d.queryError(ctx, err, "find")
	}
	var docs []bson.M
	if err := cur.All(ctx, &docs); err != nil {
		return nil, d.queryError(ctx, err, "find")
	}

	items := make([]T, 0, len(docs))
	for _, doc := range docs {
		item, err := decode[T](table, doc)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

// GetByID returns the document whose primary key equals id.
func (d *Datasource[T]) GetByID(ctx context.Context, id, entity string) (T, bool, error) {
	var zero T
	coll, table, err := d.collection(entity)
	if err != nil {
		return zero, false, err
	}

	ctx, cancel := d.timeout(ctx)
	defer cancel()

	var doc bson.M
	err = coll.FindOne(ctx, idFilter(table, id)).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return zero, false, nil
	}
	if err != nil {
		return zero, false, d.queryError(ctx, err, "find")
	}

	item, err := decode[T](table, doc)
	if err != nil {
		return zero, false, err
	}
	return item, true, nil
}

// Create inserts item. A missing primary key is generated and returned.
func (d *Datasource[T]) Create(ctx context.Context, item T, entity string) (T, error) {
	var zero T
	coll, table, err := d.collection(entity)
	if err != nil {
		return zero, err
	}

	doc, err := toDocument(table, item)
	if err != nil {
		return zero, err
	}
	generated := false
	if v, ok := doc[table.PrimaryKeyColumn()]; !ok || v == nil || v == "" {
		doc[table.PrimaryKeyColumn()] = uuid.NewString()
		generated = true
	}

	ctx, cancel := d.timeout(ctx)
	defer cancel()

	if _, err := coll.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return zero, datasource.Wrap(datasource.KindValidation, err, "duplicate %s", table.PrimaryKey)
		}
		return zero, d.queryError(ctx, err, "insert")
	}

	if !generated {
		return item, nil
	}
	return decode[T](table, doc)
}

// Update replaces the document with the given id.
func (d *Datasource[T]) Update(ctx context.Context, id string, item T, entity string) (T, error) {
	var zero T
	coll, table, err := d.collection(entity)
	if err != nil {
		return zero, err
	}

	doc, err := toDocument(table, item)
	if err != nil {
		return zero, err
	}
	doc[table.PrimaryKeyColumn()] = id

	ctx, cancel := d.timeout(ctx)
	defer cancel()

	if _, err := coll.ReplaceOne(ctx, idFilter(table, id), doc); err != nil {
		return zero, d.queryError(ctx, err, "replace")
	}
	return item, nil
}

// Delete removes the document with the given id.
func (d *Datasource[T]) Delete(ctx context.Context, id, entity string) (bool, error) {
	coll, table, err := d.collection(entity)
	if err != nil {
		return false, err
	}

	ctx, cancel := d.timeout(ctx)
	defer cancel()

	res, err := coll.DeleteOne(ctx, idFilter(table, id))
	if err != nil {
		return false, d.queryError(ctx, err, "delete")
	}
	return res.DeletedCount > 0, nil
}

// String describes the datasource without credentials.
func (d *Datasource[T]) String() string {
	return fmt.Sprintf("MongoDB(%s)", config.RedactDSN(d.s.opts.URI))
}

func idFilter(table *registry.TableMapping, id string) bson.D {
	return bson.D{{Key: table.PrimaryKeyColumn(), Value: id}}
}

// toDocument converts an entity into a document keyed by column name.
func toDocument[T any](table *registry.TableMapping, item T) (bson.M, error) {
	record, err := builder.ToRecord(item)
	if err != nil {
		return nil, datasource.Wrap(datasource.KindSerialization, err, "failed to serialize %s", table.EntityName)
	}

	doc := make(bson.M, len(record))
	for k, v := range record {
		col := k
		if f, ok := table.Field(k); ok {
			col = f.Column
		}
		val, err := bindValue(v)
		if err != nil {
			return nil, &datasource.Error{Kind: datasource.KindValidation, Message: fmt.Sprintf("field %s: %v", k, err), Err: err}
		}
		// Keys are stored as strings so path lookups match.
		if k == table.PrimaryKey && val != nil {
			val = fmt.Sprint(val)
		}
		doc[col] = val
	}
	return doc, nil
}

// bindValue turns decoded JSON numbers into native numbers, recursively.
func bindValue(v any) (any, error) {
	switch val := v.(type) {
	case map[string]any:
		out := make(bson.M, len(val))
		for k, item := range val {
			b, err := bindValue(item)
			if err != nil {
				return nil, err
			}
			out[k] = b
		}
		return out, nil
	case []any:
		out := make(bson.A, 0, len(val))
		for _, item := range val {
			b, err := bindValue(item)
			if err != nil {
				return nil, err
			}
			out = append(out, b)
		}
		return out, nil
	case string, bool, nil:
		return v, nil
	}
	return builder.BindValue(schema.Float, v)
}

// decode maps a document back to field names and into T. The MongoDB _id is
// dropped unless it is the mapped primary key.
func decode[T any](table *registry.TableMapping, doc bson.M) (T, error) {
	record := make(map[string]any, len(doc))
	for k, v := range doc {
		if k == "_id" && table.PrimaryKeyColumn() != "_id" {
			continue
		}
		name := k
		for _, f := range table.Fields {
			if f.Column == k {
				name = f.FieldName
				break
			}
		}
		record[name] = normalize(v)
	}

	item, err := builder.Decode[T](table.EntityName, record)
	if err != nil {
		return item, &datasource.Error{Kind: datasource.KindMapping, Message: err.Error(), Err: err}
	}
	return item, nil
}

// normalize converts BSON specific values into JSON friendly ones.
func normalize(v any) any {
	switch val := v.(type) {
	case bson.M:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = normalize(item)
		}
		return out
	case bson.D:
		out := make(map[string]any, len(val))
		for _, e := range val {
			out[e.Key] = normalize(e.Value)
		}
		return out
	case bson.A:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = normalize(item)
		}
		return out
	case primitive.ObjectID:
		return val.Hex()
	case primitive.DateTime:
		return val.Time().UTC().Format(time.RFC3339Nano)
	case primitive.Decimal128:
		return val.String()
	case primitive.Binary:
		return val.Data
	case int32:
		return int64(val)
	}
	return v
}
