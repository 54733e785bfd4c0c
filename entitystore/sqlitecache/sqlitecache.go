// Package sqlitecache provides an entity cache backed by an embedded SQLite
// database, so cached records survive process restarts.
package sqlitecache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3" // dialect import
	"github.com/jmoiron/sqlx"
	jsoniter "github.com/json-iterator/go"
	_ "modernc.org/sqlite" // driver import

	"github.com/graphadm/entitystore-go/entitystore"
)

var ErrUnknownRecordType = errors.New("no schema registered for cached record type")

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	driverName    = "sqlite"
	dialectSQLite = "sqlite3"

	tableEntityCache = "entity_cache"
	colSubject       = "subject"
	colTypeName      = "type_name"
	colPayload       = "payload"
	colUpdatedAt     = "updated_at"
)

const createTableDDL = `
CREATE TABLE IF NOT EXISTS entity_cache (
	subject    TEXT PRIMARY KEY,
	type_name  TEXT NOT NULL,
	payload    TEXT NOT NULL,
	updated_at TEXT NOT NULL
)`

// SchemaResolver maps a cached record's type name back to its schema, which
// is needed to rebuild typed attribute values from their serialized form.
type SchemaResolver func(typeName string) (*entitystore.Schema, bool)

// Cache implements entitystore.Cache on a SQLite database. Entities are
// stored as JSON exports and rebuilt through their schema on the way out,
// so callers never share mutable containers with the cache.
type Cache struct {
	db      *sqlx.DB
	resolve SchemaResolver
}

// Open opens or creates the cache database. Use ":memory:" as dsn for an
// ephemeral cache.
func Open(dsn string, resolve SchemaResolver) (*Cache, error) {
	if resolve == nil {
		return nil, errors.New("nil schema resolver supplied")
	}
	db, err := sqlx.Connect(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening cache database: %w", err)
	}
	if _, err = db.Exec(createTableDDL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating cache table: %w", err)
	}

	return &Cache{db: db, resolve: resolve}, nil
}

func (c *Cache) Close() error {
	return c.db.Close()
}

func (c *Cache) Get(ctx context.Context, subject entitystore.IRI) (*entitystore.Entity, bool, error) {
	query, args, err := goqu.Dialect(dialectSQLite).
		From(tableEntityCache).
		Select(colTypeName, colPayload).
		Where(goqu.C(colSubject).Eq(string(subject))).
		Prepared(true).
		ToSQL()
	if err != nil {
		return nil, false, fmt.Errorf("building cache select: %w", err)
	}

	var row struct {
		TypeName string `db:"type_name"`
		Payload  string `db:"payload"`
	}
	if err = c.db.GetContext(ctx, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("reading cache entry: %w", err)
	}

	schema, ok := c.resolve(row.TypeName)
	if !ok {
		return nil, false, errors.Join(ErrUnknownRecordType, errors.New(row.TypeName))
	}

	var export entitystore.EntityExport
	if err = json.Unmarshal([]byte(row.Payload), &export); err != nil {
		return nil, false, fmt.Errorf("decoding cache entry: %w", err)
	}
	e, err := entitystore.Import(schema, export)
	if err != nil {
		return nil, false, err
	}

	return e, true, nil
}

func (c *Cache) Set(ctx context.Context, e *entitystore.Entity) error {
	payload, err := json.Marshal(e.Export())
	if err != nil {
		return fmt.Errorf("encoding cache entry: %w", err)
	}

	record := goqu.Record{
		colSubject:   string(e.Subject()),
		colTypeName:  e.Schema().TypeName(),
		colPayload:   string(payload),
		colUpdatedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}
	query, args, err := goqu.Dialect(dialectSQLite).
		Insert(tableEntityCache).
		Rows(record).
		OnConflict(goqu.DoUpdate(colSubject, record)).
		Prepared(true).
		ToSQL()
	if err != nil {
		return fmt.Errorf("building cache upsert: %w", err)
	}
	if _, err = c.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("writing cache entry: %w", err)
	}

	return nil
}

func (c *Cache) Delete(ctx context.Context, subject entitystore.IRI) error {
	query, args, err := goqu.Dialect(dialectSQLite).
		Delete(tableEntityCache).
		Where(goqu.C(colSubject).Eq(string(subject))).
		Prepared(true).
		ToSQL()
	if err != nil {
		return fmt.Errorf("building cache delete: %w", err)
	}
	if _, err = c.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("deleting cache entry: %w", err)
	}

	return nil
}
