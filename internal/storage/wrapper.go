package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"strings"

	"github.com/jmoiron/sqlx"

	"azureorm/internal/config"
	"azureorm/internal/schema"
)

// modelPtr is satisfied by *T when T is a table model.
type modelPtr[T any] interface {
	*T
	schema.Model
}

// Wrapper runs table operations for every model in its registry over one
// connection pool. Each call opens its own transaction or connection and
// releases it before returning.
type Wrapper struct {
	db       *sqlx.DB
	dialect  Dialect
	registry *schema.Registry
	bulk     config.BulkConfig
	logger   *slog.Logger
}

func New(db *sqlx.DB, registry *schema.Registry, bulk config.BulkConfig, logger *slog.Logger) (*Wrapper, error) {
	dialect, err := DialectFor(db.DriverName())
	if err != nil {
		return nil, err
	}
	if bulk.ChunkSize <= 0 {
		bulk.ChunkSize = DefaultChunkSize
	}
	return &Wrapper{
		db:       db,
		dialect:  dialect,
		registry: registry,
		bulk:     bulk,
		logger:   logger.With("component", "storage", "driver", dialect.DriverName()),
	}, nil
}

func (w *Wrapper) DB() *sqlx.DB { return w.db }

func (w *Wrapper) Dialect() Dialect { return w.dialect }

func (w *Wrapper) Registry() *schema.Registry { return w.registry }

// CreateTable creates t unless it already exists.
func (w *Wrapper) CreateTable(ctx context.Context, t *schema.Table) error {
	if err := t.Validate(); err != nil {
		return err
	}
	w.logger.Debug("creating table", "table", t.Name)
	if _, err := w.db.ExecContext(ctx, w.dialect.CreateTable(t)); err != nil {
		return fmt.Errorf("create table %s: %w", t.Name, err)
	}
	return nil
}

// DropTable drops t if it exists.
func (w *Wrapper) DropTable(ctx context.Context, t *schema.Table) error {
	w.logger.Debug("dropping table", "table", t.Name)
	if _, err := w.db.ExecContext(ctx, w.dialect.DropTable(t)); err != nil {
		return fmt.Errorf("drop table %s: %w", t.Name, err)
	}
	return nil
}

// CreateTables creates every registered table in registration order.
func (w *Wrapper) CreateTables(ctx context.Context) error {
	for _, t := range w.registry.Tables() {
		if err := w.CreateTable(ctx, t); err != nil {
			return err
		}
	}
	return nil
}

// DropTables drops every registered table in reverse registration order.
func (w *Wrapper) DropTables(ctx context.Context) error {
	tables := w.registry.Tables()
	for i := len(tables) - 1; i >= 0; i-- {
		if err := w.DropTable(ctx, tables[i]); err != nil {
			return err
		}
	}
	return nil
}

// Insert builds a T from fields, writes it and returns the stored row.
// Only the given columns are written; omitted nullable columns are NULL and
// omitted columns with a default take it.
func Insert[T any, PT modelPtr[T]](ctx context.Context, w *Wrapper, fields map[string]any) (*T, error) {
	t, err := tableOf[T, PT](w)
	if err != nil {
		return nil, err
	}
	w.logger.Debug("inserting record", "table", t.Name)

	obj := new(T)
	err = w.inTx(ctx, func(tx *sqlx.Tx) error {
		return w.insertFields(ctx, tx, t, PT(obj), fields)
	})
	if err != nil {
		return nil, fmt.Errorf("insert into %s: %w", t.Name, err)
	}
	return obj, nil
}

// Save writes every column of obj as a new row and returns the stored row.
func Save[T any, PT modelPtr[T]](ctx context.Context, w *Wrapper, obj *T) (*T, error) {
	if obj == nil {
		return nil, fmt.Errorf("save: %w: nil record", schema.ErrTypeMismatch)
	}
	t, err := tableOf[T, PT](w)
	if err != nil {
		return nil, err
	}
	w.logger.Debug("saving record", "table", t.Name)

	p := PT(obj)
	prepare(p)

	stored := new(T)
	err = w.inTx(ctx, func(tx *sqlx.Tx) error {
		if err := w.insertRow(ctx, tx, t, p, t.ColumnNames()); err != nil {
			return err
		}
		return w.get(ctx, tx, t, stored, schema.KeyValues(p))
	})
	if err != nil {
		return nil, fmt.Errorf("insert into %s: %w", t.Name, err)
	}
	return stored, nil
}

// Upsert updates the first row whose keyField equals keyValue with fields,
// or inserts a new row built from fields when there is none. The boolean
// reports whether a row was created.
//
// The lookup and the write are separate statements, so two concurrent
// upserts of the same key can both insert; the loser gets ErrConstraint
// when the key is unique.
func Upsert[T any, PT modelPtr[T]](ctx context.Context, w *Wrapper, keyField string, keyValue any, fields map[string]any) (*T, bool, error) {
	t, err := tableOf[T, PT](w)
	if err != nil {
		return nil, false, err
	}
	c, ok := t.Column(keyField)
	if !ok {
		return nil, false, fmt.Errorf("%w: %s.%s", ErrBadKey, t.Name, keyField)
	}
	keyValue = schema.Truncate(c, keyValue)
	w.logger.Debug("upserting record", "table", t.Name, "key", keyField, "value", keyValue)

	obj := new(T)
	created := false
	err = w.inTx(ctx, func(tx *sqlx.Tx) error {
		found, err := w.first(ctx, tx, t, obj, keyField, keyValue)
		if err != nil {
			return err
		}
		if !found {
			created = true
			return w.insertFields(ctx, tx, t, PT(obj), fields)
		}
		return w.updateFields(ctx, tx, t, PT(obj), fields)
	})
	if err != nil {
		return nil, false, fmt.Errorf("upsert into %s: %w", t.Name, err)
	}
	return obj, created, nil
}

// Delete removes the first row whose keyField equals keyValue. A missing
// row is not an error; the boolean reports whether a row was deleted.
func Delete[T any, PT modelPtr[T]](ctx context.Context, w *Wrapper, keyField string, keyValue any) (bool, error) {
	t, err := tableOf[T, PT](w)
	if err != nil {
		return false, err
	}
	c, ok := t.Column(keyField)
	if !ok {
		return false, fmt.Errorf("%w: %s.%s", ErrBadKey, t.Name, keyField)
	}
	keyValue = schema.Truncate(c, keyValue)
	w.logger.Debug("deleting record", "table", t.Name, "key", keyField, "value", keyValue)

	deleted := false
	err = w.inTx(ctx, func(tx *sqlx.Tx) error {
		obj := new(T)
		found, err := w.first(ctx, tx, t, obj, keyField, keyValue)
		if err != nil || !found {
			return err
		}

		query := fmt.Sprintf("DELETE FROM %s WHERE %s", w.dialect.Quote(t.Name), w.keyWhere(t))
		res, err := tx.ExecContext(ctx, tx.Rebind(query), schema.KeyValues(PT(obj))...)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		deleted = n > 0
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("delete from %s: %w", t.Name, err)
	}
	return deleted, nil
}

// Get reads the row with the given primary key values, in key column order.
func Get[T any, PT modelPtr[T]](ctx context.Context, w *Wrapper, key ...any) (*T, error) {
	t, err := tableOf[T, PT](w)
	if err != nil {
		return nil, err
	}
	pk := t.PrimaryKey()
	if len(key) != len(pk) {
		return nil, fmt.Errorf("%w: %s needs %d key values, got %d", ErrBadKey, t.Name, len(pk), len(key))
	}
	args := make([]any, len(key))
	for i, c := range pk {
		args[i] = schema.Truncate(c, key[i])
	}

	obj := new(T)
	if err := w.get(ctx, w.executor(ctx), t, obj, args); err != nil {
		return nil, fmt.Errorf("get from %s: %w", t.Name, err)
	}
	return obj, nil
}

// AsMap projects a record onto its columns in declaration order.
func AsMap(m schema.Model) schema.Row {
	return schema.RowOf(m)
}

func tableOf[T any, PT modelPtr[T]](w *Wrapper) (*schema.Table, error) {
	var zero T
	return w.registry.Lookup(PT(&zero))
}

// prepare fills derived columns and then applies column limits before a
// write.
func prepare(m schema.Model) {
	if d, ok := m.(schema.Deriver); ok {
		d.Derive()
	}
	schema.Normalize(m)
}

// withDerived returns fields plus the columns m derives from them. Derived
// values come from the fields as given, before truncation.
func withDerived(m schema.Model, fields map[string]any) map[string]any {
	d, ok := m.(schema.Deriver)
	if !ok {
		return fields
	}
	extra := d.DeriveFields(fields)
	if len(extra) == 0 {
		return fields
	}
	out := maps.Clone(fields)
	for k, v := range extra {
		if _, given := out[k]; !given {
			out[k] = v
		}
	}
	return out
}

// checkRequired rejects fields that leave out a NOT NULL column without a
// default.
func checkRequired(t *schema.Table, fields map[string]any) error {
	for _, c := range t.Columns {
		if _, given := fields[c.Name]; given {
			continue
		}
		if !c.Nullable && c.Default == nil {
			return fmt.Errorf("%w: %s.%s requires a value", ErrConstraint, t.Name, c.Name)
		}
	}
	return nil
}

func (w *Wrapper) executor(ctx context.Context) sqlx.ExtContext {
	if tx := txFromContext(ctx); tx != nil {
		return tx
	}
	return w.db
}

// insertFields assigns fields to m, inserts the given columns plus any
// derived key, and reloads m from the stored row.
func (w *Wrapper) insertFields(ctx context.Context, tx *sqlx.Tx, t *schema.Table, m schema.Model, fields map[string]any) error {
	fields = withDerived(m, fields)
	if err := schema.AssignAll(m, fields); err != nil {
		return err
	}
	if err := checkRequired(t, fields); err != nil {
		return err
	}
	schema.Normalize(m)

	var columns []string
	for _, c := range t.Columns {
		if _, given := fields[c.Name]; given {
			columns = append(columns, c.Name)
		}
	}

	if err := w.insertRow(ctx, tx, t, m, columns); err != nil {
		return err
	}
	return w.get(ctx, tx, t, m, schema.KeyValues(m))
}

// updateFields assigns fields to the loaded row m, writes only those
// columns and reloads m.
func (w *Wrapper) updateFields(ctx context.Context, tx *sqlx.Tx, t *schema.Table, m schema.Model, fields map[string]any) error {
	oldKey := schema.KeyValues(m)
	if err := schema.AssignAll(m, fields); err != nil {
		return err
	}
	schema.Normalize(m)

	var columns, sets []string
	for _, c := range t.Columns {
		if _, ok := fields[c.Name]; ok {
			columns = append(columns, c.Name)
			sets = append(sets, w.dialect.Quote(c.Name)+" = ?")
		}
	}
	if len(columns) == 0 {
		return nil
	}

	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s",
		w.dialect.Quote(t.Name), strings.Join(sets, ", "), w.keyWhere(t))
	args := append(schema.ValuesOf(m, columns), oldKey...)
	if _, err := tx.ExecContext(ctx, tx.Rebind(query), args...); err != nil {
		return err
	}
	return w.get(ctx, tx, t, m, schema.KeyValues(m))
}

func (w *Wrapper) insertRow(ctx context.Context, tx *sqlx.Tx, t *schema.Table, m schema.Model, columns []string) error {
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ")
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		w.dialect.Quote(t.Name), quotedColumns(w.dialect, columns), placeholders)
	_, err := tx.ExecContext(ctx, tx.Rebind(query), schema.ValuesOf(m, columns)...)
	return err
}

// get loads the row with the given key values into dest.
func (w *Wrapper) get(ctx context.Context, q sqlx.QueryerContext, t *schema.Table, dest any, key []any) error {
	query := w.dialect.Select(t, quotedColumns(w.dialect, t.ColumnNames()), w.keyWhere(t), "", 0)
	err := sqlx.GetContext(ctx, q, dest, w.db.Rebind(query), key...)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s %v", ErrNotFound, t.Name, key)
	}
	return err
}

// first loads the first row whose column equals value into dest.
func (w *Wrapper) first(ctx context.Context, q sqlx.QueryerContext, t *schema.Table, dest any, column string, value any) (bool, error) {
	query := w.dialect.Select(t, quotedColumns(w.dialect, t.ColumnNames()),
		w.dialect.Quote(column)+" = ?", "", 1)
	err := sqlx.GetContext(ctx, q, dest, w.db.Rebind(query), value)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (w *Wrapper) keyWhere(t *schema.Table) string {
	key := t.PrimaryKey()
	parts := make([]string, len(key))
	for i, c := range key {
		parts[i] = w.dialect.Quote(c.Name) + " = ?"
	}
	return strings.Join(parts, " AND ")
}
