package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"azureorm/internal/schema"
)

// Query builds a SELECT against one table on a connection that belongs to
// the enclosing Wrapper.Query call. It is not safe for concurrent use and
// must not outlive that call.
type Query struct {
	conn    *sqlx.Conn
	dialect Dialect
	table   *schema.Table
	where   []string
	args    []any
	orderBy []string
	limit   int
	err     error
}

// Query hands fn a query builder for t bound to a dedicated connection. The
// connection goes back to the pool when fn returns or panics.
func (w *Wrapper) Query(ctx context.Context, t *schema.Table, fn func(q *Query) error) error {
	conn, err := w.db.Connx(ctx)
	if err != nil {
		return fmt.Errorf("%w: acquire connection: %w", ErrConnection, err)
	}
	defer conn.Close()

	return fn(&Query{conn: conn, dialect: w.dialect, table: t})
}

// Count returns the number of rows in t.
func Count(ctx context.Context, w *Wrapper, t *schema.Table) (int64, error) {
	var n int64
	err := w.Query(ctx, t, func(q *Query) error {
		var err error
		n, err = q.Count(ctx)
		return err
	})
	return n, err
}

// Where adds column = value, ANDed with earlier conditions.
func (q *Query) Where(column string, value any) *Query {
	c, ok := q.table.Column(column)
	if !ok {
		q.setErr(fmt.Errorf("%w: %s.%s", schema.ErrUnknownColumn, q.table.Name, column))
		return q
	}
	q.where = append(q.where, q.dialect.Quote(c.Name)+" = ?")
	q.args = append(q.args, schema.Truncate(c, value))
	return q
}

func (q *Query) OrderBy(column string, desc bool) *Query {
	if _, ok := q.table.Column(column); !ok {
		q.setErr(fmt.Errorf("%w: %s.%s", schema.ErrUnknownColumn, q.table.Name, column))
		return q
	}
	term := q.dialect.Quote(column)
	if desc {
		term += " DESC"
	}
	q.orderBy = append(q.orderBy, term)
	return q
}

func (q *Query) Limit(n int) *Query {
	q.limit = n
	return q
}

// Count ignores ordering and limit.
func (q *Query) Count(ctx context.Context) (int64, error) {
	if q.err != nil {
		return 0, q.err
	}
	var n int64
	query := q.dialect.Select(q.table, "COUNT(*)", q.whereClause(), "", 0)
	if err := q.conn.GetContext(ctx, &n, q.conn.Rebind(query), q.args...); err != nil {
		return 0, fmt.Errorf("count %s: %w", q.table.Name, err)
	}
	return n, nil
}

// Select loads every matching row into dest, a pointer to a slice of
// models.
func (q *Query) Select(ctx context.Context, dest any) error {
	if q.err != nil {
		return q.err
	}
	if err := q.conn.SelectContext(ctx, dest, q.conn.Rebind(q.sql(q.limit)), q.args...); err != nil {
		return fmt.Errorf("select from %s: %w", q.table.Name, err)
	}
	return nil
}

// First loads the first matching row into dest. It returns ErrNotFound
// when nothing matches.
func (q *Query) First(ctx context.Context, dest any) error {
	if q.err != nil {
		return q.err
	}
	err := q.conn.GetContext(ctx, dest, q.conn.Rebind(q.sql(1)), q.args...)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrNotFound, q.table.Name)
	}
	if err != nil {
		return fmt.Errorf("select from %s: %w", q.table.Name, err)
	}
	return nil
}

func (q *Query) sql(limit int) string {
	list := quotedColumns(q.dialect, q.table.ColumnNames())
	return q.dialect.Select(q.table, list, q.whereClause(), strings.Join(q.orderBy, ", "), limit)
}

func (q *Query) whereClause() string {
	return strings.Join(q.where, " AND ")
}

func (q *Query) setErr(err error) {
	if q.err == nil {
		q.err = err
	}
}
