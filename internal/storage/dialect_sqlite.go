package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"

	"azureorm/internal/config"
	"azureorm/internal/schema"
)

// SQLite compiles with SQLITE_MAX_VARIABLE_NUMBER=999 on older builds.
const (
	sqliteMaxParams = 999
	sqliteMaxRows   = 500
)

type sqliteDialect struct{}

func (sqliteDialect) DriverName() string { return config.DriverSQLite }

func (sqliteDialect) Quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

func (sqliteDialect) Literal(v any) string { return literal(v) }

func (sqliteDialect) ColumnType(c schema.Column) string {
	switch c.Type {
	case schema.String:
		if c.Length > 0 {
			return fmt.Sprintf("VARCHAR(%d)", c.Length)
		}
		return "TEXT"
	case schema.Float32:
		return "REAL"
	case schema.Int16:
		return "SMALLINT"
	case schema.Bool:
		return "BOOLEAN"
	case schema.Timestamp:
		return "TIMESTAMP"
	default:
		return "TEXT"
	}
}

func (d sqliteDialect) CreateTable(t *schema.Table) string {
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n%s\n)", d.Quote(t.Name), columnDefs(d, t))
}

func (d sqliteDialect) DropTable(t *schema.Table) string {
	return "DROP TABLE IF EXISTS " + d.Quote(t.Name)
}

func (d sqliteDialect) Select(t *schema.Table, list, where, orderBy string, limit int) string {
	return limitSelect(d, t, list, where, orderBy, limit)
}

func (d sqliteDialect) BulkInsert(ctx context.Context, tx *sqlx.Tx, t *schema.Table, rows [][]any) error {
	return multiRowInsert(ctx, tx, d, t, rows, sqliteMaxParams, sqliteMaxRows)
}

func (sqliteDialect) IsConstraintViolation(err error) bool {
	var e sqlite3.Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Code == sqlite3.ErrConstraint
}
