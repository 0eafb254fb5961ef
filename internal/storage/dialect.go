package storage

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx"

	"azureorm/internal/config"
	"azureorm/internal/schema"
)

// Dialect holds everything that differs between the supported engines.
type Dialect interface {
	// DriverName is the database/sql driver name.
	DriverName() string
	Quote(ident string) string
	// Literal renders a column default.
	Literal(v any) string
	ColumnType(c schema.Column) string
	CreateTable(t *schema.Table) string
	DropTable(t *schema.Table) string
	// Select renders a SELECT of the given list; limit <= 0 means no limit.
	Select(t *schema.Table, list, where, orderBy string, limit int) string
	// BulkInsert writes rows (values in column order) inside tx.
	BulkInsert(ctx context.Context, tx *sqlx.Tx, t *schema.Table, rows [][]any) error
	IsConstraintViolation(err error) bool
}

func DialectFor(driverName string) (Dialect, error) {
	switch driverName {
	case config.DriverSQLServer:
		return sqlServerDialect{}, nil
	case config.DriverPostgres:
		return postgresDialect{}, nil
	case config.DriverSQLite:
		return sqliteDialect{}, nil
	default:
		return nil, fmt.Errorf("no dialect for driver %q", driverName)
	}
}

// columnDefs renders the column list and primary key shared by every
// CREATE TABLE statement.
func columnDefs(d Dialect, t *schema.Table) string {
	var sb strings.Builder
	for i, c := range t.Columns {
		if i > 0 {
			sb.WriteString(",\n")
		}
		sb.WriteString("\t")
		sb.WriteString(d.Quote(c.Name))
		sb.WriteString(" ")
		sb.WriteString(d.ColumnType(c))
		if !c.Nullable {
			sb.WriteString(" NOT NULL")
		}
		if c.Default != nil {
			sb.WriteString(" DEFAULT ")
			sb.WriteString(d.Literal(c.Default))
		}
		if c.Unique && !c.PrimaryKey {
			sb.WriteString(" UNIQUE")
		}
	}

	key := t.PrimaryKey()
	names := make([]string, len(key))
	for i, c := range key {
		names[i] = d.Quote(c.Name)
	}
	sb.WriteString(",\n\tCONSTRAINT ")
	sb.WriteString(d.Quote("PK_" + t.Name))
	sb.WriteString(" PRIMARY KEY (")
	sb.WriteString(strings.Join(names, ", "))
	sb.WriteString(")")
	return sb.String()
}

func literal(v any) string {
	switch v := v.(type) {
	case bool:
		if v {
			return "1"
		}
		return "0"
	case string:
		return "'" + strings.ReplaceAll(v, "'", "''") + "'"
	case int:
		return strconv.Itoa(v)
	case int16:
		return strconv.Itoa(int(v))
	case int64:
		return strconv.FormatInt(v, 10)
	case float32:
		return strconv.FormatFloat(float64(v), 'g', -1, 32)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	default:
		return fmt.Sprintf("'%v'", v)
	}
}

func quotedColumns(d Dialect, names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = d.Quote(n)
	}
	return strings.Join(quoted, ", ")
}

// insertSQL renders a multi-row INSERT with ? placeholders.
func insertSQL(d Dialect, t *schema.Table, rows int) string {
	names := t.ColumnNames()
	placeholder := "(" + strings.TrimSuffix(strings.Repeat("?, ", len(names)), ", ") + ")"

	var sb strings.Builder
	sb.WriteString("INSERT INTO ")
	sb.WriteString(d.Quote(t.Name))
	sb.WriteString(" (")
	sb.WriteString(quotedColumns(d, names))
	sb.WriteString(") VALUES ")
	for i := 0; i < rows; i++ {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(placeholder)
	}
	return sb.String()
}

// multiRowInsert splits rows into INSERT statements that stay under the
// engine's bound parameter and row limits.
func multiRowInsert(ctx context.Context, tx *sqlx.Tx, d Dialect, t *schema.Table, rows [][]any, maxParams, maxRows int) error {
	perStmt := maxParams / len(t.Columns)
	if perStmt > maxRows {
		perStmt = maxRows
	}
	if perStmt < 1 {
		perStmt = 1
	}

	for start := 0; start < len(rows); start += perStmt {
		end := min(start+perStmt, len(rows))
		args := make([]any, 0, (end-start)*len(t.Columns))
		for _, r := range rows[start:end] {
			args = append(args, r...)
		}
		if _, err := tx.ExecContext(ctx, tx.Rebind(insertSQL(d, t, end-start)), args...); err != nil {
			return err
		}
	}
	return nil
}
