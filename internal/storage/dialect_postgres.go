package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgerrcode"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"azureorm/internal/config"
	"azureorm/internal/schema"
)

type postgresDialect struct{}

func (postgresDialect) DriverName() string { return config.DriverPostgres }

func (postgresDialect) Quote(ident string) string {
	return pq.QuoteIdentifier(ident)
}

func (postgresDialect) Literal(v any) string {
	if b, ok := v.(bool); ok {
		if b {
			return "TRUE"
		}
		return "FALSE"
	}
	return literal(v)
}

func (postgresDialect) ColumnType(c schema.Column) string {
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

func (d postgresDialect) CreateTable(t *schema.Table) string {
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n%s\n)", d.Quote(t.Name), columnDefs(d, t))
}

func (d postgresDialect) DropTable(t *schema.Table) string {
	return "DROP TABLE IF EXISTS " + d.Quote(t.Name)
}

func (d postgresDialect) Select(t *schema.Table, list, where, orderBy string, limit int) string {
	return limitSelect(d, t, list, where, orderBy, limit)
}

// BulkInsert loads rows with COPY FROM STDIN.
func (postgresDialect) BulkInsert(ctx context.Context, tx *sqlx.Tx, t *schema.Table, rows [][]any) error {
	stmt, err := tx.PrepareContext(ctx, pq.CopyIn(t.Name, t.ColumnNames()...))
	if err != nil {
		return fmt.Errorf("prepare copy: %w", err)
	}
	defer stmt.Close()

	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx, r...); err != nil {
			return fmt.Errorf("queue copy row: %w", err)
		}
	}
	if _, err := stmt.ExecContext(ctx); err != nil {
		return fmt.Errorf("flush copy: %w", err)
	}
	return nil
}

func (postgresDialect) IsConstraintViolation(err error) bool {
	var e *pq.Error
	if !errors.As(err, &e) {
		return false
	}
	return pgerrcode.IsIntegrityConstraintViolation(string(e.Code))
}

// limitSelect renders SELECT ... LIMIT n, shared by engines that support it.
func limitSelect(d Dialect, t *schema.Table, list, where, orderBy string, limit int) string {
	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(list)
	sb.WriteString(" FROM ")
	sb.WriteString(d.Quote(t.Name))
	if where != "" {
		sb.WriteString(" WHERE ")
		sb.WriteString(where)
	}
	if orderBy != "" {
		sb.WriteString(" ORDER BY ")
		sb.WriteString(orderBy)
	}
	if limit > 0 {
		fmt.Fprintf(&sb, " LIMIT %d", limit)
	}
	return sb.String()
}
