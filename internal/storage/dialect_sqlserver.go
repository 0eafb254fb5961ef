package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	mssql "github.com/microsoft/go-mssqldb"

	"azureorm/internal/config"
	"azureorm/internal/schema"
)

// SQL Server error numbers for constraint failures.
const (
	mssqlUniqueIndex     = 2601
	mssqlUniqueKey       = 2627
	mssqlNotNull         = 515
	mssqlForeignKeyCheck = 547
)

type sqlServerDialect struct{}

func (sqlServerDialect) DriverName() string { return config.DriverSQLServer }

func (sqlServerDialect) Quote(ident string) string {
	return "[" + strings.ReplaceAll(ident, "]", "]]") + "]"
}

func (sqlServerDialect) Literal(v any) string { return literal(v) }

func (sqlServerDialect) ColumnType(c schema.Column) string {
	switch c.Type {
	case schema.String:
		if c.Length > 0 {
			return fmt.Sprintf("NVARCHAR(%d)", c.Length)
		}
		return "NVARCHAR(MAX)"
	case schema.Float32:
		return "REAL"
	case schema.Int16:
		return "SMALLINT"
	case schema.Bool:
		return "BIT"
	case schema.Timestamp:
		return "DATETIME2"
	default:
		return "NVARCHAR(MAX)"
	}
}

func (d sqlServerDialect) CreateTable(t *schema.Table) string {
	return fmt.Sprintf("IF OBJECT_ID(N'%s', N'U') IS NULL\nCREATE TABLE %s (\n%s\n)",
		strings.ReplaceAll(t.Name, "'", "''"), d.Quote(t.Name), columnDefs(d, t))
}

func (d sqlServerDialect) DropTable(t *schema.Table) string {
	return "DROP TABLE IF EXISTS " + d.Quote(t.Name)
}

func (d sqlServerDialect) Select(t *schema.Table, list, where, orderBy string, limit int) string {
	var sb strings.Builder
	sb.WriteString("SELECT ")
	if limit > 0 {
		fmt.Fprintf(&sb, "TOP (%d) ", limit)
	}
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
	return sb.String()
}

// BulkInsert streams rows through the TDS bulk copy protocol.
func (sqlServerDialect) BulkInsert(ctx context.Context, tx *sqlx.Tx, t *schema.Table, rows [][]any) error {
	stmt, err := tx.PrepareContext(ctx, mssql.CopyIn(t.Name, mssql.BulkOptions{}, t.ColumnNames()...))
	if err != nil {
		return fmt.Errorf("prepare bulk copy: %w", err)
	}
	defer stmt.Close()

	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx, r...); err != nil {
			return fmt.Errorf("queue bulk row: %w", err)
		}
	}
	if _, err := stmt.ExecContext(ctx); err != nil {
		return fmt.Errorf("flush bulk copy: %w", err)
	}
	return nil
}

func (sqlServerDialect) IsConstraintViolation(err error) bool {
	var e mssql.Error
	if !errors.As(err, &e) {
		return false
	}
	switch e.SQLErrorNumber() {
	case mssqlUniqueIndex, mssqlUniqueKey, mssqlNotNull, mssqlForeignKeyCheck:
		return true
	}
	return false
}
