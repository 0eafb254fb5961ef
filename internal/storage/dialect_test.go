package storage

import (
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	mssql "github.com/microsoft/go-mssqldb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"azureorm/internal/schema"
)

var flagsTable = &schema.Table{
	Name: "flags",
	Columns: []schema.Column{
		{Name: "id", Type: schema.String, Length: 64, PrimaryKey: true, Unique: true},
		{Name: "body", Type: schema.String, Nullable: true},
		{Name: "score", Type: schema.Float32, Nullable: true},
		{Name: "year", Type: schema.Int16},
		{Name: "valid", Type: schema.Bool, Default: false},
		{Name: "seen", Type: schema.Timestamp},
	},
}

func TestDialectFor(t *testing.T) {
	for _, name := range []string{"sqlserver", "postgres", "sqlite3"} {
		d, err := DialectFor(name)
		require.NoError(t, err)
		assert.Equal(t, name, d.DriverName())
	}

	_, err := DialectFor("oracle")
	assert.Error(t, err)
}

func TestCreateTable_SQLServer(t *testing.T) {
	want := "IF OBJECT_ID(N'flags', N'U') IS NULL\n" +
		"CREATE TABLE [flags] (\n" +
		"\t[id] NVARCHAR(64) NOT NULL,\n" +
		"\t[body] NVARCHAR(MAX),\n" +
		"\t[score] REAL,\n" +
		"\t[year] SMALLINT NOT NULL,\n" +
		"\t[valid] BIT NOT NULL DEFAULT 0,\n" +
		"\t[seen] DATETIME2 NOT NULL,\n" +
		"\tCONSTRAINT [PK_flags] PRIMARY KEY ([id])\n" +
		")"
	assert.Equal(t, want, sqlServerDialect{}.CreateTable(flagsTable))
}

func TestCreateTable_Postgres(t *testing.T) {
	want := "CREATE TABLE IF NOT EXISTS \"flags\" (\n" +
		"\t\"id\" VARCHAR(64) NOT NULL,\n" +
		"\t\"body\" TEXT,\n" +
		"\t\"score\" REAL,\n" +
		"\t\"year\" SMALLINT NOT NULL,\n" +
		"\t\"valid\" BOOLEAN NOT NULL DEFAULT FALSE,\n" +
		"\t\"seen\" TIMESTAMP NOT NULL,\n" +
		"\tCONSTRAINT \"PK_flags\" PRIMARY KEY (\"id\")\n" +
		")"
	assert.Equal(t, want, postgresDialect{}.CreateTable(flagsTable))
}

func TestDropTable(t *testing.T) {
	assert.Equal(t, "DROP TABLE IF EXISTS [flags]", sqlServerDialect{}.DropTable(flagsTable))
	assert.Equal(t, `DROP TABLE IF EXISTS "flags"`, sqliteDialect{}.DropTable(flagsTable))
}

func TestSelect(t *testing.T) {
	assert.Equal(t,
		"SELECT TOP (1) [id] FROM [flags] WHERE [id] = ? ORDER BY [year] DESC",
		sqlServerDialect{}.Select(flagsTable, "[id]", "[id] = ?", "[year] DESC", 1))
	assert.Equal(t,
		`SELECT "id" FROM "flags" WHERE "id" = ? ORDER BY "year" DESC LIMIT 1`,
		postgresDialect{}.Select(flagsTable, `"id"`, `"id" = ?`, `"year" DESC`, 1))
	assert.Equal(t,
		`SELECT COUNT(*) FROM "flags"`,
		sqliteDialect{}.Select(flagsTable, "COUNT(*)", "", "", 0))
}

func TestQuote_EscapesDelimiters(t *testing.T) {
	assert.Equal(t, "[a]]b]", sqlServerDialect{}.Quote("a]b"))
	assert.Equal(t, `"a""b"`, sqliteDialect{}.Quote(`a"b`))
}

func TestLiteral(t *testing.T) {
	assert.Equal(t, "'it''s'", literal("it's"))
	assert.Equal(t, "1", literal(true))
	assert.Equal(t, "2.5", literal(float32(2.5)))
	assert.Equal(t, "TRUE", postgresDialect{}.Literal(true))
}

func TestInsertSQL(t *testing.T) {
	table := &schema.Table{Name: "t", Columns: []schema.Column{
		{Name: "a", Type: schema.String, PrimaryKey: true},
		{Name: "b", Type: schema.Int16},
	}}
	assert.Equal(t, `INSERT INTO "t" ("a", "b") VALUES (?, ?), (?, ?)`, insertSQL(sqliteDialect{}, table, 2))
}

func TestIsConstraintViolation(t *testing.T) {
	tests := []struct {
		name    string
		dialect Dialect
		err     error
		want    bool
	}{
		{"mssql duplicate key", sqlServerDialect{}, mssql.Error{Number: 2627}, true},
		{"mssql not null", sqlServerDialect{}, fmt.Errorf("exec: %w", mssql.Error{Number: 515}), true},
		{"mssql deadlock", sqlServerDialect{}, mssql.Error{Number: 1205}, false},
		{"postgres unique", postgresDialect{}, &pq.Error{Code: "23505"}, true},
		{"postgres syntax", postgresDialect{}, &pq.Error{Code: "42601"}, false},
		{"sqlite constraint", sqliteDialect{}, sqlite3.Error{Code: sqlite3.ErrConstraint}, true},
		{"sqlite busy", sqliteDialect{}, sqlite3.Error{Code: sqlite3.ErrBusy}, false},
		{"plain", sqliteDialect{}, errors.New("x"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.dialect.IsConstraintViolation(tt.err))
		})
	}
}
