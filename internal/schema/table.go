// Package schema describes tables as explicit column metadata and applies the
// per-column value rules (text truncation, type conversion) on assignment.
package schema

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownColumn = errors.New("unknown column")
	ErrTypeMismatch  = errors.New("type mismatch")
	ErrUnregistered  = errors.New("model not registered")
	ErrInvalidTable  = errors.New("invalid table definition")
)

// Type is the semantic type of a column, independent of any SQL dialect.
type Type int

const (
	String Type = iota + 1
	Float32
	Int16
	Bool
	Timestamp
)

func (t Type) String() string {
	switch t {
	case String:
		return "string"
	case Float32:
		return "float32"
	case Int16:
		return "int16"
	case Bool:
		return "bool"
	case Timestamp:
		return "timestamp"
	default:
		return fmt.Sprintf("type(%d)", int(t))
	}
}

// Column describes a single column of a table.
type Column struct {
	Name string
	Type Type
	// Length is the maximum number of characters of a String column.
	// Zero means unbounded text.
	Length     int
	Nullable   bool
	PrimaryKey bool
	Unique     bool
	// Default is the server-side default, if any.
	Default any
}

// Bounded reports whether values assigned to the column are truncated.
func (c Column) Bounded() bool {
	return c.Type == String && c.Length > 0
}

// Table is an ordered set of columns. The primary key is every column
// flagged PrimaryKey, in declaration order.
type Table struct {
	Name    string
	Columns []Column
}

func (t *Table) Column(name string) (Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

func (t *Table) PrimaryKey() []Column {
	var key []Column
	for _, c := range t.Columns {
		if c.PrimaryKey {
			key = append(key, c)
		}
	}
	return key
}

// Validate checks that the table has a name, unique column names and a
// non-empty primary key made of non-nullable columns.
func (t *Table) Validate() error {
	if t.Name == "" {
		return fmt.Errorf("%w: empty table name", ErrInvalidTable)
	}
	if len(t.Columns) == 0 {
		return fmt.Errorf("%w: %s has no columns", ErrInvalidTable, t.Name)
	}

	seen := make(map[string]struct{}, len(t.Columns))
	for _, c := range t.Columns {
		if c.Name == "" {
			return fmt.Errorf("%w: %s has an unnamed column", ErrInvalidTable, t.Name)
		}
		if _, dup := seen[c.Name]; dup {
			return fmt.Errorf("%w: %s.%s declared twice", ErrInvalidTable, t.Name, c.Name)
		}
		seen[c.Name] = struct{}{}

		if c.PrimaryKey && c.Nullable {
			return fmt.Errorf("%w: key column %s.%s is nullable", ErrInvalidTable, t.Name, c.Name)
		}
		if c.Length < 0 {
			return fmt.Errorf("%w: %s.%s has negative length", ErrInvalidTable, t.Name, c.Name)
		}
	}

	if len(t.PrimaryKey()) == 0 {
		return fmt.Errorf("%w: %s has no primary key", ErrInvalidTable, t.Name)
	}
	return nil
}

// Model is implemented by every persisted record type.
type Model interface {
	Table() *Table
}

// Deriver is implemented by models with columns computed from other
// columns. Both methods work on values as given, before bounded text is
// truncated, and leave columns that are already set alone.
type Deriver interface {
	// Derive fills unset derived fields from the model's own fields.
	Derive()
	// DeriveFields returns the derived columns for a row given as column
	// values, or nil when fields already carry them.
	DeriveFields(fields map[string]any) map[string]any
}
