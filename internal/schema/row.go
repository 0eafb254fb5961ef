package schema

// Row is a column name to value projection that keeps the table's declared
// column order.
type Row struct {
	Columns []string
	Values  []any
}

// RowOf projects m into a Row.
func RowOf(m Model) Row {
	return Row{
		Columns: m.Table().ColumnNames(),
		Values:  Values(m),
	}
}

func (r Row) Get(column string) (any, bool) {
	for i, c := range r.Columns {
		if c == column {
			return r.Values[i], true
		}
	}
	return nil, false
}

// Map returns the row as a plain map, losing column order.
func (r Row) Map() map[string]any {
	out := make(map[string]any, len(r.Columns))
	for i, c := range r.Columns {
		out[c] = r.Values[i]
	}
	return out
}
