package schema

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var widgetTable = &Table{
	Name: "widgets",
	Columns: []Column{
		{Name: "code", Type: String, Length: 4, PrimaryKey: true},
		{Name: "label", Type: String, Length: 8, Nullable: true},
		{Name: "notes", Type: String, Nullable: true},
		{Name: "year", Type: Int16},
		{Name: "weight", Type: Float32, Nullable: true},
		{Name: "active", Type: Bool, Default: false},
		{Name: "seen_at", Type: Timestamp, Nullable: true},
	},
}

type widget struct {
	Code   string     `db:"code"`
	Label  *string    `db:"label"`
	Notes  *string    `db:"notes"`
	Year   int16      `db:"year"`
	Weight *float32   `db:"weight"`
	Active bool       `db:"active"`
	SeenAt *time.Time `db:"seen_at"`
}

func (widget) Table() *Table { return widgetTable }

func TestTruncate(t *testing.T) {
	bounded := Column{Name: "c", Type: String, Length: 3}
	unbounded := Column{Name: "c", Type: String}
	number := Column{Name: "c", Type: Float32}

	assert.Equal(t, "USA", Truncate(bounded, "USA"))
	assert.Equal(t, "US", Truncate(bounded, "US"))
	assert.Equal(t, "USA", Truncate(bounded, "USAX"))
	assert.Equal(t, "", Truncate(bounded, ""))
	assert.Equal(t, "żół", Truncate(bounded, "żółw"))
	assert.Equal(t, "long text", Truncate(unbounded, "long text"))
	assert.Equal(t, 12, Truncate(number, 12))

	s := "abcdef"
	out, ok := Truncate(bounded, &s).(*string)
	require.True(t, ok)
	assert.Equal(t, "abc", *out)
	assert.Equal(t, "abcdef", s)
}

func TestAssign_TruncatesBoundedText(t *testing.T) {
	w := &widget{}

	require.NoError(t, Assign(w, "code", "ABCDEFG"))
	require.NoError(t, Assign(w, "label", "a label that is too long"))
	require.NoError(t, Assign(w, "notes", strings.Repeat("n", 5000)))

	assert.Equal(t, "ABCD", w.Code)
	require.NotNil(t, w.Label)
	assert.Equal(t, "a label ", *w.Label)
	require.NotNil(t, w.Notes)
	assert.Len(t, *w.Notes, 5000)
}

func TestAssign_ConvertsScalars(t *testing.T) {
	w := &widget{}
	now := time.Now()

	require.NoError(t, Assign(w, "year", 2020))
	require.NoError(t, Assign(w, "weight", 450.3))
	require.NoError(t, Assign(w, "active", true))
	require.NoError(t, Assign(w, "seen_at", now))

	assert.Equal(t, int16(2020), w.Year)
	require.NotNil(t, w.Weight)
	assert.Equal(t, float32(450.3), *w.Weight)
	assert.True(t, w.Active)
	require.NotNil(t, w.SeenAt)
	assert.True(t, now.Equal(*w.SeenAt))
}

func TestAssign_NilClearsField(t *testing.T) {
	label := "x"
	w := &widget{Label: &label}

	require.NoError(t, Assign(w, "label", nil))
	assert.Nil(t, w.Label)

	var missing *string
	w.Label = &label
	require.NoError(t, Assign(w, "label", missing))
	assert.Nil(t, w.Label)
}

func TestAssign_Errors(t *testing.T) {
	w := &widget{}

	err := Assign(w, "colour", "red")
	assert.ErrorIs(t, err, ErrUnknownColumn)

	err = Assign(w, "year", "2020")
	assert.ErrorIs(t, err, ErrTypeMismatch)

	err = Assign(w, "code", 42)
	assert.ErrorIs(t, err, ErrTypeMismatch)

	err = Assign(w, "active", 1)
	assert.ErrorIs(t, err, ErrTypeMismatch)

	err = Assign(widget{}, "code", "A")
	assert.ErrorIs(t, err, ErrTypeMismatch)
}

func TestAssignAll(t *testing.T) {
	w := &widget{}
	err := AssignAll(w, map[string]any{
		"code":  "ZZZZZZ",
		"year":  int64(1999),
		"label": "short",
	})
	require.NoError(t, err)

	assert.Equal(t, "ZZZZ", w.Code)
	assert.Equal(t, int16(1999), w.Year)
	assert.Equal(t, "short", *w.Label)
}

func TestNormalize(t *testing.T) {
	label := "this label is long"
	notes := strings.Repeat("n", 300)
	w := &widget{Code: "TOOLONG", Label: &label, Notes: &notes}

	Normalize(w)

	assert.Equal(t, "TOOL", w.Code)
	assert.Equal(t, "this lab", *w.Label)
	assert.Equal(t, "this label is long", label, "caller's string must not change")
	assert.Len(t, *w.Notes, 300)
}

func TestValues(t *testing.T) {
	weight := float32(1.5)
	w := &widget{Code: "AB", Year: 2001, Weight: &weight, Active: true}

	values := Values(w)
	require.Len(t, values, len(widgetTable.Columns))
	assert.Equal(t, []any{"AB", nil, nil, int16(2001), float32(1.5), true, nil}, values)

	assert.Equal(t, []any{"AB"}, KeyValues(w))
}

func TestReadsLeaveNilFieldsNil(t *testing.T) {
	w := &widget{Code: "AB", Year: 2001}

	Normalize(w)
	_ = Values(w)
	_ = RowOf(w)

	assert.Nil(t, w.Label)
	assert.Nil(t, w.Notes)
	assert.Nil(t, w.Weight)
	assert.Nil(t, w.SeenAt)
}

func TestRowOf(t *testing.T) {
	w := &widget{Code: "AB", Year: 2001}

	row := RowOf(w)
	assert.Equal(t, widgetTable.ColumnNames(), row.Columns)

	v, ok := row.Get("year")
	assert.True(t, ok)
	assert.Equal(t, int16(2001), v)

	_, ok = row.Get("missing")
	assert.False(t, ok)

	m := row.Map()
	assert.Equal(t, "AB", m["code"])
	assert.Len(t, m, len(widgetTable.Columns))
}
