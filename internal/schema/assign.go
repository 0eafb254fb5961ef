package schema

import (
	"fmt"
	"reflect"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jmoiron/sqlx/reflectx"
)

// mapper resolves columns to struct fields through their db tags, the same
// way sqlx does when scanning rows.
var mapper = reflectx.NewMapperFunc("db", strings.ToLower)

var timeType = reflect.TypeOf(time.Time{})

// Truncate cuts text assigned to a bounded column down to the column's
// maximum length in characters. Any other value is returned unchanged.
func Truncate(c Column, value any) any {
	if !c.Bounded() {
		return value
	}
	switch v := value.(type) {
	case string:
		return truncate(v, c.Length)
	case *string:
		if v == nil {
			return v
		}
		s := truncate(*v, c.Length)
		return &s
	}
	return value
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

// Assign stores value into the field mapped to column, truncating bounded
// text first. It is the single write path used when a model is built from
// loose field values.
func Assign(m Model, column string, value any) error {
	t := m.Table()
	c, ok := t.Column(column)
	if !ok {
		return fmt.Errorf("%w: %s.%s", ErrUnknownColumn, t.Name, column)
	}

	v, err := structValue(m)
	if err != nil {
		return err
	}
	f, ok := fieldByColumn(v, column)
	if !ok {
		return fmt.Errorf("%w: %s.%s has no field", ErrUnknownColumn, t.Name, column)
	}

	if err := set(f, Truncate(c, value)); err != nil {
		return fmt.Errorf("assign %s.%s: %w", t.Name, column, err)
	}
	return nil
}

// AssignAll applies Assign for every entry of fields.
func AssignAll(m Model, fields map[string]any) error {
	for name, value := range fields {
		if err := Assign(m, name, value); err != nil {
			return err
		}
	}
	return nil
}

// Normalize truncates every bounded text field of m in place. Constructors
// and write paths call it so that direct field assignment obeys the same
// limits as Assign.
func Normalize(m Model) {
	v, err := structValue(m)
	if err != nil {
		return
	}
	for _, c := range m.Table().Columns {
		if !c.Bounded() {
			continue
		}
		f, ok := fieldByColumn(v, c.Name)
		if !ok {
			continue
		}
		switch {
		case f.Kind() == reflect.String:
			f.SetString(truncate(f.String(), c.Length))
		case f.Kind() == reflect.Pointer && !f.IsNil() && f.Elem().Kind() == reflect.String:
			if s := f.Elem().String(); utf8.RuneCountInString(s) > c.Length {
				cut := truncate(s, c.Length)
				f.Set(reflect.ValueOf(&cut))
			}
		}
	}
}

// Values returns the column values of m in declaration order. Nullable
// pointer fields are dereferenced; nil pointers become nil.
func Values(m Model) []any {
	return ValuesOf(m, m.Table().ColumnNames())
}

// ValuesOf returns the values of the named columns of m.
func ValuesOf(m Model, columns []string) []any {
	v, err := structValue(m)
	if err != nil {
		return nil
	}
	out := make([]any, len(columns))
	for i, name := range columns {
		f, ok := fieldByColumn(v, name)
		if !ok {
			continue
		}
		if f.Kind() == reflect.Pointer {
			if f.IsNil() {
				continue
			}
			f = f.Elem()
		}
		out[i] = f.Interface()
	}
	return out
}

// KeyValues returns the primary key values of m in declaration order.
func KeyValues(m Model) []any {
	key := m.Table().PrimaryKey()
	names := make([]string, len(key))
	for i, c := range key {
		names[i] = c.Name
	}
	return ValuesOf(m, names)
}

func structValue(m Model) (reflect.Value, error) {
	v := reflect.ValueOf(m)
	if v.Kind() != reflect.Pointer || v.IsNil() {
		return reflect.Value{}, fmt.Errorf("%w: %T is not a non-nil pointer", ErrTypeMismatch, m)
	}
	v = v.Elem()
	if v.Kind() != reflect.Struct {
		return reflect.Value{}, fmt.Errorf("%w: %T is not a struct pointer", ErrTypeMismatch, m)
	}
	return v, nil
}

// fieldByColumn returns the field mapped to column without allocating nil
// pointer fields, so unset nullable columns stay nil.
func fieldByColumn(v reflect.Value, column string) (reflect.Value, bool) {
	fi, ok := mapper.TypeMap(v.Type()).Names[column]
	if !ok {
		return reflect.Value{}, false
	}
	return v.FieldByIndex(fi.Index), true
}

func set(f reflect.Value, value any) error {
	if value == nil {
		f.Set(reflect.Zero(f.Type()))
		return nil
	}

	rv := reflect.ValueOf(value)
	if rv.Type() == f.Type() {
		f.Set(rv)
		return nil
	}
	if rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			f.Set(reflect.Zero(f.Type()))
			return nil
		}
		rv = rv.Elem()
	}

	if f.Kind() == reflect.Pointer {
		elem, err := convert(rv, f.Type().Elem())
		if err != nil {
			return err
		}
		p := reflect.New(f.Type().Elem())
		p.Elem().Set(elem)
		f.Set(p)
		return nil
	}

	elem, err := convert(rv, f.Type())
	if err != nil {
		return err
	}
	f.Set(elem)
	return nil
}

func convert(v reflect.Value, to reflect.Type) (reflect.Value, error) {
	if v.Type() == to {
		return v, nil
	}
	if compatible(v.Type(), to) && v.Type().ConvertibleTo(to) {
		return v.Convert(to), nil
	}
	return reflect.Value{}, fmt.Errorf("%w: cannot use %s as %s", ErrTypeMismatch, v.Type(), to)
}

// compatible rules out conversions Go allows but a column never wants,
// such as int to string.
func compatible(from, to reflect.Type) bool {
	switch {
	case isNumber(from.Kind()) && isNumber(to.Kind()):
		return true
	case from.Kind() == reflect.String && to.Kind() == reflect.String:
		return true
	case from.Kind() == reflect.Bool && to.Kind() == reflect.Bool:
		return true
	case from == timeType || to == timeType:
		return from == to
	}
	return false
}

func isNumber(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}
