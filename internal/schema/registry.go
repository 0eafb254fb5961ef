package schema

import (
	"fmt"
	"reflect"
	"sync"
)

// Registry maps model types to their tables. It is built once and handed to
// the data access layer.
type Registry struct {
	mu     sync.RWMutex
	tables map[reflect.Type]*Table
	order  []*Table
}

func NewRegistry(models ...Model) (*Registry, error) {
	r := &Registry{tables: make(map[reflect.Type]*Table)}
	for _, m := range models {
		if err := r.Register(m); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Registry) Register(m Model) error {
	t := m.Table()
	if t == nil {
		return fmt.Errorf("%w: %T returned no table", ErrInvalidTable, m)
	}
	if err := t.Validate(); err != nil {
		return err
	}
	if err := checkFields(m, t); err != nil {
		return err
	}

	key := modelType(m)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tables[key]; ok {
		return nil
	}
	for _, existing := range r.order {
		if existing.Name == t.Name {
			return fmt.Errorf("%w: table %s registered by another model", ErrInvalidTable, t.Name)
		}
	}

	r.tables[key] = t
	r.order = append(r.order, t)
	return nil
}

func (r *Registry) Lookup(m Model) (*Table, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tables[modelType(m)]
	if !ok {
		return nil, fmt.Errorf("%w: %T", ErrUnregistered, m)
	}
	return t, nil
}

// Tables returns the registered tables in registration order.
func (r *Registry) Tables() []*Table {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Table, len(r.order))
	copy(out, r.order)
	return out
}

func modelType(m Model) reflect.Type {
	t := reflect.TypeOf(m)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t
}

// checkFields makes sure every column has a db-tagged field on the model.
func checkFields(m Model, t *Table) error {
	v := reflect.New(modelType(m)).Elem()
	for _, c := range t.Columns {
		if _, ok := fieldByColumn(v, c.Name); !ok {
			return fmt.Errorf("%w: %T has no field tagged db:%q", ErrInvalidTable, m, c.Name)
		}
	}
	return nil
}
