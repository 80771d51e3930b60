package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"livraria/backend/internal/store"
	"livraria/backend/internal/xid"
)

// Table is an in-process, non-persistent rendition of one logical table.
type Table[T any, P store.Row[T]] struct {
	mu     sync.RWMutex
	name   string
	rows   []T
	unique func(*T) string
}

func NewTable[T any, P store.Row[T]](name string, seed ...T) *Table[T, P] {
	rows := make([]T, 0, len(seed)+16)
	rows = append(rows, seed...)
	return &Table[T, P]{name: name, rows: rows}
}

// WithUniqueKey makes Create return the existing row instead of inserting a
// second row sharing the same non-empty key.
func (t *Table[T, P]) WithUniqueKey(key func(*T) string) *Table[T, P] {
	t.unique = key
	return t
}

func (t *Table[T, P]) List(_ context.Context, q store.Query) ([]T, error) {
	t.mu.RLock()
	snapshot := make([]T, len(t.rows))
	copy(snapshot, t.rows)
	t.mu.RUnlock()

	return store.Apply[T, P](snapshot, q)
}

func (t *Table[T, P]) Get(_ context.Context, id string) (*T, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	idx := t.indexOf(id)
	if idx < 0 {
		return nil, fmt.Errorf("%s %s: %w", t.name, id, store.ErrNotFound)
	}
	found := t.rows[idx]
	return &found, nil
}

func (t *Table[T, P]) Create(_ context.Context, item T) (*T, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.unique != nil {
		if key := t.unique(&item); key != "" {
			for i := range t.rows {
				if t.unique(&t.rows[i]) == key {
					existing := t.rows[i]
					return &existing, nil
				}
			}
		}
	}

	P(&item).Stamp(xid.New(""), time.Now().UTC())
	if t.indexOf(P(&item).RecordID()) >= 0 {
		return nil, fmt.Errorf("%w: %s %s already exists", store.ErrInvalid, t.name, P(&item).RecordID())
	}
	t.rows = append(t.rows, item)
	created := item
	return &created, nil
}

func (t *Table[T, P]) Update(_ context.Context, id string, item T) (*T, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	idx := t.indexOf(id)
	if idx < 0 {
		return nil, fmt.Errorf("%s %s: %w", t.name, id, store.ErrNotFound)
	}
	created, _ := P(&t.rows[idx]).Field("created_at")
	createdAt, _ := created.(time.Time)
	next := P(&item)
	next.Identify(id, createdAt)
	next.Stamp(id, time.Now().UTC())
	t.rows[idx] = item
	updated := item
	return &updated, nil
}

func (t *Table[T, P]) Delete(_ context.Context, id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	idx := t.indexOf(id)
	if idx < 0 {
		return fmt.Errorf("%s %s: %w", t.name, id, store.ErrNotFound)
	}
	t.rows = append(t.rows[:idx], t.rows[idx+1:]...)
	return nil
}

// Mutate applies fn to the stored row under the table lock.
func (t *Table[T, P]) Mutate(id string, fn func(P) error) (*T, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	idx := t.indexOf(id)
	if idx < 0 {
		return nil, fmt.Errorf("%s %s: %w", t.name, id, store.ErrNotFound)
	}
	row := t.rows[idx]
	if err := fn(P(&row)); err != nil {
		return nil, err
	}
	t.rows[idx] = row
	updated := row
	return &updated, nil
}

func (t *Table[T, P]) indexOf(id string) int {
	if id == "" {
		return -1
	}
	for i := range t.rows {
		if P(&t.rows[i]).RecordID() == id {
			return i
		}
	}
	return -1
}
