package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"

	"livraria/backend/internal/store"
)

type scanner interface {
	Scan(dest ...any) error
}

// table compiles the generic Query contract to SQL for one relation. Column
// names match the json field names so filters mean the same in both stores.
type table[T any, P store.Row[T]] struct {
	db         *sql.DB
	entity     string
	relation   string
	columns    []string
	writable   []string
	dates      []string
	touch      bool
	scan       func(scanner) (T, error)
	values     func(*T) []any
	onConflict func(ctx context.Context, item *T) (*T, error)
}

func (t *table[T, P]) selectList() string {
	return strings.Join(t.columns, ", ")
}

func (t *table[T, P]) List(ctx context.Context, q store.Query) ([]T, error) {
	query, args, err := t.buildList(q)
	if err != nil {
		return nil, err
	}

	rows, err := t.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]T, 0, 32)
	for rows.Next() {
		item, err := t.scan(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (t *table[T, P]) buildList(q store.Query) (string, []any, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "SELECT %s FROM %s", t.selectList(), t.relation)

	var zero T
	keys := make([]string, 0, len(q.Filters))
	filters := make(map[string]store.FilterValue, len(q.Filters))
	for key, raw := range q.Filters {
		if !t.filterable(key) {
			return "", nil, fmt.Errorf("%w: unknown filter %q", store.ErrInvalid, key)
		}
		sample, _ := P(&zero).Field(key)
		fv, err := store.ParseFilter(key, sample, raw)
		if err != nil {
			return "", nil, err
		}
		filters[key] = fv
		keys = append(keys, key)
	}
	slices.Sort(keys)

	args := make([]any, 0, len(keys)+2)
	for i, key := range keys {
		if i == 0 {
			sb.WriteString(" WHERE ")
		} else {
			sb.WriteString(" AND ")
		}
		fv := filters[key]
		if fv.DateOnly {
			args = append(args, strings.TrimSpace(q.Filters[key]))
			if slices.Contains(t.dates, key) {
				fmt.Fprintf(&sb, "%s = $%d::date", key, len(args))
			} else {
				fmt.Fprintf(&sb, "(%s AT TIME ZONE 'UTC')::date = $%d::date", key, len(args))
			}
			continue
		}
		args = append(args, strings.TrimSpace(q.Filters[key]))
		fmt.Fprintf(&sb, "%s = $%d", key, len(args))
	}

	if q.OrderBy != "" {
		if !t.filterable(q.OrderBy) {
			return "", nil, fmt.Errorf("%w: unknown order field %q", store.ErrInvalid, q.OrderBy)
		}
		dir := "ASC"
		if q.Descending() {
			dir = "DESC"
		}
		fmt.Fprintf(&sb, " ORDER BY %s %s, id", q.OrderBy, dir)
	}

	offset, limit := q.Bounds()
	if limit > 0 {
		args = append(args, limit, offset)
		fmt.Fprintf(&sb, " LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	}
	return sb.String(), args, nil
}

func (t *table[T, P]) filterable(key string) bool {
	var zero T
	if _, ok := P(&zero).Field(key); !ok {
		return false
	}
	return slices.Contains(t.columns, key)
}

func (t *table[T, P]) Get(ctx context.Context, id string) (*T, error) {
	row := t.db.QueryRowContext(ctx, fmt.Sprintf("SELECT %s FROM %s WHERE id = $1", t.selectList(), t.relation), id)
	item, err := t.scan(row)
	if err != nil {
		return nil, t.mapErr(id, err)
	}
	return &item, nil
}

func (t *table[T, P]) Create(ctx context.Context, item T) (*T, error) {
	placeholders := make([]string, len(t.writable))
	for i := range t.writable {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING %s",
		t.relation, strings.Join(t.writable, ", "), strings.Join(placeholders, ", "), t.selectList())

	created, err := t.scan(t.db.QueryRowContext(ctx, query, t.values(&item)...))
	if err != nil {
		if isUniqueViolation(err) && t.onConflict != nil {
			return t.onConflict(ctx, &item)
		}
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %s already exists", store.ErrInvalid, t.entity)
		}
		return nil, err
	}
	return &created, nil
}

func (t *table[T, P]) Update(ctx context.Context, id string, item T) (*T, error) {
	sets := make([]string, 0, len(t.writable)+1)
	for i, col := range t.writable {
		sets = append(sets, fmt.Sprintf("%s = $%d", col, i+2))
	}
	if t.touch {
		sets = append(sets, "updated_at = now()")
	}
	query := fmt.Sprintf("UPDATE %s SET %s WHERE id = $1 RETURNING %s", t.relation, strings.Join(sets, ", "), t.selectList())

	args := append([]any{id}, t.values(&item)...)
	updated, err := t.scan(t.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		return nil, t.mapErr(id, err)
	}
	return &updated, nil
}

func (t *table[T, P]) Delete(ctx context.Context, id string) error {
	res, err := t.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = $1", t.relation), id)
	if err != nil {
		return t.mapErr(id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%s %s: %w", t.entity, id, store.ErrNotFound)
	}
	return nil
}

func (t *table[T, P]) mapErr(id string, err error) error {
	if errors.Is(err, sql.ErrNoRows) || isInvalidText(err) {
		return fmt.Errorf("%s %s: %w", t.entity, id, store.ErrNotFound)
	}
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %s already exists", store.ErrInvalid, t.entity)
	}
	return err
}
