package store

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Order string

const (
	OrderAsc  Order = "asc"
	OrderDesc Order = "desc"
)

// Query carries equality filters and range pagination. PageSize 0 returns
// every matching row.
type Query struct {
	Filters  map[string]string
	Page     int
	PageSize int
	OrderBy  string
	Order    Order
}

func (q Query) Where(key string, value string) Query {
	filters := make(map[string]string, len(q.Filters)+1)
	for k, v := range q.Filters {
		filters[k] = v
	}
	filters[key] = value
	q.Filters = filters
	return q
}

// Bounds returns the offset and limit of the requested page; limit is 0 when
// the query is unpaginated.
func (q Query) Bounds() (offset int, limit int) {
	if q.PageSize < 1 {
		return 0, 0
	}
	page := q.Page
	if page < 1 {
		page = 1
	}
	return (page - 1) * q.PageSize, q.PageSize
}

func (q Query) Descending() bool {
	return strings.EqualFold(string(q.Order), string(OrderDesc))
}

// Apply filters, orders and paginates rows in memory with the same semantics
// the postgres store compiles to SQL.
func Apply[T any, P Row[T]](rows []T, q Query) ([]T, error) {
	var zero T
	filters := make(map[string]FilterValue, len(q.Filters))
	for key, raw := range q.Filters {
		sample, ok := P(&zero).Field(key)
		if !ok {
			return nil, fmt.Errorf("%w: unknown filter %q", ErrInvalid, key)
		}
		fv, err := ParseFilter(key, sample, raw)
		if err != nil {
			return nil, err
		}
		filters[key] = fv
	}
	if q.OrderBy != "" {
		if _, ok := P(&zero).Field(q.OrderBy); !ok {
			return nil, fmt.Errorf("%w: unknown order field %q", ErrInvalid, q.OrderBy)
		}
	}

	result := make([]T, 0, len(rows))
	for i := range rows {
		row := rows[i]
		if matches(P(&row).Field, filters) {
			result = append(result, row)
		}
	}

	if q.OrderBy != "" {
		desc := q.Descending()
		slices.SortStableFunc(result, func(a, b T) int {
			av, _ := P(&a).Field(q.OrderBy)
			bv, _ := P(&b).Field(q.OrderBy)
			c := Compare(av, bv)
			if desc {
				return -c
			}
			return c
		})
	}

	offset, limit := q.Bounds()
	if limit == 0 {
		return result, nil
	}
	if offset >= len(result) {
		return []T{}, nil
	}
	end := offset + limit
	if end > len(result) {
		end = len(result)
	}
	return result[offset:end], nil
}

func matches(field func(string) (any, bool), filters map[string]FilterValue) bool {
	for key, want := range filters {
		got, _ := field(key)
		if !want.Matches(got) {
			return false
		}
	}
	return true
}

// FilterValue is a raw filter parsed into the type of its column.
type FilterValue struct {
	Value any
	// DateOnly marks a time filter given as YYYY-MM-DD; it matches any
	// instant on that calendar day.
	DateOnly bool
}

// ParseFilter converts raw into the type of sample, the zero value of the
// filtered field. A value the column type cannot hold is ErrInvalid.
func ParseFilter(key string, sample any, raw string) (FilterValue, error) {
	invalid := func(err error) (FilterValue, error) {
		return FilterValue{}, fmt.Errorf("%w: filter %s=%q: %v", ErrInvalid, key, raw, err)
	}
	switch sample.(type) {
	case string:
		return FilterValue{Value: raw}, nil
	case int, *int:
		n, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return invalid(err)
		}
		return FilterValue{Value: n}, nil
	case int64:
		n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil {
			return invalid(err)
		}
		return FilterValue{Value: n}, nil
	case bool:
		b, err := strconv.ParseBool(strings.TrimSpace(raw))
		if err != nil {
			return invalid(err)
		}
		return FilterValue{Value: b}, nil
	case decimal.Decimal:
		d, err := decimal.NewFromString(strings.TrimSpace(raw))
		if err != nil {
			return invalid(err)
		}
		return FilterValue{Value: d}, nil
	case time.Time, *time.Time:
		raw = strings.TrimSpace(raw)
		if day, err := time.Parse(time.DateOnly, raw); err == nil {
			return FilterValue{Value: day, DateOnly: true}, nil
		}
		at, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return invalid(err)
		}
		return FilterValue{Value: at.UTC()}, nil
	}
	return FilterValue{Value: raw}, nil
}

// Matches reports whether a field value equals the filter. Unset optional
// fields never match, as NULL columns never do in SQL.
func (f FilterValue) Matches(got any) bool {
	switch v := got.(type) {
	case *int:
		if v == nil {
			return false
		}
		got = *v
	case *time.Time:
		if v == nil {
			return false
		}
		got = *v
	}

	switch want := f.Value.(type) {
	case decimal.Decimal:
		d, ok := got.(decimal.Decimal)
		return ok && d.Equal(want)
	case time.Time:
		t, ok := got.(time.Time)
		if !ok {
			return false
		}
		if f.DateOnly {
			return t.UTC().Format(time.DateOnly) == want.Format(time.DateOnly)
		}
		return t.Equal(want)
	}
	return got == f.Value
}

// Compare orders two field values. Unset optional values sort after set ones,
// matching the postgres NULLS LAST default for ascending order.
func Compare(a any, b any) int {
	switch av := a.(type) {
	case string:
		bv, _ := b.(string)
		return strings.Compare(av, bv)
	case int:
		bv, _ := b.(int)
		return cmpOrdered(av, bv)
	case int64:
		bv, _ := b.(int64)
		return cmpOrdered(av, bv)
	case decimal.Decimal:
		bv, _ := b.(decimal.Decimal)
		return av.Cmp(bv)
	case time.Time:
		bv, _ := b.(time.Time)
		return av.Compare(bv)
	case *int:
		bv, _ := b.(*int)
		if c, done := cmpNil(av == nil, bv == nil); done {
			return c
		}
		return cmpOrdered(*av, *bv)
	case *time.Time:
		bv, _ := b.(*time.Time)
		if c, done := cmpNil(av == nil, bv == nil); done {
			return c
		}
		return av.Compare(*bv)
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func cmpNil(aNil bool, bNil bool) (int, bool) {
	switch {
	case aNil && bNil:
		return 0, true
	case aNil:
		return 1, true
	case bNil:
		return -1, true
	}
	return 0, false
}

func cmpOrdered[N int | int64](a N, b N) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
