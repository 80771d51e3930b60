package entity

import (
	"context"
	"errors"
	"fmt"
	"log"

	"livraria/backend/internal/domain"
	"livraria/backend/internal/store"
)

// Service is the per-table CRUD wrapper. Every operation answers with a
// domain.Result envelope; no Go error crosses the boundary.
type Service[T any, P store.Row[T]] struct {
	name      string
	table     store.Table[T]
	normalize func(P)
	validate  func(P) error
	decorate  func(P)
	keep      func(stored P, next P)
	onWrite   func(context.Context)
}

type Option[T any, P store.Row[T]] func(*Service[T, P])

// WithNormalize runs before validation on create and update.
func WithNormalize[T any, P store.Row[T]](fn func(P)) Option[T, P] {
	return func(s *Service[T, P]) { s.normalize = fn }
}

func WithValidate[T any, P store.Row[T]](fn func(P) error) Option[T, P] {
	return func(s *Service[T, P]) { s.validate = fn }
}

// WithDecorate derives read-only fields on every row handed back.
func WithDecorate[T any, P store.Row[T]](fn func(P)) Option[T, P] {
	return func(s *Service[T, P]) { s.decorate = fn }
}

// WithKept copies the fields only workflows may change from the stored row
// onto client replacements and merges.
func WithKept[T any, P store.Row[T]](fn func(stored P, next P)) Option[T, P] {
	return func(s *Service[T, P]) { s.keep = fn }
}

// WithOnWrite runs after every successful create, update and delete.
func WithOnWrite[T any, P store.Row[T]](fn func(context.Context)) Option[T, P] {
	return func(s *Service[T, P]) { s.onWrite = fn }
}

func New[T any, P store.Row[T]](name string, table store.Table[T], opts ...Option[T, P]) *Service[T, P] {
	s := &Service[T, P]{name: name, table: table}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service[T, P]) Name() string { return s.name }

func (s *Service[T, P]) GetAll(ctx context.Context, q store.Query) domain.Result[[]T] {
	if s.table == nil {
		return domain.Fail[[]T](store.ErrUnavailable)
	}
	rows, err := s.table.List(ctx, q)
	if err != nil {
		return failWith[[]T](s.name, "list", "", err)
	}
	if rows == nil {
		rows = []T{}
	}
	for i := range rows {
		s.decorateRow(&rows[i])
	}
	return domain.OK(rows)
}

func (s *Service[T, P]) GetByID(ctx context.Context, id string) domain.Result[T] {
	if s.table == nil {
		return domain.Fail[T](store.ErrUnavailable)
	}
	row, err := s.table.Get(ctx, id)
	if err != nil {
		return s.failRow("get", id, err)
	}
	s.decorateRow(row)
	return domain.OK(*row)
}

func (s *Service[T, P]) Create(ctx context.Context, item T) domain.Result[T] {
	if s.table == nil {
		return domain.Fail[T](store.ErrUnavailable)
	}
	if err := s.prepare(&item); err != nil {
		return domain.Fail[T](err)
	}
	created, err := s.table.Create(ctx, item)
	if err != nil {
		return s.failRow("create", "", err)
	}
	s.written(ctx)
	s.decorateRow(created)
	return domain.OK(*created)
}

func (s *Service[T, P]) Update(ctx context.Context, id string, item T) domain.Result[T] {
	if s.table == nil {
		return domain.Fail[T](store.ErrUnavailable)
	}
	if err := s.prepare(&item); err != nil {
		return domain.Fail[T](err)
	}
	updated, err := s.table.Update(ctx, id, item)
	if err != nil {
		return s.failRow("update", id, err)
	}
	s.written(ctx)
	s.decorateRow(updated)
	return domain.OK(*updated)
}

// Patch loads the row, lets fn modify it and writes it back.
func (s *Service[T, P]) Patch(ctx context.Context, id string, fn func(P) error) domain.Result[T] {
	current := s.GetByID(ctx, id)
	if !current.OK() {
		return current
	}
	row := current.Data
	if err := fn(P(&row)); err != nil {
		return domain.Fail[T](err)
	}
	return s.Update(ctx, id, row)
}

func (s *Service[T, P]) Delete(ctx context.Context, id string) domain.Result[string] {
	if s.table == nil {
		return domain.Fail[string](store.ErrUnavailable)
	}
	if err := s.table.Delete(ctx, id); err != nil {
		return failWith[string](s.name, "delete", id, err)
	}
	s.written(ctx)
	return domain.OK(id)
}

// Replace is the client form of Update: kept fields survive from the stored
// row whatever the body says.
func (s *Service[T, P]) Replace(ctx context.Context, id string, item T) domain.Result[T] {
	return s.Patch(ctx, id, func(row P) error {
		stored := *row
		*row = item
		s.keepFields(&stored, row)
		return nil
	})
}

// Merge is the client form of Patch.
func (s *Service[T, P]) Merge(ctx context.Context, id string, fn func(P) error) domain.Result[T] {
	return s.Patch(ctx, id, func(row P) error {
		stored := *row
		if err := fn(row); err != nil {
			return err
		}
		s.keepFields(&stored, row)
		return nil
	})
}

func (s *Service[T, P]) keepFields(stored *T, next P) {
	if s.keep != nil {
		s.keep(P(stored), next)
	}
}

func (s *Service[T, P]) written(ctx context.Context) {
	if s.onWrite != nil {
		s.onWrite(ctx)
	}
}

func (s *Service[T, P]) prepare(item *T) error {
	if s.normalize != nil {
		s.normalize(P(item))
	}
	if s.validate != nil {
		if err := s.validate(P(item)); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service[T, P]) decorateRow(row *T) {
	if s.decorate != nil {
		s.decorate(P(row))
	}
}

func (s *Service[T, P]) failRow(op string, id string, err error) domain.Result[T] {
	return failWith[T](s.name, op, id, err)
}

func failWith[R any](name string, op string, id string, err error) domain.Result[R] {
	if errors.Is(err, store.ErrNotFound) {
		return domain.Fail[R](err)
	}
	if !errors.Is(err, store.ErrInvalid) {
		log.Printf("[%s] WARN: %s %s failed: %v", name, op, id, err)
	}
	return domain.Fail[R](fmt.Errorf("%s %s: %w", name, op, err))
}
