package domain

import "errors"

type ResultStatus string

const (
	StatusSuccess ResultStatus = "success"
	StatusError   ResultStatus = "error"
)

// Result is the envelope every entity operation returns instead of an error.
type Result[T any] struct {
	Data   T            `json:"data"`
	Error  string       `json:"error,omitempty"`
	Status ResultStatus `json:"status"`

	err error
}

func OK[T any](data T) Result[T] {
	return Result[T]{Data: data, Status: StatusSuccess}
}

func Fail[T any](err error) Result[T] {
	if err == nil {
		err = errors.New("unknown error")
	}
	return Result[T]{Error: err.Error(), Status: StatusError, err: err}
}

func (r Result[T]) OK() bool {
	return r.Status == StatusSuccess
}

// Err returns the failure carried by the envelope, preserving the wrapped
// sentinel so errors.Is keeps working.
func (r Result[T]) Err() error {
	if r.Status == StatusSuccess {
		return nil
	}
	if r.err != nil {
		return r.err
	}
	return errors.New(r.Error)
}

// Unwrap converts the envelope back to a (value, error) pair.
func (r Result[T]) Unwrap() (T, error) {
	return r.Data, r.Err()
}
