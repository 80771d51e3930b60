package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"livraria/backend/internal/domain"
	"livraria/backend/internal/entity"
	"livraria/backend/internal/service"
	"livraria/backend/internal/store"
)

// collectionHandler serves list and create for one entity service.
func collectionHandler[T any, P store.Row[T]](svc *entity.Service[T, P]) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			q, err := parseQuery(r)
			if err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
			writeResult(w, http.StatusOK, svc.GetAll(r.Context(), q))
		case http.MethodPost:
			var item T
			if err := decodeJSON(r, &item); err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
			writeResult(w, http.StatusCreated, svc.Create(r.Context(), item))
		default:
			writeMethodNotAllowed(w)
		}
	}
}

// itemHandler serves read, replace, merge and delete of one row. Replace and
// merge leave workflow fields to their own endpoints. Deletes need the admin
// role.
func itemHandler[T any, P store.Row[T]](svc *entity.Service[T, P]) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		switch r.Method {
		case http.MethodGet:
			writeResult(w, http.StatusOK, svc.GetByID(r.Context(), id))
		case http.MethodPut:
			var item T
			if err := decodeJSON(r, &item); err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
			writeResult(w, http.StatusOK, svc.Replace(r.Context(), id, item))
		case http.MethodPatch:
			raw, err := io.ReadAll(r.Body)
			if err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
			writeResult(w, http.StatusOK, svc.Merge(r.Context(), id, func(row P) error {
				return mergeJSON(raw, row)
			}))
		case http.MethodDelete:
			if actor, ok := service.ActorFromContext(r.Context()); !ok || actor.Role != domain.RoleAdmin {
				writeError(w, http.StatusForbidden, errors.New("admin role required"))
				return
			}
			writeResult(w, http.StatusOK, svc.Delete(r.Context(), id))
		default:
			writeMethodNotAllowed(w)
		}
	}
}

// mergeJSON overlays the present fields of raw onto dest.
func mergeJSON(raw []byte, dest any) error {
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalid, err)
	}
	return nil
}
