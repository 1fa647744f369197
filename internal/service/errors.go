package service

import (
	"errors"
	"fmt"

	"atstore-api/internal/repository"
	"atstore-api/pkg/apierror"
)

// translate maps repository sentinels onto the API error taxonomy. Errors
// that already carry an API code pass through untouched.
func translate(err error, entity string) error {
	if err == nil {
		return nil
	}
	if _, ok := apierror.As(err); ok {
		return err
	}
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return apierror.NotFound(entity + " not found")
	case errors.Is(err, repository.ErrConflict):
		return apierror.Conflict(entity + " was modified concurrently, please retry").WithCause(err)
	case errors.Is(err, repository.ErrDuplicate):
		return apierror.Conflict(entity + " already exists").WithCause(err)
	}
	return fmt.Errorf("%s store: %w", entity, err)
}

func fieldError(field, message string) *apierror.Error {
	return apierror.ValidationError(message, apierror.FieldError{Field: field, Message: message})
}
