package command

import (
	"net/http"

	goerrors "github.com/goliatone/go-errors"
	"github.com/heartbeatlive/go-heartbeat/core"
)

func commandDependencyError(message string) error {
	return goerrors.New(message, goerrors.CategoryInternal).
		WithCode(http.StatusInternalServerError).
		WithTextCode(core.ErrorInternal)
}

func commandValidationError(field string, message string) error {
	return goerrors.NewValidation("command: validation failed", goerrors.FieldError{
		Field:   field,
		Message: message,
	}).
		WithCode(http.StatusBadRequest).
		WithTextCode(core.ErrorValidation).
		WithSeverity(goerrors.SeverityError)
}

func commandWrapValidation(err error, message string) error {
	if err == nil {
		return nil
	}
	wrapped := goerrors.Wrap(err, goerrors.CategoryValidation, message)
	// Wrap keeps the category of an existing rich error.
	wrapped.Category = goerrors.CategoryValidation
	return wrapped.
		WithCode(http.StatusBadRequest).
		WithTextCode(core.ErrorValidation)
}
