package query

import (
	"net/http"

	goerrors "github.com/goliatone/go-errors"

	"github.com/ChasLui/nocodb/core"
)

func queryDependencyError(message string) error {
	return goerrors.New(message, goerrors.CategoryInternal).
		WithCode(http.StatusInternalServerError).
		WithTextCode(core.IntegrationErrorInternal)
}

func queryValidationError(field string, message string) error {
	return goerrors.NewValidation("query: validation failed", goerrors.FieldError{
		Field:   field,
		Message: message,
	}).
		WithCode(http.StatusBadRequest).
		WithTextCode(core.IntegrationErrorBadInput).
		WithSeverity(goerrors.SeverityError)
}
