package core

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	IntegrationErrorBadInput      = "INTEGRATION_BAD_INPUT"
	IntegrationErrorValidation    = "INTEGRATION_VALIDATION_FAILED"
	IntegrationErrorNotFound      = "INTEGRATION_NOT_FOUND"
	IntegrationErrorSourceMissing = "SOURCE_NOT_FOUND"
	IntegrationErrorInUse         = "INTEGRATION_IN_USE"
	IntegrationErrorDeleteFailed  = "INTEGRATION_DELETE_FAILED"
	IntegrationErrorRateLimited   = "INTEGRATION_RATE_LIMITED"
	IntegrationErrorInternal      = "INTEGRATION_INTERNAL_ERROR"
)

// InUseError blocks a non-forced hard delete. It names every active
// base/source pair referencing the integration so callers can render a
// precise conflict message.
type InUseError struct {
	IntegrationID string
	Blockers      []SourceBlocker
}

func (e InUseError) Error() string {
	names := make([]string, 0, len(e.Blockers))
	for _, b := range e.Blockers {
		names = append(names, b.String())
	}
	return fmt.Sprintf(
		"core: integration %q is referenced by active sources: %s",
		strings.TrimSpace(e.IntegrationID),
		strings.Join(names, ", "),
	)
}

func (e InUseError) ToServiceError() *goerrors.Error {
	blockers := make([]map[string]any, 0, len(e.Blockers))
	for _, b := range e.Blockers {
		blockers = append(blockers, map[string]any{
			"source_id":  b.SourceID,
			"alias":      b.Alias,
			"base_id":    b.BaseID,
			"base_title": b.BaseTitle,
		})
	}
	return goerrors.New(e.Error(), goerrors.CategoryConflict).
		WithCode(http.StatusConflict).
		WithTextCode(IntegrationErrorInUse).
		WithMetadata(map[string]any{
			"integration_id": strings.TrimSpace(e.IntegrationID),
			"blockers":       blockers,
		})
}

// DeleteFailedError wraps any failure inside the hard-delete
// transaction after rollback. It surfaces as a bad-request-class error
// so callers see one stable shape regardless of the underlying cause.
type DeleteFailedError struct {
	IntegrationID string
	Cause         error
}

func (e DeleteFailedError) Error() string {
	return fmt.Sprintf("core: delete of integration %q failed: %v", strings.TrimSpace(e.IntegrationID), e.Cause)
}

func (e DeleteFailedError) Unwrap() error {
	return e.Cause
}

func (e DeleteFailedError) ToServiceError() *goerrors.Error {
	return goerrors.Wrap(e.Cause, goerrors.CategoryBadInput, e.Error()).
		WithCode(http.StatusBadRequest).
		WithTextCode(IntegrationErrorDeleteFailed).
		WithMetadata(map[string]any{
			"integration_id": strings.TrimSpace(e.IntegrationID),
		})
}

func integrationErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureIntegrationErrorEnvelope(richErr)
	}

	var inUse InUseError
	if errors.As(err, &inUse) {
		return inUse.ToServiceError()
	}
	var deleteFailed DeleteFailedError
	if errors.As(err, &deleteFailed) {
		return deleteFailed.ToServiceError()
	}

	switch {
	case errors.Is(err, ErrIntegrationNotFound):
		return newIntegrationError(err.Error(), goerrors.CategoryNotFound, IntegrationErrorNotFound)
	case errors.Is(err, ErrSourceNotFound), errors.Is(err, ErrBaseNotFound):
		return newIntegrationError(err.Error(), goerrors.CategoryNotFound, IntegrationErrorSourceMissing)
	case errors.Is(err, ErrIntegrationInUse):
		return newIntegrationError(err.Error(), goerrors.CategoryConflict, IntegrationErrorInUse)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "not found"):
		return newIntegrationError(err.Error(), goerrors.CategoryNotFound, IntegrationErrorNotFound)
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"), strings.Contains(msg, "mismatch"):
		return newIntegrationError(err.Error(), goerrors.CategoryBadInput, IntegrationErrorBadInput)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureIntegrationErrorEnvelope(mapped)
}

func newIntegrationError(message string, category goerrors.Category, textCode string) *goerrors.Error {
	return ensureIntegrationErrorEnvelope(
		goerrors.New(message, category).
			WithTextCode(textCode),
	)
}

func ensureIntegrationErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = integrationHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultIntegrationTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultIntegrationTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput:
		return IntegrationErrorBadInput
	case goerrors.CategoryValidation:
		return IntegrationErrorValidation
	case goerrors.CategoryNotFound:
		return IntegrationErrorNotFound
	case goerrors.CategoryConflict:
		return IntegrationErrorInUse
	default:
		return IntegrationErrorInternal
	}
}

func integrationHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
