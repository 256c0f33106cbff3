package core

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"

	goerrors "github.com/goliatone/go-errors"
)

func TestIntegrationErrorMapper_SentinelsGetStableEnvelopes(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		category goerrors.Category
		code     int
		textCode string
	}{
		{
			name:     "integration not found",
			err:      fmt.Errorf("%w: int_404", ErrIntegrationNotFound),
			category: goerrors.CategoryNotFound,
			code:     http.StatusNotFound,
			textCode: IntegrationErrorNotFound,
		},
		{
			name:     "source not found",
			err:      fmt.Errorf("%w: src_404", ErrSourceNotFound),
			category: goerrors.CategoryNotFound,
			code:     http.StatusNotFound,
			textCode: IntegrationErrorSourceMissing,
		},
		{
			name:     "base not found",
			err:      fmt.Errorf("%w: base_404", ErrBaseNotFound),
			category: goerrors.CategoryNotFound,
			code:     http.StatusNotFound,
			textCode: IntegrationErrorSourceMissing,
		},
		{
			name:     "in use sentinel",
			err:      ErrIntegrationInUse,
			category: goerrors.CategoryConflict,
			code:     http.StatusConflict,
			textCode: IntegrationErrorInUse,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mapped := integrationErrorMapper(tc.err)
			if mapped == nil {
				t.Fatal("expected a mapped error")
			}
			if mapped.Category != tc.category {
				t.Fatalf("expected category %q, got %q", tc.category, mapped.Category)
			}
			if mapped.Code != tc.code {
				t.Fatalf("expected code %d, got %d", tc.code, mapped.Code)
			}
			if mapped.TextCode != tc.textCode {
				t.Fatalf("expected text code %q, got %q", tc.textCode, mapped.TextCode)
			}
		})
	}
}

func TestIntegrationErrorMapper_MessageHeuristics(t *testing.T) {
	notFound := integrationErrorMapper(errors.New("integration int_9 not found"))
	if notFound.Category != goerrors.CategoryNotFound || notFound.TextCode != IntegrationErrorNotFound {
		t.Fatalf("expected a not-found envelope, got %q/%q", notFound.Category, notFound.TextCode)
	}

	required := integrationErrorMapper(errors.New("workspace id is required"))
	if required.Category != goerrors.CategoryBadInput || required.TextCode != IntegrationErrorBadInput {
		t.Fatalf("expected a bad-input envelope, got %q/%q", required.Category, required.TextCode)
	}
	if required.Code != http.StatusBadRequest {
		t.Fatalf("expected %d code, got %d", http.StatusBadRequest, required.Code)
	}

	invalid := integrationErrorMapper(errors.New("invalid cursor"))
	if invalid.Category != goerrors.CategoryBadInput {
		t.Fatalf("expected a bad-input envelope, got %q", invalid.Category)
	}
}

func TestIntegrationErrorMapper_InUseErrorCarriesBlockerMetadata(t *testing.T) {
	inUse := InUseError{
		IntegrationID: "int_1",
		Blockers: []SourceBlocker{
			{SourceID: "src_1", Alias: "crm_db", BaseID: "base_1", BaseTitle: "CRM"},
			{SourceID: "src_2", Alias: "billing_db", BaseID: "base_2", BaseTitle: "Billing"},
		},
	}

	mapped := integrationErrorMapper(fmt.Errorf("delete blocked: %w", inUse))
	if mapped.Category != goerrors.CategoryConflict || mapped.Code != http.StatusConflict {
		t.Fatalf("expected a conflict envelope, got %q/%d", mapped.Category, mapped.Code)
	}
	if mapped.TextCode != IntegrationErrorInUse {
		t.Fatalf("expected %q text code, got %q", IntegrationErrorInUse, mapped.TextCode)
	}
	if mapped.Metadata["integration_id"] != "int_1" {
		t.Fatalf("expected the integration id in metadata, got %#v", mapped.Metadata)
	}
	blockers, ok := mapped.Metadata["blockers"].([]map[string]any)
	if !ok || len(blockers) != 2 {
		t.Fatalf("expected 2 blockers in metadata, got %#v", mapped.Metadata["blockers"])
	}
	if blockers[0]["base_title"] != "CRM" || blockers[1]["alias"] != "billing_db" {
		t.Fatalf("unexpected blocker metadata %#v", blockers)
	}
}

func TestIntegrationErrorMapper_DeleteFailedKeepsTheCause(t *testing.T) {
	cause := errors.New("cascade failed for source src_2")
	mapped := integrationErrorMapper(DeleteFailedError{IntegrationID: "int_1", Cause: cause})

	if mapped.Category != goerrors.CategoryBadInput || mapped.Code != http.StatusBadRequest {
		t.Fatalf("expected a bad-request envelope, got %q/%d", mapped.Category, mapped.Code)
	}
	if mapped.TextCode != IntegrationErrorDeleteFailed {
		t.Fatalf("expected %q text code, got %q", IntegrationErrorDeleteFailed, mapped.TextCode)
	}
	if !errors.Is(mapped, cause) {
		t.Fatal("expected the cause to stay reachable through the envelope")
	}
}

func TestIntegrationErrorMapper_ExistingEnvelopePassesThroughFilled(t *testing.T) {
	bare := goerrors.New("quota exceeded", goerrors.CategoryRateLimit)
	mapped := integrationErrorMapper(bare)

	if mapped.Code != http.StatusTooManyRequests {
		t.Fatalf("expected the envelope code to be filled, got %d", mapped.Code)
	}
	if mapped.TextCode != IntegrationErrorInternal {
		t.Fatalf("expected the fallback text code, got %q", mapped.TextCode)
	}

	tagged := goerrors.New("sealed config rejected", goerrors.CategoryValidation).
		WithCode(http.StatusUnprocessableEntity).
		WithTextCode(IntegrationErrorValidation)
	kept := integrationErrorMapper(tagged)
	if kept.Code != http.StatusUnprocessableEntity || kept.TextCode != IntegrationErrorValidation {
		t.Fatalf("expected explicit envelope fields to survive, got %d/%q", kept.Code, kept.TextCode)
	}
}

func TestIntegrationErrorMapper_UnknownErrorsGetAnEnvelope(t *testing.T) {
	mapped := integrationErrorMapper(errors.New("disk quota exhausted"))
	if mapped == nil {
		t.Fatal("expected a mapped error")
	}
	if mapped.Code == 0 {
		t.Fatal("expected an http status on the envelope")
	}
	if mapped.TextCode != IntegrationErrorInternal {
		t.Fatalf("expected %q text code, got %q", IntegrationErrorInternal, mapped.TextCode)
	}
}

func TestInUseError_MessageNamesEveryBlocker(t *testing.T) {
	err := InUseError{
		IntegrationID: "int_1",
		Blockers: []SourceBlocker{
			{SourceID: "src_1", BaseID: "base_1", BaseTitle: "CRM"},
			{SourceID: "src_2", BaseID: "base_2"},
		},
	}
	msg := err.Error()
	for _, fragment := range []string{"int_1", "CRM (source src_1)", "base_2 (source src_2)"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in %q", fragment, msg)
		}
	}
}

func TestDefaultErrorMapper_NilStaysNil(t *testing.T) {
	if mapped := defaultErrorMapper(nil); mapped != nil {
		t.Fatalf("expected nil to map to nil, got %v", mapped)
	}
}
