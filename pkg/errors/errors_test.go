package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetadataForKnownCodes(t *testing.T) {
	tests := []struct {
		code      Code
		status    int
		publicMsg string
		retryable bool
		detailsOK bool
	}{
		{code: CodeValidation, status: http.StatusBadRequest, publicMsg: "validation failed", detailsOK: true},
		{code: CodeUnauthorized, status: http.StatusUnauthorized, publicMsg: "authentication required"},
		{code: CodeForbidden, status: http.StatusForbidden, publicMsg: "access denied"},
		{code: CodeNotFound, status: http.StatusNotFound, publicMsg: "resource not found"},
		{code: CodeConflict, status: http.StatusConflict, publicMsg: "conflict detected"},
		{code: CodeStateConflict, status: http.StatusUnprocessableEntity, publicMsg: "state transition disallowed", detailsOK: true},
		{code: CodeIdempotency, status: http.StatusConflict, publicMsg: "idempotency key reused", detailsOK: true},
		{code: CodeRateLimit, status: http.StatusTooManyRequests, publicMsg: "rate limit exceeded", retryable: true},
		{code: CodeInternal, status: http.StatusInternalServerError, publicMsg: "internal server error", retryable: true},
		{code: CodeDependency, status: http.StatusServiceUnavailable, publicMsg: "dependency unavailable", retryable: true, detailsOK: true},
		{code: CodePaymentConfiguration, status: http.StatusBadGateway, publicMsg: "payment configuration invalid"},
		{code: CodeInvariant, status: http.StatusInternalServerError, publicMsg: "internal server error"},
	}

	for _, tt := range tests {
		meta := MetadataFor(tt.code)
		assert.Equal(t, tt.status, meta.HTTPStatus, "status for %s", tt.code)
		assert.Equal(t, tt.publicMsg, meta.PublicMessage, "public message for %s", tt.code)
		assert.Equal(t, tt.retryable, meta.Retryable, "retryable for %s", tt.code)
		assert.Equal(t, tt.detailsOK, meta.DetailsAllowed, "details for %s", tt.code)
	}
}

func TestMetadataForUnknownCodeDefaultsToInternal(t *testing.T) {
	meta := MetadataFor("SOMETHING_UNKNOWN")
	assert.Equal(t, http.StatusInternalServerError, meta.HTTPStatus)
}

func TestErrorConstructors(t *testing.T) {
	base := New(CodeValidation, "missing foo")
	assert.Equal(t, CodeValidation, base.Code())
	assert.Equal(t, "missing foo", base.Message())
	assert.Nil(t, base.Details())
	assert.Equal(t, "VALIDATION_ERROR: missing foo", base.Error())

	base.WithDetails(map[string]any{"field": "foo"})
	assert.NotNil(t, base.Details())

	cause := stdErrors.New("boom")
	wrapped := Wrap(CodeConflict, cause, "ctx")
	assert.ErrorIs(t, wrapped, cause)
	assert.Equal(t, CodeConflict, wrapped.Code())
}

func TestIsMatchesSentinelThroughWrapping(t *testing.T) {
	sentinel := New(CodeNotFound, "voucher not found")

	wrapped := fmt.Errorf("load: %w", sentinel)
	assert.ErrorIs(t, wrapped, sentinel)

	typedWrap := Wrap(CodeDependency, sentinel, "lookup failed")
	assert.ErrorIs(t, typedWrap, sentinel)

	sameShape := New(CodeNotFound, "voucher not found")
	assert.ErrorIs(t, sameShape, sentinel)

	other := New(CodeNotFound, "campaign not found")
	assert.NotErrorIs(t, other, sentinel)
}

func TestAsReturnsTypedError(t *testing.T) {
	err := fmt.Errorf("outer: %w", New(CodeForbidden, "no entry"))
	got := As(err)
	require.NotNil(t, got)
	assert.Equal(t, CodeForbidden, got.Code())
	assert.Nil(t, As(nil))
	assert.Nil(t, As(stdErrors.New("plain")))
}

func TestDumpCollectsChain(t *testing.T) {
	err := Wrap(CodeDependency, stdErrors.New("connection refused"), "persist voucher")
	dump := Dump(err)
	assert.Equal(t, CodeDependency, dump.Code)
	assert.Len(t, dump.Chain, 2)
	assert.Nil(t, dump.PG)

	fields := dump.Fields()
	assert.Equal(t, CodeDependency, fields["error_code"])
	assert.NotContains(t, fields, "pg_code")
}

func TestDumpReadsPostgresDetails(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "ux_vouchers_short_code", TableName: "vouchers"}
	dump := Dump(fmt.Errorf("insert voucher: %w", pgErr))
	require.NotNil(t, dump.PG)
	assert.Equal(t, "23505", dump.PG.Code)
	assert.Equal(t, "ux_vouchers_short_code", dump.Fields()["pg_constraint"])
}

func TestExposeMessageOnlyForClientFacingCodes(t *testing.T) {
	assert.True(t, MetadataFor(CodeNotFound).ExposeMessage)
	assert.False(t, MetadataFor(CodeInternal).ExposeMessage)
	assert.False(t, MetadataFor(CodeInvariant).ExposeMessage)
	assert.False(t, MetadataFor(CodeDependency).ExposeMessage)
}
