package validators

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/voucherz-backend/pkg/errors"
)

type transferBody struct {
	NewOwnerID string `json:"new_owner_id" validate:"required,uuid"`
}

func jsonRequest(body string) *http.Request {
	return httptest.NewRequest(http.MethodPost, "/api/v1/vouchers/AAAAAAAAAAAAC/transfer", strings.NewReader(body))
}

func TestDecodeJSONBodyAcceptsValidObject(t *testing.T) {
	var body transferBody
	require.NoError(t, DecodeJSONBody(jsonRequest(`{"new_owner_id":"9b2f7c3e-6a41-4a4f-8f0b-1c2d3e4f5a6b"}`), &body))
	assert.Equal(t, "9b2f7c3e-6a41-4a4f-8f0b-1c2d3e4f5a6b", body.NewOwnerID)
}

func TestDecodeJSONBodyRejections(t *testing.T) {
	cases := map[string]string{
		"empty":         ``,
		"unknown field": `{"new_owner_id":"9b2f7c3e-6a41-4a4f-8f0b-1c2d3e4f5a6b","owner":"x"}`,
		"trailing data": `{"new_owner_id":"9b2f7c3e-6a41-4a4f-8f0b-1c2d3e4f5a6b"}{}`,
		"not a uuid":    `{"new_owner_id":"bob"}`,
		"missing":       `{}`,
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			var body transferBody
			err := DecodeJSONBody(jsonRequest(payload), &body)
			typed := pkgerrors.As(err)
			require.NotNil(t, typed)
			assert.Equal(t, pkgerrors.CodeValidation, typed.Code())
		})
	}
}

func TestDecodeJSONBodyReportsFieldByJSONName(t *testing.T) {
	var body transferBody
	err := DecodeJSONBody(jsonRequest(`{"new_owner_id":"bob"}`), &body)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, map[string]string{"new_owner_id": "must be a valid uuid"}, typed.Details())
}

func TestParseQueryInt(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?limit=10&bad=x&big=500", nil)

	got, err := ParseQueryInt(req, "limit", 25, 1, 100)
	require.NoError(t, err)
	assert.Equal(t, 10, got)

	got, err = ParseQueryInt(req, "missing", 25, 1, 100)
	require.NoError(t, err)
	assert.Equal(t, 25, got)

	_, err = ParseQueryInt(req, "bad", 25, 1, 100)
	require.Error(t, err)
	_, err = ParseQueryInt(req, "big", 25, 1, 100)
	require.Error(t, err)
}

func TestSanitizeString(t *testing.T) {
	assert.Equal(t, "ABC123", SanitizeString("  ABC\x00123\n ", 0))
	assert.Equal(t, "héll", SanitizeString("héllo", 4))
	assert.Equal(t, "", SanitizeString("   ", 8))
}
