package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/angelmondragon/voucherz-backend/pkg/logger"
)

func TestRequestIDPropagatesOrMints(t *testing.T) {
	cases := map[string]struct {
		incoming string
		keep     bool
	}{
		"caller supplied": {incoming: "req-123", keep: true},
		"missing":         {incoming: ""},
		"too long":        {incoming: strings.Repeat("a", maxRequestIDBytes+1)},
		"control chars":   {incoming: "req\x01id"},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
			if tc.incoming != "" {
				req.Header.Set(requestIDHeader, tc.incoming)
			}
			rec := httptest.NewRecorder()
			RequestID(logger.Nop())(okHandler()).ServeHTTP(rec, req)

			got := rec.Header().Get(requestIDHeader)
			if tc.keep {
				assert.Equal(t, tc.incoming, got)
				return
			}
			_, err := uuid.Parse(got)
			assert.NoError(t, err)
		})
	}
}
