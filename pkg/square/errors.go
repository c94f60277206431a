package square

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	sq "github.com/square/square-go-sdk"
	sqcore "github.com/square/square-go-sdk/core"

	pkgerrors "github.com/angelmondragon/voucherz-backend/pkg/errors"
)

var statusCodes = map[int]pkgerrors.Code{
	http.StatusBadRequest:          pkgerrors.CodeValidation,
	http.StatusUnauthorized:        pkgerrors.CodeUnauthorized,
	http.StatusForbidden:           pkgerrors.CodeForbidden,
	http.StatusNotFound:            pkgerrors.CodeNotFound,
	http.StatusConflict:            pkgerrors.CodeConflict,
	http.StatusUnprocessableEntity: pkgerrors.CodeStateConflict,
	http.StatusTooManyRequests:     pkgerrors.CodeRateLimit,
}

func codeForStatus(status int) pkgerrors.Code {
	if code, ok := statusCodes[status]; ok {
		return code
	}
	if status >= 400 && status < 500 {
		return pkgerrors.CodeValidation
	}
	return pkgerrors.CodeDependency
}

// mapError translates an SDK failure into a service error. Square error
// bodies refine the HTTP status for reused idempotency keys and auth failures.
func mapError(err error, op string) error {
	msg := "square " + op + " failed"
	var apiErr *sqcore.APIError
	if !errors.As(err, &apiErr) {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, msg)
	}

	code := codeForStatus(apiErr.StatusCode)
	for _, sqErr := range apiErrors(apiErr) {
		switch {
		case sqErr.Code == sq.ErrorCodeIdempotencyKeyReused:
			return pkgerrors.Wrap(pkgerrors.CodeIdempotency, err, msg)
		case sqErr.Category == sq.ErrorCategoryAuthenticationError:
			return pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, msg)
		}
	}
	return pkgerrors.Wrap(code, err, msg)
}

func apiErrors(apiErr *sqcore.APIError) []sq.Error {
	inner := apiErr.Unwrap()
	if inner == nil {
		return nil
	}
	var body struct {
		Errors []*sq.Error `json:"errors"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(inner.Error())), &body); err != nil {
		return nil
	}
	out := make([]sq.Error, 0, len(body.Errors))
	for _, e := range body.Errors {
		if e != nil {
			out = append(out, *e)
		}
	}
	return out
}
