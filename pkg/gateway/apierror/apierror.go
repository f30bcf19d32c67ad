package apierror

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/vango-go/meetai/pkg/core"
)

type Envelope struct {
	Error *core.Error `json:"error"`
}

// FromError maps any error onto the canonical error shape and the HTTP
// status the endpoints are allowed to answer with.
func FromError(err error, requestID string) (*core.Error, int) {
	if err == nil {
		return nil, http.StatusOK
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &core.Error{
			Type:      core.ErrAPI,
			Message:   "upstream timeout",
			RequestID: requestID,
		}, http.StatusInternalServerError
	}
	if errors.Is(err, context.Canceled) {
		return &core.Error{
			Type:      core.ErrAPI,
			Message:   "request cancelled",
			Code:      "cancelled",
			RequestID: requestID,
		}, http.StatusInternalServerError
	}

	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		return &core.Error{
			Type:      core.ErrInvalidRequest,
			Message:   "request body too large",
			RequestID: requestID,
		}, http.StatusBadRequest
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return &core.Error{
			Type:      core.ErrInvalidRequest,
			Message:   "Invalid JSON",
			RequestID: requestID,
		}, http.StatusBadRequest
	}

	// Already canonical.
	var coreErr *core.Error
	if errors.As(err, &coreErr) && coreErr != nil {
		out := *coreErr
		out.RequestID = requestID
		return &out, StatusFromType(coreErr.Type)
	}

	// Unknown errors: treat as internal API error (do not leak details by default).
	return &core.Error{
		Type:      core.ErrAPI,
		Message:   "internal error",
		RequestID: requestID,
	}, http.StatusInternalServerError
}

func StatusFromType(t core.ErrorType) int {
	switch t {
	case core.ErrInvalidRequest:
		return http.StatusBadRequest
	case core.ErrAuthentication:
		return http.StatusUnauthorized
	case core.ErrQuota:
		return http.StatusPaymentRequired
	case core.ErrNotFound:
		return http.StatusNotFound
	case core.ErrRateLimit:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
