package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/vango-go/meetai/pkg/core"
	"github.com/vango-go/meetai/pkg/gateway/apierror"
)

func coreErrorFrom(err error, reqID string) (*core.Error, int) {
	return apierror.FromError(err, reqID)
}

func writeCoreErrorJSON(w http.ResponseWriter, reqID string, coreErr *core.Error, status int) {
	if coreErr == nil {
		coreErr = &core.Error{Type: core.ErrAPI, Message: "internal error"}
	}
	if coreErr.RequestID == "" {
		coreErr.RequestID = reqID
	}
	writeJSON(w, status, apierror.Envelope{Error: coreErr})
}

// writeMethodNotAllowed answers 405 in the standard error envelope.
func writeMethodNotAllowed(w http.ResponseWriter, reqID string, allow string) {
	w.Header().Set("Allow", allow)
	writeCoreErrorJSON(w, reqID, core.NewInvalidRequestError("Method not allowed"), http.StatusMethodNotAllowed)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
