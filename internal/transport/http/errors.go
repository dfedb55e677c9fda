package http

import (
	"encoding/json"
	"net/http"
)

const (
	codeMethodNotAllowed   = "method_not_allowed"
	codeNotFound           = "not_found"
	codeInvalidRequestBody = "invalid_request_body"
	codeInvalidPrice       = "invalid_price"
	codeInvalidVolume      = "invalid_volume"
	codeUnknownSide        = "unknown_side"
	codeUnknownAsset       = "unknown_asset"
	codeOwnerRequired      = "owner_required"
	codeOrderNotFound      = "order_not_found"
	codeInvalidID          = "invalid_id"
	codeInsufficientFunds  = "insufficient_funds"
	codeForbidden          = "forbidden"
	codeInternalError      = "internal_error"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	payload, err := json.Marshal(errorResponse{
		Error: msg,
		Code:  code,
	})
	if err != nil {
		_, _ = w.Write([]byte(`{"error":"internal error","code":"internal_error"}`))
		return
	}
	_, _ = w.Write(payload)
}
