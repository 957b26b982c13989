package http

import (
	"encoding/json"
	"net/http"
)

const (
	codeMethodNotAllowed   = "method_not_allowed"
	codeNotFound           = "not_found"
	codeInvalidRequestBody = "invalid_request_body"
	codeOwnerRequired      = "owner_required"
	codeEmptyBundle        = "empty_bundle"
	codeUnknownProduct     = "unknown_product"
	codeInvalidTTL         = "invalid_ttl"
	codeInvalidExtension   = "invalid_extension"
	codeInvalidID          = "invalid_id"
	codeOrderNotFound      = "order_not_found"
	codeOrderTerminal      = "order_terminal"
	codeRiskBlocked        = "risk_blocked"
	codeProviderFailure    = "provider_failure"
	codeForbidden          = "forbidden"
	codeInternalError      = "internal_error"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
	// Reasons carries the fired risk signals or failed bundle kinds so
	// callers can react without re-deriving the decision.
	Reasons []string `json:"reasons,omitempty"`
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeErrorReasons(w, status, code, msg, nil)
}

func writeErrorReasons(w http.ResponseWriter, status int, code, msg string, reasons []string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	payload, err := json.Marshal(errorResponse{
		Error:   msg,
		Code:    code,
		Reasons: reasons,
	})
	if err != nil {
		_, _ = w.Write([]byte(`{"error":"internal error","code":"internal_error"}`))
		return
	}
	_, _ = w.Write(payload)
}
