package httputil

import (
	"encoding/json"
	"errors"
	"net/http"

	dErrors "mdlgate/pkg/domain-errors"
)

func WriteJSON(w http.ResponseWriter, status int, response any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	// Headers are already sent; an encoding failure can only truncate the body.
	_ = json.NewEncoder(w).Encode(response)
}

// WriteError translates a domain error into an OAuth-style error body.
func WriteError(w http.ResponseWriter, err error) {
	var domainErr *dErrors.Error
	if errors.As(err, &domainErr) {
		response := map[string]string{
			"error": DomainCodeToHTTPCode(domainErr.Code),
		}
		if domainErr.Message != "" {
			response["error_description"] = domainErr.Message
		}
		if domainErr.Code == dErrors.CodeInvalidToken {
			w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
		}
		WriteJSON(w, DomainCodeToHTTPStatus(domainErr.Code), response)
		return
	}

	WriteJSON(w, http.StatusInternalServerError, map[string]string{
		"error": DomainCodeToHTTPCode(dErrors.CodeInternal),
	})
}

// DomainCodeToHTTPStatus translates domain error codes to HTTP status codes.
func DomainCodeToHTTPStatus(code dErrors.Code) int {
	switch code {
	case dErrors.CodeNotFound:
		return http.StatusNotFound
	case dErrors.CodeBadRequest, dErrors.CodeValidation, dErrors.CodeMalformedInput:
		return http.StatusBadRequest
	case dErrors.CodeCryptoFailure, dErrors.CodeTrustFailure, dErrors.CodeCredentialExpired:
		return http.StatusUnprocessableEntity
	case dErrors.CodeTrustUnavailable, dErrors.CodeRemoteUnavailable:
		return http.StatusServiceUnavailable
	case dErrors.CodeInvalidToken:
		return http.StatusUnauthorized
	case dErrors.CodeInvalidRequest, dErrors.CodeInvalidGrant, dErrors.CodeUnsupportedGrantType,
		dErrors.CodeUnsupportedCredentialFormat, dErrors.CodeInvalidProof:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// DomainCodeToHTTPCode translates domain error codes to the wire "error" string.
func DomainCodeToHTTPCode(code dErrors.Code) string {
	switch code {
	case dErrors.CodeBadRequest:
		return "bad_request"
	case dErrors.CodeValidation:
		return "validation_error"
	case dErrors.CodeNotFound,
		dErrors.CodeMalformedInput, dErrors.CodeCryptoFailure, dErrors.CodeTrustFailure,
		dErrors.CodeTrustUnavailable, dErrors.CodeRemoteUnavailable, dErrors.CodeCredentialExpired,
		dErrors.CodeInvalidRequest, dErrors.CodeInvalidGrant, dErrors.CodeUnsupportedGrantType,
		dErrors.CodeInvalidToken, dErrors.CodeUnsupportedCredentialFormat, dErrors.CodeInvalidProof:
		return string(code)
	default:
		return "internal_error"
	}
}
