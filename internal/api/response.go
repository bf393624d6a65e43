package api

import (
	"errors"
	"net/http"
	"strconv"

	"stockadvisor/pkg/advisor"
)

// Response represents a successful API response with unified format.
type Response struct {
	Code    int    `json:"code"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// ErrorResponse represents an error API response with structured information.
type ErrorResponse struct {
	Code          int    `json:"code"`
	Message       string `json:"message"`
	ErrorCode     string `json:"error_code,omitempty"`
	RetryAfterSec int    `json:"retry_after_sec,omitempty"`
}

// writeSuccess writes a successful response with data.
func writeSuccess(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, Response{
		Code: 0,
		Data: data,
	})
}

// writeSuccessWithMessage writes a successful response with data and message.
func writeSuccessWithMessage(w http.ResponseWriter, message string, data any) {
	writeJSON(w, http.StatusOK, Response{
		Code:    0,
		Message: message,
		Data:    data,
	})
}

// writeErrorResponse maps a core error to its HTTP status. Recoverable
// rejections (rate limit, open circuit, unavailable provider) carry their
// retry hint both in the body and the Retry-After header; a tripped cost
// ceiling deliberately carries none, since it needs a manual reset.
func writeErrorResponse(w http.ResponseWriter, httpStatus int, err error) {
	response := ErrorResponse{
		Code:    httpStatus,
		Message: err.Error(),
	}

	var advErr *advisor.Error
	if errors.As(err, &advErr) {
		response.ErrorCode = string(advErr.Code)
		httpStatus = mapErrorCodeToHTTPStatus(advErr.Code)
		response.Code = httpStatus
		if retryAfter := advisor.RetryAfter(err); retryAfter > 0 && advErr.Code != advisor.ErrCodeCostLimitExceeded {
			response.RetryAfterSec = retryAfter
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
		}
	}

	setLoggedError(w, response.ErrorCode, response.Message)
	writeJSON(w, httpStatus, response)
}

// mapErrorCodeToHTTPStatus maps business error codes to HTTP status codes.
func mapErrorCodeToHTTPStatus(code advisor.ErrorCode) int {
	switch code {
	case advisor.ErrCodeValidation:
		return http.StatusBadRequest
	case advisor.ErrCodeRateLimitExceeded, advisor.ErrCodeCostLimitExceeded:
		return http.StatusTooManyRequests
	case advisor.ErrCodeCircuitOpen, advisor.ErrCodeProviderUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
