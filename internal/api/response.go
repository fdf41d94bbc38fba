package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"tradelog/pkg/tradelog"
)

// Response represents a successful API response with unified format.
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// ErrorResponse represents an error API response with structured information.
type ErrorResponse struct {
	Code      int    `json:"code"`
	Message   string `json:"message"`
	ErrorCode string `json:"error_code,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// writeSuccess writes a successful response with data.
func writeSuccess(w http.ResponseWriter, data interface{}) {
	writeJSON(w, http.StatusOK, Response{
		Code: 0,
		Data: data,
	})
}

// writeSuccessWithMessage writes a successful response with data and message.
func writeSuccessWithMessage(w http.ResponseWriter, message string, data interface{}) {
	writeJSON(w, http.StatusOK, Response{
		Code:    0,
		Message: message,
		Data:    data,
	})
}

// writeErrorResponse writes an error response. Structured journal errors
// override httpStatus with the status their code maps to.
func writeErrorResponse(w http.ResponseWriter, r *http.Request, httpStatus int, err error) {
	response := ErrorResponse{
		Code:    httpStatus,
		Message: err.Error(),
	}

	var tlErr *tradelog.Error
	if errors.As(err, &tlErr) {
		response.ErrorCode = string(tlErr.Code)
		response.Message = tlErr.Message
		httpStatus = mapErrorCodeToHTTPStatus(tlErr.Code)
		response.Code = httpStatus
	}
	if r != nil {
		response.RequestID = middleware.GetReqID(r.Context())
	}
	if setter, ok := w.(interface{ SetErrorMessage(string) }); ok {
		setter.SetErrorMessage(err.Error())
	}

	writeJSON(w, httpStatus, response)
}

// mapErrorCodeToHTTPStatus maps journal error codes to HTTP status codes.
func mapErrorCodeToHTTPStatus(code tradelog.ErrorCode) int {
	switch code {
	case tradelog.ErrCodeInvalidInput, tradelog.ErrCodeValidation:
		return http.StatusBadRequest
	case tradelog.ErrCodeNotFound:
		return http.StatusNotFound
	case tradelog.ErrCodeUnauthenticated:
		return http.StatusUnauthorized
	case tradelog.ErrCodeRemote:
		return http.StatusBadGateway
	case tradelog.ErrCodeStorage, tradelog.ErrCodeInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
