package oai

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Error is an API failure carrying the HTTP status it maps to. All errors
// render with the same OpenAI-style envelope.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string { return e.Message }

// BadRequest builds a 400 error.
func BadRequest(msg string) *Error {
	return &Error{Status: http.StatusBadRequest, Message: msg}
}

// Unauthorized builds a 401 error.
func Unauthorized(msg string) *Error {
	return &Error{Status: http.StatusUnauthorized, Message: msg}
}

// NotFound builds a 404 error.
func NotFound(msg string) *Error {
	return &Error{Status: http.StatusNotFound, Message: msg}
}

// Internal builds a 500 error.
func Internal(msg string) *Error {
	return &Error{Status: http.StatusInternalServerError, Message: msg}
}

// Internalf builds a 500 error with a formatted message.
func Internalf(format string, args ...any) *Error {
	return Internal(fmt.Sprintf(format, args...))
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Message string  `json:"message"`
	Type    string  `json:"type"`
	Code    *string `json:"code"`
}

// WriteError renders err as the error envelope. Non-*Error values map to
// 500 with their message.
func WriteError(w http.ResponseWriter, err error) {
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		apiErr = Internal(err.Error())
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(apiErr.Status)
	_ = json.NewEncoder(w).Encode(errorEnvelope{
		Error: errorBody{
			Message: apiErr.Message,
			Type:    "invalid_request_error",
			Code:    nil,
		},
	})
}

// WriteJSON renders v as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
