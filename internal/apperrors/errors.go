package apperrors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Code is a cross-service error code shared with the survey backend.
// The literal values are part of the wire contract and must not change.
type Code string

const (
	CodeInvalidInputValue Code = "C001"
	CodeInternalError     Code = "C004"
	CodeGenerationFailed  Code = "A001"
	CodeModelNotAvailable Code = "A002"
	CodeInvalidAIRequest  Code = "A003"
)

// HTTPStatus returns the HTTP status mapped to the code.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeInvalidInputValue, CodeInvalidAIRequest:
		return http.StatusBadRequest
	case CodeModelNotAvailable:
		return http.StatusServiceUnavailable
	case CodeGenerationFailed, CodeInternalError:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// FieldError describes a single request-field validation failure.
type FieldError struct {
	Field  string `json:"field"`
	Value  any    `json:"value"`
	Reason string `json:"reason"`
}

// Error is the typed error carried through the pipeline. It wraps an
// optional cause for logging while the code/message pair is what the
// caller sees.
type Error struct {
	Status  int
	Code    Code
	Message string
	Fields  []FieldError
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s (%s): %v", e.Message, e.Code, e.cause)
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Code)
}

func (e *Error) Unwrap() error { return e.cause }

// New builds an Error for the given code.
func New(code Code, message string) *Error {
	return &Error{Status: code.HTTPStatus(), Code: code, Message: message}
}

// Wrap attaches a cause to a coded error.
func Wrap(err error, code Code, message string) *Error {
	return &Error{Status: code.HTTPStatus(), Code: code, Message: message, cause: err}
}

// GenerationFailed reports that the backend was reachable but produced
// no usable content (or timed out).
func GenerationFailed(err error) *Error {
	return Wrap(err, CodeGenerationFailed, "AI response generation failed")
}

// ModelNotAvailable reports a connection or availability failure
// against the generation backend.
func ModelNotAvailable(err error) *Error {
	return Wrap(err, CodeModelNotAvailable, "AI model is not available")
}

// InvalidRequest reports a request the backend rejected as malformed.
func InvalidRequest(err error) *Error {
	return Wrap(err, CodeInvalidAIRequest, "invalid AI request")
}

// InvalidInput reports request-body validation failures.
func InvalidInput(message string, fields ...FieldError) *Error {
	e := New(CodeInvalidInputValue, message)
	e.Fields = fields
	return e
}

// From normalizes any error into an *Error. Already-coded errors pass
// through unchanged; everything else becomes C004.
func From(err error) *Error {
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	return Wrap(err, CodeInternalError, "internal server error")
}

// Response is the shared JSON error envelope.
type Response struct {
	Message string       `json:"message"`
	Status  int          `json:"status"`
	Code    Code         `json:"code"`
	Errors  []FieldError `json:"errors"`
}

// Envelope returns the wire representation of the error.
func (e *Error) Envelope() Response {
	fields := e.Fields
	if fields == nil {
		fields = []FieldError{}
	}
	return Response{Message: e.Message, Status: e.Status, Code: e.Code, Errors: fields}
}

// WriteJSON writes err as the shared envelope with the matching status.
func WriteJSON(w http.ResponseWriter, err error) {
	ae := From(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(ae.Status)
	_ = json.NewEncoder(w).Encode(ae.Envelope())
}
