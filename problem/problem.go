// Package problem provides the error envelope returned to API clients.
// Authentication and server failures carry no problem list so a caller
// cannot probe which check failed; malformed-request responses describe
// the offending fields.
package problem

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"
)

// Problem details part of an error response.
type Problem struct {
	// A JSON path identifying the part of the request that caused the
	// problem.
	Pointer string `json:"pointer,omitempty"`
	// A human-readable explanation specific to this occurrence.
	Detail string `json:"detail,omitempty"`
}

// New creates a problem from a pointer and some detail.
func New(pointer, detail string) Problem {
	return Problem{Pointer: pointer, Detail: detail}
}

// ErrorResponse is the JSON payload for an error response.
type ErrorResponse struct {
	// Status code of the response. Not serialized.
	Status int `json:"-"`
	// The list of problems to relay to the caller.
	Problems []Problem `json:"problems,omitempty"`
}

// Write writes the response. An empty problem list produces a bare
// status with no body.
func (e ErrorResponse) Write(w http.ResponseWriter) {
	if len(e.Problems) == 0 {
		w.WriteHeader(e.Status)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.Status)
	if err := json.NewEncoder(w).Encode(e); err != nil {
		log.Error().Err(err).Msg("failed to encode error response")
	}
}

// InternalServerError is the response for an operational failure.
func InternalServerError() ErrorResponse {
	return ErrorResponse{Status: http.StatusInternalServerError}
}

// Unauthenticated is the response for a request that failed
// authentication. The failure is logged with the caller's location.
func Unauthenticated() ErrorResponse {
	log.Warn().Caller(1).Msg("request was unauthenticated")
	return ErrorResponse{Status: http.StatusUnauthorized}
}

// Forbidden is the response for a request the caller may not make.
func Forbidden() ErrorResponse {
	return ErrorResponse{Status: http.StatusForbidden}
}

// NotFound is the response for a missing resource.
func NotFound() ErrorResponse {
	return ErrorResponse{Status: http.StatusNotFound}
}

// BadRequest is the response for a malformed request, with the
// problems the caller should fix.
func BadRequest(problems ...Problem) ErrorResponse {
	return ErrorResponse{Status: http.StatusBadRequest, Problems: problems}
}

// UnprocessableEntity is the response for a request that parsed but
// could not be processed.
func UnprocessableEntity(problems ...Problem) ErrorResponse {
	log.Warn().Caller(1).Msg("request was unprocessable")
	return ErrorResponse{Status: http.StatusUnprocessableEntity, Problems: problems}
}

// LogInternal logs an operational failure with the caller's location
// and returns the 500 response to write.
func LogInternal(err error, msg string) ErrorResponse {
	log.Error().Caller(1).Err(err).Msg(msg)
	return InternalServerError()
}
