package server

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/igolaizola/igotutor/internal/auth"
	"github.com/igolaizola/igotutor/pkg/memory"
	"github.com/igolaizola/igotutor/pkg/openai"
)

// Error is an error reported to the caller with a status code.
type Error struct {
	Status  int
	Message string
	Details string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

type errorBody struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func required(field string) *Error {
	return &Error{Status: http.StatusBadRequest, Message: field + " required"}
}

var errSafety = &Error{Status: http.StatusBadRequest, Message: "message failed safety check"}

// upstream wraps a completion gateway failure, keeping the upstream text as details.
func upstream(err error) *Error {
	e := &Error{
		Status:  http.StatusBadGateway,
		Message: "upstream error",
		Details: err.Error(),
		Err:     err,
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		e.Details = apiErr.Body
	}
	return e
}

func classify(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	if errors.Is(err, memory.ErrUnavailable) {
		return &Error{
			Status:  http.StatusInternalServerError,
			Message: "session store unavailable",
			Details: err.Error(),
			Err:     err,
		}
	}
	return &Error{
		Status:  http.StatusInternalServerError,
		Message: "server error",
		Details: err.Error(),
		Err:     err,
	}
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	e := classify(err)
	if e.Status >= http.StatusInternalServerError {
		logFailure(r, err)
	}
	writeJSON(w, e.Status, errorBody{Error: e.Message, Details: e.Details})
}

// logFailure logs a server side error along with the verified user, if any.
func logFailure(r *http.Request, err error) {
	if uid := auth.UserID(r.Context()); uid != "" {
		log.Printf("server: %s %s user=%s: %v", r.Method, r.URL.Path, uid, err)
		return
	}
	log.Printf("server: %s %s: %v", r.Method, r.URL.Path, err)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("server: couldn't write response: %v", err)
	}
}
