package api

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrUnauthorized marks a rejected or expired session. Callers should
// surface it and redirect to re-authentication; local state is rolled back
// exactly like any other send failure.
var ErrUnauthorized = errors.New("unauthorized")

// ErrConflict marks a write the server refused because the target changed
// under the caller, e.g. editing a message the counterpart deleted moments
// earlier. The server response is authoritative; the local copy stays last
// known good.
var ErrConflict = errors.New("conflict")

// StatusError carries the collaborator's HTTP status and message.
type StatusError struct {
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("backend returned %d: %s", e.Status, e.Message)
}

func (e *StatusError) Unwrap() error {
	switch e.Status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrUnauthorized
	case http.StatusConflict, http.StatusGone:
		return ErrConflict
	}
	return nil
}
