package aiclient

import (
	"errors"
	"fmt"

	"github.com/ent0n29/pagelens/internal/reliability"
)

var (
	ErrNoCredentials     = reliability.New(reliability.ClassUnauthenticated, errors.New("no API key available"))
	ErrMalformedResponse = reliability.New(reliability.ClassMalformedResponse, errors.New("invalid response format from AI API"))
)

// StatusError reports a non-success HTTP status from the AI API. Body is
// already redacted.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("ai api status %d: %s", e.StatusCode, e.Body)
}

func (e *StatusError) Class() reliability.Class {
	return reliability.ClassifyStatus(e.StatusCode)
}
