package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors shared across layers.
var (
	ErrNotFound      = errors.New("not found")
	ErrInvalidInput  = errors.New("invalid input")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrCacheMiss     = errors.New("cache miss")
	ErrStoreNotReady = errors.New("storage is not configured")
)

// TransportError reports a failed round trip: unreachable host, timeout, non-success
// status or a payload that is not a GraphQL response.
type TransportError struct {
	Operation  string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("graphql %s: server returned status %d: %v", e.Operation, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("graphql %s: %v", e.Operation, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// QueryError reports server errors attached to an otherwise well-formed response.
// Such responses are never applied to the cache, not even partially.
type QueryError struct {
	Operation string
	Errors    []GraphQLError
}

func (e *QueryError) Error() string {
	msgs := make([]string, 0, len(e.Errors))
	for _, ge := range e.Errors {
		msgs = append(msgs, ge.Message)
	}
	return fmt.Sprintf("graphql %s: %s", e.Operation, strings.Join(msgs, "; "))
}

// IsTransportError reports whether err is or wraps a *TransportError.
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// IsQueryError reports whether err is or wraps a *QueryError.
func IsQueryError(err error) bool {
	var qe *QueryError
	return errors.As(err, &qe)
}
