// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a failure for routing and recovery decisions.
type ErrorKind string

const (
	ErrNetwork   ErrorKind = "network"
	ErrParsing   ErrorKind = "parsing"
	ErrTimeout   ErrorKind = "timeout"
	ErrRateLimit ErrorKind = "rate_limit"
	ErrQuality   ErrorKind = "quality"
	ErrUnknown   ErrorKind = "unknown"
)

// Recoverable reports whether failures of this kind may be retried or
// routed through a recovery transition.
func (k ErrorKind) Recoverable() bool {
	switch k {
	case ErrNetwork, ErrTimeout, ErrRateLimit, ErrQuality:
		return true
	default:
		return false
	}
}

// AgentError tags an underlying error with a kind so the state machine
// and decision engine can route it.
type AgentError struct {
	// Kind classifies the failure.
	Kind ErrorKind

	// Phase is the lifecycle state the error occurred in, if known.
	Phase string

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *AgentError) Error() string {
	if e.Phase != "" {
		return fmt.Sprintf("%s error in %s: %v", e.Kind, e.Phase, e.Err)
	}
	return fmt.Sprintf("%s error: %v", e.Kind, e.Err)
}

// Unwrap returns the underlying cause.
func (e *AgentError) Unwrap() error { return e.Err }

// NewError wraps err with a kind tag.
func NewError(kind ErrorKind, err error) *AgentError {
	return &AgentError{Kind: kind, Err: err}
}

// Errorf builds a tagged error from a format string.
func Errorf(kind ErrorKind, format string, args ...any) *AgentError {
	return &AgentError{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// KindOf extracts the ErrorKind from err, or ErrUnknown if err carries
// no AgentError in its chain.
func KindOf(err error) ErrorKind {
	var ae *AgentError
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return ErrUnknown
}
