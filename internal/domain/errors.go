package domain

import (
	"context"
	"errors"
)

var (
	// ErrUnreachable is returned when a system cannot currently be contacted
	ErrUnreachable = errors.New("system unreachable")

	// ErrIncompatible is returned when no matching interface pair exists, or a
	// compatibility map change invalidated an existing pairing
	ErrIncompatible = errors.New("systems incompatible")

	// ErrTransientTransport is a retryable transport failure
	ErrTransientTransport = errors.New("transient transport failure")

	// ErrPermanentFailure is returned once retries are exhausted
	ErrPermanentFailure = errors.New("permanent failure")

	// ErrOracleUnavailable means the whole compatibility pass cannot proceed
	ErrOracleUnavailable = errors.New("protocol oracle unavailable")

	// ErrNotActive is returned for operations that need an active connection
	ErrNotActive = errors.New("connection not active")

	// ErrNotFound is returned for unknown system or connection IDs
	ErrNotFound = errors.New("not found")

	// ErrCredentials is returned when credentials for a cloud service cannot be fetched
	ErrCredentials = errors.New("credentials unavailable")
)

// ErrorKind classifies an error for recording on a connection
type ErrorKind string

const (
	ErrorKindNone         ErrorKind = ""
	ErrorKindUnreachable  ErrorKind = "unreachable"
	ErrorKindIncompatible ErrorKind = "incompatible"
	ErrorKindTransient    ErrorKind = "transient_transport"
	ErrorKindPermanent    ErrorKind = "permanent_failure"
	ErrorKindOracle       ErrorKind = "oracle_unavailable"
	ErrorKindNotActive    ErrorKind = "not_active"
	ErrorKindNotFound     ErrorKind = "not_found"
	ErrorKindCredentials  ErrorKind = "credentials"
	ErrorKindCancelled    ErrorKind = "cancelled"
)

// KindOf maps an error to its kind. Unclassified errors count as transient.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return ErrorKindNone
	case errors.Is(err, ErrUnreachable):
		return ErrorKindUnreachable
	case errors.Is(err, ErrIncompatible):
		return ErrorKindIncompatible
	case errors.Is(err, ErrPermanentFailure):
		return ErrorKindPermanent
	case errors.Is(err, ErrOracleUnavailable):
		return ErrorKindOracle
	case errors.Is(err, ErrNotActive):
		return ErrorKindNotActive
	case errors.Is(err, ErrNotFound):
		return ErrorKindNotFound
	case errors.Is(err, ErrCredentials):
		return ErrorKindCredentials
	case errors.Is(err, context.Canceled):
		return ErrorKindCancelled
	default:
		return ErrorKindTransient
	}
}
