package wire

import (
	"fmt"
	"strings"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgproto3"
)

// ProtocolError is raised by the codec on a malformed frame: a length
// field that can't be real, a frame exceeding the configured cap, or an
// unknown message tag in a position that disallows protocol extensions.
// One returned by Reader ends the session's read loop. Session also
// raises one for an unexpected message outside a query; that one is only
// reported to the session's error handlers and does not end the session.
type ProtocolError struct {
	// Offset is a byte offset from the start of the session's inbound
	// stream, not from the start of the offending frame, so it lines up
	// with a packet capture.
	Offset int64
	Reason string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("pgwire: protocol error at offset %d: %s", e.Offset, e.Reason)
}

// ServerError wraps a parsed ErrorResponse from the server. Per spec it is
// not necessarily fatal: a ServerError received while a query is active is
// scoped to that query; one received outside a query is reported to the
// session's error handlers, and the session's state is not changed.
type ServerError struct {
	pgproto3.ErrorResponse
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("%s %s: %s", e.Severity, e.Code, e.Message)
}

// NewServerError builds a ServerError from a parsed backend ErrorResponse.
func NewServerError(msg *pgproto3.ErrorResponse) *ServerError {
	return &ServerError{ErrorResponse: *msg}
}

// IsClass reports whether e.Code falls in the given SQLSTATE class, e.g.
// IsClass(pgerrcode.IntegrityConstraintViolation[:2]) for any constraint
// failure regardless of which specific one. SQLSTATE's first two
// characters are its class per the PostgreSQL error code appendix that
// package pgerrcode enumerates.
func (e *ServerError) IsClass(class string) bool {
	return len(e.Code) == 5 && strings.HasPrefix(e.Code, class)
}

// IsUniqueViolation reports whether e is a unique-constraint failure
// (SQLSTATE 23505), the one callers most often need to branch on for
// upsert-style retry logic.
func (e *ServerError) IsUniqueViolation() bool {
	return e.Code == pgerrcode.UniqueViolation
}

// IsSerializationFailure reports whether e is a serializable-isolation
// conflict (SQLSTATE 40001), the signal a caller retries a transaction on.
func (e *ServerError) IsSerializationFailure() bool {
	return e.Code == pgerrcode.SerializationFailure
}

// IsUndefinedTable reports whether e is an undefined-table error
// (SQLSTATE 42P01).
func (e *ServerError) IsUndefinedTable() bool {
	return e.Code == pgerrcode.UndefinedTable
}

// TransportError wraps a socket or TLS failure. Fatal for the session.
type TransportError struct {
	Cause error
}

func (e *TransportError) Error() string { return fmt.Sprintf("pgwire: transport error: %v", e.Cause) }
func (e *TransportError) Unwrap() error { return e.Cause }

// SSLErrorKind distinguishes the two ways the SSL pre-handshake can fail.
type SSLErrorKind int

const (
	SSLUnsupported SSLErrorKind = iota
	SSLNegotiationFailed
)

// SSLError is raised during the SSL pre-handshake (spec §4.2).
type SSLError struct {
	Kind  SSLErrorKind
	Cause error
}

func (e *SSLError) Error() string {
	switch e.Kind {
	case SSLUnsupported:
		return "pgwire: server does not support SSL"
	default:
		return fmt.Sprintf("pgwire: SSL negotiation failed: %v", e.Cause)
	}
}
func (e *SSLError) Unwrap() error { return e.Cause }

// AuthenticationError covers bad credentials, SCRAM verification failure,
// and unsupported authentication mechanisms. Fatal for the session.
type AuthenticationError struct {
	Reason string
	Cause  error
}

func (e *AuthenticationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("pgwire: authentication failed: %s: %v", e.Reason, e.Cause)
	}
	return fmt.Sprintf("pgwire: authentication failed: %s", e.Reason)
}
func (e *AuthenticationError) Unwrap() error { return e.Cause }

// QueryTimeoutError is raised when a query's client-side read timeout
// expires. Scoped to the query; the session remains queryable.
type QueryTimeoutError struct {
	Elapsed string
}

func (e *QueryTimeoutError) Error() string {
	return fmt.Sprintf("pgwire: query timed out after %s", e.Elapsed)
}

// ConfigError covers invalid configuration or a bad password-provider
// result, raised at connect time.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string { return fmt.Sprintf("pgwire: config error: %s", e.Reason) }

// PrepareError covers parameter preparation failures, e.g. a circular
// reference discovered while recursively preparing a toPostgres value.
type PrepareError struct {
	Reason string
}

func (e *PrepareError) Error() string { return fmt.Sprintf("pgwire: prepare error: %s", e.Reason) }

// Cancelled is returned to a caller whose query was removed from the
// queue before it was ever submitted to the server.
type Cancelled struct{}

func (e *Cancelled) Error() string { return "pgwire: query cancelled before submission" }

// ConnectionTerminated distinguishes an orderly End() from an unexpected
// transport close, per spec §7's propagation policy.
type ConnectionTerminated struct {
	Unexpected bool
}

func (e *ConnectionTerminated) Error() string {
	if e.Unexpected {
		return "pgwire: connection terminated unexpectedly"
	}
	return "pgwire: connection terminated"
}

// ClientClosed is returned synchronously to a caller who enqueues a query
// after End() has been called.
type ClientClosed struct{}

func (e *ClientClosed) Error() string { return "pgwire: session is closed" }
