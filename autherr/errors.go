// Package autherr defines the structured error kinds surfaced by the
// credential layer. Callers use them to tell "retry this call" apart from
// "fix the configuration" without parsing transport error codes.
//
// Every *Error matches its kind sentinel with errors.Is and carries a gRPC
// status through GRPCStatus, so an error returned from a channel call can be
// inspected either way:
//
//	if errors.Is(err, autherr.ErrScope) { ... }
//	if status.Code(err) == codes.PermissionDenied { ... }
package autherr

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Kind classifies a credential failure.
type Kind int

const (
	// KindUnknown is never produced by this module; it is the zero value.
	KindUnknown Kind = iota
	// KindConfig is a bad credential construction or composition. Fatal and
	// surfaced at setup time.
	KindConfig
	// KindAcquisition is a token fetch that failed or timed out. Retryable by
	// caller policy.
	KindAcquisition
	// KindScope means the identity is not permitted the requested scope.
	KindScope
	// KindAuth is a per-call metadata failure. It aborts only that call.
	KindAuth
	// KindHandshake is a transport handshake failure during channel setup.
	KindHandshake
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "config error"
	case KindAcquisition:
		return "auth acquisition error"
	case KindScope:
		return "scope error"
	case KindAuth:
		return "auth error"
	case KindHandshake:
		return "handshake error"
	default:
		return "unknown error"
	}
}

// Sentinels matched by errors.Is against any *Error of the same kind.
var (
	ErrConfig      = errors.New("config error")
	ErrAcquisition = errors.New("auth acquisition error")
	ErrScope       = errors.New("scope error")
	ErrAuth        = errors.New("auth error")
	ErrHandshake   = errors.New("handshake error")
)

// ErrChannelClosed is returned by every call issued on a closed channel. It
// carries codes.Canceled, matching what grpc reports for a closing
// connection.
var ErrChannelClosed = status.Error(codes.Canceled, "channel closed")

func (k Kind) sentinel() error {
	switch k {
	case KindConfig:
		return ErrConfig
	case KindAcquisition:
		return ErrAcquisition
	case KindScope:
		return ErrScope
	case KindAuth:
		return ErrAuth
	case KindHandshake:
		return ErrHandshake
	default:
		return nil
	}
}

// Error is the concrete error type for every credential failure.
type Error struct {
	Kind Kind
	// Op names the operation that failed, e.g. "tlscreds.New".
	Op string
	// Scope is set for acquisition and scope errors.
	Scope string
	// Timeout reports that a caller deadline expired while waiting for a
	// token.
	Timeout bool
	Err     error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	if e.Timeout {
		b.WriteString(" (timeout)")
	}
	if e.Op != "" {
		b.WriteString(": ")
		b.WriteString(e.Op)
	}
	if e.Scope != "" {
		fmt.Fprintf(&b, ": scope %q", e.Scope)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is the sentinel of e's kind.
func (e *Error) Is(target error) bool {
	s := e.Kind.sentinel()
	return s != nil && target == s
}

// GRPCStatus maps the kind onto a gRPC status. An AuthError takes the code of
// the credential failure it wraps so that a deadline or a scope rejection
// stays recognisable at the call site.
func (e *Error) GRPCStatus() *status.Status {
	return status.New(e.code(), e.Error())
}

func (e *Error) code() codes.Code {
	switch e.Kind {
	case KindConfig:
		return codes.FailedPrecondition
	case KindAcquisition:
		switch {
		case e.Timeout:
			return codes.DeadlineExceeded
		case errors.Is(e.Err, context.Canceled):
			return codes.Canceled
		}
		return codes.Unavailable
	case KindScope:
		return codes.PermissionDenied
	case KindHandshake:
		return codes.Unavailable
	case KindAuth:
		var inner *Error
		if errors.As(e.Err, &inner) && inner.Kind != KindAuth {
			return inner.code()
		}
		return codes.Unauthenticated
	default:
		return codes.Unknown
	}
}

// Config returns a KindConfig error.
func Config(op string, err error) *Error {
	return &Error{Kind: KindConfig, Op: op, Err: err}
}

// Configf returns a KindConfig error with a formatted cause.
func Configf(op, format string, args ...any) *Error {
	return Config(op, fmt.Errorf(format, args...))
}

// Acquisition returns a KindAcquisition error for scope.
func Acquisition(op, scope string, err error) *Error {
	return &Error{Kind: KindAcquisition, Op: op, Scope: scope, Err: err}
}

// Scope returns a KindScope error for scope.
func Scope(op, scope string, err error) *Error {
	return &Error{Kind: KindScope, Op: op, Scope: scope, Err: err}
}

// Auth returns a KindAuth error wrapping the credential failure err.
func Auth(op string, err error) *Error {
	return &Error{Kind: KindAuth, Op: op, Err: err}
}

// AsAuth returns err unchanged when it already is an AuthError and wraps it
// in one otherwise. It returns nil for a nil err.
func AsAuth(op string, err error) error {
	if err == nil {
		return nil
	}
	if KindOf(err) == KindAuth {
		return err
	}
	return Auth(op, err)
}

// Handshake returns a KindHandshake error.
func Handshake(op string, err error) *Error {
	return &Error{Kind: KindHandshake, Op: op, Err: err}
}

// FromContext converts a context error observed while waiting for a token
// into an acquisition error. A deadline becomes a timeout.
func FromContext(op, scope string, ctxErr error) *Error {
	e := Acquisition(op, scope, ctxErr)
	e.Timeout = errors.Is(ctxErr, context.DeadlineExceeded)
	return e
}

// KindOf returns the kind of the outermost *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsRetryable reports whether err is worth retrying under a caller's retry
// policy. Acquisition and handshake failures are; configuration and scope
// failures are not. An AuthError is judged by the failure it wraps.
func IsRetryable(err error) bool {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return false
		}
		switch e.Kind {
		case KindAcquisition, KindHandshake:
			return true
		case KindAuth:
			err = e.Err
		default:
			return false
		}
	}
	return false
}
