package service

import (
	"errors"
	"fmt"
)

// Kind is the closed set of failure classes the HTTP layer maps to statuses.
type Kind int

const (
	KindUnknown Kind = iota
	KindInvalidCredentials
	KindAccountDisabled
	KindMissingToken
	KindInvalidToken
	KindTokenReuseDetected
	KindNotFound
	KindStoreUnavailable
	KindValidation
	KindConflict
)

var kindNames = map[Kind]string{
	KindUnknown:            "internal",
	KindInvalidCredentials: "invalid_credentials",
	KindAccountDisabled:    "account_disabled",
	KindMissingToken:       "missing_token",
	KindInvalidToken:       "invalid_token",
	KindTokenReuseDetected: "token_reuse_detected",
	KindNotFound:           "not_found",
	KindStoreUnavailable:   "store_unavailable",
	KindValidation:         "validation",
	KindConflict:           "conflict",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return kindNames[KindUnknown]
}

// Error is a classified failure. Message is safe to show to clients; Err holds
// the internal cause and is only for logs.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so errors.Is(err, ErrInvalidToken)
// holds for wrapped variants too.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

var (
	ErrInvalidCredentials = &Error{Kind: KindInvalidCredentials, Message: "Invalid email or password"}
	ErrAccountDisabled    = &Error{Kind: KindAccountDisabled, Message: "Account is disabled"}
	ErrMissingToken       = &Error{Kind: KindMissingToken, Message: "Authentication token missing"}
	ErrInvalidToken       = &Error{Kind: KindInvalidToken, Message: "Invalid or expired token"}
	ErrTokenReuseDetected = &Error{
		Kind:    KindTokenReuseDetected,
		Message: "Refresh token reuse detected. All sessions have been revoked; please log in again",
	}
	ErrNotFound = &Error{Kind: KindNotFound, Message: "User not found"}
)

// KindOf classifies err; unclassified errors are KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// PublicMessage returns the client-safe text for err.
func PublicMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "Internal server error"
}

func storeError(op string, err error) error {
	return &Error{
		Kind:    KindStoreUnavailable,
		Message: "Service temporarily unavailable",
		Err:     fmt.Errorf("%s: %w", op, err),
	}
}

func validationError(msg string) error {
	return &Error{Kind: KindValidation, Message: msg}
}

func conflictError(msg string) error {
	return &Error{Kind: KindConflict, Message: msg}
}

func internalError(op string, err error) error {
	return &Error{Kind: KindUnknown, Message: "Internal server error", Err: fmt.Errorf("%s: %w", op, err)}
}

func resultLabel(err error) string {
	if err == nil {
		return "ok"
	}
	return KindOf(err).String()
}
