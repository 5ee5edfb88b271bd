package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind classifies authentication failures.
type Kind int

const (
	KindValidation Kind = iota + 1
	KindUnknownProvider
	KindInvalidState
	KindProvider
	KindNetwork
	KindStorage
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindUnknownProvider:
		return "unknown_provider"
	case KindInvalidState:
		return "invalid_state"
	case KindProvider:
		return "provider"
	case KindNetwork:
		return "network"
	case KindStorage:
		return "storage"
	default:
		return "unknown"
	}
}

// Error is returned by the authentication flow. Its text never contains
// tokens or client secrets.
type Error struct {
	Kind     Kind
	Provider string
	Step     string

	// Code and Description carry the provider's OAuth error, if any.
	Code        string
	Description string

	Err error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("auth: ")
	b.WriteString(e.Kind.String())
	if e.Provider != "" {
		fmt.Fprintf(&b, " provider=%s", e.Provider)
	}
	if e.Step != "" {
		fmt.Fprintf(&b, " step=%s", e.Step)
	}
	if e.Code != "" {
		fmt.Fprintf(&b, ": %s", e.Code)
		if e.Description != "" {
			fmt.Fprintf(&b, " (%s)", e.Description)
		}
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Message is a user-facing description of the failure.
func (e *Error) Message() string {
	switch e.Kind {
	case KindValidation:
		if e.Err != nil {
			return e.Err.Error()
		}
		return "invalid request"
	case KindUnknownProvider:
		return fmt.Sprintf("unsupported login provider: %s", e.Provider)
	case KindInvalidState:
		return "state verification failed"
	case KindProvider:
		desc := e.Description
		if desc == "" {
			desc = e.Code
		}
		if desc == "" {
			desc = "unknown error"
		}
		switch e.Step {
		case "token_exchanged":
			return fmt.Sprintf("failed to fetch profile: %s", desc)
		case "profile_fetched":
			return fmt.Sprintf("invalid profile: %s", desc)
		default:
			return fmt.Sprintf("failed to obtain access token: %s", desc)
		}
	case KindNetwork:
		return "login failed: identity provider unreachable"
	default:
		return "login failed"
	}
}

// Errorf builds an *Error of the given kind wrapping a formatted cause.
func Errorf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// ProviderError reports an OAuth error returned by the provider.
func ProviderError(code, description string) *Error {
	return &Error{Kind: KindProvider, Code: code, Description: description}
}

// NetworkError reports a transport failure talking to the provider.
func NetworkError(err error) *Error {
	return &Error{Kind: KindNetwork, Err: err}
}

// StorageError reports an account or session store failure.
func StorageError(err error) *Error {
	return &Error{Kind: KindStorage, Err: err}
}

// IsKind reports whether err is an *Error of kind k.
func IsKind(err error, k Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == k
}

// KindOf returns the kind of err, or 0 when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// HTTPStatus maps an error to the status code returned to clients.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation, KindUnknownProvider, KindInvalidState, KindProvider:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
