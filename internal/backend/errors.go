package backend

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies gateway failures so callers can pick user-facing copy
// without inspecting error text.
type Kind int

const (
	KindUnknown Kind = iota
	// KindAuthUnavailable: no credentials could be obtained at all.
	KindAuthUnavailable
	// KindAuthExpired: credentials existed, but recovery after a 401 failed.
	KindAuthExpired
	// KindBackend: the backend answered with a non-2xx status.
	KindBackend
	// KindUnreachable: the backend could not be reached.
	KindUnreachable
)

func (k Kind) String() string {
	switch k {
	case KindAuthUnavailable:
		return "auth_unavailable"
	case KindAuthExpired:
		return "auth_expired"
	case KindBackend:
		return "backend_error"
	case KindUnreachable:
		return "unreachable"
	default:
		return "unknown"
	}
}

// Error is the only error type returned by Client.Call and the typed API.
type Error struct {
	Kind   Kind
	Status int    // HTTP status for KindBackend
	Body   string // response body for KindBackend
	Err    error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindBackend:
		return fmt.Sprintf("backend error: status %d: %s", e.Status, e.Body)
	default:
		if e.Err != nil {
			return fmt.Sprintf("%s: %v", e.Kind, e.Err)
		}
		return e.Kind.String()
	}
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the Kind of err, or KindUnknown if err is not a gateway error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsAuth reports whether err means the user has to re-register.
func IsAuth(err error) bool {
	k := KindOf(err)
	return k == KindAuthUnavailable || k == KindAuthExpired
}

// IsNotFound reports whether the backend answered 404.
func IsNotFound(err error) bool {
	return StatusOf(err) == http.StatusNotFound
}

// StatusOf returns the HTTP status of a KindBackend error, or 0.
func StatusOf(err error) int {
	var e *Error
	if errors.As(err, &e) && e.Kind == KindBackend {
		return e.Status
	}
	return 0
}

func authUnavailable(err error) error { return &Error{Kind: KindAuthUnavailable, Err: err} }
func authExpired(err error) error     { return &Error{Kind: KindAuthExpired, Err: err} }
func unreachable(err error) error     { return &Error{Kind: KindUnreachable, Err: err} }

func backendError(status int, body []byte) error {
	return &Error{Kind: KindBackend, Status: status, Body: string(body)}
}
