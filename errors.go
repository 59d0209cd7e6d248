package credgate

import (
	"errors"
	"fmt"
)

var (
	// ErrNonceUnavailable is returned when the server does not hand out a usable nonce
	ErrNonceUnavailable = errors.New("nonce unavailable")

	// ErrSigningRejected is returned when the wallet declines or fails to sign
	ErrSigningRejected = errors.New("signing rejected")

	// ErrAuthFailed is returned when the server still rejects the call after re-authenticating
	ErrAuthFailed = errors.New("authentication failed")

	// ErrNetwork wraps transport failures, timeouts included
	ErrNetwork = errors.New("network error")
)

// ServerError is a non-2xx, non-401 response
type ServerError struct {
	Status  int
	Message string
}

func (e *ServerError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned status %d", e.Status)
	}
	return fmt.Sprintf("server returned status %d: %s", e.Status, e.Message)
}
