package core

import (
	"errors"
	"fmt"
)

var (
	ErrTokenExpired           = errors.New("token has expired")
	ErrTokenInvalidated       = errors.New("token has been invalidated")
	ErrInvalidSignature       = errors.New("invalid signature")
	ErrInvalidToken           = errors.New("invalid token")
	ErrInvalidAddress         = errors.New("invalid ethereum address")
	ErrNonceNotFound          = errors.New("nonce not found")
	ErrKeyNotFound            = errors.New("key not found")
	ErrRequestNotFound        = errors.New("request not found")
	ErrRequestNotPending      = errors.New("request is not in a pending state")
	ErrRequestExpired         = errors.New("request has expired")
	ErrTranscriptExists       = errors.New("transcript already registered")
	ErrTranscriptNotFound     = errors.New("transcript not found")
	ErrUnauthorizedTranscript = errors.New("transcript not owned by wallet")
	ErrInvalidWalletField     = errors.New("wallet field must be student_wallet or recipient_wallet")
	ErrValidation             = errors.New("validation failed")
)

// ValidationError reports a locally rejected input. It never reaches the network.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Is makes every ValidationError match ErrValidation.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}
