package session

import (
	"errors"
	"fmt"
)

// Kind classifies a session failure.
type Kind string

const (
	KindPrivilege          Kind = "privilege"
	KindCrypto             Kind = "crypto"
	KindTrustStore         Kind = "trust_store"
	KindResolutionOverride Kind = "resolution_override"
	KindListener           Kind = "listener"
	KindCleanup            Kind = "cleanup"
)

// Error attaches a Kind to the underlying failure.
type Error struct {
	Kind Kind
	Err  error
}

func (sessionError *Error) Error() string {
	return fmt.Sprintf("%s: %v", sessionError.Kind, sessionError.Err)
}

func (sessionError *Error) Unwrap() error {
	return sessionError.Err
}

func newError(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// KindOf returns the Kind of the first session Error in err's chain.
func KindOf(err error) (Kind, bool) {
	var sessionError *Error
	if errors.As(err, &sessionError) {
		return sessionError.Kind, true
	}
	return "", false
}
