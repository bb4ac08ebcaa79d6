package autherrors

import (
	"context"
	"errors"
	"fmt"
)

// Error kinds reported by the credential lifecycle.
var (
	// Credential errors
	ErrCredentialsUnavailable       = errors.New("credentials unavailable")
	ErrExpired                      = errors.New("refresh token expired")
	ErrUnableToCreateRefreshRequest = errors.New("unable to create token refresh request")
	ErrMalformedTokenResponse       = errors.New("malformed token response")

	// Exchange errors
	ErrUnableToExchangeCode = errors.New("unable to exchange authorization code")
	ErrRefreshFailed        = errors.New("token refresh failed")

	// Storage errors
	ErrNotFound         = errors.New("not found")
	ErrStoreCorrupt     = errors.New("stored credentials corrupt")
	ErrStoreWriteFailed = errors.New("unable to store auth credentials")

	// Orchestration outcomes
	ErrOperationBusy  = errors.New("authentication operation already in progress")
	ErrLoginCancelled = errors.New("login cancelled")
)

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// IsCancelled reports whether err means the caller or user abandoned the
// operation rather than it failing.
func IsCancelled(err error) bool {
	return errors.Is(err, ErrLoginCancelled) || errors.Is(err, context.Canceled)
}

// RequiresReauthentication reports whether a refresh failure leaves
// interactive login as the only way forward. Transport failures do not: the
// refresh token may still be good and a later retry can succeed.
func RequiresReauthentication(err error) bool {
	return errors.Is(err, ErrCredentialsUnavailable) ||
		errors.Is(err, ErrUnableToCreateRefreshRequest) ||
		errors.Is(err, ErrExpired)
}
