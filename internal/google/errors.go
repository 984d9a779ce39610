package google

import (
	"errors"
	"fmt"

	"golang.org/x/oauth2"
)

// ErrNoCredential means no token set has ever been stored. The operator must
// complete the consent flow.
var ErrNoCredential = errors.New("no stored credential, authorization required")

// ErrNoRefreshToken means a token set exists but cannot be refreshed. A retry
// will not help; the operator must re-consent.
var ErrNoRefreshToken = errors.New("stored credential has no refresh token, re-authorization required")

// ExchangeError is returned when Google rejects an authorization code.
type ExchangeError struct {
	Err error
}

func (e *ExchangeError) Error() string {
	return fmt.Sprintf("authorization code exchange failed: %v", e.Err)
}

func (e *ExchangeError) Unwrap() error {
	return e.Err
}

// RefreshError is returned when the token endpoint rejects a refresh.
type RefreshError struct {
	Err error
}

func (e *RefreshError) Error() string {
	return fmt.Sprintf("token refresh failed: %v", e.Err)
}

func (e *RefreshError) Unwrap() error {
	return e.Err
}

// Revoked reports whether Google answered invalid_grant, meaning the refresh
// token was revoked or expired and only re-consent can recover.
func (e *RefreshError) Revoked() bool {
	var re *oauth2.RetrieveError
	if errors.As(e.Err, &re) {
		return re.ErrorCode == "invalid_grant"
	}
	return false
}
