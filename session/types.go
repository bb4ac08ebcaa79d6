package session

import (
	"context"
	"time"

	"github.com/jrsteele09/go-sso-client/credential"
	"github.com/jrsteele09/go-sso-client/oauth2"
	"github.com/jrsteele09/go-sso-client/oauthmodel"
)

// TokenExchanger performs the network calls to the realm token endpoint.
type TokenExchanger interface {
	// Exchange trades an authorization code for a token set. Transport
	// failures should wrap autherrors.ErrUnableToExchangeCode.
	Exchange(ctx context.Context, req *oauthmodel.TokenRequest) (*oauth2.TokenResponse, error)

	// Refresh trades a refresh token for a new token set. Transport failures
	// should wrap autherrors.ErrRefreshFailed; a refresh token the provider
	// rejects should wrap autherrors.ErrExpired.
	Refresh(ctx context.Context, req *oauthmodel.TokenRequest) (*oauth2.TokenResponse, error)
}

// SessionEnder is implemented by exchangers that can end the provider-side
// SSO session on logout.
type SessionEnder interface {
	EndSession(ctx context.Context, logoutURL, clientID, refreshToken string) error
}

// InteractiveLogin presents the authorization URL to the user and returns
// the authorization code the provider redirected back with. It returns
// autherrors.ErrLoginCancelled, or the context error, when the user or caller
// abandons the login.
type InteractiveLogin func(ctx context.Context, authorizationURL, loginQuery string) (code string, err error)

// State is the session's authentication state. It is derived from the
// current credential and the clock on every call, never stored.
type State int

const (
	StateUnauthenticated State = iota
	StateValid
	StateRefreshable
	StateExpired
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateValid:
		return "valid"
	case StateRefreshable:
		return "refreshable"
	case StateExpired:
		return "expired"
	}
	return "unknown"
}

func deriveState(cred *credential.Credential, now time.Time) State {
	if cred == nil {
		return StateUnauthenticated
	}
	switch cred.StateAt(now) {
	case credential.StateValid:
		return StateValid
	case credential.StateRefreshable:
		return StateRefreshable
	}
	return StateExpired
}

// cacheStatus tracks whether the persisted credential has been read yet.
type cacheStatus int

const (
	notLoaded cacheStatus = iota
	loaded
	absent
)

type cache struct {
	status cacheStatus
	cred   *credential.Credential
}
