package oauthmodel

import (
	"strings"

	"github.com/jrsteele09/go-sso-client/oauth2"
)

// TokenRequest holds parameters for a token endpoint request made by the
// client on behalf of the user.
// Supports the grant types: authorization_code, refresh_token
type TokenRequest struct {
	// GrantType selects the token endpoint behaviour.
	// Required: Yes
	GrantType oauth2.GrantType

	// TokenURL is the realm's token endpoint.
	// Example: "https://sso.example.com/auth/realms/demo/protocol/openid-connect/token"
	TokenURL string

	// ClientID identifies the OAuth2 client making the request.
	// Required: Yes (for all grant types)
	ClientID string

	// RedirectURI must match the redirect URI used in the authorization request.
	// Required: Yes
	RedirectURI string

	// Code is the authorization code received from the authorization endpoint.
	// Required: Yes (only for authorization_code grant)
	// Usage: Exchanged once for tokens, then becomes invalid
	Code string

	// RefreshToken is used to obtain new access tokens without re-authentication.
	// Required: Yes (only for refresh_token grant)
	// Behavior: Rotated by the provider - the old refresh token is invalidated
	RefreshToken string
}

// Validate checks the request carries what its grant type needs.
func (r *TokenRequest) Validate() error {
	if strings.TrimSpace(r.TokenURL) == "" {
		return ErrMissingTokenURL
	}
	if strings.TrimSpace(r.ClientID) == "" {
		return ErrMissingClientID
	}
	switch r.GrantType {
	case oauth2.AuthorizationCodeGrant:
		if strings.TrimSpace(r.Code) == "" {
			return ErrMissingCode
		}
	case oauth2.RefreshTokenGrant:
		if strings.TrimSpace(r.RefreshToken) == "" {
			return ErrMissingRefreshToken
		}
	default:
		return ErrUnsupportedGrantType
	}
	return nil
}
