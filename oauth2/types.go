package oauth2

// ResponseType represents the OAuth 2.0 response type requested from the
// authorization endpoint.
type ResponseType string

const (
	// CodeResponseType indicates the authorization code flow.
	// The authorization endpoint returns a one-time code that is exchanged for
	// tokens at the token endpoint.
	// Example: /protocol/openid-connect/auth?response_type=code&client_id=...
	CodeResponseType ResponseType = "code"
)

// GrantType represents the OAuth 2.0 grant type used at the token endpoint.
type GrantType string

const (
	// AuthorizationCodeGrant exchanges an authorization code for tokens.
	// Token request includes: code, client_id, redirect_uri
	AuthorizationCodeGrant GrantType = "authorization_code"

	// RefreshTokenGrant exchanges a refresh token for a new token set.
	// Token request includes: refresh_token, client_id, redirect_uri
	// Keycloak rotates the refresh token on use, so a refresh token must not
	// be presented twice.
	RefreshTokenGrant GrantType = "refresh_token"
)

// Error codes returned by the token endpoint (RFC 6749 section 5.2).
const (
	// ErrorCodeInvalidGrant means the code or refresh token is invalid,
	// expired, revoked or was issued to another client.
	ErrorCodeInvalidGrant = "invalid_grant"
)
