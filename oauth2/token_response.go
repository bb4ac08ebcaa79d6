package oauth2

// TokenResponse represents the response from a Keycloak token request.
// Keycloak extends the RFC 6749 response with refresh token lifetime,
// session state and the realm's not-before policy.
type TokenResponse struct {
	// AccessToken is the JWT used to access protected resources.
	// Usage: Authorization header: "Bearer <access_token>"
	AccessToken string `json:"access_token"`

	// TokenType indicates how to use the access token.
	// Example: "Bearer"
	TokenType string `json:"token_type"`

	// RefreshToken is used to obtain a new token set without user interaction.
	RefreshToken string `json:"refresh_token"`

	// SessionState identifies the provider-side SSO session.
	// Optional: some realms omit it
	SessionState *string `json:"session_state,omitempty"`

	// ExpiresIn is the lifetime in seconds of the access token.
	// Example: 300
	ExpiresIn int64 `json:"expires_in"`

	// RefreshExpiresIn is the lifetime in seconds of the refresh token.
	// Example: 1800
	RefreshExpiresIn int64 `json:"refresh_expires_in"`

	// NotBeforePolicy is the realm's not-before revocation timestamp.
	// Opaque to the client; carried through to storage unchanged.
	NotBeforePolicy *int64 `json:"not-before-policy,omitempty"`

	// IDToken is the OpenID Connect ID token, present when the openid scope
	// was granted.
	IDToken string `json:"id_token,omitempty"`

	// Scope lists the granted scopes, space separated.
	Scope string `json:"scope,omitempty"`
}
