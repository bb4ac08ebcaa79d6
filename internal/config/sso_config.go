package config

import (
	"strings"
	"time"
)

const (
	baseURLVar      = "SSO_BASE_URL"
	realmVar        = "SSO_REALM"
	clientIDVar     = "SSO_CLIENT_ID"
	redirectURIVar  = "SSO_REDIRECT_URI"
	idpHintVar      = "SSO_IDP_HINT"
	responseTypeVar = "SSO_RESPONSE_TYPE"
	verifyIDVar     = "SSO_VERIFY_ID_TOKEN"
	httpTimeoutVar  = "SSO_HTTP_TIMEOUT"
)

type SSOConfig interface {
	GetBaseURL() string
	GetRealm() string
	GetClientID() string
	GetRedirectURI() string
	GetIdpHint() string
	GetResponseType() string
	GetVerifyIDToken() bool
	GetHTTPTimeout() time.Duration
}

type SSO struct{}

var _ SSOConfig = SSO{}

// GetBaseURL returns the Keycloak server root (e.g., "https://sso.example.com")
// without a trailing slash.
func (SSO) GetBaseURL() string {
	return strings.TrimRight(GetEnv(baseURLVar, "http://localhost:8080"), "/")
}

func (SSO) GetRealm() string {
	return GetEnv(realmVar, "")
}

func (SSO) GetClientID() string {
	return GetEnv(clientIDVar, "")
}

func (SSO) GetRedirectURI() string {
	return GetEnv(redirectURIVar, "")
}

func (SSO) GetIdpHint() string {
	return GetEnv(idpHintVar, "")
}

func (SSO) GetResponseType() string {
	return GetEnv(responseTypeVar, "code")
}

func (SSO) GetVerifyIDToken() bool {
	return GetEnvBool(verifyIDVar, false)
}

func (SSO) GetHTTPTimeout() time.Duration {
	return GetEnvDuration(httpTimeoutVar, 30*time.Second)
}
