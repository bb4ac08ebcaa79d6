package endpoint

import (
	"errors"
	"strings"

	"github.com/jrsteele09/go-sso-client/oauth2"
)

var (
	ErrMissingBaseURL     = errors.New("missing base url")
	ErrMissingRealm       = errors.New("missing realm")
	ErrMissingClientID    = errors.New("missing client id")
	ErrMissingRedirectURI = errors.New("missing redirect uri")
)

// Endpoint describes a Keycloak realm client and computes the OpenID Connect
// URLs for it. All URLs are plain concatenations of the configured values;
// callers are responsible for any encoding of RedirectURI.
type Endpoint struct {
	RealmName    string
	ClientID     string
	RedirectURI  string
	BaseURL      string
	ResponseType oauth2.ResponseType
	Hint         string // kc_idp_hint, omitted when empty
}

// Option configures optional Endpoint fields.
type Option func(*Endpoint)

// WithResponseType overrides the default "code" response type.
func WithResponseType(responseType oauth2.ResponseType) Option {
	return func(e *Endpoint) {
		e.ResponseType = responseType
	}
}

// WithIdpHint sets the identity provider hint sent as kc_idp_hint.
func WithIdpHint(hint string) Option {
	return func(e *Endpoint) {
		e.Hint = hint
	}
}

func New(realmName, clientID, redirectURI, baseURL string, options ...Option) Endpoint {
	e := Endpoint{
		RealmName:    realmName,
		ClientID:     clientID,
		RedirectURI:  redirectURI,
		BaseURL:      baseURL,
		ResponseType: oauth2.CodeResponseType,
	}
	for _, opt := range options {
		opt(&e)
	}
	return e
}

// Validate reports the first missing required field.
func (e Endpoint) Validate() error {
	switch {
	case strings.TrimSpace(e.BaseURL) == "":
		return ErrMissingBaseURL
	case strings.TrimSpace(e.RealmName) == "":
		return ErrMissingRealm
	case strings.TrimSpace(e.ClientID) == "":
		return ErrMissingClientID
	case strings.TrimSpace(e.RedirectURI) == "":
		return ErrMissingRedirectURI
	}
	return nil
}

// IssuerURL is the realm issuer, the "iss" claim of tokens it signs.
func (e Endpoint) IssuerURL() string {
	return e.BaseURL + "/auth/realms/" + e.RealmName
}

func (e Endpoint) baseOidcURL() string {
	return e.IssuerURL() + "/protocol/openid-connect"
}

func (e Endpoint) AuthorizationURL() string {
	return e.baseOidcURL() + "/auth"
}

func (e Endpoint) TokenURL() string {
	return e.baseOidcURL() + "/token"
}

func (e Endpoint) LogoutURL() string {
	return e.baseOidcURL() + "/logout"
}

// CertsURL is the realm JWKS used to verify token signatures.
func (e Endpoint) CertsURL() string {
	return e.baseOidcURL() + "/certs"
}

// LoginQuery is the query string for the authorization request.
func (e Endpoint) LoginQuery() string {
	query := "response_type=" + string(e.ResponseType) + "&client_id=" + e.ClientID + "&redirect_uri=" + e.RedirectURI
	if e.Hint != "" {
		query += "&kc_idp_hint=" + e.Hint
	}
	return query
}

// LoginURL joins AuthorizationURL and LoginQuery.
func (e Endpoint) LoginURL() string {
	return e.AuthorizationURL() + "?" + e.LoginQuery()
}
