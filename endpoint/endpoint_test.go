package endpoint_test

import (
	"testing"

	"github.com/jrsteele09/go-sso-client/endpoint"
	"github.com/jrsteele09/go-sso-client/oauth2"
	"github.com/stretchr/testify/require"
)

const (
	testBaseURL     = "https://sso.example.com"
	testRealm       = "demo"
	testClientID    = "secure-image"
	testRedirectURI = "bcgov%3A%2F%2Fandroid"
)

func TestEndpoint_URLs(t *testing.T) {
	e := endpoint.New(testRealm, testClientID, testRedirectURI, testBaseURL)

	const oidc = "https://sso.example.com/auth/realms/demo/protocol/openid-connect"
	require.Equal(t, "https://sso.example.com/auth/realms/demo", e.IssuerURL())
	require.Equal(t, oidc+"/auth", e.AuthorizationURL())
	require.Equal(t, oidc+"/token", e.TokenURL())
	require.Equal(t, oidc+"/logout", e.LogoutURL())
	require.Equal(t, oidc+"/certs", e.CertsURL())
}

func TestEndpoint_LoginQuery(t *testing.T) {
	t.Run("without hint", func(t *testing.T) {
		e := endpoint.New(testRealm, testClientID, testRedirectURI, testBaseURL)
		require.Equal(t, "response_type=code&client_id=secure-image&redirect_uri=bcgov%3A%2F%2Fandroid", e.LoginQuery())
	})

	t.Run("with hint and response type", func(t *testing.T) {
		e := endpoint.New(testRealm, testClientID, testRedirectURI, testBaseURL,
			endpoint.WithIdpHint("idir"),
			endpoint.WithResponseType(oauth2.ResponseType("code id_token")),
		)
		require.Equal(t, "response_type=code id_token&client_id=secure-image&redirect_uri=bcgov%3A%2F%2Fandroid&kc_idp_hint=idir", e.LoginQuery())
		require.Equal(t, e.AuthorizationURL()+"?"+e.LoginQuery(), e.LoginURL())
	})

	t.Run("redirect uri is not encoded", func(t *testing.T) {
		e := endpoint.New(testRealm, testClientID, "app://cb?x=1", testBaseURL)
		require.Contains(t, e.LoginQuery(), "redirect_uri=app://cb?x=1")
	})
}

func TestEndpoint_Validate(t *testing.T) {
	require.NoError(t, endpoint.New(testRealm, testClientID, testRedirectURI, testBaseURL).Validate())
	require.ErrorIs(t, endpoint.New(testRealm, testClientID, testRedirectURI, "").Validate(), endpoint.ErrMissingBaseURL)
	require.ErrorIs(t, endpoint.New("", testClientID, testRedirectURI, testBaseURL).Validate(), endpoint.ErrMissingRealm)
	require.ErrorIs(t, endpoint.New(testRealm, " ", testRedirectURI, testBaseURL).Validate(), endpoint.ErrMissingClientID)
	require.ErrorIs(t, endpoint.New(testRealm, testClientID, "", testBaseURL).Validate(), endpoint.ErrMissingRedirectURI)
}
