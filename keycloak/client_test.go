package keycloak_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/jrsteele09/go-sso-client/autherrors"
	"github.com/jrsteele09/go-sso-client/endpoint"
	"github.com/jrsteele09/go-sso-client/keycloak"
	"github.com/jrsteele09/go-sso-client/oauth2"
	"github.com/jrsteele09/go-sso-client/oauthmodel"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

const (
	tokenPath  = "/auth/realms/demo/protocol/openid-connect/token"
	logoutPath = "/auth/realms/demo/protocol/openid-connect/logout"
)

type fakeRealm struct {
	lock     sync.Mutex
	forms    []url.Values
	token    http.HandlerFunc
	logout   http.HandlerFunc
	server   *httptest.Server
	endpoint endpoint.Endpoint
}

func newFakeRealm(t *testing.T) *fakeRealm {
	t.Helper()
	realm := &fakeRealm{}
	mux := http.NewServeMux()
	mux.HandleFunc(tokenPath, func(w http.ResponseWriter, r *http.Request) {
		realm.record(t, r)
		realm.token(w, r)
	})
	mux.HandleFunc(logoutPath, func(w http.ResponseWriter, r *http.Request) {
		realm.record(t, r)
		realm.logout(w, r)
	})
	realm.server = httptest.NewServer(mux)
	t.Cleanup(realm.server.Close)

	realm.endpoint = endpoint.New("demo", "secure-image", "app://callback", realm.server.URL)
	realm.token = jsonResponse(http.StatusOK, defaultTokenBody())
	realm.logout = func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) }
	return realm
}

func (f *fakeRealm) record(t *testing.T, r *http.Request) {
	require.NoError(t, r.ParseForm())
	require.Equal(t, http.MethodPost, r.Method)
	f.lock.Lock()
	defer f.lock.Unlock()
	f.forms = append(f.forms, r.PostForm)
}

func (f *fakeRealm) lastForm() url.Values {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.forms[len(f.forms)-1]
}

func (f *fakeRealm) client(options ...keycloak.Option) *keycloak.Client {
	options = append([]keycloak.Option{keycloak.WithLogger(zerolog.Nop())}, options...)
	return keycloak.New(f.endpoint, options...)
}

func defaultTokenBody() map[string]any {
	return map[string]any{
		"access_token":       "access-1",
		"token_type":         "Bearer",
		"refresh_token":      "refresh-1",
		"session_state":      "b3c1",
		"expires_in":         300,
		"refresh_expires_in": 1800,
		"not-before-policy":  0,
		"scope":              "openid profile",
	}
}

func jsonResponse(status int, body map[string]any) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}
}

func (f *fakeRealm) codeRequest(code string) *oauthmodel.TokenRequest {
	return &oauthmodel.TokenRequest{
		GrantType:   oauth2.AuthorizationCodeGrant,
		TokenURL:    f.endpoint.TokenURL(),
		ClientID:    f.endpoint.ClientID,
		RedirectURI: f.endpoint.RedirectURI,
		Code:        code,
	}
}

func (f *fakeRealm) refreshRequest(refreshToken string) *oauthmodel.TokenRequest {
	return &oauthmodel.TokenRequest{
		GrantType:    oauth2.RefreshTokenGrant,
		TokenURL:     f.endpoint.TokenURL(),
		ClientID:     f.endpoint.ClientID,
		RedirectURI:  f.endpoint.RedirectURI,
		RefreshToken: refreshToken,
	}
}

func TestExchange(t *testing.T) {
	realm := newFakeRealm(t)

	resp, err := realm.client().Exchange(context.Background(), realm.codeRequest("code-1"))
	require.NoError(t, err)

	form := realm.lastForm()
	require.Equal(t, "authorization_code", form.Get("grant_type"))
	require.Equal(t, "code-1", form.Get("code"))
	require.Equal(t, "secure-image", form.Get("client_id"))
	require.Equal(t, "app://callback", form.Get("redirect_uri"))

	require.Equal(t, "access-1", resp.AccessToken)
	require.Equal(t, "Bearer", resp.TokenType)
	require.Equal(t, "refresh-1", resp.RefreshToken)
	require.Equal(t, int64(300), resp.ExpiresIn)
	require.Equal(t, int64(1800), resp.RefreshExpiresIn)
	require.NotNil(t, resp.SessionState)
	require.Equal(t, "b3c1", *resp.SessionState)
	require.NotNil(t, resp.NotBeforePolicy)
	require.Equal(t, int64(0), *resp.NotBeforePolicy)
	require.Equal(t, "openid profile", resp.Scope)
}

func TestExchange_FormEncodedResponse(t *testing.T) {
	realm := newFakeRealm(t)
	realm.token = func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-www-form-urlencoded")
		_, _ = w.Write([]byte("access_token=a&token_type=bearer&refresh_token=r&expires_in=60&refresh_expires_in=120"))
	}

	resp, err := realm.client().Exchange(context.Background(), realm.codeRequest("code-1"))
	require.NoError(t, err)
	require.Equal(t, int64(60), resp.ExpiresIn)
	require.Equal(t, int64(120), resp.RefreshExpiresIn)
	require.Nil(t, resp.SessionState)
	require.Nil(t, resp.NotBeforePolicy)
}

func TestExchange_Failures(t *testing.T) {
	t.Run("rejected code", func(t *testing.T) {
		realm := newFakeRealm(t)
		realm.token = jsonResponse(http.StatusBadRequest, map[string]any{
			"error":             "invalid_grant",
			"error_description": "Code not valid",
		})
		_, err := realm.client().Exchange(context.Background(), realm.codeRequest("code-1"))
		require.ErrorIs(t, err, autherrors.ErrUnableToExchangeCode)
		require.NotErrorIs(t, err, autherrors.ErrExpired)
	})

	t.Run("missing refresh lifetime", func(t *testing.T) {
		realm := newFakeRealm(t)
		body := defaultTokenBody()
		delete(body, "refresh_expires_in")
		realm.token = jsonResponse(http.StatusOK, body)

		_, err := realm.client().Exchange(context.Background(), realm.codeRequest("code-1"))
		require.ErrorIs(t, err, autherrors.ErrUnableToExchangeCode)
		require.ErrorIs(t, err, autherrors.ErrMalformedTokenResponse)
	})

	t.Run("invalid request", func(t *testing.T) {
		realm := newFakeRealm(t)
		_, err := realm.client().Exchange(context.Background(), realm.codeRequest(""))
		require.ErrorIs(t, err, autherrors.ErrUnableToExchangeCode)
		require.ErrorIs(t, err, oauthmodel.ErrMissingCode)

		_, err = realm.client().Exchange(context.Background(), realm.refreshRequest("refresh-1"))
		require.ErrorIs(t, err, autherrors.ErrUnableToExchangeCode)
		require.Empty(t, realm.forms)
	})

	t.Run("unreachable realm", func(t *testing.T) {
		realm := newFakeRealm(t)
		realm.server.Close()
		_, err := realm.client().Exchange(context.Background(), realm.codeRequest("code-1"))
		require.ErrorIs(t, err, autherrors.ErrUnableToExchangeCode)
	})
}

func TestExchange_VerifiesIDToken(t *testing.T) {
	realm := newFakeRealm(t)
	body := defaultTokenBody()
	body["id_token"] = "not-a-jwt"
	realm.token = jsonResponse(http.StatusOK, body)

	verifier := oidc.NewVerifier(realm.endpoint.IssuerURL(), &oidc.StaticKeySet{}, &oidc.Config{ClientID: "secure-image"})
	_, err := realm.client(keycloak.WithIDTokenVerifier(verifier)).Exchange(context.Background(), realm.codeRequest("code-1"))
	require.ErrorIs(t, err, autherrors.ErrUnableToExchangeCode)

	// without a verifier the id token is passed through
	resp, err := realm.client().Exchange(context.Background(), realm.codeRequest("code-1"))
	require.NoError(t, err)
	require.Equal(t, "not-a-jwt", resp.IDToken)
}

func TestRefresh(t *testing.T) {
	realm := newFakeRealm(t)
	body := defaultTokenBody()
	body["access_token"] = "access-2"
	body["refresh_token"] = "refresh-2"
	realm.token = jsonResponse(http.StatusOK, body)

	resp, err := realm.client().Refresh(context.Background(), realm.refreshRequest("refresh-1"))
	require.NoError(t, err)

	form := realm.lastForm()
	require.Equal(t, "refresh_token", form.Get("grant_type"))
	require.Equal(t, "refresh-1", form.Get("refresh_token"))
	require.Equal(t, "secure-image", form.Get("client_id"))

	require.Equal(t, "access-2", resp.AccessToken)
	require.Equal(t, "refresh-2", resp.RefreshToken)
	require.Equal(t, int64(1800), resp.RefreshExpiresIn)
}

func TestRefresh_RejectedTokenIsExpired(t *testing.T) {
	realm := newFakeRealm(t)
	realm.token = jsonResponse(http.StatusBadRequest, map[string]any{
		"error":             "invalid_grant",
		"error_description": "Token is not active",
	})

	_, err := realm.client().Refresh(context.Background(), realm.refreshRequest("refresh-1"))
	require.ErrorIs(t, err, autherrors.ErrExpired)
	require.True(t, autherrors.RequiresReauthentication(err))
}

func TestRefresh_Failures(t *testing.T) {
	t.Run("server error", func(t *testing.T) {
		realm := newFakeRealm(t)
		realm.token = jsonResponse(http.StatusInternalServerError, map[string]any{"error": "server_error"})
		_, err := realm.client().Refresh(context.Background(), realm.refreshRequest("refresh-1"))
		require.ErrorIs(t, err, autherrors.ErrRefreshFailed)
		require.False(t, autherrors.RequiresReauthentication(err))
	})

	t.Run("timeout", func(t *testing.T) {
		realm := newFakeRealm(t)
		release := make(chan struct{})
		defer close(release)
		realm.token = func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-release:
			case <-r.Context().Done():
			}
		}
		client := realm.client(keycloak.WithHTTPClient(&http.Client{Timeout: 50 * time.Millisecond}))
		_, err := client.Refresh(context.Background(), realm.refreshRequest("refresh-1"))
		require.ErrorIs(t, err, autherrors.ErrRefreshFailed)
	})

	t.Run("cancelled context", func(t *testing.T) {
		realm := newFakeRealm(t)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := realm.client().Refresh(ctx, realm.refreshRequest("refresh-1"))
		require.ErrorIs(t, err, autherrors.ErrRefreshFailed)
		require.ErrorIs(t, err, context.Canceled)
	})

	t.Run("invalid request", func(t *testing.T) {
		realm := newFakeRealm(t)
		_, err := realm.client().Refresh(context.Background(), realm.refreshRequest(""))
		require.ErrorIs(t, err, autherrors.ErrUnableToCreateRefreshRequest)
		require.Empty(t, realm.forms)
	})
}

func TestEndSession(t *testing.T) {
	realm := newFakeRealm(t)
	client := realm.client()

	err := client.EndSession(context.Background(), realm.endpoint.LogoutURL(), "secure-image", "refresh-1")
	require.NoError(t, err)

	form := realm.lastForm()
	require.Equal(t, "secure-image", form.Get("client_id"))
	require.Equal(t, "refresh-1", form.Get("refresh_token"))

	realm.logout = func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusBadRequest) }
	err = client.EndSession(context.Background(), realm.endpoint.LogoutURL(), "secure-image", "refresh-1")
	require.Error(t, err)
}

func TestNewVerifier(t *testing.T) {
	realm := newFakeRealm(t)
	verifier := keycloak.NewVerifier(context.Background(), realm.endpoint, nil)
	require.NotNil(t, verifier)

	_, err := verifier.Verify(context.Background(), "not-a-jwt")
	require.Error(t, err)
}
