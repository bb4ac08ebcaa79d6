// Package keycloak talks to a Keycloak realm's OpenID Connect endpoints. It
// implements session.TokenExchanger and session.SessionEnder on top of
// golang.org/x/oauth2.
package keycloak

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/jrsteele09/go-sso-client/autherrors"
	"github.com/jrsteele09/go-sso-client/endpoint"
	"github.com/jrsteele09/go-sso-client/internal/utils"
	"github.com/jrsteele09/go-sso-client/oauth2"
	"github.com/jrsteele09/go-sso-client/oauthmodel"
	"github.com/jrsteele09/go-sso-client/session"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	xoauth2 "golang.org/x/oauth2"
)

const defaultHTTPTimeout = 30 * time.Second

var (
	_ session.TokenExchanger = (*Client)(nil)
	_ session.SessionEnder   = (*Client)(nil)
)

// Client performs the token and logout calls for one realm client.
type Client struct {
	endpoint   endpoint.Endpoint
	httpClient *http.Client
	verifier   *oidc.IDTokenVerifier
	logger     zerolog.Logger
	nowTime    func() time.Time
}

type Option func(*Client)

// WithHTTPClient sets the HTTP client used for every request.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithIDTokenVerifier makes Exchange and Refresh verify the id_token of a
// response when one is present.
func WithIDTokenVerifier(verifier *oidc.IDTokenVerifier) Option {
	return func(c *Client) {
		c.verifier = verifier
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) Option {
	return func(c *Client) {
		c.nowTime = nowFunc
	}
}

func New(ep endpoint.Endpoint, options ...Option) *Client {
	c := &Client{
		endpoint:   ep,
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
		logger:     log.Logger,
		nowTime:    time.Now,
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

// NewVerifier builds an ID token verifier for the realm that fetches signing
// keys from the realm certs endpoint on demand.
func NewVerifier(ctx context.Context, ep endpoint.Endpoint, httpClient *http.Client) *oidc.IDTokenVerifier {
	if httpClient != nil {
		ctx = oidc.ClientContext(ctx, httpClient)
	}
	keySet := oidc.NewRemoteKeySet(ctx, ep.CertsURL())
	return oidc.NewVerifier(ep.IssuerURL(), keySet, &oidc.Config{ClientID: ep.ClientID})
}

func (c *Client) config(req *oauthmodel.TokenRequest) *xoauth2.Config {
	return &xoauth2.Config{
		ClientID:    req.ClientID,
		RedirectURL: req.RedirectURI,
		Endpoint: xoauth2.Endpoint{
			AuthURL:   c.endpoint.AuthorizationURL(),
			TokenURL:  req.TokenURL,
			AuthStyle: xoauth2.AuthStyleInParams,
		},
	}
}

func (c *Client) context(ctx context.Context) context.Context {
	return context.WithValue(ctx, xoauth2.HTTPClient, c.httpClient)
}

// Exchange trades an authorization code for a token set.
func (c *Client) Exchange(ctx context.Context, req *oauthmodel.TokenRequest) (*oauth2.TokenResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("[keycloak.Exchange] %w: %w", autherrors.ErrUnableToExchangeCode, err)
	}
	if req.GrantType != oauth2.AuthorizationCodeGrant {
		return nil, fmt.Errorf("[keycloak.Exchange] grant %q: %w", req.GrantType, autherrors.ErrUnableToExchangeCode)
	}

	token, err := c.config(req).Exchange(c.context(ctx), req.Code)
	if err != nil {
		c.logger.Error().Err(err).Str("token_url", req.TokenURL).Msg("Code exchange failed")
		return nil, fmt.Errorf("[keycloak.Exchange] %w: %w", autherrors.ErrUnableToExchangeCode, err)
	}

	resp, err := c.tokenResponse(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("[keycloak.Exchange] %w: %w", autherrors.ErrUnableToExchangeCode, err)
	}
	return resp, nil
}

// Refresh trades a refresh token for a new token set. A refresh token the
// realm rejects with invalid_grant is reported as autherrors.ErrExpired.
func (c *Client) Refresh(ctx context.Context, req *oauthmodel.TokenRequest) (*oauth2.TokenResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("[keycloak.Refresh] %v: %w", err, autherrors.ErrUnableToCreateRefreshRequest)
	}
	if req.GrantType != oauth2.RefreshTokenGrant {
		return nil, fmt.Errorf("[keycloak.Refresh] grant %q: %w", req.GrantType, autherrors.ErrUnableToCreateRefreshRequest)
	}

	// An empty access token is never valid, so the source always refreshes.
	source := c.config(req).TokenSource(c.context(ctx), &xoauth2.Token{RefreshToken: req.RefreshToken})
	token, err := source.Token()
	if err != nil {
		var retrieveErr *xoauth2.RetrieveError
		if errors.As(err, &retrieveErr) && retrieveErr.ErrorCode == oauth2.ErrorCodeInvalidGrant {
			c.logger.Warn().Str("error_description", retrieveErr.ErrorDescription).Msg("Refresh token rejected")
			return nil, fmt.Errorf("[keycloak.Refresh] %s: %w", retrieveErr.ErrorDescription, autherrors.ErrExpired)
		}
		c.logger.Error().Err(err).Str("token_url", req.TokenURL).Msg("Token refresh failed")
		return nil, fmt.Errorf("[keycloak.Refresh] %w: %w", autherrors.ErrRefreshFailed, err)
	}

	resp, err := c.tokenResponse(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("[keycloak.Refresh] %w: %w", autherrors.ErrRefreshFailed, err)
	}
	return resp, nil
}

// EndSession ends the realm SSO session the refresh token belongs to.
func (c *Client) EndSession(ctx context.Context, logoutURL, clientID, refreshToken string) error {
	form := url.Values{
		"client_id":     {clientID},
		"refresh_token": {refreshToken},
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, logoutURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("[keycloak.EndSession] %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("[keycloak.EndSession] %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		return fmt.Errorf("[keycloak.EndSession] logout returned %s", httpResp.Status)
	}
	return nil
}

// tokenResponse rebuilds the Keycloak token response from an oauth2 token.
// Keycloak specific members are only reachable through Extra.
func (c *Client) tokenResponse(ctx context.Context, token *xoauth2.Token) (*oauth2.TokenResponse, error) {
	resp := &oauth2.TokenResponse{
		AccessToken:  token.AccessToken,
		TokenType:    token.TokenType,
		RefreshToken: token.RefreshToken,
	}

	if v, ok := extraInt(token, "expires_in"); ok {
		resp.ExpiresIn = v
	} else if !token.Expiry.IsZero() {
		resp.ExpiresIn = int64(math.Round(token.Expiry.Sub(c.nowTime()).Seconds()))
	}
	if v, ok := extraInt(token, "refresh_expires_in"); ok {
		resp.RefreshExpiresIn = v
	} else {
		return nil, fmt.Errorf("refresh_expires_in missing: %w", autherrors.ErrMalformedTokenResponse)
	}
	if v, ok := extraInt(token, "not-before-policy"); ok {
		resp.NotBeforePolicy = &v
	}
	if s, ok := token.Extra("session_state").(string); ok {
		resp.SessionState = utils.NonZeroPtr(s)
	}
	if s, ok := token.Extra("scope").(string); ok {
		resp.Scope = s
	}

	if idToken, ok := token.Extra("id_token").(string); ok && idToken != "" {
		resp.IDToken = idToken
		if c.verifier != nil {
			if _, err := c.verifier.Verify(ctx, idToken); err != nil {
				return nil, fmt.Errorf("id token verification: %w", err)
			}
		}
	}
	return resp, nil
}

// extraInt reads a numeric token response member. Depending on the response
// encoding it arrives as a float64, an int64, a json.Number or a string.
func extraInt(token *xoauth2.Token, key string) (int64, bool) {
	switch v := token.Extra(key).(type) {
	case float64:
		if v != math.Trunc(v) {
			return 0, false
		}
		return int64(v), true
	case int64:
		return v, true
	case int:
		return int64(v), true
	case json.Number:
		n, err := v.Int64()
		return n, err == nil
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		return n, err == nil
	}
	return 0, false
}
