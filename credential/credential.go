package credential

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/go-sso-client/autherrors"
	"github.com/jrsteele09/go-sso-client/internal/utils"
	"github.com/jrsteele09/go-sso-client/oauth2"
)

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

// State is the lifecycle position of a credential at a given instant.
type State int

const (
	StateValid       State = iota + 1 // access token usable
	StateRefreshable                  // access token expired, refresh token usable
	StateExpired                      // both expired, re-authentication required
)

func (s State) String() string {
	switch s {
	case StateValid:
		return "valid"
	case StateRefreshable:
		return "refreshable"
	case StateExpired:
		return "expired"
	}
	return "unknown"
}

// Credential is one issued token set plus the instants its two tokens
// expire. It is immutable: a refresh produces a new Credential.
//
// Nothing enforces refreshExpiresAt >= accessExpiresAt; providers are free to
// send a refresh lifetime shorter than the access lifetime.
type Credential struct {
	accessToken      string
	tokenType        string
	refreshToken     string
	sessionState     string
	expiresIn        int64 // seconds, as issued
	refreshExpiresIn int64 // seconds, as issued
	notBeforePolicy  int64
	accessExpiresAt  time.Time
	refreshExpiresAt time.Time
}

// FromTokenResponse builds a Credential from a fresh token endpoint response.
// Expiry instants are now plus the relative lifetimes in the response.
func FromTokenResponse(resp *oauth2.TokenResponse, now time.Time) (*Credential, error) {
	if resp == nil {
		return nil, fmt.Errorf("[credential.FromTokenResponse] nil response: %w", autherrors.ErrMalformedTokenResponse)
	}
	if missing := missingFields(
		[2]string{KeyAccessToken, resp.AccessToken},
		[2]string{KeyTokenType, resp.TokenType},
		[2]string{KeyRefreshToken, resp.RefreshToken},
	); len(missing) > 0 {
		return nil, fmt.Errorf("[credential.FromTokenResponse] missing %s: %w", strings.Join(missing, ", "), autherrors.ErrMalformedTokenResponse)
	}
	if !validLifetime(resp.ExpiresIn) || !validLifetime(resp.RefreshExpiresIn) {
		return nil, fmt.Errorf("[credential.FromTokenResponse] lifetime out of range: %w", autherrors.ErrMalformedTokenResponse)
	}

	issued := normalise(now)
	return &Credential{
		accessToken:      resp.AccessToken,
		tokenType:        resp.TokenType,
		refreshToken:     resp.RefreshToken,
		sessionState:     utils.Value(resp.SessionState),
		expiresIn:        resp.ExpiresIn,
		refreshExpiresIn: resp.RefreshExpiresIn,
		notBeforePolicy:  utils.Value(resp.NotBeforePolicy),
		accessExpiresAt:  issued.Add(time.Duration(resp.ExpiresIn) * time.Second),
		refreshExpiresAt: issued.Add(time.Duration(resp.RefreshExpiresIn) * time.Second),
	}, nil
}

// maxLifetime is the largest lifetime in seconds a time.Duration can hold.
const maxLifetime = math.MaxInt64 / int64(time.Second)

func validLifetime(seconds int64) bool {
	return seconds >= 0 && seconds <= maxLifetime
}

// missingFields returns the keys of the {key, value} pairs with blank values.
func missingFields(pairs ...[2]string) []string {
	var missing []string
	for _, p := range pairs {
		if strings.TrimSpace(p[1]) == "" {
			missing = append(missing, p[0])
		}
	}
	return missing
}

// normalise drops sub-millisecond precision and the monotonic reading so that
// instants survive the persisted string form unchanged.
func normalise(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}

func (c *Credential) AccessToken() string        { return c.accessToken }
func (c *Credential) TokenType() string          { return c.tokenType }
func (c *Credential) RefreshToken() string       { return c.refreshToken }
func (c *Credential) SessionState() string       { return c.sessionState }
func (c *Credential) NotBeforePolicy() int64     { return c.notBeforePolicy }
func (c *Credential) AccessExpiresAt() time.Time { return c.accessExpiresAt }

func (c *Credential) RefreshExpiresAt() time.Time { return c.refreshExpiresAt }

// ExpiresIn is the access token lifetime the credential was issued with.
func (c *Credential) ExpiresIn() time.Duration {
	return time.Duration(c.expiresIn) * time.Second
}

// RefreshExpiresIn is the refresh token lifetime the credential was issued with.
func (c *Credential) RefreshExpiresIn() time.Duration {
	return time.Duration(c.refreshExpiresIn) * time.Second
}

// AuthorizationHeader is the value for an HTTP Authorization header.
func (c *Credential) AuthorizationHeader() string {
	return c.tokenType + " " + c.accessToken
}

func (c *Credential) IsAccessTokenExpiredAt(now time.Time) bool {
	return now.After(c.accessExpiresAt)
}

func (c *Credential) IsRefreshTokenExpiredAt(now time.Time) bool {
	return now.After(c.refreshExpiresAt)
}

func (c *Credential) IsValidAt(now time.Time) bool {
	return !c.IsAccessTokenExpiredAt(now)
}

func (c *Credential) CanRefreshAt(now time.Time) bool {
	return c.IsAccessTokenExpiredAt(now) && !c.IsRefreshTokenExpiredAt(now)
}

// IsExpiredAt is true only when both tokens are dead. A credential that can
// still be refreshed is neither valid nor expired.
func (c *Credential) IsExpiredAt(now time.Time) bool {
	return c.IsAccessTokenExpiredAt(now) && c.IsRefreshTokenExpiredAt(now)
}

// StateAt returns exactly one of StateValid, StateRefreshable, StateExpired.
func (c *Credential) StateAt(now time.Time) State {
	switch {
	case c.IsValidAt(now):
		return StateValid
	case c.CanRefreshAt(now):
		return StateRefreshable
	default:
		return StateExpired
	}
}

func (c *Credential) IsAccessTokenExpired() bool  { return c.IsAccessTokenExpiredAt(NowTimeFunc()) }
func (c *Credential) IsRefreshTokenExpired() bool { return c.IsRefreshTokenExpiredAt(NowTimeFunc()) }
func (c *Credential) IsValid() bool               { return c.IsValidAt(NowTimeFunc()) }
func (c *Credential) CanRefresh() bool            { return c.CanRefreshAt(NowTimeFunc()) }
func (c *Credential) IsExpired() bool             { return c.IsExpiredAt(NowTimeFunc()) }
func (c *Credential) State() State                { return c.StateAt(NowTimeFunc()) }

// AccessTokenClaims decodes the access token payload without verifying its
// signature. Only for display and diagnostics; the resource server is the one
// that verifies.
func (c *Credential) AccessTokenClaims() (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(c.accessToken, claims); err != nil {
		return nil, fmt.Errorf("[Credential.AccessTokenClaims] %w", err)
	}
	return claims, nil
}

// Subject returns the "sub" claim of the access token, or "" when the token
// is not a readable JWT.
func (c *Credential) Subject() string {
	claims, err := c.AccessTokenClaims()
	if err != nil {
		return ""
	}
	sub, _ := claims.GetSubject()
	return sub
}
