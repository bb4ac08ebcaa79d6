package sessionfake

import (
	"context"
	"fmt"
	"sync"

	"github.com/jrsteele09/go-sso-client/internal/utils"
	"github.com/jrsteele09/go-sso-client/oauth2"
	"github.com/jrsteele09/go-sso-client/oauthmodel"
	"github.com/jrsteele09/go-sso-client/session"
)

var (
	_ session.TokenExchanger = (*Exchanger)(nil)
	_ session.SessionEnder   = (*Exchanger)(nil)
)

// Exchanger is a TokenExchanger that issues numbered token sets and records
// every request. ExchangeFunc and RefreshFunc, when set, replace the default
// behaviour.
type Exchanger struct {
	ExchangeFunc   func(ctx context.Context, req *oauthmodel.TokenRequest) (*oauth2.TokenResponse, error)
	RefreshFunc    func(ctx context.Context, req *oauthmodel.TokenRequest) (*oauth2.TokenResponse, error)
	EndSessionFunc func(ctx context.Context, logoutURL, clientID, refreshToken string) error

	ExpiresIn        int64
	RefreshExpiresIn int64

	lock        sync.Mutex
	issued      int
	exchanges   []oauthmodel.TokenRequest
	refreshes   []oauthmodel.TokenRequest
	endSessions []string
}

func NewExchanger() *Exchanger {
	return &Exchanger{
		ExpiresIn:        300,
		RefreshExpiresIn: 1800,
	}
}

// NextResponse issues the next numbered token set.
func (e *Exchanger) NextResponse() *oauth2.TokenResponse {
	e.lock.Lock()
	defer e.lock.Unlock()
	e.issued++
	return &oauth2.TokenResponse{
		AccessToken:      fmt.Sprintf("access-%d", e.issued),
		TokenType:        "Bearer",
		RefreshToken:     fmt.Sprintf("refresh-%d", e.issued),
		SessionState:     utils.Ptr("session-state"),
		ExpiresIn:        e.ExpiresIn,
		RefreshExpiresIn: e.RefreshExpiresIn,
		NotBeforePolicy:  utils.Ptr(int64(0)),
	}
}

func (e *Exchanger) Exchange(ctx context.Context, req *oauthmodel.TokenRequest) (*oauth2.TokenResponse, error) {
	e.lock.Lock()
	e.exchanges = append(e.exchanges, *req)
	fn := e.ExchangeFunc
	e.lock.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}
	return e.NextResponse(), nil
}

func (e *Exchanger) Refresh(ctx context.Context, req *oauthmodel.TokenRequest) (*oauth2.TokenResponse, error) {
	e.lock.Lock()
	e.refreshes = append(e.refreshes, *req)
	fn := e.RefreshFunc
	e.lock.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}
	return e.NextResponse(), nil
}

func (e *Exchanger) EndSession(ctx context.Context, logoutURL, clientID, refreshToken string) error {
	e.lock.Lock()
	e.endSessions = append(e.endSessions, refreshToken)
	fn := e.EndSessionFunc
	e.lock.Unlock()

	if fn != nil {
		return fn(ctx, logoutURL, clientID, refreshToken)
	}
	return nil
}

func (e *Exchanger) Exchanges() []oauthmodel.TokenRequest {
	e.lock.Lock()
	defer e.lock.Unlock()
	return append([]oauthmodel.TokenRequest(nil), e.exchanges...)
}

func (e *Exchanger) Refreshes() []oauthmodel.TokenRequest {
	e.lock.Lock()
	defer e.lock.Unlock()
	return append([]oauthmodel.TokenRequest(nil), e.refreshes...)
}

// EndedSessions returns the refresh tokens passed to EndSession.
func (e *Exchanger) EndedSessions() []string {
	e.lock.Lock()
	defer e.lock.Unlock()
	return append([]string(nil), e.endSessions...)
}
