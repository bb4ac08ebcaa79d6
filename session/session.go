package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-sso-client/autherrors"
	"github.com/jrsteele09/go-sso-client/credential"
	"github.com/jrsteele09/go-sso-client/endpoint"
	"github.com/jrsteele09/go-sso-client/flowstate"
	"github.com/jrsteele09/go-sso-client/oauth2"
	"github.com/jrsteele09/go-sso-client/oauthmodel"
	"github.com/jrsteele09/go-sso-client/securestore"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

const ensureFlightKey = "ensure"

// Session owns the current credential of one application auth context and
// decides, on every call, whether to return it, refresh it or run an
// interactive login. At most one exchange, refresh or logout runs at a time.
type Session struct {
	endpoint  endpoint.Endpoint
	exchanger TokenExchanger
	store     *credential.Store
	flows     flowstate.Repo
	nowTime   func() time.Time
	logger    zerolog.Logger

	mu    sync.RWMutex // guards cache
	cache cache

	// opSem is held for the duration of an exchange, refresh or logout.
	opSem   chan struct{}
	flights singleflight.Group
	waiting atomic.Int32 // callers blocked on an ensure flight
}

// Option configures a Session.
type Option func(*Session)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) Option {
	return func(s *Session) {
		s.nowTime = nowFunc
	}
}

// WithLogger sets the logger, defaulting to the global zerolog logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Session) {
		s.logger = logger
	}
}

// WithFlowStateRepo replaces the SecureStore backed flow state repo.
func WithFlowStateRepo(repo flowstate.Repo) Option {
	return func(s *Session) {
		s.flows = repo
	}
}

// New creates a Session for the endpoint. Nothing is read from the store
// until the credential is first needed.
func New(ep endpoint.Endpoint, exchanger TokenExchanger, secure securestore.SecureStore, options ...Option) (*Session, error) {
	if err := ep.Validate(); err != nil {
		return nil, fmt.Errorf("[session.New] invalid endpoint: %w", err)
	}
	if exchanger == nil {
		return nil, errors.New("[session.New] exchanger is required")
	}
	if secure == nil {
		return nil, errors.New("[session.New] secure store is required")
	}

	s := &Session{
		endpoint:  ep,
		exchanger: exchanger,
		nowTime:   time.Now,
		logger:    log.Logger,
		opSem:     make(chan struct{}, 1),
	}
	for _, opt := range options {
		opt(s)
	}

	s.store = credential.NewStore(secure,
		credential.WithStoreLogger(s.logger),
		credential.WithStoreNowTime(s.nowTime),
	)
	if s.flows == nil {
		s.flows = flowstate.NewSecureRepo(secure)
	}
	return s, nil
}

// Endpoint returns the endpoint the session authenticates against.
func (s *Session) Endpoint() endpoint.Endpoint {
	return s.endpoint
}

// Credential returns the current credential, or nil.
func (s *Session) Credential() *credential.Credential {
	return s.current()
}

// State derives the session state from the current credential and clock.
func (s *Session) State() State {
	return deriveState(s.current(), s.nowTime())
}

// IsAuthenticated reports whether the current access token is usable.
func (s *Session) IsAuthenticated() bool {
	return s.State() == StateValid
}

// CanRefresh reports whether the access token has expired but the refresh
// token has not.
func (s *Session) CanRefresh() bool {
	return s.State() == StateRefreshable
}

// EnsureAuthenticated returns a credential with a usable access token.
//
// A valid credential is returned as is. A refreshable one is refreshed;
// when the refresh cannot be attempted or the provider rejects the refresh
// token, login is used instead. Without a credential, or when both tokens are
// dead, login obtains an authorization code which is exchanged for a new
// credential.
//
// Concurrent callers share one in-flight operation and receive its result.
// A caller whose ctx ends stops waiting; the operation itself runs on the
// ctx and login of the caller that started it. If that caller abandons it, a
// joined caller that is still waiting starts a new operation with its own ctx
// and login.
func (s *Session) EnsureAuthenticated(ctx context.Context, login InteractiveLogin) (*credential.Credential, error) {
	if cred := s.current(); cred != nil && cred.IsValidAt(s.nowTime()) {
		return cred, nil
	}

	for {
		led := false
		ch := s.flights.DoChan(ensureFlightKey, func() (any, error) {
			led = true
			if err := s.acquire(ctx); err != nil {
				return nil, err
			}
			defer s.release()
			return s.ensureLocked(ctx, login)
		})

		s.waiting.Add(1)
		var res singleflight.Result
		select {
		case <-ctx.Done():
			s.waiting.Add(-1)
			return nil, fmt.Errorf("[Session.EnsureAuthenticated] %w", ctx.Err())
		case res = <-ch:
			s.waiting.Add(-1)
		}

		if res.Err == nil {
			return res.Val.(*credential.Credential), nil
		}
		if led || ctx.Err() != nil || !abandoned(res.Err) {
			return nil, res.Err
		}
		s.logger.Debug().Err(res.Err).Msg("Joined operation abandoned by its caller, retrying")
	}
}

// abandoned reports whether err came from the leading caller giving up rather
// than from the operation failing.
func abandoned(err error) bool {
	return autherrors.IsCancelled(err) || errors.Is(err, context.DeadlineExceeded)
}

// Refresh refreshes the current credential now, even if its access token is
// still valid. It does not wait for other operations: if one is in flight it
// returns autherrors.ErrOperationBusy.
func (s *Session) Refresh(ctx context.Context) (*credential.Credential, error) {
	select {
	case s.opSem <- struct{}{}:
	default:
		return nil, fmt.Errorf("[Session.Refresh] %w", autherrors.ErrOperationBusy)
	}
	defer s.release()

	logger := s.opLogger("refresh")
	return s.refreshLocked(ctx, logger, s.current())
}

// Logout removes the credential from the store and from memory and always
// clears the persisted flow state, so it is safe to call in any state and
// more than once. It waits for an in-flight operation to finish first.
//
// When removing the stored credential fails the in-memory credential is kept,
// since it is still the persisted one, and the error wraps
// autherrors.ErrStoreWriteFailed.
func (s *Session) Logout(ctx context.Context) error {
	if err := s.acquire(ctx); err != nil {
		return fmt.Errorf("[Session.Logout] %w", err)
	}
	defer s.release()

	logger := s.opLogger("logout")
	var errs []error

	cred := s.current()
	if cred != nil {
		s.endSession(ctx, logger, cred)
	}
	// also removes a blob that failed to load
	if err := s.store.Clear(); err != nil {
		logger.Error().Err(err).Msg("Unable to remove stored credentials")
		errs = append(errs, err)
	} else if cred != nil {
		s.setCurrent(nil)
	}

	if err := s.flows.Delete(); err != nil {
		logger.Error().Err(err).Msg("Unable to remove auth flow state")
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return fmt.Errorf("[Session.Logout] %w", errors.Join(errs...))
	}
	logger.Info().Msg("Logged out")
	return nil
}

func (s *Session) endSession(ctx context.Context, logger zerolog.Logger, cred *credential.Credential) {
	ender, ok := s.exchanger.(SessionEnder)
	if !ok || cred.IsRefreshTokenExpiredAt(s.nowTime()) {
		return
	}
	if err := ender.EndSession(ctx, s.endpoint.LogoutURL(), s.endpoint.ClientID, cred.RefreshToken()); err != nil {
		logger.Warn().Err(err).Msg("Unable to end provider session")
	}
}

func (s *Session) ensureLocked(ctx context.Context, login InteractiveLogin) (*credential.Credential, error) {
	logger := s.opLogger("ensure")
	cred := s.current()
	state := deriveState(cred, s.nowTime())
	logger.Debug().Stringer("state", state).Msg("Ensuring authentication")

	switch state {
	case StateValid:
		return cred, nil

	case StateRefreshable:
		refreshed, err := s.refreshLocked(ctx, logger, cred)
		if err == nil {
			return refreshed, nil
		}
		if !autherrors.RequiresReauthentication(err) {
			return nil, err
		}
		logger.Info().Err(err).Msg("Refresh not possible, falling back to interactive login")
		if errors.Is(err, autherrors.ErrExpired) {
			s.discardLocked(logger)
		}

	case StateExpired:
		logger.Info().Msg("Credentials expired, discarding before interactive login")
		s.discardLocked(logger)
	}

	return s.authenticateLocked(ctx, logger, login)
}

// refreshLocked trades the refresh token of cred for a new credential.
// Errors wrapping autherrors.ErrCredentialsUnavailable,
// ErrUnableToCreateRefreshRequest or ErrExpired mean the refresh cannot
// succeed; any other error leaves the refresh token worth retrying.
func (s *Session) refreshLocked(ctx context.Context, logger zerolog.Logger, cred *credential.Credential) (*credential.Credential, error) {
	if cred == nil {
		return nil, fmt.Errorf("[Session.refresh] no credential: %w", autherrors.ErrCredentialsUnavailable)
	}
	if cred.IsRefreshTokenExpiredAt(s.nowTime()) {
		return nil, fmt.Errorf("[Session.refresh] %w", autherrors.ErrExpired)
	}

	req, err := s.refreshRequest(cred)
	if err != nil {
		return nil, err
	}

	resp, err := s.exchanger.Refresh(ctx, req)
	if err != nil {
		if autherrors.RequiresReauthentication(err) || errors.Is(err, autherrors.ErrRefreshFailed) {
			return nil, fmt.Errorf("[Session.refresh] %w", err)
		}
		return nil, fmt.Errorf("[Session.refresh] %w: %w", autherrors.ErrRefreshFailed, err)
	}

	next, err := credential.FromTokenResponse(resp, s.nowTime())
	if err != nil {
		return nil, fmt.Errorf("[Session.refresh] %w: %w", autherrors.ErrRefreshFailed, err)
	}
	if err := s.persistLocked(logger, next, oauth2.RefreshTokenGrant); err != nil {
		return nil, fmt.Errorf("[Session.refresh] %w", err)
	}

	logger.Info().Time("expires_at", next.AccessExpiresAt()).Msg("Credentials refreshed")
	return next, nil
}

func (s *Session) refreshRequest(cred *credential.Credential) (*oauthmodel.TokenRequest, error) {
	flow, err := s.flows.Get()
	if err != nil {
		return nil, fmt.Errorf("[Session.refresh] auth flow state: %v: %w", err, autherrors.ErrCredentialsUnavailable)
	}
	if flow.ClientID != s.endpoint.ClientID || flow.TokenURL != s.endpoint.TokenURL() {
		return nil, fmt.Errorf("[Session.refresh] credential issued to %s at %s: %w",
			flow.ClientID, flow.TokenURL, autherrors.ErrUnableToCreateRefreshRequest)
	}

	req := &oauthmodel.TokenRequest{
		GrantType:    oauth2.RefreshTokenGrant,
		TokenURL:     s.endpoint.TokenURL(),
		ClientID:     s.endpoint.ClientID,
		RedirectURI:  s.endpoint.RedirectURI,
		RefreshToken: cred.RefreshToken(),
	}
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("[Session.refresh] %v: %w", err, autherrors.ErrUnableToCreateRefreshRequest)
	}
	return req, nil
}

// authenticateLocked runs the interactive login and exchanges the code. The
// current credential is untouched unless the new one has been persisted.
func (s *Session) authenticateLocked(ctx context.Context, logger zerolog.Logger, login InteractiveLogin) (*credential.Credential, error) {
	if login == nil {
		return nil, fmt.Errorf("[Session.authenticate] no interactive login: %w", autherrors.ErrCredentialsUnavailable)
	}

	code, err := login(ctx, s.endpoint.AuthorizationURL(), s.endpoint.LoginQuery())
	if err != nil {
		if autherrors.IsCancelled(err) {
			logger.Info().Msg("Interactive login cancelled")
			return nil, fmt.Errorf("[Session.authenticate] %w", autherrors.ErrLoginCancelled)
		}
		return nil, fmt.Errorf("[Session.authenticate] interactive login: %w", err)
	}

	req := &oauthmodel.TokenRequest{
		GrantType:   oauth2.AuthorizationCodeGrant,
		TokenURL:    s.endpoint.TokenURL(),
		ClientID:    s.endpoint.ClientID,
		RedirectURI: s.endpoint.RedirectURI,
		Code:        code,
	}
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("[Session.authenticate] %w: %w", autherrors.ErrUnableToExchangeCode, err)
	}

	resp, err := s.exchanger.Exchange(ctx, req)
	if err != nil {
		if errors.Is(err, autherrors.ErrUnableToExchangeCode) {
			return nil, fmt.Errorf("[Session.authenticate] %w", err)
		}
		return nil, fmt.Errorf("[Session.authenticate] %w: %w", autherrors.ErrUnableToExchangeCode, err)
	}

	next, err := credential.FromTokenResponse(resp, s.nowTime())
	if err != nil {
		return nil, fmt.Errorf("[Session.authenticate] %w: %w", autherrors.ErrUnableToExchangeCode, err)
	}
	if err := s.persistLocked(logger, next, oauth2.AuthorizationCodeGrant); err != nil {
		return nil, fmt.Errorf("[Session.authenticate] %w", err)
	}

	logger.Info().Time("expires_at", next.AccessExpiresAt()).Msg("Authenticated")
	return next, nil
}

// persistLocked writes next and its flow state, then makes next current.
// If either write fails the store is put back to the previous credential and
// memory is left unchanged.
func (s *Session) persistLocked(logger zerolog.Logger, next *credential.Credential, grant oauth2.GrantType) error {
	prev := s.current()

	if err := s.store.Save(next); err != nil {
		return err
	}

	flow := &flowstate.AuthFlowState{
		ID:           uuid.NewString(),
		ClientID:     s.endpoint.ClientID,
		TokenURL:     s.endpoint.TokenURL(),
		RedirectURI:  s.endpoint.RedirectURI,
		GrantType:    grant,
		SessionState: next.SessionState(),
		UpdatedAt:    s.nowTime().UTC(),
	}
	if err := s.flows.Upsert(flow); err != nil {
		logger.Error().Err(err).Msg("Unable to store auth flow state, restoring previous credentials")
		s.restoreLocked(logger, prev)
		return err
	}

	s.setCurrent(next)
	return nil
}

func (s *Session) restoreLocked(logger zerolog.Logger, prev *credential.Credential) {
	var err error
	if prev == nil {
		err = s.store.Clear()
	} else {
		err = s.store.Save(prev)
	}
	if err != nil {
		logger.Error().Err(err).Msg("Unable to restore previous credentials")
	}
}

// discardLocked drops a credential that can no longer be refreshed, either
// because both tokens expired or because the provider rejected the refresh
// token.
func (s *Session) discardLocked(logger zerolog.Logger) {
	if err := s.store.Clear(); err != nil {
		logger.Warn().Err(err).Msg("Unable to discard rejected credentials")
		return
	}
	if err := s.flows.Delete(); err != nil {
		logger.Warn().Err(err).Msg("Unable to discard auth flow state")
	}
	s.setCurrent(nil)
}

// current returns the in-memory credential, loading it from the store on
// first use.
func (s *Session) current() *credential.Credential {
	s.mu.RLock()
	if s.cache.status != notLoaded {
		cred := s.cache.cred
		s.mu.RUnlock()
		return cred
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cache.status == notLoaded {
		if cred, ok := s.store.Load(); ok {
			s.cache = cache{status: loaded, cred: cred}
		} else {
			s.cache = cache{status: absent}
		}
	}
	return s.cache.cred
}

func (s *Session) setCurrent(cred *credential.Credential) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cred == nil {
		s.cache = cache{status: absent}
		return
	}
	s.cache = cache{status: loaded, cred: cred}
}

func (s *Session) acquire(ctx context.Context) error {
	select {
	case s.opSem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) release() {
	<-s.opSem
}

func (s *Session) opLogger(op string) zerolog.Logger {
	return s.logger.With().
		Str("op", op).
		Str("op_id", uuid.NewString()).
		Str("realm", s.endpoint.RealmName).
		Str("client_id", s.endpoint.ClientID).
		Logger()
}
