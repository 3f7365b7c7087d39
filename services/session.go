package services

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"go.uber.org/zap"

	"siem-console/models"
	"siem-console/system"
)

// Status is the authentication status of the console
type Status string

const (
	StatusAnonymous      Status = "anonymous"
	StatusAuthenticating Status = "authenticating"
	StatusAuthenticated  Status = "authenticated"
	StatusError          Status = "error"
)

// ConnectivityMessage is shown when the backend cannot be reached
const ConnectivityMessage = "Network error. Please check if the backend server is running."

// SessionState is a point-in-time copy of the session
type SessionState struct {
	Status    Status           `json:"status"`
	Error     string           `json:"error,omitempty"`
	User      *models.Identity `json:"user,omitempty"`
	ExpiresAt *time.Time       `json:"expiresAt,omitempty"`
}

// TransitionFunc observes status changes. It runs after the change is
// committed and outside the session lock.
type TransitionFunc func(from, to Status)

// Session owns authentication status and is the only writer of the
// credential store. Status and credential always change under one lock,
// so a token is present exactly when the status is authenticated.
//
// Login and Verify must not overlap; a call arriving while another attempt
// is authenticating is refused with ErrInvalidTransition.
type Session struct {
	mu        sync.Mutex
	status    Status
	errMsg    string
	expiresAt *time.Time
	gen       uint64 // bumped by every attempt and logout; stale results are dropped

	store     *CredentialStore
	gw        *Gateway
	listeners []TransitionFunc
	log       *zap.SugaredLogger
}

// NewSession builds the state machine and wires the gateway to read the
// store and report authorization failures back here.
func NewSession(store *CredentialStore, gw *Gateway) *Session {
	s := &Session{
		status: StatusAnonymous,
		store:  store,
		gw:     gw,
		log:    system.Named("session"),
	}
	gw.SetTokenSource(store)
	gw.SetUnauthorizedHandler(s.Logout)
	return s
}

// OnTransition registers a status listener
func (s *Session) OnTransition(fn TransitionFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Status returns the current status
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Token returns the current bearer token, "" unless authenticated
func (s *Session) Token() string {
	return s.store.Token()
}

// State returns a copy of the whole session
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := SessionState{Status: s.status, Error: s.errMsg}
	if s.status == StatusAuthenticated {
		st.User = s.store.Credential().User
		if s.expiresAt != nil {
			t := *s.expiresAt
			st.ExpiresAt = &t
		}
	}
	return st
}

// Initialize verifies a persisted token, if any. Called once at startup.
func (s *Session) Initialize(ctx context.Context) bool {
	cred, err := s.store.persisted()
	if err != nil {
		s.log.Warnw("could not read persisted credential", "error", err)
		return false
	}
	if !cred.Present() {
		return false
	}
	s.log.Infow("found persisted token, verifying")
	return s.Verify(ctx)
}

// Login authenticates with email and password. Valid from anonymous or
// error. A rejection moves to error with the server's message and is
// never retried.
func (s *Session) Login(ctx context.Context, email, password string) error {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return validationError("Please fill in all fields")
	}

	gen, ok := s.begin(StatusAnonymous, StatusError)
	if !ok {
		return ErrInvalidTransition
	}

	var resp models.AuthResponse
	err := s.gw.Do(ctx, http.MethodPost, EndpointLogin, models.LoginRequest{Email: email, Password: password}, &resp)
	if err == nil && (!resp.Success || resp.Token == "") {
		msg := resp.Message
		if msg == "" {
			msg = "Login failed"
		}
		err = &Error{Kind: KindAuthRejected, Status: http.StatusOK, Message: msg}
	}
	if err != nil {
		msg := Display(err)
		if errors.Is(err, ErrNetwork) {
			msg = ConnectivityMessage
		}
		s.fail(gen, msg)
		s.log.Warnw("login failed", "email", email, "kind", KindOf(err), "error", msg)
		return err
	}

	user := resp.Admin
	if user == nil {
		user = &models.Identity{}
	}
	if user.Email == "" {
		user.Email = email
	}
	if err := s.establish(gen, models.Credential{Token: resp.Token, User: user}); err != nil {
		return err
	}
	s.log.Infow("logged in", "email", user.Email)
	return nil
}

// Verify presents the persisted token to the backend. Success
// authenticates without a password; rejection or any failure logs out,
// since a token that cannot be verified is treated as invalid.
// On an already authenticated session it does nothing.
func (s *Session) Verify(ctx context.Context) bool {
	cred, err := s.store.persisted()
	if err != nil {
		s.log.Warnw("could not read persisted credential", "error", err)
		s.Logout()
		return false
	}
	if !cred.Present() {
		return s.Status() == StatusAuthenticated
	}

	s.mu.Lock()
	if s.status == StatusAuthenticated {
		s.mu.Unlock()
		return true
	}
	s.mu.Unlock()

	gen, ok := s.begin(StatusAnonymous, StatusError)
	if !ok {
		return false
	}

	var resp models.AuthResponse
	err = s.gw.Do(ctx, http.MethodPost, EndpointVerify, nil, &resp, WithBearer(cred.Token))
	if err != nil || !resp.Success {
		s.log.Infow("persisted token not accepted, logging out", "error", Display(err), "message", resp.Message)
		s.Logout()
		return false
	}

	user := resp.Admin
	if user == nil {
		user = cred.User
	}
	if user == nil {
		user = &models.Identity{}
	}
	if err := s.establish(gen, models.Credential{Token: cred.Token, User: user}); err != nil {
		s.Logout()
		return false
	}
	s.log.Infow("session restored", "email", user.Email)
	return true
}

// Logout clears the credential and returns to anonymous from any state.
// Idempotent. An attempt still in flight has its result discarded.
func (s *Session) Logout() {
	s.mu.Lock()
	from := s.status
	s.gen++
	if err := s.store.clear(); err != nil {
		s.log.Errorw("failed to clear persisted credential", "error", err)
	}
	s.status = StatusAnonymous
	s.errMsg = ""
	s.expiresAt = nil
	s.mu.Unlock()

	if from != StatusAnonymous {
		s.log.Infow("logged out", "from", from)
		s.notify(from, StatusAnonymous)
	}
}

// ClearError moves error back to anonymous; otherwise a no-op
func (s *Session) ClearError() {
	s.mu.Lock()
	if s.status != StatusError {
		s.mu.Unlock()
		return
	}
	s.status = StatusAnonymous
	s.errMsg = ""
	s.mu.Unlock()
	s.notify(StatusError, StatusAnonymous)
}

// begin moves to authenticating if the current status is one of allowed
func (s *Session) begin(allowed ...Status) (uint64, bool) {
	s.mu.Lock()
	from := s.status
	permitted := false
	for _, st := range allowed {
		if from == st {
			permitted = true
			break
		}
	}
	if !permitted {
		s.mu.Unlock()
		return 0, false
	}
	s.gen++
	gen := s.gen
	s.status = StatusAuthenticating
	s.errMsg = ""
	s.mu.Unlock()

	s.notify(from, StatusAuthenticating)
	return gen, true
}

// establish commits a successful attempt unless it went stale
func (s *Session) establish(gen uint64, cred models.Credential) error {
	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return validationError("authentication attempt was cancelled")
	}
	if err := s.store.store(cred); err != nil {
		_ = s.store.clear()
		s.status = StatusError
		s.errMsg = "Could not save the session locally"
		s.mu.Unlock()
		s.log.Errorw("failed to persist credential", "error", err)
		s.notify(StatusAuthenticating, StatusError)
		return &Error{Kind: KindValidation, Message: "Could not save the session locally", Err: err}
	}
	s.status = StatusAuthenticated
	s.errMsg = ""
	s.expiresAt = tokenExpiry(cred.Token)
	s.mu.Unlock()

	s.notify(StatusAuthenticating, StatusAuthenticated)
	return nil
}

// fail commits a failed attempt unless it went stale
func (s *Session) fail(gen uint64, msg string) {
	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return
	}
	if err := s.store.clear(); err != nil {
		s.log.Errorw("failed to clear persisted credential", "error", err)
	}
	from := s.status
	s.status = StatusError
	s.errMsg = msg
	s.expiresAt = nil
	s.mu.Unlock()

	s.notify(from, StatusError)
}

func (s *Session) notify(from, to Status) {
	s.mu.Lock()
	listeners := make([]TransitionFunc, len(s.listeners))
	copy(listeners, s.listeners)
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(from, to)
	}
}

// tokenExpiry reads the exp claim without verifying the signature; the
// token is opaque to the console, so anything unparseable yields nil.
func tokenExpiry(token string) *time.Time {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil
	}
	var exp time.Time
	switch v := claims["exp"].(type) {
	case float64:
		exp = time.Unix(int64(v), 0)
	case int64:
		exp = time.Unix(v, 0)
	default:
		return nil
	}
	return &exp
}
