package services

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"siem-console/models"
)

const (
	adminEmail    = "admin@honeypot-siem.com"
	adminPassword = "SecureAdmin1234!"
)

type sessionStack struct {
	session   *Session
	store     *CredentialStore
	slot      DurableSlot
	gw        *Gateway
	transport *flakyTransport
}

func newSessionStack(t *testing.T, h http.Handler, slot DurableSlot) *sessionStack {
	t.Helper()
	if slot == nil {
		slot = NewMemorySlot()
	}
	srv := newBackend(t, h)
	tr := newFlakyTransport()
	gw := newTestGateway(srv, tr)
	store := NewCredentialStore(slot)
	return &sessionStack{session: NewSession(store, gw), store: store, slot: slot, gw: gw, transport: tr}
}

func loginHandler(token string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req models.LoginRequest
		_ = decodeBody(r, &req)
		if req.Email != adminEmail || req.Password != adminPassword {
			writeJSON(w, 401, map[string]any{"success": false, "message": "Invalid credentials"})
			return
		}
		writeJSON(w, 200, map[string]any{
			"success": true,
			"token":   token,
			"admin":   map[string]any{"email": adminEmail},
		})
	}
}

func backendMux(token string) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc(EndpointLogin, loginHandler(token))
	mux.HandleFunc(EndpointVerify, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+token {
			writeJSON(w, 401, map[string]any{"success": false, "message": "Invalid or expired token"})
			return
		}
		writeJSON(w, 200, map[string]any{"success": true, "admin": map[string]any{"email": adminEmail, "role": "admin"}})
	})
	mux.HandleFunc(EndpointDashboard, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+token {
			writeJSON(w, 401, map[string]any{"message": "Invalid or expired token"})
			return
		}
		writeJSON(w, 200, dashboardPayload(3, 12))
	})
	return mux
}

func TestSession_LoginScenario(t *testing.T) {
	st := newSessionStack(t, backendMux("abc"), nil)

	err := st.session.Login(context.Background(), adminEmail, adminPassword)

	require.NoError(t, err)
	assert.Equal(t, StatusAuthenticated, st.session.Status())
	assert.Equal(t, "abc", st.store.Token())
	state := st.session.State()
	require.NotNil(t, state.User)
	assert.Equal(t, adminEmail, state.User.Email)

	persisted, err := st.slot.Load()
	require.NoError(t, err)
	assert.Equal(t, "abc", persisted.Token)
}

func TestSession_LoginRejected(t *testing.T) {
	st := newSessionStack(t, backendMux("abc"), nil)

	err := st.session.Login(context.Background(), adminEmail, "wrong")

	assert.ErrorIs(t, err, ErrAuthRejected)
	state := st.session.State()
	assert.Equal(t, StatusError, state.Status)
	assert.Equal(t, "Invalid credentials", state.Error)
	assert.Nil(t, state.User)
	assert.Empty(t, st.store.Token())

	st.session.ClearError()
	assert.Equal(t, StatusAnonymous, st.session.Status())
	assert.Empty(t, st.session.State().Error)
}

func TestSession_LoginUnsuccessfulBody(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc(EndpointLogin, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, map[string]any{"success": false})
	})
	st := newSessionStack(t, mux, nil)

	err := st.session.Login(context.Background(), adminEmail, adminPassword)

	assert.ErrorIs(t, err, ErrAuthRejected)
	assert.Equal(t, "Login failed", st.session.State().Error)
}

func TestSession_LoginNetworkError(t *testing.T) {
	st := newSessionStack(t, backendMux("abc"), nil)
	st.transport.fail.Store(true)

	err := st.session.Login(context.Background(), adminEmail, adminPassword)

	assert.ErrorIs(t, err, ErrNetwork)
	assert.Equal(t, StatusError, st.session.Status())
	assert.Equal(t, ConnectivityMessage, st.session.State().Error)
}

func TestSession_LoginValidation(t *testing.T) {
	var hits atomic.Int32
	st := newSessionStack(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}), nil)

	for _, creds := range [][2]string{{"", adminPassword}, {adminEmail, ""}, {"   ", "x"}} {
		err := st.session.Login(context.Background(), creds[0], creds[1])
		assert.ErrorIs(t, err, ErrValidation)
		assert.Equal(t, "Please fill in all fields", Display(err))
	}
	assert.Equal(t, StatusAnonymous, st.session.Status())
	assert.Zero(t, hits.Load())
}

func TestSession_LoginWhileAuthenticated(t *testing.T) {
	st := newSessionStack(t, backendMux("abc"), nil)
	require.NoError(t, st.session.Login(context.Background(), adminEmail, adminPassword))

	err := st.session.Login(context.Background(), adminEmail, adminPassword)

	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, StatusAuthenticated, st.session.Status())
}

func TestSession_TokenPresentIffAuthenticated(t *testing.T) {
	st := newSessionStack(t, backendMux("abc"), nil)

	var violations atomic.Int32
	st.session.OnTransition(func(from, to Status) {
		if (to == StatusAuthenticated) != (st.store.Token() != "") {
			violations.Add(1)
		}
	})

	ctx := context.Background()
	for _, pw := range []string{"bad", adminPassword, "", "bad", "bad", adminPassword} {
		if st.session.Status() == StatusAuthenticated {
			st.session.Logout()
		}
		_ = st.session.Login(ctx, adminEmail, pw)

		status := st.session.Status()
		assert.NotEqual(t, StatusAuthenticating, status)
		assert.Equal(t, status == StatusAuthenticated, st.store.Token() != "", "password %q", pw)
	}
	assert.Zero(t, violations.Load())
}

func TestSession_LogoutIdempotent(t *testing.T) {
	st := newSessionStack(t, backendMux("abc"), nil)
	require.NoError(t, st.session.Login(context.Background(), adminEmail, adminPassword))

	var toAnonymous atomic.Int32
	st.session.OnTransition(func(from, to Status) {
		if to == StatusAnonymous {
			toAnonymous.Add(1)
		}
	})

	st.session.Logout()
	once := st.session.State()
	st.session.Logout()
	twice := st.session.State()

	assert.Equal(t, once, twice)
	assert.Equal(t, StatusAnonymous, twice.Status)
	assert.Empty(t, st.store.Token())
	assert.Equal(t, int32(1), toAnonymous.Load())

	persisted, err := st.slot.Load()
	require.NoError(t, err)
	assert.False(t, persisted.Present())
}

func TestSession_UnauthorizedResponseLogsOut(t *testing.T) {
	mux := backendMux("abc")
	mux.HandleFunc("/api/other", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 401, map[string]any{"message": "token revoked"})
	})
	st := newSessionStack(t, mux, nil)
	require.NoError(t, st.session.Login(context.Background(), adminEmail, adminPassword))

	_, err := st.gw.Request(context.Background(), http.MethodGet, "/api/other", nil)

	assert.ErrorIs(t, err, ErrAuthExpired)
	assert.Equal(t, StatusAnonymous, st.session.Status())
	assert.Empty(t, st.store.Token())
	persisted, _ := st.slot.Load()
	assert.False(t, persisted.Present())
}

func TestSession_InitializeRestoresPersistedToken(t *testing.T) {
	slot := NewMemorySlot()
	require.NoError(t, slot.Save(models.Credential{Token: "abc", User: &models.Identity{Email: adminEmail}}))
	st := newSessionStack(t, backendMux("abc"), slot)

	assert.Empty(t, st.session.Token())
	ok := st.session.Initialize(context.Background())

	assert.True(t, ok)
	assert.Equal(t, StatusAuthenticated, st.session.Status())
	assert.Equal(t, "abc", st.session.Token())
	assert.Equal(t, "admin", st.session.State().User.Role)

	// verifying an authenticated session is a no-op
	assert.True(t, st.session.Verify(context.Background()))
}

func TestSession_InitializeWithoutToken(t *testing.T) {
	var hits atomic.Int32
	st := newSessionStack(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}), nil)

	assert.False(t, st.session.Initialize(context.Background()))
	assert.Equal(t, StatusAnonymous, st.session.Status())
	assert.Zero(t, hits.Load())
}

func TestSession_VerifyFailsClosed(t *testing.T) {
	cases := map[string]func(st *sessionStack){
		"rejected": func(st *sessionStack) {},
		"network":  func(st *sessionStack) { st.transport.fail.Store(true) },
	}
	for name, prepare := range cases {
		t.Run(name, func(t *testing.T) {
			slot := NewMemorySlot()
			require.NoError(t, slot.Save(models.Credential{Token: "revoked", User: &models.Identity{Email: adminEmail}}))
			st := newSessionStack(t, backendMux("abc"), slot)
			prepare(st)

			ok := st.session.Verify(context.Background())

			assert.False(t, ok)
			assert.Equal(t, StatusAnonymous, st.session.Status())
			persisted, _ := slot.Load()
			assert.False(t, persisted.Present())
		})
	}
}

func TestSession_LogoutDuringLoginDiscardsResult(t *testing.T) {
	release := make(chan struct{})
	mux := http.NewServeMux()
	mux.HandleFunc(EndpointLogin, func(w http.ResponseWriter, r *http.Request) {
		<-release
		loginHandler("late")(w, r)
	})
	st := newSessionStack(t, mux, nil)

	done := make(chan error, 1)
	go func() { done <- st.session.Login(context.Background(), adminEmail, adminPassword) }()

	require.Eventually(t, func() bool { return st.session.Status() == StatusAuthenticating }, time.Second, 5*time.Millisecond)
	st.session.Logout()
	close(release)

	err := <-done
	assert.Error(t, err)
	assert.Equal(t, StatusAnonymous, st.session.Status())
	assert.Empty(t, st.store.Token())
}

func TestSession_TransitionsObserved(t *testing.T) {
	st := newSessionStack(t, backendMux("abc"), nil)

	var mu sync.Mutex
	var seen [][2]Status
	st.session.OnTransition(func(from, to Status) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, [2]Status{from, to})
	})

	_ = st.session.Login(context.Background(), adminEmail, "bad")
	_ = st.session.Login(context.Background(), adminEmail, adminPassword)
	st.session.Logout()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, [][2]Status{
		{StatusAnonymous, StatusAuthenticating},
		{StatusAuthenticating, StatusError},
		{StatusError, StatusAuthenticating},
		{StatusAuthenticating, StatusAuthenticated},
		{StatusAuthenticated, StatusAnonymous},
	}, seen)
}

func TestSession_ExpiryFromToken(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"exp": exp.Unix()}).SignedString([]byte("k"))
	require.NoError(t, err)
	st := newSessionStack(t, backendMux(token), nil)

	require.NoError(t, st.session.Login(context.Background(), adminEmail, adminPassword))

	state := st.session.State()
	require.NotNil(t, state.ExpiresAt)
	assert.True(t, exp.Equal(*state.ExpiresAt))
	assert.Nil(t, tokenExpiry("opaque-token"))
}

type failingSlot struct{ MemorySlot }

func (f *failingSlot) Save(models.Credential) error { return errors.New("disk full") }

func TestSession_StoreFailureMovesToError(t *testing.T) {
	st := newSessionStack(t, backendMux("abc"), &failingSlot{})

	err := st.session.Login(context.Background(), adminEmail, adminPassword)

	assert.Error(t, err)
	assert.Equal(t, StatusError, st.session.Status())
	assert.Equal(t, "Could not save the session locally", st.session.State().Error)
	assert.Empty(t, st.store.Token())
}
