package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/edusync/edusync/internal/apiclient"
	"github.com/edusync/edusync/internal/diag"
	"github.com/edusync/edusync/internal/tokenstore"
)

var (
	// ErrInvalidCredentials is returned by Login when the backend rejects
	// the email/password pair.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrMalformedLogin is returned when a login response lacks a token or user.
	ErrMalformedLogin = errors.New("login response missing token or user")
)

// API is the subset of apiclient.Client used by the manager.
type API interface {
	Do(ctx context.Context, req apiclient.Request, out any) error
}

// MetricsRecorder is an optional sink for session metrics.
type MetricsRecorder interface {
	ObserveTransition(from, to string)
	IncAuthFailure(kind string)
}

type loginResponse struct {
	Token string `json:"token"`
	User  *User  `json:"user"`
}

// Manager is the single owner of the session state. It is safe for
// concurrent use; callers read it through Session.
type Manager struct {
	api     API
	tokens  tokenstore.Store
	sink    diag.Sink
	metrics MetricsRecorder
	logger  *slog.Logger

	mu    sync.RWMutex
	state Session
	// epoch changes on every login, logout or invalidation so that a
	// revalidation started earlier cannot overwrite a newer decision.
	epoch uint64
}

// NewManager creates a Manager in the Verifying state; call Start to
// resolve it.
func NewManager(api API, tokens tokenstore.Store, sink diag.Sink) *Manager {
	if sink == nil {
		sink = diag.NewLogSink(nil)
	}
	return &Manager{
		api:    api,
		tokens: tokens,
		sink:   sink,
		logger: slog.Default(),
		state:  Session{Status: Verifying},
	}
}

// SetMetrics sets the optional metrics recorder.
func (m *Manager) SetMetrics(r MetricsRecorder) {
	m.metrics = r
}

// SetLogger replaces the logger.
func (m *Manager) SetLogger(l *slog.Logger) {
	m.logger = l
}

// Session returns the current snapshot.
func (m *Manager) Session() Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Start resolves the initial state: Unauthenticated when no token is stored,
// otherwise the outcome of Revalidate.
func (m *Manager) Start(ctx context.Context) Session {
	return m.Revalidate(ctx)
}

// Login exchanges credentials for a token. On failure nothing changes.
func (m *Manager) Login(ctx context.Context, email, password string) (*User, error) {
	var resp loginResponse
	err := m.api.Do(ctx, apiclient.Request{
		Method:    http.MethodPost,
		Path:      "/login",
		Body:      map[string]string{"email": email, "password": password},
		Anonymous: true,
	}, &resp)
	if err != nil {
		switch apiclient.StatusOf(err) {
		case http.StatusUnauthorized, http.StatusUnprocessableEntity, http.StatusForbidden:
			m.incAuthFailure("invalid_credentials")
			return nil, fmt.Errorf("%w: %w", ErrInvalidCredentials, err)
		case http.StatusTooManyRequests:
			m.incAuthFailure("throttled")
			return nil, fmt.Errorf("login: %w", err)
		}
		m.incAuthFailure("error")
		return nil, fmt.Errorf("login: %w", err)
	}
	if strings.TrimSpace(resp.Token) == "" || resp.User == nil {
		m.incAuthFailure("malformed")
		return nil, ErrMalformedLogin
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.tokens.Save(ctx, resp.Token); err != nil {
		return nil, fmt.Errorf("saving token: %w", err)
	}
	user := *resp.User
	m.epoch++
	m.transitionLocked(Session{Status: Authenticated, User: &user})
	m.logger.Info("signed in", "user_id", user.ID, "role", user.Role)
	return &user, nil
}

// Logout forgets the token and the user. It always succeeds; a failure to
// clear the store is reported to the diagnostics sink.
func (m *Manager) Logout(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.epoch++
	if err := m.tokens.Clear(ctx); err != nil {
		diag.Emit(ctx, m.sink, "session.logout", err)
	}
	m.transitionLocked(Session{Status: Unauthenticated})
}

// Revalidate asks the backend who the stored token belongs to. Any failure
// means the session is invalid: the token is cleared and the state becomes
// Unauthenticated. The failure goes to the diagnostics sink, not the caller.
func (m *Manager) Revalidate(ctx context.Context) Session {
	token, err := m.tokens.Read(ctx)
	if err != nil {
		diag.Emit(ctx, m.sink, "session.revalidate", fmt.Errorf("reading token: %w", err))
		return m.reset(ctx, m.currentEpoch())
	}
	if token == "" {
		return m.reset(ctx, m.currentEpoch())
	}

	m.mu.Lock()
	epoch := m.epoch
	if m.state.Status != Verifying {
		m.transitionLocked(Session{Status: Verifying, User: m.state.User})
	}
	m.mu.Unlock()

	var user User
	if err := m.api.Do(ctx, apiclient.Request{Method: http.MethodGet, Path: "/me"}, &user); err != nil {
		diag.Emit(ctx, m.sink, "session.revalidate", err)
		m.incAuthFailure("session_invalid")
		return m.reset(ctx, epoch)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.epoch != epoch {
		return m.state
	}
	m.transitionLocked(Session{Status: Authenticated, User: &user})
	return m.state
}

// Invalidate is called when an authenticated request is rejected with 401.
// It clears the token and drops to Unauthenticated.
func (m *Manager) Invalidate(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state.Status == Unauthenticated {
		return
	}
	verifying := m.state.Status == Verifying
	m.epoch++
	if err := m.tokens.Clear(ctx); err != nil {
		diag.Emit(ctx, m.sink, "session.invalidate", err)
	}
	// A rejected /me during Revalidate is reported there.
	if !verifying {
		diag.Emit(ctx, m.sink, "session.invalidate", errors.New("credentials rejected by backend"))
	}
	m.transitionLocked(Session{Status: Unauthenticated})
}

func (m *Manager) currentEpoch() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.epoch
}

// reset clears the token and user unless a newer login or logout happened
// since epoch was read.
func (m *Manager) reset(ctx context.Context, epoch uint64) Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.epoch != epoch {
		return m.state
	}
	if err := m.tokens.Clear(ctx); err != nil {
		diag.Emit(ctx, m.sink, "session.revalidate", fmt.Errorf("clearing token: %w", err))
	}
	m.transitionLocked(Session{Status: Unauthenticated})
	return m.state
}

// transitionLocked must be called with m.mu held.
func (m *Manager) transitionLocked(next Session) {
	prev := m.state.Status
	m.state = next
	if prev != next.Status {
		m.logger.Debug("session transition", "from", prev.String(), "to", next.Status.String())
		if m.metrics != nil {
			m.metrics.ObserveTransition(prev.String(), next.Status.String())
		}
	}
}

func (m *Manager) incAuthFailure(kind string) {
	if m.metrics != nil {
		m.metrics.IncAuthFailure(kind)
	}
}
