package roster

import (
	"context"
	"strings"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// SessionManager drives the login state machine end to end and publishes
// the resulting session. It owns the only live LoginState; every
// transition goes through it.
//
// Abandoning an attempt (ChangeRole, Logout) while a gateway call is in
// flight does not cancel the call: the completion is simply discarded
// when it no longer belongs to the current attempt, so a torn-down
// screen can never corrupt the machine.
type SessionManager struct {
	mu        sync.Mutex
	gateway   Gateway
	store     SessionStore
	logger    Logger
	now       func() time.Time
	state     LoginState
	attempt   uint64
	verifying bool
}

// SessionManagerOption customizes manager construction.
type SessionManagerOption func(*SessionManager)

// WithLogger overrides the default logger.
func WithLogger(logger Logger) SessionManagerOption {
	return func(m *SessionManager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithClock injects a custom clock (useful for tests).
func WithClock(clock func() time.Time) SessionManagerOption {
	return func(m *SessionManager) {
		if clock != nil {
			m.now = clock
		}
	}
}

// NewSessionManager returns a manager starting at Welcome.
func NewSessionManager(gateway Gateway, store SessionStore, opts ...SessionManagerOption) *SessionManager {
	if gateway == nil {
		panic("Missing Gateway in session manager...")
	}
	if store == nil {
		panic("Missing SessionStore in session manager...")
	}

	m := &SessionManager{
		gateway: gateway,
		store:   store,
		logger:  defLogger{},
		now:     time.Now,
		state:   Welcome(),
	}

	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}

	return m
}

// State returns the current login state.
func (m *SessionManager) State() LoginState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Session returns the live session when authenticated.
func (m *SessionManager) Session() (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Session()
}

// CurrentRole returns the authenticated session's role, or the empty
// (least-privilege) role when no session is live. Hand this to the
// coordinator as its RoleSource.
func (m *SessionManager) CurrentRole() UserRole {
	if session, ok := m.Session(); ok {
		return session.Role()
	}
	return ""
}

// SelectRole starts a fresh attempt with the chosen role and moves to
// EmailEntry. The role is immutable for the rest of the attempt: once a
// passcode is out the door, only ChangeRole (or Logout) revisits it. It
// is likewise rejected while authenticated; log out first.
func (m *SessionManager) SelectRole(role UserRole) (LoginState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !canTransition(m.state.Step(), StepEmailEntry) {
		return m.state, ErrInvalidTransition.WithMetadata(map[string]any{
			"from": m.state.Step(),
			"to":   StepEmailEntry,
		})
	}

	m.resetAttemptLocked()
	m.state = EmailEntry(role)
	return m.state, nil
}

// RequestVerificationCode asks the gateway to send a passcode to email.
// An empty email fails locally with ErrEmailRequired and no network call
// is made. On gateway failure the state remains EmailEntry and the
// gateway's error is surfaced verbatim; on success the machine moves to
// OtpEntry.
func (m *SessionManager) RequestVerificationCode(ctx context.Context, email string) error {
	m.mu.Lock()

	if !canTransition(m.state.Step(), StepOtpEntry) {
		defer m.mu.Unlock()
		return ErrInvalidTransition.WithMetadata(map[string]any{
			"from": m.state.Step(),
			"to":   StepOtpEntry,
		})
	}

	if strings.TrimSpace(email) == "" {
		defer m.mu.Unlock()
		return ErrEmailRequired
	}

	role := m.state.role
	attempt := m.attempt
	m.mu.Unlock()

	err := m.gateway.RequestOTP(ctx, email)

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.attempt != attempt {
		m.logger.Debug("discarding OTP request result for abandoned attempt %d", attempt)
		return ErrLoginAborted
	}

	if err != nil {
		m.logger.Error("OTP request failed: %v", err)
		return err
	}

	m.state = OtpEntry(email, role)
	return nil
}

// VerifyCode exchanges the passcode for a session. An empty code fails
// locally with ErrOTPRequired. Only one verification may be in flight per
// attempt; a resubmission while one is pending returns ErrVerifyInFlight
// without contacting the gateway. On success the session is written to
// the store and the machine moves to Authenticated; on failure it stays
// at OtpEntry with the gateway's message surfaced and no session created.
func (m *SessionManager) VerifyCode(ctx context.Context, otp string) (*Session, error) {
	m.mu.Lock()

	if !canTransition(m.state.Step(), StepAuthenticated) {
		defer m.mu.Unlock()
		return nil, ErrInvalidTransition.WithMetadata(map[string]any{
			"from": m.state.Step(),
			"to":   StepAuthenticated,
		})
	}

	if strings.TrimSpace(otp) == "" {
		defer m.mu.Unlock()
		return nil, ErrOTPRequired
	}

	if m.verifying {
		defer m.mu.Unlock()
		return nil, ErrVerifyInFlight
	}

	m.verifying = true
	email := m.state.email
	role := m.state.role
	attempt := m.attempt
	m.mu.Unlock()

	session, err := m.gateway.VerifyOTP(ctx, email, otp, role)

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.attempt != attempt {
		m.logger.Debug("discarding verification result for abandoned attempt %d", attempt)
		return nil, ErrLoginAborted
	}

	m.verifying = false

	if err != nil {
		m.logger.Error("OTP verification failed: %v", err)
		return nil, err
	}

	if session == nil {
		return nil, goerrors.New("gateway returned an empty verification response", goerrors.CategoryOperation).
			WithTextCode(TextCodeNetwork)
	}

	session.User.EnsureRole()

	if err := m.store.Set(session.Token); err != nil {
		// The session is live either way; persistence only affects the
		// next process start.
		m.logger.Warn("failed to persist session token: %v", err)
	}

	m.state = Authenticated(session)
	return session, nil
}

// RestoreSession reads the store once at process start. A persisted token
// is trusted as Authenticated without re-verifying; the gateway rejects
// invalid or stale tokens on subsequent calls. Expired or undecodable
// tokens are cleared and treated as no session.
func (m *SessionManager) RestoreSession() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	if session, ok := m.state.Session(); ok {
		return session
	}

	token, ok := m.store.Get()
	if !ok {
		return nil
	}

	session, err := sessionFromToken(token, m.now())
	if err != nil {
		m.logger.Warn("dropping persisted session: %v", err)
		if clearErr := m.store.Clear(); clearErr != nil {
			m.logger.Error("failed to clear stale session token: %v", clearErr)
		}
		return nil
	}

	m.state = Authenticated(session)
	return session
}

// Logout clears the store and resets to Welcome. Callable from any state
// and idempotent.
func (m *SessionManager) Logout() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.store.Clear(); err != nil {
		m.logger.Error("failed to clear session store on logout: %v", err)
	}

	m.resetAttemptLocked()
	m.state = Welcome()
}

// ChangeRole resets any pre-authenticated attempt back to Welcome. It has
// no effect while authenticated; use Logout first.
func (m *SessionManager) ChangeRole() LoginState {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state.Step() == StepAuthenticated {
		return m.state
	}

	m.resetAttemptLocked()
	m.state = Welcome()
	return m.state
}

// resetAttemptLocked invalidates any in-flight gateway completions for
// the previous attempt. Callers must hold m.mu.
func (m *SessionManager) resetAttemptLocked() {
	m.attempt++
	m.verifying = false
}
