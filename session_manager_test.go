package roster_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-roster"
	"github.com/goliatone/go-roster/store"
)

func TestNewSessionManagerPanicsWithoutDeps(t *testing.T) {
	assert.Panics(t, func() {
		roster.NewSessionManager(nil, store.NewMemory())
	})
	assert.Panics(t, func() {
		roster.NewSessionManager(&MockGateway{}, nil)
	})
}

func TestSelectRoleMovesToEmailEntry(t *testing.T) {
	manager := roster.NewSessionManager(&MockGateway{}, store.NewMemory())

	state, err := manager.SelectRole(roster.RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, roster.StepEmailEntry, state.Step())

	role, ok := state.Role()
	require.True(t, ok)
	assert.Equal(t, roster.RoleAdmin, role)
}

func TestRequestVerificationCodeRejectsEmptyEmailLocally(t *testing.T) {
	gateway := &MockGateway{}
	manager := roster.NewSessionManager(gateway, store.NewMemory())

	_, err := manager.SelectRole(roster.RoleUser)
	require.NoError(t, err)

	err = manager.RequestVerificationCode(context.Background(), "   ")
	assert.ErrorIs(t, err, roster.ErrEmailRequired)
	assert.True(t, roster.IsValidationError(err))

	gateway.AssertNotCalled(t, "RequestOTP", mock.Anything, mock.Anything)
	assert.Equal(t, roster.StepEmailEntry, manager.State().Step())
}

func TestRequestVerificationCodeOutsideEmailEntry(t *testing.T) {
	gateway := &MockGateway{}
	manager := roster.NewSessionManager(gateway, store.NewMemory())

	err := manager.RequestVerificationCode(context.Background(), "jane@example.com")
	require.Error(t, err)
	assert.True(t, roster.IsValidationError(err))
	gateway.AssertNotCalled(t, "RequestOTP", mock.Anything, mock.Anything)
}

func TestRequestVerificationCodeFailureStaysOnEmailEntry(t *testing.T) {
	gateway := &MockGateway{}
	gateway.On("RequestOTP", mock.Anything, "jane@example.com").
		Return(assert.AnError)

	manager := roster.NewSessionManager(gateway, store.NewMemory())
	_, err := manager.SelectRole(roster.RoleUser)
	require.NoError(t, err)

	err = manager.RequestVerificationCode(context.Background(), "jane@example.com")
	assert.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, roster.StepEmailEntry, manager.State().Step())
}

func TestLoginHappyPathPersistsToken(t *testing.T) {
	session := &roster.Session{
		Token: "T1",
		User:  roster.UserRecord{ID: "u1", Name: "Jane", Email: "jane@example.com", Role: roster.RoleAdmin},
	}

	gateway := &MockGateway{}
	gateway.On("RequestOTP", mock.Anything, "jane@example.com").Return(nil)
	gateway.On("VerifyOTP", mock.Anything, "jane@example.com", "123456", roster.RoleAdmin).
		Return(session, nil)

	tokens := store.NewMemory()
	manager := roster.NewSessionManager(gateway, tokens)

	_, err := manager.SelectRole(roster.RoleAdmin)
	require.NoError(t, err)

	require.NoError(t, manager.RequestVerificationCode(context.Background(), "jane@example.com"))
	assert.Equal(t, roster.StepOtpEntry, manager.State().Step())

	got, err := manager.VerifyCode(context.Background(), "123456")
	require.NoError(t, err)
	assert.Equal(t, "T1", got.Token)

	assert.Equal(t, roster.StepAuthenticated, manager.State().Step())
	assert.Equal(t, roster.RoleAdmin, manager.CurrentRole())

	persisted, ok := tokens.Get()
	require.True(t, ok)
	assert.Equal(t, "T1", persisted)

	gateway.AssertExpectations(t)
}

func TestVerifyCodeRejectsEmptyOTPLocally(t *testing.T) {
	gateway := &MockGateway{}
	gateway.On("RequestOTP", mock.Anything, mock.Anything).Return(nil)

	manager := roster.NewSessionManager(gateway, store.NewMemory())
	_, err := manager.SelectRole(roster.RoleUser)
	require.NoError(t, err)
	require.NoError(t, manager.RequestVerificationCode(context.Background(), "jane@example.com"))

	_, err = manager.VerifyCode(context.Background(), "")
	assert.ErrorIs(t, err, roster.ErrOTPRequired)
	gateway.AssertNotCalled(t, "VerifyOTP", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestVerifyCodeFailureKeepsOtpEntryAndStore(t *testing.T) {
	gateway := &MockGateway{}
	gateway.On("RequestOTP", mock.Anything, mock.Anything).Return(nil)
	gateway.On("VerifyOTP", mock.Anything, "jane@example.com", "000000", roster.RoleUser).
		Return(nil, assert.AnError)

	tokens := store.NewMemory()
	manager := roster.NewSessionManager(gateway, tokens)

	_, err := manager.SelectRole(roster.RoleUser)
	require.NoError(t, err)
	require.NoError(t, manager.RequestVerificationCode(context.Background(), "jane@example.com"))

	session, err := manager.VerifyCode(context.Background(), "000000")
	assert.Nil(t, session)
	assert.ErrorIs(t, err, assert.AnError)

	// retry is possible from the same step, nothing was persisted
	assert.Equal(t, roster.StepOtpEntry, manager.State().Step())
	_, ok := tokens.Get()
	assert.False(t, ok)
}

func TestVerifyCodeSingleFlight(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})

	session := &roster.Session{Token: "T1", User: roster.UserRecord{ID: "u1"}}

	gateway := &MockGateway{}
	gateway.On("RequestOTP", mock.Anything, mock.Anything).Return(nil)
	gateway.On("VerifyOTP", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			close(entered)
			<-release
		}).
		Return(session, nil).
		Once()

	manager := roster.NewSessionManager(gateway, store.NewMemory())
	_, err := manager.SelectRole(roster.RoleUser)
	require.NoError(t, err)
	require.NoError(t, manager.RequestVerificationCode(context.Background(), "jane@example.com"))

	done := make(chan error, 1)
	go func() {
		_, err := manager.VerifyCode(context.Background(), "123456")
		done <- err
	}()

	<-entered

	_, err = manager.VerifyCode(context.Background(), "123456")
	assert.ErrorIs(t, err, roster.ErrVerifyInFlight)
	assert.True(t, roster.IsConflictError(err))

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, roster.StepAuthenticated, manager.State().Step())
}

func TestAbandonedVerificationIsDiscarded(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})

	session := &roster.Session{Token: "late", User: roster.UserRecord{ID: "u1"}}

	gateway := &MockGateway{}
	gateway.On("RequestOTP", mock.Anything, mock.Anything).Return(nil)
	gateway.On("VerifyOTP", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			close(entered)
			<-release
		}).
		Return(session, nil)

	tokens := store.NewMemory()
	manager := roster.NewSessionManager(gateway, tokens)

	_, err := manager.SelectRole(roster.RoleUser)
	require.NoError(t, err)
	require.NoError(t, manager.RequestVerificationCode(context.Background(), "jane@example.com"))

	done := make(chan error, 1)
	go func() {
		_, err := manager.VerifyCode(context.Background(), "123456")
		done <- err
	}()

	<-entered

	// the user walks away from the attempt mid-verification
	state := manager.ChangeRole()
	assert.Equal(t, roster.StepWelcome, state.Step())

	close(release)
	err = <-done
	assert.ErrorIs(t, err, roster.ErrLoginAborted)

	// the late completion must not resurrect the attempt or persist a token
	assert.Equal(t, roster.StepWelcome, manager.State().Step())
	_, ok := tokens.Get()
	assert.False(t, ok)
}

func TestRestoreSessionTrustsPersistedToken(t *testing.T) {
	token := signedToken("u1", "Jane", "jane@example.com", roster.RoleAdmin, time.Now().Add(time.Hour))

	tokens := store.NewMemory()
	require.NoError(t, tokens.Set(token))

	manager := roster.NewSessionManager(&MockGateway{}, tokens)

	session := manager.RestoreSession()
	require.NotNil(t, session)
	assert.Equal(t, token, session.Token)
	assert.Equal(t, roster.RoleAdmin, session.User.Role)
	assert.Equal(t, roster.StepAuthenticated, manager.State().Step())
}

func TestRestoreSessionClearsExpiredToken(t *testing.T) {
	token := signedToken("u1", "Jane", "jane@example.com", roster.RoleAdmin, time.Now().Add(-time.Hour))

	tokens := &MockSessionStore{}
	tokens.On("Get").Return(token, true)
	tokens.On("Clear").Return(nil)

	manager := roster.NewSessionManager(&MockGateway{}, tokens)

	assert.Nil(t, manager.RestoreSession())
	assert.Equal(t, roster.StepWelcome, manager.State().Step())
	tokens.AssertCalled(t, "Clear")
}

func TestRestoreSessionWithEmptyStore(t *testing.T) {
	manager := roster.NewSessionManager(&MockGateway{}, store.NewMemory())
	assert.Nil(t, manager.RestoreSession())
	assert.Equal(t, roster.StepWelcome, manager.State().Step())
}

func TestLogoutAlwaysResetsAndClears(t *testing.T) {
	session := &roster.Session{Token: "T1", User: roster.UserRecord{ID: "u1", Role: roster.RoleAdmin}}

	gateway := &MockGateway{}
	gateway.On("RequestOTP", mock.Anything, mock.Anything).Return(nil)
	gateway.On("VerifyOTP", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(session, nil)

	tokens := store.NewMemory()
	manager := roster.NewSessionManager(gateway, tokens)

	_, err := manager.SelectRole(roster.RoleAdmin)
	require.NoError(t, err)
	require.NoError(t, manager.RequestVerificationCode(context.Background(), "jane@example.com"))
	_, err = manager.VerifyCode(context.Background(), "123456")
	require.NoError(t, err)

	manager.Logout()

	assert.Equal(t, roster.StepWelcome, manager.State().Step())
	_, ok := tokens.Get()
	assert.False(t, ok)

	// idempotent from any state
	manager.Logout()
	assert.Equal(t, roster.StepWelcome, manager.State().Step())
}

func TestSelectRoleRejectedDuringOtpEntry(t *testing.T) {
	gateway := &MockGateway{}
	gateway.On("RequestOTP", mock.Anything, mock.Anything).Return(nil)

	manager := roster.NewSessionManager(gateway, store.NewMemory())

	_, err := manager.SelectRole(roster.RoleUser)
	require.NoError(t, err)
	require.NoError(t, manager.RequestVerificationCode(context.Background(), "jane@example.com"))

	// the role is locked once the passcode is out; the attempt must be
	// reset to revisit it
	_, err = manager.SelectRole(roster.RoleAdmin)
	require.Error(t, err)
	assert.True(t, roster.IsValidationError(err))
	assert.Equal(t, roster.StepOtpEntry, manager.State().Step())

	state := manager.ChangeRole()
	assert.Equal(t, roster.StepWelcome, state.Step())

	state, err = manager.SelectRole(roster.RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, roster.StepEmailEntry, state.Step())
}

func TestSelectRoleCanRepickDuringEmailEntry(t *testing.T) {
	manager := roster.NewSessionManager(&MockGateway{}, store.NewMemory())

	_, err := manager.SelectRole(roster.RoleUser)
	require.NoError(t, err)

	// before an email is submitted, picking again just restarts the step
	state, err := manager.SelectRole(roster.RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, roster.StepEmailEntry, state.Step())

	role, ok := state.Role()
	require.True(t, ok)
	assert.Equal(t, roster.RoleAdmin, role)
}

func TestSelectRoleRejectedWhileAuthenticated(t *testing.T) {
	token := signedToken("u1", "Jane", "jane@example.com", roster.RoleAdmin, time.Now().Add(time.Hour))
	tokens := store.NewMemory()
	require.NoError(t, tokens.Set(token))

	manager := roster.NewSessionManager(&MockGateway{}, tokens)
	require.NotNil(t, manager.RestoreSession())

	_, err := manager.SelectRole(roster.RoleUser)
	require.Error(t, err)
	assert.Equal(t, roster.StepAuthenticated, manager.State().Step())

	// ChangeRole is likewise a no-op while authenticated
	state := manager.ChangeRole()
	assert.Equal(t, roster.StepAuthenticated, state.Step())
}
