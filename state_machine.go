package roster

// LoginStep identifies the active step of the login state machine.
// Exactly one step is active at any time.
type LoginStep string

const (
	// StepWelcome is the initial role-selection screen.
	StepWelcome LoginStep = "welcome"
	// StepEmailEntry collects the email for the chosen role.
	StepEmailEntry LoginStep = "email"
	// StepOtpEntry collects the passcode sent to the email.
	StepOtpEntry LoginStep = "otp"
	// StepAuthenticated holds a live session.
	StepAuthenticated LoginStep = "authenticated"
)

// LoginState is a tagged variant over the login steps. Values are only
// produced by the constructors below, so a state can never carry fields
// its step does not define: OtpEntry always has an email and a role,
// Authenticated always has a session.
type LoginState struct {
	step    LoginStep
	role    UserRole
	email   string
	session *Session
}

// Welcome returns the initial state.
func Welcome() LoginState {
	return LoginState{step: StepWelcome}
}

// EmailEntry returns the state after a role was chosen. The role is
// immutable for the rest of the attempt; only resetting to Welcome
// revisits it.
func EmailEntry(role UserRole) LoginState {
	return LoginState{step: StepEmailEntry, role: role}
}

// OtpEntry returns the state after the verification code was sent.
func OtpEntry(email string, role UserRole) LoginState {
	return LoginState{step: StepOtpEntry, role: role, email: email}
}

// Authenticated returns the terminal-ish state holding the session. It
// loops back to Welcome only via logout.
func Authenticated(session *Session) LoginState {
	return LoginState{step: StepAuthenticated, session: session}
}

// Step returns the active step.
func (s LoginState) Step() LoginStep {
	if s.step == "" {
		return StepWelcome
	}
	return s.step
}

// Role returns the role chosen for this attempt. Only set during
// EmailEntry and OtpEntry.
func (s LoginState) Role() (UserRole, bool) {
	switch s.Step() {
	case StepEmailEntry, StepOtpEntry:
		return s.role, true
	default:
		return "", false
	}
}

// Email returns the attempt's email. Only set during OtpEntry.
func (s LoginState) Email() (string, bool) {
	if s.Step() != StepOtpEntry {
		return "", false
	}
	return s.email, true
}

// Session returns the live session when authenticated.
func (s LoginState) Session() (*Session, bool) {
	if s.Step() != StepAuthenticated || s.session == nil {
		return nil, false
	}
	return s.session, true
}

// loginTransitions is the forward transition graph. Resetting to Welcome
// is allowed from anywhere and handled separately.
var loginTransitions = map[LoginStep]map[LoginStep]struct{}{
	StepWelcome: {
		StepEmailEntry: {},
	},
	StepEmailEntry: {
		// re-picking the role stays on the same step
		StepEmailEntry: {},
		StepOtpEntry:   {},
	},
	StepOtpEntry: {
		StepAuthenticated: {},
	},
}

func canTransition(from, to LoginStep) bool {
	if to == StepWelcome {
		return true
	}
	if allowed, ok := loginTransitions[from]; ok {
		_, exists := allowed[to]
		return exists
	}
	return false
}
