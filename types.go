package roster

import (
	"context"
	"fmt"
)

// Logger is the minimal logging surface the package depends on. Inject
// your own implementation via the With*Logger options.
type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// Gateway is the external API boundary: the OTP exchange plus roster CRUD.
// Implementations must be safe for concurrent use; every call may fail
// with one of the package error categories.
type Gateway interface {
	RequestOTP(ctx context.Context, email string) error
	VerifyOTP(ctx context.Context, email, otp string, role UserRole) (*Session, error)
	ListUsers(ctx context.Context) ([]UserRecord, error)
	CreateUser(ctx context.Context, name, email string) (*UserRecord, error)
	UpdateUser(ctx context.Context, id, name, email string) (*UserRecord, error)
	DeleteUser(ctx context.Context, id string) error
}

// SessionStore is a durable holder for the current session token. A single
// key; an absent key means unauthenticated. The SessionManager is the only
// writer, readers may be any component attaching the token to outgoing
// calls.
type SessionStore interface {
	Get() (string, bool)
	Set(token string) error
	Clear() error
}

// DefaultLogger returns the stdout printf logger used when no Logger is
// injected. Subpackages share it as their fallback.
func DefaultLogger() Logger {
	return defLogger{}
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] ROSTER "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] ROSTER "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] ROSTER "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] ROSTER "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
