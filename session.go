package roster

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
)

// SessionClaims is the JWT payload the gateway mints on a successful OTP
// verification. The client decodes it without verifying the signature:
// the stored token is trusted as-is and the gateway remains the one
// rejecting stale or tampered tokens on subsequent calls.
type SessionClaims struct {
	jwt.RegisteredClaims
	UID      string `json:"uid,omitempty"`
	Name     string `json:"name,omitempty"`
	Email    string `json:"email,omitempty"`
	UserRole string `json:"role,omitempty"`
}

// UserID returns the uid claim, falling back to the subject.
func (c *SessionClaims) UserID() string {
	if c.UID != "" {
		return c.UID
	}
	return c.RegisteredClaims.Subject
}

// SessionFromToken rebuilds a Session from a persisted token string. It
// fails with ErrTokenExpired when the token carries an exp claim in the
// past, and ErrTokenMalformed when the token cannot be decoded at all.
func SessionFromToken(token string) (*Session, error) {
	return sessionFromToken(token, time.Now())
}

func sessionFromToken(token string, now time.Time) (*Session, error) {
	if token == "" {
		return nil, ErrTokenMalformed
	}

	claims := &SessionClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, goerrors.Wrap(err, ErrTokenMalformed.Category, ErrTokenMalformed.Message).
			WithTextCode(TextCodeTokenMalformed)
	}

	if claims.ExpiresAt != nil && claims.ExpiresAt.Before(now) {
		return nil, ErrTokenExpired
	}

	user := UserRecord{
		ID:    claims.UserID(),
		Name:  claims.Name,
		Email: claims.Email,
		Role:  claims.UserRole,
	}
	user.EnsureRole()

	return &Session{Token: token, User: user}, nil
}
