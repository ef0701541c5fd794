package server

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-roster"
)

// User is the persisted roster entry.
type User struct {
	bun.BaseModel `bun:"table:users,alias:usr"`

	ID        uuid.UUID       `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Name      string          `bun:"name,notnull" json:"name,omitempty"`
	Email     string          `bun:"email,notnull,unique" json:"email,omitempty"`
	Role      roster.UserRole `bun:"user_role,notnull" json:"role,omitempty"`
	CreatedAt *time.Time      `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt *time.Time      `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// Record converts the persisted row into the wire shape.
func (u *User) Record() roster.UserRecord {
	record := roster.UserRecord{
		ID:    u.ID.String(),
		Name:  u.Name,
		Email: u.Email,
		Role:  u.Role,
	}
	record.EnsureRole()
	return record
}

// OTP is a pending one-time passcode. Codes are bcrypt hashed at rest and
// single use.
type OTP struct {
	bun.BaseModel `bun:"table:otps,alias:otp"`

	ID        uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Email     string     `bun:"email,notnull" json:"email,omitempty"`
	CodeHash  string     `bun:"code_hash,notnull" json:"-"`
	ExpiresAt time.Time  `bun:"expires_at,notnull" json:"expires_at,omitempty"`
	Attempts  int        `bun:"attempts" json:"attempts,omitempty"`
	Used      bool       `bun:"is_used" json:"is_used,omitempty"`
	CreatedAt *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}
