package server

import (
	"context"
	"crypto/rand"
	"math/big"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"golang.org/x/crypto/bcrypt"

	"github.com/goliatone/go-roster"
)

const otpLength = 6

// CodeSender delivers a freshly issued passcode to its email address.
// Production wires a mailer; the default logs, and tests capture.
type CodeSender interface {
	SendCode(ctx context.Context, email, code string) error
}

// CodeSenderFunc adapts a function into a CodeSender.
type CodeSenderFunc func(ctx context.Context, email, code string) error

// SendCode satisfies the CodeSender interface.
func (f CodeSenderFunc) SendCode(ctx context.Context, email, code string) error {
	if f == nil {
		return nil
	}
	return f(ctx, email, code)
}

func logSender(logger roster.Logger) CodeSender {
	return CodeSenderFunc(func(_ context.Context, email, code string) error {
		logger.Info("OTP for %s: %s", email, code)
		return nil
	})
}

// GenerateCode returns a 6-digit random passcode.
func GenerateCode() (string, error) {
	var code strings.Builder
	for i := 0; i < otpLength; i++ {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to generate passcode")
		}
		code.WriteByte(byte('0' + n.Int64()))
	}
	return code.String(), nil
}

// Codes persists and redeems one-time passcodes. Codes are bcrypt hashed
// at rest and single use; wrong guesses bump the attempt counter.
type Codes struct {
	db  *bun.DB
	ttl time.Duration
	now func() time.Time
}

// NewCodes returns a code store with the given validity window.
func NewCodes(db *bun.DB, ttl time.Duration) *Codes {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Codes{db: db, ttl: ttl, now: time.Now}
}

// Issue stores a new passcode for email and returns the cleartext code
// for delivery.
func (c *Codes) Issue(ctx context.Context, email string) (string, error) {
	code, err := GenerateCode()
	if err != nil {
		return "", err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash passcode")
	}

	record := &OTP{
		ID:        uuid.New(),
		Email:     strings.ToLower(strings.TrimSpace(email)),
		CodeHash:  string(hash),
		ExpiresAt: c.now().Add(c.ttl),
	}

	if _, err := c.db.NewInsert().Model(record).Exec(ctx); err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryOperation, "failed to store passcode")
	}

	return code, nil
}

// Redeem validates the code against the latest pending passcode for
// email, marking it used on success.
func (c *Codes) Redeem(ctx context.Context, email, code string) error {
	record := &OTP{}
	err := c.db.NewSelect().
		Model(record).
		Where("?TableAlias.email = ?", strings.ToLower(strings.TrimSpace(email))).
		Where("?TableAlias.is_used = ?", false).
		Order("created_at DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return errOTPInvalid("Invalid or expired OTP")
		}
		return goerrors.Wrap(err, goerrors.CategoryOperation, "failed to load passcode")
	}

	if record.ExpiresAt.Before(c.now()) {
		return goerrors.New("OTP expired", goerrors.CategoryAuth).
			WithTextCode(roster.TextCodeOTPExpired).
			WithCode(goerrors.CodeUnauthorized)
	}

	if bcrypt.CompareHashAndPassword([]byte(record.CodeHash), []byte(code)) != nil {
		if _, err := c.db.NewUpdate().
			Model((*OTP)(nil)).
			Set("attempts = attempts + 1").
			Where("id = ?", record.ID.String()).
			Exec(ctx); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryOperation, "failed to track passcode attempt")
		}
		return errOTPInvalid("Invalid OTP")
	}

	if _, err := c.db.NewUpdate().
		Model((*OTP)(nil)).
		Set("is_used = ?", true).
		Where("id = ?", record.ID.String()).
		Exec(ctx); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "failed to mark passcode used")
	}

	return nil
}

func errOTPInvalid(message string) error {
	return goerrors.New(message, goerrors.CategoryAuth).
		WithTextCode(roster.TextCodeOTPInvalid).
		WithCode(goerrors.CodeUnauthorized)
}
