package roster_test

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/mock"

	"github.com/goliatone/go-roster"
)

// MockGateway implements roster.Gateway
type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) RequestOTP(ctx context.Context, email string) error {
	args := m.Called(ctx, email)
	return args.Error(0)
}

func (m *MockGateway) VerifyOTP(ctx context.Context, email, otp string, role roster.UserRole) (*roster.Session, error) {
	args := m.Called(ctx, email, otp, role)
	session, _ := args.Get(0).(*roster.Session)
	return session, args.Error(1)
}

func (m *MockGateway) ListUsers(ctx context.Context) ([]roster.UserRecord, error) {
	args := m.Called(ctx)
	records, _ := args.Get(0).([]roster.UserRecord)
	return records, args.Error(1)
}

func (m *MockGateway) CreateUser(ctx context.Context, name, email string) (*roster.UserRecord, error) {
	args := m.Called(ctx, name, email)
	record, _ := args.Get(0).(*roster.UserRecord)
	return record, args.Error(1)
}

func (m *MockGateway) UpdateUser(ctx context.Context, id, name, email string) (*roster.UserRecord, error) {
	args := m.Called(ctx, id, name, email)
	record, _ := args.Get(0).(*roster.UserRecord)
	return record, args.Error(1)
}

func (m *MockGateway) DeleteUser(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// MockSessionStore implements roster.SessionStore
type MockSessionStore struct {
	mock.Mock
}

func (m *MockSessionStore) Get() (string, bool) {
	args := m.Called()
	return args.String(0), args.Bool(1)
}

func (m *MockSessionStore) Set(token string) error {
	args := m.Called(token)
	return args.Error(0)
}

func (m *MockSessionStore) Clear() error {
	args := m.Called()
	return args.Error(0)
}

// signedToken mints an HS256 token with the given identity and expiry.
// Session restore trusts the payload, so the key is arbitrary.
func signedToken(id, name, email string, role roster.UserRole, expiresAt time.Time) string {
	claims := &roster.SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(expiresAt.Add(-time.Hour)),
		},
		UID:      id,
		Name:     name,
		Email:    email,
		UserRole: role,
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if err != nil {
		panic(err)
	}
	return token
}
