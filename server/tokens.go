package server

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-roster"
)

// TokenService mints and validates the HS256 session tokens the gateway
// hands out after a successful OTP verification.
type TokenService struct {
	signingKey []byte
	tokenTTL   time.Duration
	issuer     string
	logger     roster.Logger
	now        func() time.Time
}

// NewTokenService returns a service with the configured key and TTL.
func NewTokenService(signingKey []byte, tokenTTL time.Duration, issuer string, logger roster.Logger) *TokenService {
	if logger == nil {
		logger = roster.DefaultLogger()
	}
	if tokenTTL <= 0 {
		tokenTTL = 15 * time.Minute
	}

	return &TokenService{
		signingKey: signingKey,
		tokenTTL:   tokenTTL,
		issuer:     issuer,
		logger:     logger,
		now:        time.Now,
	}
}

// Generate mints a token for the given identity.
func (ts *TokenService) Generate(user roster.UserRecord) (string, error) {
	now := ts.now()

	claims := &roster.SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    ts.issuer,
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ts.tokenTTL)),
		},
		UID:      user.ID,
		Name:     user.Name,
		Email:    user.Email,
		UserRole: user.Role,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signed, err := token.SignedString(ts.signingKey)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to sign session token")
	}

	return signed, nil
}

// Validate parses and verifies a token string, returning its claims.
func (ts *TokenService) Validate(tokenString string) (*roster.SessionClaims, error) {
	parserOptions := make([]jwt.ParserOption, 0, 1)
	if ts.issuer != "" {
		parserOptions = append(parserOptions, jwt.WithIssuer(ts.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &roster.SessionClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			ts.logger.Error("token validation hit unexpected signing method: %v", t.Header["alg"])
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return ts.signingKey, nil
	}, parserOptions...)

	if err != nil {
		if goerrors.Is(err, jwt.ErrTokenExpired) {
			return nil, roster.ErrTokenExpired
		}
		return nil, goerrors.Wrap(err, roster.ErrTokenMalformed.Category, roster.ErrTokenMalformed.Message).
			WithTextCode(roster.TextCodeTokenMalformed)
	}

	if claims, ok := token.Claims.(*roster.SessionClaims); ok && token.Valid {
		return claims, nil
	}

	return nil, roster.ErrTokenMalformed
}
