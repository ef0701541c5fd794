package server

import "time"

// Config holds the reference gateway's knobs. Zero values fall back to
// development defaults via Normalize.
type Config struct {
	// SigningKey signs session tokens. Required outside of tests.
	SigningKey string
	// Issuer stamps the iss claim on minted tokens.
	Issuer string
	// TokenTTL bounds how long a session token stays valid.
	TokenTTL time.Duration
	// OTPTTL bounds how long an issued passcode can be redeemed.
	OTPTTL time.Duration
	// DSN is the sqlite connection string.
	DSN string
	// Debug enables pretty payload dumps on the request log.
	Debug bool
}

// Normalize fills unset fields with defaults.
func (c Config) Normalize() Config {
	if c.SigningKey == "" {
		c.SigningKey = "dev-signing-key"
	}
	if c.Issuer == "" {
		c.Issuer = "go-roster"
	}
	if c.TokenTTL <= 0 {
		c.TokenTTL = 15 * time.Minute
	}
	if c.OTPTTL <= 0 {
		c.OTPTTL = 10 * time.Minute
	}
	if c.DSN == "" {
		c.DSN = "file::memory:?cache=shared"
	}
	return c
}
