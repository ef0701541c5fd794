package server

import (
	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
)

// RequestOTPPayload is the body of POST /auth/otp/request.
type RequestOTPPayload struct {
	Email string `json:"email"`
}

// Validate will run validation rules.
func (r RequestOTPPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
	)
}

// VerifyOTPPayload is the body of POST /auth/otp/verify.
type VerifyOTPPayload struct {
	Email string `json:"email"`
	OTP   string `json:"otp"`
	Role  string `json:"role"`
}

// Validate will run validation rules.
func (r VerifyOTPPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.OTP, validation.Required),
	)
}

// UserPayload is the body of POST /users and PUT /users/:id.
type UserPayload struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Validate will run validation rules.
func (r UserPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.Required),
		validation.Field(&r.Email, validation.Required, is.Email),
	)
}
