package auth

import (
	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// RegisterRequest mirrors the registration form: both fields required,
// password at least 6 characters
type RegisterRequest struct {
	Username string `validate:"required,min=3,max=32"`
	Password string `validate:"required,min=6,max=72"`
}

func ValidateRegister(req RegisterRequest) error {
	return validate.Struct(req)
}
