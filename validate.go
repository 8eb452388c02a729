package authsvc

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/MrEthical07/authsvc/otp"
	"github.com/MrEthical07/authsvc/password"
	"github.com/go-playground/validator/v10"
)

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

var requestValidator = newRequestValidator()

func newRequestValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("username", func(fl validator.FieldLevel) bool {
		return usernamePattern.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("otp", func(fl validator.FieldLevel) bool {
		return otp.WellFormed(fl.Field().String())
	})
	return v
}

type registerInput struct {
	Email    string `validate:"required,email,max=254"`
	Username string `validate:"required,min=3,max=20,username"`
	Password string `validate:"required,min=8,max=1024"`
}

func (e *Engine) validateRegister(req RegisterRequest) (RegisterRequest, error) {
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.Username = strings.TrimSpace(req.Username)

	if err := requestValidator.Struct(registerInput(req)); err != nil {
		return req, invalidRequest(err)
	}
	if e.config.Password.EnforcePolicy {
		if err := password.CheckPolicy(req.Password); err != nil {
			return req, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
		}
	}
	return req, nil
}

func validateEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if err := requestValidator.Var(email, "required,email,max=254"); err != nil {
		return email, invalidRequest(err)
	}
	return email, nil
}

// invalidRequest flattens validator output into one ErrInvalidRequest.
func invalidRequest(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		name := strings.ToLower(fe.Field())
		if name == "" {
			name = "value"
		}
		fields = append(fields, name+" failed "+fe.Tag())
	}
	return fmt.Errorf("%w: %s", ErrInvalidRequest, strings.Join(fields, ", "))
}
