package password

import (
	"errors"
	"unicode"
)

// ErrPolicy is returned by CheckPolicy when a password misses a character class.
var ErrPolicy = errors.New("password must contain upper and lower case letters, a digit and a special character")

const specialChars = "@$!%*?&#^()-_=+.,;:~"

// CheckPolicy enforces the registration password rules: at least
// MinPasswordBytes long with one upper, one lower, one digit and one
// special character.
func CheckPolicy(pw string) error {
	if len(pw) < MinPasswordBytes {
		return ErrTooShort
	}

	var upper, lower, digit, special bool
	for _, r := range pw {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case isSpecial(r):
			special = true
		}
	}
	if !upper || !lower || !digit || !special {
		return ErrPolicy
	}
	return nil
}

func isSpecial(r rune) bool {
	for _, s := range specialChars {
		if r == s {
			return true
		}
	}
	return false
}
