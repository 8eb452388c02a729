package otp

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"math/big"
	"strings"
)

const (
	// Digits is the length of every generated code.
	Digits = 6
)

// Hasher is the fast one-way function applied to codes before storage.
type Hasher interface {
	Hash(code string) string
}

// SHA256 hashes codes as lowercase hex SHA-256 digests.
type SHA256 struct{}

// Hash implements Hasher.
func (SHA256) Hash(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}

// Generate draws Digits independent uniform digits from crypto/rand.
func Generate() (string, error) {
	var b strings.Builder
	b.Grow(Digits)

	ten := big.NewInt(10)
	for i := 0; i < Digits; i++ {
		n, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + n.Int64()))
	}
	return b.String(), nil
}

// WellFormed reports whether code has the shape of a generated code.
func WellFormed(code string) bool {
	if len(code) != Digits {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return false
		}
	}
	return true
}
