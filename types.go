package authsvc

import (
	"context"
	"time"

	"github.com/MrEthical07/authsvc/identity"
	"github.com/MrEthical07/authsvc/internal/rate"
	"github.com/MrEthical07/authsvc/ledger"
)

// Admission scopes charged by the Engine.
const (
	ScopeRegister = rate.ScopeRegister
	ScopeLogin    = rate.ScopeLogin
	ScopeOTP      = rate.ScopeOTP
	ScopeRefresh  = rate.ScopeRefresh
)

// Admission is the rate-limit pre-check run before every state changing
// operation. Admit returns an error wrapping ErrRateLimited to reject.
type Admission interface {
	Admit(ctx context.Context, scope, key string) error
}

// Device describes the client a refresh token was issued to.
type Device = ledger.Device

// RegisterRequest is the input of [Engine.Register].
type RegisterRequest struct {
	Email    string
	Username string
	Password string
}

// Profile is the public view of an identity. The password hash never
// leaves the Engine.
type Profile struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Username  string    `json:"username"`
	Verified  bool      `json:"isVerified"`
	Roles     []string  `json:"roles"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func profileOf(ident *identity.Identity) Profile {
	if ident == nil {
		return Profile{}
	}
	roles := make([]string, len(ident.Roles))
	copy(roles, ident.Roles)
	return Profile{
		ID:        ident.ID,
		Email:     ident.Email,
		Username:  ident.Username,
		Verified:  ident.Verified,
		Roles:     roles,
		CreatedAt: ident.CreatedAt,
		UpdatedAt: ident.UpdatedAt,
	}
}

// TokenPair is an access token plus the refresh token it was issued with.
type TokenPair struct {
	AccessToken      string    `json:"accessToken"`
	AccessExpiresAt  time.Time `json:"accessExpiresAt"`
	RefreshToken     string    `json:"refreshToken"`
	RefreshExpiresAt time.Time `json:"refreshExpiresAt"`
}

// LoginResult is returned by [Engine.Login].
type LoginResult struct {
	TokenPair
	User Profile `json:"user"`
}

// Claims is the verified content of an access token.
type Claims struct {
	Subject   string    `json:"sub"`
	Email     string    `json:"email"`
	Roles     []string  `json:"roles"`
	IssuedAt  time.Time `json:"iat"`
	ExpiresAt time.Time `json:"exp"`
}

// ValidateResult is returned by [Engine.ValidateToken]. User is filled from
// the credential store after the token verified.
type ValidateResult struct {
	Claims Claims  `json:"claims"`
	User   Profile `json:"user"`
}
