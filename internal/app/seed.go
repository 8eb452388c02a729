package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MrEthical07/authsvc/identity"
	"github.com/MrEthical07/authsvc/password"
	"github.com/caarlos0/env/v11"
)

// SeedConfig names the administrator created by cmd/authseed.
type SeedConfig struct {
	DatabaseURL string `env:"AUTHSVC_DATABASE_URL,required"`
	Email       string `env:"AUTHSVC_SEED_ADMIN_EMAIL"    envDefault:"admin@localhost"`
	Username    string `env:"AUTHSVC_SEED_ADMIN_USERNAME" envDefault:"admin"`
	Password    string `env:"AUTHSVC_SEED_ADMIN_PASSWORD,required,unset"`
}

func LoadSeedConfig() (SeedConfig, error) {
	cfg, err := env.ParseAs[SeedConfig]()
	if err != nil {
		return SeedConfig{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// AdminRoles are granted to the seeded administrator.
var AdminRoles = []string{"admin", "user"}

// SeedAdmin creates a verified administrator unless an identity with the
// same email or username exists. created reports whether a row was written.
func SeedAdmin(ctx context.Context, store identity.Store, hasher password.Hasher, cfg SeedConfig) (ident *identity.Identity, created bool, err error) {
	email := identity.NormalizeEmail(cfg.Email)
	username := strings.ToLower(strings.TrimSpace(cfg.Username))

	for _, key := range []string{email, username} {
		existing, err := store.FindByEmailOrUsername(ctx, key)
		if err == nil {
			return existing, false, nil
		}
		if !errors.Is(err, identity.ErrNotFound) {
			return nil, false, err
		}
	}

	if err := password.CheckPolicy(cfg.Password); err != nil {
		return nil, false, fmt.Errorf("admin password: %w", err)
	}
	hash, err := hasher.Hash(cfg.Password)
	if err != nil {
		return nil, false, fmt.Errorf("hash admin password: %w", err)
	}

	ident, err = store.Create(ctx, identity.NewIdentity{
		Email:        email,
		Username:     username,
		PasswordHash: hash,
		Roles:        AdminRoles,
		Verified:     true,
	})
	if err != nil {
		return nil, false, err
	}
	return ident, true, nil
}
