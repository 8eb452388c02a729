// Command authseed creates a verified administrator identity. Running it
// again is a no-op.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/MrEthical07/authsvc/identity"
	"github.com/MrEthical07/authsvc/internal/app"
	"github.com/MrEthical07/authsvc/password"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "authseed:", err)
		os.Exit(1)
	}
}

func run() error {
	log := app.NewLogger(os.Getenv("AUTHSVC_LOG_LEVEL"))

	cfg, err := app.LoadSeedConfig()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := app.NewDBPool(ctx, app.Config{DatabaseURL: cfg.DatabaseURL})
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := app.Migrate(ctx, pool); err != nil {
		return err
	}

	hasher, err := password.NewArgon2(password.DefaultConfig())
	if err != nil {
		return err
	}

	ident, created, err := app.SeedAdmin(ctx, identity.NewPostgres(pool), hasher, cfg)
	if err != nil {
		return err
	}
	if !created {
		log.Info("admin already exists",
			slog.String("email", ident.Email),
			slog.String("username", ident.Username),
		)
		return nil
	}
	log.Info("admin created",
		slog.String("id", ident.ID),
		slog.String("email", ident.Email),
		slog.String("username", ident.Username),
	)
	return nil
}
