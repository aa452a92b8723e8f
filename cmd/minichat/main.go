package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/dmitrijs2005/minichat/internal/auth"
	"github.com/dmitrijs2005/minichat/internal/backend"
	"github.com/dmitrijs2005/minichat/internal/backend/memory"
	"github.com/dmitrijs2005/minichat/internal/backend/postgres"
	"github.com/dmitrijs2005/minichat/internal/backendmanager"
	"github.com/dmitrijs2005/minichat/internal/cli"
	"github.com/dmitrijs2005/minichat/internal/config"
	"github.com/dmitrijs2005/minichat/internal/logging"
	"github.com/dmitrijs2005/minichat/internal/session"
	"github.com/dmitrijs2005/minichat/internal/settings"
)

func main() {
	_ = godotenv.Load(".env")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, config.LoadConfig()); err != nil {
		fmt.Fprintf(os.Stderr, "minichat: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	log, err := logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}

	mode, err := backend.ParseMode(cfg.BackendType)
	if err != nil {
		return err
	}

	issuer := session.NewIssuer([]byte(cfg.SecretKey), cfg.TokenValidityDuration)
	prompt := cli.NewPrompter(os.Stdin, os.Stdout)

	manager := backendmanager.NewManager(log,
		backendmanager.WithDurableFactory(func(ctx context.Context, url string) (backend.Durable, error) {
			b, err := postgres.New(url, issuer,
				postgres.WithLogger(log.With("backend", "postgresql")),
				postgres.WithBcryptCost(cfg.BcryptCost),
				postgres.WithMinServerVersion(cfg.MinServerVersion),
			)
			if err != nil {
				return nil, err
			}
			return b, nil
		}),
		backendmanager.WithVolatileFactory(func(ctx context.Context) (backend.Volatile, error) {
			return memory.New(issuer,
				memory.WithLogger(log.With("backend", "memory")),
				memory.WithBcryptCost(cfg.BcryptCost),
			), nil
		}),
		backendmanager.WithConfirmer(prompt),
	)
	defer func() {
		if err := manager.Close(context.Background()); err != nil {
			log.Warn(context.Background(), "closing backend", "error", err)
		}
	}()

	_, err = manager.Initialize(ctx, backend.Selection{
		Mode:                mode,
		FallbackToMemory:    cfg.FallbackToMemory,
		DatabaseURL:         cfg.DatabaseURL,
		InteractiveFallback: cfg.InteractiveFallback,
	})
	if err != nil {
		return err
	}

	svc := auth.NewService(manager, issuer, log)

	var tokens cli.TokenStore
	if cfg.SettingsFile != "" {
		tokens = settings.NewFileStore(cfg.SettingsFile)
	}

	app := cli.NewApp(manager, svc, tokens, prompt, log)
	if err := app.SignIn(ctx, cfg.SessionToken); err != nil {
		return err
	}

	app.Run(ctx)
	return nil
}
