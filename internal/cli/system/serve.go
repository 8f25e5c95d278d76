package system

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/julianstephens/beaver/internal/api"
	"github.com/julianstephens/beaver/internal/auth"
	"github.com/julianstephens/beaver/internal/cli"
	"github.com/julianstephens/beaver/internal/keyring"
	"github.com/julianstephens/beaver/internal/logger"
)

const shutdownTimeout = 10 * time.Second

// ServeCmd runs the HTTP API until interrupted.
type ServeCmd struct {
	Listen    string `help:"Address to listen on (overrides the config)."`
	AccessLog bool   `help:"Write an access log line per request to stdout."`
}

func (cmd *ServeCmd) Run(ctx *cli.Context) error {
	issuer, err := newIssuer(ctx)
	if err != nil {
		return err
	}

	addr := ctx.Config.Listen
	if cmd.Listen != "" {
		addr = cmd.Listen
	}

	cfg := api.Config{FirstDayOfWeek: ctx.Config.FirstDayOfWeek}
	if cmd.AccessLog {
		cfg.AccessLog = ctx.Writer()
	}
	srv := api.New(ctx.Provider, ctx.Engine, issuer, cfg)

	sigCtx, stop := signal.NotifyContext(ctx.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Listen(addr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-sigCtx.Done():
	}

	logger.Info("Shutting down API server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	return nil
}

// newIssuer signs with the configured secret, falling back to the keyring.
func newIssuer(ctx *cli.Context) (*auth.Issuer, error) {
	secret := ctx.Config.TokenSecret
	if secret == "" {
		stored, err := keyring.GetTokenSecret()
		if err != nil {
			if errors.Is(err, keyring.ErrNotFound) {
				return nil, errors.New("no token secret configured; set token_secret or run 'beaver keyring set-secret'")
			}
			return nil, fmt.Errorf("failed to read token secret from keyring: %w", err)
		}
		secret = stored
	}
	return auth.NewIssuer(secret)
}
