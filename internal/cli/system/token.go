package system

import (
	"fmt"
	"time"

	"github.com/julianstephens/beaver/internal/cli"
	"github.com/julianstephens/beaver/internal/constants"
)

// TokenCmd issues an API bearer token for a user.
type TokenCmd struct {
	cli.UserFlag
	TTL time.Duration `help:"Token lifetime." default:"8760h"`
}

func (cmd *TokenCmd) Run(ctx *cli.Context) error {
	issuer, err := newIssuer(ctx)
	if err != nil {
		return err
	}
	user, err := ctx.Provider.EnsureUser(ctx.Context(), cmd.User)
	if err != nil {
		return err
	}
	ttl := cmd.TTL
	if ttl <= 0 {
		ttl = constants.DefaultTokenTTL
	}
	token, err := issuer.GenerateToken(user, ttl)
	if err != nil {
		return fmt.Errorf("failed to generate token: %w", err)
	}
	ctx.Println(token)
	return nil
}
