package api

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	beavererrors "github.com/julianstephens/beaver/internal/errors"
	"github.com/julianstephens/beaver/internal/storage"
)

const localUser = "user"

func (s *Server) authMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get(fiber.HeaderAuthorization)
		if authHeader == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "Missing authorization header")
		}

		// Extract token from "Bearer <token>"
		parts := strings.Fields(authHeader)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return fiber.NewError(fiber.StatusUnauthorized, "Invalid authorization header format")
		}

		claims, err := s.issuer.ValidateToken(parts[1])
		if err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, "Invalid token")
		}

		// The file backend only knows users that already have a document
		user, err := s.provider.EnsureUser(c.UserContext(), claims.Email)
		if err != nil {
			if errors.Is(err, beavererrors.ErrValidation) {
				return fiber.NewError(fiber.StatusUnauthorized, "Invalid token")
			}
			return err
		}
		// A user deleted and created again gets a new id in the DB backends
		if claims.UserID != "" && claims.UserID != user.ID {
			return fiber.NewError(fiber.StatusUnauthorized, "Invalid token")
		}

		c.Locals(localUser, user)
		return c.Next()
	}
}

func currentUser(c *fiber.Ctx) storage.User {
	user, _ := c.Locals(localUser).(storage.User)
	return user
}
