// Package adminauth guards the admin façade's /api endpoints with a
// single shared admin key, bcrypt-hashed at rest the way the teacher's
// client API-key auth hashes caller secrets.
package adminauth

import (
	"fmt"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/crypto/bcrypt"
)

// Service checks the X-Admin-Key header against a bcrypt hash. A Service
// with an empty hash is "open" -- auth is skipped entirely, for local
// development where no admin key has been configured.
type Service struct {
	keyHash string
}

// New builds a Service from a bcrypt hash (see HashKey). An empty hash
// disables auth.
func New(keyHash string) *Service {
	return &Service{keyHash: keyHash}
}

// HashKey bcrypt-hashes a plaintext admin key for storage in config.
func HashKey(plaintext string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash admin key: %w", err)
	}
	return string(hashed), nil
}

// RequireAdminKey is Fiber middleware enforcing the X-Admin-Key header.
func (s *Service) RequireAdminKey() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if s.keyHash == "" {
			return c.Next()
		}

		key := c.Get("X-Admin-Key")
		if key == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "missing X-Admin-Key header"})
		}
		if err := bcrypt.CompareHashAndPassword([]byte(s.keyHash), []byte(key)); err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid admin key"})
		}
		return c.Next()
	}
}
