// middleware/auth.go
package middleware

import (
	"errors"
	"fmt"
	"log"
	"strings"

	"techfest-registration/models"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/session"
	"github.com/golang-jwt/jwt/v5"
)

const (
	profileKey        = "profile"
	SessionProfileKey = "profile_id"
	accessTokenType   = "access"
)

// AccessClaims are the claims of an identity-provider access token.
type AccessClaims struct {
	UserID    string `json:"user_id"`
	TokenType string `json:"token_type"`
	jwt.RegisteredClaims
}

// ProfileLookup resolves the caller's local profile.
type ProfileLookup interface {
	ByExternalID(externalID string) (*models.Profile, error)
	ByID(id string) (*models.Profile, error)
}

type AuthConfig struct {
	SigningKey []byte
	Profiles   ProfileLookup
	Sessions   *session.Store // optional; staff CSV login
}

// ParseAccessToken verifies an HS256 access token and returns its claims.
func ParseAccessToken(raw string, key []byte) (*AccessClaims, error) {
	var claims AccessClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}
	if claims.TokenType != accessTokenType {
		return nil, fmt.Errorf("token_type %q is not an access token", claims.TokenType)
	}
	if claims.UserID == "" {
		return nil, errors.New("token has no user_id")
	}
	return &claims, nil
}

// Authenticate attaches the caller's profile to the request when a bearer token
// or a staff session is present. Anonymous requests pass through.
func Authenticate(cfg AuthConfig) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get(fiber.HeaderAuthorization)
		if header != "" {
			raw, ok := strings.CutPrefix(header, "Bearer ")
			if !ok {
				return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "authorization header must be a Bearer token"})
			}
			claims, err := ParseAccessToken(strings.TrimSpace(raw), cfg.SigningKey)
			if err != nil {
				log.Printf("[AUTH] rejected token on %s: %v", c.Path(), err)
				return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid or expired token"})
			}
			profile, err := cfg.Profiles.ByExternalID(claims.UserID)
			if err != nil {
				log.Printf("[AUTH] no profile for user_id=%s: %v", claims.UserID, err)
				return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "user profile does not exist"})
			}
			c.Locals(profileKey, profile)
			return c.Next()
		}

		if cfg.Sessions != nil {
			sess, err := cfg.Sessions.Get(c)
			if err != nil {
				log.Printf("[AUTH] session lookup failed: %v", err)
				return c.Next()
			}
			if id, ok := sess.Get(SessionProfileKey).(string); ok && id != "" {
				if profile, err := cfg.Profiles.ByID(id); err == nil {
					c.Locals(profileKey, profile)
				}
			}
		}
		return c.Next()
	}
}

// CurrentProfile returns the authenticated profile or nil.
func CurrentProfile(c *fiber.Ctx) *models.Profile {
	p, _ := c.Locals(profileKey).(*models.Profile)
	return p
}

// RequireAuth rejects anonymous requests with 401.
func RequireAuth() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if CurrentProfile(c) == nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "authentication credentials were not provided"})
		}
		return c.Next()
	}
}

// RequireStaff rejects anonymous requests with 401 and non-staff with 403.
func RequireStaff() fiber.Handler {
	return func(c *fiber.Ctx) error {
		p := CurrentProfile(c)
		if p == nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "authentication credentials were not provided"})
		}
		if !p.IsStaff {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "staff access required"})
		}
		return c.Next()
	}
}
