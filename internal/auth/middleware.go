package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/aldoetobex/legal-bid-backend/pkg/models"
)

/* ============================== JWT Claims ============================== */

// Claims represents the JWT payload we expect.
type Claims struct {
	Sub  string `json:"sub"`  // user ID
	Role string `json:"role"` // "client" | "lawyer" | "admin"
	jwt.RegisteredClaims
}

/* ============================== JWT Helpers ============================= */

// IssueToken signs a JWT for the given user and role. Production tokens come from
// the identity service; this is used by tests and local tooling.
func IssueToken(secret string, userID uuid.UUID, role models.Role, ttl time.Duration) (string, error) {
	claims := &Claims{
		Sub:  userID.String(),
		Role: string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString([]byte(secret))
}

// ParseToken verifies tokenStr and returns the actor it names.
func ParseToken(secret, tokenStr string) (models.Actor, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return models.Actor{}, fiber.ErrUnauthorized
	}

	claims, ok := token.Claims.(*Claims)
	if !ok {
		return models.Actor{}, fiber.ErrUnauthorized
	}
	id, err := uuid.Parse(claims.Sub)
	if err != nil {
		return models.Actor{}, fiber.ErrUnauthorized
	}
	role := models.Role(claims.Role)
	if !role.Valid() {
		return models.Actor{}, fiber.ErrUnauthorized
	}
	return models.Actor{ID: id, Role: role}, nil
}

/* ============================== Middleware ============================== */

// RequireAuth validates a Bearer JWT and injects userID and role into the context.
func RequireAuth(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		h := c.Get("Authorization")
		if !strings.HasPrefix(h, "Bearer ") {
			return fiber.ErrUnauthorized
		}

		actor, err := ParseToken(secret, strings.TrimPrefix(h, "Bearer "))
		if err != nil {
			return err
		}

		c.Locals("userID", actor.ID.String())
		c.Locals("role", string(actor.Role))
		return c.Next()
	}
}

// MustUserID reads the authenticated user ID from context or panics (programming error).
func MustUserID(c *fiber.Ctx) string {
	if v := c.Locals("userID"); v != nil {
		return v.(string)
	}
	panic(errors.New("user not in context"))
}

// MustRole reads the authenticated user role from context or panics (programming error).
func MustRole(c *fiber.Ctx) string {
	if v := c.Locals("role"); v != nil {
		return v.(string)
	}
	panic(errors.New("role not in context"))
}

// CurrentActor returns the authenticated caller as a ledger actor.
func CurrentActor(c *fiber.Ctx) (models.Actor, error) {
	id, err := uuid.Parse(MustUserID(c))
	if err != nil {
		return models.Actor{}, fiber.ErrUnauthorized
	}
	return models.Actor{ID: id, Role: models.Role(MustRole(c))}, nil
}

// RequireRole ensures the authenticated user has one of the given roles.
func RequireRole(roles ...models.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		have := models.Role(MustRole(c))
		for _, r := range roles {
			if have == r {
				return c.Next()
			}
		}
		return fiber.ErrForbidden
	}
}
