package api

import (
	"crypto/subtle"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/p-blackswan/chatkeeper/internal/commands"
)

// Role is the access level granted by an API key. Roles are ordered; a
// higher role may do everything a lower one may.
type Role int

const (
	RoleNone Role = iota
	RoleReadOnly
	RoleOperator
	RoleAdmin
)

func (r Role) String() string {
	switch r {
	case RoleReadOnly:
		return "readonly"
	case RoleOperator:
		return "operator"
	case RoleAdmin:
		return "admin"
	default:
		return "none"
	}
}

// ChatLevel is the highest chat permission a caller with this role may run
// commands at through /invoke.
func (r Role) ChatLevel() commands.Level {
	switch r {
	case RoleAdmin:
		return commands.LevelBroadcaster
	case RoleOperator:
		return commands.LevelMod
	default:
		return commands.LevelNone
	}
}

// AuthConfig holds authentication configuration.
type AuthConfig struct {
	Mode   string          // "api-key" or "none"
	APIKey string          // grants admin
	Roles  map[string]Role // extra keys by role
}

const roleLocal = "role"

type apiKey struct {
	secret []byte
	role   Role
}

// keyring matches bearer tokens against configured keys. Every key is
// compared on each lookup.
type keyring []apiKey

func newKeyring(cfg AuthConfig) keyring {
	var keys keyring
	if cfg.APIKey != "" {
		keys = append(keys, apiKey{secret: []byte(cfg.APIKey), role: RoleAdmin})
	}
	for key, role := range cfg.Roles {
		if key == "" || role == RoleNone {
			continue
		}
		keys = append(keys, apiKey{secret: []byte(key), role: role})
	}
	return keys
}

func (k keyring) match(token string) Role {
	tok := []byte(token)
	found := RoleNone
	for _, key := range k {
		if subtle.ConstantTimeCompare(tok, key.secret) == 1 && key.role > found {
			found = key.role
		}
	}
	return found
}

func isProbe(path string) bool {
	return path == "/healthz" || path == "/readyz" || path == "/metrics"
}

// roleOf returns the role the auth middleware granted the request.
func roleOf(c *fiber.Ctx) Role {
	role, _ := c.Locals(roleLocal).(Role)
	return role
}

// NewAuthMiddleware returns a Fiber middleware that resolves the bearer key
// to a role.
func NewAuthMiddleware(cfg AuthConfig, logger zerolog.Logger) fiber.Handler {
	keys := newKeyring(cfg)

	return func(c *fiber.Ctx) error {
		if cfg.Mode == "none" {
			c.Locals(roleLocal, RoleAdmin)
			return c.Next()
		}

		path := c.Path()
		if isProbe(path) {
			return c.Next()
		}

		header := c.Get(fiber.HeaderAuthorization)
		if header == "" {
			return problemResponse(c, fiber.StatusUnauthorized,
				"missing_auth", "Unauthorized",
				"Authorization header is required")
		}
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			return problemResponse(c, fiber.StatusUnauthorized,
				"invalid_auth_scheme", "Unauthorized",
				"Authorization header must use Bearer scheme")
		}

		role := keys.match(token)
		if role == RoleNone {
			logger.Warn().
				Str("path", path).
				Str("method", c.Method()).
				Str("ip", c.IP()).
				Msg("rejected API key")
			return problemResponse(c, fiber.StatusUnauthorized,
				"invalid_api_key", "Unauthorized",
				"Invalid API key")
		}

		c.Locals(roleLocal, role)
		return c.Next()
	}
}

// requireRole rejects requests below min.
func requireRole(min Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if roleOf(c) < min {
			return problemResponse(c, fiber.StatusForbidden,
				"insufficient_role", "Forbidden",
				min.String()+" role required")
		}
		return c.Next()
	}
}

// problemResponse returns an RFC 7807 Problem Detail error response.
func problemResponse(c *fiber.Ctx, status int, errType, title, detail string) error {
	return c.Status(status).JSON(ProblemDetail{
		Type:     errType,
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: c.Path(),
	})
}
