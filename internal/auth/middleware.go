package auth

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/walidbk/assurexpert-backend/pkg/models"
)

/* ============================== Middleware ============================== */

// RequireAuth validates a Bearer JWT, rejects revoked tokens, and injects
// userID, principal type and jti into the context.
func RequireAuth(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		h := c.Get("Authorization")
		if !strings.HasPrefix(h, "Bearer ") {
			return fiber.ErrUnauthorized
		}
		claims, err := ParseToken(strings.TrimPrefix(h, "Bearer "))
		if err != nil {
			return fiber.ErrUnauthorized
		}

		revoked, err := IsRevoked(db, claims.ID)
		if err != nil {
			return fiber.ErrInternalServerError
		}
		if revoked {
			return fiber.ErrUnauthorized
		}

		c.Locals("userID", claims.Sub)
		c.Locals("ptype", claims.Type)
		c.Locals("jti", claims.ID)
		return c.Next()
	}
}

// MustUserID reads the authenticated principal ID from context or panics
// (programming error: handler mounted without RequireAuth).
func MustUserID(c *fiber.Ctx) string {
	if v := c.Locals("userID"); v != nil {
		return v.(string)
	}
	panic(errors.New("user not in context"))
}

// MustType reads the authenticated principal class from context or panics.
func MustType(c *fiber.Ctx) models.PrincipalType {
	if v := c.Locals("ptype"); v != nil {
		return models.PrincipalType(v.(string))
	}
	panic(errors.New("principal type not in context"))
}

// RequireType ensures the token-embedded principal class matches the class
// this route serves. A mismatch is Unauthorized, never coerced.
func RequireType(ptype models.PrincipalType) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if MustType(c) != ptype {
			return fiber.ErrUnauthorized
		}
		return c.Next()
	}
}

// RequireSuperAdmin loads the acting admin and insists on is_superadmin.
// Requires RequireAuth + RequireType(admin) upstream.
func RequireSuperAdmin(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var admin models.Admin
		if err := db.First(&admin, "id = ?", MustUserID(c)).Error; err != nil {
			return fiber.ErrUnauthorized
		}
		if !admin.IsSuperadmin {
			return fiber.NewError(fiber.StatusForbidden, "Unauthorized. Requires super admin privileges.")
		}
		c.Locals("admin", &admin)
		return c.Next()
	}
}

/* =========================== Error Formatting =========================== */

// httpCodeToString converts an HTTP status code to a short, stable string.
func httpCodeToString(code int) string {
	switch code {
	case fiber.StatusBadRequest:
		return "BAD_REQUEST"
	case fiber.StatusUnauthorized:
		return "UNAUTHORIZED"
	case fiber.StatusForbidden:
		return "FORBIDDEN"
	case fiber.StatusNotFound:
		return "NOT_FOUND"
	case fiber.StatusConflict:
		return "CONFLICT"
	case fiber.StatusUnprocessableEntity:
		return "UNPROCESSABLE_ENTITY"
	case fiber.StatusRequestEntityTooLarge:
		return "PAYLOAD_TOO_LARGE"
	default:
		return "INTERNAL_SERVER_ERROR"
	}
}

// ErrorHandler is a global Fiber error handler that returns a consistent JSON
// shape. Backend failures surface as a generic 500; internal detail stays in
// the logs.
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	msg := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		if strings.TrimSpace(e.Message) != "" {
			msg = e.Message
		} else {
			msg = fiber.ErrInternalServerError.Message
			switch code {
			case fiber.StatusBadRequest:
				msg = fiber.ErrBadRequest.Message
			case fiber.StatusUnauthorized:
				msg = fiber.ErrUnauthorized.Message
			case fiber.StatusForbidden:
				msg = fiber.ErrForbidden.Message
			case fiber.StatusNotFound:
				msg = fiber.ErrNotFound.Message
			case fiber.StatusConflict:
				msg = fiber.ErrConflict.Message
			}
		}
	}

	return c.Status(code).JSON(models.ErrorResponse{
		Code:    httpCodeToString(code),
		Error:   true,
		Message: msg,
	})
}
