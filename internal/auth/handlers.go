package auth

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/walidbk/assurexpert-backend/pkg/models"
	"github.com/walidbk/assurexpert-backend/pkg/validation"
)

/* ================================ DTOs ================================= */

// Request body for /login
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email,max=120"`
	Password string `json:"password" validate:"required"`
	Type     string `json:"type" validate:"required,oneof=admin client"`
}

// Token response, matching the legacy contract.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	UserType    string `json:"user_type"`
	ExpiresIn   int    `json:"expires_in"` // seconds
}

// Request body for /change-password
type ChangePasswordRequest struct {
	OldPassword             string `json:"old_password" validate:"required"`
	NewPassword             string `json:"new_password" validate:"required,min=8"`
	NewPasswordConfirmation string `json:"new_password_confirmation" validate:"required,eqfield=NewPassword"`
}

/* ============================== Handler ================================= */

type Handler struct{ db *gorm.DB }

func NewHandler(db *gorm.DB) *Handler { return &Handler{db: db} }

func tokenResponse(token string, ptype models.PrincipalType) TokenResponse {
	return TokenResponse{
		AccessToken: token,
		TokenType:   "bearer",
		UserType:    string(ptype),
		ExpiresIn:   int(TokenTTL.Seconds()),
	}
}

/* ================================ Login ================================= */

// Login authenticates against the table named by the requested principal
// class. The two classes are checked independently; an admin's credentials
// never log anyone in as a client.
func (h *Handler) Login(c *fiber.Ctx) error {
	var in LoginRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.ErrBadRequest
	}
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	now := time.Now()
	ptype := models.PrincipalType(in.Type)

	switch ptype {
	case models.PrincipalClient:
		var u models.Client
		if err := h.db.Where("email = ?", in.Email).First(&u).Error; err != nil {
			return fiber.ErrUnauthorized
		}
		if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(in.Password)) != nil {
			return fiber.ErrUnauthorized
		}
		_ = h.db.Model(&u).Update("last_login_at", now).Error

		token, err := IssueToken(u.ID.String(), ptype)
		if err != nil {
			return fiber.ErrInternalServerError
		}
		return c.JSON(tokenResponse(token, ptype))

	case models.PrincipalAdmin:
		var u models.Admin
		if err := h.db.Where("email = ?", in.Email).First(&u).Error; err != nil {
			return fiber.ErrUnauthorized
		}
		if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(in.Password)) != nil {
			return fiber.ErrUnauthorized
		}
		_ = h.db.Model(&u).Update("last_login_at", now).Error

		token, err := IssueToken(u.ID.String(), ptype)
		if err != nil {
			return fiber.ErrInternalServerError
		}
		return c.JSON(tokenResponse(token, ptype))
	}

	return fiber.ErrUnauthorized
}

/* ================================= Me =================================== */

// Me returns the authenticated principal's profile. The class comes from the
// token, not from any request header.
func (h *Handler) Me(c *fiber.Ctx) error {
	id := MustUserID(c)

	switch MustType(c) {
	case models.PrincipalClient:
		var u models.Client
		if err := h.db.First(&u, "id = ?", id).Error; err != nil {
			return fiber.ErrUnauthorized
		}
		return c.JSON(u)
	case models.PrincipalAdmin:
		var u models.Admin
		if err := h.db.First(&u, "id = ?", id).Error; err != nil {
			return fiber.ErrUnauthorized
		}
		return c.JSON(u)
	}
	return fiber.ErrUnauthorized
}

/* =============================== Logout ================================= */

// Logout revokes the presented token. The same token fails validation on any
// later request.
func (h *Handler) Logout(c *fiber.Ctx) error {
	claims, err := ParseToken(strings.TrimPrefix(c.Get("Authorization"), "Bearer "))
	if err != nil {
		return fiber.ErrUnauthorized
	}
	if err := RevokeToken(h.db, claims); err != nil {
		return fiber.ErrInternalServerError
	}
	return c.JSON(fiber.Map{"message": "Logged out"})
}

/* =============================== Refresh ================================ */

// Refresh rotates the expiry for the same principal: the old token is
// revoked and a fresh one issued.
func (h *Handler) Refresh(c *fiber.Ctx) error {
	claims, err := ParseToken(strings.TrimPrefix(c.Get("Authorization"), "Bearer "))
	if err != nil {
		return fiber.ErrUnauthorized
	}
	if err := RevokeToken(h.db, claims); err != nil {
		return fiber.ErrInternalServerError
	}
	token, err := IssueToken(claims.Sub, models.PrincipalType(claims.Type))
	if err != nil {
		return fiber.ErrInternalServerError
	}
	return c.JSON(tokenResponse(token, models.PrincipalType(claims.Type)))
}

/* ============================ Change password =========================== */

// ChangePassword verifies the old credential before writing the new hash.
func (h *Handler) ChangePassword(c *fiber.Ctx) error {
	var in ChangePasswordRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.ErrBadRequest
	}
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	id := MustUserID(c)
	hash, _ := bcrypt.GenerateFromPassword([]byte(in.NewPassword), bcrypt.DefaultCost)

	switch MustType(c) {
	case models.PrincipalClient:
		var u models.Client
		if err := h.db.First(&u, "id = ?", id).Error; err != nil {
			return fiber.ErrUnauthorized
		}
		if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(in.OldPassword)) != nil {
			return fiber.NewError(fiber.StatusUnprocessableEntity, "Old password is incorrect")
		}
		if err := h.db.Model(&u).Update("password_hash", string(hash)).Error; err != nil {
			return fiber.ErrInternalServerError
		}
	case models.PrincipalAdmin:
		var u models.Admin
		if err := h.db.First(&u, "id = ?", id).Error; err != nil {
			return fiber.ErrUnauthorized
		}
		if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(in.OldPassword)) != nil {
			return fiber.NewError(fiber.StatusUnprocessableEntity, "Old password is incorrect")
		}
		if err := h.db.Model(&u).Update("password_hash", string(hash)).Error; err != nil {
			return fiber.ErrInternalServerError
		}
	}

	return c.JSON(fiber.Map{"message": "Password changed successfully"})
}
