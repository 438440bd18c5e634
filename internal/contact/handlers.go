package contact

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/walidbk/assurexpert-backend/pkg/models"
	"github.com/walidbk/assurexpert-backend/pkg/validation"
)

type Handler struct{ db *gorm.DB }

func NewHandler(db *gorm.DB) *Handler { return &Handler{db: db} }

/* ================================ Store ================================= */

type ContactRequest struct {
	ClientName string `json:"client_name" validate:"required,max=255"`
	Email      string `json:"email" validate:"required,email,max=255"`
	Subject    string `json:"subject" validate:"required,max=255"`
	Message    string `json:"message" validate:"required"`
}

// Store accepts a public free-form contact message.
func (h *Handler) Store(c *fiber.Ctx) error {
	var in ContactRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.ErrBadRequest
	}
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	msg := models.ContactMessage{
		ClientName: in.ClientName,
		Email:      strings.ToLower(strings.TrimSpace(in.Email)),
		Subject:    in.Subject,
		Message:    in.Message,
		Kind:       models.ContactGeneral,
	}
	if err := h.db.Create(&msg).Error; err != nil {
		return fiber.ErrInternalServerError
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "Message sent successfully",
		"contact": msg,
	})
}

/* =========================== Password reset ============================= */

type PasswordResetRequest struct {
	Email      string `json:"email" validate:"required,email"`
	ClientName string `json:"client_name" validate:"max=255"`
	Message    string `json:"message"`
}

// PasswordReset files a reset request over the contact channel. The legacy
// system distinguished these by the sentinel subject "password_reset"; the
// subject is kept for compatibility and the Kind tag carries the variant.
func (h *Handler) PasswordReset(c *fiber.Ctx) error {
	var in PasswordResetRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.ErrBadRequest
	}
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	msg := models.ContactMessage{
		ClientName: in.ClientName,
		Email:      strings.ToLower(strings.TrimSpace(in.Email)),
		Subject:    "password_reset",
		Message:    in.Message,
		Kind:       models.ContactPasswordReset,
	}
	if err := h.db.Create(&msg).Error; err != nil {
		return fiber.ErrInternalServerError
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "Password reset request sent successfully",
		"contact": msg,
	})
}

/* ============================ Admin surface ============================= */

// List returns all messages, newest first. Super-admin only.
func (h *Handler) List(c *fiber.Ctx) error {
	msgs := make([]models.ContactMessage, 0)
	if err := h.db.Order("created_at DESC").Find(&msgs).Error; err != nil {
		return fiber.ErrInternalServerError
	}
	return c.JSON(msgs)
}

// Delete removes a message. Super-admin only.
func (h *Handler) Delete(c *fiber.Ctx) error {
	var msg models.ContactMessage
	if err := h.db.First(&msg, "id = ?", c.Params("id")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "Contact message not found")
		}
		return fiber.ErrInternalServerError
	}
	if err := h.db.Delete(&msg).Error; err != nil {
		return fiber.ErrInternalServerError
	}
	return c.JSON(fiber.Map{"message": "Contact message deleted successfully"})
}
