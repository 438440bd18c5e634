package requests

import (
	"crypto/rand"
	"errors"
	"log/slog"
	"math/big"
	"strings"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/walidbk/assurexpert-backend/internal/mailer"
	"github.com/walidbk/assurexpert-backend/pkg/models"
	"github.com/walidbk/assurexpert-backend/pkg/validation"
)

type Handler struct {
	db   *gorm.DB
	mail mailer.Mailer
	log  *slog.Logger
}

func NewHandler(db *gorm.DB, mail mailer.Mailer, log *slog.Logger) *Handler {
	return &Handler{db: db, mail: mail, log: log}
}

/* ================================ Submit ================================ */

type SubmitRequest struct {
	ClientName  string `json:"client_name" validate:"required,max=255"`
	Email       string `json:"email" validate:"required,email,max=255"`
	PhoneNumber string `json:"phone_number" validate:"required,max=20"`
	CompanyName string `json:"company_name" validate:"required,max=255"`
	CompanyCode string `json:"company_code" validate:"required,max=50"`
}

// Submit files a public onboarding application. The email must be unused by
// both pending requests and existing clients.
func (h *Handler) Submit(c *fiber.Ctx) error {
	var in SubmitRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.ErrBadRequest
	}
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	// Unique across client_requests AND clients
	var count int64
	h.db.Model(&models.Client{}).Where("email = ?", in.Email).Count(&count)
	if count > 0 {
		return fiber.NewError(fiber.StatusConflict, "email already exists")
	}

	req := models.ClientRequest{
		ClientName:  in.ClientName,
		Email:       in.Email,
		PhoneNumber: in.PhoneNumber,
		CompanyName: in.CompanyName,
		CompanyCode: in.CompanyCode,
		Status:      models.RequestPending,
	}
	if err := h.db.Create(&req).Error; err != nil {
		return fiber.NewError(fiber.StatusConflict, "email already exists")
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "Request submitted successfully",
		"request": req,
	})
}

/* ================================ Listing =============================== */

// List returns all requests, newest first. Super-admin only.
func (h *Handler) List(c *fiber.Ctx) error {
	reqs := make([]models.ClientRequest, 0)
	if err := h.db.Order("created_at DESC").Find(&reqs).Error; err != nil {
		return fiber.ErrInternalServerError
	}
	return c.JSON(reqs)
}

func (h *Handler) Get(c *fiber.Ctx) error {
	var req models.ClientRequest
	if err := h.db.First(&req, "id = ?", c.Params("id")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fiber.ErrNotFound
		}
		return fiber.ErrInternalServerError
	}
	return c.JSON(req)
}

/* ============================ Status review ============================= */

type reviewRequest struct {
	Status       string `json:"status" validate:"required,oneof=pending created rejected"`
	AdminComment string `json:"admin_comment"`
}

// UpdateStatus reviews an application. Moving to "created" provisions a
// Client with a one-time generated password — idempotently: re-setting a
// request that is already "created" never provisions a second account.
//
// The plaintext password is returned in the response to preserve the legacy
// contract, and additionally mailed out of band (see DESIGN.md; returning
// credentials over the API is flagged there as a known smell).
func (h *Handler) UpdateStatus(c *fiber.Ctx) error {
	var in reviewRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.ErrBadRequest
	}
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	var req models.ClientRequest
	if err := h.db.First(&req, "id = ?", c.Params("id")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fiber.ErrNotFound
		}
		return fiber.ErrInternalServerError
	}

	if models.RequestStatus(in.Status) == models.RequestCreated && req.Status != models.RequestCreated {
		password := generatePassword(10)
		hash, _ := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)

		client := models.Client{
			Name:         req.ClientName,
			Email:        req.Email,
			PasswordHash: string(hash),
			PhoneNumber:  req.PhoneNumber,
			CompanyName:  req.CompanyName,
			CompanyCode:  req.CompanyCode,
		}
		if err := h.db.Create(&client).Error; err != nil {
			return fiber.NewError(fiber.StatusConflict, "email already exists")
		}

		if err := h.db.Model(&req).Updates(map[string]any{
			"status":        models.RequestCreated,
			"admin_comment": in.AdminComment,
		}).Error; err != nil {
			return fiber.ErrInternalServerError
		}

		// Best-effort: a mail failure never blocks account creation.
		if err := h.mail.SendCredentials(c.Context(), client.Email, password); err != nil {
			h.log.Warn("credential mail not delivered", "email", client.Email)
		}

		return c.JSON(fiber.Map{
			"message":            "Client account created successfully",
			"client":             client,
			"temporary_password": password,
		})
	}

	if err := h.db.Model(&req).Updates(map[string]any{
		"status":        models.RequestStatus(in.Status),
		"admin_comment": in.AdminComment,
	}).Error; err != nil {
		return fiber.ErrInternalServerError
	}

	return c.JSON(fiber.Map{
		"message": "Status updated successfully",
		"request": req,
	})
}

/* ============================== Password ================================ */

const passwordAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// generatePassword draws n characters from crypto/rand.
func generatePassword(n int) string {
	b := make([]byte, n)
	max := big.NewInt(int64(len(passwordAlphabet)))
	for i := range b {
		idx, _ := rand.Int(rand.Reader, max)
		b[i] = passwordAlphabet[idx.Int64()]
	}
	return string(b)
}
