package users

import (
	"encoding/csv"
	"errors"
	"io"
	"log/slog"
	"strings"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/walidbk/assurexpert-backend/internal/mailer"
	"github.com/walidbk/assurexpert-backend/pkg/models"
	"github.com/walidbk/assurexpert-backend/pkg/validation"
)

// Handler covers principal management. Every route here sits behind the
// super-admin middleware, which stores the acting admin in locals.
type Handler struct {
	db   *gorm.DB
	mail mailer.Mailer
	log  *slog.Logger
}

func NewHandler(db *gorm.DB, mail mailer.Mailer, log *slog.Logger) *Handler {
	return &Handler{db: db, mail: mail, log: log}
}

func mustSuperAdmin(c *fiber.Ctx) *models.Admin {
	if v := c.Locals("admin"); v != nil {
		return v.(*models.Admin)
	}
	panic(errors.New("super admin not in context"))
}

/* ============================== Creation ================================ */

type CreateAdminRequest struct {
	Name         string `json:"name" validate:"required,max=255"`
	Email        string `json:"email" validate:"required,email,max=255"`
	Password     string `json:"password" validate:"required,min=8"`
	IsSuperadmin bool   `json:"is_superadmin"`
}

func (h *Handler) CreateAdmin(c *fiber.Ctx) error {
	var in CreateAdminRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.ErrBadRequest
	}
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	hash, _ := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	admin := models.Admin{
		Name:         in.Name,
		Email:        in.Email,
		PasswordHash: string(hash),
		IsSuperadmin: in.IsSuperadmin,
	}
	if err := h.db.Create(&admin).Error; err != nil {
		return fiber.NewError(fiber.StatusConflict, "email already exists")
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "Admin created successfully",
		"admin":   admin,
	})
}

type CreateClientRequest struct {
	Name     string `json:"name" validate:"required,max=255"`
	Email    string `json:"email" validate:"required,email,max=255"`
	Code     string `json:"code" validate:"required,max=255"`
	Password string `json:"password" validate:"required,min=8"`
}

func (h *Handler) CreateClient(c *fiber.Ctx) error {
	var in CreateClientRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.ErrBadRequest
	}
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	hash, _ := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	client := models.Client{
		Name:         in.Name,
		Email:        in.Email,
		Code:         in.Code,
		PasswordHash: string(hash),
	}
	if err := h.db.Create(&client).Error; err != nil {
		return fiber.NewError(fiber.StatusConflict, "email already exists")
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "Client created successfully",
		"client":  client,
	})
}

/* ============================== Deletion ================================ */

type DeleteUserRequest struct {
	Password string `json:"password" validate:"required"`
	UserID   string `json:"user_id" validate:"required,uuid"`
	UserType string `json:"user_type" validate:"required,oneof=admin client"`
}

// DeleteUser hard-deletes a principal after re-verifying the super-admin's
// own password. Deleting a client cascades to their dossiers; deleting an
// admin detaches them from any assigned dossier.
func (h *Handler) DeleteUser(c *fiber.Ctx) error {
	super := mustSuperAdmin(c)

	var in DeleteUserRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.ErrBadRequest
	}
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	if bcrypt.CompareHashAndPassword([]byte(super.PasswordHash), []byte(in.Password)) != nil {
		return fiber.NewError(fiber.StatusForbidden, "Incorrect password")
	}

	if in.UserType == "admin" {
		if in.UserID == super.ID.String() {
			return fiber.NewError(fiber.StatusBadRequest, "You cannot delete yourself")
		}
		var target models.Admin
		if err := h.db.First(&target, "id = ?", in.UserID).Error; err != nil {
			return fiber.ErrNotFound
		}
		err := h.db.Transaction(func(tx *gorm.DB) error {
			if err := tx.Model(&models.Dossier{}).
				Where("expert_id = ?", target.ID).
				Update("expert_id", nil).Error; err != nil {
				return err
			}
			return tx.Delete(&target).Error
		})
		if err != nil {
			return fiber.ErrInternalServerError
		}
	} else {
		var target models.Client
		if err := h.db.First(&target, "id = ?", in.UserID).Error; err != nil {
			return fiber.ErrNotFound
		}
		err := h.db.Transaction(func(tx *gorm.DB) error {
			if err := tx.Where("client_id = ?", target.ID).
				Delete(&models.Dossier{}).Error; err != nil {
				return err
			}
			return tx.Delete(&target).Error
		})
		if err != nil {
			return fiber.ErrInternalServerError
		}
	}

	return c.JSON(fiber.Map{"message": "User deleted successfully"})
}

/* ============================== Listing ================================= */

// ListAdmins returns every admin except the caller.
func (h *Handler) ListAdmins(c *fiber.Ctx) error {
	super := mustSuperAdmin(c)
	admins := make([]models.Admin, 0)
	if err := h.db.Where("id != ?", super.ID).Find(&admins).Error; err != nil {
		return fiber.ErrInternalServerError
	}
	return c.JSON(admins)
}

func (h *Handler) ListClients(c *fiber.Ctx) error {
	clients := make([]models.Client, 0)
	if err := h.db.Find(&clients).Error; err != nil {
		return fiber.ErrInternalServerError
	}
	return c.JSON(clients)
}

/* ============================= CSV import =============================== */

type importRowError struct {
	Row   map[string]string `json:"row"`
	Error string            `json:"error"`
}

// ImportUsers bulk-creates principals from a CSV with a header row. Rows are
// validated independently; a bad row never aborts the batch. The response
// reports created/failed counts with per-row errors.
func (h *Handler) ImportUsers(c *fiber.Ctx) error {
	userType := c.FormValue("type")
	if userType != "admin" && userType != "client" {
		return validation.Respond(c, map[string][]string{
			"type": {"Value is not allowed"},
		})
	}

	fh, err := c.FormFile("file")
	if err != nil {
		return validation.Respond(c, map[string][]string{
			"file": {"This field is required"},
		})
	}
	f, err := fh.Open()
	if err != nil {
		return fiber.ErrInternalServerError
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1 // tolerate ragged rows; they fail per-row below

	headers, err := r.Read()
	if err != nil {
		return fiber.NewError(fiber.StatusUnprocessableEntity, "CSV file is empty or unreadable")
	}
	for i := range headers {
		headers[i] = strings.TrimSpace(headers[i])
	}
	for _, required := range []string{"name", "email", "password"} {
		found := false
		for _, hcol := range headers {
			if hcol == required {
				found = true
				break
			}
		}
		if !found {
			return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
				"error":           "CSV file missing required field: " + required,
				"required_fields": []string{"name", "email", "password"},
			})
		}
	}

	created, failed := 0, 0
	rowErrors := make([]importRowError, 0)

	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			failed++
			continue
		}
		if len(record) != len(headers) {
			failed++
			continue
		}

		row := map[string]string{}
		for i, hcol := range headers {
			row[hcol] = strings.TrimSpace(record[i])
		}

		if err := h.importRow(userType, row); err != nil {
			failed++
			rowErrors = append(rowErrors, importRowError{Row: row, Error: err.Error()})
			continue
		}
		created++
	}

	return c.JSON(fiber.Map{
		"message": "Import completed",
		"created": created,
		"failed":  failed,
		"errors":  rowErrors,
	})
}

func (h *Handler) importRow(userType string, row map[string]string) error {
	if row["name"] == "" || row["email"] == "" || row["password"] == "" {
		return errors.New("name, email and password are required")
	}
	email := strings.ToLower(row["email"])
	hash, _ := bcrypt.GenerateFromPassword([]byte(row["password"]), bcrypt.DefaultCost)

	if userType == "admin" {
		admin := models.Admin{
			Name:         row["name"],
			Email:        email,
			PasswordHash: string(hash),
			IsSuperadmin: row["role"] == "superadmin",
		}
		if err := h.db.Create(&admin).Error; err != nil {
			return errors.New("email already exists")
		}
		return nil
	}

	client := models.Client{
		Name:         row["name"],
		Email:        email,
		Code:         row["code"],
		PasswordHash: string(hash),
	}
	if err := h.db.Create(&client).Error; err != nil {
		return errors.New("email already exists")
	}
	return nil
}

/* ========================== Forced password reset ======================= */

type ForcePasswordResetRequest struct {
	TargetType              string `json:"target_type" validate:"required,oneof=admin client"`
	TargetID                string `json:"target_id" validate:"required,uuid"`
	NewPassword             string `json:"new_password" validate:"required,min=8"`
	NewPasswordConfirmation string `json:"new_password_confirmation" validate:"required,eqfield=NewPassword"`
	SuperadminPassword      string `json:"superadmin_password" validate:"required"`
}

// ForcePasswordReset overwrites a principal's credential after re-verifying
// the super-admin's own password.
func (h *Handler) ForcePasswordReset(c *fiber.Ctx) error {
	super := mustSuperAdmin(c)

	var in ForcePasswordResetRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.ErrBadRequest
	}
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	if bcrypt.CompareHashAndPassword([]byte(super.PasswordHash), []byte(in.SuperadminPassword)) != nil {
		return fiber.NewError(fiber.StatusForbidden, "Superadmin password is incorrect")
	}

	hash, _ := bcrypt.GenerateFromPassword([]byte(in.NewPassword), bcrypt.DefaultCost)

	if in.TargetType == "admin" {
		var target models.Admin
		if err := h.db.First(&target, "id = ?", in.TargetID).Error; err != nil {
			return fiber.ErrNotFound
		}
		if err := h.db.Model(&target).Update("password_hash", string(hash)).Error; err != nil {
			return fiber.ErrInternalServerError
		}
	} else {
		var target models.Client
		if err := h.db.First(&target, "id = ?", in.TargetID).Error; err != nil {
			return fiber.ErrNotFound
		}
		if err := h.db.Model(&target).Update("password_hash", string(hash)).Error; err != nil {
			return fiber.ErrInternalServerError
		}
	}

	return c.JSON(fiber.Map{"message": "Password reset successfully"})
}

/* =========================== Credential mail ============================ */

type SendCredentialsRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// SendCredentials mails login credentials to a principal.
func (h *Handler) SendCredentials(c *fiber.Ctx) error {
	var in SendCredentialsRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.ErrBadRequest
	}
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	if err := h.mail.SendCredentials(c.Context(), in.Email, in.Password); err != nil {
		h.log.Error("credential mail failed", "email", in.Email)
		return fiber.NewError(fiber.StatusInternalServerError, "Failed to send email.")
	}
	return c.JSON(fiber.Map{"message": "Email sent successfully."})
}
