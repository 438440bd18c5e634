package contact

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/walidbk/assurexpert-backend/internal/auth"
	"github.com/walidbk/assurexpert-backend/pkg/models"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(models.All()...); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func newTestApp(h *Handler) *fiber.App {
	app := fiber.New(fiber.Config{ErrorHandler: auth.ErrorHandler})
	app.Post("/api/contact", h.Store)
	app.Post("/api/password-reset-request", h.PasswordReset)
	app.Get("/api/contact-messages", h.List)
	app.Delete("/api/contact-messages/:id", h.Delete)
	return app
}

func postJSON(app *fiber.App, url string, body any) int {
	b, _ := json.Marshal(body)
	req := httptest.NewRequest("POST", url, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	resp, _ := app.Test(req)
	return resp.StatusCode
}

// General messages and password reset requests land in the same table but
// with distinct kinds.
func Test_Store_And_PasswordReset_Kinds(t *testing.T) {
	db := openTestDB(t)
	app := newTestApp(NewHandler(db))

	code := postJSON(app, "/api/contact", map[string]string{
		"client_name": "Ben Salah",
		"email":       "Ben@X.com",
		"subject":     "question dossier",
		"message":     "ou en est mon dossier?",
	})
	if code != 201 {
		t.Fatalf("store: want 201, got %d", code)
	}

	code = postJSON(app, "/api/password-reset-request", map[string]string{
		"email": "ben@x.com",
	})
	if code != 201 {
		t.Fatalf("reset request: want 201, got %d", code)
	}

	var general, reset models.ContactMessage
	if err := db.First(&general, "kind = ?", models.ContactGeneral).Error; err != nil {
		t.Fatal(err)
	}
	if general.Email != "ben@x.com" {
		t.Fatalf("email should be lowercased, got %q", general.Email)
	}
	if err := db.First(&reset, "kind = ?", models.ContactPasswordReset).Error; err != nil {
		t.Fatal(err)
	}
	if reset.Subject != "password_reset" {
		t.Fatalf("legacy sentinel subject expected, got %q", reset.Subject)
	}
}

func Test_Store_RejectsIncomplete(t *testing.T) {
	db := openTestDB(t)
	app := newTestApp(NewHandler(db))

	code := postJSON(app, "/api/contact", map[string]string{
		"client_name": "X",
		"email":       "not-an-email",
		"subject":     "s",
		"message":     "m",
	})
	if code != 422 {
		t.Fatalf("want 422, got %d", code)
	}
}

func Test_Delete_Message(t *testing.T) {
	db := openTestDB(t)
	app := newTestApp(NewHandler(db))

	msg := models.ContactMessage{Email: "a@x.com", Subject: "s", Message: "m"}
	db.Create(&msg)

	req := httptest.NewRequest("DELETE", "/api/contact-messages/"+msg.ID.String(), nil)
	resp, _ := app.Test(req)
	if resp.StatusCode != 200 {
		t.Fatalf("delete: want 200, got %d", resp.StatusCode)
	}

	var count int64
	db.Model(&models.ContactMessage{}).Count(&count)
	if count != 0 {
		t.Fatalf("message should be gone")
	}

	req = httptest.NewRequest("DELETE", "/api/contact-messages/"+uuid.NewString(), nil)
	resp, _ = app.Test(req)
	if resp.StatusCode != 404 {
		t.Fatalf("missing message: want 404, got %d", resp.StatusCode)
	}
}
