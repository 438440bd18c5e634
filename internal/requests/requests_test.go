package requests

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/walidbk/assurexpert-backend/internal/auth"
	"github.com/walidbk/assurexpert-backend/pkg/models"
)

/* ============================================================================
   Helpers
   ============================================================================ */

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

// recordingMailer captures outbound credential mails.
type recordingMailer struct {
	sent []string
}

func (m *recordingMailer) SendCredentials(_ context.Context, email, _ string) error {
	m.sent = append(m.sent, email)
	return nil
}

func newTestApp(h *Handler) *fiber.App {
	app := fiber.New(fiber.Config{ErrorHandler: auth.ErrorHandler})
	app.Post("/api/client-requests", h.Submit)
	app.Get("/api/client-requests", h.List)
	app.Put("/api/client-requests/:id/status", h.UpdateStatus)
	return app
}

func postJSON(app *fiber.App, method, url string, body any) (int, map[string]any) {
	b, _ := json.Marshal(body)
	req := httptest.NewRequest(method, url, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	resp, _ := app.Test(req)
	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

func submit(t *testing.T, app *fiber.App, email string) models.ClientRequest {
	t.Helper()
	code, out := postJSON(app, "POST", "/api/client-requests", map[string]string{
		"client_name":  "Ben Salah",
		"email":        email,
		"phone_number": "21612345",
		"company_name": "Transports BS",
		"company_code": "TBS",
	})
	if code != 201 {
		t.Fatalf("submit: want 201, got %d (%v)", code, out)
	}
	raw, _ := json.Marshal(out["request"])
	var req models.ClientRequest
	_ = json.Unmarshal(raw, &req)
	return req
}

/* ============================================================================
   Tests
   ============================================================================ */

// Approving a pending request provisions exactly one client account, mails
// the credentials, and still returns the one-time password.
func Test_Approve_ProvisionsClientOnce(t *testing.T) {
	db := openTestDB(t)
	mail := &recordingMailer{}
	app := newTestApp(NewHandler(db, mail, slog.Default()))

	req := submit(t, app, "new@client.tn")

	code, out := postJSON(app, "PUT", "/api/client-requests/"+req.ID.String()+"/status",
		map[string]string{"status": "created"})
	if code != 200 {
		t.Fatalf("approve: want 200, got %d (%v)", code, out)
	}
	password, _ := out["temporary_password"].(string)
	if len(password) != 10 {
		t.Fatalf("want a 10-char one-time password, got %q", password)
	}

	var client models.Client
	if err := db.First(&client, "email = ?", "new@client.tn").Error; err != nil {
		t.Fatalf("client not provisioned: %v", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(client.PasswordHash), []byte(password)) != nil {
		t.Fatalf("stored hash does not match the returned password")
	}
	if client.CompanyName != "Transports BS" {
		t.Fatalf("request fields should carry over, got %q", client.CompanyName)
	}
	if len(mail.sent) != 1 || mail.sent[0] != "new@client.tn" {
		t.Fatalf("credentials should be mailed once, got %v", mail.sent)
	}

	// Re-setting "created" must not provision a second account.
	code, _ = postJSON(app, "PUT", "/api/client-requests/"+req.ID.String()+"/status",
		map[string]string{"status": "created"})
	if code != 200 {
		t.Fatalf("re-approve: want 200, got %d", code)
	}
	var count int64
	db.Model(&models.Client{}).Where("email = ?", "new@client.tn").Count(&count)
	if count != 1 {
		t.Fatalf("want exactly 1 client, got %d", count)
	}
	if len(mail.sent) != 1 {
		t.Fatalf("no second credential mail expected, got %v", mail.sent)
	}
}

// Rejection records the reviewer comment and never creates an account.
func Test_Reject_NoProvisioning(t *testing.T) {
	db := openTestDB(t)
	app := newTestApp(NewHandler(db, &recordingMailer{}, slog.Default()))

	req := submit(t, app, "maybe@client.tn")
	code, _ := postJSON(app, "PUT", "/api/client-requests/"+req.ID.String()+"/status",
		map[string]string{"status": "rejected", "admin_comment": "incomplete papers"})
	if code != 200 {
		t.Fatalf("reject: want 200, got %d", code)
	}

	var got models.ClientRequest
	db.First(&got, "id = ?", req.ID)
	if got.Status != models.RequestRejected {
		t.Fatalf("want rejected, got %q", got.Status)
	}
	if got.AdminComment != "incomplete papers" {
		t.Fatalf("reviewer comment lost, got %q", got.AdminComment)
	}

	var count int64
	db.Model(&models.Client{}).Count(&count)
	if count != 0 {
		t.Fatalf("rejection must not create a client")
	}
}

// The application email must be unused by existing clients and by other
// requests.
func Test_Submit_DuplicateEmail(t *testing.T) {
	db := openTestDB(t)
	app := newTestApp(NewHandler(db, &recordingMailer{}, slog.Default()))

	db.Create(&models.Client{Name: "C", Email: "taken@x.com", PasswordHash: "x"})

	code, _ := postJSON(app, "POST", "/api/client-requests", map[string]string{
		"client_name":  "X",
		"email":        "taken@x.com",
		"phone_number": "1",
		"company_name": "Y",
		"company_code": "Z",
	})
	if code != 409 {
		t.Fatalf("existing client email: want 409, got %d", code)
	}

	_ = submit(t, app, "fresh@x.com")
	code, _ = postJSON(app, "POST", "/api/client-requests", map[string]string{
		"client_name":  "X",
		"email":        "fresh@x.com",
		"phone_number": "1",
		"company_name": "Y",
		"company_code": "Z",
	})
	if code != 409 {
		t.Fatalf("duplicate pending request: want 409, got %d", code)
	}
}

func Test_UpdateStatus_UnknownRequest(t *testing.T) {
	db := openTestDB(t)
	app := newTestApp(NewHandler(db, &recordingMailer{}, slog.Default()))

	code, _ := postJSON(app, "PUT", "/api/client-requests/4b67e5d5-0000-0000-0000-000000000000/status",
		map[string]string{"status": "created"})
	if code != 404 {
		t.Fatalf("want 404, got %d", code)
	}
}

func Test_GeneratePassword_AlphabetAndLength(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 20; i++ {
		p := generatePassword(10)
		if len(p) != 10 {
			t.Fatalf("want length 10, got %d", len(p))
		}
		for _, r := range p {
			ok := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
			if !ok {
				t.Fatalf("unexpected character %q", r)
			}
		}
		seen[p] = true
	}
	if len(seen) < 2 {
		t.Fatalf("passwords should not repeat systematically")
	}
}
