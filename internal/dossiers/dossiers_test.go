package dossiers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/walidbk/assurexpert-backend/internal/auth"
	"github.com/walidbk/assurexpert-backend/internal/storage"
	"github.com/walidbk/assurexpert-backend/pkg/models"
)

/* ============================================================================
   Helpers
   ============================================================================ */

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	// unique in-memory DB per test name to avoid leakage via shared cache
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

// injectAuth fills the locals RequireAuth would set, so tests skip JWTs.
func injectAuth(userID uuid.UUID, ptype models.PrincipalType) fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Locals("userID", userID.String())
		c.Locals("ptype", string(ptype))
		c.Locals("jti", uuid.NewString())
		return c.Next()
	}
}

// newTestApp mounts the dossier routes for one principal. Static paths
// (seenadmin, adminchange) come before the parameterized :id routes so they
// are not shadowed.
func newTestApp(h *Handler, userID uuid.UUID, ptype models.PrincipalType) *fiber.App {
	app := fiber.New(fiber.Config{ErrorHandler: auth.ErrorHandler})
	app.Use(injectAuth(userID, ptype))

	app.Get("/api/dossiers/seenadmin", h.CountUnseenByAdmin)
	app.Post("/api/dossiers/seenadmin", h.MarkSeenByAdmin)
	app.Get("/api/dossiers/adminchange", h.CountUnseenChanges)
	app.Post("/api/dossiers/adminchange", h.MarkChangesSeen)

	app.Post("/api/dossiers", h.Create)
	app.Get("/api/dossiers", h.List)
	app.Get("/api/dossiers/:id", h.Get)
	app.Put("/api/dossiers/:id", h.Update)
	app.Delete("/api/dossiers/:id", h.Delete)
	app.Put("/api/dossiers/:id/assign-expert", h.AssignExpert)
	app.Put("/api/dossiers/:id/status", h.UpdateStatus)
	app.Post("/api/dossiers/:id/comments", h.AddComment)
	app.Get("/api/dossiers/:id/files/:type", h.FetchAttachment)

	return app
}

func seedClient(t *testing.T, db *gorm.DB, name string) models.Client {
	t.Helper()
	c := models.Client{
		Name:         name,
		Email:        strings.ToLower(name) + "_" + uuid.NewString()[:8] + "@x.com",
		PasswordHash: "x",
	}
	if err := db.Create(&c).Error; err != nil {
		t.Fatal(err)
	}
	return c
}

func seedAdmin(t *testing.T, db *gorm.DB, name string, super bool) models.Admin {
	t.Helper()
	a := models.Admin{
		Name:         name,
		Email:        strings.ToLower(name) + "_" + uuid.NewString()[:8] + "@x.com",
		PasswordHash: "x",
		IsSuperadmin: super,
	}
	if err := db.Create(&a).Error; err != nil {
		t.Fatal(err)
	}
	return a
}

func seedDossier(t *testing.T, db *gorm.DB, clientID uuid.UUID, expertID *uuid.UUID) models.Dossier {
	t.Helper()
	d := models.Dossier{
		ClientID:        clientID,
		ExpertID:        expertID,
		Agence:          "Agence Centrale",
		NumSinistre:     "SN-" + uuid.NewString()[:6],
		AssureNom:       "Assure",
		NumPolice:       "P-001",
		Compagnie:       "Comp",
		CodeAgence:      "C01",
		NumChassis:      "CH123",
		Matricule:       "1234 TU 567",
		Annee:           2021,
		Categorie:       "VP",
		Status:          models.DossierNew,
		SeenByAdmin:     false,
		AdminChangeSeen: true,
	}
	if err := db.Create(&d).Error; err != nil {
		t.Fatal(err)
	}
	return d
}

func reload(t *testing.T, db *gorm.DB, id uuid.UUID) models.Dossier {
	t.Helper()
	var d models.Dossier
	if err := db.First(&d, "id = ?", id).Error; err != nil {
		t.Fatal(err)
	}
	return d
}

func putJSON(app *fiber.App, url string, body any) (int, map[string]any) {
	b, _ := json.Marshal(body)
	req := httptest.NewRequest("PUT", url, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	resp, _ := app.Test(req)
	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

/* ============================================================================
   Tests — creation
   ============================================================================ */

// addFilePart attaches a fake file with an explicit content type, since
// CreateFormFile would force application/octet-stream.
func addFilePart(w *multipart.Writer, field, filename, contentType, content string) {
	hdr := textproto.MIMEHeader{}
	hdr.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name="%s"; filename="%s"`, field, filename))
	hdr.Set("Content-Type", contentType)
	part, _ := w.CreatePart(hdr)
	_, _ = io.WriteString(part, content)
}

func buildCreateForm(t *testing.T) (*bytes.Buffer, string) {
	t.Helper()
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)

	fields := map[string]string{
		"agence":               "Agence Centrale",
		"num_sinistre":         "SN-2024-001",
		"date_sinistre":        "2024-03-10",
		"date_declaration":     "2024-03-11",
		"assure_nom":           "Ben Salah",
		"num_police":           "P-778",
		"compagnie":            "Star",
		"code_agence":          "C14",
		"num_chassis":          "VF1ABCDE",
		"matricule":            "1234 TU 567",
		"annee":                "2021",
		"categorie":            "VP",
		"date_debut_assurance": "2024-01-01",
		"date_fin_assurance":   "2024-12-31",
		"tiers_nom":            "Trabelsi",
		"tiers_matricule":      "220-4521",
		"tiers_code_agence":    "C02",
		"tiers_num_police":     "P-102",
		"tiers_compagnie":      "GAT",
	}
	for k, v := range fields {
		_ = w.WriteField(k, v)
	}
	addFilePart(w, "carte_grise_photo", "cg.jpg", "image/jpeg", "cg-bytes")
	addFilePart(w, "declaration_recto_photo", "recto.jpg", "image/jpeg", "recto-bytes")
	addFilePart(w, "declaration_verso_photo", "verso.png", "image/png", "verso-bytes")
	addFilePart(w, "photos_accident[]", "a1.jpg", "image/jpeg", "photo-1")
	addFilePart(w, "photos_accident[]", "a2.jpg", "image/jpeg", "photo-2")
	_ = w.Close()

	return buf, w.FormDataContentType()
}

// A fresh dossier belongs to the caller and starts with status "new",
// seenbyadmin false and adminchangeseen true.
func Test_Create_Defaults(t *testing.T) {
	db := openTestDB(t)
	store := storage.NewMemory()
	client := seedClient(t, db, "Owner")

	app := newTestApp(NewHandler(db, store), client.ID, models.PrincipalClient)

	body, ct := buildCreateForm(t)
	req := httptest.NewRequest("POST", "/api/dossiers", body)
	req.Header.Set("Content-Type", ct)
	resp, _ := app.Test(req)
	if resp.StatusCode != 201 {
		raw, _ := io.ReadAll(resp.Body)
		t.Fatalf("want 201, got %d: %s", resp.StatusCode, raw)
	}

	var out models.Dossier
	_ = json.NewDecoder(resp.Body).Decode(&out)
	if out.ClientID != client.ID {
		t.Fatalf("dossier should belong to caller")
	}
	if out.Status != models.DossierNew {
		t.Fatalf("want status new, got %q", out.Status)
	}
	if out.SeenByAdmin {
		t.Fatalf("seenbyadmin should start false")
	}
	if !out.AdminChangeSeen {
		t.Fatalf("adminchangeseen should start true")
	}
	if len(out.PhotosAccident) != 2 {
		t.Fatalf("want 2 accident photos, got %d", len(out.PhotosAccident))
	}
	// 3 documents + 2 photos
	if store.Len() != 5 {
		t.Fatalf("want 5 stored objects, got %d", store.Len())
	}
}

// Admins cannot open dossiers, not even super.
func Test_Create_AdminForbidden(t *testing.T) {
	db := openTestDB(t)
	super := seedAdmin(t, db, "Root", true)

	app := newTestApp(NewHandler(db, storage.NewMemory()), super.ID, models.PrincipalAdmin)

	body, ct := buildCreateForm(t)
	req := httptest.NewRequest("POST", "/api/dossiers", body)
	req.Header.Set("Content-Type", ct)
	resp, _ := app.Test(req)
	if resp.StatusCode != 403 {
		t.Fatalf("want 403, got %d", resp.StatusCode)
	}
}

/* ============================================================================
   Tests — update restrictions
   ============================================================================ */

// A client editing their own dossier can change claim fields but the
// admin-only fields in the same payload are silently ignored.
func Test_ClientUpdate_AdminFieldsIgnored(t *testing.T) {
	db := openTestDB(t)
	client := seedClient(t, db, "Owner")
	expert := seedAdmin(t, db, "Expert", false)
	d := seedDossier(t, db, client.ID, nil)

	app := newTestApp(NewHandler(db, storage.NewMemory()), client.ID, models.PrincipalClient)
	code, _ := putJSON(app, "/api/dossiers/"+d.ID.String(), map[string]any{
		"agence":    "Nouvelle Agence",
		"status":    "ended",
		"link_pv":   "hijacked",
		"expert_id": expert.ID.String(),
	})
	if code != 200 {
		t.Fatalf("want 200, got %d", code)
	}

	got := reload(t, db, d.ID)
	if got.Agence != "Nouvelle Agence" {
		t.Fatalf("claim field should update, got %q", got.Agence)
	}
	if got.Status != models.DossierNew {
		t.Fatalf("client must not change status, got %q", got.Status)
	}
	if got.LinkPV != "" {
		t.Fatalf("client must not set link_pv, got %q", got.LinkPV)
	}
	if got.ExpertID != nil {
		t.Fatalf("client must not assign an expert")
	}
	if !got.AdminChangeSeen {
		t.Fatalf("client edits must not flip adminchangeseen")
	}
}

// A client cannot touch another client's dossier at all.
func Test_ClientUpdate_NotOwner_Forbidden(t *testing.T) {
	db := openTestDB(t)
	owner := seedClient(t, db, "Owner")
	other := seedClient(t, db, "Other")
	d := seedDossier(t, db, owner.ID, nil)

	app := newTestApp(NewHandler(db, storage.NewMemory()), other.ID, models.PrincipalClient)
	code, _ := putJSON(app, "/api/dossiers/"+d.ID.String(), map[string]any{
		"agence": "X",
	})
	if code != 403 {
		t.Fatalf("want 403, got %d", code)
	}
}

// A non-super admin may only update dossiers assigned to them, and any
// admin-authored update flips adminchangeseen to false.
func Test_AdminUpdate_AssignmentGate(t *testing.T) {
	db := openTestDB(t)
	client := seedClient(t, db, "Owner")
	assigned := seedAdmin(t, db, "Assigned", false)
	stranger := seedAdmin(t, db, "Stranger", false)
	d := seedDossier(t, db, client.ID, &assigned.ID)

	h := NewHandler(db, storage.NewMemory())

	appStranger := newTestApp(h, stranger.ID, models.PrincipalAdmin)
	code, _ := putJSON(appStranger, "/api/dossiers/"+d.ID.String(), map[string]any{
		"status": "in_progress",
	})
	if code != 403 {
		t.Fatalf("unassigned admin: want 403, got %d", code)
	}

	appAssigned := newTestApp(h, assigned.ID, models.PrincipalAdmin)
	code, _ = putJSON(appAssigned, "/api/dossiers/"+d.ID.String(), map[string]any{
		"status": "in_progress",
	})
	if code != 200 {
		t.Fatalf("assigned admin: want 200, got %d", code)
	}

	got := reload(t, db, d.ID)
	if got.Status != models.DossierInProgress {
		t.Fatalf("want in_progress, got %q", got.Status)
	}
	if got.AdminChangeSeen {
		t.Fatalf("admin update must flip adminchangeseen to false")
	}
}

// expert_id in a generic update is applied only for super-admins; a plain
// admin sending it is a no-op on that column.
func Test_AdminUpdate_ExpertID_SuperOnly(t *testing.T) {
	db := openTestDB(t)
	client := seedClient(t, db, "Owner")
	assigned := seedAdmin(t, db, "Assigned", false)
	target := seedAdmin(t, db, "Target", false)
	super := seedAdmin(t, db, "Root", true)
	d := seedDossier(t, db, client.ID, &assigned.ID)

	h := NewHandler(db, storage.NewMemory())

	appAssigned := newTestApp(h, assigned.ID, models.PrincipalAdmin)
	code, _ := putJSON(appAssigned, "/api/dossiers/"+d.ID.String(), map[string]any{
		"expert_id": target.ID.String(),
	})
	if code != 200 {
		t.Fatalf("want 200, got %d", code)
	}
	if got := reload(t, db, d.ID); *got.ExpertID != assigned.ID {
		t.Fatalf("non-super admin must not move expert_id")
	}

	appSuper := newTestApp(h, super.ID, models.PrincipalAdmin)
	code, _ = putJSON(appSuper, "/api/dossiers/"+d.ID.String(), map[string]any{
		"expert_id": target.ID.String(),
	})
	if code != 200 {
		t.Fatalf("want 200, got %d", code)
	}
	got := reload(t, db, d.ID)
	if *got.ExpertID != target.ID {
		t.Fatalf("super-admin should move expert_id")
	}
	if got.ExpertNom != target.Name {
		t.Fatalf("expert_nom should default to the expert's name, got %q", got.ExpertNom)
	}
}

/* ============================================================================
   Tests — listing scope
   ============================================================================ */

func listIDs(t *testing.T, app *fiber.App) []string {
	t.Helper()
	req := httptest.NewRequest("GET", "/api/dossiers", nil)
	resp, _ := app.Test(req)
	if resp.StatusCode != 200 {
		t.Fatalf("list got %d", resp.StatusCode)
	}
	var out []struct {
		ID string `json:"id"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	ids := make([]string, 0, len(out))
	for _, d := range out {
		ids = append(ids, d.ID)
	}
	return ids
}

// Clients see their own dossiers, experts their assigned ones, super-admins
// everything.
func Test_List_ScopedPerPrincipal(t *testing.T) {
	db := openTestDB(t)
	c1 := seedClient(t, db, "One")
	c2 := seedClient(t, db, "Two")
	expert := seedAdmin(t, db, "Expert", false)
	super := seedAdmin(t, db, "Root", true)

	d1 := seedDossier(t, db, c1.ID, &expert.ID)
	d2 := seedDossier(t, db, c2.ID, nil)

	h := NewHandler(db, storage.NewMemory())

	ids := listIDs(t, newTestApp(h, c1.ID, models.PrincipalClient))
	if len(ids) != 1 || ids[0] != d1.ID.String() {
		t.Fatalf("client should see only their own, got %v", ids)
	}

	ids = listIDs(t, newTestApp(h, expert.ID, models.PrincipalAdmin))
	if len(ids) != 1 || ids[0] != d1.ID.String() {
		t.Fatalf("expert should see only assigned, got %v", ids)
	}

	ids = listIDs(t, newTestApp(h, super.ID, models.PrincipalAdmin))
	if len(ids) != 2 {
		t.Fatalf("super should see all, got %v", ids)
	}
	_ = d2
}

/* ============================================================================
   Tests — seen flags
   ============================================================================ */

// Marking seen flips every unseen dossier in scope once; an immediate second
// call affects zero rows.
func Test_MarkSeenByAdmin_Idempotent(t *testing.T) {
	db := openTestDB(t)
	client := seedClient(t, db, "Owner")
	super := seedAdmin(t, db, "Root", true)
	seedDossier(t, db, client.ID, nil)
	seedDossier(t, db, client.ID, nil)
	seedDossier(t, db, client.ID, nil)

	app := newTestApp(NewHandler(db, storage.NewMemory()), super.ID, models.PrincipalAdmin)

	req := httptest.NewRequest("GET", "/api/dossiers/seenadmin", nil)
	resp, _ := app.Test(req)
	var count struct {
		Unseen int64 `json:"unseen_count"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&count)
	if count.Unseen != 3 {
		t.Fatalf("want 3 unseen, got %d", count.Unseen)
	}

	resp, _ = app.Test(httptest.NewRequest("POST", "/api/dossiers/seenadmin", nil))
	var mark struct {
		Affected int64 `json:"affected_count"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&mark)
	if mark.Affected != 3 {
		t.Fatalf("first mark should affect 3, got %d", mark.Affected)
	}

	resp, _ = app.Test(httptest.NewRequest("POST", "/api/dossiers/seenadmin", nil))
	_ = json.NewDecoder(resp.Body).Decode(&mark)
	if mark.Affected != 0 {
		t.Fatalf("second mark should affect 0, got %d", mark.Affected)
	}
}

// A non-super admin's seen scope covers only their assigned dossiers.
func Test_MarkSeenByAdmin_ExpertScope(t *testing.T) {
	db := openTestDB(t)
	client := seedClient(t, db, "Owner")
	expert := seedAdmin(t, db, "Expert", false)
	mine := seedDossier(t, db, client.ID, &expert.ID)
	other := seedDossier(t, db, client.ID, nil)

	app := newTestApp(NewHandler(db, storage.NewMemory()), expert.ID, models.PrincipalAdmin)

	resp, _ := app.Test(httptest.NewRequest("POST", "/api/dossiers/seenadmin", nil))
	var mark struct {
		Affected int64 `json:"affected_count"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&mark)
	if mark.Affected != 1 {
		t.Fatalf("expert mark should affect 1, got %d", mark.Affected)
	}

	if got := reload(t, db, mine.ID); !got.SeenByAdmin {
		t.Fatalf("assigned dossier should be marked seen")
	}
	if got := reload(t, db, other.ID); got.SeenByAdmin {
		t.Fatalf("unassigned dossier must stay unseen")
	}
}

// The client-side flag mirrors the same contract for adminchangeseen.
func Test_MarkChangesSeen_ClientScope(t *testing.T) {
	db := openTestDB(t)
	owner := seedClient(t, db, "Owner")
	other := seedClient(t, db, "Other")
	d := seedDossier(t, db, owner.ID, nil)
	db.Model(&d).Update("adminchangeseen", false)
	dOther := seedDossier(t, db, other.ID, nil)
	db.Model(&dOther).Update("adminchangeseen", false)

	app := newTestApp(NewHandler(db, storage.NewMemory()), owner.ID, models.PrincipalClient)

	resp, _ := app.Test(httptest.NewRequest("GET", "/api/dossiers/adminchange", nil))
	var count struct {
		Unseen int64 `json:"unseen_changes_count"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&count)
	if count.Unseen != 1 {
		t.Fatalf("want 1 unseen change, got %d", count.Unseen)
	}

	resp, _ = app.Test(httptest.NewRequest("POST", "/api/dossiers/adminchange", nil))
	var mark struct {
		Affected int64 `json:"affected_count"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&mark)
	if mark.Affected != 1 {
		t.Fatalf("want affected 1, got %d", mark.Affected)
	}
	if got := reload(t, db, dOther.ID); got.AdminChangeSeen {
		t.Fatalf("other client's flag must be untouched")
	}
}

/* ============================================================================
   Tests — lifecycle
   ============================================================================ */

// Comments accumulate: the second append never erases the first, and the
// rendered log carries both blocks.
func Test_AddComment_AppendOnly(t *testing.T) {
	db := openTestDB(t)
	client := seedClient(t, db, "Owner")
	super := seedAdmin(t, db, "Root", true)
	d := seedDossier(t, db, client.ID, nil)

	app := newTestApp(NewHandler(db, storage.NewMemory()), super.ID, models.PrincipalAdmin)

	for _, text := range []string{"premiere note", "deuxieme note"} {
		b, _ := json.Marshal(map[string]string{"admin_comment": text})
		req := httptest.NewRequest("POST", "/api/dossiers/"+d.ID.String()+"/comments", bytes.NewReader(b))
		req.Header.Set("Content-Type", "application/json")
		resp, _ := app.Test(req)
		if resp.StatusCode != 200 {
			t.Fatalf("comment got %d", resp.StatusCode)
		}
	}

	got := reload(t, db, d.ID)
	if len(got.AdminComment) != 2 {
		t.Fatalf("want 2 entries, got %d", len(got.AdminComment))
	}
	rendered := got.AdminComment.String()
	if !strings.Contains(rendered, "premiere note") || !strings.Contains(rendered, "deuxieme note") {
		t.Fatalf("rendered log missing entries: %q", rendered)
	}
	if !strings.Contains(rendered, "Root:") {
		t.Fatalf("entries should carry the author name: %q", rendered)
	}
	if got.AdminChangeSeen {
		t.Fatalf("comment must flip adminchangeseen to false")
	}
}

// Assigning a super-admin as expert is rejected and leaves the dossier
// untouched.
func Test_AssignExpert_RejectsInvalidTarget(t *testing.T) {
	db := openTestDB(t)
	client := seedClient(t, db, "Owner")
	super := seedAdmin(t, db, "Root", true)
	otherSuper := seedAdmin(t, db, "Root2", true)
	d := seedDossier(t, db, client.ID, nil)

	app := newTestApp(NewHandler(db, storage.NewMemory()), super.ID, models.PrincipalAdmin)

	for _, target := range []string{otherSuper.ID.String(), uuid.NewString()} {
		code, _ := putJSON(app, "/api/dossiers/"+d.ID.String()+"/assign-expert", map[string]string{
			"expert_id": target,
		})
		if code != 400 {
			t.Fatalf("target %s: want 400, got %d", target, code)
		}
	}
	if got := reload(t, db, d.ID); got.ExpertID != nil {
		t.Fatalf("failed assignment must not set expert_id")
	}
}

// A valid assignment records the expert and defaults expert_nom.
func Test_AssignExpert_SetsNameAndFlag(t *testing.T) {
	db := openTestDB(t)
	client := seedClient(t, db, "Owner")
	super := seedAdmin(t, db, "Root", true)
	expert := seedAdmin(t, db, "Karim", false)
	d := seedDossier(t, db, client.ID, nil)

	app := newTestApp(NewHandler(db, storage.NewMemory()), super.ID, models.PrincipalAdmin)
	code, _ := putJSON(app, "/api/dossiers/"+d.ID.String()+"/assign-expert", map[string]string{
		"expert_id": expert.ID.String(),
	})
	if code != 200 {
		t.Fatalf("want 200, got %d", code)
	}

	got := reload(t, db, d.ID)
	if got.ExpertID == nil || *got.ExpertID != expert.ID {
		t.Fatalf("expert not assigned")
	}
	if got.ExpertNom != "Karim" {
		t.Fatalf("expert_nom should default to the admin's name, got %q", got.ExpertNom)
	}
	if got.AdminChangeSeen {
		t.Fatalf("assignment must flip adminchangeseen")
	}
}

/* ============================================================================
   Tests — attachments
   ============================================================================ */

// Attachment bytes are only served to principals who pass the dossier-level
// access check.
func Test_FetchAttachment_OwnershipChecked(t *testing.T) {
	db := openTestDB(t)
	owner := seedClient(t, db, "Owner")
	other := seedClient(t, db, "Other")
	d := seedDossier(t, db, owner.ID, nil)

	store := storage.NewMemory()
	key := storage.ObjectKey(owner.ID.String(), "documents", "cg.jpg")
	_ = store.Upload(key, strings.NewReader("cg-bytes"), "image/jpeg", 8)
	db.Model(&d).Update("carte_grise_photo", key)

	h := NewHandler(db, store)

	appOther := newTestApp(h, other.ID, models.PrincipalClient)
	resp, _ := appOther.Test(httptest.NewRequest("GET", "/api/dossiers/"+d.ID.String()+"/files/carte_grise", nil))
	if resp.StatusCode != 403 {
		t.Fatalf("stranger: want 403, got %d", resp.StatusCode)
	}

	appOwner := newTestApp(h, owner.ID, models.PrincipalClient)
	resp, _ = appOwner.Test(httptest.NewRequest("GET", "/api/dossiers/"+d.ID.String()+"/files/carte_grise", nil))
	if resp.StatusCode != 200 {
		t.Fatalf("owner: want 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "image/jpeg" {
		t.Fatalf("want image/jpeg, got %q", ct)
	}
	data, _ := io.ReadAll(resp.Body)
	if string(data) != "cg-bytes" {
		t.Fatalf("wrong bytes served: %q", data)
	}
}

// A dossier without the requested document yields 404, not an empty body.
func Test_FetchAttachment_MissingDocument(t *testing.T) {
	db := openTestDB(t)
	owner := seedClient(t, db, "Owner")
	d := seedDossier(t, db, owner.ID, nil)

	app := newTestApp(NewHandler(db, storage.NewMemory()), owner.ID, models.PrincipalClient)
	resp, _ := app.Test(httptest.NewRequest("GET", "/api/dossiers/"+d.ID.String()+"/files/pv", nil))
	if resp.StatusCode != 404 {
		t.Fatalf("want 404, got %d", resp.StatusCode)
	}
}

/* ============================================================================
   Tests — deletion
   ============================================================================ */

// Deleting a dossier removes its stored documents too.
func Test_Delete_RemovesBlobs(t *testing.T) {
	db := openTestDB(t)
	owner := seedClient(t, db, "Owner")
	d := seedDossier(t, db, owner.ID, nil)

	store := storage.NewMemory()
	key := storage.ObjectKey(owner.ID.String(), "documents", "cg.jpg")
	_ = store.Upload(key, strings.NewReader("x"), "image/jpeg", 1)
	db.Model(&d).Update("carte_grise_photo", key)

	app := newTestApp(NewHandler(db, store), owner.ID, models.PrincipalClient)
	resp, _ := app.Test(httptest.NewRequest("DELETE", "/api/dossiers/"+d.ID.String(), nil))
	if resp.StatusCode != 204 {
		t.Fatalf("want 204, got %d", resp.StatusCode)
	}

	var count int64
	db.Model(&models.Dossier{}).Where("id = ?", d.ID).Count(&count)
	if count != 0 {
		t.Fatalf("dossier row should be gone")
	}
	if store.Len() != 0 {
		t.Fatalf("blobs should be deleted, %d left", store.Len())
	}
}
