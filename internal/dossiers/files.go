package dossiers

import (
	"mime"
	"mime/multipart"
	"path/filepath"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/walidbk/assurexpert-backend/internal/policy"
	"github.com/walidbk/assurexpert-backend/internal/storage"
)

const maxFileSize = 10 * 1024 * 1024 // 10MB per file

var imageOrPDF = map[string]bool{
	"image/jpeg":      true,
	"image/png":       true,
	"application/pdf": true,
}

var imageOnly = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
}

var docOnly = map[string]bool{
	"application/pdf":    true,
	"application/msword": true,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": true,
}

func contentType(fh *multipart.FileHeader) string {
	ct := fh.Header.Get("Content-Type")
	if ct == "" {
		ct = mime.TypeByExtension(filepath.Ext(fh.Filename))
	}
	return ct
}

func checkUpload(fh *multipart.FileHeader, allowed map[string]bool) error {
	if fh.Size <= 0 {
		return fiber.NewError(fiber.StatusBadRequest, "empty file: "+fh.Filename)
	}
	if fh.Size > maxFileSize {
		return fiber.NewError(fiber.StatusBadRequest, "max 10MB per file: "+fh.Filename)
	}
	if !allowed[contentType(fh)] {
		return fiber.NewError(fiber.StatusBadRequest, "unsupported file type: "+fh.Filename)
	}
	return nil
}

// storeOne validates and uploads a single multipart file, returning its key.
func (h *Handler) storeOne(fh *multipart.FileHeader, ownerID, segment string, allowed map[string]bool) (string, error) {
	if err := checkUpload(fh, allowed); err != nil {
		return "", err
	}
	f, err := fh.Open()
	if err != nil {
		return "", fiber.ErrInternalServerError
	}
	defer f.Close()

	key := storage.ObjectKey(ownerID, segment, fh.Filename)
	if err := h.store.Upload(key, f, contentType(fh), fh.Size); err != nil {
		return "", fiber.ErrInternalServerError
	}
	return key, nil
}

// storeCreateUploads handles the three required document photos and the
// accident photo set of a dossier creation form.
func (h *Handler) storeCreateUploads(c *fiber.Ctx, ownerID string) (map[string]string, []string, error) {
	form, err := c.MultipartForm()
	if err != nil {
		return nil, nil, fiber.NewError(fiber.StatusBadRequest, "multipart form required")
	}

	docs := map[string]string{}
	for _, field := range []string{"carte_grise_photo", "declaration_recto_photo", "declaration_verso_photo"} {
		files := form.File[field]
		if len(files) == 0 {
			return nil, nil, fiber.NewError(fiber.StatusBadRequest, field+" is required")
		}
		key, err := h.storeOne(files[0], ownerID, "documents", imageOrPDF)
		if err != nil {
			return nil, nil, err
		}
		docs[field] = key
	}

	photos := form.File["photos_accident[]"]
	if len(photos) == 0 {
		photos = form.File["photos_accident"]
	}
	if len(photos) == 0 {
		return nil, nil, fiber.NewError(fiber.StatusBadRequest, "photos_accident are required")
	}
	photoKeys := make([]string, 0, len(photos))
	for _, fh := range photos {
		key, err := h.storeOne(fh, ownerID, "accidents", imageOnly)
		if err != nil {
			return nil, nil, err
		}
		photoKeys = append(photoKeys, key)
	}
	return docs, photoKeys, nil
}

/* ============================ Admin documents =========================== */

// UploadAdminDocs attaches or replaces the PV and fee-note documents.
// Replacing deletes the previous blob so storage never accumulates orphans.
func (h *Handler) UploadAdminDocs(c *fiber.Ctx) error {
	act, _, err := h.actor(c)
	if err != nil {
		return err
	}
	d, err := h.load(c.Params("id"))
	if err != nil {
		return err
	}
	if !policy.Can(act, policy.OpUploadAdminDoc, d) {
		return fiber.ErrForbidden
	}

	form, err := c.MultipartForm()
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "multipart form required")
	}

	updates := map[string]any{}

	if files := form.File["pv_file"]; len(files) > 0 {
		key, err := h.storeOne(files[0], d.ClientID.String(), "admin", docOnly)
		if err != nil {
			return err
		}
		if d.LinkPV != "" {
			_ = h.store.Delete(d.LinkPV)
		}
		d.LinkPV = key
		updates["link_pv"] = key
	}

	if files := form.File["note_file"]; len(files) > 0 {
		key, err := h.storeOne(files[0], d.ClientID.String(), "admin", docOnly)
		if err != nil {
			return err
		}
		if d.LinkNote != "" {
			_ = h.store.Delete(d.LinkNote)
		}
		d.LinkNote = key
		updates["link_note"] = key
	}

	if len(updates) == 0 {
		return fiber.NewError(fiber.StatusBadRequest, "pv_file or note_file is required")
	}

	updates["adminchangeseen"] = false
	if err := h.db.Model(d).Updates(updates).Error; err != nil {
		return fiber.ErrInternalServerError
	}
	return c.JSON(d)
}

/* ============================== Retrieval =============================== */

// FetchAttachment serves a named dossier document. Access is re-checked
// against the owning dossier before any byte leaves private storage.
func (h *Handler) FetchAttachment(c *fiber.Ctx) error {
	act, _, err := h.actor(c)
	if err != nil {
		return err
	}
	d, err := h.load(c.Params("id"))
	if err != nil {
		return err
	}
	if !policy.Can(act, policy.OpReadAttachment, d) {
		return fiber.ErrForbidden
	}

	var key string
	switch c.Params("type") {
	case "pv":
		key = d.LinkPV
	case "note":
		key = d.LinkNote
	case "carte_grise":
		key = d.CarteGrisePhoto
	case "declaration_recto":
		key = d.DeclarationRectoPhoto
	case "declaration_verso":
		key = d.DeclarationVersoPhoto
	default:
		return fiber.NewError(fiber.StatusNotFound, "unknown attachment type")
	}
	if key == "" {
		return fiber.NewError(fiber.StatusNotFound, "File path not found")
	}

	return h.serveBlob(c, key)
}

// FetchAccidentPhoto serves one accident photo by index.
func (h *Handler) FetchAccidentPhoto(c *fiber.Ctx) error {
	act, _, err := h.actor(c)
	if err != nil {
		return err
	}
	d, err := h.load(c.Params("id"))
	if err != nil {
		return err
	}
	if !policy.Can(act, policy.OpReadAttachment, d) {
		return fiber.ErrForbidden
	}

	idx, err := strconv.Atoi(c.Params("index"))
	if err != nil || idx < 0 || idx >= len(d.PhotosAccident) {
		return fiber.NewError(fiber.StatusNotFound, "Photo not found")
	}
	return h.serveBlob(c, d.PhotosAccident[idx])
}

func (h *Handler) serveBlob(c *fiber.Ctx, key string) error {
	data, ct, err := h.store.Download(key)
	if err != nil {
		if err == storage.ErrNotFound {
			return fiber.NewError(fiber.StatusNotFound, "File not found")
		}
		return fiber.ErrInternalServerError
	}
	c.Set(fiber.HeaderContentType, ct)
	c.Set(fiber.HeaderContentDisposition, `inline; filename="`+filepath.Base(key)+`"`)
	return c.Send(data)
}
