package dossiers

import (
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/walidbk/assurexpert-backend/internal/auth"
	"github.com/walidbk/assurexpert-backend/internal/policy"
	"github.com/walidbk/assurexpert-backend/internal/storage"
	"github.com/walidbk/assurexpert-backend/pkg/models"
	"github.com/walidbk/assurexpert-backend/pkg/validation"
)

type Handler struct {
	db    *gorm.DB
	store storage.Store
}

func NewHandler(db *gorm.DB, store storage.Store) *Handler {
	return &Handler{db: db, store: store}
}

// actor builds the policy view of the caller. For admins the row is loaded
// so the super flag and display name are authoritative, not token-derived.
func (h *Handler) actor(c *fiber.Ctx) (policy.Actor, *models.Admin, error) {
	id, err := uuid.Parse(auth.MustUserID(c))
	if err != nil {
		return policy.Actor{}, nil, fiber.ErrUnauthorized
	}
	switch auth.MustType(c) {
	case models.PrincipalClient:
		return policy.ClientActor(id), nil, nil
	case models.PrincipalAdmin:
		var admin models.Admin
		if err := h.db.First(&admin, "id = ?", id).Error; err != nil {
			return policy.Actor{}, nil, fiber.ErrUnauthorized
		}
		return policy.AdminActor(&admin), &admin, nil
	}
	return policy.Actor{}, nil, fiber.ErrUnauthorized
}

func (h *Handler) load(id string) (*models.Dossier, error) {
	var d models.Dossier
	if err := h.db.First(&d, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fiber.ErrNotFound
		}
		return nil, fiber.ErrInternalServerError
	}
	return &d, nil
}

/* ================================ Create ================================ */

// CreateDossierRequest carries the claim fields; the document files arrive
// in the same multipart form and are handled separately.
type CreateDossierRequest struct {
	Agence             string `json:"agence" form:"agence" validate:"required"`
	NumSinistre        string `json:"num_sinistre" form:"num_sinistre" validate:"required"`
	DateSinistre       string `json:"date_sinistre" form:"date_sinistre" validate:"required"`
	DateDeclaration    string `json:"date_declaration" form:"date_declaration" validate:"required"`
	ExpertNom          string `json:"expert_nom" form:"expert_nom"`
	AssureNom          string `json:"assure_nom" form:"assure_nom" validate:"required"`
	NumPolice          string `json:"num_police" form:"num_police" validate:"required"`
	Compagnie          string `json:"compagnie" form:"compagnie" validate:"required"`
	CodeAgence         string `json:"code_agence" form:"code_agence" validate:"required"`
	NumChassis         string `json:"num_chassis" form:"num_chassis" validate:"required"`
	Matricule          string `json:"matricule" form:"matricule" validate:"required,matricule"`
	Annee              int    `json:"annee" form:"annee" validate:"required"`
	Categorie          string `json:"categorie" form:"categorie" validate:"required"`
	DateDebutAssurance string `json:"date_debut_assurance" form:"date_debut_assurance" validate:"required"`
	DateFinAssurance   string `json:"date_fin_assurance" form:"date_fin_assurance" validate:"required"`
	TiersNom           string `json:"tiers_nom" form:"tiers_nom" validate:"required"`
	TiersMatricule     string `json:"tiers_matricule" form:"tiers_matricule" validate:"required"`
	TiersCodeAgence    string `json:"tiers_code_agence" form:"tiers_code_agence" validate:"required"`
	TiersNumPolice     string `json:"tiers_num_police" form:"tiers_num_police" validate:"required"`
	TiersCompagnie     string `json:"tiers_compagnie" form:"tiers_compagnie" validate:"required"`
}

func parseDate(s string) (time.Time, bool) {
	t, err := time.Parse("2006-01-02", s)
	return t, err == nil
}

// Create opens a new dossier owned by the calling client. Status starts at
// "new", seenbyadmin=false, adminchangeseen=true.
func (h *Handler) Create(c *fiber.Ctx) error {
	act, _, err := h.actor(c)
	if err != nil {
		return err
	}
	if !policy.Can(act, policy.OpCreate, nil) {
		return fiber.ErrForbidden
	}

	var in CreateDossierRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid payload")
	}
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	dateErrs := map[string][]string{}
	dates := map[string]string{
		"date_sinistre":        in.DateSinistre,
		"date_declaration":     in.DateDeclaration,
		"date_debut_assurance": in.DateDebutAssurance,
		"date_fin_assurance":   in.DateFinAssurance,
	}
	parsed := map[string]time.Time{}
	for field, raw := range dates {
		t, ok := parseDate(raw)
		if !ok {
			dateErrs[field] = append(dateErrs[field], "Invalid date (use YYYY-MM-DD)")
			continue
		}
		parsed[field] = t
	}
	if len(dateErrs) > 0 {
		return validation.Respond(c, dateErrs)
	}

	docs, photoKeys, err := h.storeCreateUploads(c, act.ID.String())
	if err != nil {
		return err
	}

	d := models.Dossier{
		ClientID:              act.ID,
		Agence:                strings.TrimSpace(in.Agence),
		NumSinistre:           strings.TrimSpace(in.NumSinistre),
		DateSinistre:          parsed["date_sinistre"],
		DateDeclaration:       parsed["date_declaration"],
		ExpertNom:             strings.TrimSpace(in.ExpertNom),
		AssureNom:             strings.TrimSpace(in.AssureNom),
		NumPolice:             strings.TrimSpace(in.NumPolice),
		Compagnie:             strings.TrimSpace(in.Compagnie),
		CodeAgence:            strings.TrimSpace(in.CodeAgence),
		NumChassis:            strings.TrimSpace(in.NumChassis),
		Matricule:             strings.TrimSpace(in.Matricule),
		Annee:                 in.Annee,
		Categorie:             strings.TrimSpace(in.Categorie),
		DateDebutAssurance:    parsed["date_debut_assurance"],
		DateFinAssurance:      parsed["date_fin_assurance"],
		CarteGrisePhoto:       docs["carte_grise_photo"],
		DeclarationRectoPhoto: docs["declaration_recto_photo"],
		DeclarationVersoPhoto: docs["declaration_verso_photo"],
		PhotosAccident:        photoKeys,
		TiersNom:              strings.TrimSpace(in.TiersNom),
		TiersMatricule:        strings.TrimSpace(in.TiersMatricule),
		TiersCodeAgence:       strings.TrimSpace(in.TiersCodeAgence),
		TiersNumPolice:        strings.TrimSpace(in.TiersNumPolice),
		TiersCompagnie:        strings.TrimSpace(in.TiersCompagnie),
		Status:                models.DossierNew,
		SeenByAdmin:           false,
		AdminChangeSeen:       true,
	}
	if err := h.db.Create(&d).Error; err != nil {
		return fiber.ErrInternalServerError
	}
	return c.Status(fiber.StatusCreated).JSON(d)
}

/* ================================= List ================================= */

// List returns dossiers pre-filtered to the caller's scope: a client sees
// their own, an expert their assigned, a super-admin all of them.
func (h *Handler) List(c *fiber.Ctx) error {
	act, _, err := h.actor(c)
	if err != nil {
		return err
	}

	q := h.db.Model(&models.Dossier{}).Order("created_at DESC")
	switch {
	case act.Type == models.PrincipalClient:
		q = q.Where("client_id = ?", act.ID)
	case act.Superadmin:
		// unscoped
	default:
		q = q.Where("expert_id = ?", act.ID)
	}

	dossiers := make([]models.Dossier, 0)
	if err := q.Find(&dossiers).Error; err != nil {
		return fiber.ErrInternalServerError
	}
	return c.JSON(dossiers)
}

// ListWithExperts returns all dossiers with client and expert preloaded.
// Super-admin only (enforced by route middleware).
func (h *Handler) ListWithExperts(c *fiber.Ctx) error {
	dossiers := make([]models.Dossier, 0)
	if err := h.db.Preload("Client").Preload("Expert").
		Order("created_at DESC").Find(&dossiers).Error; err != nil {
		return fiber.ErrInternalServerError
	}
	return c.JSON(dossiers)
}

/* ================================= Get ================================== */

func (h *Handler) Get(c *fiber.Ctx) error {
	act, _, err := h.actor(c)
	if err != nil {
		return err
	}
	d, err := h.load(c.Params("id"))
	if err != nil {
		return err
	}
	if !policy.Can(act, policy.OpRead, d) {
		return fiber.ErrForbidden
	}
	return c.JSON(d)
}

/* ================================ Update ================================ */

// UpdateDossierRequest uses pointers so an omitted field is distinguishable
// from a zero value. The admin-only fields at the bottom are structurally
// ignored for client callers, never applied.
type UpdateDossierRequest struct {
	Agence             *string `json:"agence"`
	NumSinistre        *string `json:"num_sinistre"`
	DateSinistre       *string `json:"date_sinistre"`
	DateDeclaration    *string `json:"date_declaration"`
	ExpertNom          *string `json:"expert_nom"`
	AssureNom          *string `json:"assure_nom"`
	NumPolice          *string `json:"num_police"`
	Compagnie          *string `json:"compagnie"`
	CodeAgence         *string `json:"code_agence"`
	NumChassis         *string `json:"num_chassis"`
	Matricule          *string `json:"matricule" validate:"omitempty,matricule"`
	Annee              *int    `json:"annee"`
	Categorie          *string `json:"categorie"`
	DateDebutAssurance *string `json:"date_debut_assurance"`
	DateFinAssurance   *string `json:"date_fin_assurance"`
	TiersNom           *string `json:"tiers_nom"`
	TiersMatricule     *string `json:"tiers_matricule"`
	TiersCodeAgence    *string `json:"tiers_code_agence"`
	TiersNumPolice     *string `json:"tiers_num_police"`
	TiersCompagnie     *string `json:"tiers_compagnie"`

	// Admin-only
	LinkPV   *string `json:"link_pv"`
	LinkNote *string `json:"link_note"`
	Status   *string `json:"status" validate:"omitempty,oneof=new in_progress ended rejected"`
	ExpertID *string `json:"expert_id" validate:"omitempty,uuid"`
}

func (in *UpdateDossierRequest) claimUpdates() (map[string]any, map[string][]string) {
	updates := map[string]any{}
	errs := map[string][]string{}

	setStr := func(col string, v *string) {
		if v != nil {
			updates[col] = strings.TrimSpace(*v)
		}
	}
	setDate := func(col string, v *string) {
		if v == nil {
			return
		}
		t, ok := parseDate(*v)
		if !ok {
			errs[col] = append(errs[col], "Invalid date (use YYYY-MM-DD)")
			return
		}
		updates[col] = t
	}

	setStr("agence", in.Agence)
	setStr("num_sinistre", in.NumSinistre)
	setDate("date_sinistre", in.DateSinistre)
	setDate("date_declaration", in.DateDeclaration)
	setStr("expert_nom", in.ExpertNom)
	setStr("assure_nom", in.AssureNom)
	setStr("num_police", in.NumPolice)
	setStr("compagnie", in.Compagnie)
	setStr("code_agence", in.CodeAgence)
	setStr("num_chassis", in.NumChassis)
	setStr("matricule", in.Matricule)
	if in.Annee != nil {
		updates["annee"] = *in.Annee
	}
	setStr("categorie", in.Categorie)
	setDate("date_debut_assurance", in.DateDebutAssurance)
	setDate("date_fin_assurance", in.DateFinAssurance)
	setStr("tiers_nom", in.TiersNom)
	setStr("tiers_matricule", in.TiersMatricule)
	setStr("tiers_code_agence", in.TiersCodeAgence)
	setStr("tiers_num_police", in.TiersNumPolice)
	setStr("tiers_compagnie", in.TiersCompagnie)

	return updates, errs
}

// Update applies a partial mutation. Clients can only touch the claim
// fields of their own dossier; admins additionally set links and status on
// dossiers in their scope; only super-admins may move expert_id. Every
// admin-authored update flips adminchangeseen to false.
func (h *Handler) Update(c *fiber.Ctx) error {
	act, _, err := h.actor(c)
	if err != nil {
		return err
	}
	d, err := h.load(c.Params("id"))
	if err != nil {
		return err
	}
	if !policy.Can(act, policy.OpUpdate, d) {
		return fiber.ErrForbidden
	}

	var in UpdateDossierRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid json")
	}
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	updates, dateErrs := in.claimUpdates()
	if len(dateErrs) > 0 {
		return validation.Respond(c, dateErrs)
	}

	if act.Type == models.PrincipalAdmin {
		if in.LinkPV != nil {
			updates["link_pv"] = *in.LinkPV
		}
		if in.LinkNote != nil {
			updates["link_note"] = *in.LinkNote
		}
		if in.Status != nil {
			updates["status"] = models.DossierStatus(*in.Status)
		}
		if in.ExpertID != nil && act.Superadmin {
			expert, ferr := h.findExpert(*in.ExpertID)
			if ferr != nil {
				return ferr
			}
			updates["expert_id"] = expert.ID
			if in.ExpertNom == nil {
				updates["expert_nom"] = expert.Name
			}
		}
		// Client has not seen this change yet
		updates["adminchangeseen"] = false
	}

	if len(updates) == 0 {
		return c.JSON(d)
	}
	if err := h.db.Model(d).Updates(updates).Error; err != nil {
		return fiber.ErrInternalServerError
	}
	return c.JSON(d)
}

/* ================================ Delete ================================ */

// Delete hard-deletes the dossier and its stored documents. No tombstone.
func (h *Handler) Delete(c *fiber.Ctx) error {
	act, _, err := h.actor(c)
	if err != nil {
		return err
	}
	d, err := h.load(c.Params("id"))
	if err != nil {
		return err
	}
	if !policy.Can(act, policy.OpDelete, d) {
		return fiber.ErrForbidden
	}

	if err := h.db.Delete(d).Error; err != nil {
		return fiber.ErrInternalServerError
	}
	_ = h.store.BulkDelete(attachmentKeys(d))
	return c.SendStatus(fiber.StatusNoContent)
}

// attachmentKeys collects every blob key a dossier references.
func attachmentKeys(d *models.Dossier) []string {
	keys := make([]string, 0, len(d.PhotosAccident)+5)
	for _, k := range []string{
		d.CarteGrisePhoto, d.DeclarationRectoPhoto, d.DeclarationVersoPhoto,
		d.LinkPV, d.LinkNote,
	} {
		if k != "" {
			keys = append(keys, k)
		}
	}
	return append(keys, d.PhotosAccident...)
}

/* ============================ Admin listing ============================= */

// adminListItem is the restricted projection clients are allowed to see.
type adminListItem struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	IsSuperadmin bool      `json:"is_superadmin"`
}

// ListAdmins is visible to both classes: clients get a restricted, non-super
// projection (to display their assigned expert); admins get full rows.
func (h *Handler) ListAdmins(c *fiber.Ctx) error {
	act, _, err := h.actor(c)
	if err != nil {
		return err
	}

	if act.Type == models.PrincipalClient {
		items := make([]adminListItem, 0)
		if err := h.db.Model(&models.Admin{}).
			Where("is_superadmin = ?", false).
			Find(&items).Error; err != nil {
			return fiber.ErrInternalServerError
		}
		return c.JSON(items)
	}

	admins := make([]models.Admin, 0)
	if err := h.db.Find(&admins).Error; err != nil {
		return fiber.ErrInternalServerError
	}
	return c.JSON(admins)
}

/* ============================== Statistics ============================== */

// Statistics returns dossier-level aggregates. Super-admin only (route
// middleware); everything here is read-side.
func (h *Handler) Statistics(c *fiber.Ctx) error {
	var total, assigned, recent int64
	if err := h.db.Model(&models.Dossier{}).Count(&total).Error; err != nil {
		return fiber.ErrInternalServerError
	}
	h.db.Model(&models.Dossier{}).Where("expert_id IS NOT NULL").Count(&assigned)
	h.db.Model(&models.Dossier{}).
		Where("created_at >= ?", time.Now().AddDate(0, 0, -7)).Count(&recent)

	type statusRow struct {
		Status string
		Count  int64
	}
	var statusRows []statusRow
	h.db.Model(&models.Dossier{}).
		Select("status, COUNT(*) as count").Group("status").Scan(&statusRows)
	byStatus := map[string]int64{}
	for _, r := range statusRows {
		byStatus[r.Status] = r.Count
	}

	type expertRow struct {
		Name  string
		Count int64
	}
	var expertRows []expertRow
	h.db.Table("dossiers").
		Select("admins.name as name, COUNT(*) as count").
		Joins("JOIN admins ON admins.id = dossiers.expert_id").
		Group("admins.name").Scan(&expertRows)
	byExpert := map[string]int64{}
	for _, r := range expertRows {
		byExpert[r.Name] = r.Count
	}

	return c.JSON(fiber.Map{
		"total_dossiers":      total,
		"by_status":           byStatus,
		"assigned_dossiers":   assigned,
		"unassigned_dossiers": total - assigned,
		"by_expert":           byExpert,
		"recent_dossiers":     recent,
	})
}
