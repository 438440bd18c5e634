package dossiers

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/walidbk/assurexpert-backend/internal/policy"
	"github.com/walidbk/assurexpert-backend/pkg/models"
	"github.com/walidbk/assurexpert-backend/pkg/validation"
)

/* ============================ Expert assignment ========================= */

// findExpert resolves an assignment target. A missing admin or a super-admin
// target is an invalid expert, reported as a 400 and leaving the dossier
// untouched.
func (h *Handler) findExpert(id string) (*models.Admin, error) {
	var expert models.Admin
	if err := h.db.First(&expert, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fiber.NewError(fiber.StatusBadRequest, "Invalid expert selected")
		}
		return nil, fiber.ErrInternalServerError
	}
	if expert.IsSuperadmin {
		return nil, fiber.NewError(fiber.StatusBadRequest, "Invalid expert selected")
	}
	return &expert, nil
}

type assignExpertRequest struct {
	ExpertID  string `json:"expert_id" validate:"required,uuid"`
	ExpertNom string `json:"expert_nom"`
}

// AssignExpert sets the dossier's expert. Super-admin only (route
// middleware). expert_nom defaults to the expert's current name.
func (h *Handler) AssignExpert(c *fiber.Ctx) error {
	var in assignExpertRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid json")
	}
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	d, err := h.load(c.Params("id"))
	if err != nil {
		return err
	}
	expert, err := h.findExpert(in.ExpertID)
	if err != nil {
		return err
	}

	nom := in.ExpertNom
	if nom == "" {
		nom = expert.Name
	}
	if err := h.db.Model(d).Updates(map[string]any{
		"expert_id":       expert.ID,
		"expert_nom":      nom,
		"adminchangeseen": false,
	}).Error; err != nil {
		return fiber.ErrInternalServerError
	}

	d.Expert = expert
	return c.JSON(fiber.Map{
		"message": "Expert assigned successfully",
		"dossier": d,
	})
}

/* ============================== Status ================================== */

type updateStatusRequest struct {
	Status       string `json:"status" validate:"required,oneof=new in_progress ended rejected"`
	AdminComment string `json:"admin_comment"`
}

// UpdateStatus sets the status (any value from any value; the workflow may
// legitimately reopen an ended or rejected case) and optionally appends a
// comment. Gated by assignment: only a super-admin or the assigned expert.
func (h *Handler) UpdateStatus(c *fiber.Ctx) error {
	act, admin, err := h.actor(c)
	if err != nil {
		return err
	}
	var in updateStatusRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid json")
	}
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	d, err := h.load(c.Params("id"))
	if err != nil {
		return err
	}
	if !policy.Can(act, policy.OpStatusChange, d) {
		return fiber.ErrForbidden
	}

	updates := map[string]any{
		"status":          models.DossierStatus(in.Status),
		"adminchangeseen": false,
	}
	if in.AdminComment != "" {
		d.AdminComment = d.AdminComment.Append(admin.Name, in.AdminComment, time.Now())
		updates["admin_comment"] = d.AdminComment
	}
	if err := h.db.Model(d).Updates(updates).Error; err != nil {
		return fiber.ErrInternalServerError
	}

	return c.JSON(fiber.Map{
		"message": "Status updated successfully",
		"dossier": d,
	})
}

/* ======================== Append-only note logs ========================= */

type addCommentRequest struct {
	AdminComment string `json:"admin_comment" validate:"required"`
}

// AddComment appends a timestamped, attributed block to the comment log.
// Prior content is never replaced.
func (h *Handler) AddComment(c *fiber.Ctx) error {
	act, admin, err := h.actor(c)
	if err != nil {
		return err
	}
	var in addCommentRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid json")
	}
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	d, err := h.load(c.Params("id"))
	if err != nil {
		return err
	}
	if !policy.Can(act, policy.OpComment, d) {
		return fiber.ErrForbidden
	}

	d.AdminComment = d.AdminComment.Append(admin.Name, in.AdminComment, time.Now())
	if err := h.db.Model(d).Updates(map[string]any{
		"admin_comment":   d.AdminComment,
		"adminchangeseen": false,
	}).Error; err != nil {
		return fiber.ErrInternalServerError
	}

	return c.JSON(fiber.Map{
		"message": "Comment added successfully",
		"dossier": d,
	})
}

type addMontantRequest struct {
	NoteHonoraireMontant string `json:"note_honoraire_montant" validate:"required"`
}

// AddMontant appends to the fee-note log, same contract as AddComment.
func (h *Handler) AddMontant(c *fiber.Ctx) error {
	act, admin, err := h.actor(c)
	if err != nil {
		return err
	}
	var in addMontantRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid json")
	}
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	d, err := h.load(c.Params("id"))
	if err != nil {
		return err
	}
	if !policy.Can(act, policy.OpMontant, d) {
		return fiber.ErrForbidden
	}

	d.NoteHonoraireMontant = d.NoteHonoraireMontant.Append(admin.Name, in.NoteHonoraireMontant, time.Now())
	if err := h.db.Model(d).Updates(map[string]any{
		"note_honoraire_montant": d.NoteHonoraireMontant,
		"adminchangeseen":        false,
	}).Error; err != nil {
		return fiber.ErrInternalServerError
	}

	return c.JSON(fiber.Map{
		"message": "montant added successfully",
		"dossier": d,
	})
}

/* ============================= Seen flags =============================== */

// adminScope narrows a dossier query to the calling admin's visibility:
// everything for a super-admin, assigned-only otherwise.
func adminScope(q *gorm.DB, act policy.Actor) *gorm.DB {
	if act.Superadmin {
		return q
	}
	return q.Where("expert_id = ?", act.ID)
}

// CountUnseenByAdmin returns how many dossiers in the caller's scope still
// await staff acknowledgement.
func (h *Handler) CountUnseenByAdmin(c *fiber.Ctx) error {
	act, _, err := h.actor(c)
	if err != nil {
		return err
	}
	var count int64
	if err := adminScope(h.db.Model(&models.Dossier{}), act).
		Where("seenbyadmin = ?", false).Count(&count).Error; err != nil {
		return fiber.ErrInternalServerError
	}
	return c.JSON(fiber.Map{"unseen_count": count})
}

// MarkSeenByAdmin bulk-flips seenbyadmin for the caller's scope in a single
// conditional update, so concurrent callers cannot lose acknowledgements.
// Calling it again immediately reports affected_count 0.
func (h *Handler) MarkSeenByAdmin(c *fiber.Ctx) error {
	act, _, err := h.actor(c)
	if err != nil {
		return err
	}
	res := adminScope(h.db.Model(&models.Dossier{}), act).
		Where("seenbyadmin = ?", false).
		Update("seenbyadmin", true)
	if res.Error != nil {
		return fiber.ErrInternalServerError
	}
	return c.JSON(fiber.Map{
		"message":        "Dossiers marked as seen",
		"affected_count": res.RowsAffected,
	})
}

// CountUnseenChanges returns how many of the client's dossiers carry admin
// changes the client has not acknowledged yet.
func (h *Handler) CountUnseenChanges(c *fiber.Ctx) error {
	act, _, err := h.actor(c)
	if err != nil {
		return err
	}
	var count int64
	if err := h.db.Model(&models.Dossier{}).
		Where("client_id = ? AND adminchangeseen = ?", act.ID, false).
		Count(&count).Error; err != nil {
		return fiber.ErrInternalServerError
	}
	return c.JSON(fiber.Map{"unseen_changes_count": count})
}

// MarkChangesSeen bulk-flips adminchangeseen for the calling client's
// dossiers, same single-conditional-update contract as MarkSeenByAdmin.
func (h *Handler) MarkChangesSeen(c *fiber.Ctx) error {
	act, _, err := h.actor(c)
	if err != nil {
		return err
	}
	res := h.db.Model(&models.Dossier{}).
		Where("client_id = ? AND adminchangeseen = ?", act.ID, false).
		Update("adminchangeseen", true)
	if res.Error != nil {
		return fiber.ErrInternalServerError
	}
	return c.JSON(fiber.Map{
		"message":        "Admin changes marked as seen",
		"affected_count": res.RowsAffected,
	})
}
