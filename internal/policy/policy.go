// Package policy is the pure access-decision engine. It never touches the
// database or the request context: callers load the dossier and describe the
// acting principal, and Can answers allow/deny.
package policy

import (
	"github.com/google/uuid"

	"github.com/walidbk/assurexpert-backend/pkg/models"
)

// Operation names a dossier-level action a principal can attempt.
type Operation string

const (
	OpCreate         Operation = "create"
	OpRead           Operation = "read"
	OpUpdate         Operation = "update"
	OpDelete         Operation = "delete"
	OpStatusChange   Operation = "status_change"
	OpComment        Operation = "comment"
	OpMontant        Operation = "montant"
	OpAssignExpert   Operation = "assign_expert"
	OpUploadAdminDoc Operation = "upload_admin_doc"
	OpReadAttachment Operation = "read_attachment"
)

// Actor is the authorization view of a principal. It deliberately carries
// only what the rules need; the two principal tables stay separate.
type Actor struct {
	ID         uuid.UUID
	Type       models.PrincipalType
	Superadmin bool
}

// ClientActor and AdminActor build the actor view for each principal class.
func ClientActor(id uuid.UUID) Actor {
	return Actor{ID: id, Type: models.PrincipalClient}
}

func AdminActor(a *models.Admin) Actor {
	return Actor{ID: a.ID, Type: models.PrincipalAdmin, Superadmin: a.IsSuperadmin}
}

// RestrictedDossierFields are the update-payload keys a client may never
// alter. Handlers bind client updates to a DTO without these fields, so a
// client-originated payload cannot carry them; the list doubles as the
// scrub set for map-shaped payloads.
var RestrictedDossierFields = []string{
	"expert_id", "status", "admin_comment",
	"note_honoraire_montant", "link_pv", "link_note",
}

// StripRestricted removes the admin-only keys from a client-originated
// update map. The input map is modified in place and returned.
func StripRestricted(payload map[string]any) map[string]any {
	for _, k := range RestrictedDossierFields {
		delete(payload, k)
	}
	return payload
}

// Can decides whether the actor may perform op on the dossier. A nil dossier
// is only meaningful for OpCreate; every other operation on nil is denied.
func Can(a Actor, op Operation, d *models.Dossier) bool {
	switch a.Type {
	case models.PrincipalClient:
		return canClient(a, op, d)
	case models.PrincipalAdmin:
		return canAdmin(a, op, d)
	}
	return false
}

func canClient(a Actor, op Operation, d *models.Dossier) bool {
	if op == OpCreate {
		return true // creator becomes owner
	}
	if d == nil {
		return false
	}
	switch op {
	case OpRead, OpUpdate, OpDelete, OpReadAttachment:
		return d.ClientID == a.ID
	}
	return false
}

func canAdmin(a Actor, op Operation, d *models.Dossier) bool {
	// Dossiers are client-owned; no admin opens one on a client's behalf.
	if op == OpCreate {
		return false
	}
	if a.Superadmin {
		return true
	}
	// Assignment is exclusively a super-admin operation.
	if op == OpAssignExpert {
		return false
	}
	if d == nil || d.ExpertID == nil {
		return false
	}
	return *d.ExpertID == a.ID
}
