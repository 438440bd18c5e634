package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

/* =============================== Enums ================================== */

// PrincipalType distinguishes the two disjoint principal classes.
// Admins and clients live in separate tables on purpose: they are
// authorized against entirely different rule sets.
type PrincipalType string

const (
	PrincipalAdmin  PrincipalType = "admin"
	PrincipalClient PrincipalType = "client"
)

// DossierStatus defines lifecycle states for a dossier.
// Transitions are unrestricted in value space (a reopened case is legal);
// who may set them is decided by the policy package.
type DossierStatus string

const (
	DossierNew        DossierStatus = "new"
	DossierInProgress DossierStatus = "in_progress"
	DossierEnded      DossierStatus = "ended"
	DossierRejected   DossierStatus = "rejected"
)

// RequestStatus defines lifecycle states for a client onboarding request.
type RequestStatus string

const (
	RequestPending  RequestStatus = "pending"
	RequestCreated  RequestStatus = "created"
	RequestRejected RequestStatus = "rejected"
)

// ContactKind tags the two uses of the contact channel.
type ContactKind string

const (
	ContactGeneral       ContactKind = "general"
	ContactPasswordReset ContactKind = "password_reset"
)

/* =============================== Entities =============================== */

// Admin is a staff principal. is_superadmin widens scope to every dossier
// and to user management; a non-super admin only ever sees dossiers
// assigned to them as expert.
type Admin struct {
	ID           uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	Name         string     `gorm:"not null" json:"name"`
	Email        string     `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash string     `gorm:"not null" json:"-"`
	IsSuperadmin bool       `gorm:"not null;default:false" json:"is_superadmin"`
	LastLoginAt  *time.Time `json:"last_login_at"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

func (a *Admin) BeforeCreate(*gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}

// Client is an insured principal. Owns zero or more dossiers.
type Client struct {
	ID           uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	Name         string     `gorm:"not null" json:"name"`
	Email        string     `gorm:"uniqueIndex;not null" json:"email"`
	Code         string     `json:"code"`
	PasswordHash string     `gorm:"not null" json:"-"`
	PhoneNumber  string     `json:"phone_number"`
	CompanyName  string     `json:"company_name"`
	CompanyCode  string     `json:"company_code"`
	LastLoginAt  *time.Time `json:"last_login_at"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

func (c *Client) BeforeCreate(*gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// Dossier is the central claim record. The claim fields (sinistre, police,
// vehicle, third party) are carried verbatim; only client_id, expert_id,
// status, the two note logs and the seen flags drive any logic.
type Dossier struct {
	ID       uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ClientID uuid.UUID `gorm:"type:uuid;not null;index" json:"client_id"`

	Agence          string    `gorm:"not null" json:"agence"`
	NumSinistre     string    `gorm:"not null" json:"num_sinistre"`
	DateSinistre    time.Time `json:"date_sinistre"`
	DateDeclaration time.Time `json:"date_declaration"`

	ExpertNom string     `json:"expert_nom"`
	ExpertID  *uuid.UUID `gorm:"type:uuid;index" json:"expert_id"`

	AssureNom          string    `gorm:"not null" json:"assure_nom"`
	NumPolice          string    `gorm:"not null" json:"num_police"`
	Compagnie          string    `gorm:"not null" json:"compagnie"`
	CodeAgence         string    `gorm:"not null" json:"code_agence"`
	NumChassis         string    `gorm:"not null" json:"num_chassis"`
	Matricule          string    `gorm:"not null" json:"matricule"`
	Annee              int       `gorm:"not null" json:"annee"`
	Categorie          string    `gorm:"not null" json:"categorie"`
	DateDebutAssurance time.Time `json:"date_debut_assurance"`
	DateFinAssurance   time.Time `json:"date_fin_assurance"`

	CarteGrisePhoto       string   `json:"carte_grise_photo"`
	DeclarationRectoPhoto string   `json:"declaration_recto_photo"`
	DeclarationVersoPhoto string   `json:"declaration_verso_photo"`
	PhotosAccident        []string `gorm:"serializer:json" json:"photos_accident"`
	LinkPV                string   `json:"link_pv"`
	LinkNote              string   `json:"link_note"`

	TiersNom        string `json:"tiers_nom"`
	TiersMatricule  string `json:"tiers_matricule"`
	TiersCodeAgence string `json:"tiers_code_agence"`
	TiersNumPolice  string `json:"tiers_num_police"`
	TiersCompagnie  string `json:"tiers_compagnie"`

	Status DossierStatus `gorm:"type:varchar(20);not null;default:'new'" json:"status"`

	// Append-only annotated logs. Stored as JSON entry sequences; the API
	// renders them in the legacy "[ts] name: text" block format.
	AdminComment         NoteLog `gorm:"type:text" json:"admin_comment"`
	NoteHonoraireMontant NoteLog `gorm:"type:text" json:"note_honoraire_montant"`

	// seenbyadmin: has staff acknowledged this dossier (scoped per role).
	// adminchangeseen: has the owning client seen the latest admin change.
	SeenByAdmin     bool `gorm:"column:seenbyadmin;not null;default:false" json:"seenbyadmin"`
	AdminChangeSeen bool `gorm:"column:adminchangeseen;not null;default:true" json:"adminchangeseen"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Client *Client `gorm:"foreignKey:ClientID;constraint:OnDelete:CASCADE" json:"client,omitempty"`
	Expert *Admin  `gorm:"foreignKey:ExpertID;constraint:OnDelete:SET NULL" json:"expert,omitempty"`
}

func (d *Dossier) BeforeCreate(*gorm.DB) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	if d.Status == "" {
		d.Status = DossierNew
	}
	return nil
}

// ClientRequest is a pre-onboarding application reviewed by a super-admin.
// Email is unique here and must also not collide with an existing client.
type ClientRequest struct {
	ID           uuid.UUID     `gorm:"type:uuid;primaryKey" json:"id"`
	ClientName   string        `gorm:"not null" json:"client_name"`
	Email        string        `gorm:"uniqueIndex;not null" json:"email"`
	PhoneNumber  string        `gorm:"not null" json:"phone_number"`
	CompanyName  string        `gorm:"not null" json:"company_name"`
	CompanyCode  string        `gorm:"not null" json:"company_code"`
	Status       RequestStatus `gorm:"type:varchar(20);not null;default:'pending'" json:"status"`
	AdminComment string        `json:"admin_comment"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

func (r *ClientRequest) BeforeCreate(*gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.Status == "" {
		r.Status = RequestPending
	}
	return nil
}

// ContactMessage is an inbound free-form message. Password reset requests
// arrive over the same channel; Kind keeps the distinction explicit instead
// of sniffing the legacy "password_reset" subject value.
type ContactMessage struct {
	ID         uuid.UUID   `gorm:"type:uuid;primaryKey" json:"id"`
	ClientName string      `json:"client_name"`
	Email      string      `gorm:"not null" json:"email"`
	Subject    string      `json:"subject"`
	Message    string      `json:"message"`
	Kind       ContactKind `gorm:"type:varchar(20);not null;default:'general'" json:"kind"`
	CreatedAt  time.Time   `json:"created_at"`
}

func (m *ContactMessage) BeforeCreate(*gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	if m.Kind == "" {
		m.Kind = ContactGeneral
	}
	return nil
}

// RevokedToken blacklists a JWT by jti until its natural expiry.
type RevokedToken struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	JTI       string    `gorm:"uniqueIndex;not null"`
	ExpiresAt time.Time `gorm:"not null"`
	CreatedAt time.Time
}

func (t *RevokedToken) BeforeCreate(*gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}

// All lists every entity for AutoMigrate.
func All() []any {
	return []any{
		&Admin{}, &Client{}, &Dossier{},
		&ClientRequest{}, &ContactMessage{}, &RevokedToken{},
	}
}
