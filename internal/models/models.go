package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Base carries the identity and audit columns shared by every table
type Base struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// BeforeCreate assigns an id when the caller did not
func (b *Base) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

// User is an account of any role
type User struct {
	Base
	Name         string  `gorm:"not null" json:"name"`
	Phone        string  `gorm:"not null;uniqueIndex" json:"phone"`
	Email        *string `json:"email,omitempty"`
	PasswordHash string  `gorm:"not null" json:"-"`
	Role         Role    `gorm:"type:varchar(20);not null;index" json:"role"`
	Organization *string `json:"organization,omitempty"`
	Location     *string `json:"location,omitempty"`
	IsActive     bool    `gorm:"not null;default:true" json:"is_active"`
}

// Donation is an offer of goods by a donor
type Donation struct {
	Base
	DonorID           uuid.UUID      `gorm:"type:uuid;not null;index" json:"donor_id"`
	ItemName          string         `gorm:"not null" json:"item_name"`
	Description       *string        `json:"description,omitempty"`
	Category          string         `gorm:"type:varchar(20);not null;index" json:"category"`
	Quantity          float64        `gorm:"not null" json:"quantity"`
	Unit              string         `gorm:"not null" json:"unit"`
	Urgency           string         `gorm:"type:varchar(20);not null;default:medium" json:"urgency"`
	PickupAddress     string         `gorm:"not null" json:"pickup_address"`
	PickupCoordinates *Point         `json:"pickup_coordinates,omitempty"`
	AvailableUntil    *time.Time     `json:"available_until,omitempty"`
	Status            DonationStatus `gorm:"type:varchar(30);not null;index" json:"status"`
	RejectionReason   *string        `json:"rejection_reason,omitempty"`
	Donor             *User          `gorm:"foreignKey:DonorID" json:"donor,omitempty"`
}

// ReliefRequest is a need posted by an NGO
type ReliefRequest struct {
	Base
	RequesterID         uuid.UUID     `gorm:"type:uuid;not null;index" json:"requester_id"`
	ItemName            string        `gorm:"not null" json:"item_name"`
	Description         *string       `json:"description,omitempty"`
	Category            string        `gorm:"type:varchar(20);not null;index" json:"category"`
	Quantity            float64       `gorm:"not null" json:"quantity"`
	Unit                string        `gorm:"not null" json:"unit"`
	Urgency             string        `gorm:"type:varchar(20);not null;default:medium" json:"urgency"`
	BeneficiariesCount  int           `gorm:"not null" json:"beneficiaries_count"`
	DeliveryAddress     string        `gorm:"not null" json:"delivery_address"`
	DeliveryCoordinates *Point        `json:"delivery_coordinates,omitempty"`
	Deadline            *time.Time    `json:"deadline,omitempty"`
	Status              RequestStatus `gorm:"type:varchar(30);not null;index" json:"status"`
	RejectionReason     *string       `json:"rejection_reason,omitempty"`
	Requester           *User         `gorm:"foreignKey:RequesterID" json:"requester,omitempty"`
}

// TableName keeps the historical table name
func (ReliefRequest) TableName() string {
	return "relief_requests"
}

// Match links one donation to one relief request
type Match struct {
	Base
	DonationID          uuid.UUID      `gorm:"type:uuid;not null;index" json:"donation_id"`
	RequestID           uuid.UUID      `gorm:"type:uuid;not null;index" json:"request_id"`
	AssignedVolunteerID *uuid.UUID     `gorm:"type:uuid;index" json:"assigned_volunteer_id,omitempty"`
	Status              MatchStatus    `gorm:"type:varchar(20);not null;index" json:"status"`
	CompatibilityScore  *float64       `json:"compatibility_score,omitempty"`
	MatchedBy           MatchedBy      `gorm:"type:varchar(20);not null;default:manual" json:"matched_by"`
	Reasoning           *string        `json:"reasoning,omitempty"`
	AssignedAt          *time.Time     `json:"assigned_at,omitempty"`
	Donation            *Donation      `gorm:"foreignKey:DonationID" json:"donation,omitempty"`
	Request             *ReliefRequest `gorm:"foreignKey:RequestID" json:"request,omitempty"`
}

// Delivery tracks the physical movement of a matched donation
type Delivery struct {
	Base
	MatchID             uuid.UUID      `gorm:"type:uuid;not null;index" json:"match_id"`
	VolunteerID         *uuid.UUID     `gorm:"type:uuid;index" json:"volunteer_id,omitempty"`
	Status              DeliveryStatus `gorm:"type:varchar(30);not null;index" json:"status"`
	PickupAddress       string         `json:"pickup_address"`
	PickupCoordinates   *Point         `json:"pickup_coordinates,omitempty"`
	DeliveryAddress     string         `json:"delivery_address"`
	DeliveryCoordinates *Point         `json:"delivery_coordinates,omitempty"`
	PickupScheduledAt   *time.Time     `json:"pickup_scheduled_at,omitempty"`
	PickupActualAt      *time.Time     `json:"pickup_actual_at,omitempty"`
	PickupNotes         *string        `json:"pickup_notes,omitempty"`
	PickupProofURL      *string        `json:"pickup_proof_url,omitempty"`
	DeliveryScheduledAt *time.Time     `json:"delivery_scheduled_at,omitempty"`
	DeliveryActualAt    *time.Time     `json:"delivery_actual_at,omitempty"`
	DeliveryNotes       *string        `json:"delivery_notes,omitempty"`
	DeliveryProofURL    *string        `json:"delivery_proof_url,omitempty"`
	CurrentLocation     *Point         `json:"current_location,omitempty"`
	LastLocationUpdate  *time.Time     `json:"last_location_update,omitempty"`
	Notes               *string        `json:"notes,omitempty"`
	Match               *Match         `gorm:"foreignKey:MatchID" json:"match,omitempty"`
}

// VolunteerProfile holds the carrying capacity and availability of a volunteer
type VolunteerProfile struct {
	Base
	UserID        uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex" json:"user_id"`
	VehicleType   string         `gorm:"type:varchar(20);not null" json:"vehicle_type"`
	MaxCapacityKg float64        `json:"max_capacity_kg"`
	Coordinates   *Point         `json:"coordinates,omitempty"`
	ServiceArea   *string        `json:"service_area,omitempty"`
	IsAvailable   bool           `gorm:"not null;default:true;index" json:"is_available"`
	Availability  datatypes.JSON `json:"availability,omitempty"`
	User          *User          `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

// VolunteerRef names a volunteer either by user id or by profile id
type VolunteerRef struct {
	UserID    *uuid.UUID
	ProfileID *uuid.UUID
}

// IsZero reports whether no volunteer was given
func (r VolunteerRef) IsZero() bool {
	return r.UserID == nil && r.ProfileID == nil
}

// Valid item categories, urgencies and vehicle types, used in binding tags
const (
	Categories   = "food clothes medicine blankets water hygiene other"
	Urgencies    = "low medium high critical"
	VehicleTypes = "bicycle motorcycle car truck"
)

// SetupModels runs the schema migration
func SetupModels(db *gorm.DB) error {
	err := db.AutoMigrate(
		&User{},
		&Donation{},
		&ReliefRequest{},
		&VolunteerProfile{},
		&Match{},
		&Delivery{},
	)
	if err != nil {
		return errors.Wrap(err, "failed to migrate models")
	}
	return nil
}
