package handlers

import (
	"time"

	"example.com/jonoshongjog/services/relief/internal/api/middleware"
	"example.com/jonoshongjog/services/relief/internal/models"
	"example.com/jonoshongjog/services/relief/internal/repositories"
	"example.com/jonoshongjog/services/relief/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
)

// DonationHandler handles donation intake and review
type DonationHandler struct {
	Responder
	donations *services.DonationService
}

// NewDonationHandler creates a new donation handler
func NewDonationHandler(r Responder, donations *services.DonationService) *DonationHandler {
	return &DonationHandler{Responder: r, donations: donations}
}

// CreateDonationRequest is the body of POST /donations
type CreateDonationRequest struct {
	ItemName          string     `json:"item_name" binding:"required,max=200"`
	Description       *string    `json:"description"`
	Category          string     `json:"category" binding:"required,oneof=food clothes medicine blankets water hygiene other"`
	Quantity          float64    `json:"quantity" binding:"required,gt=0"`
	Unit              string     `json:"unit" binding:"required"`
	Urgency           string     `json:"urgency" binding:"omitempty,oneof=low medium high critical"`
	PickupAddress     string     `json:"pickup_address" binding:"required"`
	PickupCoordinates *PointBody `json:"pickup_coordinates"`
	AvailableUntil    *time.Time `json:"available_until"`
}

// ValidateRequest is the body of the admin validation endpoints
type ValidateRequest struct {
	Approved *bool   `json:"approved" binding:"required"`
	Reason   *string `json:"reason"`
}

// DonationQuery filters GET /donations
type DonationQuery struct {
	PageQuery
	Status   string `form:"status"`
	Category string `form:"category" binding:"omitempty,oneof=food clothes medicine blankets water hygiene other"`
	Urgency  string `form:"urgency" binding:"omitempty,oneof=low medium high critical"`
	DonorID  string `form:"donor_id"`
}

// Create handles POST /donations
func (h *DonationHandler) Create(c *gin.Context) {
	var req CreateDonationRequest
	if !h.bindJSON(c, &req) {
		return
	}
	donation, err := h.donations.Create(c.Request.Context(), middleware.Actor(c), services.CreateDonationInput{
		ItemName:          req.ItemName,
		Description:       req.Description,
		Category:          req.Category,
		Quantity:          req.Quantity,
		Unit:              req.Unit,
		Urgency:           req.Urgency,
		PickupAddress:     req.PickupAddress,
		PickupCoordinates: req.PickupCoordinates.point(),
		AvailableUntil:    req.AvailableUntil,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	h.created(c, donation, "Donation created successfully")
}

// List handles GET /donations
func (h *DonationHandler) List(c *gin.Context) {
	var q DonationQuery
	if !h.bindQuery(c, &q) {
		return
	}
	filter := repositories.DonationFilter{Category: q.Category, Urgency: q.Urgency}
	if q.Status != "" {
		status, err := models.ParseDonationStatus(q.Status)
		if err != nil {
			h.fail(c, statusError(err))
			return
		}
		filter.Status = status
	}
	donorID, err := optionalUUID(q.DonorID, "donor_id")
	if err != nil {
		h.fail(c, err)
		return
	}
	filter.DonorID = donorID

	donations, err := h.donations.List(c.Request.Context(), filter, q.page())
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, donations)
}

// Search handles GET /donations/search
func (h *DonationHandler) Search(c *gin.Context) {
	donations, err := h.donations.Search(c.Request.Context(), c.Query("q"), atoiDefault(c.Query("limit"), 20))
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, donations)
}

// Get handles GET /donations/:id
func (h *DonationHandler) Get(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		h.fail(c, err)
		return
	}
	donation, err := h.donations.Get(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, donation)
}

// Validate handles PUT /donations/:id/validate
func (h *DonationHandler) Validate(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		h.fail(c, err)
		return
	}
	var req ValidateRequest
	if !h.bindJSON(c, &req) {
		return
	}
	donation, err := h.donations.Validate(c.Request.Context(), id, *req.Approved, req.Reason)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, donation)
}

// Cancel handles PUT /donations/:id/cancel
func (h *DonationHandler) Cancel(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		h.fail(c, err)
		return
	}
	donation, err := h.donations.Cancel(c.Request.Context(), middleware.Actor(c), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, donation)
}

// RegisterRoutes registers the handler's routes
func (h *DonationHandler) RegisterRoutes(rg *gin.RouterGroup, authn gin.HandlerFunc) {
	g := rg.Group("/donations", authn)
	g.POST("", middleware.RequireRoles(models.RoleDonor, models.RoleAdmin), h.Create)
	g.GET("", h.List)
	g.GET("/search", h.Search)
	g.GET("/:id", h.Get)
	g.PUT("/:id/validate", middleware.RequireRoles(models.RoleAdmin), h.Validate)
	g.PUT("/:id/cancel", h.Cancel)
}

// statusError turns an unknown status into a 400 listing the allowed values
func statusError(err error) error {
	var unknown *models.UnknownStatusError
	if errors.As(err, &unknown) {
		return &services.ValidationError{
			Message: "Invalid status",
			Details: map[string]interface{}{"allowed": unknown.Allowed, "status": unknown.Value},
		}
	}
	return &services.ValidationError{Message: err.Error()}
}
