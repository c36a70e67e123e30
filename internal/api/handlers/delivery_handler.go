package handlers

import (
	"time"

	"example.com/jonoshongjog/services/relief/internal/models"
	"example.com/jonoshongjog/services/relief/internal/repositories"
	"example.com/jonoshongjog/services/relief/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const maxProofSize = 10 << 20

// DeliveryHandler handles the delivery lifecycle
type DeliveryHandler struct {
	Responder
	deliveries *services.DeliveryService
}

// NewDeliveryHandler creates a new delivery handler
func NewDeliveryHandler(r Responder, deliveries *services.DeliveryService) *DeliveryHandler {
	return &DeliveryHandler{Responder: r, deliveries: deliveries}
}

// CreateDeliveryRequest is the body of POST /deliveries
type CreateDeliveryRequest struct {
	VolunteerBody
	MatchID             uuid.UUID  `json:"match_id" binding:"required"`
	PickupAddress       *string    `json:"pickup_address"`
	PickupCoordinates   *PointBody `json:"pickup_coordinates"`
	DeliveryAddress     *string    `json:"delivery_address"`
	DeliveryCoordinates *PointBody `json:"delivery_coordinates"`
	PickupScheduledAt   *time.Time `json:"pickup_scheduled_at"`
	DeliveryScheduledAt *time.Time `json:"delivery_scheduled_at"`
	Notes               *string    `json:"notes"`
}

// DeliveryStatusRequest is the body of PUT /deliveries/:id/status
type DeliveryStatusRequest struct {
	Status   string     `json:"status" binding:"required"`
	Location *PointBody `json:"location"`
	Notes    *string    `json:"notes"`
}

// DeliveryQuery filters GET /deliveries
type DeliveryQuery struct {
	PageQuery
	Status      string `form:"status"`
	VolunteerID string `form:"volunteer_id"`
	MatchID     string `form:"match_id"`
}

// Create handles POST /deliveries
func (h *DeliveryHandler) Create(c *gin.Context) {
	var req CreateDeliveryRequest
	if !h.bindJSON(c, &req) {
		return
	}
	delivery, err := h.deliveries.CreateDelivery(c.Request.Context(), services.CreateDeliveryInput{
		MatchID:             req.MatchID,
		Volunteer:           req.ref(),
		PickupAddress:       req.PickupAddress,
		PickupCoordinates:   req.PickupCoordinates.point(),
		DeliveryAddress:     req.DeliveryAddress,
		DeliveryCoordinates: req.DeliveryCoordinates.point(),
		PickupScheduledAt:   req.PickupScheduledAt,
		DeliveryScheduledAt: req.DeliveryScheduledAt,
		Notes:               req.Notes,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	h.created(c, delivery, "Delivery created successfully")
}

// List handles GET /deliveries
func (h *DeliveryHandler) List(c *gin.Context) {
	var q DeliveryQuery
	if !h.bindQuery(c, &q) {
		return
	}
	var (
		filter repositories.DeliveryFilter
		err    error
	)
	if q.Status != "" {
		if filter.Status, err = models.ParseDeliveryStatus(q.Status); err != nil {
			h.fail(c, statusError(err))
			return
		}
	}
	if filter.VolunteerID, err = optionalUUID(q.VolunteerID, "volunteer_id"); err != nil {
		h.fail(c, err)
		return
	}
	if filter.MatchID, err = optionalUUID(q.MatchID, "match_id"); err != nil {
		h.fail(c, err)
		return
	}

	deliveries, err := h.deliveries.ListDeliveries(c.Request.Context(), filter, q.page())
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, deliveries)
}

// Get handles GET /deliveries/:id
func (h *DeliveryHandler) Get(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		h.fail(c, err)
		return
	}
	delivery, err := h.deliveries.GetDelivery(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, delivery)
}

// UpdateStatus handles PUT /deliveries/:id/status
func (h *DeliveryHandler) UpdateStatus(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		h.fail(c, err)
		return
	}
	var req DeliveryStatusRequest
	if !h.bindJSON(c, &req) {
		return
	}
	delivery, err := h.deliveries.UpdateStatus(c.Request.Context(), id, services.StatusUpdate{
		Status:   req.Status,
		Location: req.Location.point(),
		Notes:    req.Notes,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, delivery)
}

// AssignVolunteer handles POST /deliveries/:id/assign-volunteer
func (h *DeliveryHandler) AssignVolunteer(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		h.fail(c, err)
		return
	}
	var req VolunteerBody
	if !h.bindJSON(c, &req) {
		return
	}
	delivery, err := h.deliveries.AssignVolunteer(c.Request.Context(), id, req.ref())
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, delivery)
}

// UploadProof handles POST /deliveries/:id/proof
func (h *DeliveryHandler) UploadProof(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		h.fail(c, err)
		return
	}
	stage := services.ProofStage(c.PostForm("stage"))
	if stage != services.ProofPickup && stage != services.ProofDelivery {
		h.fail(c, &services.ValidationError{
			Message: "Invalid stage",
			Details: map[string]interface{}{"allowed": []services.ProofStage{services.ProofPickup, services.ProofDelivery}},
		})
		return
	}

	header, err := c.FormFile("photo")
	if err != nil {
		h.fail(c, &services.ValidationError{Message: "photo is required"})
		return
	}
	if header.Size > maxProofSize {
		h.fail(c, &services.ValidationError{Message: "photo must be at most 10MB"})
		return
	}
	file, err := header.Open()
	if err != nil {
		h.fail(c, &services.ValidationError{Message: "photo could not be read"})
		return
	}
	defer file.Close()

	delivery, err := h.deliveries.UploadProof(c.Request.Context(), id, stage, file, header.Header.Get("Content-Type"))
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, delivery)
}

// RegisterRoutes registers the handler's routes
func (h *DeliveryHandler) RegisterRoutes(rg *gin.RouterGroup, authn gin.HandlerFunc) {
	g := rg.Group("/deliveries", authn)
	g.POST("", h.Create)
	g.GET("", h.List)
	g.GET("/:id", h.Get)
	g.PUT("/:id/status", h.UpdateStatus)
	g.POST("/:id/assign-volunteer", h.AssignVolunteer)
	g.POST("/:id/proof", h.UploadProof)
}
