package handlers

import (
	"time"

	"example.com/jonoshongjog/services/relief/internal/api/middleware"
	"example.com/jonoshongjog/services/relief/internal/models"
	"example.com/jonoshongjog/services/relief/internal/repositories"
	"example.com/jonoshongjog/services/relief/internal/services"

	"github.com/gin-gonic/gin"
)

// RequestHandler handles relief requests posted by NGOs
type RequestHandler struct {
	Responder
	requests *services.RequestService
}

// NewRequestHandler creates a new relief request handler
func NewRequestHandler(r Responder, requests *services.RequestService) *RequestHandler {
	return &RequestHandler{Responder: r, requests: requests}
}

// CreateReliefRequest is the body of POST /requests
type CreateReliefRequest struct {
	ItemName            string     `json:"item_name" binding:"required,max=200"`
	Description         *string    `json:"description"`
	Category            string     `json:"category" binding:"required,oneof=food clothes medicine blankets water hygiene other"`
	Quantity            float64    `json:"quantity" binding:"required,gt=0"`
	Unit                string     `json:"unit" binding:"required"`
	Urgency             string     `json:"urgency" binding:"omitempty,oneof=low medium high critical"`
	BeneficiariesCount  int        `json:"beneficiaries_count" binding:"required,gt=0"`
	DeliveryAddress     string     `json:"delivery_address" binding:"required"`
	DeliveryCoordinates *PointBody `json:"delivery_coordinates"`
	Deadline            *time.Time `json:"deadline"`
}

// RequestStatusBody is the body of PUT /requests/:id/status
type RequestStatusBody struct {
	Status string `json:"status" binding:"required"`
}

// RequestQuery filters GET /requests
type RequestQuery struct {
	PageQuery
	Status      string `form:"status"`
	Category    string `form:"category" binding:"omitempty,oneof=food clothes medicine blankets water hygiene other"`
	Urgency     string `form:"urgency" binding:"omitempty,oneof=low medium high critical"`
	RequesterID string `form:"requester_id"`
}

// Create handles POST /requests
func (h *RequestHandler) Create(c *gin.Context) {
	var req CreateReliefRequest
	if !h.bindJSON(c, &req) {
		return
	}
	request, err := h.requests.Create(c.Request.Context(), middleware.Actor(c), services.CreateRequestInput{
		ItemName:            req.ItemName,
		Description:         req.Description,
		Category:            req.Category,
		Quantity:            req.Quantity,
		Unit:                req.Unit,
		Urgency:             req.Urgency,
		BeneficiariesCount:  req.BeneficiariesCount,
		DeliveryAddress:     req.DeliveryAddress,
		DeliveryCoordinates: req.DeliveryCoordinates.point(),
		Deadline:            req.Deadline,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	h.created(c, request, "Relief request created successfully")
}

// List handles GET /requests
func (h *RequestHandler) List(c *gin.Context) {
	var q RequestQuery
	if !h.bindQuery(c, &q) {
		return
	}
	filter := repositories.RequestFilter{Category: q.Category, Urgency: q.Urgency}
	if q.Status != "" {
		status, err := models.ParseRequestStatus(q.Status)
		if err != nil {
			h.fail(c, statusError(err))
			return
		}
		filter.Status = status
	}
	requesterID, err := optionalUUID(q.RequesterID, "requester_id")
	if err != nil {
		h.fail(c, err)
		return
	}
	filter.RequesterID = requesterID

	requests, err := h.requests.List(c.Request.Context(), filter, q.page())
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, requests)
}

// Get handles GET /requests/:id
func (h *RequestHandler) Get(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		h.fail(c, err)
		return
	}
	request, err := h.requests.Get(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, request)
}

// Validate handles PUT /requests/:id/validate
func (h *RequestHandler) Validate(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		h.fail(c, err)
		return
	}
	var req ValidateRequest
	if !h.bindJSON(c, &req) {
		return
	}
	request, err := h.requests.Validate(c.Request.Context(), id, *req.Approved, req.Reason)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, request)
}

// UpdateStatus handles PUT /requests/:id/status
func (h *RequestHandler) UpdateStatus(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		h.fail(c, err)
		return
	}
	var req RequestStatusBody
	if !h.bindJSON(c, &req) {
		return
	}
	request, err := h.requests.UpdateStatus(c.Request.Context(), middleware.Actor(c), id, req.Status)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, request)
}

// RegisterRoutes registers the handler's routes
func (h *RequestHandler) RegisterRoutes(rg *gin.RouterGroup, authn gin.HandlerFunc) {
	g := rg.Group("/requests", authn)
	g.POST("", middleware.RequireRoles(models.RoleNGO, models.RoleAdmin), h.Create)
	g.GET("", h.List)
	g.GET("/:id", h.Get)
	g.PUT("/:id/validate", middleware.RequireRoles(models.RoleAdmin), h.Validate)
	g.PUT("/:id/status", h.UpdateStatus)
}
