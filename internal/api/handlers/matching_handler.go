package handlers

import (
	"example.com/jonoshongjog/services/relief/internal/api/middleware"
	"example.com/jonoshongjog/services/relief/internal/models"
	"example.com/jonoshongjog/services/relief/internal/repositories"
	"example.com/jonoshongjog/services/relief/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// MatchingHandler handles donation to request matches
type MatchingHandler struct {
	Responder
	matching *services.MatchingService
}

// NewMatchingHandler creates a new matching handler
func NewMatchingHandler(r Responder, matching *services.MatchingService) *MatchingHandler {
	return &MatchingHandler{Responder: r, matching: matching}
}

// VolunteerBody identifies a volunteer by profile id or user id
type VolunteerBody struct {
	VolunteerID     *uuid.UUID `json:"volunteer_id"`
	VolunteerUserID *uuid.UUID `json:"volunteer_user_id"`
}

func (v VolunteerBody) ref() models.VolunteerRef {
	return models.VolunteerRef{ProfileID: v.VolunteerID, UserID: v.VolunteerUserID}
}

// CreateMatchRequest is the body of POST /matching/create
type CreateMatchRequest struct {
	VolunteerBody
	DonationID         uuid.UUID `json:"donation_id" binding:"required"`
	RequestID          uuid.UUID `json:"request_id" binding:"required"`
	CompatibilityScore *float64  `json:"compatibility_score" binding:"omitempty,gte=0,lte=1"`
	MatchedBy          string    `json:"matched_by" binding:"omitempty,oneof=ai_agent manual"`
	Reasoning          *string   `json:"reasoning"`
}

// AssignMatchVolunteerRequest is the body of PUT /matching/:matchId/volunteer
type AssignMatchVolunteerRequest struct {
	VolunteerID uuid.UUID `json:"volunteer_id" binding:"required"`
}

// CancelRequest carries an optional reason
type CancelRequest struct {
	Reason *string `json:"reason"`
}

// MatchQuery filters GET /matching
type MatchQuery struct {
	PageQuery
	Status      string `form:"status"`
	DonationID  string `form:"donation_id"`
	RequestID   string `form:"request_id"`
	VolunteerID string `form:"volunteer_id"`
}

// Create handles POST /matching/create
func (h *MatchingHandler) Create(c *gin.Context) {
	var req CreateMatchRequest
	if !h.bindJSON(c, &req) {
		return
	}
	result, err := h.matching.CreateMatch(c.Request.Context(), services.CreateMatchInput{
		DonationID:         req.DonationID,
		RequestID:          req.RequestID,
		Volunteer:          req.ref(),
		CompatibilityScore: req.CompatibilityScore,
		MatchedBy:          models.MatchedBy(req.MatchedBy),
		Reasoning:          req.Reasoning,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	h.created(c, result, "Match created successfully")
}

// List handles GET /matching
func (h *MatchingHandler) List(c *gin.Context) {
	var q MatchQuery
	if !h.bindQuery(c, &q) {
		return
	}
	var (
		filter repositories.MatchFilter
		err    error
	)
	if q.Status != "" {
		if filter.Status, err = models.ParseMatchStatus(q.Status); err != nil {
			h.fail(c, statusError(err))
			return
		}
	}
	if filter.DonationID, err = optionalUUID(q.DonationID, "donation_id"); err != nil {
		h.fail(c, err)
		return
	}
	if filter.RequestID, err = optionalUUID(q.RequestID, "request_id"); err != nil {
		h.fail(c, err)
		return
	}
	if filter.VolunteerID, err = optionalUUID(q.VolunteerID, "volunteer_id"); err != nil {
		h.fail(c, err)
		return
	}

	matches, err := h.matching.ListMatches(c.Request.Context(), filter, q.page())
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, matches)
}

// Get handles GET /matching/:matchId
func (h *MatchingHandler) Get(c *gin.Context) {
	id, err := pathID(c, "matchId")
	if err != nil {
		h.fail(c, err)
		return
	}
	match, err := h.matching.GetMatch(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, match)
}

// AssignVolunteer handles PUT /matching/:matchId/volunteer
func (h *MatchingHandler) AssignVolunteer(c *gin.Context) {
	id, err := pathID(c, "matchId")
	if err != nil {
		h.fail(c, err)
		return
	}
	var req AssignMatchVolunteerRequest
	if !h.bindJSON(c, &req) {
		return
	}
	match, err := h.matching.AssignVolunteer(c.Request.Context(), id, req.VolunteerID)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, match)
}

// Cancel handles PUT /matching/:matchId/cancel
func (h *MatchingHandler) Cancel(c *gin.Context) {
	id, err := pathID(c, "matchId")
	if err != nil {
		h.fail(c, err)
		return
	}
	var req CancelRequest
	if c.Request.ContentLength > 0 && !h.bindJSON(c, &req) {
		return
	}
	match, err := h.matching.CancelMatch(c.Request.Context(), id, req.Reason)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, match)
}

// RegisterRoutes registers the handler's routes
func (h *MatchingHandler) RegisterRoutes(rg *gin.RouterGroup, authn gin.HandlerFunc) {
	g := rg.Group("/matching", authn)
	g.POST("/create", middleware.RequireRoles(models.RoleNGO, models.RoleAdmin), h.Create)
	g.GET("", h.List)
	g.GET("/:matchId", h.Get)
	g.PUT("/:matchId/volunteer", middleware.RequireRoles(models.RoleNGO, models.RoleAdmin, models.RoleVolunteer), h.AssignVolunteer)
	g.PUT("/:matchId/cancel", middleware.RequireRoles(models.RoleNGO, models.RoleAdmin), h.Cancel)
}
