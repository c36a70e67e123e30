package handlers

import (
	"net/http"

	"example.com/jonoshongjog/services/relief/internal/api/middleware"
	"example.com/jonoshongjog/services/relief/internal/models"
	"example.com/jonoshongjog/services/relief/internal/services"

	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"
)

// VolunteerHandler handles volunteer profiles
type VolunteerHandler struct {
	Responder
	volunteers *services.VolunteerService
}

// NewVolunteerHandler creates a new volunteer handler
func NewVolunteerHandler(r Responder, volunteers *services.VolunteerService) *VolunteerHandler {
	return &VolunteerHandler{Responder: r, volunteers: volunteers}
}

// ProfileRequest is the body of POST /volunteers
type ProfileRequest struct {
	VehicleType   string         `json:"vehicle_type" binding:"required,oneof=bicycle motorcycle car truck"`
	MaxCapacityKg float64        `json:"max_capacity_kg" binding:"gte=0"`
	Coordinates   *PointBody     `json:"coordinates"`
	ServiceArea   *string        `json:"service_area"`
	IsAvailable   *bool          `json:"is_available"`
	Availability  datatypes.JSON `json:"availability"`
}

// VolunteerQuery filters GET /volunteers
type VolunteerQuery struct {
	PageQuery
	VehicleType string `form:"vehicle_type" binding:"omitempty,oneof=bicycle motorcycle car truck"`
}

// Upsert handles POST /volunteers
func (h *VolunteerHandler) Upsert(c *gin.Context) {
	var req ProfileRequest
	if !h.bindJSON(c, &req) {
		return
	}
	profile, created, err := h.volunteers.UpsertProfile(c.Request.Context(), middleware.Actor(c).UserID, services.ProfileInput{
		VehicleType:   req.VehicleType,
		MaxCapacityKg: req.MaxCapacityKg,
		Coordinates:   req.Coordinates.point(),
		ServiceArea:   req.ServiceArea,
		IsAvailable:   req.IsAvailable,
		Availability:  req.Availability,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	if created {
		h.created(c, profile, "Volunteer profile created")
		return
	}
	c.JSON(http.StatusOK, Envelope{Success: true, Data: profile, Message: "Volunteer profile updated"})
}

// Me handles GET /volunteers/me
func (h *VolunteerHandler) Me(c *gin.Context) {
	profile, err := h.volunteers.GetProfileByUser(c.Request.Context(), middleware.Actor(c).UserID)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, profile)
}

// ListAvailable handles GET /volunteers
func (h *VolunteerHandler) ListAvailable(c *gin.Context) {
	var q VolunteerQuery
	if !h.bindQuery(c, &q) {
		return
	}
	profiles, err := h.volunteers.ListAvailable(c.Request.Context(), q.VehicleType, q.page())
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, profiles)
}

// RegisterRoutes registers the handler's routes
func (h *VolunteerHandler) RegisterRoutes(rg *gin.RouterGroup, authn gin.HandlerFunc) {
	g := rg.Group("/volunteers", authn)
	g.POST("", middleware.RequireRoles(models.RoleVolunteer), h.Upsert)
	g.GET("/me", middleware.RequireRoles(models.RoleVolunteer), h.Me)
	g.GET("", h.ListAvailable)
}
