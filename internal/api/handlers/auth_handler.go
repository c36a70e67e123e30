package handlers

import (
	"example.com/jonoshongjog/services/relief/internal/api/middleware"
	"example.com/jonoshongjog/services/relief/internal/models"
	"example.com/jonoshongjog/services/relief/internal/services"

	"github.com/gin-gonic/gin"
)

// AuthHandler handles registration, login and the caller's account
type AuthHandler struct {
	Responder
	auth *services.AuthService
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(r Responder, auth *services.AuthService) *AuthHandler {
	return &AuthHandler{Responder: r, auth: auth}
}

// RegisterRequest is the body of POST /auth/register
type RegisterRequest struct {
	Name         string  `json:"name" binding:"required,max=120"`
	Phone        string  `json:"phone" binding:"required,phone"`
	Email        *string `json:"email" binding:"omitempty,email"`
	Password     string  `json:"password" binding:"required,min=6"`
	Role         string  `json:"role" binding:"required,oneof=donor ngo volunteer"`
	Organization *string `json:"organization"`
	Location     *string `json:"location"`
}

// LoginRequest is the body of POST /auth/login
type LoginRequest struct {
	Phone    string `json:"phone" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// UpdateProfileRequest is the body of PUT /auth/profile
type UpdateProfileRequest struct {
	Name         *string `json:"name" binding:"omitempty,max=120"`
	Email        *string `json:"email" binding:"omitempty,email"`
	Organization *string `json:"organization"`
	Location     *string `json:"location"`
}

// ChangePasswordRequest is the body of POST /auth/change-password
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" binding:"required"`
	NewPassword     string `json:"new_password" binding:"required,min=6"`
}

// Register handles POST /auth/register
func (h *AuthHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if !h.bindJSON(c, &req) {
		return
	}
	session, err := h.auth.Register(c.Request.Context(), services.RegisterInput{
		Name:         req.Name,
		Phone:        req.Phone,
		Email:        req.Email,
		Password:     req.Password,
		Role:         models.Role(req.Role),
		Organization: req.Organization,
		Location:     req.Location,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	h.created(c, session, "User registered successfully")
}

// Login handles POST /auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if !h.bindJSON(c, &req) {
		return
	}
	session, err := h.auth.Login(c.Request.Context(), req.Phone, req.Password)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, session)
}

// Profile handles GET /auth/profile
func (h *AuthHandler) Profile(c *gin.Context) {
	user, err := h.auth.Profile(c.Request.Context(), middleware.Actor(c).UserID)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, user)
}

// UpdateProfile handles PUT /auth/profile
func (h *AuthHandler) UpdateProfile(c *gin.Context) {
	var req UpdateProfileRequest
	if !h.bindJSON(c, &req) {
		return
	}
	user, err := h.auth.UpdateProfile(c.Request.Context(), middleware.Actor(c).UserID, services.ProfileUpdate{
		Name:         req.Name,
		Email:        req.Email,
		Organization: req.Organization,
		Location:     req.Location,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, user)
}

// ChangePassword handles POST /auth/change-password
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	var req ChangePasswordRequest
	if !h.bindJSON(c, &req) {
		return
	}
	if err := h.auth.ChangePassword(c.Request.Context(), middleware.Actor(c).UserID, req.CurrentPassword, req.NewPassword); err != nil {
		h.fail(c, err)
		return
	}
	h.message(c, "Password changed successfully")
}

// RegisterRoutes registers the handler's routes
func (h *AuthHandler) RegisterRoutes(rg *gin.RouterGroup, authn gin.HandlerFunc) {
	g := rg.Group("/auth")
	g.POST("/register", h.Register)
	g.POST("/login", h.Login)
	g.GET("/profile", authn, h.Profile)
	g.PUT("/profile", authn, h.UpdateProfile)
	g.POST("/change-password", authn, h.ChangePassword)
}
