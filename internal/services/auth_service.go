package services

import (
	"context"
	"strings"
	"time"

	"example.com/jonoshongjog/services/relief/internal/auth"
	"example.com/jonoshongjog/services/relief/internal/models"
	"example.com/jonoshongjog/services/relief/internal/repositories"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// AuthService registers users, logs them in and manages their profile
type AuthService struct {
	base
	tokens     *auth.TokenIssuer
	bcryptCost int
}

// NewAuthService creates a new auth service
func NewAuthService(deps Dependencies, tokens *auth.TokenIssuer, bcryptCost int) *AuthService {
	return &AuthService{base: newBase(deps), tokens: tokens, bcryptCost: bcryptCost}
}

// RegisterInput holds a new account
type RegisterInput struct {
	Name         string
	Phone        string
	Email        *string
	Password     string
	Role         models.Role
	Organization *string
	Location     *string
}

// ProfileUpdate holds the editable account fields
type ProfileUpdate struct {
	Name         *string
	Email        *string
	Organization *string
	Location     *string
}

// Session is the result of a successful login or registration
type Session struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      *models.User `json:"user"`
}

// Register creates an account; admin accounts cannot be self-registered
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*Session, error) {
	if !in.Role.SelfAssignable() {
		return nil, &ValidationError{
			Message: "Invalid role",
			Details: map[string]interface{}{"allowed": models.SelfAssignableRoles()},
		}
	}
	user, err := s.createUser(ctx, in)
	if err != nil {
		return nil, err
	}
	s.count("users_registered")
	log.Info().Str("user_id", user.ID.String()).Str("role", string(user.Role)).Msg("User registered")
	return s.session(user)
}

// CreateAdmin creates an administrator account; only reachable from the CLI
func (s *AuthService) CreateAdmin(ctx context.Context, in RegisterInput) (*models.User, error) {
	in.Role = models.RoleAdmin
	user, err := s.createUser(ctx, in)
	if err != nil {
		return nil, err
	}
	log.Info().Str("user_id", user.ID.String()).Msg("Admin user created")
	return user, nil
}

func (s *AuthService) createUser(ctx context.Context, in RegisterInput) (*models.User, error) {
	in.Phone = strings.TrimSpace(in.Phone)
	if in.Phone == "" || strings.TrimSpace(in.Name) == "" {
		return nil, &ValidationError{Message: "name and phone are required"}
	}
	if len(in.Password) < 6 {
		return nil, &ValidationError{Message: "password must be at least 6 characters"}
	}

	hash, err := auth.HashPassword(in.Password, s.bcryptCost)
	if err != nil {
		return nil, &UpstreamError{Op: "hash password", Err: err}
	}
	user := &models.User{
		Name:         in.Name,
		Phone:        in.Phone,
		Email:        in.Email,
		PasswordHash: hash,
		Role:         in.Role,
		Organization: in.Organization,
		Location:     in.Location,
		IsActive:     true,
	}
	if err := s.repos.Users.Create(ctx, user); err != nil {
		if repositories.IsDuplicateKey(err) {
			return nil, &ConflictError{Message: "phone number is already registered"}
		}
		return nil, upstream("failed to create user", err)
	}
	return user, nil
}

// Login exchanges phone and password for a token
func (s *AuthService) Login(ctx context.Context, phone, password string) (*Session, error) {
	user, err := s.repos.Users.GetByPhone(ctx, strings.TrimSpace(phone))
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, &AuthError{Message: "invalid phone or password"}
		}
		return nil, upstream("failed to load user", err)
	}
	if !auth.CheckPassword(password, user.PasswordHash) {
		s.count("login_failures")
		return nil, &AuthError{Message: "invalid phone or password"}
	}
	if !user.IsActive {
		return nil, &AuthError{Message: "account is disabled", Forbidden: true}
	}
	return s.session(user)
}

// Profile returns the caller's account
func (s *AuthService) Profile(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	user, err := s.repos.Users.GetByID(ctx, userID)
	if err != nil {
		return nil, lookup("user", userID, err)
	}
	return user, nil
}

// UpdateProfile changes the caller's editable fields
func (s *AuthService) UpdateProfile(ctx context.Context, userID uuid.UUID, in ProfileUpdate) (*models.User, error) {
	updates := map[string]interface{}{"updated_at": s.now()}
	if in.Name != nil {
		if strings.TrimSpace(*in.Name) == "" {
			return nil, &ValidationError{Message: "name must not be empty"}
		}
		updates["name"] = *in.Name
	}
	if in.Email != nil {
		updates["email"] = *in.Email
	}
	if in.Organization != nil {
		updates["organization"] = *in.Organization
	}
	if in.Location != nil {
		updates["location"] = *in.Location
	}

	if err := s.repos.Users.UpdateProfile(ctx, userID, updates); err != nil {
		return nil, lookup("user", userID, err)
	}
	return s.Profile(ctx, userID)
}

// ChangePassword replaces the password after checking the current one
func (s *AuthService) ChangePassword(ctx context.Context, userID uuid.UUID, current, next string) error {
	if len(next) < 6 {
		return &ValidationError{Message: "password must be at least 6 characters"}
	}
	user, err := s.Profile(ctx, userID)
	if err != nil {
		return err
	}
	if !auth.CheckPassword(current, user.PasswordHash) {
		return &AuthError{Message: "current password is incorrect"}
	}

	hash, err := auth.HashPassword(next, s.bcryptCost)
	if err != nil {
		return &UpstreamError{Op: "hash password", Err: err}
	}
	if err := s.repos.Users.UpdatePasswordHash(ctx, userID, hash); err != nil {
		return lookup("user", userID, err)
	}
	return nil
}

// ParseToken validates a bearer token
func (s *AuthService) ParseToken(token string) (*auth.Claims, error) {
	claims, err := s.tokens.Parse(token)
	if err != nil {
		return nil, &AuthError{Message: err.Error(), Forbidden: true}
	}
	return claims, nil
}

func (s *AuthService) session(user *models.User) (*Session, error) {
	token, expiresAt, err := s.tokens.Issue(user)
	if err != nil {
		return nil, &UpstreamError{Op: "issue token", Err: err}
	}
	return &Session{Token: token, ExpiresAt: expiresAt, User: user}, nil
}
