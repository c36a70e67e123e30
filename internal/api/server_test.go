package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"example.com/jonoshongjog/services/relief/config"
	"example.com/jonoshongjog/services/relief/internal/api/handlers"
	"example.com/jonoshongjog/services/relief/internal/auth"
	"example.com/jonoshongjog/services/relief/internal/chat"
	"example.com/jonoshongjog/services/relief/internal/metrics"
	"example.com/jonoshongjog/services/relief/internal/models"
	"example.com/jonoshongjog/services/relief/internal/services"
	"example.com/jonoshongjog/services/relief/internal/socket"
	"example.com/jonoshongjog/services/relief/internal/testutil"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type testServer struct {
	t      *testing.T
	db     *gorm.DB
	tokens *auth.TokenIssuer
	server *Server
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.OpenTestDB(t)
	m := metrics.NewMetrics()
	deps := services.Dependencies{DB: db, ReadOnlyDB: db, Metrics: m, Clock: testutil.Clock()}
	tokens := auth.NewTokenIssuer("test-secret", time.Hour)
	volunteers := services.NewVolunteerService(deps)

	cfg := config.Config{Environment: "test"}
	server := NewServer(cfg, Dependencies{
		Tokens:     tokens,
		Auth:       services.NewAuthService(deps, tokens, bcrypt.MinCost),
		Donations:  services.NewDonationService(deps),
		Requests:   services.NewRequestService(deps),
		Matching:   services.NewMatchingService(deps, volunteers),
		Deliveries: services.NewDeliveryService(deps, volunteers),
		Volunteers: volunteers,
		Chat:       chat.NewService(chat.NewHTTPAgent("", "", time.Second), chat.NewMemoryStore(time.Hour), m, 10),
		Hub:        socket.NewHub(),
		Metrics:    m,
	})
	return &testServer{t: t, db: db, tokens: tokens, server: server}
}

func (s *testServer) token(user *models.User) string {
	s.t.Helper()
	token, _, err := s.tokens.Issue(user)
	require.NoError(s.t, err)
	return token
}

func (s *testServer) do(method, path, token string, body interface{}) (*httptest.ResponseRecorder, handlers.Envelope) {
	s.t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	s.server.Router().ServeHTTP(rec, req)

	var env handlers.Envelope
	if rec.Body.Len() > 0 {
		require.NoError(s.t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	}
	return rec, env
}

func (s *testServer) assignedDelivery() (*models.User, *models.Delivery) {
	s.t.Helper()

	donor := testutil.CreateUser(s.t, s.db, models.RoleDonor)
	ngo := testutil.CreateUser(s.t, s.db, models.RoleNGO)
	donation := testutil.CreateDonation(s.t, s.db, donor.ID, models.DonationMatched)
	request := testutil.CreateRequest(s.t, s.db, ngo.ID, models.RequestPartiallyMatched)
	volunteer, profile := testutil.CreateVolunteer(s.t, s.db)

	match := &models.Match{
		DonationID:          donation.ID,
		RequestID:           request.ID,
		AssignedVolunteerID: &profile.ID,
		Status:              models.MatchAssigned,
		MatchedBy:           models.MatchedByManual,
	}
	require.NoError(s.t, s.db.Create(match).Error)
	delivery := &models.Delivery{MatchID: match.ID, VolunteerID: &profile.ID, Status: models.DeliveryAssigned}
	require.NoError(s.t, s.db.Create(delivery).Error)
	return volunteer, delivery
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)

	rec, env := s.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, env.Success)
}

func TestMissingTokenIs401(t *testing.T) {
	s := newTestServer(t)

	rec, env := s.do(http.MethodGet, "/api/v1/donations", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Access token required", env.Error)
}

func TestInvalidTokenIs403(t *testing.T) {
	s := newTestServer(t)

	rec, env := s.do(http.MethodGet, "/api/v1/donations", "not-a-jwt", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "Invalid or expired token", env.Error)

	other := auth.NewTokenIssuer("another-secret", time.Hour)
	user := testutil.CreateUser(t, s.db, models.RoleDonor)
	forged, _, err := other.Issue(user)
	require.NoError(t, err)

	rec, _ = s.do(http.MethodGet, "/api/v1/donations", forged, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestWrongRoleIs403(t *testing.T) {
	s := newTestServer(t)
	ngo := testutil.CreateUser(t, s.db, models.RoleNGO)

	rec, _ := s.do(http.MethodPost, "/api/v1/donations", s.token(ngo), map[string]interface{}{
		"item_name":      "Rice",
		"category":       "food",
		"quantity":       10,
		"unit":           "kg",
		"pickup_address": "Sylhet",
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Zero(t, testutil.Count(t, s.db, &models.Donation{}))
}

func TestBogusDeliveryStatusIs400AndLeavesRowUnchanged(t *testing.T) {
	s := newTestServer(t)
	volunteer, delivery := s.assignedDelivery()

	rec, env := s.do(http.MethodPut, "/api/v1/deliveries/"+delivery.ID.String()+"/status", s.token(volunteer),
		map[string]string{"status": "bogus"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid status", env.Error)
	details, ok := env.Details.(map[string]interface{})
	require.True(t, ok)
	assert.Contains(t, details["allowed"], "picked_up")

	var stored models.Delivery
	require.NoError(t, s.db.First(&stored, "id = ?", delivery.ID).Error)
	assert.Equal(t, models.DeliveryAssigned, stored.Status)
}

func TestDeliveryStatusFlow(t *testing.T) {
	s := newTestServer(t)
	volunteer, delivery := s.assignedDelivery()
	path := "/api/v1/deliveries/" + delivery.ID.String() + "/status"

	rec, env := s.do(http.MethodPut, path, s.token(volunteer), map[string]interface{}{
		"status":   "picked_up",
		"location": map[string]float64{"lat": 24.9, "lng": 91.86},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	data := env.Data.(map[string]interface{})
	assert.Equal(t, "picked_up", data["status"])
	assert.NotNil(t, data["pickup_actual_at"])

	rec, env = s.do(http.MethodPut, path, s.token(volunteer), map[string]string{"status": "assigned"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.NotEmpty(t, env.Error)

	rec, _ = s.do(http.MethodPut, path, s.token(volunteer), map[string]interface{}{
		"status":   "in_transit_to_delivery",
		"location": map[string]float64{"lat": 95, "lng": 0},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRegisterLoginAndProfile(t *testing.T) {
	s := newTestServer(t)

	rec, env := s.do(http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"name":     "Nasrin",
		"phone":    "+8801712345678",
		"password": "secret1",
		"role":     "admin",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.NotEmpty(t, env.Error)

	rec, _ = s.do(http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"name":     "Nasrin",
		"phone":    "+8801712345678",
		"password": "secret1",
		"role":     "ngo",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec, env = s.do(http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"phone":    "+8801712345678",
		"password": "secret1",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	token := env.Data.(map[string]interface{})["token"].(string)

	rec, env = s.do(http.MethodGet, "/api/v1/auth/profile", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ngo", env.Data.(map[string]interface{})["role"])
	assert.NotContains(t, rec.Body.String(), "password")

	rec, _ = s.do(http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"phone":    "+8801712345678",
		"password": "wrong-one",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCreateMatchEndpoint(t *testing.T) {
	s := newTestServer(t)
	donor := testutil.CreateUser(t, s.db, models.RoleDonor)
	ngo := testutil.CreateUser(t, s.db, models.RoleNGO)
	donation := testutil.CreateDonation(t, s.db, donor.ID, models.DonationAvailable)
	request := testutil.CreateRequest(t, s.db, ngo.ID, models.RequestActive)
	volunteer, _ := testutil.CreateVolunteer(t, s.db)

	body := map[string]interface{}{
		"donation_id":       donation.ID,
		"request_id":        request.ID,
		"volunteer_user_id": volunteer.ID,
	}
	rec, _ := s.do(http.MethodPost, "/api/v1/matching/create", s.token(donor), body)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, env := s.do(http.MethodPost, "/api/v1/matching/create", s.token(ngo), body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	data := env.Data.(map[string]interface{})
	assert.Equal(t, "assigned", data["match"].(map[string]interface{})["status"])
	assert.Equal(t, "assigned", data["delivery"].(map[string]interface{})["status"])

	rec, env = s.do(http.MethodPost, "/api/v1/matching/create", s.token(ngo), body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.NotEmpty(t, env.Details)
}

func TestUnknownDeliveryIs404(t *testing.T) {
	s := newTestServer(t)
	volunteer, _ := testutil.CreateVolunteer(t, s.db)

	rec, _ := s.do(http.MethodGet, "/api/v1/deliveries/6f1c1f8e-3b7e-4a55-9d55-0b4c6f1d2a10", s.token(volunteer), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = s.do(http.MethodGet, "/api/v1/deliveries/not-a-uuid", s.token(volunteer), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChatFallsBackWithoutAgent(t *testing.T) {
	s := newTestServer(t)
	donor := testutil.CreateUser(t, s.db, models.RoleDonor)

	rec, env := s.do(http.MethodPost, "/api/v1/chat", s.token(donor), map[string]string{"message": "How do I donate rice?"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	data := env.Data.(map[string]interface{})
	assert.Equal(t, chat.SourceFallback, data["source"])
	assert.NotEmpty(t, data["session_id"])

	rec, _ = s.do(http.MethodDelete, "/api/v1/chat/"+data["session_id"].(string), s.token(donor), nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestVolunteerProfileUpsert(t *testing.T) {
	s := newTestServer(t)
	user := testutil.CreateUser(t, s.db, models.RoleVolunteer)
	body := map[string]interface{}{"vehicle_type": "car", "max_capacity_kg": 300}

	rec, _ := s.do(http.MethodPost, "/api/v1/volunteers", s.token(user), body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	body["vehicle_type"] = "truck"
	rec, env := s.do(http.MethodPost, "/api/v1/volunteers", s.token(user), body)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "truck", env.Data.(map[string]interface{})["vehicle_type"])

	body["vehicle_type"] = "rocket"
	rec, _ = s.do(http.MethodPost, "/api/v1/volunteers", s.token(user), body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = s.do(http.MethodGet, "/api/v1/volunteers/me", s.token(user), nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestShutdownWithoutStart(t *testing.T) {
	s := newTestServer(t)
	assert.NoError(t, s.server.Shutdown(context.Background()))
}
