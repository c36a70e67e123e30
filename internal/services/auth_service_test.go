package services

import (
	"context"
	"testing"
	"time"

	"example.com/jonoshongjog/services/relief/internal/auth"
	"example.com/jonoshongjog/services/relief/internal/models"
	"example.com/jonoshongjog/services/relief/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newAuthService(t *testing.T) (*AuthService, *fixture) {
	t.Helper()

	f := newFixture(t)
	svc := NewAuthService(Dependencies{DB: f.db, ReadOnlyDB: f.db, Clock: testutil.Clock()},
		auth.NewTokenIssuer("test-secret", time.Hour), bcrypt.MinCost)
	return svc, f
}

func TestRegisterAndLogin(t *testing.T) {
	svc, _ := newAuthService(t)
	ctx := context.Background()

	session, err := svc.Register(ctx, RegisterInput{
		Name:     "Rahima",
		Phone:    " +8801711000000 ",
		Password: "secret1",
		Role:     models.RoleNGO,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, session.Token)
	assert.Equal(t, "+8801711000000", session.User.Phone)

	claims, err := svc.ParseToken(session.Token)
	require.NoError(t, err)
	assert.Equal(t, session.User.ID, claims.UserID)
	assert.Equal(t, models.RoleNGO, claims.Role)

	_, err = svc.Login(ctx, "+8801711000000", "wrong-password")
	authErr := requireAs[*AuthError](t, err)
	assert.False(t, authErr.Forbidden)

	again, err := svc.Login(ctx, "+8801711000000", "secret1")
	require.NoError(t, err)
	assert.Equal(t, session.User.ID, again.User.ID)
}

func TestRegisterRejectsAdminAndDuplicates(t *testing.T) {
	svc, _ := newAuthService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, RegisterInput{Name: "X", Phone: "+8801", Password: "secret1", Role: models.RoleAdmin})
	v := requireAs[*ValidationError](t, err)
	assert.Equal(t, "Invalid role", v.Message)

	in := RegisterInput{Name: "Karim", Phone: "+8801811000000", Password: "secret1", Role: models.RoleDonor}
	_, err = svc.Register(ctx, in)
	require.NoError(t, err)
	_, err = svc.Register(ctx, in)
	requireAs[*ConflictError](t, err)
}

func TestLoginDisabledAccount(t *testing.T) {
	svc, f := newAuthService(t)
	ctx := context.Background()

	session, err := svc.Register(ctx, RegisterInput{Name: "V", Phone: "+8801911000000", Password: "secret1", Role: models.RoleVolunteer})
	require.NoError(t, err)
	require.NoError(t, f.db.Model(&models.User{}).Where("id = ?", session.User.ID).Update("is_active", false).Error)

	_, err = svc.Login(ctx, "+8801911000000", "secret1")
	authErr := requireAs[*AuthError](t, err)
	assert.True(t, authErr.Forbidden)
}

func TestChangePassword(t *testing.T) {
	svc, _ := newAuthService(t)
	ctx := context.Background()

	session, err := svc.Register(ctx, RegisterInput{Name: "D", Phone: "+8801611000000", Password: "secret1", Role: models.RoleDonor})
	require.NoError(t, err)

	requireAs[*AuthError](t, svc.ChangePassword(ctx, session.User.ID, "nope", "secret2"))
	requireAs[*ValidationError](t, svc.ChangePassword(ctx, session.User.ID, "secret1", "123"))
	require.NoError(t, svc.ChangePassword(ctx, session.User.ID, "secret1", "secret2"))

	_, err = svc.Login(ctx, "+8801611000000", "secret2")
	require.NoError(t, err)
}

func TestCreateAdmin(t *testing.T) {
	svc, _ := newAuthService(t)

	user, err := svc.CreateAdmin(context.Background(), RegisterInput{Name: "Ops", Phone: "+8801511000000", Password: "secret1"})
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, user.Role)
}
