package services

import (
	"net/http"
	"testing"

	"github.com/agroc/backend/internal/config"
	"github.com/agroc/backend/internal/models"
	"github.com/agroc/backend/internal/repository"
	"github.com/agroc/backend/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAuthService(t *testing.T) (*AuthService, *repository.Repositories) {
	t.Helper()
	utils.SetJWTSecret("test-secret")
	repos := newTestRepos()
	return NewAuthService(repos, &config.JWTConfig{Secret: "test-secret", ExpireHour: 168}), repos
}

func TestAuthService_RegisterAndLogin(t *testing.T) {
	svc, repos := newTestAuthService(t)

	reg, err := svc.Register(&RegisterRequest{Name: " Alice ", Email: "Alice@Example.com", Password: "secret1"})
	require.NoError(t, err)
	assert.NotEmpty(t, reg.Token)
	assert.Equal(t, "Alice", reg.User.Name)
	assert.Equal(t, "alice@example.com", reg.User.Email)
	assert.Equal(t, models.RoleUser, reg.User.Role)
	assert.True(t, reg.User.IsActive)
	assert.NotEqual(t, "secret1", reg.User.Password)

	claims, err := utils.ParseToken(reg.Token)
	require.NoError(t, err)
	assert.Equal(t, reg.User.ID, claims.UserID)
	assert.Equal(t, "alice@example.com", claims.Email)

	login, err := svc.Login(&LoginRequest{Email: "alice@example.com", Password: "secret1"})
	require.NoError(t, err)
	assert.NotEmpty(t, login.Token)
	require.NotNil(t, login.User.LastLogin)

	stored, err := repos.Users.FindByID(reg.User.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.LastLogin)
}

func TestAuthService_RegisterDuplicate(t *testing.T) {
	svc, repos := newTestAuthService(t)
	addUser(t, repos, "Alice", "alice@example.com", models.RoleUser)

	_, err := svc.Register(&RegisterRequest{Name: "Other", Email: "ALICE@example.com", Password: "secret1"})
	appErr := requireAppError(t, err, http.StatusBadRequest)
	assert.Equal(t, "User already exists", appErr.Message)
}

func TestAuthService_LoginFailures(t *testing.T) {
	svc, repos := newTestAuthService(t)

	_, err := svc.Register(&RegisterRequest{Name: "Alice", Email: "alice@example.com", Password: "secret1"})
	require.NoError(t, err)

	_, err = svc.Login(&LoginRequest{Email: "alice@example.com", Password: "wrong"})
	requireAppError(t, err, http.StatusUnauthorized)

	_, err = svc.Login(&LoginRequest{Email: "nobody@example.com", Password: "secret1"})
	requireAppError(t, err, http.StatusUnauthorized)

	user, err := repos.Users.FindOne(repository.UserQuery{Email: "alice@example.com"})
	require.NoError(t, err)
	_, err = repos.Users.FindByIDAndUpdate(user.ID, repository.UserUpdate{IsActive: boolPtr(false)})
	require.NoError(t, err)

	_, err = svc.Login(&LoginRequest{Email: "alice@example.com", Password: "secret1"})
	appErr := requireAppError(t, err, http.StatusUnauthorized)
	assert.Equal(t, "Account is deactivated", appErr.Message)
}

func TestAuthService_Profile(t *testing.T) {
	svc, repos := newTestAuthService(t)
	alice := addUser(t, repos, "Alice", "alice@example.com", models.RoleUser)
	addUser(t, repos, "Bob", "bob@example.com", models.RoleUser)

	got, err := svc.GetUserByID(alice.ID)
	require.NoError(t, err)
	assert.Equal(t, "Alice", got.Name)

	_, err = svc.GetUserByID(9999)
	requireAppError(t, err, http.StatusNotFound)

	_, err = svc.UpdateProfile(alice.ID, &UpdateProfileRequest{Email: strPtr("bob@example.com")})
	requireAppError(t, err, http.StatusBadRequest)

	updated, err := svc.UpdateProfile(alice.ID, &UpdateProfileRequest{
		Name:  strPtr("Alice B"),
		Email: strPtr("alice.b@example.com"),
	})
	require.NoError(t, err)
	assert.Equal(t, "Alice B", updated.Name)
	assert.Equal(t, "alice.b@example.com", updated.Email)

	// Keeping one's own email is not a conflict.
	_, err = svc.UpdateProfile(alice.ID, &UpdateProfileRequest{Email: strPtr("alice.b@example.com")})
	require.NoError(t, err)
}

func TestAuthService_CreateAdminIfNotExists(t *testing.T) {
	svc, repos := newTestAuthService(t)
	cfg := &config.AdminConfig{Name: "Admin", Email: "admin@agroc.local", Password: "admin123"}

	require.NoError(t, svc.CreateAdminIfNotExists(cfg))
	require.NoError(t, svc.CreateAdminIfNotExists(cfg))

	count, err := repos.Users.Count(repository.UserQuery{Role: models.RoleAdmin})
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	login, err := svc.Login(&LoginRequest{Email: "admin@agroc.local", Password: "admin123"})
	require.NoError(t, err)
	assert.True(t, login.User.IsAdmin())
}
