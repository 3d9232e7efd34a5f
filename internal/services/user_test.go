package services

import (
	"net/http"
	"testing"

	"github.com/agroc/backend/internal/models"
	"github.com/agroc/backend/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActor_CanAccess(t *testing.T) {
	tests := []struct {
		name   string
		actor  Actor
		target uint
		want   bool
	}{
		{"self", Actor{ID: 1, Role: models.RoleUser}, 1, true},
		{"other user", Actor{ID: 1, Role: models.RoleUser}, 2, false},
		{"admin", Actor{ID: 1, Role: models.RoleAdmin}, 2, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.actor.CanAccess(tt.target); got != tt.want {
				t.Errorf("CanAccess(%d) = %v, expected %v", tt.target, got, tt.want)
			}
		})
	}
}

func TestUserService_ListSearch(t *testing.T) {
	repos := newTestRepos()
	svc := NewUserService(repos)
	addUser(t, repos, "Alice Smith", "alice@example.com", models.RoleUser)
	addUser(t, repos, "Bob", "bob@farm.org", models.RoleUser)
	addUser(t, repos, "Carol", "carol@example.com", models.RoleAdmin)

	resp, err := svc.List(&UserListRequest{Search: "EXAMPLE"})
	require.NoError(t, err)
	assert.Len(t, resp.Users, 2)
	assert.Equal(t, int64(2), resp.Pagination.Total)

	resp, err = svc.List(&UserListRequest{Search: "smith"})
	require.NoError(t, err)
	require.Len(t, resp.Users, 1)
	assert.Equal(t, "alice@example.com", resp.Users[0].Email)

	resp, err = svc.List(&UserListRequest{PageRequest: PageRequest{Limit: 2}})
	require.NoError(t, err)
	assert.Len(t, resp.Users, 2)
	assert.Equal(t, 2, resp.Pagination.Pages)
}

func TestUserService_Get(t *testing.T) {
	repos := newTestRepos()
	svc := NewUserService(repos)
	alice := addUser(t, repos, "Alice", "alice@example.com", models.RoleUser)
	bob := addUser(t, repos, "Bob", "bob@example.com", models.RoleUser)
	admin := addUser(t, repos, "Admin", "admin@example.com", models.RoleAdmin)

	got, err := svc.Get(Actor{ID: alice.ID, Role: models.RoleUser}, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, "Alice", got.Name)

	_, err = svc.Get(Actor{ID: alice.ID, Role: models.RoleUser}, bob.ID)
	requireAppError(t, err, http.StatusForbidden)

	_, err = svc.Get(Actor{ID: admin.ID, Role: models.RoleAdmin}, bob.ID)
	require.NoError(t, err)

	_, err = svc.Get(Actor{ID: admin.ID, Role: models.RoleAdmin}, 9999)
	requireAppError(t, err, http.StatusNotFound)
}

func TestUserService_Update(t *testing.T) {
	repos := newTestRepos()
	svc := NewUserService(repos)
	alice := addUser(t, repos, "Alice", "alice@example.com", models.RoleUser)
	addUser(t, repos, "Bob", "bob@example.com", models.RoleUser)
	admin := addUser(t, repos, "Admin", "admin@example.com", models.RoleAdmin)

	self := Actor{ID: alice.ID, Role: models.RoleUser}

	// Role and activation changes from a regular user are ignored.
	updated, err := svc.Update(self, alice.ID, &UpdateUserRequest{
		Name:     strPtr("Alice A"),
		Role:     strPtr(models.RoleAdmin),
		IsActive: boolPtr(false),
	})
	require.NoError(t, err)
	assert.Equal(t, "Alice A", updated.Name)
	assert.Equal(t, models.RoleUser, updated.Role)
	assert.True(t, updated.IsActive)

	_, err = svc.Update(self, alice.ID, &UpdateUserRequest{Email: strPtr("bob@example.com")})
	appErr := requireAppError(t, err, http.StatusBadRequest)
	assert.Equal(t, "Email already in use", appErr.Message)

	_, err = svc.Update(self, admin.ID, &UpdateUserRequest{Name: strPtr("Nope")})
	requireAppError(t, err, http.StatusForbidden)

	updated, err = svc.Update(Actor{ID: admin.ID, Role: models.RoleAdmin}, alice.ID, &UpdateUserRequest{
		Role:     strPtr(models.RoleAdmin),
		IsActive: boolPtr(false),
	})
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, updated.Role)
	assert.False(t, updated.IsActive)
}

func TestUserService_Delete(t *testing.T) {
	repos := newTestRepos()
	svc := NewUserService(repos)
	alice := addUser(t, repos, "Alice", "alice@example.com", models.RoleUser)
	admin := addUser(t, repos, "Admin", "admin@example.com", models.RoleAdmin)
	adminActor := Actor{ID: admin.ID, Role: models.RoleAdmin}

	err := svc.Delete(Actor{ID: alice.ID, Role: models.RoleUser}, admin.ID)
	requireAppError(t, err, http.StatusForbidden)

	err = svc.Delete(adminActor, admin.ID)
	appErr := requireAppError(t, err, http.StatusBadRequest)
	assert.Equal(t, "Cannot delete your own account", appErr.Message)

	require.NoError(t, svc.Delete(adminActor, alice.ID))

	err = svc.Delete(adminActor, alice.ID)
	requireAppError(t, err, http.StatusNotFound)
}

func TestUserService_Stats(t *testing.T) {
	repos := newTestRepos()
	svc := NewUserService(repos)
	alice := addUser(t, repos, "Alice", "alice@example.com", models.RoleUser)
	bob := addUser(t, repos, "Bob", "bob@example.com", models.RoleUser)
	addUser(t, repos, "Admin", "admin@example.com", models.RoleAdmin)

	_, err := repos.Users.FindByIDAndUpdate(alice.ID, repository.UserUpdate{AddPredictions: 3})
	require.NoError(t, err)
	_, err = repos.Users.FindByIDAndUpdate(bob.ID, repository.UserUpdate{IsActive: boolPtr(false)})
	require.NoError(t, err)

	stats, err := svc.Stats()
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.TotalUsers)
	assert.Equal(t, int64(2), stats.ActiveUsers)
	assert.Equal(t, int64(1), stats.AdminUsers)
	assert.Equal(t, int64(2), stats.RegularUsers)
	assert.InDelta(t, 1.0, stats.AveragePredictions, 1e-9)
	require.Len(t, stats.RecentUsers, 3)
	assert.Equal(t, "admin@example.com", stats.RecentUsers[0].Email)
}
