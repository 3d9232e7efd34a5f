package services

import (
	"errors"
	"testing"

	"github.com/agroc/backend/internal/models"
	"github.com/agroc/backend/internal/repository"
	"github.com/agroc/backend/internal/store"
	"github.com/agroc/backend/pkg/response"
	"github.com/stretchr/testify/require"
)

func newTestRepos() *repository.Repositories {
	return repository.NewMemory(store.New())
}

// addUser inserts a user without hashing a password.
func addUser(t *testing.T, repos *repository.Repositories, name, email, role string) *models.User {
	t.Helper()
	u := &models.User{Name: name, Email: email, Password: "x", Role: role}
	require.NoError(t, repos.Users.Create(u))
	return u
}

func addSolution(t *testing.T, repos *repository.Repositories, plant, disease string) *models.Solution {
	t.Helper()
	s := &models.Solution{
		Plant:       plant,
		Disease:     disease,
		Title:       plant + " " + disease,
		Description: "treatment for " + disease,
		Treatment:   []string{"remove infected leaves"},
	}
	require.NoError(t, repos.Solutions.Create(s))
	return s
}

// requireAppError asserts err is an AppError with the given status.
func requireAppError(t *testing.T, err error, status int) *response.AppError {
	t.Helper()
	var appErr *response.AppError
	require.True(t, errors.As(err, &appErr), "expected AppError, got %v", err)
	require.Equal(t, status, appErr.HTTPStatus)
	return appErr
}

func intPtr(v int) *int       { return &v }
func strPtr(v string) *string { return &v }
func boolPtr(v bool) *bool    { return &v }
