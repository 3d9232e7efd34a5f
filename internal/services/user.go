package services

import (
	"errors"
	"strings"
	"time"

	"github.com/agroc/backend/internal/models"
	"github.com/agroc/backend/internal/repository"
	"github.com/agroc/backend/pkg/logger"
	"github.com/agroc/backend/pkg/response"
)

const recentUsersLimit = 5

// Actor is the authenticated caller of a user operation.
type Actor struct {
	ID   uint
	Role string
}

func (a Actor) IsAdmin() bool {
	return a.Role == models.RoleAdmin
}

// CanAccess reports whether the actor may read or change userID's data.
func (a Actor) CanAccess(userID uint) bool {
	return a.IsAdmin() || a.ID == userID
}

type UserService struct {
	users repository.UserRepository
}

func NewUserService(repos *repository.Repositories) *UserService {
	return &UserService{users: repos.Users}
}

type UserListRequest struct {
	PageRequest
	Search string `form:"search"`
}

type UserListResponse struct {
	Users      []models.User `json:"users"`
	Pagination Pagination    `json:"pagination"`
}

func (s *UserService) List(req *UserListRequest) (*UserListResponse, error) {
	query := repository.UserQuery{Search: strings.TrimSpace(req.Search)}

	users, err := s.users.Find(query, req.findOptions(false))
	if err != nil {
		return nil, err
	}
	total, err := s.users.Count(query)
	if err != nil {
		return nil, err
	}

	return &UserListResponse{Users: users, Pagination: req.pagination(total)}, nil
}

func (s *UserService) Get(actor Actor, id uint) (*models.User, error) {
	if !actor.CanAccess(id) {
		return nil, response.NewForbidden("Access denied")
	}
	user, err := s.users.FindByID(id)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, response.NewNotFound("User not found")
	}
	return user, nil
}

type UpdateUserRequest struct {
	Name     *string `json:"name" binding:"omitempty,min=2"`
	Email    *string `json:"email" binding:"omitempty,email"`
	Role     *string `json:"role" binding:"omitempty,oneof=user admin"`
	IsActive *bool   `json:"isActive"`
}

// Update changes a user's profile. Role and activation are admin only.
func (s *UserService) Update(actor Actor, id uint, req *UpdateUserRequest) (*models.User, error) {
	if !actor.CanAccess(id) {
		return nil, response.NewForbidden("Access denied")
	}

	update := repository.UserUpdate{}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		update.Name = &name
	}
	if req.Email != nil {
		taken, err := s.users.FindOne(repository.UserQuery{Email: *req.Email, ExcludeID: id})
		if err != nil {
			return nil, err
		}
		if taken != nil {
			return nil, response.NewBadRequest("Email already in use")
		}
		update.Email = req.Email
	}
	if actor.IsAdmin() {
		update.Role = req.Role
		update.IsActive = req.IsActive
	}

	user, err := s.users.FindByIDAndUpdate(id, update)
	if errors.Is(err, repository.ErrDuplicate) {
		return nil, response.NewBadRequest("Email already in use")
	}
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, response.NewNotFound("User not found")
	}

	logger.Infof("[User] User %d updated by %d", id, actor.ID)
	return user, nil
}

// Delete removes a user. Admins cannot delete themselves.
func (s *UserService) Delete(actor Actor, id uint) error {
	if !actor.IsAdmin() {
		return response.NewForbidden("Access denied")
	}
	if actor.ID == id {
		return response.NewBadRequest("Cannot delete your own account")
	}

	user, err := s.users.Delete(id)
	if err != nil {
		return err
	}
	if user == nil {
		return response.NewNotFound("User not found")
	}

	logger.Infof("[User] User %d (%s) deleted by %d", user.ID, user.Email, actor.ID)
	return nil
}

type RecentUser struct {
	ID        uint      `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
}

type UserStats struct {
	TotalUsers         int64        `json:"totalUsers"`
	ActiveUsers        int64        `json:"activeUsers"`
	AdminUsers         int64        `json:"adminUsers"`
	RegularUsers       int64        `json:"regularUsers"`
	AveragePredictions float64      `json:"averagePredictions"`
	RecentUsers        []RecentUser `json:"recentUsers"`
}

func (s *UserService) Stats() (*UserStats, error) {
	var (
		stats UserStats
		err   error
	)

	if stats.TotalUsers, err = s.users.Count(repository.UserQuery{}); err != nil {
		return nil, err
	}
	if stats.ActiveUsers, err = s.users.Count(repository.UserQuery{ActiveOnly: true}); err != nil {
		return nil, err
	}
	if stats.AdminUsers, err = s.users.Count(repository.UserQuery{Role: models.RoleAdmin}); err != nil {
		return nil, err
	}
	if stats.RegularUsers, err = s.users.Count(repository.UserQuery{Role: models.RoleUser}); err != nil {
		return nil, err
	}

	stats.AveragePredictions, err = averageOf(s.users.Aggregate(repository.Pipeline[repository.UserQuery]{
		Kind:  repository.AggregateAverage,
		Field: "predictionCount",
	}))
	if err != nil {
		return nil, err
	}

	recent, err := s.users.Find(repository.UserQuery{}, repository.FindOptions{Limit: recentUsersLimit})
	if err != nil {
		return nil, err
	}
	stats.RecentUsers = make([]RecentUser, 0, len(recent))
	for _, u := range recent {
		stats.RecentUsers = append(stats.RecentUsers, RecentUser{
			ID:        u.ID,
			Name:      u.Name,
			Email:     u.Email,
			CreatedAt: u.CreatedAt,
		})
	}
	return &stats, nil
}
