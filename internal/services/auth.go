package services

import (
	"errors"
	"strings"
	"time"

	"github.com/agroc/backend/internal/config"
	"github.com/agroc/backend/internal/models"
	"github.com/agroc/backend/internal/repository"
	"github.com/agroc/backend/internal/utils"
	"github.com/agroc/backend/pkg/logger"
	"github.com/agroc/backend/pkg/response"
)

type AuthService struct {
	users     repository.UserRepository
	jwtConfig *config.JWTConfig
}

func NewAuthService(repos *repository.Repositories, jwtCfg *config.JWTConfig) *AuthService {
	return &AuthService{
		users:     repos.Users,
		jwtConfig: jwtCfg,
	}
}

type RegisterRequest struct {
	Name     string `json:"name" binding:"required,min=2"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type UpdateProfileRequest struct {
	Name  *string `json:"name" binding:"omitempty,min=2"`
	Email *string `json:"email" binding:"omitempty,email"`
}

// AuthResponse carries a fresh token and the authenticated user.
type AuthResponse struct {
	Token    string       `json:"token"`
	User     *models.User `json:"user"`
	ExpireAt time.Time    `json:"expireAt"`
}

// Register creates a regular user account and signs them in.
func (s *AuthService) Register(req *RegisterRequest) (*AuthResponse, error) {
	existing, err := s.users.FindOne(repository.UserQuery{Email: req.Email})
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, response.NewBadRequest("User already exists")
	}

	hashedPassword, err := utils.HashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		Name:     strings.TrimSpace(req.Name),
		Email:    req.Email,
		Password: hashedPassword,
		Role:     models.RoleUser,
	}
	if err := s.users.Create(user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, response.NewBadRequest("User already exists")
		}
		return nil, err
	}

	logger.Infof("[Auth] Registered user %d (%s)", user.ID, user.Email)
	return s.issue(user)
}

// Login checks credentials and records the login time.
func (s *AuthService) Login(req *LoginRequest) (*AuthResponse, error) {
	user, err := s.users.FindOne(repository.UserQuery{Email: req.Email})
	if err != nil {
		return nil, err
	}
	if user == nil || !utils.CheckPassword(req.Password, user.Password) {
		return nil, response.NewUnauthorized("Invalid credentials")
	}
	if !user.IsActive {
		return nil, response.NewUnauthorized("Account is deactivated")
	}

	now := time.Now()
	updated, err := s.users.FindByIDAndUpdate(user.ID, repository.UserUpdate{LastLogin: &now})
	if err != nil {
		return nil, err
	}
	if updated != nil {
		user = updated
	}

	return s.issue(user)
}

func (s *AuthService) issue(user *models.User) (*AuthResponse, error) {
	token, err := utils.GenerateToken(user.ID, user.Email, user.Role, s.jwtConfig.ExpireHour)
	if err != nil {
		return nil, err
	}
	return &AuthResponse{
		Token:    token,
		User:     user,
		ExpireAt: time.Now().Add(time.Duration(s.jwtConfig.ExpireHour) * time.Hour),
	}, nil
}

// GetUserByID retrieves a user by ID
func (s *AuthService) GetUserByID(id uint) (*models.User, error) {
	user, err := s.users.FindByID(id)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, response.NewNotFound("User not found")
	}
	return user, nil
}

// UpdateProfile lets a user change their own name and email.
func (s *AuthService) UpdateProfile(id uint, req *UpdateProfileRequest) (*models.User, error) {
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
	return user, nil
}

// CreateAdminIfNotExists creates the configured admin account when no admin
// exists yet.
func (s *AuthService) CreateAdminIfNotExists(cfg *config.AdminConfig) error {
	count, err := s.users.Count(repository.UserQuery{Role: models.RoleAdmin})
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	hashedPassword, err := utils.HashPassword(cfg.Password)
	if err != nil {
		return err
	}

	admin := &models.User{
		Name:     cfg.Name,
		Email:    cfg.Email,
		Password: hashedPassword,
		Role:     models.RoleAdmin,
	}
	if err := s.users.Create(admin); err != nil {
		return err
	}

	logger.Infof("[Auth] Created default admin %s", admin.Email)
	return nil
}
