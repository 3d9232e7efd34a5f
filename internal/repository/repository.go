// Package repository holds the entity accessors. Every accessor has the same
// shape (create, findOne, find, findById, findByIdAndUpdate, count,
// aggregate, save) and comes in two backends: the in-process document store
// and a gorm-backed SQL database.
package repository

import (
	"errors"
	"fmt"
	"time"

	"github.com/agroc/backend/internal/config"
	"github.com/agroc/backend/internal/models"
	"github.com/agroc/backend/internal/store"
	"github.com/agroc/backend/pkg/logger"
)

var (
	// ErrUnsupportedPipeline is returned by Aggregate for a stage or field
	// the accessor does not know.
	ErrUnsupportedPipeline = errors.New("unsupported aggregation pipeline")
	// ErrDuplicate is returned when a write would break a uniqueness rule.
	ErrDuplicate = errors.New("duplicate record")
)

const (
	BackendMemory = "memory"
	BackendSQL    = "sql"
)

// DefaultLimit applies when FindOptions.Limit is zero.
const DefaultLimit = 10

// Unlimited disables the find limit.
const Unlimited = -1

// FindOptions controls paging and reference population for Find.
type FindOptions struct {
	Skip     int
	Limit    int
	Populate bool
}

func (o FindOptions) limit() int {
	if o.Limit == 0 {
		return DefaultLimit
	}
	return o.Limit
}

// AggregateKind selects the pipeline's grouping stage.
type AggregateKind int

const (
	// AggregateAverage groups every matching record into one row.
	AggregateAverage AggregateKind = iota + 1
	// AggregateGroupCount groups matching records by field value.
	AggregateGroupCount
)

// Pipeline is a restricted aggregation: match, group, then optionally sort
// by count and limit.
type Pipeline[Q any] struct {
	Match    Q
	Kind     AggregateKind
	Field    string
	SortDesc bool
	Limit    int
}

// AggregateRow is one output row. Average pipelines yield a single row with
// an empty ID.
type AggregateRow struct {
	ID    string  `json:"_id"`
	Count int64   `json:"count"`
	Avg   float64 `json:"avg,omitempty"`
}

// resolve checks the pipeline against the accessor's field whitelists and
// returns the column the field maps to.
func (p Pipeline[Q]) resolve(averages, groups map[string]string) (string, error) {
	var fields map[string]string
	switch p.Kind {
	case AggregateAverage:
		fields = averages
	case AggregateGroupCount:
		fields = groups
	default:
		return "", fmt.Errorf("%w: stage %d", ErrUnsupportedPipeline, p.Kind)
	}
	column, ok := fields[p.Field]
	if !ok {
		return "", fmt.Errorf("%w: field %q", ErrUnsupportedPipeline, p.Field)
	}
	return column, nil
}

func groupRows(groups []store.Group, desc bool, limit int) []AggregateRow {
	top := groups
	if desc || limit > 0 {
		top = store.TopGroups(groups, desc, limit)
	}
	rows := make([]AggregateRow, 0, len(top))
	for _, g := range top {
		rows = append(rows, AggregateRow{ID: g.Key, Count: g.Count})
	}
	return rows
}

// UserQuery filters users. Zero fields are ignored.
type UserQuery struct {
	ID         uint
	Email      string
	ExcludeID  uint
	Role       string
	ActiveOnly bool
	Search     string // case-insensitive match on name or email
}

// PredictionQuery filters predictions.
type PredictionQuery struct {
	ID         uint
	UserID     uint
	Outcome    string
	HasDisease bool
}

// SolutionQuery filters solutions. Plant and Disease match exactly after
// normalization, the Contains variants match substrings.
type SolutionQuery struct {
	ID              uint
	Plant           string
	Disease         string
	PlantContains   string
	DiseaseContains string
	ActiveOnly      bool
}

// CommentQuery filters comments.
type CommentQuery struct {
	ID           uint
	SolutionID   uint
	UserID       uint
	ActiveOnly   bool
	ContentNot   *string
	RatingExists bool
}

// UserUpdate is a partial update. Nil fields are left untouched.
type UserUpdate struct {
	Name      *string
	Email     *string
	Password  *string
	Role      *string
	IsActive  *bool
	LastLogin *time.Time

	// AddPredictions is added to the stored prediction count.
	AddPredictions int
}

func (u UserUpdate) apply(m *models.User) {
	if u.Name != nil {
		m.Name = *u.Name
	}
	if u.Email != nil {
		m.Email = normalizeEmail(*u.Email)
	}
	if u.Password != nil {
		m.Password = *u.Password
	}
	if u.Role != nil {
		m.Role = *u.Role
	}
	if u.IsActive != nil {
		m.IsActive = *u.IsActive
	}
	if u.LastLogin != nil {
		t := *u.LastLogin
		m.LastLogin = &t
	}
	m.PredictionCount += u.AddPredictions
}

// PredictionUpdate is a partial update of a prediction.
type PredictionUpdate struct {
	UserFeedback *models.Feedback
}

func (u PredictionUpdate) apply(m *models.Prediction) {
	if u.UserFeedback != nil {
		f := *u.UserFeedback
		m.UserFeedback = &f
	}
}

// SolutionUpdate is a partial update of a solution. Nil slices are left
// untouched.
type SolutionUpdate struct {
	Title         *string
	Description   *string
	Severity      *string
	Symptoms      []string
	Treatment     []string
	Prevention    []string
	AverageRating *float64
	TotalRatings  *int
	IsActive      *bool
	LastUpdatedBy *uint
}

func (u SolutionUpdate) apply(m *models.Solution) {
	if u.Title != nil {
		m.Title = *u.Title
	}
	if u.Description != nil {
		m.Description = *u.Description
	}
	if u.Severity != nil {
		m.Severity = *u.Severity
	}
	if u.Symptoms != nil {
		m.Symptoms = append([]string(nil), u.Symptoms...)
	}
	if u.Treatment != nil {
		m.Treatment = append([]string(nil), u.Treatment...)
	}
	if u.Prevention != nil {
		m.Prevention = append([]string(nil), u.Prevention...)
	}
	if u.AverageRating != nil {
		m.AverageRating = *u.AverageRating
	}
	if u.TotalRatings != nil {
		m.TotalRatings = *u.TotalRatings
	}
	if u.IsActive != nil {
		m.IsActive = *u.IsActive
	}
	if u.LastUpdatedBy != nil {
		m.LastUpdatedByID = *u.LastUpdatedBy
	}
}

// CommentUpdate is a partial update of a comment.
type CommentUpdate struct {
	Content  *string
	Rating   *int
	IsActive *bool
}

func (u CommentUpdate) apply(m *models.Comment) {
	if u.Content != nil {
		m.Content = *u.Content
	}
	if u.Rating != nil {
		r := *u.Rating
		m.Rating = &r
	}
	if u.IsActive != nil {
		m.IsActive = *u.IsActive
	}
}

// UserRepository is the accessor for users.
type UserRepository interface {
	Create(user *models.User) error
	FindOne(q UserQuery) (*models.User, error)
	Find(q UserQuery, opts FindOptions) ([]models.User, error)
	FindByID(id uint) (*models.User, error)
	FindByIDAndUpdate(id uint, update UserUpdate) (*models.User, error)
	Count(q UserQuery) (int64, error)
	Aggregate(p Pipeline[UserQuery]) ([]AggregateRow, error)
	Save(user *models.User) error
	Delete(id uint) (*models.User, error)
}

// PredictionRepository is the accessor for predictions.
type PredictionRepository interface {
	Create(prediction *models.Prediction) error
	FindOne(q PredictionQuery) (*models.Prediction, error)
	Find(q PredictionQuery, opts FindOptions) ([]models.Prediction, error)
	FindByID(id uint) (*models.Prediction, error)
	FindByIDAndUpdate(id uint, update PredictionUpdate) (*models.Prediction, error)
	Count(q PredictionQuery) (int64, error)
	Aggregate(p Pipeline[PredictionQuery]) ([]AggregateRow, error)
	Save(prediction *models.Prediction) error
}

// SolutionRepository is the accessor for solutions.
type SolutionRepository interface {
	Create(solution *models.Solution) error
	FindOne(q SolutionQuery) (*models.Solution, error)
	Find(q SolutionQuery, opts FindOptions) ([]models.Solution, error)
	FindByID(id uint) (*models.Solution, error)
	FindByIDAndUpdate(id uint, update SolutionUpdate) (*models.Solution, error)
	Count(q SolutionQuery) (int64, error)
	Aggregate(p Pipeline[SolutionQuery]) ([]AggregateRow, error)
	Save(solution *models.Solution) error
}

// CommentRepository is the accessor for comments.
type CommentRepository interface {
	Create(comment *models.Comment) error
	FindOne(q CommentQuery) (*models.Comment, error)
	Find(q CommentQuery, opts FindOptions) ([]models.Comment, error)
	FindByID(id uint) (*models.Comment, error)
	FindByIDAndUpdate(id uint, update CommentUpdate) (*models.Comment, error)
	Count(q CommentQuery) (int64, error)
	Aggregate(p Pipeline[CommentQuery]) ([]AggregateRow, error)
	Save(comment *models.Comment) error
}

// Repositories bundles one accessor per entity over a single backend.
type Repositories struct {
	Backend     string
	Users       UserRepository
	Predictions PredictionRepository
	Solutions   SolutionRepository
	Comments    CommentRepository

	ping  func() error
	close func() error
}

// Ping reports whether the backend is reachable.
func (r *Repositories) Ping() error {
	if r.ping == nil {
		return nil
	}
	return r.ping()
}

// Close releases backend resources.
func (r *Repositories) Close() error {
	if r.close == nil {
		return nil
	}
	return r.close()
}

// Stats counts records per entity.
func (r *Repositories) Stats() (map[string]int64, error) {
	users, err := r.Users.Count(UserQuery{})
	if err != nil {
		return nil, err
	}
	predictions, err := r.Predictions.Count(PredictionQuery{})
	if err != nil {
		return nil, err
	}
	solutions, err := r.Solutions.Count(SolutionQuery{})
	if err != nil {
		return nil, err
	}
	comments, err := r.Comments.Count(CommentQuery{})
	if err != nil {
		return nil, err
	}
	return map[string]int64{
		"users":       users,
		"predictions": predictions,
		"solutions":   solutions,
		"comments":    comments,
	}, nil
}

// Open builds the repositories for the configured backend.
func Open(cfg *config.Config) (*Repositories, error) {
	switch cfg.Storage.Backend {
	case "", BackendMemory:
		logger.Infof("[Storage] Using in-memory document store")
		return NewMemory(store.New()), nil
	case BackendSQL:
		db, err := models.OpenDB(&cfg.Database, cfg.Log.Level)
		if err != nil {
			return nil, err
		}
		if err := models.AutoMigrate(db); err != nil {
			return nil, fmt.Errorf("failed to migrate database: %w", err)
		}
		logger.Infof("[Storage] Using SQL backend (%s)", cfg.Database.Driver)
		return NewSQL(db), nil
	default:
		return nil, fmt.Errorf("unsupported storage backend: %s", cfg.Storage.Backend)
	}
}
