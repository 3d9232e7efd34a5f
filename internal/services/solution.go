package services

import (
	"errors"

	"github.com/agroc/backend/internal/models"
	"github.com/agroc/backend/internal/repository"
	"github.com/agroc/backend/pkg/logger"
	"github.com/agroc/backend/pkg/response"
)

const statsTopLimit = 5

type SolutionService struct {
	solutions repository.SolutionRepository
	comments  repository.CommentRepository
}

func NewSolutionService(repos *repository.Repositories) *SolutionService {
	return &SolutionService{
		solutions: repos.Solutions,
		comments:  repos.Comments,
	}
}

type SolutionListRequest struct {
	PageRequest
	Plant   string `form:"plant"`
	Disease string `form:"disease"`
}

type SolutionListResponse struct {
	Solutions  []models.Solution `json:"solutions"`
	Pagination Pagination        `json:"pagination"`
}

// List returns active solutions, best rated first.
func (s *SolutionService) List(req *SolutionListRequest) (*SolutionListResponse, error) {
	query := repository.SolutionQuery{
		PlantContains:   req.Plant,
		DiseaseContains: req.Disease,
		ActiveOnly:      true,
	}

	solutions, err := s.solutions.Find(query, req.findOptions(true))
	if err != nil {
		return nil, err
	}
	total, err := s.solutions.Count(query)
	if err != nil {
		return nil, err
	}

	return &SolutionListResponse{Solutions: solutions, Pagination: req.pagination(total)}, nil
}

// GetByPlantDisease looks up the active solution for a diagnosis.
func (s *SolutionService) GetByPlantDisease(plant, disease string) (*models.Solution, error) {
	solution, err := s.solutions.FindOne(repository.SolutionQuery{
		Plant:      plant,
		Disease:    disease,
		ActiveOnly: true,
	})
	if err != nil {
		return nil, err
	}
	if solution == nil {
		return nil, response.NewNotFound("Solution not found")
	}
	return solution, nil
}

type CommentListResponse struct {
	Comments   []models.Comment `json:"comments"`
	Pagination Pagination       `json:"pagination"`
}

var emptyContent = ""

// ListComments returns the written comments of a solution, newest first.
// Rating-only comments have no content and are left out.
func (s *SolutionService) ListComments(solutionID uint, req *PageRequest) (*CommentListResponse, error) {
	// A zero id would match every solution.
	if solutionID == 0 {
		return &CommentListResponse{Comments: []models.Comment{}, Pagination: req.pagination(0)}, nil
	}

	query := repository.CommentQuery{
		SolutionID: solutionID,
		ActiveOnly: true,
		ContentNot: &emptyContent,
	}

	comments, err := s.comments.Find(query, req.findOptions(true))
	if err != nil {
		return nil, err
	}
	total, err := s.comments.Count(query)
	if err != nil {
		return nil, err
	}

	return &CommentListResponse{Comments: comments, Pagination: req.pagination(total)}, nil
}

type SolutionStats struct {
	TotalSolutions int64                     `json:"totalSolutions"`
	TotalComments  int64                     `json:"totalComments"`
	TotalRatings   int64                     `json:"totalRatings"`
	AverageRating  float64                   `json:"averageRating"`
	TopPlants      []repository.AggregateRow `json:"topPlants"`
	TopDiseases    []repository.AggregateRow `json:"topDiseases"`
}

func (s *SolutionService) Stats() (*SolutionStats, error) {
	var (
		stats SolutionStats
		err   error
	)

	if stats.TotalSolutions, err = s.solutions.Count(repository.SolutionQuery{ActiveOnly: true}); err != nil {
		return nil, err
	}
	if stats.TotalComments, err = s.comments.Count(repository.CommentQuery{ActiveOnly: true}); err != nil {
		return nil, err
	}
	if stats.TotalRatings, err = s.comments.Count(repository.CommentQuery{RatingExists: true}); err != nil {
		return nil, err
	}

	stats.AverageRating, err = averageOf(s.comments.Aggregate(repository.Pipeline[repository.CommentQuery]{
		Match: repository.CommentQuery{RatingExists: true},
		Kind:  repository.AggregateAverage,
		Field: "rating",
	}))
	if err != nil {
		return nil, err
	}

	if stats.TopPlants, err = s.topGroups("plant"); err != nil {
		return nil, err
	}
	if stats.TopDiseases, err = s.topGroups("disease"); err != nil {
		return nil, err
	}
	return &stats, nil
}

func (s *SolutionService) topGroups(field string) ([]repository.AggregateRow, error) {
	return s.solutions.Aggregate(repository.Pipeline[repository.SolutionQuery]{
		Match:    repository.SolutionQuery{ActiveOnly: true},
		Kind:     repository.AggregateGroupCount,
		Field:    field,
		SortDesc: true,
		Limit:    statsTopLimit,
	})
}

// SeedIfEmpty loads the bundled treatment records into an empty solution
// table. Returns the number of records created.
func (s *SolutionService) SeedIfEmpty(createdBy uint) (int, error) {
	count, err := s.solutions.Count(repository.SolutionQuery{})
	if err != nil {
		return 0, err
	}
	if count > 0 {
		return 0, nil
	}

	seeds, err := models.SeedSolutions()
	if err != nil {
		return 0, err
	}

	created := 0
	for i := range seeds {
		seeds[i].CreatedByID = createdBy
		if err := s.solutions.Create(&seeds[i]); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				continue
			}
			return created, err
		}
		created++
	}

	logger.Infof("[Seed] Created %d solutions", created)
	return created, nil
}
