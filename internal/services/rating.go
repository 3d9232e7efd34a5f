package services

import (
	"context"
	"errors"
	"math"
	"sync"

	"github.com/agroc/backend/internal/metrics"
	"github.com/agroc/backend/internal/models"
	"github.com/agroc/backend/internal/repository"
	"github.com/agroc/backend/pkg/logger"
	"github.com/agroc/backend/pkg/response"
)

// DefaultCommentRating is stored on a first comment that arrives without a
// rating. It is counted like any other rating.
const DefaultCommentRating = 3

// ratingDriftTolerance is the largest difference between the cached average
// and the recomputed one that reconciliation ignores.
const ratingDriftTolerance = 1e-9

// RatingService keeps each solution's averageRating and totalRatings in step
// with the ratings held by its comments. Every mutation runs under one lock,
// so concurrent raters never lose an update.
type RatingService struct {
	solutions repository.SolutionRepository
	comments  repository.CommentRepository
	users     repository.UserRepository

	mu sync.Mutex
}

func NewRatingService(repos *repository.Repositories) *RatingService {
	return &RatingService{
		solutions: repos.Solutions,
		comments:  repos.Comments,
		users:     repos.Users,
	}
}

// RatingResult is the solution's rating state after an operation.
type RatingResult struct {
	AverageRating float64 `json:"averageRating"`
	TotalRatings  int     `json:"totalRatings"`
}

// ReactionResult is returned by the like and dislike toggles.
type ReactionResult struct {
	Active   bool `json:"active"`
	Likes    int  `json:"likes"`
	Dislikes int  `json:"dislikes"`
}

func (s *RatingService) loadSolution(id uint) (*models.Solution, error) {
	solution, err := s.solutions.FindByID(id)
	if err != nil {
		return nil, err
	}
	if solution == nil {
		return nil, response.NewNotFound("Solution not found")
	}
	return solution, nil
}

// Rate records userID's rating of a solution. A user's first rating creates
// an empty comment to hold it; later ratings replace it without changing
// the count.
func (s *RatingService) Rate(solutionID, userID uint, rating int) (*RatingResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	solution, err := s.loadSolution(solutionID)
	if err != nil {
		return nil, err
	}

	existing, err := s.comments.FindOne(repository.CommentQuery{SolutionID: solutionID, UserID: userID})
	if err != nil {
		return nil, err
	}

	if existing != nil {
		if existing.Rating != nil {
			solution.ChangeRating(*existing.Rating, rating)
		} else {
			solution.AddRating(rating)
		}
		existing.Rating = &rating
		if err := s.comments.Save(existing); err != nil {
			return nil, err
		}
	} else {
		comment := &models.Comment{
			SolutionID: solutionID,
			UserID:     userID,
			Rating:     &rating,
		}
		if err := s.createComment(comment); err != nil {
			return nil, err
		}
		solution.AddRating(rating)
	}

	if err := s.solutions.Save(solution); err != nil {
		return nil, err
	}

	metrics.RecordRatingAction("rate")
	logger.Infof("[Rating] User %d rated solution %d with %d (avg=%.3f, total=%d)",
		userID, solutionID, rating, solution.AverageRating, solution.TotalRatings)

	return &RatingResult{AverageRating: solution.AverageRating, TotalRatings: solution.TotalRatings}, nil
}

// Comment creates or edits userID's comment on a solution. A supplied rating
// is folded into the solution's average; a brand new comment without one
// gets DefaultCommentRating.
func (s *RatingService) Comment(solutionID, userID uint, content string, rating *int) (*models.Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	solution, err := s.loadSolution(solutionID)
	if err != nil {
		return nil, err
	}

	comment, err := s.comments.FindOne(repository.CommentQuery{SolutionID: solutionID, UserID: userID})
	if err != nil {
		return nil, err
	}

	ratingChanged := false
	if comment != nil {
		comment.Content = content
		if rating != nil {
			if comment.Rating != nil {
				solution.ChangeRating(*comment.Rating, *rating)
			} else {
				solution.AddRating(*rating)
			}
			r := *rating
			comment.Rating = &r
			ratingChanged = true
		}
		if err := s.comments.Save(comment); err != nil {
			return nil, err
		}
	} else {
		r := DefaultCommentRating
		if rating != nil {
			r = *rating
		}
		comment = &models.Comment{
			SolutionID: solutionID,
			UserID:     userID,
			Content:    content,
			Rating:     &r,
		}
		if err := s.createComment(comment); err != nil {
			return nil, err
		}
		solution.AddRating(r)
		ratingChanged = true
	}

	if ratingChanged {
		if err := s.solutions.Save(solution); err != nil {
			return nil, err
		}
	}

	if user, err := s.users.FindByID(userID); err == nil && user != nil {
		comment.User = user.Ref(false)
	}

	metrics.RecordRatingAction("comment")
	logger.Infof("[Rating] User %d commented on solution %d", userID, solutionID)
	return comment, nil
}

func (s *RatingService) createComment(comment *models.Comment) error {
	err := s.comments.Create(comment)
	if errors.Is(err, repository.ErrDuplicate) {
		return response.NewConflict("Comment already exists")
	}
	return err
}

// ToggleLike flips userID's like on a comment of the given solution.
func (s *RatingService) ToggleLike(solutionID, commentID, userID uint) (*ReactionResult, error) {
	return s.react(solutionID, commentID, "like", func(c *models.Comment) bool {
		return c.ToggleLike(userID)
	})
}

// ToggleDislike flips userID's dislike on a comment of the given solution.
func (s *RatingService) ToggleDislike(solutionID, commentID, userID uint) (*ReactionResult, error) {
	return s.react(solutionID, commentID, "dislike", func(c *models.Comment) bool {
		return c.ToggleDislike(userID)
	})
}

func (s *RatingService) react(solutionID, commentID uint, action string, toggle func(*models.Comment) bool) (*ReactionResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	comment, err := s.comments.FindByID(commentID)
	if err != nil {
		return nil, err
	}
	if comment == nil || comment.SolutionID != solutionID {
		return nil, response.NewNotFound("Comment not found")
	}

	active := toggle(comment)
	if err := s.comments.Save(comment); err != nil {
		return nil, err
	}

	metrics.RecordRatingAction(action)
	return &ReactionResult{Active: active, Likes: len(comment.Likes), Dislikes: len(comment.Dislikes)}, nil
}

// Reconcile recomputes a solution's rating from its comments and rewrites
// the cached values if they drifted. Reports whether a repair happened.
func (s *RatingService) Reconcile(solutionID uint) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	solution, err := s.solutions.FindByID(solutionID)
	if err != nil || solution == nil {
		return false, err
	}

	rows, err := s.comments.Aggregate(repository.Pipeline[repository.CommentQuery]{
		Match: repository.CommentQuery{SolutionID: solutionID, RatingExists: true},
		Kind:  repository.AggregateAverage,
		Field: "rating",
	})
	if err != nil {
		return false, err
	}

	var avg float64
	var total int
	if len(rows) > 0 {
		avg, total = rows[0].Avg, int(rows[0].Count)
	}
	if total == solution.TotalRatings && math.Abs(avg-solution.AverageRating) <= ratingDriftTolerance {
		return false, nil
	}

	logger.Warnf("[Rating] Solution %d drifted: cached avg=%.6f total=%d, actual avg=%.6f total=%d",
		solutionID, solution.AverageRating, solution.TotalRatings, avg, total)

	solution.AverageRating = avg
	solution.TotalRatings = total
	if err := s.solutions.Save(solution); err != nil {
		return false, err
	}
	metrics.RecordReconcileRepair()
	return true, nil
}

// ProcessReconcileTask is the task queue processor for reconcile jobs.
func (s *RatingService) ProcessReconcileTask(ctx context.Context, task *ReconcileTask) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := s.Reconcile(task.SolutionID)
	return err
}
