package handlers

import (
	"github.com/agroc/backend/internal/middleware"
	"github.com/agroc/backend/internal/services"
	"github.com/agroc/backend/pkg/response"
	"github.com/gin-gonic/gin"
)

type SolutionHandler struct {
	solutionService *services.SolutionService
	ratingService   *services.RatingService
}

func NewSolutionHandler(solutionService *services.SolutionService, ratingService *services.RatingService) *SolutionHandler {
	return &SolutionHandler{
		solutionService: solutionService,
		ratingService:   ratingService,
	}
}

// List returns solutions filtered by plant and disease
// GET /api/solutions
func (h *SolutionHandler) List(c *gin.Context) {
	var req services.SolutionListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	resp, err := h.solutionService.List(&req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, resp)
}

// GetByPlantDisease returns the treatment for one diagnosis. The plant
// shares the ":id" segment with the id based routes.
// GET /api/solutions/:plant/:disease
func (h *SolutionHandler) GetByPlantDisease(c *gin.Context) {
	solution, err := h.solutionService.GetByPlantDisease(c.Param("id"), c.Param("disease"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, solution)
}

type rateRequest struct {
	Rating int `json:"rating" binding:"required,min=1,max=5"`
}

// Rate records the current user's rating
// POST /api/solutions/:id/rate
func (h *SolutionHandler) Rate(c *gin.Context) {
	var req rateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	id, ok := pathID(c, "id")
	if !ok {
		response.NotFound(c, "Solution not found")
		return
	}

	result, err := h.ratingService.Rate(id, middleware.GetUserID(c), req.Rating)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.SuccessWithMessage(c, "Rating submitted successfully", result)
}

type commentRequest struct {
	Comment string `json:"comment" binding:"required,min=1,max=1000"`
	Rating  *int   `json:"rating" binding:"omitempty,min=1,max=5"`
}

// AddComment creates or edits the current user's comment
// POST /api/solutions/:id/comments
func (h *SolutionHandler) AddComment(c *gin.Context) {
	var req commentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	id, ok := pathID(c, "id")
	if !ok {
		response.NotFound(c, "Solution not found")
		return
	}

	comment, err := h.ratingService.Comment(id, middleware.GetUserID(c), req.Comment, req.Rating)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.SuccessWithMessage(c, "Comment added successfully", comment)
}

// ListComments returns the written comments of a solution
// GET /api/solutions/:id/comments
func (h *SolutionHandler) ListComments(c *gin.Context) {
	var req services.PageRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	// An unknown or malformed solution id simply has no comments.
	id, ok := pathID(c, "id")
	if !ok {
		id = 0
	}

	resp, err := h.solutionService.ListComments(id, &req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, resp)
}

// LikeComment toggles the current user's like
// POST /api/solutions/:id/comments/:commentId/like
func (h *SolutionHandler) LikeComment(c *gin.Context) {
	h.react(c, h.ratingService.ToggleLike, "Comment liked", "Comment unliked")
}

// DislikeComment toggles the current user's dislike
// POST /api/solutions/:id/comments/:commentId/dislike
func (h *SolutionHandler) DislikeComment(c *gin.Context) {
	h.react(c, h.ratingService.ToggleDislike, "Comment disliked", "Comment undisliked")
}

type toggleFunc func(solutionID, commentID, userID uint) (*services.ReactionResult, error)

func (h *SolutionHandler) react(c *gin.Context, toggle toggleFunc, onMsg, offMsg string) {
	solutionID, ok := pathID(c, "id")
	if !ok {
		response.NotFound(c, "Comment not found")
		return
	}
	commentID, ok := pathID(c, "commentId")
	if !ok {
		response.NotFound(c, "Comment not found")
		return
	}

	result, err := toggle(solutionID, commentID, middleware.GetUserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	msg := offMsg
	if result.Active {
		msg = onMsg
	}
	response.SuccessWithMessage(c, msg, result)
}

// Stats returns solution and rating statistics
// GET /api/solutions/stats/overview
func (h *SolutionHandler) Stats(c *gin.Context) {
	stats, err := h.solutionService.Stats()
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, stats)
}
