package handlers

import (
	"fmt"
	"io"

	"github.com/agroc/backend/internal/middleware"
	"github.com/agroc/backend/internal/services"
	"github.com/agroc/backend/pkg/response"
	"github.com/gin-gonic/gin"
)

type PredictionHandler struct {
	predictionService *services.PredictionService
	maxUploadBytes    int64
}

func NewPredictionHandler(predictionService *services.PredictionService, maxUploadBytes int64) *PredictionHandler {
	return &PredictionHandler{
		predictionService: predictionService,
		maxUploadBytes:    maxUploadBytes,
	}
}

// Create diagnoses an uploaded leaf image
// POST /api/predictions
func (h *PredictionHandler) Create(c *gin.Context) {
	header, err := c.FormFile("image")
	if err != nil {
		response.BadRequest(c, "No image file provided")
		return
	}
	if header.Size > h.maxUploadBytes {
		response.BadRequest(c, fmt.Sprintf("File too large. Maximum size is %dMB.", h.maxUploadBytes>>20))
		return
	}

	file, err := header.Open()
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, h.maxUploadBytes+1))
	if err != nil {
		response.Error(c, err)
		return
	}

	resp, err := h.predictionService.Predict(c.Request.Context(), middleware.GetUserID(c), &services.ImageUpload{
		FileName: header.Filename,
		MimeType: header.Header.Get("Content-Type"),
		Data:     data,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, resp)
}

// History returns a user's predictions
// GET /api/predictions/:userId
func (h *PredictionHandler) History(c *gin.Context) {
	var req services.PageRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	userID, ok := pathID(c, "userId")
	if !ok || !actorOf(c).CanAccess(userID) {
		response.Forbidden(c, "Access denied")
		return
	}

	resp, err := h.predictionService.History(userID, &req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, resp)
}

// Feedback stores the owner's verdict on a prediction
// PUT /api/predictions/:id/feedback
func (h *PredictionHandler) Feedback(c *gin.Context) {
	var req services.FeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	id, ok := pathID(c, "id")
	if !ok {
		response.NotFound(c, "Prediction not found")
		return
	}

	prediction, err := h.predictionService.SubmitFeedback(id, middleware.GetUserID(c), &req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.SuccessWithMessage(c, "Feedback submitted successfully", prediction)
}

// Stats returns prediction statistics
// GET /api/predictions/stats/overview
func (h *PredictionHandler) Stats(c *gin.Context) {
	stats, err := h.predictionService.Stats()
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, stats)
}

// TestPredict forwards a base64 image to the inference service
// POST /api/test-predict
func (h *PredictionHandler) TestPredict(c *gin.Context) {
	var req services.TestPredictRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	raw, err := h.predictionService.TestPredict(c.Request.Context(), &req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, raw)
}
