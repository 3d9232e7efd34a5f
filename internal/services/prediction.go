package services

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/agroc/backend/internal/config"
	"github.com/agroc/backend/internal/metrics"
	"github.com/agroc/backend/internal/models"
	"github.com/agroc/backend/internal/repository"
	"github.com/agroc/backend/pkg/logger"
	"github.com/agroc/backend/pkg/response"
	"github.com/google/uuid"
)

// UploadURLPrefix is where stored uploads are served from.
const UploadURLPrefix = "/uploads/"

type PredictionService struct {
	predictions repository.PredictionRepository
	users       repository.UserRepository
	solutions   repository.SolutionRepository
	inference   *InferenceClient
	upload      config.UploadConfig
}

func NewPredictionService(repos *repository.Repositories, inference *InferenceClient, uploadCfg *config.UploadConfig) *PredictionService {
	return &PredictionService{
		predictions: repos.Predictions,
		users:       repos.Users,
		solutions:   repos.Solutions,
		inference:   inference,
		upload:      *uploadCfg,
	}
}

// ImageUpload is a received image file.
type ImageUpload struct {
	FileName string
	MimeType string
	Data     []byte
}

// SolutionSummary is the treatment attached to a diseased diagnosis.
type SolutionSummary struct {
	ID            uint     `json:"id"`
	Title         string   `json:"title"`
	Description   string   `json:"description"`
	Symptoms      []string `json:"symptoms"`
	Treatment     []string `json:"treatment"`
	Prevention    []string `json:"prevention"`
	AverageRating float64  `json:"averageRating"`
	TotalRatings  int      `json:"totalRatings"`
}

type PredictResponse struct {
	ID             uint             `json:"id"`
	Prediction     string           `json:"prediction"`
	Confidence     float64          `json:"confidence"`
	PlantType      string           `json:"plantType"`
	DiseaseType    *string          `json:"diseaseType"`
	Explanation    *string          `json:"explanation"`
	ImageURL       string           `json:"imageUrl"`
	ProcessingTime int64            `json:"processingTime"`
	Solution       *SolutionSummary `json:"solution"`
}

// Predict runs one diagnosis: the upload is resized, stored, sent to the
// inference service and the result persisted for userID.
func (s *PredictionService) Predict(ctx context.Context, userID uint, upload *ImageUpload) (*PredictResponse, error) {
	if !AllowedImageTypes[strings.ToLower(upload.MimeType)] {
		return nil, response.NewBadRequest("Invalid file type. Only images are allowed.")
	}
	if int64(len(upload.Data)) > s.upload.MaxBytes() {
		return nil, response.NewBadRequest(fmt.Sprintf("File too large. Maximum size is %dMB.", s.upload.MaxSizeMB))
	}

	start := time.Now()

	img, err := ProcessImage(upload.Data, s.upload.MaxDimension, s.upload.JPEGQuality)
	if err != nil {
		logger.Warnf("[Prediction] Rejected upload %q from user %d: %v", upload.FileName, userID, err)
		return nil, response.NewBadRequest("Invalid image file")
	}

	fileName := uuid.New().String() + ".jpg"
	filePath := filepath.Join(s.upload.Dir, fileName)
	if err := os.MkdirAll(s.upload.Dir, 0755); err != nil {
		return nil, err
	}
	if err := os.WriteFile(filePath, img.Data, 0644); err != nil {
		return nil, err
	}

	result, err := s.inference.Predict(ctx, fileName, img.Data)
	if err != nil {
		_ = os.Remove(filePath)
		var appErr *response.AppError
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		logger.Errorf("[Prediction] Inference failed for user %d: %v", userID, err)
		return nil, response.NewServerError("Error processing prediction")
	}

	processingTime := time.Since(start).Milliseconds()

	prediction := &models.Prediction{
		UserID:           userID,
		ImageURL:         UploadURLPrefix + fileName,
		OriginalFileName: upload.FileName,
		Outcome:          result.Prediction,
		Confidence:       result.Confidence,
		PlantType:        result.PlantType,
		DiseaseType:      nonEmpty(result.DiseaseType),
		ExplanationURL:   nonEmpty(result.Explanation),
		ProcessingTime:   processingTime,
		Metadata: models.ImageMetadata{
			ImageSize: models.ImageSize{Width: img.Width, Height: img.Height},
			FileSize:  int64(len(upload.Data)),
			MimeType:  upload.MimeType,
		},
	}
	if err := s.predictions.Create(prediction); err != nil {
		_ = os.Remove(filePath)
		return nil, err
	}

	if _, err := s.users.FindByIDAndUpdate(userID, repository.UserUpdate{AddPredictions: 1}); err != nil {
		logger.Warnf("[Prediction] Failed to bump prediction count of user %d: %v", userID, err)
	}

	resp := &PredictResponse{
		ID:             prediction.ID,
		Prediction:     result.Prediction,
		Confidence:     result.Confidence,
		PlantType:      result.PlantType,
		DiseaseType:    result.DiseaseType,
		Explanation:    result.Explanation,
		ImageURL:       prediction.ImageURL,
		ProcessingTime: processingTime,
	}

	if prediction.IsDiseased() && result.PlantType != "" && prediction.DiseaseType != nil {
		solution, err := s.solutions.FindOne(repository.SolutionQuery{
			Plant:   result.PlantType,
			Disease: *prediction.DiseaseType,
		})
		if err != nil {
			return nil, err
		}
		if solution != nil {
			resp.Solution = summarize(solution)
		}
	}

	metrics.RecordPrediction(result.Prediction)
	logger.Infof("[Prediction] Prediction completed for user %d: %s (%.3f)", userID, result.Prediction, result.Confidence)
	return resp, nil
}

func summarize(s *models.Solution) *SolutionSummary {
	return &SolutionSummary{
		ID:            s.ID,
		Title:         s.Title,
		Description:   s.Description,
		Symptoms:      s.Symptoms,
		Treatment:     s.Treatment,
		Prevention:    s.Prevention,
		AverageRating: s.AverageRating,
		TotalRatings:  s.TotalRatings,
	}
}

func nonEmpty(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	v := *s
	return &v
}

type PredictionListResponse struct {
	Predictions []models.Prediction `json:"predictions"`
	Pagination  Pagination          `json:"pagination"`
}

// History returns userID's predictions, newest first.
func (s *PredictionService) History(userID uint, req *PageRequest) (*PredictionListResponse, error) {
	query := repository.PredictionQuery{UserID: userID}

	predictions, err := s.predictions.Find(query, req.findOptions(true))
	if err != nil {
		return nil, err
	}
	total, err := s.predictions.Count(query)
	if err != nil {
		return nil, err
	}

	return &PredictionListResponse{Predictions: predictions, Pagination: req.pagination(total)}, nil
}

type FeedbackRequest struct {
	IsCorrect *bool  `json:"isCorrect" binding:"required"`
	Feedback  string `json:"feedback" binding:"max=500"`
}

// SubmitFeedback stores the owner's verdict on a prediction.
func (s *PredictionService) SubmitFeedback(predictionID, userID uint, req *FeedbackRequest) (*models.Prediction, error) {
	owned, err := s.predictions.FindOne(repository.PredictionQuery{ID: predictionID, UserID: userID})
	if err != nil {
		return nil, err
	}
	if owned == nil {
		return nil, response.NewNotFound("Prediction not found")
	}

	prediction, err := s.predictions.FindByIDAndUpdate(predictionID, repository.PredictionUpdate{
		UserFeedback: &models.Feedback{
			IsCorrect:    *req.IsCorrect,
			Feedback:     req.Feedback,
			FeedbackDate: time.Now(),
		},
	})
	if err != nil {
		return nil, err
	}
	if prediction == nil {
		return nil, response.NewNotFound("Prediction not found")
	}

	logger.Infof("[Prediction] User feedback submitted for prediction %d: %t", predictionID, *req.IsCorrect)
	return prediction, nil
}

type PredictionStats struct {
	TotalPredictions    int64                     `json:"totalPredictions"`
	HealthyPredictions  int64                     `json:"healthyPredictions"`
	DiseasedPredictions int64                     `json:"diseasedPredictions"`
	AverageConfidence   float64                   `json:"averageConfidence"`
	TopPlants           []repository.AggregateRow `json:"topPlants"`
	TopDiseases         []repository.AggregateRow `json:"topDiseases"`
}

func (s *PredictionService) Stats() (*PredictionStats, error) {
	var (
		stats PredictionStats
		err   error
	)

	if stats.TotalPredictions, err = s.predictions.Count(repository.PredictionQuery{}); err != nil {
		return nil, err
	}
	if stats.HealthyPredictions, err = s.predictions.Count(repository.PredictionQuery{Outcome: models.OutcomeHealthy}); err != nil {
		return nil, err
	}
	if stats.DiseasedPredictions, err = s.predictions.Count(repository.PredictionQuery{Outcome: models.OutcomeDiseased}); err != nil {
		return nil, err
	}

	stats.AverageConfidence, err = averageOf(s.predictions.Aggregate(repository.Pipeline[repository.PredictionQuery]{
		Kind:  repository.AggregateAverage,
		Field: "confidence",
	}))
	if err != nil {
		return nil, err
	}

	stats.TopPlants, err = s.predictions.Aggregate(repository.Pipeline[repository.PredictionQuery]{
		Kind:     repository.AggregateGroupCount,
		Field:    "plantType",
		SortDesc: true,
		Limit:    statsTopLimit,
	})
	if err != nil {
		return nil, err
	}

	stats.TopDiseases, err = s.predictions.Aggregate(repository.Pipeline[repository.PredictionQuery]{
		Match:    repository.PredictionQuery{HasDisease: true},
		Kind:     repository.AggregateGroupCount,
		Field:    "diseaseType",
		SortDesc: true,
		Limit:    statsTopLimit,
	})
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

var dataURLPrefix = regexp.MustCompile(`^data:image/[a-z]+;base64,`)

type TestPredictRequest struct {
	ImageData string `json:"imageData"`
	Plant     string `json:"plant"`
}

// TestPredict forwards a base64 image straight to the inference service and
// returns its raw answer. Nothing is stored.
func (s *PredictionService) TestPredict(ctx context.Context, req *TestPredictRequest) (json.RawMessage, error) {
	if req.ImageData == "" {
		return nil, response.NewBadRequest("No image data provided")
	}

	data, err := base64.StdEncoding.DecodeString(dataURLPrefix.ReplaceAllString(req.ImageData, ""))
	if err != nil {
		return nil, response.NewBadRequest("Invalid base64 image data")
	}

	if req.Plant != "" {
		if err := s.inference.SwitchModel(ctx, req.Plant); err != nil {
			logger.Warnf("[Prediction] Model switch request failed: %v", err)
		}
	}

	raw, err := s.inference.PredictRaw(ctx, "test.jpg", data)
	if err != nil {
		var inferenceErr *InferenceError
		if errors.As(err, &inferenceErr) {
			return nil, response.NewServerError("Error testing prediction: " + inferenceErr.Detail)
		}
		var appErr *response.AppError
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, response.NewServerError("Error testing prediction: " + err.Error())
	}
	return raw, nil
}
