package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"strings"
	"syscall"
	"time"

	"github.com/agroc/backend/internal/config"
	"github.com/agroc/backend/internal/metrics"
	"github.com/agroc/backend/pkg/logger"
	"github.com/agroc/backend/pkg/response"
)

// MLUnavailableMessage is returned to clients when the inference service
// cannot be reached in time.
const MLUnavailableMessage = "ML service is currently unavailable. Please try again later."

// Plants with a dedicated model on the inference service.
var switchablePlants = map[string]bool{"potato": true, "tomato": true}

// InferenceResult is the part of the /predict response that gets persisted.
type InferenceResult struct {
	Prediction  string  `json:"prediction"`
	Confidence  float64 `json:"confidence"`
	PlantType   string  `json:"plantType"`
	DiseaseType *string `json:"diseaseType"`
	Explanation *string `json:"explanation"`
}

// InferenceError is a non-2xx answer from the inference service.
type InferenceError struct {
	Status int
	Detail string
}

func (e *InferenceError) Error() string {
	return fmt.Sprintf("inference service returned %d: %s", e.Status, e.Detail)
}

type InferenceClient struct {
	baseURL       string
	httpClient    *http.Client
	switchTimeout time.Duration
}

func NewInferenceClient(cfg *config.MLConfig) *InferenceClient {
	return &InferenceClient{
		baseURL:       strings.TrimRight(cfg.ServiceURL, "/"),
		httpClient:    &http.Client{Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second},
		switchTimeout: time.Duration(cfg.SwitchTimeoutSeconds) * time.Second,
	}
}

func (c *InferenceClient) BaseURL() string {
	return c.baseURL
}

// Predict uploads a JPEG and decodes the diagnosis.
func (c *InferenceClient) Predict(ctx context.Context, fileName string, image []byte) (*InferenceResult, error) {
	raw, err := c.PredictRaw(ctx, fileName, image)
	if err != nil {
		return nil, err
	}

	var result InferenceResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("decode inference response: %w", err)
	}
	if result.Prediction == "" {
		return nil, errors.New("inference response has no prediction")
	}
	return &result, nil
}

// PredictRaw uploads an image as multipart field "file" and returns the
// response body untouched.
func (c *InferenceClient) PredictRaw(ctx context.Context, fileName string, image []byte) (json.RawMessage, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", fileName)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(image); err != nil {
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	start := time.Now()
	raw, err := c.do(ctx, http.MethodPost, "/predict", writer.FormDataContentType(), &body)
	metrics.RecordInference("predict", time.Since(start), err)
	if err != nil {
		return nil, err
	}

	logger.Infof("[Inference] /predict answered in %s", time.Since(start).Round(time.Millisecond))
	return raw, nil
}

// SwitchModel asks the service to load the model for plant. Only potato and
// tomato have models; other plants are ignored.
func (c *InferenceClient) SwitchModel(ctx context.Context, plant string) error {
	plant = strings.ToLower(strings.TrimSpace(plant))
	if !switchablePlants[plant] {
		return nil
	}

	payload, err := json.Marshal(map[string]string{"plant": plant})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, c.switchTimeout)
	defer cancel()

	start := time.Now()
	_, err = c.do(ctx, http.MethodPost, "/model/switch", "application/json", bytes.NewReader(payload))
	metrics.RecordInference("switch", time.Since(start), err)
	return err
}

// Health reports whether the inference service answers its health check.
func (c *InferenceClient) Health(ctx context.Context) error {
	start := time.Now()
	_, err := c.do(ctx, http.MethodGet, "/health", "", nil)
	metrics.RecordInference("health", time.Since(start), err)
	return err
}

func (c *InferenceClient) do(ctx context.Context, method, path, contentType string, body io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isUnavailable(err) {
			logger.Warnf("[Inference] %s %s unreachable: %v", method, path, err)
			return nil, response.NewServiceUnavailable(MLUnavailableMessage)
		}
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &InferenceError{Status: resp.StatusCode, Detail: errorDetail(respBody)}
	}
	return respBody, nil
}

// errorDetail pulls "detail" out of a FastAPI style error body.
func errorDetail(body []byte) string {
	var payload struct {
		Detail interface{} `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Detail != nil {
		if s, ok := payload.Detail.(string); ok {
			return s
		}
		if b, err := json.Marshal(payload.Detail); err == nil {
			return string(b)
		}
	}
	return strings.TrimSpace(string(body))
}

func isUnavailable(err error) bool {
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
