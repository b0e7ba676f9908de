package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"merchant-docs-rag/internal/config"
	"merchant-docs-rag/internal/logger"
)

// OCRClient talks to the sidecar OCR service used for scanned images.
type OCRClient struct {
	config     *config.Config
	httpClient *http.Client
	baseURL    string
}

// OCRResponse is the extraction payload returned by the OCR service.
type OCRResponse struct {
	Success        bool    `json:"success"`
	Text           string  `json:"text"`
	Pages          int     `json:"pages"`
	ProcessingTime float64 `json:"processing_time"`
	QualityScore   float64 `json:"quality_score"`
	WordCount      int     `json:"word_count"`
	Error          string  `json:"error,omitempty"`
}

type ocrHealthResponse struct {
	Status      string `json:"status"`
	ModelLoaded bool   `json:"model_loaded"`
}

func NewOCRClient(cfg *config.Config) *OCRClient {
	baseURL := cfg.OCRServiceURL
	if baseURL == "" {
		baseURL = "http://localhost:8001"
	}
	return &OCRClient{
		config: cfg,
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.OCRTimeout) * time.Second,
		},
		baseURL: baseURL,
	}
}

// IsHealthy checks if the OCR service is up and its model is loaded.
func (c *OCRClient) IsHealthy(ctx context.Context) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/health", nil)
	if err != nil {
		return false, fmt.Errorf("failed to create health check request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("health check request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("OCR service unhealthy: status %d", resp.StatusCode)
	}

	var healthResp ocrHealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&healthResp); err != nil {
		return false, fmt.Errorf("failed to decode health response: %w", err)
	}
	return healthResp.Status == "healthy" && healthResp.ModelLoaded, nil
}

// ExtractImage runs OCR over image bytes and returns the recognized text
// plus the service's quality score.
func (c *OCRClient) ExtractImage(ctx context.Context, data []byte, filename string) (*OCRResponse, error) {
	healthy, err := c.IsHealthy(ctx)
	if err != nil {
		return nil, fmt.Errorf("OCR service health check failed: %w", err)
	}
	if !healthy {
		return nil, fmt.Errorf("OCR service is not healthy")
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	fileWriter, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := fileWriter.Write(data); err != nil {
		return nil, fmt.Errorf("failed to copy file data: %w", err)
	}
	writer.WriteField("confidence_threshold",
		fmt.Sprintf("%.2f", c.config.OCRConfidenceThreshold))
	writer.Close()

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/ocr/extract", &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create OCR request: %w", err)
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("OCR request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("OCR request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var ocrResp OCRResponse
	if err := json.NewDecoder(resp.Body).Decode(&ocrResp); err != nil {
		return nil, fmt.Errorf("failed to decode OCR response: %w", err)
	}

	logger.Debug("OCR response",
		"success", ocrResp.Success, "quality", ocrResp.QualityScore, "chars", len(ocrResp.Text))

	if !ocrResp.Success {
		return nil, fmt.Errorf("OCR processing failed: %s", ocrResp.Error)
	}
	return &ocrResp, nil
}
