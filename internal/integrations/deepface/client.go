package deepface

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"facewatch/config"
	"facewatch/internal/core/models"
	"facewatch/internal/core/recognition"

	log "github.com/sirupsen/logrus"
)

var logFields = log.Fields{
	"component": "deepface",
}

// Client talks to a DeepFace-compatible HTTP service. It implements
// recognition.Provider.
type Client struct {
	config     config.RecognitionConfig
	httpClient *http.Client
}

type apiRepresentResponse struct {
	Results []struct {
		Embedding  []float64 `json:"embedding"`
		FacialArea struct {
			X int `json:"x"`
			Y int `json:"y"`
			W int `json:"w"`
			H int `json:"h"`
		} `json:"facial_area"`
		FaceConfidence float64 `json:"face_confidence"`
	} `json:"results"`
	Error string `json:"error,omitempty"`
}

type apiAnalyzeResponse struct {
	Results []struct {
		Age             json.Number `json:"age"`
		DominantGender  string      `json:"dominant_gender"`
		DominantRace    string      `json:"dominant_race"`
		DominantEmotion string      `json:"dominant_emotion"`
	} `json:"results"`
	Error string `json:"error,omitempty"`
}

// NewClient creates a client for the configured DeepFace service URL.
func NewClient(cfg config.RecognitionConfig) *Client {
	return &Client{
		config: cfg,
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		},
	}
}

// Ping checks whether the DeepFace service is reachable.
func (c *Client) Ping(ctx context.Context) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", c.config.ProviderURL, nil)
	if err != nil {
		return false, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("failed to reach DeepFace service: %w", err)
	}
	defer resp.Body.Close()

	return resp.StatusCode < http.StatusInternalServerError, nil
}

// Represent extracts the embedding of the most prominent face in the image.
func (c *Client) Represent(ctx context.Context, image []byte, model string) (*recognition.FaceData, error) {
	body, contentType, err := buildForm(image, map[string]string{
		"model_name": model,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", fmt.Sprintf("%s/represent", c.config.ProviderURL), body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	var apiResp apiRepresentResponse
	if err := decodeResponse(resp, &apiResp); err != nil {
		return nil, err
	}
	if isNoFaceError(apiResp.Error) {
		return nil, recognition.ErrNoFaceDetected
	}
	if apiResp.Error != "" {
		return nil, fmt.Errorf("DeepFace error: %s", apiResp.Error)
	}
	if len(apiResp.Results) == 0 {
		return nil, recognition.ErrNoFaceDetected
	}

	// The service orders results by prominence; take the first face.
	face := apiResp.Results[0]
	if len(face.Embedding) == 0 {
		return nil, recognition.ErrNoFaceDetected
	}

	log.WithFields(logFields).Debugf("Extracted %d-dimensional embedding with model %s", len(face.Embedding), model)

	return &recognition.FaceData{
		Embedding: face.Embedding,
		Region: &models.FaceRegion{
			X: face.FacialArea.X,
			Y: face.FacialArea.Y,
			W: face.FacialArea.W,
			H: face.FacialArea.H,
		},
	}, nil
}

// Analyze requests auxiliary attributes for the most prominent face.
// Attributes the service cannot determine come back as "unknown".
func (c *Client) Analyze(ctx context.Context, image []byte, attributes []string) (map[string]string, error) {
	if len(attributes) == 0 {
		return map[string]string{}, nil
	}

	body, contentType, err := buildForm(image, map[string]string{
		"actions": strings.Join(attributes, ","),
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", fmt.Sprintf("%s/analyze", c.config.ProviderURL), body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	var apiResp apiAnalyzeResponse
	if err := decodeResponse(resp, &apiResp); err != nil {
		return nil, err
	}
	if isNoFaceError(apiResp.Error) {
		return nil, recognition.ErrNoFaceDetected
	}
	if apiResp.Error != "" {
		return nil, fmt.Errorf("DeepFace error: %s", apiResp.Error)
	}

	result := make(map[string]string, len(attributes))
	for _, attr := range attributes {
		result[attr] = recognition.AttributeUnknown
	}
	if len(apiResp.Results) == 0 {
		return result, nil
	}

	face := apiResp.Results[0]
	for _, attr := range attributes {
		switch attr {
		case "age":
			if face.Age != "" {
				result[attr] = face.Age.String()
			}
		case "gender":
			if face.DominantGender != "" {
				result[attr] = face.DominantGender
			}
		case "race":
			if face.DominantRace != "" {
				result[attr] = face.DominantRace
			}
		case "emotion":
			if face.DominantEmotion != "" {
				result[attr] = face.DominantEmotion
			}
		}
	}

	return result, nil
}

// buildForm assembles a multipart form with the image and extra fields.
func buildForm(image []byte, fields map[string]string) (*bytes.Buffer, string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("img", "image.jpg")
	if err != nil {
		return nil, "", fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(part, bytes.NewReader(image)); err != nil {
		return nil, "", fmt.Errorf("failed to copy image data: %w", err)
	}

	for name, value := range fields {
		if err := writer.WriteField(name, value); err != nil {
			return nil, "", fmt.Errorf("failed to write field %s: %w", name, err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to close form writer: %w", err)
	}

	return body, writer.FormDataContentType(), nil
}

// decodeResponse decodes the JSON body and normalizes transport-level errors.
// Error bodies on 4xx responses are decoded too so face-detection failures
// can be told apart from service malfunctions.
func decodeResponse(resp *http.Response, out interface{}) error {
	if resp.StatusCode >= http.StatusInternalServerError {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("unexpected status: %d, response: %s", resp.StatusCode, string(bodyBytes))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// isNoFaceError recognizes the service's "no face detected" error variants.
func isNoFaceError(msg string) bool {
	if msg == "" {
		return false
	}
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "face could not be detected") ||
		strings.Contains(lower, "no face detected")
}
