// Package client is a Go SDK for the training-engine API
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client is a Go SDK for the training-engine API
type Client struct {
	baseURL    string
	apiToken   string
	httpClient *http.Client
}

// Option configures the client
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithTimeout sets the client timeout
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// NewClient creates a new training-engine client
func NewClient(baseURL, apiToken string, opts ...Option) *Client {
	c := &Client{
		baseURL:  baseURL,
		apiToken: apiToken,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Formation represents a formation response
type Formation struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	Description     string    `json:"description,omitempty"`
	Category        string    `json:"category,omitempty"`
	TrainerID       string    `json:"trainer_id"`
	InvitationCode  string    `json:"invitation_code"`
	MaxLearners     int       `json:"max_learners"`
	CurrentLearners int       `json:"current_learners"`
	Status          string    `json:"status"`
	CreatedAt       time.Time `json:"created_at"`
}

// JoinResult is the outcome of an enrollment attempt. Success false with
// a non-empty Message is a business-rule refusal, not a transport error.
type JoinResult struct {
	Success    bool   `json:"success"`
	Message    string `json:"message,omitempty"`
	Title      string `json:"title,omitempty"`
	TrainingID string `json:"training_id,omitempty"`
}

// Eligibility reports certificate readiness for a formation
type Eligibility struct {
	Eligible            bool         `json:"eligible"`
	AllLessonsCompleted bool         `json:"all_lessons_completed"`
	AllQuizzesPassed    bool         `json:"all_quizzes_passed"`
	Certificate         *Certificate `json:"certificate,omitempty"`
}

// Certificate represents an issued certificate
type Certificate struct {
	ID             string    `json:"id"`
	UserID         string    `json:"user_id"`
	TrainingID     string    `json:"training_id"`
	LearnerName    string    `json:"learner_name"`
	FormationTitle string    `json:"formation_title"`
	TrainerName    string    `json:"trainer_name"`
	CertificateURL string    `json:"certificate_url"`
	IssuedAt       time.Time `json:"issued_at"`
}

// Message represents a chat message
type Message struct {
	ID         string    `json:"id"`
	TrainingID string    `json:"training_id"`
	SenderID   string    `json:"sender_id"`
	SenderName string    `json:"sender_name"`
	Text       string    `json:"text,omitempty"`
	ReplyToID  string    `json:"reply_to_id,omitempty"`
	Pinned     bool      `json:"pinned"`
	CreatedAt  time.Time `json:"created_at"`
}

// CreateFormationRequest represents a formation creation request
type CreateFormationRequest struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Category    string `json:"category,omitempty"`
	MaxLearners int    `json:"max_learners"`
}

// ListOptions contains options for listing formations
type ListOptions struct {
	Status string
	Limit  int
	Offset int
}

type apiErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// CreateFormation creates a new formation (trainer token required)
func (c *Client) CreateFormation(ctx context.Context, req CreateFormationRequest) (*Formation, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	resp, err := c.doRequest(ctx, "POST", "/api/v1/formations", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	var result struct {
		Success bool          `json:"success"`
		Data    *Formation    `json:"data"`
		Error   *apiErrorBody `json:"error"`
	}

	if err := json.Unmarshal(resp, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if !result.Success {
		return nil, fmt.Errorf("API error: %s - %s", result.Error.Code, result.Error.Message)
	}

	return result.Data, nil
}

// GetFormation retrieves a formation by ID
func (c *Client) GetFormation(ctx context.Context, id string) (*Formation, error) {
	resp, err := c.doRequest(ctx, "GET", fmt.Sprintf("/api/v1/formations/%s", id), nil)
	if err != nil {
		return nil, err
	}

	var result struct {
		Success bool          `json:"success"`
		Data    *Formation    `json:"data"`
		Error   *apiErrorBody `json:"error"`
	}

	if err := json.Unmarshal(resp, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if !result.Success {
		return nil, fmt.Errorf("API error: %s - %s", result.Error.Code, result.Error.Message)
	}

	return result.Data, nil
}

// ListFormations retrieves the caller's formations
func (c *Client) ListFormations(ctx context.Context, opts ListOptions) ([]*Formation, error) {
	path := "/api/v1/formations?"
	if opts.Status != "" {
		path += fmt.Sprintf("status=%s&", opts.Status)
	}
	if opts.Limit > 0 {
		path += fmt.Sprintf("limit=%d&", opts.Limit)
	}
	if opts.Offset > 0 {
		path += fmt.Sprintf("offset=%d&", opts.Offset)
	}

	resp, err := c.doRequest(ctx, "GET", path, nil)
	if err != nil {
		return nil, err
	}

	var result struct {
		Success bool `json:"success"`
		Data    struct {
			Formations []*Formation `json:"formations"`
			Total      int          `json:"total"`
		} `json:"data"`
		Error *apiErrorBody `json:"error"`
	}

	if err := json.Unmarshal(resp, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if !result.Success {
		return nil, fmt.Errorf("API error: %s - %s", result.Error.Code, result.Error.Message)
	}

	return result.Data.Formations, nil
}

// JoinByCode enrolls the caller into the formation matching the
// invitation code. A nil error with result.Success false means the code
// was refused for a business reason described in result.Message.
func (c *Client) JoinByCode(ctx context.Context, code string) (*JoinResult, error) {
	body, err := json.Marshal(map[string]string{"code": code})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	resp, err := c.doRequest(ctx, "POST", "/api/v1/enroll", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	var result struct {
		Success bool          `json:"success"`
		Data    *JoinResult   `json:"data"`
		Error   *apiErrorBody `json:"error"`
	}

	if err := json.Unmarshal(resp, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if result.Error != nil {
		return nil, fmt.Errorf("API error: %s - %s", result.Error.Code, result.Error.Message)
	}

	return result.Data, nil
}

// CheckEligibility retrieves certificate readiness for a formation
func (c *Client) CheckEligibility(ctx context.Context, trainingID string) (*Eligibility, error) {
	resp, err := c.doRequest(ctx, "GET", fmt.Sprintf("/api/v1/formations/%s/eligibility", trainingID), nil)
	if err != nil {
		return nil, err
	}

	var result struct {
		Success bool          `json:"success"`
		Data    *Eligibility  `json:"data"`
		Error   *apiErrorBody `json:"error"`
	}

	if err := json.Unmarshal(resp, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if !result.Success {
		return nil, fmt.Errorf("API error: %s - %s", result.Error.Code, result.Error.Message)
	}

	return result.Data, nil
}

// GenerateCertificate requests certificate issuance. Safe to call more
// than once; repeated calls return the already-issued certificate.
func (c *Client) GenerateCertificate(ctx context.Context, trainingID string) (*Certificate, error) {
	resp, err := c.doRequest(ctx, "POST", fmt.Sprintf("/api/v1/formations/%s/certificate", trainingID), nil)
	if err != nil {
		return nil, err
	}

	var result struct {
		Success bool          `json:"success"`
		Data    *Certificate  `json:"data"`
		Error   *apiErrorBody `json:"error"`
	}

	if err := json.Unmarshal(resp, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if !result.Success {
		return nil, fmt.Errorf("API error: %s - %s", result.Error.Code, result.Error.Message)
	}

	return result.Data, nil
}

// ListMessages retrieves chat history for a formation, newest first.
// Pass a zero time to fetch the latest page.
func (c *Client) ListMessages(ctx context.Context, trainingID string, before time.Time, limit int) ([]*Message, error) {
	path := fmt.Sprintf("/api/v1/formations/%s/messages?", trainingID)
	if !before.IsZero() {
		path += fmt.Sprintf("before=%s&", before.UTC().Format(time.RFC3339Nano))
	}
	if limit > 0 {
		path += fmt.Sprintf("limit=%d&", limit)
	}

	resp, err := c.doRequest(ctx, "GET", path, nil)
	if err != nil {
		return nil, err
	}

	var result struct {
		Success bool `json:"success"`
		Data    struct {
			Messages []*Message `json:"messages"`
		} `json:"data"`
		Error *apiErrorBody `json:"error"`
	}

	if err := json.Unmarshal(resp, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if !result.Success {
		return nil, fmt.Errorf("API error: %s - %s", result.Error.Code, result.Error.Message)
	}

	return result.Data.Messages, nil
}

// Health checks if the service is healthy
func (c *Client) Health(ctx context.Context) error {
	_, err := c.doRequest(ctx, "GET", "/health", nil)
	return err
}

// doRequest performs an HTTP request
func (c *Client) doRequest(ctx context.Context, method, path string, body io.Reader) ([]byte, error) {
	url := c.baseURL + path

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if c.apiToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(respBody))
	}

	return respBody, nil
}
