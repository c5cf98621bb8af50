package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ai-pro-cosmic-go/internal/config"
	"github.com/sirupsen/logrus"
)

// EndpointResponder calls an OpenAI-compatible chat/completions endpoint.
type EndpointResponder struct {
	cfg        *config.EndpointConfig
	httpClient *http.Client
	logger     *logrus.Logger
	backoff    func(attempt int) time.Duration
}

// clientError marks a 4xx answer, which is not retried.
type clientError struct {
	status int
	body   string
}

func (e *clientError) Error() string {
	return fmt.Sprintf("AI request failed with client error %d: %s", e.status, e.body)
}

// NewEndpointResponder creates a responder for an OpenAI-compatible endpoint.
func NewEndpointResponder(cfg *config.EndpointConfig, logger *logrus.Logger) *EndpointResponder {
	logger.WithFields(logrus.Fields{
		"endpoint": cfg.Name,
		"baseURL":  cfg.BaseURL,
		"model":    cfg.Model,
	}).Info("Assistant endpoint configured")

	return &EndpointResponder{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
		logger: logger,
		// Exponential backoff: 2s, 4s, 8s
		backoff: func(attempt int) time.Duration {
			return time.Duration(2<<uint(attempt-1)) * time.Second
		},
	}
}

func (s *EndpointResponder) Name() string { return "endpoint" }

// Reply retries transient failures with exponential backoff.
func (s *EndpointResponder) Reply(ctx context.Context, req Request) (string, error) {
	maxRetries := s.cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	var lastErr error

	for attempt := 1; attempt <= maxRetries; attempt++ {
		response, err := s.complete(ctx, req, attempt)
		if err == nil {
			return response, nil
		}

		var ce *clientError
		if errors.As(err, &ce) {
			return "", err
		}

		lastErr = err
		s.logger.WithFields(logrus.Fields{
			"attempt": attempt,
			"error":   err.Error(),
			"model":   req.Model,
		}).Warn("AI request failed, retrying...")

		if attempt < maxRetries {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(s.backoff(attempt)):
			}
		}
	}

	return "", fmt.Errorf("all retry attempts failed: %w", lastErr)
}

func (s *EndpointResponder) complete(ctx context.Context, req Request, attempt int) (string, error) {
	messages := make([]map[string]string, 0, len(req.History)+1)
	if req.SystemPrompt != "" {
		messages = append(messages, map[string]string{
			"role":    "system",
			"content": req.SystemPrompt,
		})
	}
	for _, msg := range req.History {
		messages = append(messages, map[string]string{
			"role":    string(msg.Role),
			"content": msg.Content,
		})
	}

	reqBody := map[string]interface{}{
		"model":       s.cfg.Model,
		"messages":    messages,
		"max_tokens":  s.cfg.MaxTokens,
		"temperature": s.cfg.Temperature,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	timeout := s.cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	url := fmt.Sprintf("%s/chat/completions", strings.TrimSuffix(s.cfg.BaseURL, "/"))
	httpReq, err := http.NewRequestWithContext(reqCtx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	if s.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", fmt.Sprintf("Bearer %s", s.cfg.APIKey))
	}

	s.logger.WithFields(logrus.Fields{
		"model":    s.cfg.Model,
		"endpoint": s.cfg.Name,
		"attempt":  attempt,
	}).Debug("Sending AI request")

	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		s.logger.WithFields(logrus.Fields{
			"status":  resp.StatusCode,
			"attempt": attempt,
		}).Error("AI request failed")

		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return "", &clientError{status: resp.StatusCode, body: string(body)}
		}
		return "", fmt.Errorf("AI request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}

	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}

	if result.Error.Message != "" {
		return "", fmt.Errorf("AI error: %s", result.Error.Message)
	}

	if len(result.Choices) == 0 || result.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("no response from AI")
	}

	return result.Choices[0].Message.Content, nil
}
