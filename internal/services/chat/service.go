package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ai-pro-cosmic-go/internal/middleware"
	"github.com/ai-pro-cosmic-go/internal/models"
	"github.com/ai-pro-cosmic-go/internal/services/assistant"
	"github.com/ai-pro-cosmic-go/internal/services/repository"
	"github.com/ai-pro-cosmic-go/pkg/markdown"
	"github.com/sirupsen/logrus"
)

var (
	// ErrEmptyMessage is returned for blank message content.
	ErrEmptyMessage = errors.New("message is empty")
	// ErrConversationNotFound is returned when sending to an unknown id.
	ErrConversationNotFound = errors.New("conversation not found")
	// ErrAssistantReply wraps responder failures. The user's message has
	// already been stored when it is returned.
	ErrAssistantReply = errors.New("assistant reply")
)

const titleLength = 50

// StartRequest opens a new conversation. PromptID and Title are optional.
type StartRequest struct {
	UserID   string
	ModelID  string
	PromptID string
	Title    string
	Message  string
}

// Service drives a conversation: persist the user's message, ask the
// responder, persist the reply.
type Service struct {
	repo      *repository.Repository
	responder assistant.Responder
	metrics   *middleware.Metrics
	logger    *logrus.Logger
}

// NewService creates a chat service. metrics may be nil.
func NewService(repo *repository.Repository, responder assistant.Responder, metrics *middleware.Metrics, logger *logrus.Logger) *Service {
	return &Service{
		repo:      repo,
		responder: responder,
		metrics:   metrics,
		logger:    logger,
	}
}

// StartConversation creates the conversation and appends the first reply.
func (s *Service) StartConversation(ctx context.Context, req StartRequest) (*models.Conversation, error) {
	if strings.TrimSpace(req.Message) == "" {
		return nil, ErrEmptyMessage
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = titleFrom(req.Message)
	}

	systemPrompt, err := s.promptText(ctx, req.PromptID)
	if err != nil {
		return nil, err
	}

	conv, err := s.repo.CreateConversation(ctx, repository.NewConversation{
		UserID:  req.UserID,
		ModelID: req.ModelID,
		Title:   title,
		Message: req.Message,
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"conversation": conv.ID,
		"user":         req.UserID,
		"model":        req.ModelID,
	}).Info("Conversation started")

	return s.reply(ctx, conv, systemPrompt)
}

// SendMessage appends content as a user message, then the responder's reply.
func (s *Service) SendMessage(ctx context.Context, conversationID, content string) (*models.Conversation, error) {
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyMessage
	}

	existing, err := s.repo.GetConversationByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, ErrConversationNotFound
	}

	conv, err := s.repo.UpdateConversation(ctx, conversationID, repository.NewMessage{
		Role:    models.RoleUser,
		Content: content,
	})
	if err != nil {
		return nil, err
	}

	return s.reply(ctx, conv, "")
}

func (s *Service) reply(ctx context.Context, conv *models.Conversation, systemPrompt string) (*models.Conversation, error) {
	start := time.Now()
	text, err := s.responder.Reply(ctx, assistant.Request{
		Model:        modelName(conv),
		SystemPrompt: systemPrompt,
		History:      conv.Metadata.Messages,
	})
	if err != nil {
		s.metrics.RecordAssistantRequest(s.responder.Name(), "error", time.Since(start))
		s.logger.WithError(err).WithField("conversation", conv.ID).Error("Assistant reply failed")
		return nil, fmt.Errorf("%w: %w", ErrAssistantReply, err)
	}
	s.metrics.RecordAssistantRequest(s.responder.Name(), "success", time.Since(start))

	return s.repo.UpdateConversation(ctx, conv.ID, repository.NewMessage{
		Role:    models.RoleAssistant,
		Content: text,
	})
}

// promptText returns the text of the prompt with the given id, or "" when
// id is empty or unknown.
func (s *Service) promptText(ctx context.Context, id string) (string, error) {
	if id == "" {
		return "", nil
	}
	prompts, err := s.repo.GetSystemPrompts(ctx)
	if err != nil {
		return "", err
	}
	for _, p := range prompts {
		if p.ID == id {
			return markdown.PlainText(p.Metadata.PromptText), nil
		}
	}
	s.logger.WithField("prompt", id).Warn("System prompt not found, continuing without one")
	return "", nil
}

func modelName(conv *models.Conversation) string {
	if ref := conv.Metadata.ModelUsed; ref.Expanded() && ref.Object.Metadata.ModelName != "" {
		return ref.Object.Metadata.ModelName
	}
	return conv.Metadata.ModelUsed.ID
}

func titleFrom(message string) string {
	message = strings.Join(strings.Fields(message), " ")
	if utf8.RuneCountInString(message) <= titleLength {
		return message
	}
	runes := []rune(message)
	return strings.TrimSpace(string(runes[:titleLength])) + "..."
}
