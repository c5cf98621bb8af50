package repository

import (
	"context"
	"time"

	"github.com/ai-pro-cosmic-go/internal/middleware"
	"github.com/ai-pro-cosmic-go/internal/models"
	"github.com/ai-pro-cosmic-go/internal/services/cosmic"
	"github.com/sirupsen/logrus"
)

// DefaultProps is the projection requested by every read.
var DefaultProps = []string{"id", "title", "slug", "metadata"}

// DefaultDepth resolves object metafields one level deep.
const DefaultDepth = 1

// NewConversation holds the inputs for CreateConversation.
type NewConversation struct {
	UserID  string
	ModelID string
	Title   string
	Message string
}

// NewMessage is appended by UpdateConversation.
type NewMessage struct {
	Role    models.MessageRole
	Content string
}

// Repository maps typed queries onto the content store.
type Repository struct {
	store   cosmic.Store
	logger  *logrus.Logger
	metrics *middleware.Metrics
	now     func() time.Time
}

// New creates a repository. metrics may be nil.
func New(store cosmic.Store, logger *logrus.Logger, metrics *middleware.Metrics) *Repository {
	return &Repository{
		store:   store,
		logger:  logger,
		metrics: metrics,
		now:     time.Now,
	}
}

// GetUsers lists every user.
func (r *Repository) GetUsers(ctx context.Context) ([]models.User, error) {
	return fetchList(ctx, r, "get_users", cosmic.Query{Type: models.TypeUsers}, models.ToUser, ErrFetchUsers)
}

// GetUser returns nil when no user has the slug.
func (r *Repository) GetUser(ctx context.Context, slug string) (*models.User, error) {
	return fetchOne(ctx, r, "get_user", cosmic.Query{Type: models.TypeUsers, Slug: slug}, models.ToUser, ErrFetchUser)
}

// GetUserConversations lists the conversations owned by userID.
func (r *Repository) GetUserConversations(ctx context.Context, userID string) ([]models.Conversation, error) {
	q := cosmic.Query{
		Type:    models.TypeConversations,
		Filters: map[string]any{"metadata.user": userID},
	}
	return fetchList(ctx, r, "get_user_conversations", q, models.ToConversation, ErrFetchConversations)
}

// GetConversation returns nil when no conversation has the slug.
func (r *Repository) GetConversation(ctx context.Context, slug string) (*models.Conversation, error) {
	q := cosmic.Query{Type: models.TypeConversations, Slug: slug}
	return fetchOne(ctx, r, "get_conversation", q, models.ToConversation, ErrFetchConversation)
}

// GetConversationByID returns nil when no conversation has the id.
func (r *Repository) GetConversationByID(ctx context.Context, id string) (*models.Conversation, error) {
	q := cosmic.Query{Type: models.TypeConversations, ID: id}
	return fetchOne(ctx, r, "get_conversation_by_id", q, models.ToConversation, ErrFetchConversation)
}

// GetAIModels lists every AI model, active or not.
func (r *Repository) GetAIModels(ctx context.Context) ([]models.AIModel, error) {
	return fetchList(ctx, r, "get_ai_models", cosmic.Query{Type: models.TypeAIModels}, models.ToAIModel, ErrFetchAIModels)
}

// GetActiveAIModels lists the models flagged as active.
func (r *Repository) GetActiveAIModels(ctx context.Context) ([]models.AIModel, error) {
	q := cosmic.Query{
		Type:    models.TypeAIModels,
		Filters: map[string]any{"metadata.is_active": true},
	}
	return fetchList(ctx, r, "get_active_ai_models", q, models.ToAIModel, ErrFetchActiveAIModels)
}

// GetSystemPrompts lists every system prompt.
func (r *Repository) GetSystemPrompts(ctx context.Context) ([]models.SystemPrompt, error) {
	q := cosmic.Query{Type: models.TypeSystemPrompts}
	return fetchList(ctx, r, "get_system_prompts", q, models.ToSystemPrompt, ErrFetchSystemPrompts)
}

// GetSystemPromptsByCategory lists prompts whose category key matches.
func (r *Repository) GetSystemPromptsByCategory(ctx context.Context, category string) ([]models.SystemPrompt, error) {
	q := cosmic.Query{
		Type:    models.TypeSystemPrompts,
		Filters: map[string]any{"metadata.category.key": category},
	}
	return fetchList(ctx, r, "get_system_prompts_by_category", q, models.ToSystemPrompt, ErrFetchSystemPromptsByCategory)
}

// GetUserImageGenerations lists the images generated by userID.
func (r *Repository) GetUserImageGenerations(ctx context.Context, userID string) ([]models.ImageGeneration, error) {
	q := cosmic.Query{
		Type:    models.TypeImageGenerations,
		Filters: map[string]any{"metadata.user": userID},
	}
	return fetchList(ctx, r, "get_user_image_generations", q, models.ToImageGeneration, ErrFetchImageGenerations)
}

// CreateConversation inserts an active conversation seeded with the user's
// first message.
func (r *Repository) CreateConversation(ctx context.Context, in NewConversation) (*models.Conversation, error) {
	now := models.Timestamp(r.now())
	insert := cosmic.Insert{
		Type:  models.TypeConversations,
		Title: in.Title,
		Metadata: map[string]any{
			"user":       in.UserID,
			"model_used": in.ModelID,
			"title":      in.Title,
			"messages": []models.ConversationMessage{{
				Role:      models.RoleUser,
				Content:   in.Message,
				Timestamp: now,
			}},
			"total_tokens":  0,
			"status":        models.StatusActive,
			"last_activity": now,
		},
	}

	start := time.Now()
	obj, err := r.store.InsertOne(ctx, insert)
	r.record("create_conversation", start, err)
	if err != nil {
		r.fail("create_conversation", err)
		return nil, ErrCreateConversation
	}

	conv, err := models.ToConversation(obj)
	if err != nil {
		r.fail("create_conversation", err)
		return nil, ErrCreateConversation
	}
	r.metrics.RecordMessageAppended(string(models.RoleUser))
	return conv, nil
}

// UpdateConversation appends msg to the conversation with the given id. It
// reads the current messages and writes the whole list back without any
// version check, so concurrent appends to one conversation can lose messages.
func (r *Repository) UpdateConversation(ctx context.Context, id string, msg NewMessage) (*models.Conversation, error) {
	start := time.Now()
	obj, err := r.store.FindOne(ctx, cosmic.Query{
		Type:  models.TypeConversations,
		ID:    id,
		Props: DefaultProps,
		Depth: DefaultDepth,
	})
	r.record("find_conversation", start, err)
	if err != nil {
		r.fail("update_conversation", err)
		return nil, ErrUpdateConversation
	}

	current, err := models.ToConversation(obj)
	if err != nil {
		r.fail("update_conversation", err)
		return nil, ErrUpdateConversation
	}

	now := models.Timestamp(r.now())
	messages := append(current.Metadata.Messages, models.ConversationMessage{
		Role:      msg.Role,
		Content:   msg.Content,
		Timestamp: now,
	})

	start = time.Now()
	obj, err = r.store.UpdateOne(ctx, id, cosmic.Update{
		Metadata: map[string]any{
			"messages":      messages,
			"last_activity": now,
		},
	})
	r.record("update_conversation", start, err)
	if err != nil {
		r.fail("update_conversation", err)
		return nil, ErrUpdateConversation
	}

	updated, err := models.ToConversation(obj)
	if err != nil {
		r.fail("update_conversation", err)
		return nil, ErrUpdateConversation
	}
	r.metrics.RecordMessageAppended(string(msg.Role))
	return updated, nil
}

func fetchList[T any](ctx context.Context, r *Repository, op string, q cosmic.Query, narrow func(*models.Object) (*T, error), fail error) ([]T, error) {
	q.Props = DefaultProps
	q.Depth = DefaultDepth

	start := time.Now()
	objects, err := r.store.Find(ctx, q)
	r.record(op, start, err)
	if err != nil {
		if cosmic.IsNotFound(err) {
			return []T{}, nil
		}
		r.fail(op, err)
		return nil, fail
	}

	out := make([]T, 0, len(objects))
	for i := range objects {
		v, err := narrow(&objects[i])
		if err != nil {
			r.fail(op, err)
			return nil, fail
		}
		out = append(out, *v)
	}
	return out, nil
}

func fetchOne[T any](ctx context.Context, r *Repository, op string, q cosmic.Query, narrow func(*models.Object) (*T, error), fail error) (*T, error) {
	q.Props = DefaultProps
	q.Depth = DefaultDepth

	start := time.Now()
	obj, err := r.store.FindOne(ctx, q)
	r.record(op, start, err)
	if err != nil {
		if cosmic.IsNotFound(err) {
			return nil, nil
		}
		r.fail(op, err)
		return nil, fail
	}

	v, err := narrow(obj)
	if err != nil {
		r.fail(op, err)
		return nil, fail
	}
	return v, nil
}

func (r *Repository) record(op string, start time.Time, err error) {
	status := middleware.StatusOK
	switch {
	case err == nil:
	case cosmic.IsNotFound(err):
		status = middleware.StatusNotFound
	default:
		status = middleware.StatusError
	}
	r.metrics.RecordStoreOperation(op, status, time.Since(start))
}

func (r *Repository) fail(op string, err error) {
	r.logger.WithError(err).WithField("operation", op).Warn("Content store operation failed")
}
