package pages

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ai-pro-cosmic-go/internal/middleware"
	"github.com/ai-pro-cosmic-go/internal/models"
	"github.com/ai-pro-cosmic-go/internal/services/cache"
	"github.com/ai-pro-cosmic-go/internal/services/repository"
	"github.com/ai-pro-cosmic-go/pkg/markdown"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// ErrNotFound is returned when the record a page is built around is absent.
var ErrNotFound = errors.New("page not found")

// Page names, also used as cache keys and metric labels.
const (
	PageHome    = "home"
	PageNewChat = "new_chat"
	PageChat    = "chat"
	PageGallery = "gallery"
)

type HomePage struct {
	User    *models.User          `json:"user"`
	Models  []models.AIModel      `json:"models"`
	Prompts []models.SystemPrompt `json:"prompts"`
}

type NewChatPage struct {
	User            *models.User          `json:"user"`
	Models          []models.AIModel      `json:"models"`
	Prompts         []models.SystemPrompt `json:"prompts"`
	DefaultModelID  string                `json:"default_model_id,omitempty"`
	DefaultPromptID string                `json:"default_prompt_id,omitempty"`
}

// RenderedMessage carries the message with its content rendered as HTML.
type RenderedMessage struct {
	models.ConversationMessage
	HTML string `json:"html"`
}

type ChatPage struct {
	Conversation *models.Conversation `json:"conversation"`
	Messages     []RenderedMessage    `json:"messages"`
	Models       []models.AIModel     `json:"models"`
	User         *models.User         `json:"user"`
}

type GalleryPage struct {
	User   *models.User             `json:"user"`
	Images []models.ImageGeneration `json:"images"`
}

// Loader assembles page payloads. Any repository error fails the whole page.
type Loader struct {
	repo    *repository.Repository
	cache   cache.Service
	metrics *middleware.Metrics
	logger  *logrus.Logger
}

// NewLoader creates a page loader. metrics may be nil.
func NewLoader(repo *repository.Repository, cache cache.Service, metrics *middleware.Metrics, logger *logrus.Logger) *Loader {
	return &Loader{
		repo:    repo,
		cache:   cache,
		metrics: metrics,
		logger:  logger,
	}
}

// Home loads the landing page: the current user, active models and prompts.
func (l *Loader) Home(ctx context.Context) (*HomePage, error) {
	return cached(ctx, l, PageHome, func(ctx context.Context) (*HomePage, error) {
		var (
			page  HomePage
			users []models.User
		)
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() (err error) {
			users, err = l.repo.GetUsers(gctx)
			return err
		})
		g.Go(func() (err error) {
			page.Models, err = l.repo.GetActiveAIModels(gctx)
			return err
		})
		g.Go(func() (err error) {
			page.Prompts, err = l.repo.GetSystemPrompts(gctx)
			return err
		})
		if err := g.Wait(); err != nil {
			return nil, err
		}
		page.User = first(users)
		return &page, nil
	})
}

// NewChat loads the new-chat form with its default model and prompt.
func (l *Loader) NewChat(ctx context.Context) (*NewChatPage, error) {
	return cached(ctx, l, PageNewChat, func(ctx context.Context) (*NewChatPage, error) {
		var (
			page  NewChatPage
			users []models.User
		)
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() (err error) {
			page.Models, err = l.repo.GetActiveAIModels(gctx)
			return err
		})
		g.Go(func() (err error) {
			page.Prompts, err = l.repo.GetSystemPrompts(gctx)
			return err
		})
		g.Go(func() (err error) {
			users, err = l.repo.GetUsers(gctx)
			return err
		})
		if err := g.Wait(); err != nil {
			return nil, err
		}

		page.User = first(users)
		if len(page.Models) > 0 {
			page.DefaultModelID = page.Models[0].ID
		}
		for _, p := range page.Prompts {
			if p.Metadata.IsDefault {
				page.DefaultPromptID = p.ID
				break
			}
		}
		return &page, nil
	})
}

// Chat is never cached; a missing conversation yields ErrNotFound.
func (l *Loader) Chat(ctx context.Context, slug string) (*ChatPage, error) {
	var (
		page  ChatPage
		users []models.User
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		page.Conversation, err = l.repo.GetConversation(gctx, slug)
		return err
	})
	g.Go(func() (err error) {
		page.Models, err = l.repo.GetActiveAIModels(gctx)
		return err
	})
	g.Go(func() (err error) {
		users, err = l.repo.GetUsers(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if page.Conversation == nil {
		return nil, ErrNotFound
	}

	page.User = first(users)
	page.Messages = make([]RenderedMessage, 0, len(page.Conversation.Metadata.Messages))
	for _, msg := range page.Conversation.Metadata.Messages {
		page.Messages = append(page.Messages, RenderedMessage{
			ConversationMessage: msg,
			HTML:                markdown.ToHTML(msg.Content),
		})
	}
	return &page, nil
}

// Gallery loads the current user's generated images.
func (l *Loader) Gallery(ctx context.Context) (*GalleryPage, error) {
	return cached(ctx, l, PageGallery, func(ctx context.Context) (*GalleryPage, error) {
		users, err := l.repo.GetUsers(ctx)
		if err != nil {
			return nil, err
		}

		page := GalleryPage{User: first(users), Images: []models.ImageGeneration{}}
		if page.User != nil {
			page.Images, err = l.repo.GetUserImageGenerations(ctx, page.User.ID)
			if err != nil {
				return nil, err
			}
		}
		return &page, nil
	})
}

// Purge drops every cached page so the next load reads the store again.
func (l *Loader) Purge(ctx context.Context) error {
	if err := l.cache.Clear(ctx); err != nil {
		return fmt.Errorf("failed to purge page cache: %w", err)
	}
	l.logger.Info("Page cache purged")
	return nil
}

// cached serves page from the cache or builds it with load. Failed loads
// are not stored.
func cached[T any](ctx context.Context, l *Loader, page string, load func(context.Context) (*T, error)) (*T, error) {
	key := "page:" + page
	if data, ok := l.cache.Get(ctx, key); ok {
		var v T
		if err := json.Unmarshal(data, &v); err == nil {
			l.metrics.RecordCacheHit(page)
			return &v, nil
		}
		l.logger.WithField("page", page).Warn("Discarding unreadable cache entry")
	}
	l.metrics.RecordCacheMiss(page)

	v, err := load(ctx)
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(v)
	if err != nil {
		l.logger.WithError(err).WithField("page", page).Warn("Failed to encode page for cache")
		return v, nil
	}
	if err := l.cache.Set(ctx, key, data); err != nil {
		l.logger.WithError(err).WithField("page", page).Warn("Failed to cache page")
	}
	return v, nil
}

func first(users []models.User) *models.User {
	if len(users) == 0 {
		return nil
	}
	u := users[0]
	return &u
}
