package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/ai-pro-cosmic-go/internal/i18n"
	"github.com/ai-pro-cosmic-go/internal/middleware"
	"github.com/ai-pro-cosmic-go/internal/models"
	"github.com/ai-pro-cosmic-go/internal/services/chat"
	"github.com/ai-pro-cosmic-go/internal/services/pages"
	"github.com/ai-pro-cosmic-go/internal/services/repository"
	"github.com/ai-pro-cosmic-go/pkg/logger"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// Error types in response bodies.
const (
	errTypeNotFound    = "not_found"
	errTypeBadRequest  = "bad_request"
	errTypeTooLarge    = "request_too_large"
	errTypeRateLimited = "rate_limited"
	errTypeUpstream    = "upstream_error"
	errTypeInternal    = "internal_error"
)

var repositoryMessages = map[error]string{
	repository.ErrFetchUsers:                   i18n.MsgFetchUsers,
	repository.ErrFetchUser:                    i18n.MsgFetchUser,
	repository.ErrFetchConversations:           i18n.MsgFetchConversations,
	repository.ErrFetchConversation:            i18n.MsgFetchConversation,
	repository.ErrFetchAIModels:                i18n.MsgFetchAIModels,
	repository.ErrFetchActiveAIModels:          i18n.MsgFetchActiveAIModels,
	repository.ErrFetchSystemPrompts:           i18n.MsgFetchSystemPrompts,
	repository.ErrFetchSystemPromptsByCategory: i18n.MsgFetchSystemPromptsByCategory,
	repository.ErrFetchImageGenerations:        i18n.MsgFetchImageGenerations,
	repository.ErrCreateConversation:           i18n.MsgCreateConversation,
	repository.ErrUpdateConversation:           i18n.MsgUpdateConversation,
}

// APIHandler serves the JSON API consumed by the view layer.
type APIHandler struct {
	repo        *repository.Repository
	pages       *pages.Loader
	chat        *chat.Service
	rateLimiter middleware.RateLimiter
	security    *middleware.SecurityMiddleware
	localizer   *i18n.Localizer
	metrics     *middleware.Metrics
	logger      *logrus.Logger
}

// NewAPIHandler creates a new API handler
func NewAPIHandler(
	repo *repository.Repository,
	pageLoader *pages.Loader,
	chatService *chat.Service,
	rateLimiter middleware.RateLimiter,
	localizer *i18n.Localizer,
	metrics *middleware.Metrics,
	logger *logrus.Logger,
) *APIHandler {
	return &APIHandler{
		repo:        repo,
		pages:       pageLoader,
		chat:        chatService,
		rateLimiter: rateLimiter,
		security:    middleware.NewSecurityMiddleware(logger),
		localizer:   localizer,
		metrics:     metrics,
		logger:      logger,
	}
}

// Router builds the route table.
func (h *APIHandler) Router() *mux.Router {
	router := mux.NewRouter()
	router.Use(h.requestLogger, middleware.HTTPMetrics(h.metrics))

	router.HandleFunc("/health", h.health).Methods(http.MethodGet)

	api := router.PathPrefix("/api").Subrouter()
	api.Use(middleware.RateLimit(h.rateLimiter, h.metrics, h.rateLimited))

	api.HandleFunc("/pages/home", h.homePage).Methods(http.MethodGet)
	api.HandleFunc("/pages/chat/new", h.newChatPage).Methods(http.MethodGet)
	api.HandleFunc("/pages/chat/{slug}", h.chatPage).Methods(http.MethodGet)
	api.HandleFunc("/pages/gallery", h.galleryPage).Methods(http.MethodGet)

	api.HandleFunc("/users", h.listUsers).Methods(http.MethodGet)
	api.HandleFunc("/users/{slug}", h.getUser).Methods(http.MethodGet)
	api.HandleFunc("/users/{id}/conversations", h.userConversations).Methods(http.MethodGet)
	api.HandleFunc("/users/{id}/image-generations", h.userImageGenerations).Methods(http.MethodGet)

	api.HandleFunc("/models", h.listModels).Methods(http.MethodGet)
	api.HandleFunc("/prompts", h.listPrompts).Methods(http.MethodGet)

	api.HandleFunc("/conversations", h.createConversation).Methods(http.MethodPost)
	api.HandleFunc("/conversations/{slug}", h.getConversation).Methods(http.MethodGet)
	api.HandleFunc("/conversations/{id}/messages", h.appendMessage).Methods(http.MethodPost)

	api.HandleFunc("/chat", h.startChat).Methods(http.MethodPost)
	api.HandleFunc("/chat/{id}/messages", h.sendChatMessage).Methods(http.MethodPost)

	return router
}

func (h *APIHandler) health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (h *APIHandler) homePage(w http.ResponseWriter, r *http.Request) {
	page, err := h.pages.Home(r.Context())
	h.respond(w, r, http.StatusOK, page, err)
}

func (h *APIHandler) newChatPage(w http.ResponseWriter, r *http.Request) {
	page, err := h.pages.NewChat(r.Context())
	h.respond(w, r, http.StatusOK, page, err)
}

func (h *APIHandler) chatPage(w http.ResponseWriter, r *http.Request) {
	page, err := h.pages.Chat(r.Context(), mux.Vars(r)["slug"])
	if errors.Is(err, pages.ErrNotFound) {
		h.notFound(w, r, "Conversation")
		return
	}
	h.respond(w, r, http.StatusOK, page, err)
}

func (h *APIHandler) galleryPage(w http.ResponseWriter, r *http.Request) {
	page, err := h.pages.Gallery(r.Context())
	h.respond(w, r, http.StatusOK, page, err)
}

func (h *APIHandler) listUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.repo.GetUsers(r.Context())
	h.respond(w, r, http.StatusOK, users, err)
}

func (h *APIHandler) getUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.repo.GetUser(r.Context(), mux.Vars(r)["slug"])
	if err == nil && user == nil {
		h.notFound(w, r, "User")
		return
	}
	h.respond(w, r, http.StatusOK, user, err)
}

func (h *APIHandler) userConversations(w http.ResponseWriter, r *http.Request) {
	convs, err := h.repo.GetUserConversations(r.Context(), mux.Vars(r)["id"])
	h.respond(w, r, http.StatusOK, convs, err)
}

func (h *APIHandler) userImageGenerations(w http.ResponseWriter, r *http.Request) {
	images, err := h.repo.GetUserImageGenerations(r.Context(), mux.Vars(r)["id"])
	h.respond(w, r, http.StatusOK, images, err)
}

func (h *APIHandler) listModels(w http.ResponseWriter, r *http.Request) {
	var (
		aiModels []models.AIModel
		err      error
	)
	if r.URL.Query().Get("active") == "true" {
		aiModels, err = h.repo.GetActiveAIModels(r.Context())
	} else {
		aiModels, err = h.repo.GetAIModels(r.Context())
	}
	h.respond(w, r, http.StatusOK, aiModels, err)
}

func (h *APIHandler) listPrompts(w http.ResponseWriter, r *http.Request) {
	var (
		prompts []models.SystemPrompt
		err     error
	)
	if category := r.URL.Query().Get("category"); category != "" {
		prompts, err = h.repo.GetSystemPromptsByCategory(r.Context(), category)
	} else {
		prompts, err = h.repo.GetSystemPrompts(r.Context())
	}
	h.respond(w, r, http.StatusOK, prompts, err)
}

func (h *APIHandler) getConversation(w http.ResponseWriter, r *http.Request) {
	conv, err := h.repo.GetConversation(r.Context(), mux.Vars(r)["slug"])
	if err == nil && conv == nil {
		h.notFound(w, r, "Conversation")
		return
	}
	h.respond(w, r, http.StatusOK, conv, err)
}

type createConversationRequest struct {
	UserID  string `json:"user_id"`
	ModelID string `json:"model_id"`
	Title   string `json:"title"`
	Message string `json:"message"`
}

func (h *APIHandler) createConversation(w http.ResponseWriter, r *http.Request) {
	var req createConversationRequest
	if !h.decode(w, r, &req) {
		return
	}
	if !h.require(w, r, field{"user_id", req.UserID}, field{"model_id", req.ModelID}, field{"title", req.Title}) ||
		!h.validMessage(w, r, req.Message) {
		return
	}

	conv, err := h.repo.CreateConversation(r.Context(), repository.NewConversation{
		UserID:  req.UserID,
		ModelID: req.ModelID,
		Title:   req.Title,
		Message: req.Message,
	})
	h.respond(w, r, http.StatusCreated, conv, err)
}

type appendMessageRequest struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func (h *APIHandler) appendMessage(w http.ResponseWriter, r *http.Request) {
	var req appendMessageRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.security.ValidateRole(req.Role); err != nil {
		h.writeError(w, r, http.StatusBadRequest, errTypeBadRequest, i18n.MsgInvalidRole, nil)
		return
	}
	if !h.validMessage(w, r, req.Content) {
		return
	}

	conv, err := h.repo.UpdateConversation(r.Context(), mux.Vars(r)["id"], repository.NewMessage{
		Role:    models.MessageRole(req.Role),
		Content: req.Content,
	})
	h.respond(w, r, http.StatusOK, conv, err)
}

type startChatRequest struct {
	UserID   string `json:"user_id"`
	ModelID  string `json:"model_id"`
	PromptID string `json:"prompt_id"`
	Title    string `json:"title"`
	Message  string `json:"message"`
}

func (h *APIHandler) startChat(w http.ResponseWriter, r *http.Request) {
	var req startChatRequest
	if !h.decode(w, r, &req) {
		return
	}
	if !h.require(w, r, field{"user_id", req.UserID}, field{"model_id", req.ModelID}) ||
		!h.validMessage(w, r, req.Message) {
		return
	}

	conv, err := h.chat.StartConversation(r.Context(), chat.StartRequest{
		UserID:   req.UserID,
		ModelID:  req.ModelID,
		PromptID: req.PromptID,
		Title:    req.Title,
		Message:  req.Message,
	})
	h.respond(w, r, http.StatusCreated, conv, err)
}

type sendMessageRequest struct {
	Content string `json:"content"`
}

func (h *APIHandler) sendChatMessage(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if !h.decode(w, r, &req) {
		return
	}
	if !h.validMessage(w, r, req.Content) {
		return
	}

	conv, err := h.chat.SendMessage(r.Context(), mux.Vars(r)["id"], req.Content)
	h.respond(w, r, http.StatusOK, conv, err)
}

// maxBodyBytes leaves room for a maximal message with every byte escaped.
const maxBodyBytes = 8 * middleware.MaxMessageLength

func (h *APIHandler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeError(w, r, http.StatusRequestEntityTooLarge, errTypeTooLarge, i18n.MsgBodyTooLarge, map[string]interface{}{"Limit": maxBodyBytes})
			return false
		}
		h.writeError(w, r, http.StatusBadRequest, errTypeBadRequest, i18n.MsgInvalidBody, nil)
		return false
	}
	return true
}

type field struct {
	name  string
	value string
}

func (h *APIHandler) require(w http.ResponseWriter, r *http.Request, fields ...field) bool {
	for _, f := range fields {
		if strings.TrimSpace(f.value) == "" {
			h.writeError(w, r, http.StatusBadRequest, errTypeBadRequest, i18n.MsgMissingField, map[string]interface{}{"Field": f.name})
			return false
		}
	}
	return true
}

func (h *APIHandler) validMessage(w http.ResponseWriter, r *http.Request, content string) bool {
	if strings.TrimSpace(content) == "" {
		h.writeError(w, r, http.StatusBadRequest, errTypeBadRequest, i18n.MsgEmptyMessage, nil)
		return false
	}
	if err := h.security.ValidateInput(content); err != nil {
		h.writeError(w, r, http.StatusBadRequest, errTypeBadRequest, i18n.MsgMessageTooLong, map[string]interface{}{
			"Length": len(content),
			"Limit":  middleware.MaxMessageLength,
		})
		return false
	}
	return true
}

// respond writes body, or maps err onto a localized error response.
func (h *APIHandler) respond(w http.ResponseWriter, r *http.Request, status int, body any, err error) {
	if err == nil {
		writeJSON(w, status, body)
		return
	}

	for sentinel, msgID := range repositoryMessages {
		if errors.Is(err, sentinel) {
			h.writeError(w, r, http.StatusInternalServerError, errTypeInternal, msgID, nil)
			return
		}
	}

	switch {
	case errors.Is(err, chat.ErrConversationNotFound):
		h.notFound(w, r, "Conversation")
	case errors.Is(err, chat.ErrEmptyMessage):
		h.writeError(w, r, http.StatusBadRequest, errTypeBadRequest, i18n.MsgEmptyMessage, nil)
	case errors.Is(err, chat.ErrAssistantReply):
		h.writeError(w, r, http.StatusBadGateway, errTypeUpstream, i18n.MsgAssistantFailed, nil)
	default:
		h.logger.WithError(err).WithField("path", r.URL.Path).Error("Unhandled API error")
		h.writeError(w, r, http.StatusInternalServerError, errTypeInternal, i18n.MsgError, nil)
	}
}

func (h *APIHandler) notFound(w http.ResponseWriter, r *http.Request, resource string) {
	h.writeError(w, r, http.StatusNotFound, errTypeNotFound, i18n.MsgNotFound, map[string]interface{}{"Resource": resource})
}

func (h *APIHandler) rateLimited(w http.ResponseWriter, r *http.Request) {
	h.writeError(w, r, http.StatusTooManyRequests, errTypeRateLimited, i18n.MsgRateLimitExceeded, nil)
}

type errorBody struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

func (h *APIHandler) writeError(w http.ResponseWriter, r *http.Request, status int, errType, msgID string, data map[string]interface{}) {
	lang := h.localizer.Match(r.Header.Get("Accept-Language"))

	var body errorBody
	body.Error.Type = errType
	body.Error.Message = h.localizer.Get(lang, msgID, data)
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// requestLogger tags each request with an id and logs its outcome.
func (h *APIHandler) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)

		start := time.Now()
		next.ServeHTTP(w, r)

		logger.WithRequest(h.logger, requestID, r.Method, r.URL.Path).
			WithField("duration", time.Since(start)).
			Debug("Request served")
	})
}
