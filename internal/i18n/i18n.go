package i18n

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/ai-pro-cosmic-go/internal/config"
	"github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
)

// Localizer manages internationalization
type Localizer struct {
	bundle          *i18n.Bundle
	defaultLanguage string
	localizers      map[string]*i18n.Localizer
	matcher         language.Matcher
	tags            []string
}

// NewLocalizer creates a new localizer
func NewLocalizer(cfg *config.I18nConfig) (*Localizer, error) {
	defaultTag, err := language.Parse(cfg.DefaultLanguage)
	if err != nil {
		return nil, fmt.Errorf("invalid default language %q: %w", cfg.DefaultLanguage, err)
	}

	bundle := i18n.NewBundle(defaultTag)
	bundle.RegisterUnmarshalFunc("json", json.Unmarshal)

	dir := cfg.Directory
	if dir == "" {
		dir = "configs/i18n"
	}

	// The default language comes first so the matcher falls back to it.
	langs := []string{cfg.DefaultLanguage}
	for _, lang := range cfg.Languages {
		if lang != cfg.DefaultLanguage {
			langs = append(langs, lang)
		}
	}

	localizers := make(map[string]*i18n.Localizer)
	tags := make([]language.Tag, 0, len(langs))
	for _, lang := range langs {
		if _, err := bundle.LoadMessageFile(filepath.Join(dir, lang+".json")); err != nil {
			return nil, fmt.Errorf("failed to load language file %s: %w", lang, err)
		}
		localizers[lang] = i18n.NewLocalizer(bundle, lang)
		tags = append(tags, language.Make(lang))
	}

	return &Localizer{
		bundle:          bundle,
		defaultLanguage: cfg.DefaultLanguage,
		localizers:      localizers,
		matcher:         language.NewMatcher(tags),
		tags:            langs,
	}, nil
}

// Match picks the best loaded language for an Accept-Language header.
func (l *Localizer) Match(acceptLanguage string) string {
	prefs, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(prefs) == 0 {
		return l.defaultLanguage
	}
	_, index, confidence := l.matcher.Match(prefs...)
	if confidence == language.No {
		return l.defaultLanguage
	}
	return l.tags[index]
}

// Get returns localized message
func (l *Localizer) Get(lang, messageID string, data map[string]interface{}) string {
	localizer, exists := l.localizers[lang]
	if !exists {
		localizer = l.localizers[l.defaultLanguage]
	}

	msg, err := localizer.Localize(&i18n.LocalizeConfig{
		MessageID:    messageID,
		TemplateData: data,
	})
	if err != nil {
		return messageID // Fallback to message ID
	}

	return msg
}

// Message IDs
const (
	MsgFetchUsers                   = "fetch_users_failed"
	MsgFetchUser                    = "fetch_user_failed"
	MsgFetchConversations           = "fetch_conversations_failed"
	MsgFetchConversation            = "fetch_conversation_failed"
	MsgFetchAIModels                = "fetch_ai_models_failed"
	MsgFetchActiveAIModels          = "fetch_active_ai_models_failed"
	MsgFetchSystemPrompts           = "fetch_system_prompts_failed"
	MsgFetchSystemPromptsByCategory = "fetch_system_prompts_by_category_failed"
	MsgFetchImageGenerations        = "fetch_image_generations_failed"
	MsgCreateConversation           = "create_conversation_failed"
	MsgUpdateConversation           = "update_conversation_failed"
	MsgNotFound                     = "not_found"
	MsgInvalidBody                  = "invalid_body"
	MsgBodyTooLarge                 = "body_too_large"
	MsgMissingField                 = "missing_field"
	MsgEmptyMessage                 = "empty_message"
	MsgMessageTooLong               = "message_too_long"
	MsgInvalidRole                  = "invalid_role"
	MsgRateLimitExceeded            = "rate_limit_exceeded"
	MsgAssistantFailed              = "assistant_failed"
	MsgError                        = "error"
)
