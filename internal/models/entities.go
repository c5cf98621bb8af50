package models

import (
	"encoding/json"
	"errors"
	"fmt"
)

const (
	TierFree       = "free"
	TierPro        = "pro"
	TierEnterprise = "enterprise"
)

const (
	CategoryEducation    = "education"
	CategoryCreative     = "creative"
	CategoryProfessional = "professional"
	CategoryTechnical    = "technical"
	CategoryGeneral      = "general"
)

const (
	ToneProfessional = "professional"
	ToneCasual       = "casual"
	ToneAcademic     = "academic"
	ToneCreative     = "creative"
	ToneTechnical    = "technical"
)

const (
	StatusActive   = "active"
	StatusArchived = "archived"
	StatusDeleted  = "deleted"
)

const (
	Resolution1024 = "1024"
	Resolution2048 = "2048"
	Resolution4096 = "4096"
)

const (
	StyleNatural        = "natural"
	StyleVivid          = "vivid"
	StyleArtistic       = "artistic"
	StylePhotorealistic = "photorealistic"
)

// MessageRole is who authored a conversation message.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

func (r MessageRole) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

type Preferences struct {
	DefaultModel        string `json:"default_model,omitempty"`
	Theme               string `json:"theme,omitempty"`
	Language            string `json:"language,omitempty"`
	DefaultTone         string `json:"default_tone,omitempty"`
	EnableWebSearch     bool   `json:"enable_web_search,omitempty"`
	EnableCodeExecution bool   `json:"enable_code_execution,omitempty"`
}

type UserMetadata struct {
	FullName          string       `json:"full_name"`
	Email             string       `json:"email"`
	Avatar            *Media       `json:"avatar,omitempty"`
	SubscriptionTier  SelectOption `json:"subscription_tier"`
	MonthlyTokenLimit int          `json:"monthly_token_limit,omitempty"`
	TokensUsed        int          `json:"tokens_used,omitempty"`
	ImageLimit        int          `json:"image_limit,omitempty"`
	ImagesGenerated   int          `json:"images_generated,omitempty"`
	Preferences       *Preferences `json:"preferences,omitempty"`
}

type User struct {
	Record
	Metadata UserMetadata `json:"metadata"`
}

type AIModelMetadata struct {
	ModelName       string   `json:"model_name"`
	Version         string   `json:"version"`
	Capabilities    []string `json:"capabilities"`
	ContextWindow   int      `json:"context_window"`
	MaxOutputTokens int      `json:"max_output_tokens"`
	CostPer1K       float64  `json:"cost_per_1k,omitempty"`
	IsActive        bool     `json:"is_active"`
	Description     string   `json:"description,omitempty"`
}

type AIModel struct {
	Record
	Metadata AIModelMetadata `json:"metadata"`
}

type SystemPromptMetadata struct {
	Name        string        `json:"name"`
	Category    SelectOption  `json:"category"`
	PromptText  string        `json:"prompt_text"`
	Temperature *float64      `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Tone        *SelectOption `json:"tone,omitempty"`
	IsDefault   bool          `json:"is_default,omitempty"`
}

type SystemPrompt struct {
	Record
	Metadata SystemPromptMetadata `json:"metadata"`
}

type ConversationMessage struct {
	Role      MessageRole `json:"role"`
	Content   string      `json:"content"`
	Timestamp string      `json:"timestamp"`
}

type ContextWindow struct {
	TotalMessages int `json:"total_messages"`
	ContextTokens int `json:"context_tokens"`
	MaxContext    int `json:"max_context"`
}

type ConversationMetadata struct {
	User          Ref[User]             `json:"user"`
	Title         string                `json:"title"`
	Messages      []ConversationMessage `json:"messages"`
	ModelUsed     Ref[AIModel]          `json:"model_used"`
	ContextWindow *ContextWindow        `json:"context_window,omitempty"`
	TotalTokens   int                   `json:"total_tokens"`
	Status        SelectOption          `json:"status"`
	LastActivity  string                `json:"last_activity,omitempty"`
}

type Conversation struct {
	Record
	Metadata ConversationMetadata `json:"metadata"`
}

type ImageEdit struct {
	EditType   string         `json:"edit_type"`
	Parameters map[string]any `json:"parameters,omitempty"`
	Timestamp  string         `json:"timestamp"`
}

type GenerationParams struct {
	Model         string  `json:"model,omitempty"`
	Quality       string  `json:"quality,omitempty"`
	Steps         int     `json:"steps,omitempty"`
	GuidanceScale float64 `json:"guidance_scale,omitempty"`
	Seed          int64   `json:"seed,omitempty"`
}

type ImageGenerationMetadata struct {
	User             Ref[User]         `json:"user"`
	Prompt           string            `json:"prompt"`
	GeneratedImage   Media             `json:"generated_image"`
	Resolution       SelectOption      `json:"resolution"`
	StylePreset      *SelectOption     `json:"style_preset,omitempty"`
	EditHistory      []ImageEdit       `json:"edit_history,omitempty"`
	GenerationParams *GenerationParams `json:"generation_params,omitempty"`
	IsPublic         bool              `json:"is_public,omitempty"`
}

type ImageGeneration struct {
	Record
	Metadata ImageGenerationMetadata `json:"metadata"`
}

var (
	ErrTypeMismatch = errors.New("object type mismatch")
	ErrUnknownType  = errors.New("unknown object type")
)

func IsUser(obj *Object) bool            { return obj != nil && obj.Type == TypeUsers }
func IsAIModel(obj *Object) bool         { return obj != nil && obj.Type == TypeAIModels }
func IsSystemPrompt(obj *Object) bool    { return obj != nil && obj.Type == TypeSystemPrompts }
func IsConversation(obj *Object) bool    { return obj != nil && obj.Type == TypeConversations }
func IsImageGeneration(obj *Object) bool { return obj != nil && obj.Type == TypeImageGenerations }

// narrow re-decodes the open metadata mapping into the variant's fixed field
// set once the tag has been checked.
func narrow[T any](obj *Object, want ObjectType) (*T, error) {
	if obj == nil {
		return nil, fmt.Errorf("%w: nil object", ErrTypeMismatch)
	}
	if obj.Type != want {
		return nil, fmt.Errorf("%w: want %s, got %q", ErrTypeMismatch, want, obj.Type)
	}

	raw, err := json.Marshal(obj)
	if err != nil {
		return nil, fmt.Errorf("encode %s %s: %w", want, obj.ID, err)
	}
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode %s %s: %w", want, obj.ID, err)
	}
	return &out, nil
}

func ToUser(obj *Object) (*User, error)       { return narrow[User](obj, TypeUsers) }
func ToAIModel(obj *Object) (*AIModel, error) { return narrow[AIModel](obj, TypeAIModels) }

func ToSystemPrompt(obj *Object) (*SystemPrompt, error) {
	return narrow[SystemPrompt](obj, TypeSystemPrompts)
}

func ToConversation(obj *Object) (*Conversation, error) {
	return narrow[Conversation](obj, TypeConversations)
}

func ToImageGeneration(obj *Object) (*ImageGeneration, error) {
	return narrow[ImageGeneration](obj, TypeImageGenerations)
}

// Narrow returns the typed variant selected by obj.Type.
func Narrow(obj *Object) (any, error) {
	if obj == nil {
		return nil, fmt.Errorf("%w: nil object", ErrUnknownType)
	}
	switch obj.Type {
	case TypeUsers:
		return ToUser(obj)
	case TypeAIModels:
		return ToAIModel(obj)
	case TypeSystemPrompts:
		return ToSystemPrompt(obj)
	case TypeConversations:
		return ToConversation(obj)
	case TypeImageGenerations:
		return ToImageGeneration(obj)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, obj.Type)
	}
}
