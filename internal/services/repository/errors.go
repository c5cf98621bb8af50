package repository

import "errors"

// One fixed error per operation. The store's cause is logged and dropped, so
// callers can only tell which operation failed.
var (
	ErrFetchUsers                   = errors.New("failed to fetch users")
	ErrFetchUser                    = errors.New("failed to fetch user")
	ErrFetchConversations           = errors.New("failed to fetch conversations")
	ErrFetchConversation            = errors.New("failed to fetch conversation")
	ErrFetchAIModels                = errors.New("failed to fetch AI models")
	ErrFetchActiveAIModels          = errors.New("failed to fetch active AI models")
	ErrFetchSystemPrompts           = errors.New("failed to fetch system prompts")
	ErrFetchSystemPromptsByCategory = errors.New("failed to fetch system prompts by category")
	ErrFetchImageGenerations        = errors.New("failed to fetch image generations")
	ErrCreateConversation           = errors.New("failed to create conversation")
	ErrUpdateConversation           = errors.New("failed to update conversation")
)
