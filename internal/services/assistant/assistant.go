package assistant

import (
	"context"
	"fmt"
	"time"

	"github.com/ai-pro-cosmic-go/internal/config"
	"github.com/ai-pro-cosmic-go/internal/models"
	"github.com/sirupsen/logrus"
)

// Request is what a provider sees: the chosen model, the optional system
// prompt text and the conversation so far, oldest first.
type Request struct {
	Model        string
	SystemPrompt string
	History      []models.ConversationMessage
}

// Responder produces the assistant's next message.
type Responder interface {
	Reply(ctx context.Context, req Request) (string, error)
	Name() string
}

// New creates the responder named by cfg.Provider.
func New(cfg *config.AssistantConfig, logger *logrus.Logger) (Responder, error) {
	switch cfg.Provider {
	case "demo", "":
		return NewDemoResponder(cfg.ReplyDelay, cfg.ReplyText), nil
	case "endpoint":
		return NewEndpointResponder(&cfg.Endpoint, logger), nil
	default:
		return nil, fmt.Errorf("unsupported assistant provider: %s", cfg.Provider)
	}
}

// DemoResponder answers every request with the same text after a fixed delay.
type DemoResponder struct {
	delay time.Duration
	text  string
}

// NewDemoResponder answers with text after delay. An empty text uses the
// default demo reply.
func NewDemoResponder(delay time.Duration, text string) *DemoResponder {
	if text == "" {
		text = config.DefaultDemoReply
	}
	return &DemoResponder{delay: delay, text: text}
}

func (d *DemoResponder) Name() string { return "demo" }

// Reply waits for the configured delay unless ctx is done first.
func (d *DemoResponder) Reply(ctx context.Context, req Request) (string, error) {
	if d.delay <= 0 {
		return d.text, nil
	}

	timer := time.NewTimer(d.delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-timer.C:
		return d.text, nil
	}
}
