package cosmic

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/ai-pro-cosmic-go/internal/config"
	"github.com/ai-pro-cosmic-go/internal/models"
	"github.com/sirupsen/logrus"
)

// Store is the contract consumed from the remote content store.
type Store interface {
	Find(ctx context.Context, q Query) ([]models.Object, error)
	FindOne(ctx context.Context, q Query) (*models.Object, error)
	InsertOne(ctx context.Context, in Insert) (*models.Object, error)
	UpdateOne(ctx context.Context, id string, patch Update) (*models.Object, error)
}

// Query selects objects of one type by exact-match filters. Filter keys are
// dotted paths such as "metadata.user" or "metadata.category.key".
type Query struct {
	Type    models.ObjectType
	ID      string
	Slug    string
	Filters map[string]any
	Props   []string
	Depth   int
}

type Insert struct {
	Type     models.ObjectType `json:"type"`
	Title    string            `json:"title"`
	Slug     string            `json:"slug,omitempty"`
	Content  string            `json:"content,omitempty"`
	Metadata map[string]any    `json:"metadata"`
}

// Update is merged into the stored object; metadata keys replace existing
// keys one level deep.
type Update struct {
	Title    string         `json:"title,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// ErrMissingConfig is returned on first use when the bucket slug or a key
// needed by the call is not configured.
var ErrMissingConfig = errors.New("cosmic: missing bucket configuration")

// StatusError is a non-2xx answer from the store.
type StatusError struct {
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("cosmic: status %d: %s", e.Status, e.Message)
}

// HasStatus reports whether err carries a store status code and returns it.
func HasStatus(err error) (int, bool) {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Status, true
	}
	return 0, false
}

// IsNotFound reports whether the store signalled that nothing matched.
func IsNotFound(err error) bool {
	status, ok := HasStatus(err)
	return ok && status == http.StatusNotFound
}

func notFound(msg string) error {
	return &StatusError{Status: http.StatusNotFound, Message: msg}
}

// NewStore selects the backend named by cfg.Backend.
func NewStore(cfg *config.CosmicConfig, logger *logrus.Logger) (Store, error) {
	switch cfg.Backend {
	case "remote", "":
		return NewClient(cfg, logger), nil
	case "memory":
		store := NewMemoryStore()
		if cfg.Fixtures != "" {
			n, err := store.LoadFixtures(cfg.Fixtures)
			if err != nil {
				return nil, fmt.Errorf("failed to load fixtures: %w", err)
			}
			logger.WithFields(logrus.Fields{
				"path":    cfg.Fixtures,
				"objects": n,
			}).Info("Memory store seeded")
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported cosmic backend: %s", cfg.Backend)
	}
}
