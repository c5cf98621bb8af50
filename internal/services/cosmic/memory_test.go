package cosmic

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/ai-pro-cosmic-go/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seededStore(t *testing.T) *MemoryStore {
	t.Helper()
	store := NewMemoryStore()
	require.NoError(t, store.Seed(
		models.Object{ID: "u1", Type: models.TypeUsers, Title: "Ada", Metadata: map[string]any{"full_name": "Ada Lovelace"}},
		models.Object{ID: "m1", Type: models.TypeAIModels, Title: "Nova", Metadata: map[string]any{"model_name": "Nova", "is_active": true}},
		models.Object{ID: "m2", Type: models.TypeAIModels, Title: "Legacy", Metadata: map[string]any{"model_name": "Legacy", "is_active": false}},
		models.Object{ID: "p1", Type: models.TypeSystemPrompts, Title: "Story", Metadata: map[string]any{"category": map[string]any{"key": "creative", "value": "Creative"}}},
		models.Object{ID: "p2", Type: models.TypeSystemPrompts, Title: "Debug", Metadata: map[string]any{"category": "technical"}},
		models.Object{ID: "p3", Type: models.TypeSystemPrompts, Title: "Poem", Metadata: map[string]any{"category": "creative"}},
		models.Object{ID: "c1", Type: models.TypeConversations, Title: "Hello", Metadata: map[string]any{"user": "u1", "model_used": "m1", "messages": []any{}}},
	))
	return store
}

func TestMemoryStoreFindByType(t *testing.T) {
	store := seededStore(t)

	objects, err := store.Find(context.Background(), Query{Type: models.TypeAIModels})
	require.NoError(t, err)
	assert.Len(t, objects, 2)
	assert.Equal(t, "m1", objects[0].ID)
}

func TestMemoryStoreFiltersOnDottedPaths(t *testing.T) {
	store := seededStore(t)
	ctx := context.Background()

	active, err := store.Find(ctx, Query{Type: models.TypeAIModels, Filters: map[string]any{"metadata.is_active": true}})
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "m1", active[0].ID)

	creative, err := store.Find(ctx, Query{Type: models.TypeSystemPrompts, Filters: map[string]any{"metadata.category.key": "creative"}})
	require.NoError(t, err)
	ids := []string{creative[0].ID, creative[1].ID}
	assert.ElementsMatch(t, []string{"p1", "p3"}, ids)

	owned, err := store.Find(ctx, Query{Type: models.TypeConversations, Filters: map[string]any{"metadata.user": "u1"}})
	require.NoError(t, err)
	assert.Len(t, owned, 1)
}

func TestMemoryStoreEmptyResultIsNotFound(t *testing.T) {
	store := seededStore(t)

	_, err := store.Find(context.Background(), Query{Type: models.TypeImageGenerations})
	assert.True(t, IsNotFound(err))

	_, err = store.FindOne(context.Background(), Query{Type: models.TypeUsers, Slug: "nobody"})
	assert.True(t, IsNotFound(err))
}

func TestMemoryStoreExpandsReferencesAtDepthOne(t *testing.T) {
	store := seededStore(t)
	ctx := context.Background()

	shallow, err := store.FindOne(ctx, Query{Type: models.TypeConversations, ID: "c1"})
	require.NoError(t, err)
	assert.Equal(t, "u1", shallow.Metadata["user"])

	deep, err := store.FindOne(ctx, Query{Type: models.TypeConversations, ID: "c1", Depth: 1})
	require.NoError(t, err)
	user, ok := deep.Metadata["user"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "u1", user["id"])
	assert.Equal(t, "users", user["type"])
}

func TestMemoryStoreProjection(t *testing.T) {
	store := seededStore(t)

	obj, err := store.FindOne(context.Background(), Query{Type: models.TypeUsers, ID: "u1", Props: []string{"id", "slug"}})
	require.NoError(t, err)
	assert.Equal(t, "u1", obj.ID)
	assert.Equal(t, "ada", obj.Slug)
	assert.Empty(t, obj.Title)
	assert.Nil(t, obj.Metadata)
	assert.Equal(t, models.TypeUsers, obj.Type)
}

func TestMemoryStoreInsertAssignsIdentity(t *testing.T) {
	store := seededStore(t)
	ctx := context.Background()

	first, err := store.InsertOne(ctx, Insert{Type: models.TypeConversations, Title: "Hello", Metadata: map[string]any{"total_tokens": 0}})
	require.NoError(t, err)
	assert.NotEmpty(t, first.ID)
	assert.Equal(t, "hello-2", first.Slug)
	assert.NotEmpty(t, first.CreatedAt)
	assert.Equal(t, float64(0), first.Metadata["total_tokens"])

	_, err = store.InsertOne(ctx, Insert{Type: models.TypeConversations})
	status, ok := HasStatus(err)
	assert.True(t, ok)
	assert.Equal(t, 400, status)
}

func TestMemoryStoreUpdateMergesMetadata(t *testing.T) {
	store := seededStore(t)
	ctx := context.Background()

	updated, err := store.UpdateOne(ctx, "c1", Update{Metadata: map[string]any{"last_activity": "2024-01-01T00:00:00.000Z"}})
	require.NoError(t, err)
	assert.Equal(t, "u1", updated.Metadata["user"])
	assert.Equal(t, "2024-01-01T00:00:00.000Z", updated.Metadata["last_activity"])

	_, err = store.UpdateOne(ctx, "missing", Update{})
	assert.True(t, IsNotFound(err))
}

func TestMemoryStoreLoadFixtures(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fixtures.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
objects:
  - id: u9
    type: users
    title: Grace Hopper
    metadata:
      full_name: Grace Hopper
      subscription_tier: enterprise
  - type: ai-models
    title: Nova Pro
    metadata:
      model_name: Nova Pro
      is_active: true
      context_window: 200000
`), 0o644))

	store := NewMemoryStore()
	n, err := store.LoadFixtures(path)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	user, err := store.FindOne(context.Background(), Query{Type: models.TypeUsers, Slug: "grace-hopper"})
	require.NoError(t, err)
	assert.Equal(t, "u9", user.ID)

	model, err := store.FindOne(context.Background(), Query{Type: models.TypeAIModels, Filters: map[string]any{"metadata.context_window": 200000}})
	require.NoError(t, err)
	assert.Equal(t, "nova-pro", model.Slug)
}

func TestSlugify(t *testing.T) {
	assert.Equal(t, "hello-world", slugify("Hello, World!"))
	assert.Equal(t, "a-b", slugify("  a -- b  "))
	assert.Equal(t, "", slugify("!!!"))
}
