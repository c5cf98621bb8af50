package cosmic

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/ai-pro-cosmic-go/internal/models"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// MemoryStore keeps objects in process and answers queries the way the
// remote store does: 404 on empty results, depth-1 reference expansion and
// shallow metadata merges. Each call is atomic; nothing spans calls.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]*models.Object
	order   []string
	now     func() time.Time
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		objects: make(map[string]*models.Object),
		now:     time.Now,
	}
}

// Seed stores copies of objs, filling in id, slug and timestamps when absent.
func (m *MemoryStore) Seed(objs ...models.Object) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, obj := range objs {
		stored, err := clone(&obj)
		if err != nil {
			return err
		}
		if stored.ID == "" {
			stored.ID = uuid.NewString()
		}
		if stored.Slug == "" {
			stored.Slug = m.uniqueSlug(stored.Type, stored.Title)
		}
		now := models.Timestamp(m.now())
		if stored.CreatedAt == "" {
			stored.CreatedAt = now
		}
		if stored.ModifiedAt == "" {
			stored.ModifiedAt = stored.CreatedAt
		}
		if stored.Metadata == nil {
			stored.Metadata = map[string]any{}
		}
		if _, exists := m.objects[stored.ID]; !exists {
			m.order = append(m.order, stored.ID)
		}
		m.objects[stored.ID] = stored
	}
	return nil
}

// LoadFixtures seeds the store from a YAML file with a top-level "objects" list.
func (m *MemoryStore) LoadFixtures(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}

	var doc struct {
		Objects []map[string]any `yaml:"objects"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return 0, fmt.Errorf("failed to parse fixtures: %w", err)
	}

	objs := make([]models.Object, 0, len(doc.Objects))
	for i, raw := range doc.Objects {
		encoded, err := json.Marshal(raw)
		if err != nil {
			return 0, fmt.Errorf("fixture %d: %w", i, err)
		}
		var obj models.Object
		if err := json.Unmarshal(encoded, &obj); err != nil {
			return 0, fmt.Errorf("fixture %d: %w", i, err)
		}
		objs = append(objs, obj)
	}

	if err := m.Seed(objs...); err != nil {
		return 0, err
	}
	return len(objs), nil
}

// Find returns the objects matching q in insertion order, or a 404
// StatusError when none match.
func (m *MemoryStore) Find(ctx context.Context, q Query) ([]models.Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	filters, err := normalize(q.Filters)
	if err != nil {
		return nil, &StatusError{Status: http.StatusBadRequest, Message: err.Error()}
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []models.Object
	for _, id := range m.order {
		obj := m.objects[id]
		if !m.matches(obj, q, filters) {
			continue
		}
		out, err := m.project(obj, q.Props, q.Depth)
		if err != nil {
			return nil, err
		}
		result = append(result, *out)
	}

	if len(result) == 0 {
		return nil, notFound("No objects found")
	}
	return result, nil
}

// FindOne returns the first object matching q.
func (m *MemoryStore) FindOne(ctx context.Context, q Query) (*models.Object, error) {
	objects, err := m.Find(ctx, q)
	if err != nil {
		return nil, err
	}
	return &objects[0], nil
}

// InsertOne stores a new object with a generated id and a slug unique
// within its type.
func (m *MemoryStore) InsertOne(ctx context.Context, in Insert) (*models.Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if in.Type == "" || strings.TrimSpace(in.Title) == "" {
		return nil, &StatusError{Status: http.StatusBadRequest, Message: "type and title are required"}
	}

	metadata, err := normalize(in.Metadata)
	if err != nil {
		return nil, &StatusError{Status: http.StatusBadRequest, Message: err.Error()}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	slug := in.Slug
	if slug == "" || m.slugTaken(in.Type, slug) {
		slug = m.uniqueSlug(in.Type, in.Title)
	}
	now := models.Timestamp(m.now())
	obj := &models.Object{
		ID:         uuid.NewString(),
		Slug:       slug,
		Title:      in.Title,
		Content:    in.Content,
		Type:       in.Type,
		CreatedAt:  now,
		ModifiedAt: now,
		Metadata:   metadata,
	}
	if obj.Metadata == nil {
		obj.Metadata = map[string]any{}
	}
	m.objects[obj.ID] = obj
	m.order = append(m.order, obj.ID)

	return m.project(obj, nil, 0)
}

// UpdateOne merges patch into the object's metadata.
func (m *MemoryStore) UpdateOne(ctx context.Context, id string, patch Update) (*models.Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	metadata, err := normalize(patch.Metadata)
	if err != nil {
		return nil, &StatusError{Status: http.StatusBadRequest, Message: err.Error()}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	obj, ok := m.objects[id]
	if !ok {
		return nil, notFound("Object not found")
	}
	if patch.Title != "" {
		obj.Title = patch.Title
	}
	for k, v := range metadata {
		obj.Metadata[k] = v
	}
	obj.ModifiedAt = models.Timestamp(m.now())

	return m.project(obj, nil, 0)
}

func (m *MemoryStore) matches(obj *models.Object, q Query, filters map[string]any) bool {
	if q.Type != "" && obj.Type != q.Type {
		return false
	}
	if q.ID != "" && obj.ID != q.ID {
		return false
	}
	if q.Slug != "" && obj.Slug != q.Slug {
		return false
	}
	for path, want := range filters {
		got, ok := lookup(obj, path)
		if !ok || !reflect.DeepEqual(got, want) {
			return false
		}
	}
	return true
}

// lookup resolves a dotted path against the stored, unexpanded object. A
// select field stored as its bare key answers "<field>.key".
func lookup(obj *models.Object, path string) (any, bool) {
	parts := strings.Split(path, ".")
	switch parts[0] {
	case "id":
		return obj.ID, len(parts) == 1
	case "slug":
		return obj.Slug, len(parts) == 1
	case "title":
		return obj.Title, len(parts) == 1
	case "type":
		return string(obj.Type), len(parts) == 1
	case "metadata":
	default:
		return nil, false
	}

	var cur any = obj.Metadata
	for i, part := range parts[1:] {
		switch v := cur.(type) {
		case map[string]any:
			next, ok := v[part]
			if !ok {
				return nil, false
			}
			cur = next
		case string:
			if part == "key" && i == len(parts)-2 {
				return v, true
			}
			return nil, false
		default:
			return nil, false
		}
	}
	return cur, true
}

var projectable = map[string]bool{
	"id": true, "slug": true, "title": true, "content": true,
	"created_at": true, "modified_at": true, "metadata": true,
}

func (m *MemoryStore) project(obj *models.Object, props []string, depth int) (*models.Object, error) {
	out, err := clone(obj)
	if err != nil {
		return nil, err
	}

	if depth > 0 {
		for k, v := range out.Metadata {
			id, ok := v.(string)
			if !ok || id == obj.ID {
				continue
			}
			ref, exists := m.objects[id]
			if !exists {
				continue
			}
			nested, err := m.project(ref, nil, depth-1)
			if err != nil {
				return nil, err
			}
			encoded, err := json.Marshal(nested)
			if err != nil {
				return nil, err
			}
			var asMap map[string]any
			if err := json.Unmarshal(encoded, &asMap); err != nil {
				return nil, err
			}
			out.Metadata[k] = asMap
		}
	}

	if len(props) > 0 {
		keep := make(map[string]bool, len(props))
		for _, p := range props {
			if projectable[p] {
				keep[p] = true
			}
		}
		if !keep["id"] {
			out.ID = ""
		}
		if !keep["slug"] {
			out.Slug = ""
		}
		if !keep["title"] {
			out.Title = ""
		}
		if !keep["content"] {
			out.Content = ""
		}
		if !keep["created_at"] {
			out.CreatedAt = ""
		}
		if !keep["modified_at"] {
			out.ModifiedAt = ""
		}
		if !keep["metadata"] {
			out.Metadata = nil
		}
	}
	return out, nil
}

func (m *MemoryStore) slugTaken(typ models.ObjectType, slug string) bool {
	for _, obj := range m.objects {
		if obj.Type == typ && obj.Slug == slug {
			return true
		}
	}
	return false
}

func (m *MemoryStore) uniqueSlug(typ models.ObjectType, title string) string {
	base := slugify(title)
	if base == "" {
		base = "object"
	}
	slug := base
	for n := 2; m.slugTaken(typ, slug); n++ {
		slug = base + "-" + strconv.Itoa(n)
	}
	return slug
}

func slugify(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

// normalize round-trips through JSON so stored values and filter values
// share one representation (numbers as float64, nested maps as map[string]any).
func normalize(in map[string]any) (map[string]any, error) {
	if in == nil {
		return nil, nil
	}
	data, err := json.Marshal(in)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func clone(obj *models.Object) (*models.Object, error) {
	data, err := json.Marshal(obj)
	if err != nil {
		return nil, err
	}
	var out models.Object
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
