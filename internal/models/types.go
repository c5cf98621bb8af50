package models

import (
	"encoding/json"
	"time"
)

// ObjectType is the tag that discriminates content store records.
type ObjectType string

const (
	TypeUsers            ObjectType = "users"
	TypeAIModels         ObjectType = "ai-models"
	TypeSystemPrompts    ObjectType = "system-prompts"
	TypeConversations    ObjectType = "conversations"
	TypeImageGenerations ObjectType = "image-generations"
)

// TimestampLayout is the ISO-8601 form used for every server-assigned timestamp.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Timestamp formats t in UTC with millisecond precision.
func Timestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// Object is the generic record shape returned by the content store.
type Object struct {
	ID         string         `json:"id"`
	Slug       string         `json:"slug"`
	Title      string         `json:"title"`
	Content    string         `json:"content,omitempty"`
	Type       ObjectType     `json:"type"`
	CreatedAt  string         `json:"created_at,omitempty"`
	ModifiedAt string         `json:"modified_at,omitempty"`
	Metadata   map[string]any `json:"metadata"`
}

// Record holds the fields shared by every typed variant.
type Record struct {
	ID         string     `json:"id"`
	Slug       string     `json:"slug"`
	Title      string     `json:"title"`
	Content    string     `json:"content,omitempty"`
	Type       ObjectType `json:"type"`
	CreatedAt  string     `json:"created_at,omitempty"`
	ModifiedAt string     `json:"modified_at,omitempty"`
}

// Media is a file reference served through the store's CDN.
type Media struct {
	URL      string `json:"url"`
	ImgixURL string `json:"imgix_url"`
}

// SelectOption is a select-dropdown metafield. Writes send only the key;
// reads return {key, value}, so both shapes decode.
type SelectOption struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

func (o *SelectOption) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var key string
		if err := json.Unmarshal(data, &key); err != nil {
			return err
		}
		o.Key, o.Value = key, key
		return nil
	}

	type plain SelectOption
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*o = SelectOption(p)
	return nil
}

// Ref is an object metafield. At depth 0 the store returns the bare id; at
// depth 1 it returns the nested record.
type Ref[T any] struct {
	ID     string
	Object *T
}

// Expanded reports whether the nested record was resolved.
func (r Ref[T]) Expanded() bool {
	return r.Object != nil
}

func (r *Ref[T]) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		r.Object = nil
		return json.Unmarshal(data, &r.ID)
	}

	var head struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return err
	}
	var obj T
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	r.ID = head.ID
	r.Object = &obj
	return nil
}

func (r Ref[T]) MarshalJSON() ([]byte, error) {
	if r.Object != nil {
		return json.Marshal(r.Object)
	}
	if r.ID == "" {
		return []byte("null"), nil
	}
	return json.Marshal(r.ID)
}
