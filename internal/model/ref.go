package model

import (
	"encoding/json"
	"fmt"
)

// Ref is a reference field the marketplace backend returns in one of two
// shapes: a bare ID string, or an embedded document carrying the ID plus
// denormalized display fields. Both shapes unmarshal into the same value so
// callers resolve the ID in exactly one place instead of type-switching at
// every use site.
type Ref struct {
	ID   string
	Name string

	// embedded records which wire shape the value came from so a round-trip
	// preserves it.
	embedded bool
}

// NewRef creates a bare-ID reference.
func NewRef(id string) Ref {
	return Ref{ID: id}
}

// NewEmbeddedRef creates a reference carrying denormalized display data.
func NewEmbeddedRef(id, name string) Ref {
	return Ref{ID: id, Name: name, embedded: true}
}

// IsZero reports whether the reference is absent.
func (r Ref) IsZero() bool {
	return r.ID == ""
}

// Is reports whether the reference points at the given ID.
func (r Ref) Is(id string) bool {
	return r.ID != "" && r.ID == id
}

// refDoc mirrors the embedded wire shape. The backend emits Mongo-style
// "_id"; some endpoints emit "id".
type refDoc struct {
	MongoID string `json:"_id,omitempty"`
	ID      string `json:"id,omitempty"`
	Name    string `json:"name,omitempty"`
}

func (r *Ref) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*r = Ref{}
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var id string
		if err := json.Unmarshal(b, &id); err != nil {
			return fmt.Errorf("decode ref id: %w", err)
		}
		*r = Ref{ID: id}
		return nil
	}
	var doc refDoc
	if err := json.Unmarshal(b, &doc); err != nil {
		return fmt.Errorf("decode embedded ref: %w", err)
	}
	id := doc.MongoID
	if id == "" {
		id = doc.ID
	}
	*r = Ref{ID: id, Name: doc.Name, embedded: true}
	return nil
}

func (r Ref) MarshalJSON() ([]byte, error) {
	if r.IsZero() {
		return []byte("null"), nil
	}
	if !r.embedded {
		return json.Marshal(r.ID)
	}
	return json.Marshal(refDoc{MongoID: r.ID, Name: r.Name})
}
