package vault

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	ErrItemNotFound = errors.New("vault: item not found")
	ErrInvalidItem  = errors.New("vault: invalid item")
)

const (
	maxLabel = 200
	maxType  = 50
	maxTags  = 20
)

// Item is the decrypted view handed to an authorized caller.
type Item struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner"`
	Label     string    `json:"label"`
	Type      string    `json:"type"`
	Notes     string    `json:"notes,omitempty"`
	Tags      []string  `json:"tags"`
	Data      string    `json:"data,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Record is the persisted form. NotesEnc and DataEnc only ever hold the
// iv:authTag:ciphertext encoding.
type Record struct {
	ID        string    `bson:"_id"`
	OwnerID   string    `bson:"owner"`
	Label     string    `bson:"label"`
	Type      string    `bson:"type"`
	NotesEnc  string    `bson:"notes,omitempty"`
	Tags      []string  `bson:"tags"`
	DataEnc   string    `bson:"data,omitempty"`
	CreatedAt time.Time `bson:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt"`
}

type Store interface {
	InsertItem(ctx context.Context, r Record) error
	// ItemByID returns ErrItemNotFound when id is unknown.
	ItemByID(ctx context.Context, id string) (*Record, error)
	// ListItems returns the items of every listed owner, newest first.
	ListItems(ctx context.Context, ownerIDs []string) ([]Record, error)
	// ReplaceItem overwrites the record matching r.ID and r.OwnerID.
	ReplaceItem(ctx context.Context, r Record) error
	DeleteItem(ctx context.Context, ownerID, id string) error
}

// Draft is a validated create request.
type Draft struct {
	Label string   `json:"label"`
	Type  string   `json:"type"`
	Notes string   `json:"notes"`
	Tags  []string `json:"tags"`
	Data  string   `json:"data"`
}

func (d *Draft) Validate() error {
	d.Label = strings.TrimSpace(d.Label)
	d.Type = strings.TrimSpace(d.Type)
	if d.Label == "" || len(d.Label) > maxLabel {
		return ErrInvalidItem
	}
	if d.Type == "" {
		d.Type = "note"
	}
	if len(d.Type) > maxType || len(d.Tags) > maxTags {
		return ErrInvalidItem
	}
	return nil
}

// Patch updates only the fields that are set.
type Patch struct {
	Label *string   `json:"label"`
	Type  *string   `json:"type"`
	Notes *string   `json:"notes"`
	Tags  *[]string `json:"tags"`
	Data  *string   `json:"data"`
}

func (p *Patch) Validate() error {
	if p.Label != nil {
		l := strings.TrimSpace(*p.Label)
		if l == "" || len(l) > maxLabel {
			return ErrInvalidItem
		}
		p.Label = &l
	}
	if p.Type != nil {
		ty := strings.TrimSpace(*p.Type)
		if ty == "" || len(ty) > maxType {
			return ErrInvalidItem
		}
		p.Type = &ty
	}
	if p.Tags != nil && len(*p.Tags) > maxTags {
		return ErrInvalidItem
	}
	return nil
}
