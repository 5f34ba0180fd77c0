// Package storage defines the property listing store interface and the
// Property data shape. Backends live in subpackages: a flat JSON file for
// production and an in-memory map for tests.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrNotFound is returned when no property exists for an id.
var ErrNotFound = errors.New("property not found")

// Property is one real-estate listing. The JSON field names match the data
// file consumed by the storefront and admin dashboard.
type Property struct {
	ID              int       `json:"id"`
	Name            string    `json:"name"`
	Location        string    `json:"location"`
	Category        string    `json:"category"`
	Price           string    `json:"price"`
	Description     string    `json:"description"`
	FullDescription string    `json:"fullDescription,omitempty"`
	Image           string    `json:"image"`
	Video           string    `json:"video,omitempty"`
	Amenities       []string  `json:"amenities"`
	Visible         bool      `json:"visible"`
	CreatedAt       time.Time `json:"createdAt"`
}

// UnmarshalJSON treats a missing "visible" field as visible, matching
// historical data files where only explicitly hidden listings carry the flag.
func (p *Property) UnmarshalJSON(data []byte) error {
	type alias Property
	aux := struct {
		*alias
		Visible *bool `json:"visible"`
	}{alias: (*alias)(p)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	p.Visible = aux.Visible == nil || *aux.Visible
	return nil
}

// PropertyPatch is a partial listing update. Nil fields keep the stored
// value; the admin dashboard omits fields it did not change (notably "image"
// when no new upload happened).
type PropertyPatch struct {
	Name            *string  `json:"name"`
	Location        *string  `json:"location"`
	Category        *string  `json:"category"`
	Price           *string  `json:"price"`
	Description     *string  `json:"description"`
	FullDescription *string  `json:"fullDescription"`
	Image           *string  `json:"image"`
	Video           *string  `json:"video"`
	Amenities       []string `json:"amenities"`
	Visible         *bool    `json:"visible"`
}

// Apply overwrites p's fields with the patch's present values. Id and
// creation time are never touched.
func (patch *PropertyPatch) Apply(p *Property) {
	if patch.Name != nil {
		p.Name = *patch.Name
	}
	if patch.Location != nil {
		p.Location = *patch.Location
	}
	if patch.Category != nil {
		p.Category = *patch.Category
	}
	if patch.Price != nil {
		p.Price = *patch.Price
	}
	if patch.Description != nil {
		p.Description = *patch.Description
	}
	if patch.FullDescription != nil {
		p.FullDescription = *patch.FullDescription
	}
	if patch.Image != nil {
		p.Image = *patch.Image
	}
	if patch.Video != nil {
		p.Video = *patch.Video
	}
	if patch.Amenities != nil {
		p.Amenities = patch.Amenities
	}
	if patch.Visible != nil {
		p.Visible = *patch.Visible
	}
}

// PropertyStore is the listing CRUD interface the admin API is gated around.
// All methods accept context for tracing and cancellation and must be safe
// for concurrent use.
type PropertyStore interface {
	// List returns listings in insertion order. When includeHidden is false
	// only publicly visible listings are returned.
	List(ctx context.Context, includeHidden bool) ([]*Property, error)

	// Get retrieves one listing by id.
	Get(ctx context.Context, id int) (*Property, error)

	// Create stores a new listing, assigning its id and creation time.
	Create(ctx context.Context, p *Property) (*Property, error)

	// Update merges the patch into an existing listing, preserving id,
	// creation time and any field the patch omits.
	Update(ctx context.Context, id int, patch *PropertyPatch) (*Property, error)

	// Delete removes a listing.
	Delete(ctx context.Context, id int) error
}
