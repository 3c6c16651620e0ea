// Package entity provides the shared base for business documents.
package entity

import (
	"time"

	"pharmstock/internal/core/id"
)

// Document is the base type for business records (bills, transfers, payments).
type Document struct {
	// ID is the primary key (UUIDv7)
	ID id.ID `db:"id" json:"id"`

	// Number is the document number (auto-generated, immutable once issued)
	Number string `db:"number" json:"number"`

	// Date is the business date of the document
	Date time.Time `db:"date" json:"date"`

	// Version for optimistic locking (incremented on each update)
	Version int `db:"version" json:"version"`

	// Audit fields
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
	CreatedBy string    `db:"created_by" json:"createdBy,omitempty"`
	UpdatedBy string    `db:"updated_by" json:"updatedBy,omitempty"`
}

// NewDocument creates a new Document with generated ID and timestamps.
func NewDocument() Document {
	now := time.Now().UTC()
	return Document{
		ID:        id.New(),
		Date:      now,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Touch updates the UpdatedAt timestamp and increments version.
func (d *Document) Touch() {
	d.UpdatedAt = time.Now().UTC()
	d.Version++
}
