package models

import (
	"time"

	"github.com/google/uuid"
)

type OverrideStatus string

const (
	OverrideConfirmed OverrideStatus = "confirmed"
	OverrideRejected  OverrideStatus = "rejected"
	OverrideDeleted   OverrideStatus = "deleted"
)

// Override is a durable user decision about one relationship.
// A deleted override hides the relationship only while the snapshot it was
// deleted against is unchanged (SnapshotFingerprint).
type Override struct {
	ID                  uuid.UUID       `json:"id"`
	ProjectID           uuid.UUID       `json:"project_id"`
	Key                 RelationshipKey `json:"key"`
	Status              OverrideStatus  `json:"status"`
	Manual              bool            `json:"manual"`
	SnapshotFingerprint string          `json:"snapshot_fingerprint,omitempty"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
	UpdatedBy           string          `json:"updated_by"`
}

func (o *Override) Prepare() {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	now := time.Now().UTC()
	if o.CreatedAt.IsZero() {
		o.CreatedAt = now
	}
	if o.UpdatedAt.IsZero() {
		o.UpdatedAt = now
	}
	if o.UpdatedBy == "" {
		o.UpdatedBy = "anonymous"
	}
}

// HubPin forces a column to be the hub for a semantic type.
type HubPin struct {
	ProjectID    uuid.UUID `json:"project_id"`
	SemanticType string    `json:"semantic_type" binding:"required"`
	Table        string    `json:"table" binding:"required"`
	Column       string    `json:"column" binding:"required"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	UpdatedBy    string    `json:"updated_by"`
}

func (p *HubPin) Prepare() {
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = now
	}
	if p.UpdatedBy == "" {
		p.UpdatedBy = "anonymous"
	}
}

func (p HubPin) Ref() ColumnRef {
	return ColumnRef{Table: p.Table, Column: p.Column}
}

// OverrideSet is the override state read at the start of an analysis run.
type OverrideSet struct {
	Relationships map[RelationshipKey]Override
	HubPins       map[string]HubPin
}

func NewOverrideSet(overrides []Override, pins []HubPin) OverrideSet {
	set := OverrideSet{
		Relationships: make(map[RelationshipKey]Override, len(overrides)),
		HubPins:       make(map[string]HubPin, len(pins)),
	}
	for _, o := range overrides {
		set.Relationships[o.Key] = o
	}
	for _, p := range pins {
		set.HubPins[p.SemanticType] = p
	}
	return set
}
