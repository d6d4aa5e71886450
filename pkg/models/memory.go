// Package models defines the core data types for Cogent.
package models

import "time"

// MemoryCategory classifies the kind of fact a Memory holds.
type MemoryCategory string

const (
	MemoryCategoryFact         MemoryCategory = "fact"
	MemoryCategoryPreference   MemoryCategory = "preference"
	MemoryCategoryRoutine      MemoryCategory = "routine"
	MemoryCategoryRelationship MemoryCategory = "relationship"
)

// MemoryTemporal classifies how long a Memory is expected to remain valid.
type MemoryTemporal string

const (
	MemoryTemporalPermanent MemoryTemporal = "permanent"
	MemoryTemporalRecurring MemoryTemporal = "recurring"
	MemoryTemporalOneTime   MemoryTemporal = "one-time"
)

// Memory is a single durable fact the agent has learned about the user.
// Memories are flat: Related holds back-references to other memory ids,
// not a graph store.
type Memory struct {
	ID         string         `json:"id"`
	Content    string         `json:"content"`
	CreatedAt  time.Time      `json:"created_at"`
	ModifiedAt time.Time      `json:"modified_at"`
	DeviceID   string         `json:"device_id,omitempty"`
	Category   MemoryCategory `json:"category"`
	Temporal   MemoryTemporal `json:"temporal"`
	Confidence float64        `json:"confidence"`
	Related    []string       `json:"related,omitempty"`
}
