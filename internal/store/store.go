// Package store persists lead records. A health-checked facade fronts
// the primary structured store (Postgres or SQLite) and a local file
// fallback with an identical contract.
package store

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"

	"github.com/sells-group/outreach-cli/internal/model"
)

// ErrNotFound is returned by GetLead when no record exists for the id.
var ErrNotFound = eris.New("lead not found")

// LeadFilter specifies criteria for listing leads.
type LeadFilter struct {
	Stage  model.Stage `json:"stage,omitempty"`
	Limit  int         `json:"limit,omitempty"`
	Offset int         `json:"offset,omitempty"`
}

// Store defines the persistence contract for lead records. SaveLead
// either fully persists a record version or fails atomically; partial
// writes never surface to readers.
type Store interface {
	SaveLead(ctx context.Context, lead *model.LeadRecord) error
	GetLead(ctx context.Context, id string) (*model.LeadRecord, error)
	ListLeads(ctx context.Context, filter LeadFilter) ([]model.LeadRecord, error)

	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// StorageError reports that a save failed against both the primary
// store and the fallback. Fatal for that save only, not the process.
type StorageError struct {
	Op       string
	LeadID   string
	Primary  error
	Fallback error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage unavailable for %s %s: primary: %v; fallback: %v",
		e.Op, e.LeadID, e.Primary, e.Fallback)
}
