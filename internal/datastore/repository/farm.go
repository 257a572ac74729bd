package repository

import (
	"context"

	"github.com/terrasense/terrasense-go/internal/datastore/entities"
)

// FarmRepository resolves farm existence, active farms, and membership.
// The realtime core only reads farm data; farm CRUD lives elsewhere in the
// platform.
type FarmRepository interface {
	// Exists reports whether a farm is present and active.
	Exists(ctx context.Context, farmID string) (bool, error)
	// ListActiveIDs returns the IDs of all active farms. Wildcard rules
	// evaluate against this set.
	ListActiveIDs(ctx context.Context) ([]string, error)
	// MembersOf returns the user IDs belonging to a farm.
	MembersOf(ctx context.Context, farmID string) ([]string, error)
	// Seed inserts a farm if missing. Used by bootstrap and tests.
	Seed(ctx context.Context, farm *entities.Farm) error
}
