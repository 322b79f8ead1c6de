package domain

import "context"

// Repository persists the whole entity graph as one document.
type Repository interface {
	// Load returns the persisted state. Records that fail to decode are
	// skipped and reported as diagnostics.
	Load(ctx context.Context) (*State, []string, error)
	Save(ctx context.Context, state State) error
	Reset(ctx context.Context) error
}
