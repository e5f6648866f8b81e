package session

import "context"

// Store persists the single session record slot.
//
// Contract:
//   - Load returns (nil, nil) when the slot is empty. A stored value that
//     cannot be decoded is treated as absent and the slot is cleared, so a
//     corrupt record never surfaces as an error to the caller.
//   - Save is atomic from the caller's perspective: a reader never observes
//     a half-written record.
//   - The store never touches the network.
type Store interface {
	Load(ctx context.Context) (*Record, error)
	Save(ctx context.Context, rec *Record) error
	Clear(ctx context.Context) error
}
