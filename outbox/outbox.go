// Package outbox holds serialized messages that could not be written while a
// connection was down.
//
// A Store is a bounded FIFO. When it is full, Push evicts the oldest entry so
// the most recent application intent survives. Requeue puts a message back at
// the head after a failed flush; if that overflows the bound, the newest entry
// is discarded instead, because the requeued message is older than everything
// else in the store.
package outbox

import (
	"context"
)

// DefaultCapacity is used when a capacity below one is requested.
const DefaultCapacity = 100

type Store interface {
	// Push appends msg and returns how many old entries were evicted to make room.
	Push(ctx context.Context, msg string) (evicted int, err error)
	// Requeue inserts msg at the head.
	Requeue(ctx context.Context, msg string) error
	// Pop removes and returns the head. ok is false when the store is empty.
	Pop(ctx context.Context) (msg string, ok bool, err error)
	Len(ctx context.Context) (int, error)
	Clear(ctx context.Context) error
	Cap() int
}
