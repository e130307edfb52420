// Package repository persists capture sessions.
package repository

import (
	"context"

	"github.com/okian/posecap/internal/domain/session"
)

// SessionStore saves and loads session snapshots.
type SessionStore interface {
	// Save inserts or replaces the snapshot with the same ID.
	Save(ctx context.Context, snap session.Snapshot) error

	// Load returns the snapshot for id, or ErrNotFound.
	Load(ctx context.Context, id string) (session.Snapshot, error)

	// Latest returns the most recently saved snapshot, or ErrNotFound.
	Latest(ctx context.Context) (session.Snapshot, error)

	// Delete removes the snapshot for id, or returns ErrNotFound.
	Delete(ctx context.Context, id string) error

	// Close releases the underlying resources.
	Close() error
}
