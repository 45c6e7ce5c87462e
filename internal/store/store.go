// Package store persists conversation records, one per session id.
// Updates are conditional on the version the caller loaded, so two racing
// advances for the same session cannot silently overwrite each other.
package store

import (
	"context"
	"errors"

	"github.com/mediflow/triage-engine/internal/model"
)

var (
	// ErrNotFound is returned when no record exists for a session id.
	ErrNotFound = errors.New("store: session not found")

	// ErrVersionConflict is returned when a conditional write loses a
	// race: the stored version no longer matches the one loaded.
	ErrVersionConflict = errors.New("store: version conflict")

	// ErrUnavailable wraps infrastructure failures; the session is
	// unchanged and the caller should retry the whole request later.
	ErrUnavailable = errors.New("store: unavailable")
)

// SessionStore is the persistence contract for conversation records.
type SessionStore interface {
	// Load returns the current record for a session, or ErrNotFound.
	Load(ctx context.Context, sessionID string) (*model.ConversationRecord, error)

	// Create inserts a brand-new record at version 1. It returns
	// ErrVersionConflict when the session already exists.
	Create(ctx context.Context, rec *model.ConversationRecord) error

	// Save writes rec conditionally: it succeeds only while the stored
	// version still equals previousVersion, and bumps rec.Version on
	// success. A lost race returns ErrVersionConflict.
	Save(ctx context.Context, previousVersion int64, rec *model.ConversationRecord) error

	// Ping reports whether the backing store is reachable.
	Ping(ctx context.Context) error

	// Close releases the store's resources.
	Close() error
}
