package store

import (
	"context"
	"errors"

	"spicysweet/models"
)

var (
	// ErrNotFound means the room document does not exist. Engines never
	// fabricate default state for a missing room.
	ErrNotFound = errors.New("room not found")

	// ErrAbort is the sentinel an update function returns to leave state
	// untouched. Aborts are normal control flow under contention, not
	// failures; callers usually swallow them. Phase engines wrap it to say
	// why they aborted.
	ErrAbort = errors.New("transaction aborted")

	// ErrConflict means a transaction lost the optimistic race more times
	// than the retry budget allows.
	ErrConflict = errors.New("transaction conflict")
)

// IsAbort reports whether err is an expected contention abort.
func IsAbort(err error) bool {
	return errors.Is(err, ErrAbort)
}

// UpdateFunc mutates the room in place or returns ErrAbort (possibly
// wrapped) to keep it unchanged. It must be pure: the store may invoke it
// several times under retry, so it can only derive decisions from the room
// value it is handed, never from state captured before the transaction
// started, and it must not do I/O.
type UpdateFunc func(room *models.Room) error

// Event is one message on a room's change stream.
type Event struct {
	Type string       `json:"type"`
	Room *models.Room `json:"room,omitempty"`
}

// Store is the shared state store every phase engine is built on. Its four
// primitives are point reads, whole-document atomic writes, a conditional
// read-modify-write with retry-on-conflict and explicit abort, and a change
// subscription per client.
type Store interface {
	GetRoom(ctx context.Context, code string) (*models.Room, error)
	PutRoom(ctx context.Context, room *models.Room) error
	// UpdateRoom runs fn inside an optimistic transaction and returns the
	// committed room. An abort from fn is returned unchanged and nothing is
	// written.
	UpdateRoom(ctx context.Context, code string, fn UpdateFunc) (*models.Room, error)
	// IncrScore atomically adds delta to a player's score and returns the
	// new value. Scores deliberately live outside the room document so that
	// crediting is an atomic increment, never a read-add-write.
	IncrScore(ctx context.Context, code, playerID string, delta int) (int, error)
	DeleteRoom(ctx context.Context, code string) error
	// Subscribe streams committed room changes until the context ends or
	// cancel is called.
	Subscribe(ctx context.Context, code string) (<-chan Event, func(), error)
}
