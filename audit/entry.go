// Package audit keeps the append-only change history of accounts and
// credentials. The history doubles as the source of truth for password age,
// so entries are never rewritten or removed.
package audit

import (
	"context"
	"errors"
	"time"
)

// Movement classifies a history entry.
type Movement string

const (
	MovementCreation       Movement = "CREATION"
	MovementDataUpdate     Movement = "DATA_UPDATE"
	MovementPasswordChange Movement = "PASSWORD_CHANGE"
	MovementDeactivation   Movement = "DEACTIVATION"
)

// Valid reports whether m is one of the known movements.
func (m Movement) Valid() bool {
	switch m {
	case MovementCreation, MovementDataUpdate, MovementPasswordChange, MovementDeactivation:
		return true
	}
	return false
}

// Entity names the kind of record an entry describes.
type Entity string

const (
	EntityAccount    Entity = "account"
	EntityCredential Entity = "credential"
)

var (
	// ErrNotFound is returned by Store.Latest when no entry matches.
	ErrNotFound = errors.New("audit entry not found")
	// ErrUnavailable wraps history backend failures.
	ErrUnavailable = errors.New("audit store unavailable")
	// ErrInvalidSnapshot is returned when a recorder input is nil or
	// inconsistent, or when a store is handed an entry with an unknown movement.
	ErrInvalidSnapshot = errors.New("invalid audit snapshot")
)

// Entry is a single immutable history record.
//
// Entries for one subject are ordered by CreatedAt, then by Seq. Seq is
// monotonic per recorder node and breaks ties between entries written within
// the same clock tick.
type Entry struct {
	ID        string    `db:"id" json:"id"`
	Seq       int64     `db:"seq" json:"seq"`
	SubjectID string    `db:"subject_id" json:"subject_id"`
	Entity    Entity    `db:"entity" json:"entity"`
	EntityID  string    `db:"entity_id" json:"entity_id"`
	Movement  Movement  `db:"movement" json:"movement"`
	ActorID   string    `db:"actor_id" json:"actor_id"`
	Changes   string    `db:"changes" json:"changes"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Before reports whether e sorts before o in history order.
func (e Entry) Before(o Entry) bool {
	if !e.CreatedAt.Equal(o.CreatedAt) {
		return e.CreatedAt.Before(o.CreatedAt)
	}
	return e.Seq < o.Seq
}

// Store persists history entries.
//
// Latest returns the newest entry for subjectID whose movement is one of
// movements (any movement when none are given), or ErrNotFound.
// List returns all entries for subjectID in history order.
type Store interface {
	Append(ctx context.Context, entry Entry) error
	Latest(ctx context.Context, subjectID string, movements ...Movement) (Entry, error)
	List(ctx context.Context, subjectID string) ([]Entry, error)
}
