package audit

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/MrEthical07/authcore/clock"
)

const deactivationNote = "status changed to inactive"

// Config configures a Recorder.
type Config struct {
	// NodeID seeds the snowflake sequence generator. Processes sharing a
	// history store should use distinct node ids (0-1023).
	NodeID int64
	Clock  clock.Clock
	Logger *zap.Logger
}

// Recorder writes history entries. Callers always pass the acting account
// explicitly; the recorder never infers it.
type Recorder struct {
	store  Store
	clock  clock.Clock
	node   *snowflake.Node
	logger *zap.Logger
}

// NewRecorder returns a Recorder writing to store.
func NewRecorder(store Store, cfg Config) (*Recorder, error) {
	if store == nil {
		return nil, fmt.Errorf("audit: nil store")
	}
	node, err := snowflake.NewNode(cfg.NodeID)
	if err != nil {
		return nil, fmt.Errorf("audit: snowflake node: %w", err)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{
		store:  store,
		clock:  clock.Or(cfg.Clock),
		node:   node,
		logger: logger.Named("audit"),
	}, nil
}

// RecordCreation appends a CREATION entry with the fixed per-kind description.
func (r *Recorder) RecordCreation(ctx context.Context, s Snapshot, actorID string) (Entry, error) {
	if s == nil {
		return Entry{}, ErrInvalidSnapshot
	}
	return r.append(ctx, s, MovementCreation, actorID, string(s.AuditKind())+" created")
}

// RecordChange appends a DATA_UPDATE entry describing every changed field.
// Nothing is written when no field changed or when the status flag is the
// only change; ok reports whether an entry was appended.
func (r *Recorder) RecordChange(ctx context.Context, before, after Snapshot, actorID string) (entry Entry, ok bool, err error) {
	if err := sameSubject(before, after); err != nil {
		return Entry{}, false, err
	}

	changes := Diff(before, after)
	if len(changes) == 0 || onlyActive(changes) {
		return Entry{}, false, nil
	}

	entry, err = r.append(ctx, after, MovementDataUpdate, actorID, Describe(changes))
	if err != nil {
		return Entry{}, false, err
	}
	return entry, true, nil
}

// RecordDeactivation appends a DEACTIVATION entry. Field changes made in the
// same operation are listed first, followed by the status note.
func (r *Recorder) RecordDeactivation(ctx context.Context, before, after Snapshot, actorID string) (Entry, error) {
	if err := sameSubject(before, after); err != nil {
		return Entry{}, err
	}

	desc := deactivationNote
	if others := Describe(Diff(before, after), FieldActive); others != "" {
		desc = others + "; " + deactivationNote
	}
	return r.append(ctx, after, MovementDeactivation, actorID, desc)
}

// RecordPasswordChange appends a PASSWORD_CHANGE entry for a credential.
func (r *Recorder) RecordPasswordChange(ctx context.Context, s Snapshot, actorID string) (Entry, error) {
	if s == nil {
		return Entry{}, ErrInvalidSnapshot
	}
	return r.append(ctx, s, MovementPasswordChange, actorID, "password changed")
}

// Record picks the movement from the transition: a nil before is a creation,
// an active to inactive transition is a deactivation and anything else is a
// data update.
func (r *Recorder) Record(ctx context.Context, before, after Snapshot, actorID string) (Entry, bool, error) {
	if after == nil {
		return Entry{}, false, ErrInvalidSnapshot
	}
	if before == nil {
		e, err := r.RecordCreation(ctx, after, actorID)
		return e, err == nil, err
	}
	if before.AuditActive() && !after.AuditActive() {
		e, err := r.RecordDeactivation(ctx, before, after, actorID)
		return e, err == nil, err
	}
	return r.RecordChange(ctx, before, after, actorID)
}

// Latest returns the newest entry for subjectID among movements.
func (r *Recorder) Latest(ctx context.Context, subjectID string, movements ...Movement) (Entry, error) {
	return r.store.Latest(ctx, subjectID, movements...)
}

// History lists every entry for subjectID in order.
func (r *Recorder) History(ctx context.Context, subjectID string) ([]Entry, error) {
	return r.store.List(ctx, subjectID)
}

func (r *Recorder) append(ctx context.Context, s Snapshot, movement Movement, actorID, desc string) (Entry, error) {
	entry := Entry{
		ID:        uuid.NewString(),
		Seq:       r.node.Generate().Int64(),
		SubjectID: s.AuditSubject(),
		Entity:    s.AuditKind(),
		EntityID:  s.AuditID(),
		Movement:  movement,
		ActorID:   actorID,
		Changes:   desc,
		CreatedAt: r.clock.Now().UTC(),
	}
	if err := r.store.Append(ctx, entry); err != nil {
		r.logger.Warn("append history entry failed",
			zap.String("subject_id", entry.SubjectID),
			zap.String("movement", string(movement)),
			zap.Error(err),
		)
		return Entry{}, err
	}
	return entry, nil
}

func sameSubject(before, after Snapshot) error {
	if before == nil || after == nil {
		return ErrInvalidSnapshot
	}
	if before.AuditKind() != after.AuditKind() || before.AuditID() != after.AuditID() {
		return fmt.Errorf("%w: snapshots describe different records", ErrInvalidSnapshot)
	}
	return nil
}

func onlyActive(changes []Change) bool {
	return len(changes) == 1 && changes[0].Field == FieldActive
}
