// Package audit records every transition and mutation with actor, action
// and outcome. Recording is best effort: a failure to write the trail is
// logged and never rolls back the underlying mutation.
package audit

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/oklog/ulid/v2"

	"go-classifieds-app/internal/logger"
)

// Entry is one audit trail record. Ids are ULIDs so the trail sorts by
// creation time without a secondary index.
type Entry struct {
	ID          string    `db:"id"`
	ActorID     string    `db:"actor_id"`
	SubjectID   string    `db:"subject_id"`
	SubjectKind string    `db:"subject_kind"`
	Action      string    `db:"action"`
	Outcome     string    `db:"outcome"`
	Detail      string    `db:"detail"`
	CreatedAt   time.Time `db:"created_at"`
}

// Recorder is the audit collaborator seen by the engines.
type Recorder interface {
	Record(ctx context.Context, actorID, subjectKind, subjectID, action, outcome, detail string)
}

// SQLRecorder persists audit entries to the audit_entries table.
type SQLRecorder struct {
	db      *sqlx.DB
	log     logger.Logger
	entropy io.Reader
}

// NewSQLRecorder creates a new SQLRecorder. The entropy source is
// locked: Record is called concurrently by the bulk workers.
func NewSQLRecorder(db *sqlx.DB, log logger.Logger) *SQLRecorder {
	entropy := ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0)
	return &SQLRecorder{
		db:      db,
		log:     log,
		entropy: &ulid.LockedMonotonicReader{MonotonicReader: entropy},
	}
}

// Record writes one entry. The write ignores the caller's cancellation so
// a request aborted after its mutation committed still leaves a trail.
func (r *SQLRecorder) Record(ctx context.Context, actorID, subjectKind, subjectID, action, outcome, detail string) {
	now := time.Now().UTC()
	entry := Entry{
		ID:          ulid.MustNew(ulid.Timestamp(now), r.entropy).String(),
		ActorID:     actorID,
		SubjectID:   subjectID,
		SubjectKind: subjectKind,
		Action:      action,
		Outcome:     outcome,
		Detail:      detail,
		CreatedAt:   now,
	}

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	query := `INSERT INTO audit_entries (id, actor_id, subject_id, subject_kind, action, outcome, detail, created_at)
	          VALUES (:id, :actor_id, :subject_id, :subject_kind, :action, :outcome, :detail, :created_at)`
	if _, err := r.db.NamedExecContext(writeCtx, query, entry); err != nil {
		r.log.Error(err, fmt.Sprintf("Failed to record audit entry for subject %s", subjectID))
	}
}

// NoopRecorder discards entries. Used by tests.
type NoopRecorder struct{}

// Record does nothing.
func (NoopRecorder) Record(context.Context, string, string, string, string, string, string) {}
