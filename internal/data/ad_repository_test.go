//go:build integration

package data

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

// setupAdTest creates a new in-memory SQLite database and an AdRepository
// for testing.
func setupAdTest(t *testing.T) (*AdRepository, func()) {
	t.Helper()

	db, err := sqlx.Connect("sqlite3", "file::memory:")
	if err != nil {
		t.Fatalf("Failed to connect to sqlite test database: %v", err)
	}

	schema := `
	CREATE TABLE ad_records (
		id TEXT PRIMARY KEY,
		owner_user_id TEXT NOT NULL,
		vertical TEXT NOT NULL,
		sub_vertical TEXT NOT NULL DEFAULT '',
		category_node_id TEXT NOT NULL,
		payload TEXT NOT NULL,
		state TEXT NOT NULL,
		is_featured BOOLEAN NOT NULL DEFAULT 0,
		featured_expiry DATETIME,
		is_promoted BOOLEAN NOT NULL DEFAULT 0,
		promoted_expiry DATETIME,
		is_refreshed BOOLEAN NOT NULL DEFAULT 0,
		refresh_expiry DATETIME,
		expiry_date DATETIME,
		created_at DATETIME NOT NULL,
		modified_at DATETIME NOT NULL,
		version INTEGER NOT NULL DEFAULT 1
	);`
	db.MustExec(schema)

	repo := NewAdRepository(db)

	teardown := func() {
		db.Close()
	}

	return repo, teardown
}

func newAdFixture(id, owner string, state State) *AdRecord {
	now := time.Now().UTC().Truncate(time.Second)
	return &AdRecord{LifecycleEnvelope: LifecycleEnvelope{
		ID:             id,
		OwnerUserID:    owner,
		Vertical:       VerticalItems,
		CategoryNodeID: "cat-1",
		Payload:        []byte(`{"title":"Lamp"}`),
		State:          state,
		CreatedAt:      now,
		ModifiedAt:     now,
		Version:        1,
	}}
}

func TestAdRepository_CreateAndGet(t *testing.T) {
	repo, teardown := setupAdTest(t)
	defer teardown()

	rec := newAdFixture("ad-1", "user-1", StateDraft)
	if err := repo.Create(context.Background(), rec); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := repo.Get(context.Background(), "ad-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.OwnerUserID != "user-1" || got.State != StateDraft {
		t.Errorf("record did not round-trip: %+v", got)
	}
	if got.Version != 1 {
		t.Errorf("expected version 1, got %d", got.Version)
	}
}

func TestAdRepository_GetNotFound(t *testing.T) {
	repo, teardown := setupAdTest(t)
	defer teardown()

	if _, err := repo.Get(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestAdRepository_UpdateBumpsVersion(t *testing.T) {
	repo, teardown := setupAdTest(t)
	defer teardown()

	rec := newAdFixture("ad-1", "user-1", StateDraft)
	if err := repo.Create(context.Background(), rec); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rec.State = StatePendingApproval
	rec.ModifiedAt = time.Now().UTC()
	if err := repo.Update(context.Background(), rec); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Version != 2 {
		t.Errorf("expected the in-memory version to advance to 2, got %d", rec.Version)
	}

	got, err := repo.Get(context.Background(), "ad-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.State != StatePendingApproval || got.Version != 2 {
		t.Errorf("expected the stored row at version 2, got %+v", got)
	}
}

func TestAdRepository_UpdateStaleVersionConflicts(t *testing.T) {
	repo, teardown := setupAdTest(t)
	defer teardown()

	rec := newAdFixture("ad-1", "user-1", StateDraft)
	if err := repo.Create(context.Background(), rec); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	stale := newAdFixture("ad-1", "user-1", StatePendingApproval)
	stale.Version = 99
	if err := repo.Update(context.Background(), stale); !errors.Is(err, ErrVersionConflict) {
		t.Errorf("expected ErrVersionConflict, got %v", err)
	}

	gone := newAdFixture("ad-2", "user-1", StateDraft)
	if err := repo.Update(context.Background(), gone); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for a missing row, got %v", err)
	}
}

func TestAdRepository_Delete(t *testing.T) {
	repo, teardown := setupAdTest(t)
	defer teardown()

	rec := newAdFixture("ad-1", "user-1", StateDraft)
	if err := repo.Create(context.Background(), rec); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := repo.Delete(context.Background(), "ad-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := repo.Get(context.Background(), "ad-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected the record to be gone, got %v", err)
	}
	if err := repo.Delete(context.Background(), "ad-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound on double delete, got %v", err)
	}
}

func TestAdRepository_ListByOwner(t *testing.T) {
	repo, teardown := setupAdTest(t)
	defer teardown()

	for _, id := range []string{"a", "b"} {
		if err := repo.Create(context.Background(), newAdFixture(id, "user-1", StateDraft)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if err := repo.Create(context.Background(), newAdFixture("c", "user-2", StateDraft)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	recs, err := repo.ListByOwner(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(recs) != 2 {
		t.Errorf("expected two records for user-1, got %d", len(recs))
	}
}

func TestAdRepository_ListLapsed(t *testing.T) {
	repo, teardown := setupAdTest(t)
	defer teardown()

	now := time.Now().UTC()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	staleFlag := newAdFixture("stale-flag", "user-1", StatePublished)
	staleFlag.IsFeatured = true
	staleFlag.FeaturedExpiry = &past

	pastDue := newAdFixture("past-due", "user-1", StatePublished)
	pastDue.ExpiryDate = &past

	alreadyExpired := newAdFixture("already-expired", "user-1", StateExpired)
	alreadyExpired.ExpiryDate = &past

	healthy := newAdFixture("healthy", "user-1", StatePublished)
	healthy.IsFeatured = true
	healthy.FeaturedExpiry = &future
	healthy.ExpiryDate = &future

	flaggedOffline := newAdFixture("flagged-offline", "user-1", StateUnpublished)
	flaggedOffline.IsFeatured = true
	flaggedOffline.FeaturedExpiry = &future

	for _, rec := range []*AdRecord{staleFlag, pastDue, alreadyExpired, healthy, flaggedOffline} {
		if err := repo.Create(context.Background(), rec); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	lapsed, err := repo.ListLapsed(context.Background(), now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ids := map[string]bool{}
	for _, rec := range lapsed {
		ids[rec.ID] = true
	}
	if !ids["stale-flag"] || !ids["past-due"] {
		t.Errorf("expected stale-flag and past-due in the lapsed set, got %v", ids)
	}
	if !ids["flagged-offline"] {
		t.Error("a flag set on an unpublished record must be swept")
	}
	if ids["already-expired"] {
		t.Error("a terminal record must not be swept again")
	}
	if ids["healthy"] {
		t.Error("a healthy record must not be swept")
	}
}
