package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"go-classifieds-app/internal/apperr"
	"go-classifieds-app/internal/audit"
	"go-classifieds-app/internal/auth"
	"go-classifieds-app/internal/config"
	"go-classifieds-app/internal/data"
	"go-classifieds-app/internal/logger"
	"go-classifieds-app/internal/metrics"
	"go-classifieds-app/internal/search"
)

// Action is a lifecycle transition requested by a caller.
type Action string

const (
	ActionSubmit      Action = "submit"
	ActionApprove     Action = "approve"
	ActionReject      Action = "reject"
	ActionNeedChanges Action = "need_changes"
	ActionPublish     Action = "publish"
	ActionUnpublish   Action = "unpublish"
	ActionFeature     Action = "feature"
	ActionPromote     Action = "promote"
	ActionRefresh     Action = "refresh"
	ActionDelete      Action = "delete"
)

// ParseAction validates a transport-level action string.
func ParseAction(raw string) (Action, error) {
	a := Action(raw)
	switch a {
	case ActionSubmit, ActionApprove, ActionReject, ActionNeedChanges,
		ActionPublish, ActionUnpublish, ActionFeature, ActionPromote,
		ActionRefresh, ActionDelete:
		return a, nil
	}
	return "", apperr.New(apperr.InvalidTransition, "unknown action %q", raw)
}

// transitions is the state machine table. Feature, Promote, Refresh and
// Delete are not listed: the first three are flag side effects legal only
// while published, and Delete is terminal from any state.
var transitions = map[data.State]map[Action]data.State{
	data.StateDraft: {
		ActionSubmit: data.StatePendingApproval,
	},
	data.StatePendingApproval: {
		ActionApprove:     data.StateApproved,
		ActionReject:      data.StateRejected,
		ActionNeedChanges: data.StateNeedsModification,
	},
	data.StateNeedsModification: {
		ActionSubmit: data.StatePendingApproval,
	},
	data.StateApproved: {
		ActionPublish: data.StatePublished,
	},
	data.StatePublished: {
		ActionUnpublish: data.StateUnpublished,
	},
	data.StateUnpublished: {
		ActionPublish: data.StatePublished,
	},
}

// BulkFailure reports why one item of a bulk request was not applied.
type BulkFailure struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

// BulkResult is the per-item accounting of a bulk transition.
type BulkResult struct {
	Succeeded []string      `json:"succeeded"`
	Failed    []BulkFailure `json:"failed"`
}

// LifecycleService is the finite-state machine governing every ad-like
// subject. It validates and applies single and bulk transitions, enforces
// ownership through the gate, and computes the time-derived featured/
// promoted/refreshed flags uniformly on every read path.
type LifecycleService struct {
	store      SubjectStore
	categories CategoryRepository
	gate       *auth.Gate
	cfg        config.LifecycleConfig
	notifier   search.Notifier
	recorder   audit.Recorder
	metrics    *metrics.Metrics
	log        logger.Logger

	// now is the clock, injectable for tests.
	now func() time.Time
}

// NewLifecycleService creates the engine over one subject store.
func NewLifecycleService(
	store SubjectStore,
	categories CategoryRepository,
	gate *auth.Gate,
	cfg config.LifecycleConfig,
	notifier search.Notifier,
	recorder audit.Recorder,
	m *metrics.Metrics,
	log logger.Logger,
) *LifecycleService {
	return &LifecycleService{
		store:      store,
		categories: categories,
		gate:       gate,
		cfg:        cfg,
		notifier:   notifier,
		recorder:   recorder,
		metrics:    m,
		log:        log,
		now:        time.Now,
	}
}

// WithClock overrides the engine clock. Intended for tests.
func (s *LifecycleService) WithClock(now func() time.Time) *LifecycleService {
	s.now = now
	return s
}

// Get loads a subject and applies the derived-flag invariants. If the
// stored row lagged behind the clock the corrected row is written back
// best-effort; a concurrent writer winning the race is fine because it
// normalizes on its own read.
func (s *LifecycleService) Get(ctx context.Context, id string) (Subject, error) {
	sub, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, mapStoreErr(err, id)
	}
	if sub.Normalize(s.now().UTC()) {
		if err := s.store.Update(ctx, sub); err != nil &&
			!errors.Is(err, data.ErrVersionConflict) && !errors.Is(err, data.ErrNotFound) {
			s.log.Error(err, "Failed to persist normalized flags")
		}
	}
	return sub, nil
}

// ListOwned returns the caller's (or, for a privileged caller, any
// owner's) records with derived flags applied. Normalization here is
// read-only; the sweep persists corrections.
func (s *LifecycleService) ListOwned(ctx context.Context, caller auth.CallerIdentity, ownerUserID string) ([]Subject, error) {
	if err := s.gate.Authorize(caller, ownerUserID); err != nil {
		return nil, err
	}
	subs, err := s.store.ListByOwner(ctx, ownerUserID)
	if err != nil {
		return nil, apperr.Wrap(apperr.Unexpected, err, "failed to list records for owner %s", ownerUserID)
	}
	now := s.now().UTC()
	for _, sub := range subs {
		sub.Normalize(now)
	}
	return subs, nil
}

// Create persists a new subject. Records start in Draft; a privileged
// caller may create directly published (the admin creation path). The
// referenced category must exist and share the record's vertical.
func (s *LifecycleService) Create(ctx context.Context, caller auth.CallerIdentity, sub Subject, publishNow bool) (Subject, error) {
	if err := s.gate.Authorize(caller, sub.OwnerID()); err != nil {
		return nil, err
	}
	if publishNow {
		if err := s.gate.RequirePrivilege(caller); err != nil {
			return nil, err
		}
	}

	if catID := sub.CategoryNode(); catID != "" {
		cat, err := s.categories.GetByID(ctx, catID)
		if err != nil {
			if errors.Is(err, data.ErrNotFound) {
				return nil, apperr.Wrap(apperr.NotFound, err, "category %s not found", catID)
			}
			return nil, apperr.Wrap(apperr.Unexpected, err, "failed to load category")
		}
		if cat.Vertical != sub.SubjectVertical() {
			return nil, apperr.New(apperr.InvalidParent, "category %s belongs to vertical %s, not %s", catID, cat.Vertical, sub.SubjectVertical())
		}
	}

	now := s.now().UTC()
	env := envelopeOf(sub)
	if env.ID == "" {
		env.ID = uuid.NewString()
	}
	env.State = data.StateDraft
	if publishNow {
		env.State = data.StatePublished
	}
	env.CreatedAt = now
	env.ModifiedAt = now
	env.Version = 1
	if env.ExpiryDate == nil && s.cfg.AdLifetime > 0 {
		expiry := now.Add(s.cfg.AdLifetime)
		env.ExpiryDate = &expiry
	}
	env.Payload = sanitizePayload(env.Payload)

	if err := s.store.Create(ctx, sub); err != nil {
		s.metrics.Transitions.WithLabelValues("create", "error").Inc()
		return nil, apperr.Wrap(apperr.Unexpected, err, "failed to create %s record", s.store.Kind())
	}

	s.metrics.Transitions.WithLabelValues("create", "ok").Inc()
	s.recorder.Record(ctx, caller.UserID, s.store.Kind(), env.ID, "create", "ok", string(env.State))
	s.notifyChanged(sub, "create")
	return sub, nil
}

// ApplyTransition validates and applies one action against one subject:
// load, ownership gate, legality check, write with compare-and-swap.
func (s *LifecycleService) ApplyTransition(ctx context.Context, caller auth.CallerIdentity, subjectID string, action Action) (Subject, error) {
	sub, err := s.store.Get(ctx, subjectID)
	if err != nil {
		return nil, mapStoreErr(err, subjectID)
	}
	now := s.now().UTC()
	sub.Normalize(now)

	if err := s.gate.Authorize(caller, sub.OwnerID()); err != nil {
		s.recorder.Record(ctx, caller.UserID, s.store.Kind(), subjectID, string(action), apperr.KindOf(err).String(), "")
		return nil, err
	}

	if action == ActionDelete {
		if err := s.store.Delete(ctx, subjectID); err != nil {
			return nil, mapStoreErr(err, subjectID)
		}
		s.metrics.Transitions.WithLabelValues(string(action), "ok").Inc()
		s.recorder.Record(ctx, caller.UserID, s.store.Kind(), subjectID, string(action), "ok", "")
		s.notifyChanged(sub, string(action))
		return sub, nil
	}

	if err := s.applyAction(sub, action, now); err != nil {
		s.metrics.Transitions.WithLabelValues(string(action), "invalid").Inc()
		s.recorder.Record(ctx, caller.UserID, s.store.Kind(), subjectID, string(action), apperr.KindOf(err).String(), string(sub.CurrentState()))
		return nil, err
	}

	if err := s.store.Update(ctx, sub); err != nil {
		s.metrics.Transitions.WithLabelValues(string(action), "error").Inc()
		return nil, mapStoreErr(err, subjectID)
	}

	s.metrics.Transitions.WithLabelValues(string(action), "ok").Inc()
	s.recorder.Record(ctx, caller.UserID, s.store.Kind(), subjectID, string(action), "ok", string(sub.CurrentState()))
	s.notifyChanged(sub, string(action))
	return sub, nil
}

// ApplyTransitionFor is the explicit-owner ("by-id") call shape: the
// caller names the owner it acts for and must be privileged. The record
// must actually belong to that owner.
func (s *LifecycleService) ApplyTransitionFor(ctx context.Context, caller auth.CallerIdentity, ownerUserID, subjectID string, action Action) (Subject, error) {
	if err := s.gate.RequirePrivilege(caller); err != nil {
		return nil, err
	}
	sub, err := s.store.Get(ctx, subjectID)
	if err != nil {
		return nil, mapStoreErr(err, subjectID)
	}
	if sub.OwnerID() != ownerUserID {
		return nil, apperr.New(apperr.Forbidden, "subject %s is not owned by %s", subjectID, ownerUserID)
	}
	return s.ApplyTransition(ctx, caller, subjectID, action)
}

// BulkApply applies one action to many subjects under a single owner
// context. Items are independent: each is processed on its own, failures
// are reported per item, and one bad id never aborts its siblings.
// Processing is parallelized over a bounded worker pool; on cancellation
// finished writes stand and items never attempted are reported failed
// with reason "canceled", so the caller can retry exactly those.
func (s *LifecycleService) BulkApply(ctx context.Context, caller auth.CallerIdentity, ownerUserID string, subjectIDs []string, action Action) (*BulkResult, error) {
	if !caller.IsPrivileged && caller.UserID != ownerUserID {
		return nil, apperr.New(apperr.Forbidden, "caller %s cannot act for owner %s", caller.UserID, ownerUserID)
	}

	result := &BulkResult{Succeeded: []string{}, Failed: []BulkFailure{}}
	var mu sync.Mutex

	limit := s.cfg.BulkParallelism
	if limit <= 0 {
		limit = 1
	}
	g := &errgroup.Group{}
	g.SetLimit(limit)

	for i, id := range subjectIDs {
		if ctx.Err() != nil {
			mu.Lock()
			for _, skipped := range subjectIDs[i:] {
				result.Failed = append(result.Failed, BulkFailure{ID: skipped, Reason: "canceled"})
			}
			mu.Unlock()
			break
		}
		id := id
		g.Go(func() error {
			if ctx.Err() != nil {
				mu.Lock()
				defer mu.Unlock()
				result.Failed = append(result.Failed, BulkFailure{ID: id, Reason: "canceled"})
				return nil
			}
			err := s.applyBulkItem(ctx, caller, ownerUserID, id, action)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				s.metrics.BulkItems.WithLabelValues(string(action), apperr.KindOf(err).String()).Inc()
				result.Failed = append(result.Failed, BulkFailure{ID: id, Reason: apperr.KindOf(err).String()})
			} else {
				s.metrics.BulkItems.WithLabelValues(string(action), "ok").Inc()
				result.Succeeded = append(result.Succeeded, id)
			}
			return nil
		})
	}
	_ = g.Wait()
	return result, nil
}

// applyBulkItem runs the single-item contract for one bulk entry,
// checking ownership against the batch's owner context.
func (s *LifecycleService) applyBulkItem(ctx context.Context, caller auth.CallerIdentity, ownerUserID, subjectID string, action Action) error {
	sub, err := s.store.Get(ctx, subjectID)
	if err != nil {
		return mapStoreErr(err, subjectID)
	}
	now := s.now().UTC()
	sub.Normalize(now)

	if sub.OwnerID() != ownerUserID {
		s.recorder.Record(ctx, caller.UserID, s.store.Kind(), subjectID, string(action), "forbidden", "")
		return apperr.New(apperr.Forbidden, "subject %s is not owned by %s", subjectID, ownerUserID)
	}

	if action == ActionDelete {
		if err := s.store.Delete(ctx, subjectID); err != nil {
			return mapStoreErr(err, subjectID)
		}
		s.recorder.Record(ctx, caller.UserID, s.store.Kind(), subjectID, string(action), "ok", "")
		s.notifyChanged(sub, string(action))
		return nil
	}

	if err := s.applyAction(sub, action, now); err != nil {
		s.recorder.Record(ctx, caller.UserID, s.store.Kind(), subjectID, string(action), apperr.KindOf(err).String(), string(sub.CurrentState()))
		return err
	}
	if err := s.store.Update(ctx, sub); err != nil {
		return mapStoreErr(err, subjectID)
	}
	s.recorder.Record(ctx, caller.UserID, s.store.Kind(), subjectID, string(action), "ok", string(sub.CurrentState()))
	s.notifyChanged(sub, string(action))
	return nil
}

// SetVerificationStatus moderates the company verification axis. This is
// a separate workflow from publication, always privileged.
func (s *LifecycleService) SetVerificationStatus(ctx context.Context, caller auth.CallerIdentity, subjectID string, status data.VerificationStatus) (Subject, error) {
	if err := s.gate.RequirePrivilege(caller); err != nil {
		return nil, err
	}
	if !status.Valid() {
		return nil, apperr.New(apperr.InvalidTransition, "unknown verification status %q", status)
	}

	sub, err := s.store.Get(ctx, subjectID)
	if err != nil {
		return nil, mapStoreErr(err, subjectID)
	}
	verifiable, ok := sub.(Verifiable)
	if !ok {
		return nil, apperr.New(apperr.InvalidTransition, "%s subjects carry no verification status", s.store.Kind())
	}

	verifiable.SetVerification(status, s.now().UTC())
	if err := s.store.Update(ctx, sub); err != nil {
		return nil, mapStoreErr(err, subjectID)
	}
	s.recorder.Record(ctx, caller.UserID, s.store.Kind(), subjectID, "set_verification", "ok", string(status))
	s.notifyChanged(sub, "set_verification")
	return sub, nil
}

// Sweep persists the lazily-derived flag and expiry changes for records
// whose stored row lags behind the clock. Read paths stay correct without
// it; the sweep just keeps storage and index from drifting. Returns the
// number of records updated.
func (s *LifecycleService) Sweep(ctx context.Context) (int, error) {
	now := s.now().UTC()
	lapsed, err := s.store.ListLapsed(ctx, now)
	if err != nil {
		return 0, apperr.Wrap(apperr.Unexpected, err, "failed to list lapsed records")
	}

	updated := 0
	for _, sub := range lapsed {
		if err := ctx.Err(); err != nil {
			return updated, apperr.Wrap(apperr.Unexpected, err, "sweep canceled")
		}
		if !sub.Normalize(now) {
			continue
		}
		if err := s.store.Update(ctx, sub); err != nil {
			// A concurrent writer or a vanished record resolves itself; the
			// next sweep retries anything else.
			if !errors.Is(err, data.ErrVersionConflict) && !errors.Is(err, data.ErrNotFound) {
				s.log.Error(err, fmt.Sprintf("Sweep failed to update record %s", sub.SubjectID()))
			}
			continue
		}
		s.notifyChanged(sub, "sweep")
		updated++
	}
	return updated, nil
}

// applyAction mutates the subject per the state machine. Flag actions are
// side effects legal only while published; everything else consults the
// transition table.
func (s *LifecycleService) applyAction(sub Subject, action Action, now time.Time) error {
	state := sub.CurrentState()
	switch action {
	case ActionFeature:
		if state != data.StatePublished {
			return apperr.New(apperr.InvalidTransition, "cannot feature a %s record", state)
		}
		sub.SetFeatured(now.Add(s.cfg.FeaturedDuration))
		sub.Touch(now)
	case ActionPromote:
		if state != data.StatePublished {
			return apperr.New(apperr.InvalidTransition, "cannot promote a %s record", state)
		}
		sub.SetPromoted(now.Add(s.cfg.PromotedDuration))
		sub.Touch(now)
	case ActionRefresh:
		if state != data.StatePublished {
			return apperr.New(apperr.InvalidTransition, "cannot refresh a %s record", state)
		}
		sub.SetRefreshed(now.Add(s.cfg.RefreshDuration))
		sub.Touch(now)
	default:
		next, ok := transitions[state][action]
		if !ok {
			return apperr.New(apperr.InvalidTransition, "action %s is not legal from state %s", action, state)
		}
		sub.SetState(next, now)
		// Leaving published drops the featured, promoted and refreshed
		// flags; they never survive a state change.
		sub.Normalize(now)
	}
	return nil
}

func (s *LifecycleService) notifyChanged(sub Subject, action string) {
	s.notifier.NotifyChanged(search.Document{
		SubjectID:   sub.SubjectID(),
		SubjectKind: s.store.Kind(),
		Vertical:    string(sub.SubjectVertical()),
		State:       string(sub.CurrentState()),
		Action:      action,
		ChangedAt:   s.now().UTC(),
	})
}

// envelopeOf reaches the shared envelope of a concrete record.
func envelopeOf(sub Subject) *data.LifecycleEnvelope {
	switch rec := sub.(type) {
	case *data.AdRecord:
		return &rec.LifecycleEnvelope
	case *data.CompanyRecord:
		return &rec.LifecycleEnvelope
	default:
		panic(fmt.Sprintf("unknown subject type %T", sub))
	}
}

// mapStoreErr translates repository sentinels into the error taxonomy.
func mapStoreErr(err error, subjectID string) error {
	switch {
	case errors.Is(err, data.ErrNotFound):
		return apperr.Wrap(apperr.NotFound, err, "subject %s not found", subjectID)
	case errors.Is(err, data.ErrVersionConflict):
		return apperr.Wrap(apperr.Conflict, err, "subject %s was modified concurrently", subjectID)
	default:
		return apperr.Wrap(apperr.Unexpected, err, "store operation failed for subject %s", subjectID)
	}
}
