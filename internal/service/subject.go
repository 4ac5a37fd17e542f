package service

import (
	"context"
	"time"

	"go-classifieds-app/internal/data"
)

// Subject is any entity governed by the lifecycle state machine: a
// classified ad or a company profile. Concrete payloads stay opaque to
// the engine.
type Subject interface {
	SubjectID() string
	OwnerID() string
	SubjectVertical() data.Vertical
	CategoryNode() string
	CurrentState() data.State
	SetState(s data.State, now time.Time)
	SetFeatured(until time.Time)
	SetPromoted(until time.Time)
	SetRefreshed(until time.Time)
	Touch(now time.Time)
	Normalize(now time.Time) bool
}

// Verifiable is the optional verification axis carried by company
// subjects.
type Verifiable interface {
	Subject
	SetVerification(status data.VerificationStatus, now time.Time)
}

// SubjectStore is the persistence contract the lifecycle engine works
// against: single-record reads and compare-and-swap writes keyed by id.
type SubjectStore interface {
	Kind() string
	Get(ctx context.Context, id string) (Subject, error)
	Create(ctx context.Context, sub Subject) error
	Update(ctx context.Context, sub Subject) error
	Delete(ctx context.Context, id string) error
	ListByOwner(ctx context.Context, ownerUserID string) ([]Subject, error)
	ListLapsed(ctx context.Context, now time.Time) ([]Subject, error)
}

// AdStore adapts the ad repository to the SubjectStore contract.
type AdStore struct {
	Repo *data.AdRepository
}

// Kind identifies the subject kind for audit and index events.
func (s *AdStore) Kind() string { return "ad" }

func (s *AdStore) Get(ctx context.Context, id string) (Subject, error) {
	return s.Repo.Get(ctx, id)
}

func (s *AdStore) Create(ctx context.Context, sub Subject) error {
	return s.Repo.Create(ctx, sub.(*data.AdRecord))
}

func (s *AdStore) Update(ctx context.Context, sub Subject) error {
	return s.Repo.Update(ctx, sub.(*data.AdRecord))
}

func (s *AdStore) Delete(ctx context.Context, id string) error {
	return s.Repo.Delete(ctx, id)
}

func (s *AdStore) ListByOwner(ctx context.Context, ownerUserID string) ([]Subject, error) {
	recs, err := s.Repo.ListByOwner(ctx, ownerUserID)
	if err != nil {
		return nil, err
	}
	subs := make([]Subject, len(recs))
	for i, rec := range recs {
		subs[i] = rec
	}
	return subs, nil
}

func (s *AdStore) ListLapsed(ctx context.Context, now time.Time) ([]Subject, error) {
	recs, err := s.Repo.ListLapsed(ctx, now)
	if err != nil {
		return nil, err
	}
	subs := make([]Subject, len(recs))
	for i, rec := range recs {
		subs[i] = rec
	}
	return subs, nil
}

// CompanyStore adapts the company repository to the SubjectStore contract.
type CompanyStore struct {
	Repo *data.CompanyRepository
}

// Kind identifies the subject kind for audit and index events.
func (s *CompanyStore) Kind() string { return "company" }

func (s *CompanyStore) Get(ctx context.Context, id string) (Subject, error) {
	return s.Repo.Get(ctx, id)
}

func (s *CompanyStore) Create(ctx context.Context, sub Subject) error {
	return s.Repo.Create(ctx, sub.(*data.CompanyRecord))
}

func (s *CompanyStore) Update(ctx context.Context, sub Subject) error {
	return s.Repo.Update(ctx, sub.(*data.CompanyRecord))
}

func (s *CompanyStore) Delete(ctx context.Context, id string) error {
	return s.Repo.Delete(ctx, id)
}

func (s *CompanyStore) ListByOwner(ctx context.Context, ownerUserID string) ([]Subject, error) {
	recs, err := s.Repo.ListByOwner(ctx, ownerUserID)
	if err != nil {
		return nil, err
	}
	subs := make([]Subject, len(recs))
	for i, rec := range recs {
		subs[i] = rec
	}
	return subs, nil
}

func (s *CompanyStore) ListLapsed(ctx context.Context, now time.Time) ([]Subject, error) {
	recs, err := s.Repo.ListLapsed(ctx, now)
	if err != nil {
		return nil, err
	}
	subs := make([]Subject, len(recs))
	for i, rec := range recs {
		subs[i] = rec
	}
	return subs, nil
}
