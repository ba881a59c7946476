package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	apperrors "recommendation-engine/internal/common/errors"
	"recommendation-engine/internal/models"
)

// fakeStore is an in-memory FeatureStore with injectable failures.
type fakeStore struct {
	mu           sync.Mutex
	users        map[int64]*models.UserProfile
	candidates   map[int64]*models.Candidate
	interactions map[string]models.InteractionRecord

	// failures[op] errors are returned, one per call, before normal behaviour.
	failures map[string][]error
	calls    map[string]int
	pingErr  error

	// afterLoadInteractions runs once, unlocked, after the next successful
	// LoadInteractions.
	afterLoadInteractions func()
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:        map[int64]*models.UserProfile{},
		candidates:   map[int64]*models.Candidate{},
		interactions: map[string]models.InteractionRecord{},
		failures:     map[string][]error{},
		calls:        map[string]int{},
	}
}

func interactionKey(userID, candidateID int64, kind models.InteractionKind) string {
	return fmt.Sprintf("%d|%d|%s", userID, candidateID, kind)
}

func (f *fakeStore) fail(op string, errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[op] = append(f.failures[op], errs...)
}

func (f *fakeStore) callCount(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

// enter records a call and pops an injected failure. Callers hold f.mu.
func (f *fakeStore) enter(op string) error {
	f.calls[op]++
	if errs := f.failures[op]; len(errs) > 0 {
		f.failures[op] = errs[1:]
		return errs[0]
	}
	return nil
}

func (f *fakeStore) LoadUser(_ context.Context, id int64) (*models.UserProfile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("load_user"); err != nil {
		return nil, err
	}
	u, ok := f.users[id]
	if !ok {
		return nil, apperrors.NewNotFoundError("user", id)
	}
	cp := *u
	return &cp, nil
}

func (f *fakeStore) LoadCandidates(_ context.Context, filter models.CandidateFilter) ([]models.Candidate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("load_candidates"); err != nil {
		return nil, err
	}
	out := make([]models.Candidate, 0, len(f.candidates))
	for _, c := range f.candidates {
		if matchesFilter(c, filter) {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func matchesFilter(c *models.Candidate, filter models.CandidateFilter) bool {
	if len(filter.Categories) == 0 && len(filter.Tags) == 0 {
		return true
	}
	anyContains := func(set models.TagSet, patterns []string) bool {
		for member := range set {
			for _, p := range patterns {
				if strings.Contains(member, strings.ToLower(p)) {
					return true
				}
			}
		}
		return false
	}
	return anyContains(c.Categories, filter.Categories) || anyContains(c.Tags, filter.Tags)
}

func (f *fakeStore) LoadInteractions(_ context.Context, userID int64, since *time.Time, limit int) ([]models.InteractionRecord, error) {
	out, hook, err := f.loadInteractions(userID, since, limit)
	if err != nil {
		return nil, err
	}
	if hook != nil {
		hook()
	}
	return out, nil
}

func (f *fakeStore) loadInteractions(userID int64, since *time.Time, limit int) ([]models.InteractionRecord, func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("load_interactions"); err != nil {
		return nil, nil, err
	}
	out := make([]models.InteractionRecord, 0)
	for _, r := range f.interactions {
		if r.UserID != userID {
			continue
		}
		if since != nil && r.Timestamp.Before(*since) {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	hook := f.afterLoadInteractions
	f.afterLoadInteractions = nil
	return out, hook, nil
}

func (f *fakeStore) UpsertInteraction(_ context.Context, r models.InteractionRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("upsert_interaction"); err != nil {
		return err
	}
	if _, ok := f.users[r.UserID]; !ok {
		return apperrors.NewNotFoundError("user", r.UserID)
	}
	if _, ok := f.candidates[r.CandidateID]; !ok {
		return apperrors.NewNotFoundError("business", r.CandidateID)
	}
	f.interactions[interactionKey(r.UserID, r.CandidateID, r.Kind)] = r
	return nil
}

func (f *fakeStore) UpsertUser(_ context.Context, u *models.UserProfile) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("upsert_user"); err != nil {
		return err
	}
	cp := *u
	f.users[u.ID] = &cp
	return nil
}

func (f *fakeStore) UpsertCandidate(_ context.Context, c *models.Candidate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("upsert_candidate"); err != nil {
		return err
	}
	cp := *c
	f.candidates[c.ID] = &cp
	return nil
}

func (f *fakeStore) DeleteUser(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("delete_user"); err != nil {
		return err
	}
	if _, ok := f.users[id]; !ok {
		return apperrors.NewNotFoundError("user", id)
	}
	delete(f.users, id)
	for k, r := range f.interactions {
		if r.UserID == id {
			delete(f.interactions, k)
		}
	}
	return nil
}

func (f *fakeStore) DeleteCandidate(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("delete_candidate"); err != nil {
		return err
	}
	if _, ok := f.candidates[id]; !ok {
		return apperrors.NewNotFoundError("business", id)
	}
	delete(f.candidates, id)
	for k, r := range f.interactions {
		if r.CandidateID == id {
			delete(f.interactions, k)
		}
	}
	return nil
}

func (f *fakeStore) Ping(context.Context) error {
	return f.pingErr
}
