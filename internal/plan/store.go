// Package plan stores induction plans and implements the supervisor override and approval
// workflow on top of them.
package plan

import (
	"sync"

	"github.com/Rishikoli/speedline-metro-glow/internal/model"
)

// Store keeps the current plan and a bounded history. The newest saved plan is current and is
// also the newest history entry. Implementations return deep copies from every read.
type Store interface {
	// Save publishes p as the current plan. An id that is still stored is refused with a
	// *DuplicateError and the store is left unchanged.
	Save(p *model.InductionPlan) error
	Get(id string) (*model.InductionPlan, error)
	Current() (*model.InductionPlan, error)
	// History returns up to limit plans, newest first. limit <= 0 returns all of them.
	History(limit int) ([]*model.InductionPlan, error)
	// Update applies fn to a copy of the plan and stores the copy only if fn succeeds.
	Update(id string, fn func(*model.InductionPlan) error) (*model.InductionPlan, error)
	RecordOverride(o model.SupervisorOverride) error
	// Overrides lists overrides for planID in the order they were recorded; "" lists the
	// overrides of every stored plan.
	Overrides(planID string) ([]model.SupervisorOverride, error)
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu        sync.RWMutex
	plans     []*model.InductionPlan // oldest first
	overrides []model.SupervisorOverride
	limit     int
}

func NewMemoryStore(limit int) *MemoryStore {
	if limit <= 0 {
		limit = model.DefaultHistoryLimit
	}
	return &MemoryStore{limit: limit}
}

func (s *MemoryStore) Save(p *model.InductionPlan) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if indexOf(s.plans, p.ID) >= 0 {
		return &DuplicateError{PlanID: p.ID}
	}
	s.plans = append(s.plans, p.Clone())
	var evicted []string
	s.plans, evicted = trimHistory(s.plans, s.limit)
	s.overrides = dropOverrides(s.overrides, evicted)
	return nil
}

func (s *MemoryStore) Get(id string) (*model.InductionPlan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if i := indexOf(s.plans, id); i >= 0 {
		return s.plans[i].Clone(), nil
	}
	return nil, &NotFoundError{PlanID: id}
}

func (s *MemoryStore) Current() (*model.InductionPlan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.plans) == 0 {
		return nil, &NotFoundError{}
	}
	return s.plans[len(s.plans)-1].Clone(), nil
}

func (s *MemoryStore) History(limit int) ([]*model.InductionPlan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newestFirst(s.plans, limit), nil
}

func (s *MemoryStore) Update(id string, fn func(*model.InductionPlan) error) (*model.InductionPlan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := indexOf(s.plans, id)
	if i < 0 {
		return nil, &NotFoundError{PlanID: id}
	}
	next := s.plans[i].Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	s.plans[i] = next
	return next.Clone(), nil
}

func (s *MemoryStore) RecordOverride(o model.SupervisorOverride) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if indexOf(s.plans, o.PlanID) < 0 {
		return &NotFoundError{PlanID: o.PlanID}
	}
	s.overrides = append(s.overrides, cloneOverride(o))
	return nil
}

func (s *MemoryStore) Overrides(planID string) ([]model.SupervisorOverride, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if planID != "" && indexOf(s.plans, planID) < 0 {
		return nil, &NotFoundError{PlanID: planID}
	}
	return filterOverrides(s.overrides, planID), nil
}

// trimHistory drops the oldest plans beyond limit and returns their ids.
func trimHistory(plans []*model.InductionPlan, limit int) ([]*model.InductionPlan, []string) {
	if len(plans) <= limit {
		return plans, nil
	}
	cut := len(plans) - limit
	evicted := make([]string, 0, cut)
	for _, p := range plans[:cut] {
		evicted = append(evicted, p.ID)
	}
	return append([]*model.InductionPlan(nil), plans[cut:]...), evicted
}

func dropOverrides(overrides []model.SupervisorOverride, planIDs []string) []model.SupervisorOverride {
	if len(planIDs) == 0 {
		return overrides
	}
	gone := make(map[string]bool, len(planIDs))
	for _, id := range planIDs {
		gone[id] = true
	}
	kept := overrides[:0]
	for _, o := range overrides {
		if !gone[o.PlanID] {
			kept = append(kept, o)
		}
	}
	return kept
}

func filterOverrides(overrides []model.SupervisorOverride, planID string) []model.SupervisorOverride {
	out := []model.SupervisorOverride{}
	for _, o := range overrides {
		if planID == "" || o.PlanID == planID {
			out = append(out, cloneOverride(o))
		}
	}
	return out
}

func newestFirst(plans []*model.InductionPlan, limit int) []*model.InductionPlan {
	n := len(plans)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]*model.InductionPlan, 0, n)
	for i := len(plans) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, plans[i].Clone())
	}
	return out
}

func indexOf(plans []*model.InductionPlan, id string) int {
	for i, p := range plans {
		if p.ID == id {
			return i
		}
	}
	return -1
}

func cloneOverride(o model.SupervisorOverride) model.SupervisorOverride {
	c := o
	c.OriginalAssignment = o.OriginalAssignment.Clone()
	c.OverrideAssignment = o.OverrideAssignment.Clone()
	return c
}
