package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/quillon/ruleflow/internal/models"
)

// MemRuleStore is an in-memory RuleStore for tests and the standalone dev
// server.
type MemRuleStore struct {
	mu     sync.RWMutex
	nextID uint
	rules  map[uint]*models.Rule
}

func NewMemRuleStore() *MemRuleStore {
	return &MemRuleStore{rules: make(map[uint]*models.Rule)}
}

func copyRule(r *models.Rule) *models.Rule {
	cp := *r
	cp.Conditions = append([]models.RuleCondition(nil), r.Conditions...)
	cp.Actions = append([]models.RuleAction(nil), r.Actions...)
	sort.Slice(cp.Conditions, func(i, j int) bool { return cp.Conditions[i].Order < cp.Conditions[j].Order })
	sort.Slice(cp.Actions, func(i, j int) bool { return cp.Actions[i].Order < cp.Actions[j].Order })
	return &cp
}

func (s *MemRuleStore) Get(ctx context.Context, id uint) (*models.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rules[id]
	if !ok {
		return nil, fmt.Errorf("%w: rule %d", ErrNotFound, id)
	}
	return copyRule(r), nil
}

func (s *MemRuleStore) ActiveByEvent(ctx context.Context, entityType string, kind models.EventKind) ([]models.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Rule
	for _, r := range s.rules {
		if r.Active && r.TriggerKind == models.TriggerEvent && r.EntityType == entityType && r.EventKind == kind {
			out = append(out, *copyRule(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemRuleStore) ActiveSchedules(ctx context.Context) ([]models.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Rule
	for _, r := range s.rules {
		if r.Active && r.TriggerKind == models.TriggerSchedule {
			out = append(out, *copyRule(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemRuleStore) List(ctx context.Context, tenantID string) ([]models.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Rule
	for _, r := range s.rules {
		if tenantID == "" || r.TenantID == tenantID {
			out = append(out, *copyRule(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemRuleStore) Upsert(ctx context.Context, rule *models.Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, r := range s.rules {
		if r.TenantID == rule.TenantID && r.Name == rule.Name {
			rule.ID = id
			s.rules[id] = copyRule(rule)
			return nil
		}
	}
	if rule.ID == 0 {
		s.nextID++
		rule.ID = s.nextID
	} else if rule.ID > s.nextID {
		s.nextID = rule.ID
	}
	s.rules[rule.ID] = copyRule(rule)
	return nil
}

func (s *MemRuleStore) SetActive(ctx context.Context, id uint, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rules[id]
	if !ok {
		return fmt.Errorf("%w: rule %d", ErrNotFound, id)
	}
	r.Active = active
	return nil
}

// MemLogStore is an in-memory LogStore enforcing the same monotonic
// transition and append-only invariants as the gorm implementation.
type MemLogStore struct {
	mu     sync.RWMutex
	logs   map[string]*models.ExecutionLog
	dedupe map[string]bool
}

func NewMemLogStore() *MemLogStore {
	return &MemLogStore{logs: make(map[string]*models.ExecutionLog), dedupe: make(map[string]bool)}
}

func (s *MemLogStore) Create(ctx context.Context, log *models.ExecutionLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dedupe[log.DedupeKey] {
		return fmt.Errorf("%w: %s", ErrDuplicateJob, log.DedupeKey)
	}
	s.dedupe[log.DedupeKey] = true
	cp := *log
	cp.CreatedAt = time.Now().UTC()
	s.logs[log.ID] = &cp
	return nil
}

func (s *MemLogStore) Transition(ctx context.Context, id string, to models.LogStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	log, ok := s.logs[id]
	if !ok {
		return fmt.Errorf("%w: log %s", ErrNotFound, id)
	}
	if log.Status.Terminal() || to.Rank() <= log.Status.Rank() {
		return fmt.Errorf("%w: %s → %s", ErrInvalidTransition, log.Status, to)
	}
	now := time.Now().UTC()
	if log.StartedAt == nil {
		log.StartedAt = &now
	}
	if to.Terminal() {
		log.FinishedAt = &now
	}
	log.Status = to
	return nil
}

func (s *MemLogStore) SetConditionResults(ctx context.Context, id string, results []models.ConditionResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	log, ok := s.logs[id]
	if !ok {
		return fmt.Errorf("%w: log %s", ErrNotFound, id)
	}
	log.ConditionResults = append([]models.ConditionResult(nil), results...)
	return nil
}

func (s *MemLogStore) AppendStep(ctx context.Context, id string, step models.ActionStepResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	log, ok := s.logs[id]
	if !ok {
		return fmt.Errorf("%w: log %s", ErrNotFound, id)
	}
	if log.Status.Terminal() {
		return fmt.Errorf("%w: append step to terminal log", ErrInvalidTransition)
	}
	log.StepResults = append(log.StepResults, step)
	return nil
}

func (s *MemLogStore) Fail(ctx context.Context, id string, msg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	log, ok := s.logs[id]
	if !ok {
		return fmt.Errorf("%w: log %s", ErrNotFound, id)
	}
	if log.Status.Terminal() {
		return fmt.Errorf("%w: %s is terminal", ErrInvalidTransition, log.Status)
	}
	now := time.Now().UTC()
	if log.StartedAt == nil {
		log.StartedAt = &now
	}
	log.FinishedAt = &now
	log.Status = models.StatusFailed
	log.ErrorMessage = msg
	return nil
}

func (s *MemLogStore) Get(ctx context.Context, id string) (*models.ExecutionLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	log, ok := s.logs[id]
	if !ok {
		return nil, fmt.Errorf("%w: log %s", ErrNotFound, id)
	}
	cp := *log
	return &cp, nil
}

func (s *MemLogStore) Pending(ctx context.Context) ([]models.ExecutionLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.ExecutionLog
	for _, log := range s.logs {
		if log.Status == models.StatusPending {
			out = append(out, *log)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemLogStore) Query(ctx context.Context, q LogQuery) ([]models.ExecutionLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.ExecutionLog
	for _, log := range s.logs {
		if q.RuleID != nil && (log.RuleID == nil || *log.RuleID != *q.RuleID) {
			continue
		}
		if q.TenantID != "" && log.TenantID != q.TenantID {
			continue
		}
		if q.Status != "" && log.Status != q.Status {
			continue
		}
		if q.EntityType != "" && log.EntityType != q.EntityType {
			continue
		}
		if q.EntityID != "" && log.EntityID != q.EntityID {
			continue
		}
		if q.From != nil && log.CreatedAt.Before(*q.From) {
			continue
		}
		if q.To != nil && !log.CreatedAt.Before(*q.To) {
			continue
		}
		out = append(out, *log)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}
