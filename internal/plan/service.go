package plan

import (
	"context"
	"fmt"
	"time"

	"github.com/Rishikoli/speedline-metro-glow/internal/events"
	"github.com/Rishikoli/speedline-metro-glow/internal/lock"
	"github.com/Rishikoli/speedline-metro-glow/internal/logging"
	"github.com/Rishikoli/speedline-metro-glow/internal/model"
	"github.com/Rishikoli/speedline-metro-glow/internal/orchestrator"
	"github.com/Rishikoli/speedline-metro-glow/internal/status"
)

// Planner builds a plan from one input snapshot. *orchestrator.Orchestrator satisfies it.
type Planner interface {
	Run(ctx context.Context, in orchestrator.Input) (orchestrator.Result, error)
}

// AuditSink receives every audit entry the service creates. *events.AuditLogger satisfies it.
type AuditSink interface {
	Append(planID string, entry model.AuditEntry) error
}

// Service is the planning facade: it generates plans, stores them and runs the supervisor
// override and approval workflow.
type Service struct {
	planner Planner
	store   Store
	audit   AuditSink
	bus     *events.Bus
	logger  *logging.Logger
	now     func() time.Time
	newID   model.IDGenerator
	locks   *lock.MutexMap
}

type Option func(*Service)

func WithAuditSink(a AuditSink) Option {
	return func(s *Service) { s.audit = a }
}

func WithBus(b *events.Bus) Option {
	return func(s *Service) { s.bus = b }
}

func WithLogger(l *logging.Logger) Option {
	return func(s *Service) { s.logger = l.With("plan") }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithIDGenerator(gen model.IDGenerator) Option {
	return func(s *Service) { s.newID = gen }
}

func NewService(planner Planner, store Store, opts ...Option) *Service {
	s := &Service{
		planner: planner,
		store:   store,
		logger:  logging.Discard(),
		now:     time.Now,
		newID:   model.GenerateID,
		locks:   lock.NewMutexMap(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type GenerateResult struct {
	Plan         *model.InductionPlan
	AgentOutputs []model.AgentOutput
	AgentHealth  []status.AgentReport
	Duration     time.Duration
}

// Generate runs the planner and publishes the plan as current. Nothing is stored when planning
// fails or ctx is cancelled before the plan is complete.
func (s *Service) Generate(ctx context.Context, in orchestrator.Input) (GenerateResult, error) {
	start := s.now()
	res, err := s.planner.Run(ctx, in)
	if err != nil {
		return GenerateResult{}, err
	}
	if err := ctx.Err(); err != nil {
		return GenerateResult{}, err
	}

	p := res.Plan
	for i := range p.AuditTrail {
		if p.AuditTrail[i].ID != "" {
			continue
		}
		id, err := s.newID(model.IDTypeAudit)
		if err != nil {
			return GenerateResult{}, fmt.Errorf("audit id: %w", err)
		}
		p.AuditTrail[i].ID = id
	}

	if err := s.store.Save(p); err != nil {
		return GenerateResult{}, fmt.Errorf("store plan %s: %w", p.ID, err)
	}
	for _, e := range p.AuditTrail {
		s.recordAudit(p.ID, e)
	}
	s.bus.Publish(events.EventPlanGenerated, p.ID, map[string]any{
		"fleet_size":  len(in.Fleet),
		"assignments": len(p.Assignments),
	})

	return GenerateResult{
		Plan:         p.Clone(),
		AgentOutputs: res.AgentOutputs,
		AgentHealth:  status.AgentHealth(res.AgentOutputs),
		Duration:     s.now().Sub(start),
	}, nil
}

type OverrideResult struct {
	// Plan is the stored plan after the override, approval status modified.
	Plan     *model.InductionPlan
	Override model.SupervisorOverride
}

// ApplyOverride moves one trainset to role. Only the role and reasons of the assignment change.
func (s *Service) ApplyOverride(planID, trainsetID string, role model.Role, reason, supervisor string) (OverrideResult, error) {
	var errs model.ValidationErrors
	if !model.IsValidRole(role) {
		errs.Add("role", fmt.Sprintf("invalid role %q", role))
	}
	if supervisor == "" {
		errs.Add("supervisor", "required")
	}
	if reason == "" {
		errs.Add("reason", "required")
	}
	if err := errs.OrNil(); err != nil {
		return OverrideResult{}, err
	}

	var override model.SupervisorOverride
	var entry model.AuditEntry
	var updated *model.InductionPlan
	err := s.locks.Do(planID, func() error {
		ovrID, err := s.newID(model.IDTypeOverride)
		if err != nil {
			return fmt.Errorf("override id: %w", err)
		}
		audID, err := s.newID(model.IDTypeAudit)
		if err != nil {
			return fmt.Errorf("audit id: %w", err)
		}
		now := s.now()

		updated, err = s.store.Update(planID, func(p *model.InductionPlan) error {
			if err := transition(p, model.ApprovalModified); err != nil {
				return err
			}
			i := p.Assignment(trainsetID)
			if i < 0 {
				return &NotFoundError{PlanID: planID, TrainsetID: trainsetID}
			}

			prev := p.Assignments[i].Clone()
			next := prev.Clone()
			next.Role = role
			next.Reasons = append(next.Reasons, "Supervisor override: "+reason)
			p.Assignments[i] = next

			entry = model.NewOverrideAppliedEntry(now, supervisor, reason, prev, next)
			entry.ID = audID
			p.AuditTrail = append(p.AuditTrail, entry)

			override = model.SupervisorOverride{
				ID:                 ovrID,
				PlanID:             planID,
				TrainsetID:         trainsetID,
				OriginalAssignment: prev,
				OverrideAssignment: next.Clone(),
				Reason:             reason,
				Supervisor:         supervisor,
				Timestamp:          now,
				Approved:           true,
			}
			return nil
		})
		if err != nil {
			return err
		}
		return s.store.RecordOverride(override)
	})
	if err != nil {
		return OverrideResult{}, err
	}

	s.logger.Infof("override %s on plan %s: %s %s -> %s by %s", override.ID, planID, trainsetID,
		override.OriginalAssignment.Role, role, supervisor)
	s.recordAudit(planID, entry)
	s.bus.Publish(events.EventOverrideApplied, planID, map[string]any{
		"override_id": override.ID,
		"trainset_id": trainsetID,
		"from":        string(override.OriginalAssignment.Role),
		"to":          string(role),
		"supervisor":  supervisor,
	})
	return OverrideResult{Plan: updated, Override: override}, nil
}

// Approve marks a pending or modified plan approved for execution.
func (s *Service) Approve(planID, approver string) (*model.InductionPlan, error) {
	if approver == "" {
		var errs model.ValidationErrors
		errs.Add("approver", "required")
		return nil, &errs
	}

	var entry model.AuditEntry
	var approved *model.InductionPlan
	err := s.locks.Do(planID, func() error {
		audID, err := s.newID(model.IDTypeAudit)
		if err != nil {
			return fmt.Errorf("audit id: %w", err)
		}
		now := s.now()

		approved, err = s.store.Update(planID, func(p *model.InductionPlan) error {
			prev := p.ApprovalStatus
			if err := transition(p, model.ApprovalApproved); err != nil {
				return err
			}
			p.ApprovedBy = approver
			p.ApprovedAt = &now
			entry = model.NewPlanApprovedEntry(now, planID, approver, prev)
			entry.ID = audID
			p.AuditTrail = append(p.AuditTrail, entry)
			return nil
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Infof("plan %s approved by %s", planID, approver)
	s.recordAudit(planID, entry)
	s.bus.Publish(events.EventPlanApproved, planID, map[string]any{"approver": approver})
	return approved, nil
}

// Reject closes a pending or modified plan without executing it.
func (s *Service) Reject(planID, reviewer, reason string) (*model.InductionPlan, error) {
	var errs model.ValidationErrors
	if reviewer == "" {
		errs.Add("reviewer", "required")
	}
	if reason == "" {
		errs.Add("reason", "required")
	}
	if err := errs.OrNil(); err != nil {
		return nil, err
	}

	var entry model.AuditEntry
	var rejected *model.InductionPlan
	err := s.locks.Do(planID, func() error {
		audID, err := s.newID(model.IDTypeAudit)
		if err != nil {
			return fmt.Errorf("audit id: %w", err)
		}
		now := s.now()

		rejected, err = s.store.Update(planID, func(p *model.InductionPlan) error {
			prev := p.ApprovalStatus
			if err := transition(p, model.ApprovalRejected); err != nil {
				return err
			}
			entry = model.NewPlanRejectedEntry(now, planID, reviewer, reason, prev)
			entry.ID = audID
			p.AuditTrail = append(p.AuditTrail, entry)
			return nil
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Infof("plan %s rejected by %s: %s", planID, reviewer, reason)
	s.recordAudit(planID, entry)
	s.bus.Publish(events.EventPlanRejected, planID, map[string]any{"reviewer": reviewer, "reason": reason})
	return rejected, nil
}

func (s *Service) Get(planID string) (*model.InductionPlan, error) {
	return s.store.Get(planID)
}

func (s *Service) Current() (*model.InductionPlan, error) {
	return s.store.Current()
}

func (s *Service) History(limit int) ([]*model.InductionPlan, error) {
	return s.store.History(limit)
}

func (s *Service) Overrides(planID string) ([]model.SupervisorOverride, error) {
	return s.store.Overrides(planID)
}

// recordAudit copies an entry to the external audit sink. The plan already carries the entry in
// its own trail, so a sink failure is logged rather than undoing the stored change.
func (s *Service) recordAudit(planID string, entry model.AuditEntry) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Append(planID, entry); err != nil {
		s.logger.Errorf("audit append for plan %s (%s): %v", planID, entry.Kind, err)
	}
}
