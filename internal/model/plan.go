package model

import (
	"fmt"
	"time"
)

type Role string

const (
	RoleService     Role = "service"
	RoleStandby     Role = "standby"
	RoleMaintenance Role = "maintenance"
)

var validRoles = map[Role]bool{
	RoleService:     true,
	RoleStandby:     true,
	RoleMaintenance: true,
}

func IsValidRole(r Role) bool {
	return validRoles[r]
}

type InductionAssignment struct {
	TrainsetID         string    `yaml:"trainset_id" json:"trainset_id"`
	Role               Role      `yaml:"role" json:"role"`
	Score              float64   `yaml:"score" json:"score"`
	Reasons            []string  `yaml:"reasons" json:"reasons"`
	AssignedBay        string    `yaml:"assigned_bay,omitempty" json:"assigned_bay,omitempty"`
	CleaningScheduled  bool      `yaml:"cleaning_scheduled" json:"cleaning_scheduled"`
	EstimatedReadiness time.Time `yaml:"estimated_readiness" json:"estimated_readiness"`
	RiskFactors        []string  `yaml:"risk_factors" json:"risk_factors"`
}

func (a InductionAssignment) Clone() InductionAssignment {
	c := a
	c.Reasons = append([]string(nil), a.Reasons...)
	c.RiskFactors = append([]string(nil), a.RiskFactors...)
	return c
}

type KPIProjections struct {
	PunctualityRate       float64 `yaml:"punctuality_rate" json:"punctuality_rate"`
	MileageBalance        float64 `yaml:"mileage_balance" json:"mileage_balance"`
	BrandingFulfillment   float64 `yaml:"branding_fulfillment" json:"branding_fulfillment"`
	MaintenanceCompliance float64 `yaml:"maintenance_compliance" json:"maintenance_compliance"`
	EnergyEfficiency      float64 `yaml:"energy_efficiency" json:"energy_efficiency"`
}

// Sub returns k - other field by field.
func (k KPIProjections) Sub(other KPIProjections) KPIProjections {
	return KPIProjections{
		PunctualityRate:       k.PunctualityRate - other.PunctualityRate,
		MileageBalance:        k.MileageBalance - other.MileageBalance,
		BrandingFulfillment:   k.BrandingFulfillment - other.BrandingFulfillment,
		MaintenanceCompliance: k.MaintenanceCompliance - other.MaintenanceCompliance,
		EnergyEfficiency:      k.EnergyEfficiency - other.EnergyEfficiency,
	}
}

type InductionPlan struct {
	ID             string                `yaml:"id" json:"id"`
	GeneratedAt    time.Time             `yaml:"generated_at" json:"generated_at"`
	Assignments    []InductionAssignment `yaml:"assignments" json:"assignments"`
	ObjectiveNotes []string              `yaml:"objective_notes" json:"objective_notes"`
	KPIProjections KPIProjections        `yaml:"kpi_projections" json:"kpi_projections"`
	Constraints    GlobalConstraints     `yaml:"constraints" json:"constraints"`
	ApprovalStatus ApprovalStatus        `yaml:"approval_status" json:"approval_status"`
	ApprovedBy     string                `yaml:"approved_by,omitempty" json:"approved_by,omitempty"`
	ApprovedAt     *time.Time            `yaml:"approved_at,omitempty" json:"approved_at,omitempty"`
	AuditTrail     []AuditEntry          `yaml:"audit_trail" json:"audit_trail"`
}

// Assignment returns the index of the trainset's assignment, or -1.
func (p *InductionPlan) Assignment(trainsetID string) int {
	for i, a := range p.Assignments {
		if a.TrainsetID == trainsetID {
			return i
		}
	}
	return -1
}

// RoleCounts returns the number of assignments per role.
func (p *InductionPlan) RoleCounts() map[Role]int {
	counts := make(map[Role]int, len(validRoles))
	for _, a := range p.Assignments {
		counts[a.Role]++
	}
	return counts
}

func (p *InductionPlan) TotalRiskFactors() int {
	n := 0
	for _, a := range p.Assignments {
		n += len(a.RiskFactors)
	}
	return n
}

// Clone returns a deep copy of the plan. Store readers only ever see clones.
func (p *InductionPlan) Clone() *InductionPlan {
	if p == nil {
		return nil
	}
	c := *p
	c.Assignments = make([]InductionAssignment, len(p.Assignments))
	for i, a := range p.Assignments {
		c.Assignments[i] = a.Clone()
	}
	c.ObjectiveNotes = append([]string(nil), p.ObjectiveNotes...)
	if p.ApprovedAt != nil {
		at := *p.ApprovedAt
		c.ApprovedAt = &at
	}
	c.AuditTrail = make([]AuditEntry, len(p.AuditTrail))
	for i, e := range p.AuditTrail {
		c.AuditTrail[i] = e.Clone()
	}
	return &c
}

type SupervisorOverride struct {
	ID                 string              `yaml:"id" json:"id"`
	PlanID             string              `yaml:"plan_id" json:"plan_id"`
	TrainsetID         string              `yaml:"trainset_id" json:"trainset_id"`
	OriginalAssignment InductionAssignment `yaml:"original_assignment" json:"original_assignment"`
	OverrideAssignment InductionAssignment `yaml:"override_assignment" json:"override_assignment"`
	Reason             string              `yaml:"reason" json:"reason"`
	Supervisor         string              `yaml:"supervisor" json:"supervisor"`
	Timestamp          time.Time           `yaml:"timestamp" json:"timestamp"`
	Approved           bool                `yaml:"approved" json:"approved"`
}

type AuditKind string

const (
	AuditPlanGenerated   AuditKind = "plan_generated"
	AuditOverrideApplied AuditKind = "supervisor_override_applied"
	AuditPlanApproved    AuditKind = "plan_approved"
	AuditPlanRejected    AuditKind = "plan_rejected"
)

type PlanGeneratedAudit struct {
	FleetSize       int `yaml:"fleet_size" json:"fleet_size"`
	AssignmentCount int `yaml:"assignment_count" json:"assignment_count"`
}

type OverrideAppliedAudit struct {
	TrainsetID string              `yaml:"trainset_id" json:"trainset_id"`
	Previous   InductionAssignment `yaml:"previous" json:"previous"`
	New        InductionAssignment `yaml:"new" json:"new"`
	Reason     string              `yaml:"reason" json:"reason"`
}

type PlanApprovedAudit struct {
	Approver       string         `yaml:"approver" json:"approver"`
	PreviousStatus ApprovalStatus `yaml:"previous_status" json:"previous_status"`
}

type PlanRejectedAudit struct {
	Reviewer       string         `yaml:"reviewer" json:"reviewer"`
	Reason         string         `yaml:"reason" json:"reason"`
	PreviousStatus ApprovalStatus `yaml:"previous_status" json:"previous_status"`
}

// AuditEntry is a tagged union: exactly one variant pointer is set and it must match Kind.
type AuditEntry struct {
	ID        string    `yaml:"id,omitempty" json:"id,omitempty"`
	Kind      AuditKind `yaml:"kind" json:"kind"`
	Timestamp time.Time `yaml:"timestamp" json:"timestamp"`
	User      string    `yaml:"user" json:"user"`
	Details   string    `yaml:"details" json:"details"`

	PlanGenerated   *PlanGeneratedAudit   `yaml:"plan_generated,omitempty" json:"plan_generated,omitempty"`
	OverrideApplied *OverrideAppliedAudit `yaml:"override_applied,omitempty" json:"override_applied,omitempty"`
	PlanApproved    *PlanApprovedAudit    `yaml:"plan_approved,omitempty" json:"plan_approved,omitempty"`
	PlanRejected    *PlanRejectedAudit    `yaml:"plan_rejected,omitempty" json:"plan_rejected,omitempty"`
}

func (e AuditEntry) Validate() error {
	set := 0
	var match bool
	if e.PlanGenerated != nil {
		set++
		match = e.Kind == AuditPlanGenerated
	}
	if e.OverrideApplied != nil {
		set++
		match = e.Kind == AuditOverrideApplied
	}
	if e.PlanApproved != nil {
		set++
		match = e.Kind == AuditPlanApproved
	}
	if e.PlanRejected != nil {
		set++
		match = e.Kind == AuditPlanRejected
	}
	if set != 1 {
		return fmt.Errorf("audit entry %q: expected exactly one payload, got %d", e.Kind, set)
	}
	if !match {
		return fmt.Errorf("audit entry payload does not match kind %q", e.Kind)
	}
	return nil
}

func (e AuditEntry) Clone() AuditEntry {
	c := e
	if e.PlanGenerated != nil {
		v := *e.PlanGenerated
		c.PlanGenerated = &v
	}
	if e.OverrideApplied != nil {
		v := *e.OverrideApplied
		v.Previous = v.Previous.Clone()
		v.New = v.New.Clone()
		c.OverrideApplied = &v
	}
	if e.PlanApproved != nil {
		v := *e.PlanApproved
		c.PlanApproved = &v
	}
	if e.PlanRejected != nil {
		v := *e.PlanRejected
		c.PlanRejected = &v
	}
	return c
}

func NewPlanGeneratedEntry(at time.Time, fleetSize, assignments int) AuditEntry {
	return AuditEntry{
		Kind:      AuditPlanGenerated,
		Timestamp: at,
		User:      "system",
		Details:   fmt.Sprintf("Generated induction plan for %d trainsets with %d assignments", fleetSize, assignments),
		PlanGenerated: &PlanGeneratedAudit{
			FleetSize:       fleetSize,
			AssignmentCount: assignments,
		},
	}
}

func NewOverrideAppliedEntry(at time.Time, supervisor, reason string, previous, next InductionAssignment) AuditEntry {
	return AuditEntry{
		Kind:      AuditOverrideApplied,
		Timestamp: at,
		User:      supervisor,
		Details:   fmt.Sprintf("Override applied for %s: %s → %s", previous.TrainsetID, previous.Role, next.Role),
		OverrideApplied: &OverrideAppliedAudit{
			TrainsetID: previous.TrainsetID,
			Previous:   previous.Clone(),
			New:        next.Clone(),
			Reason:     reason,
		},
	}
}

func NewPlanApprovedEntry(at time.Time, planID, approver string, previous ApprovalStatus) AuditEntry {
	return AuditEntry{
		Kind:      AuditPlanApproved,
		Timestamp: at,
		User:      approver,
		Details:   fmt.Sprintf("Plan %s approved for execution", planID),
		PlanApproved: &PlanApprovedAudit{
			Approver:       approver,
			PreviousStatus: previous,
		},
	}
}

func NewPlanRejectedEntry(at time.Time, planID, reviewer, reason string, previous ApprovalStatus) AuditEntry {
	return AuditEntry{
		Kind:      AuditPlanRejected,
		Timestamp: at,
		User:      reviewer,
		Details:   fmt.Sprintf("Plan %s rejected: %s", planID, reason),
		PlanRejected: &PlanRejectedAudit{
			Reviewer:       reviewer,
			Reason:         reason,
			PreviousStatus: previous,
		},
	}
}
