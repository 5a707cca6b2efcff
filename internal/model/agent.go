package model

import (
	"sort"
	"time"
)

type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarn     Severity = "warn"
	SeverityCritical Severity = "critical"
)

type Action string

const (
	ActionInclude     Action = "include"
	ActionExclude     Action = "exclude"
	ActionService     Action = "service"
	ActionStandby     Action = "standby"
	ActionMaintenance Action = "maintenance"
	ActionCleaning    Action = "cleaning"
	ActionBrand       Action = "brand"
)

var validActions = map[Action]bool{
	ActionInclude:     true,
	ActionExclude:     true,
	ActionService:     true,
	ActionStandby:     true,
	ActionMaintenance: true,
	ActionCleaning:    true,
	ActionBrand:       true,
}

func IsValidAction(a Action) bool {
	return validActions[a]
}

// Constraint tags shared between agents and the orchestrator.
const (
	TagFitnessExpired      = "fitness_certificate_expired"
	TagFitnessExpiring     = "fitness_certificate_expiring"
	TagCriticalMaintenance = "critical_maintenance_pending"
	TagCriticalSystem      = "critical_system_failure"
	TagCleaningScheduled   = "cleaning_scheduled"
)

// ForcedMaintenanceTags is the closed set of tags that force a maintenance role regardless of
// score or remaining capacity.
var ForcedMaintenanceTags = map[string]bool{
	TagFitnessExpired: true,
	TagCriticalSystem: true,
}

type AgentFinding struct {
	Title      string    `yaml:"title" json:"title"`
	Message    string    `yaml:"message" json:"message"`
	Severity   Severity  `yaml:"severity" json:"severity"`
	Timestamp  time.Time `yaml:"timestamp" json:"timestamp"`
	Source     string    `yaml:"source" json:"source"`
	TrainsetID string    `yaml:"trainset_id,omitempty" json:"trainset_id,omitempty"`
}

// AgentRecommendation carries a signed weight: positive encourages the role implied by Action,
// negative discourages it. An empty TrainsetID means the recommendation is fleet-wide.
type AgentRecommendation struct {
	TrainsetID  string   `yaml:"trainset_id,omitempty" json:"trainset_id,omitempty"`
	Action      Action   `yaml:"action" json:"action"`
	Weight      float64  `yaml:"weight" json:"weight"`
	Rationale   string   `yaml:"rationale" json:"rationale"`
	Confidence  float64  `yaml:"confidence" json:"confidence"`
	Constraints []string `yaml:"constraints,omitempty" json:"constraints,omitempty"`
}

type DataQualityMetrics struct {
	Completeness float64 `yaml:"completeness" json:"completeness"`
	Freshness    float64 `yaml:"freshness" json:"freshness"` // minutes
	Consistency  float64 `yaml:"consistency" json:"consistency"`
	Accuracy     float64 `yaml:"accuracy" json:"accuracy"`
}

type StablingMove struct {
	TrainsetID string `yaml:"trainset_id" json:"trainset_id"`
	FromBay    string `yaml:"from_bay,omitempty" json:"from_bay,omitempty"`
	ToBay      string `yaml:"to_bay" json:"to_bay"`
}

// StablingPlan is the bay reassignment proposed by the cleaning-stabling agent.
// TotalMoves never exceeds the MaxShuntingMoves constraint it was built under.
type StablingPlan struct {
	Moves      []StablingMove `yaml:"moves,omitempty" json:"moves,omitempty"`
	Unmoved    []string       `yaml:"unmoved,omitempty" json:"unmoved,omitempty"`
	TotalMoves int            `yaml:"total_moves" json:"total_moves"`
}

type AgentOutput struct {
	Agent           string                `yaml:"agent" json:"agent"`
	Findings        []AgentFinding        `yaml:"findings" json:"findings"`
	Recommendations []AgentRecommendation `yaml:"recommendations" json:"recommendations"`
	ExecutionTime   time.Duration         `yaml:"execution_time" json:"execution_time"`
	DataQuality     DataQualityMetrics    `yaml:"data_quality" json:"data_quality"`
	Stabling        *StablingPlan         `yaml:"stabling,omitempty" json:"stabling,omitempty"`
}

// ExecutionTimeMS reports the agent run time in milliseconds.
func (o AgentOutput) ExecutionTimeMS() int64 {
	return o.ExecutionTime.Milliseconds()
}

func sortSubsystems(s []Subsystem) {
	sort.Slice(s, func(i, j int) bool { return s[i] < s[j] })
}
