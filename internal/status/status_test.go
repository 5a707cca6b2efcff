package status

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Rishikoli/speedline-metro-glow/internal/events"
	"github.com/Rishikoli/speedline-metro-glow/internal/model"
)

func testFleet() []model.TrainsetSnapshot {
	return []model.TrainsetSnapshot{
		{ID: "TS-101", KM: 100000},
		{
			ID: "TS-205", KM: 101001, CleaningRequired: true,
			OpenWorkOrders: []model.WorkOrder{{ID: "WO-1", Type: model.WorkOrderCritical, System: model.SubsystemBrakes, Priority: 9}},
		},
		{
			ID: "TS-317", KM: 99000,
			SystemHealth: map[model.Subsystem]model.SubsystemHealth{
				model.SubsystemHVAC: {Status: model.HealthCritical},
			},
		},
		{
			ID: "TS-442", KM: 98000, CleaningRequired: true,
			OpenWorkOrders: []model.WorkOrder{{ID: "WO-2", Type: model.WorkOrderPreventive, System: model.SubsystemDoors, Priority: 3}},
		},
	}
}

func TestFleet(t *testing.T) {
	s := Fleet(testFleet())

	assert.Equal(t, FleetStatus{
		Total:            4,
		Available:        2,
		InMaintenance:    1,
		CleaningRequired: 2,
		CriticalIssues:   1,
		AverageMileage:   99500,
	}, s)
}

func TestFleet_Empty(t *testing.T) {
	assert.Equal(t, FleetStatus{}, Fleet(nil))
}

func TestAgentHealth(t *testing.T) {
	outputs := []model.AgentOutput{
		{Agent: "data-ingestion", ExecutionTime: 3 * time.Millisecond},
		{
			Agent: "constraint-enforcement",
			Findings: []model.AgentFinding{
				{Severity: model.SeverityCritical},
				{Severity: model.SeverityWarn},
				{Severity: model.SeverityInfo},
			},
			Recommendations: []model.AgentRecommendation{{TrainsetID: "TS-1", Action: model.ActionExclude}},
		},
		{Agent: "optimization", Findings: []model.AgentFinding{{Severity: model.SeverityWarn}}},
	}

	reports := AgentHealth(outputs)
	require.Len(t, reports, 3)

	assert.Equal(t, "data-ingestion", reports[0].Agent)
	assert.Equal(t, model.HealthOK, reports[0].Status)
	assert.Equal(t, 3*time.Millisecond, reports[0].ExecutionTime)
	assert.Equal(t, "0 findings, 0 recommendations", reports[0].Summary)

	assert.Equal(t, model.HealthCritical, reports[1].Status)
	assert.Equal(t, map[model.Severity]int{
		model.SeverityInfo:     1,
		model.SeverityWarn:     1,
		model.SeverityCritical: 1,
	}, reports[1].FindingCounts)
	assert.Equal(t, "3 findings, 1 recommendations", reports[1].Summary)

	assert.Equal(t, model.HealthWarn, reports[2].Status)
}

func TestSystem(t *testing.T) {
	tests := []struct {
		name     string
		statuses []model.HealthStatus
		want     Overall
	}{
		{"no agents", nil, OverallHealthy},
		{"all ok", []model.HealthStatus{model.HealthOK, model.HealthOK}, OverallHealthy},
		{"one warn", []model.HealthStatus{model.HealthOK, model.HealthWarn}, OverallWarning},
		{"critical wins", []model.HealthStatus{model.HealthWarn, model.HealthCritical, model.HealthOK}, OverallCritical},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var agents []AgentReport
			for _, s := range tt.statuses {
				agents = append(agents, AgentReport{Status: s})
			}
			assert.Equal(t, tt.want, System(agents, events.Summary{}).Overall)
		})
	}
}

func TestSummarizePlan(t *testing.T) {
	assert.Nil(t, SummarizePlan(nil))

	p := &model.InductionPlan{
		ID:             "PLAN-1",
		ApprovalStatus: model.ApprovalModified,
		Assignments: []model.InductionAssignment{
			{TrainsetID: "A", Role: model.RoleService},
			{TrainsetID: "B", Role: model.RoleService},
			{TrainsetID: "C", Role: model.RoleMaintenance},
		},
	}
	s := SummarizePlan(p)
	require.NotNil(t, s)
	assert.Equal(t, "PLAN-1", s.ID)
	assert.Equal(t, model.ApprovalModified, s.ApprovalStatus)
	assert.Equal(t, 2, s.Roles[model.RoleService])
	assert.Equal(t, 1, s.Roles[model.RoleMaintenance])
}

func TestPrint_Text(t *testing.T) {
	r := Report{
		Fleet: Fleet(testFleet()),
		System: System(AgentHealth([]model.AgentOutput{{Agent: "optimization"}}), events.Summary{
			Total: 3, PlanGenerations: 2, Overrides: 1, OverrideRate: 0.5,
		}),
		Plan: &PlanSummary{
			ID:             "PLAN-1",
			ApprovalStatus: model.ApprovalPending,
			Roles:          map[model.Role]int{model.RoleService: 2, model.RoleStandby: 1},
			KPIs:           model.KPIProjections{PunctualityRate: 0.985},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, Print(&buf, r, false))
	out := buf.String()

	assert.Contains(t, out, "System: healthy")
	assert.Contains(t, out, "total=4  available=2")
	assert.Contains(t, out, "average_mileage=99500 km")
	assert.Contains(t, out, "optimization")
	assert.Contains(t, out, "Current plan: PLAN-1 (pending)")
	assert.Contains(t, out, "service=2  standby=1  maintenance=0")
	assert.Contains(t, out, "punctuality=98.5%")
	assert.Contains(t, out, "Audit: 3 entries, 2 plans, 1 overrides (rate 50.0%)")
}

func TestPrint_NoAgents(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Print(&buf, Report{System: System(nil, events.Summary{})}, false))
	assert.Contains(t, buf.String(), "Agents: none")
	assert.NotContains(t, buf.String(), "Current plan")
}

func TestPrint_JSON(t *testing.T) {
	r := Report{Fleet: Fleet(testFleet()), System: System(nil, events.Summary{})}

	var buf bytes.Buffer
	require.NoError(t, Print(&buf, r, true))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "healthy", decoded["system"].(map[string]any)["overall"])
	assert.Equal(t, float64(4), decoded["fleet"].(map[string]any)["total"])
	assert.NotContains(t, decoded, "plan")
}
