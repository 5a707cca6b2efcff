// Package status summarises fleet availability, agent health and overall system health.
package status

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/Rishikoli/speedline-metro-glow/internal/events"
	"github.com/Rishikoli/speedline-metro-glow/internal/model"
)

type FleetStatus struct {
	Total            int `json:"total"`
	Available        int `json:"available"`
	InMaintenance    int `json:"in_maintenance"`
	CleaningRequired int `json:"cleaning_required"`
	CriticalIssues   int `json:"critical_issues"`
	AverageMileage   int `json:"average_mileage"`
}

// Fleet counts trainsets by condition. A trainset is available when it has neither a critical
// work order nor a critical subsystem.
func Fleet(fleet []model.TrainsetSnapshot) FleetStatus {
	s := FleetStatus{Total: len(fleet)}
	if len(fleet) == 0 {
		return s
	}
	totalKM := 0
	for _, ts := range fleet {
		totalKM += ts.KM
		critWO := ts.CriticalWorkOrders() > 0
		critSys := len(ts.CriticalSubsystems()) > 0
		if !critWO && !critSys {
			s.Available++
		}
		if critWO {
			s.InMaintenance++
		}
		if critSys {
			s.CriticalIssues++
		}
		if ts.CleaningRequired {
			s.CleaningRequired++
		}
	}
	s.AverageMileage = int(math.Round(float64(totalKM) / float64(len(fleet))))
	return s
}

type AgentReport struct {
	Agent         string                 `json:"agent"`
	Status        model.HealthStatus     `json:"status"`
	FindingCounts map[model.Severity]int `json:"finding_counts"`
	Summary       string                 `json:"summary"`
	ExecutionTime time.Duration          `json:"execution_time"`
}

// AgentHealth derives one report per agent output, in pipeline order. An agent is critical when
// it produced a critical finding and warn when it produced a warning.
func AgentHealth(outputs []model.AgentOutput) []AgentReport {
	reports := make([]AgentReport, 0, len(outputs))
	for _, out := range outputs {
		counts := map[model.Severity]int{
			model.SeverityInfo:     0,
			model.SeverityWarn:     0,
			model.SeverityCritical: 0,
		}
		for _, f := range out.Findings {
			counts[f.Severity]++
		}

		status := model.HealthOK
		switch {
		case counts[model.SeverityCritical] > 0:
			status = model.HealthCritical
		case counts[model.SeverityWarn] > 0:
			status = model.HealthWarn
		}

		reports = append(reports, AgentReport{
			Agent:         out.Agent,
			Status:        status,
			FindingCounts: counts,
			Summary:       fmt.Sprintf("%d findings, %d recommendations", len(out.Findings), len(out.Recommendations)),
			ExecutionTime: out.ExecutionTime,
		})
	}
	return reports
}

type Overall string

const (
	OverallHealthy  Overall = "healthy"
	OverallWarning  Overall = "warning"
	OverallCritical Overall = "critical"
)

type SystemStatus struct {
	Overall Overall        `json:"overall"`
	Agents  []AgentReport  `json:"agents"`
	Audit   events.Summary `json:"audit"`
}

// System rolls agent reports up into one health verdict.
func System(agents []AgentReport, audit events.Summary) SystemStatus {
	s := SystemStatus{Overall: OverallHealthy, Agents: agents, Audit: audit}
	for _, a := range agents {
		switch a.Status {
		case model.HealthCritical:
			s.Overall = OverallCritical
			return s
		case model.HealthWarn:
			s.Overall = OverallWarning
		}
	}
	return s
}

// Report is what `speedline status` prints.
type Report struct {
	Fleet  FleetStatus  `json:"fleet"`
	System SystemStatus `json:"system"`
	Plan   *PlanSummary `json:"plan,omitempty"`
}

type PlanSummary struct {
	ID             string               `json:"id"`
	GeneratedAt    time.Time            `json:"generated_at"`
	ApprovalStatus model.ApprovalStatus `json:"approval_status"`
	Roles          map[model.Role]int   `json:"roles"`
	KPIs           model.KPIProjections `json:"kpi_projections"`
}

func SummarizePlan(p *model.InductionPlan) *PlanSummary {
	if p == nil {
		return nil
	}
	return &PlanSummary{
		ID:             p.ID,
		GeneratedAt:    p.GeneratedAt,
		ApprovalStatus: p.ApprovalStatus,
		Roles:          p.RoleCounts(),
		KPIs:           p.KPIProjections,
	}
}

// Print writes r as indented JSON or as the human-readable summary.
func Print(w io.Writer, r Report, jsonOutput bool) error {
	if jsonOutput {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	}

	fmt.Fprintf(w, "System: %s\n", r.System.Overall)

	f := r.Fleet
	fmt.Fprintln(w, "\nFleet:")
	fmt.Fprintf(w, "  total=%d  available=%d  in_maintenance=%d  cleaning_required=%d  critical_issues=%d\n",
		f.Total, f.Available, f.InMaintenance, f.CleaningRequired, f.CriticalIssues)
	fmt.Fprintf(w, "  average_mileage=%d km\n", f.AverageMileage)

	if len(r.System.Agents) > 0 {
		fmt.Fprintln(w, "\nAgents:")
		for _, a := range r.System.Agents {
			fmt.Fprintf(w, "  %-24s  status=%-8s  %s\n", a.Agent, a.Status, a.Summary)
		}
	} else {
		fmt.Fprintln(w, "\nAgents: none")
	}

	if r.Plan != nil {
		p := r.Plan
		fmt.Fprintf(w, "\nCurrent plan: %s (%s)\n", p.ID, p.ApprovalStatus)
		fmt.Fprintf(w, "  service=%d  standby=%d  maintenance=%d\n",
			p.Roles[model.RoleService], p.Roles[model.RoleStandby], p.Roles[model.RoleMaintenance])
		fmt.Fprintf(w, "  punctuality=%.1f%%  branding=%.1f%%  maintenance_compliance=%.1f%%  energy=%.1f%%\n",
			p.KPIs.PunctualityRate*100, p.KPIs.BrandingFulfillment*100,
			p.KPIs.MaintenanceCompliance*100, p.KPIs.EnergyEfficiency*100)
	}

	a := r.System.Audit
	fmt.Fprintf(w, "\nAudit: %d entries, %d plans, %d overrides (rate %s)\n",
		a.Total, a.PlanGenerations, a.Overrides, events.FormatRate(a.OverrideRate))
	return nil
}
