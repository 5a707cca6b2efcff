package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/Rishikoli/speedline-metro-glow/internal/daemon"
	"github.com/Rishikoli/speedline-metro-glow/internal/events"
	"github.com/Rishikoli/speedline-metro-glow/internal/logging"
	"github.com/Rishikoli/speedline-metro-glow/internal/model"
	"github.com/Rishikoli/speedline-metro-glow/internal/orchestrator"
	"github.com/Rishikoli/speedline-metro-glow/internal/plan"
	"github.com/Rishikoli/speedline-metro-glow/internal/provider"
	"github.com/Rishikoli/speedline-metro-glow/internal/setup"
	"github.com/Rishikoli/speedline-metro-glow/internal/simulation"
	"github.com/Rishikoli/speedline-metro-glow/internal/status"
	"github.com/Rishikoli/speedline-metro-glow/internal/uds"
)

const version = "1.0.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "setup":
		runSetup(os.Args[2:])
	case "plan":
		runPlan(os.Args[2:])
	case "simulate":
		runSimulate(os.Args[2:])
	case "scenarios":
		runScenarios(os.Args[2:])
	case "override":
		runOverride(os.Args[2:])
	case "approve":
		runApprove(os.Args[2:])
	case "reject":
		runReject(os.Args[2:])
	case "history":
		runHistory(os.Args[2:])
	case "audit":
		runAudit(os.Args[2:])
	case "status":
		runStatus(os.Args[2:])
	case "watch":
		runWatch(os.Args[2:])
	case "replan":
		runReplan(os.Args[2:])
	case "version":
		fmt.Printf("speedline %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

// workspace holds everything a command needs from an initialized .speedline/ directory.
type workspace struct {
	dir     string
	cfg     model.Config
	logger  *logging.Logger
	audit   *events.AuditLogger
	bus     *events.Bus
	orch    *orchestrator.Orchestrator
	service *plan.Service
}

func openWorkspace() *workspace {
	dir := findWorkspaceDir()
	if dir == "" {
		fmt.Fprintln(os.Stderr, "error: .speedline/ directory not found. Run 'speedline setup <dir>' first.")
		os.Exit(1)
	}

	cfg, err := setup.LoadConfig(dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(os.Stderr, logging.ParseLogLevel(cfg.Logging.Level))

	store, err := openStore(dir, cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open plan store: %v\n", err)
		os.Exit(1)
	}

	audit, err := events.NewAuditLogger(filepath.Join(dir, cfg.Audit.Path), cfg.Audit.MaxSizeBytes)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open audit log: %v\n", err)
		os.Exit(1)
	}
	audit.EnableChecksum(cfg.Audit.Checksum)

	bus := events.NewBus(0)
	orch := orchestrator.New(nil,
		orchestrator.WithParallel(cfg.Planning.ParallelAgents),
		orchestrator.WithLogger(logger),
	)
	service := plan.NewService(orch, store,
		plan.WithAuditSink(audit),
		plan.WithBus(bus),
		plan.WithLogger(logger),
	)

	return &workspace{
		dir:     dir,
		cfg:     cfg,
		logger:  logger,
		audit:   audit,
		bus:     bus,
		orch:    orch,
		service: service,
	}
}

func openStore(dir string, cfg model.Config, logger *logging.Logger) (plan.Store, error) {
	switch cfg.Store.Driver {
	case "memory":
		return plan.NewMemoryStore(cfg.Planning.HistoryLimit), nil
	case "file":
		return plan.NewFileStore(filepath.Join(dir, cfg.Store.Dir), cfg.Planning.HistoryLimit, logger)
	default:
		return nil, fmt.Errorf("unknown store driver %q (want memory or file)", cfg.Store.Driver)
	}
}

func (w *workspace) close() {
	w.bus.Close()
	if err := w.audit.Close(); err != nil {
		w.logger.Warnf("close audit log: %v", err)
	}
}

func (w *workspace) snapshot() provider.Snapshot {
	snap, err := provider.NewFile(filepath.Join(w.dir, w.cfg.Data.FleetFile)).Snapshot()
	if err != nil {
		fail("fleet snapshot", err)
	}
	return snap
}

func (w *workspace) scenarios() []model.WhatIfScenario {
	path := filepath.Join(w.dir, w.cfg.Data.ScenariosFile)
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return simulation.CommonScenarios()
	}
	scenarios, err := simulation.LoadScenarios(path)
	if err != nil {
		fail("scenario catalog", err)
	}
	return scenarios
}

type stderrFormatter interface {
	FormatStderr() string
}

// fail prints err, using its own stderr format when it has one, and exits.
func fail(what string, err error) {
	var f stderrFormatter
	if errors.As(err, &f) {
		fmt.Fprint(os.Stderr, f.FormatStderr())
	} else {
		fmt.Fprintf(os.Stderr, "%s: %v\n", what, err)
	}
	os.Exit(1)
}

// flagValue returns the value following args[*i] and advances i past it.
func flagValue(args []string, i *int) string {
	if *i+1 >= len(args) {
		fmt.Fprintf(os.Stderr, "%s requires a value\n", args[*i])
		os.Exit(1)
	}
	*i++
	return args[*i]
}

func intFlag(args []string, i *int) int {
	name := args[*i]
	v := flagValue(args, i)
	n, err := strconv.Atoi(v)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid %s value: %s\n", name, v)
		os.Exit(1)
	}
	return n
}

func timeFlag(args []string, i *int) time.Time {
	name := args[*i]
	v := flagValue(args, i)
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid %s value (want RFC3339): %s\n", name, v)
		os.Exit(1)
	}
	return t
}

func writeJSON(w io.Writer, v any) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fail("encode json", err)
	}
}

func runSetup(args []string) {
	var dir, name string
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--name":
			name = flagValue(args, &i)
		default:
			if strings.HasPrefix(args[i], "--") || dir != "" {
				fmt.Fprintf(os.Stderr, "unexpected argument: %s\nusage: speedline setup <project_dir> [--name NAME]\n", args[i])
				os.Exit(1)
			}
			dir = args[i]
		}
	}
	if dir == "" {
		fmt.Fprintln(os.Stderr, "usage: speedline setup <project_dir> [--name NAME]")
		os.Exit(1)
	}
	if err := setup.Run(dir, name); err != nil {
		fmt.Fprintf(os.Stderr, "setup: %v\n", err)
		os.Exit(1)
	}
	absDir, _ := filepath.Abs(dir)
	fmt.Printf("Initialized %s/ in %s\n", setup.WorkspaceDir, absDir)
}

func runPlan(args []string) {
	var jsonOutput bool
	var at time.Time
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--json":
			jsonOutput = true
		case "--at":
			at = timeFlag(args, &i)
		default:
			fmt.Fprintf(os.Stderr, "unknown flag: %s\nusage: speedline plan [--at RFC3339] [--json]\n", args[i])
			os.Exit(1)
		}
	}
	if at.IsZero() {
		at = time.Now()
	}

	ws := openWorkspace()
	defer ws.close()

	in := plan.InputFromSnapshot(ws.snapshot(), ws.cfg, at)
	res, err := ws.service.Generate(context.Background(), in)
	if err != nil {
		fail("plan", err)
	}

	if jsonOutput {
		writeJSON(os.Stdout, res.Plan)
		return
	}
	printPlan(os.Stdout, res.Plan)
	fmt.Printf("\nGenerated in %s\n", res.Duration.Round(time.Microsecond))
}

func printPlan(w io.Writer, p *model.InductionPlan) {
	fmt.Fprintf(w, "Plan %s (%s) generated %s\n", p.ID, p.ApprovalStatus, p.GeneratedAt.Format(time.RFC3339))
	if p.ApprovedBy != "" && p.ApprovedAt != nil {
		fmt.Fprintf(w, "Approved by %s at %s\n", p.ApprovedBy, p.ApprovedAt.Format(time.RFC3339))
	}

	fmt.Fprintf(w, "\n  %-10s  %-11s  %8s  %-8s  %-5s  %s\n", "TRAINSET", "ROLE", "SCORE", "BAY", "CLEAN", "READY")
	for _, a := range p.Assignments {
		clean := "-"
		if a.CleaningScheduled {
			clean = "yes"
		}
		bay := a.AssignedBay
		if bay == "" {
			bay = "-"
		}
		fmt.Fprintf(w, "  %-10s  %-11s  %8.2f  %-8s  %-5s  %s\n",
			a.TrainsetID, a.Role, a.Score, bay, clean, a.EstimatedReadiness.Format("01-02 15:04"))
		for _, r := range a.Reasons {
			fmt.Fprintf(w, "      + %s\n", r)
		}
		for _, r := range a.RiskFactors {
			fmt.Fprintf(w, "      ! %s\n", r)
		}
	}

	k := p.KPIProjections
	fmt.Fprintln(w, "\nKPI projections:")
	fmt.Fprintf(w, "  punctuality=%.2f%%  mileage_balance=%.2f  branding=%.1f%%  maintenance=%.1f%%  energy=%.1f%%\n",
		k.PunctualityRate*100, k.MileageBalance, k.BrandingFulfillment*100, k.MaintenanceCompliance*100, k.EnergyEfficiency*100)

	if len(p.ObjectiveNotes) > 0 {
		fmt.Fprintln(w, "\nNotes:")
		for _, n := range p.ObjectiveNotes {
			fmt.Fprintf(w, "  %s\n", n)
		}
	}
}

func runSimulate(args []string) {
	var jsonOutput, all bool
	var ids []string
	var at time.Time
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--json":
			jsonOutput = true
		case "--all":
			all = true
		case "--at":
			at = timeFlag(args, &i)
		default:
			if strings.HasPrefix(args[i], "--") {
				fmt.Fprintf(os.Stderr, "unknown flag: %s\nusage: speedline simulate <scenario-id>... | --all [--at RFC3339] [--json]\n", args[i])
				os.Exit(1)
			}
			ids = append(ids, args[i])
		}
	}
	if len(ids) == 0 && !all {
		fmt.Fprintln(os.Stderr, "usage: speedline simulate <scenario-id>... | --all [--at RFC3339] [--json]")
		os.Exit(1)
	}
	if at.IsZero() {
		at = time.Now()
	}

	ws := openWorkspace()
	defer ws.close()

	engine := simulation.NewCachedEngine(
		simulation.NewEngine(ws.orch, ws.logger,
			simulation.WithCatalog(ws.scenarios()),
			simulation.WithParallel(ws.cfg.Planning.ParallelAgents),
		),
		simulation.NewResultCache(simulation.DefaultCacheSize, simulation.DefaultCacheTTL),
	)
	if all {
		for _, s := range ws.scenarios() {
			ids = append(ids, s.ID)
		}
	}

	base := plan.InputFromSnapshot(ws.snapshot(), ws.cfg, at)
	var results []simulation.Result
	for _, id := range ids {
		res, err := engine.RunByID(context.Background(), id, base)
		if err != nil {
			fail("simulate "+id, err)
		}
		results = append(results, res)
	}

	if jsonOutput {
		writeJSON(os.Stdout, results)
		return
	}
	for i, res := range results {
		if i > 0 {
			fmt.Println()
		}
		printImpact(os.Stdout, res)
	}
}

func printImpact(w io.Writer, res simulation.Result) {
	before, after := res.OriginalPlan.RoleCounts(), res.ModifiedPlan.RoleCounts()
	fmt.Fprintf(w, "Scenario %s\n", res.ScenarioID)
	fmt.Fprintf(w, "  service %d -> %d  standby %d -> %d  maintenance %d -> %d\n",
		before[model.RoleService], after[model.RoleService],
		before[model.RoleStandby], after[model.RoleStandby],
		before[model.RoleMaintenance], after[model.RoleMaintenance])

	d := res.Impact.KPIDeltas
	fmt.Fprintf(w, "  KPI deltas: punctuality=%+.2f%%  mileage_balance=%+.2f  branding=%+.1f%%  maintenance=%+.1f%%  energy=%+.1f%%\n",
		d.PunctualityRate*100, d.MileageBalance, d.BrandingFulfillment*100, d.MaintenanceCompliance*100, d.EnergyEfficiency*100)

	if len(res.Impact.RiskAssessment) == 0 {
		fmt.Fprintln(w, "  No significant risks")
	}
	for _, r := range res.Impact.RiskAssessment {
		fmt.Fprintf(w, "  risk: %s\n", r)
	}
	for _, m := range res.Impact.MitigationSuggestions {
		fmt.Fprintf(w, "  mitigation: %s\n", m)
	}
}

func runScenarios(args []string) {
	jsonOutput := false
	for _, a := range args {
		switch a {
		case "--json":
			jsonOutput = true
		default:
			fmt.Fprintf(os.Stderr, "unknown flag: %s\nusage: speedline scenarios [--json]\n", a)
			os.Exit(1)
		}
	}

	ws := openWorkspace()
	defer ws.close()

	scenarios := ws.scenarios()
	if jsonOutput {
		writeJSON(os.Stdout, scenarios)
		return
	}
	for _, s := range scenarios {
		fmt.Printf("%-14s  %s\n", s.ID, s.Name)
		fmt.Printf("%-14s  %s\n", "", s.Description)
		for _, m := range s.Modifications {
			fmt.Printf("%-14s    - %s %s: %s\n", "", m.Type, m.Target, m.Description)
		}
	}
}

func runOverride(args []string) {
	const usage = "usage: speedline override <plan-id|current> <trainset-id> --role <service|standby|maintenance> --reason TEXT --supervisor NAME"
	var positional []string
	var role, reason, supervisor string
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--role":
			role = flagValue(args, &i)
		case "--reason":
			reason = flagValue(args, &i)
		case "--supervisor":
			supervisor = flagValue(args, &i)
		default:
			if strings.HasPrefix(args[i], "--") {
				fmt.Fprintf(os.Stderr, "unknown flag: %s\n%s\n", args[i], usage)
				os.Exit(1)
			}
			positional = append(positional, args[i])
		}
	}
	if len(positional) != 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(1)
	}

	ws := openWorkspace()
	defer ws.close()

	planID := resolvePlanID(ws, positional[0])
	res, err := ws.service.ApplyOverride(planID, positional[1], model.Role(role), reason, supervisor)
	if err != nil {
		fail("override", err)
	}
	o := res.Override
	fmt.Printf("Override %s applied: %s %s -> %s on plan %s (now %s)\n",
		o.ID, o.TrainsetID, o.OriginalAssignment.Role, o.OverrideAssignment.Role, o.PlanID, res.Plan.ApprovalStatus)
}

// resolvePlanID maps "current" to the id of the current plan.
func resolvePlanID(ws *workspace, id string) string {
	if id != "current" {
		return id
	}
	p, err := ws.service.Current()
	if err != nil {
		fail("current plan", err)
	}
	return p.ID
}

func runApprove(args []string) {
	const usage = "usage: speedline approve <plan-id|current> --by NAME"
	var planID, approver string
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--by":
			approver = flagValue(args, &i)
		default:
			if strings.HasPrefix(args[i], "--") || planID != "" {
				fmt.Fprintf(os.Stderr, "unexpected argument: %s\n%s\n", args[i], usage)
				os.Exit(1)
			}
			planID = args[i]
		}
	}
	if planID == "" {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(1)
	}

	ws := openWorkspace()
	defer ws.close()

	p, err := ws.service.Approve(resolvePlanID(ws, planID), approver)
	if err != nil {
		fail("approve", err)
	}
	fmt.Printf("Plan %s approved by %s\n", p.ID, p.ApprovedBy)
}

func runReject(args []string) {
	const usage = "usage: speedline reject <plan-id|current> --by NAME --reason TEXT"
	var planID, reviewer, reason string
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--by":
			reviewer = flagValue(args, &i)
		case "--reason":
			reason = flagValue(args, &i)
		default:
			if strings.HasPrefix(args[i], "--") || planID != "" {
				fmt.Fprintf(os.Stderr, "unexpected argument: %s\n%s\n", args[i], usage)
				os.Exit(1)
			}
			planID = args[i]
		}
	}
	if planID == "" {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(1)
	}

	ws := openWorkspace()
	defer ws.close()

	p, err := ws.service.Reject(resolvePlanID(ws, planID), reviewer, reason)
	if err != nil {
		fail("reject", err)
	}
	fmt.Printf("Plan %s rejected\n", p.ID)
}

func runHistory(args []string) {
	var jsonOutput bool
	var show string
	limit := 10
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--json":
			jsonOutput = true
		case "--limit":
			limit = intFlag(args, &i)
		case "--show":
			show = flagValue(args, &i)
		default:
			fmt.Fprintf(os.Stderr, "unknown flag: %s\nusage: speedline history [--limit N] [--show PLAN_ID] [--json]\n", args[i])
			os.Exit(1)
		}
	}

	ws := openWorkspace()
	defer ws.close()

	if show != "" {
		p, err := ws.service.Get(resolvePlanID(ws, show))
		if err != nil {
			fail("history", err)
		}
		if jsonOutput {
			writeJSON(os.Stdout, p)
			return
		}
		printPlan(os.Stdout, p)
		overrides, err := ws.service.Overrides(p.ID)
		if err != nil {
			fail("overrides", err)
		}
		if len(overrides) > 0 {
			fmt.Println("\nOverrides:")
			for _, o := range overrides {
				fmt.Printf("  %s  %s  %s -> %s  by %s: %s\n", o.Timestamp.Format(time.RFC3339), o.TrainsetID,
					o.OriginalAssignment.Role, o.OverrideAssignment.Role, o.Supervisor, o.Reason)
			}
		}
		return
	}

	plans, err := ws.service.History(limit)
	if err != nil {
		fail("history", err)
	}
	if jsonOutput {
		writeJSON(os.Stdout, plans)
		return
	}
	if len(plans) == 0 {
		fmt.Println("No plans yet. Run 'speedline plan'.")
		return
	}
	fmt.Printf("%-20s  %-9s  %-20s  %7s  %7s  %11s\n", "ID", "STATUS", "GENERATED", "SERVICE", "STANDBY", "MAINTENANCE")
	for _, p := range plans {
		roles := p.RoleCounts()
		fmt.Printf("%-20s  %-9s  %-20s  %7d  %7d  %11d\n", p.ID, p.ApprovalStatus, p.GeneratedAt.Format(time.RFC3339),
			roles[model.RoleService], roles[model.RoleStandby], roles[model.RoleMaintenance])
	}
}

func runAudit(args []string) {
	const usage = "usage: speedline audit <query|summary|export|verify> [options]"
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(1)
	}
	sub, rest := args[0], args[1:]
	switch sub {
	case "query", "summary", "export", "verify":
	default:
		fmt.Fprintf(os.Stderr, "unknown audit subcommand: %s\n%s\n", sub, usage)
		os.Exit(1)
	}

	var f events.Filter
	var jsonOutput bool
	format := events.ExportJSON
	for i := 0; i < len(rest); i++ {
		switch rest[i] {
		case "--plan":
			f.PlanID = flagValue(rest, &i)
		case "--kind":
			f.Kind = model.AuditKind(flagValue(rest, &i))
		case "--user":
			f.User = flagValue(rest, &i)
		case "--from":
			f.From = timeFlag(rest, &i)
		case "--to":
			f.To = timeFlag(rest, &i)
		case "--limit":
			f.Limit = intFlag(rest, &i)
		case "--format":
			format = events.ExportFormat(flagValue(rest, &i))
		case "--json":
			jsonOutput = true
		default:
			fmt.Fprintf(os.Stderr, "unknown flag: %s\n%s\n", rest[i], usage)
			os.Exit(1)
		}
	}

	ws := openWorkspace()
	defer ws.close()

	switch sub {
	case "query":
		records, err := ws.audit.Query(f)
		if err != nil {
			fail("audit query", err)
		}
		if jsonOutput {
			writeJSON(os.Stdout, records)
			return
		}
		for _, r := range records {
			fmt.Printf("%s  %-20s  %-28s  %-14s  %s\n", r.Entry.Timestamp.Format(time.RFC3339), r.PlanID, r.Entry.Kind, r.Entry.User, r.Entry.Details)
		}
	case "summary":
		s, err := ws.audit.Summary(f.From, f.To)
		if err != nil {
			fail("audit summary", err)
		}
		if jsonOutput {
			writeJSON(os.Stdout, s)
			return
		}
		fmt.Printf("Entries: %d  plans generated: %d  overrides: %d  override rate: %s\n",
			s.Total, s.PlanGenerations, s.Overrides, events.FormatRate(s.OverrideRate))
		for kind, n := range s.ByKind {
			fmt.Printf("  %-28s %d\n", kind, n)
		}
	case "export":
		if err := ws.audit.Export(os.Stdout, format, f); err != nil {
			fail("audit export", err)
		}
	case "verify":
		total, valid, err := events.VerifyLogIntegrity(ws.audit.Path())
		if err != nil {
			fail("audit verify", err)
		}
		fmt.Printf("%d/%d records verified\n", valid, total)
		if valid != total {
			os.Exit(2)
		}
	}
}

func runStatus(args []string) {
	jsonOutput := false
	for _, a := range args {
		switch a {
		case "--json":
			jsonOutput = true
		default:
			fmt.Fprintf(os.Stderr, "unknown flag: %s\nusage: speedline status [--json]\n", a)
			os.Exit(1)
		}
	}

	ws := openWorkspace()
	defer ws.close()

	snap := ws.snapshot()
	report := status.Report{Fleet: status.Fleet(snap.Fleet)}

	// Agent health comes from a dry run over the current snapshot; nothing is stored.
	res, err := ws.orch.Run(context.Background(), plan.InputFromSnapshot(snap, ws.cfg, time.Now()))
	if err != nil {
		fail("status", err)
	}
	summary, err := ws.audit.Summary(time.Now().Add(-24*time.Hour), time.Time{})
	if err != nil {
		fail("audit summary", err)
	}
	report.System = status.System(status.AgentHealth(res.AgentOutputs), summary)

	if cur, err := ws.service.Current(); err == nil {
		report.Plan = status.SummarizePlan(cur)
	} else if !errors.Is(err, plan.ErrNotFound) {
		fail("current plan", err)
	}

	if err := status.Print(os.Stdout, report, jsonOutput); err != nil {
		fail("status", err)
	}
	if jsonOutput {
		return
	}

	var watcher daemon.Status
	if err := controlClient(ws.dir).Call("status", nil, &watcher); err != nil {
		fmt.Println("\nWatcher: not running")
		return
	}
	fmt.Printf("\nWatcher: pid %d since %s, %d replans", watcher.PID, watcher.StartedAt.Format(time.RFC3339), watcher.Replans)
	if watcher.LastPlanID != "" {
		fmt.Printf(", last plan %s", watcher.LastPlanID)
	}
	fmt.Println()
	if watcher.LastError != "" {
		fmt.Printf("  last %s failed: %s\n", watcher.LastTrigger, watcher.LastError)
	}
}

func controlClient(dir string) *uds.Client {
	c := uds.NewClient(filepath.Join(dir, uds.SocketName))
	c.SetTimeout(2 * time.Second)
	return c
}

// runReplan asks a running watcher to plan now instead of waiting for a snapshot change.
func runReplan(args []string) {
	if len(args) > 0 {
		fmt.Fprintf(os.Stderr, "unexpected argument: %s\nusage: speedline replan\n", args[0])
		os.Exit(1)
	}
	dir := findWorkspaceDir()
	if dir == "" {
		fmt.Fprintln(os.Stderr, "error: .speedline/ directory not found. Run 'speedline setup <dir>' first.")
		os.Exit(1)
	}

	c := uds.NewClient(filepath.Join(dir, uds.SocketName))
	c.SetTimeout(time.Minute)
	var st daemon.Status
	if err := c.Call("replan", nil, &st); err != nil {
		fmt.Fprintf(os.Stderr, "replan: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Watcher generated plan %s\n", st.LastPlanID)
}

func runWatch(args []string) {
	if len(args) > 0 {
		fmt.Fprintf(os.Stderr, "unexpected argument: %s\nusage: speedline watch\n", args[0])
		os.Exit(1)
	}

	ws := openWorkspace()
	defer ws.close()

	ws.bus.Subscribe(events.EventPlanGenerated, func(e events.Event) {
		fmt.Printf("%s plan %s generated (%v assignments)\n", e.Timestamp.Format(time.RFC3339), e.PlanID, e.Data["assignments"])
	})

	d, err := daemon.New(ws.dir, ws.cfg, ws.service, ws.bus)
	if err != nil {
		fail("create watcher", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	fmt.Printf("Watching %s (Ctrl-C to stop)\n", filepath.Join(ws.dir, ws.cfg.Data.FleetFile))
	if err := d.Run(ctx); err != nil {
		fail("watch", err)
	}
}

// findWorkspaceDir walks up from the working directory looking for .speedline/.
func findWorkspaceDir() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		candidate := filepath.Join(dir, setup.WorkspaceDir)
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `speedline %s: overnight induction planning for a metro depot

Usage: speedline <command> [options]

Workspace:
  setup <dir> [--name NAME]     Initialize .speedline/ with config, sample fleet and scenarios
  status [--json]               Fleet, agent and system health

Planning:
  plan [--at T] [--json]        Generate a plan from the fleet snapshot and make it current
  history [--limit N] [--show ID] [--json]
                                List stored plans, newest first, or show one in full
  watch                         Re-plan whenever the fleet snapshot changes
  replan                        Ask the running watcher to re-plan now

Supervision:
  override <plan> <trainset> --role R --reason TEXT --supervisor NAME
  approve <plan> --by NAME
  reject <plan> --by NAME --reason TEXT
                                <plan> may be "current"

What-if:
  scenarios [--json]            List the scenario catalog
  simulate <id>... | --all [--at T] [--json]

Audit:
  audit query [--plan ID] [--kind K] [--user U] [--from T] [--to T] [--limit N] [--json]
  audit summary [--from T] [--to T] [--json]
  audit export [--format json|csv] [filters]
  audit verify

  version                       Print version
`, version)
}
