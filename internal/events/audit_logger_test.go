package events

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Rishikoli/speedline-metro-glow/internal/model"
)

var base = time.Date(2025, 6, 1, 5, 0, 0, 0, time.UTC)

func newTestLogger(t *testing.T, maxSize int64) (*AuditLogger, string) {
	t.Helper()
	logPath := filepath.Join(t.TempDir(), "logs", "audit.jsonl")
	logger, err := NewAuditLogger(logPath, maxSize)
	if err != nil {
		t.Fatalf("Failed to create audit logger: %v", err)
	}
	t.Cleanup(func() { logger.Close() })
	return logger, logPath
}

func assignment(id string, role model.Role) model.InductionAssignment {
	return model.InductionAssignment{TrainsetID: id, Role: role, Reasons: []string{}, RiskFactors: []string{}}
}

// seed writes one generated/override/approved sequence for each plan, a minute apart.
func seed(t *testing.T, logger *AuditLogger, plans ...string) {
	t.Helper()
	at := base
	for _, id := range plans {
		entries := []model.AuditEntry{
			model.NewPlanGeneratedEntry(at, 4, 4),
			model.NewOverrideAppliedEntry(at.Add(time.Minute), "supervisor.rao", "crew shortage",
				assignment("TS-101", model.RoleService), assignment("TS-101", model.RoleStandby)),
			model.NewPlanApprovedEntry(at.Add(2*time.Minute), id, "controller.nair", model.ApprovalModified),
		}
		for _, e := range entries {
			if err := logger.Append(id, e); err != nil {
				t.Fatalf("Append(%s, %s): %v", id, e.Kind, err)
			}
		}
		at = at.Add(time.Hour)
	}
}

func TestNewAuditLogger(t *testing.T) {
	_, logPath := newTestLogger(t, DefaultMaxLogSize)
	if _, err := os.Stat(logPath); os.IsNotExist(err) {
		t.Error("Log file was not created")
	}
}

func TestNewAuditLogger_RejectsWrongExtension(t *testing.T) {
	if _, err := NewAuditLogger(filepath.Join(t.TempDir(), "audit.log"), 0); err == nil {
		t.Error("expected error for non-jsonl path")
	}
}

func TestAuditLogger_Append(t *testing.T) {
	logger, logPath := newTestLogger(t, DefaultMaxLogSize)

	entry := model.NewPlanGeneratedEntry(base, 25, 24)
	if err := logger.Append("PLAN-1", entry); err != nil {
		t.Fatalf("Append: %v", err)
	}

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}
	var rec Record
	if err := json.Unmarshal(bytes.TrimSpace(data), &rec); err != nil {
		t.Fatalf("Failed to unmarshal record: %v", err)
	}
	if rec.PlanID != "PLAN-1" {
		t.Errorf("PlanID = %q, want PLAN-1", rec.PlanID)
	}
	if rec.Entry.Kind != model.AuditPlanGenerated {
		t.Errorf("Kind = %q, want %q", rec.Entry.Kind, model.AuditPlanGenerated)
	}
	if rec.Entry.PlanGenerated == nil || rec.Entry.PlanGenerated.AssignmentCount != 24 {
		t.Errorf("PlanGenerated payload = %+v", rec.Entry.PlanGenerated)
	}
	if !rec.Entry.Timestamp.Equal(base) {
		t.Errorf("Timestamp = %v, want %v", rec.Entry.Timestamp, base)
	}
	if logger.Size() != int64(len(data)) {
		t.Errorf("Size = %d, want %d", logger.Size(), len(data))
	}
}

func TestAuditLogger_AppendRejectsMalformedEntry(t *testing.T) {
	logger, _ := newTestLogger(t, DefaultMaxLogSize)

	bad := model.NewPlanGeneratedEntry(base, 1, 1)
	bad.Kind = model.AuditPlanApproved
	if err := logger.Append("PLAN-1", bad); err == nil {
		t.Error("expected error for payload that does not match kind")
	}
	if logger.Size() != 0 {
		t.Errorf("malformed entry must not be written, size = %d", logger.Size())
	}
}

func TestAuditLogger_AppendAfterClose(t *testing.T) {
	logger, _ := newTestLogger(t, DefaultMaxLogSize)
	logger.Close()
	if err := logger.Append("PLAN-1", model.NewPlanGeneratedEntry(base, 1, 1)); err == nil {
		t.Error("expected error writing to a closed log")
	}
}

func TestAuditLogger_ConcurrentWrites(t *testing.T) {
	logger, logPath := newTestLogger(t, DefaultMaxLogSize)

	const writers, perWriter = 10, 20
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				planID := fmt.Sprintf("PLAN-%d", w)
				if err := logger.Append(planID, model.NewPlanGeneratedEntry(base.Add(time.Duration(i)*time.Second), 4, 4)); err != nil {
					t.Errorf("writer %d: %v", w, err)
				}
			}
		}()
	}
	wg.Wait()

	total, valid, err := VerifyLogIntegrity(logPath)
	if err != nil {
		t.Fatalf("VerifyLogIntegrity: %v", err)
	}
	if total != writers*perWriter || valid != total {
		t.Errorf("got %d records (%d valid), want %d", total, valid, writers*perWriter)
	}
}

func TestAuditLogger_Rotation(t *testing.T) {
	logger, logPath := newTestLogger(t, 600)
	logger.now = func() time.Time { return base }

	for i := 0; i < 10; i++ {
		if err := logger.Append(fmt.Sprintf("PLAN-%d", i), model.NewPlanGeneratedEntry(base.Add(time.Duration(i)*time.Minute), 4, 4)); err != nil {
			t.Fatalf("Append %d: %v", i, err)
		}
	}

	archived, err := filepath.Glob(filepath.Join(filepath.Dir(logPath), ArchiveDir, "audit.*.jsonl"))
	if err != nil {
		t.Fatal(err)
	}
	if len(archived) == 0 {
		t.Fatal("expected rotated files in archive/")
	}
	if logger.Size() > 600 {
		t.Errorf("live log size %d exceeds max size", logger.Size())
	}

	// rotation must not lose records
	records, err := logger.Query(Filter{})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(records) != 10 {
		t.Fatalf("expected 10 records across live and archived logs, got %d", len(records))
	}
	if records[0].PlanID != "PLAN-9" || records[9].PlanID != "PLAN-0" {
		t.Errorf("expected newest first, got %s .. %s", records[0].PlanID, records[9].PlanID)
	}
}

func TestAuditLogger_Checksum(t *testing.T) {
	logger, logPath := newTestLogger(t, DefaultMaxLogSize)
	logger.EnableChecksum(true)
	seed(t, logger, "PLAN-1")

	records, err := readRecords(logPath)
	if err != nil {
		t.Fatal(err)
	}
	for _, r := range records {
		if r.Checksum == "" {
			t.Errorf("record %s has no checksum", r.Entry.Kind)
		}
	}

	total, valid, err := VerifyLogIntegrity(logPath)
	if err != nil {
		t.Fatal(err)
	}
	if total != 3 || valid != 3 {
		t.Errorf("got total=%d valid=%d, want 3/3", total, valid)
	}
}

func TestVerifyLogIntegrity_DetectsTampering(t *testing.T) {
	logger, logPath := newTestLogger(t, DefaultMaxLogSize)
	logger.EnableChecksum(true)
	seed(t, logger, "PLAN-1")
	logger.Close()

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatal(err)
	}
	tampered := strings.Replace(string(data), "crew shortage", "crew holiday", 1)
	tampered += "not json at all\n"
	if err := os.WriteFile(logPath, []byte(tampered), 0644); err != nil {
		t.Fatal(err)
	}

	total, valid, err := VerifyLogIntegrity(logPath)
	if err != nil {
		t.Fatal(err)
	}
	if total != 3 {
		t.Errorf("total = %d, want 3 (malformed line skipped)", total)
	}
	if valid != 2 {
		t.Errorf("valid = %d, want 2", valid)
	}
}

func TestVerifyLogIntegrity_MissingFile(t *testing.T) {
	if _, _, err := VerifyLogIntegrity(filepath.Join(t.TempDir(), "nope.jsonl")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestAuditLogger_Query(t *testing.T) {
	logger, _ := newTestLogger(t, DefaultMaxLogSize)
	seed(t, logger, "PLAN-1", "PLAN-2")

	tests := []struct {
		name   string
		filter Filter
		want   int
	}{
		{"all", Filter{}, 6},
		{"by plan", Filter{PlanID: "PLAN-2"}, 3},
		{"by kind", Filter{Kind: model.AuditOverrideApplied}, 2},
		{"by user", Filter{User: "controller.nair"}, 2},
		{"from", Filter{From: base.Add(time.Hour)}, 3},
		{"to", Filter{To: base.Add(time.Minute)}, 2},
		{"limit", Filter{Limit: 4}, 4},
		{"no match", Filter{PlanID: "PLAN-404"}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := logger.Query(tt.filter)
			if err != nil {
				t.Fatalf("Query: %v", err)
			}
			if len(got) != tt.want {
				t.Errorf("got %d records, want %d", len(got), tt.want)
			}
		})
	}

	latest, err := logger.Query(Filter{Limit: 1})
	if err != nil {
		t.Fatal(err)
	}
	if latest[0].PlanID != "PLAN-2" || latest[0].Entry.Kind != model.AuditPlanApproved {
		t.Errorf("newest record = %s %s", latest[0].PlanID, latest[0].Entry.Kind)
	}
}

func TestAuditLogger_Summary(t *testing.T) {
	logger, _ := newTestLogger(t, DefaultMaxLogSize)
	seed(t, logger, "PLAN-1", "PLAN-2")
	if err := logger.Append("PLAN-3", model.NewPlanGeneratedEntry(base.Add(3*time.Hour), 4, 4)); err != nil {
		t.Fatal(err)
	}

	s, err := logger.Summary(time.Time{}, time.Time{})
	if err != nil {
		t.Fatal(err)
	}
	if s.Total != 7 {
		t.Errorf("Total = %d, want 7", s.Total)
	}
	if s.PlanGenerations != 3 || s.Overrides != 2 {
		t.Errorf("generations=%d overrides=%d, want 3 and 2", s.PlanGenerations, s.Overrides)
	}
	if s.OverrideRate != 2.0/3.0 {
		t.Errorf("OverrideRate = %v", s.OverrideRate)
	}
	if s.ByUser["system"] != 3 || s.ByUser["supervisor.rao"] != 2 {
		t.Errorf("ByUser = %v", s.ByUser)
	}
	if s.ByKind[model.AuditPlanApproved] != 2 {
		t.Errorf("ByKind = %v", s.ByKind)
	}

	windowed, err := logger.Summary(base.Add(3*time.Hour), time.Time{})
	if err != nil {
		t.Fatal(err)
	}
	if windowed.Total != 1 || windowed.OverrideRate != 0 {
		t.Errorf("windowed summary = %+v", windowed)
	}
	if got := FormatRate(s.OverrideRate); got != "66.7%" {
		t.Errorf("FormatRate = %q", got)
	}
}

func TestAuditLogger_ExportCSV(t *testing.T) {
	logger, _ := newTestLogger(t, DefaultMaxLogSize)
	seed(t, logger, "PLAN-1")

	var buf bytes.Buffer
	if err := logger.Export(&buf, ExportCSV, Filter{}); err != nil {
		t.Fatalf("Export: %v", err)
	}
	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("exported CSV does not parse: %v", err)
	}
	if len(rows) != 4 {
		t.Fatalf("expected header + 3 rows, got %d", len(rows))
	}
	if strings.Join(rows[0], ",") != "timestamp,plan_id,kind,user,details,trainset_id" {
		t.Errorf("header = %v", rows[0])
	}
	override := rows[2]
	if override[2] != string(model.AuditOverrideApplied) || override[5] != "TS-101" {
		t.Errorf("override row = %v", override)
	}
	if override[0] != "2025-06-01T05:01:00Z" {
		t.Errorf("timestamp = %s", override[0])
	}
}

func TestAuditLogger_ExportJSON(t *testing.T) {
	logger, _ := newTestLogger(t, DefaultMaxLogSize)
	seed(t, logger, "PLAN-1")

	var buf bytes.Buffer
	if err := logger.Export(&buf, ExportJSON, Filter{Kind: model.AuditPlanApproved}); err != nil {
		t.Fatalf("Export: %v", err)
	}
	var records []Record
	if err := json.Unmarshal(buf.Bytes(), &records); err != nil {
		t.Fatalf("exported JSON does not parse: %v", err)
	}
	if len(records) != 1 || records[0].Entry.PlanApproved == nil || records[0].Entry.PlanApproved.Approver != "controller.nair" {
		t.Errorf("records = %+v", records)
	}
}

func TestAuditLogger_ExportUnknownFormat(t *testing.T) {
	logger, _ := newTestLogger(t, DefaultMaxLogSize)
	if err := logger.Export(&bytes.Buffer{}, "xml", Filter{}); err == nil {
		t.Error("expected error for unsupported format")
	}
}

func TestAuditLogger_Reopen(t *testing.T) {
	logger, logPath := newTestLogger(t, DefaultMaxLogSize)
	seed(t, logger, "PLAN-1")
	size := logger.Size()
	logger.Close()

	reopened, err := NewAuditLogger(logPath, DefaultMaxLogSize)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	if reopened.Size() != size {
		t.Errorf("reopened size = %d, want %d", reopened.Size(), size)
	}
	if err := reopened.Append("PLAN-2", model.NewPlanGeneratedEntry(base.Add(time.Hour), 4, 4)); err != nil {
		t.Fatal(err)
	}
	records, err := reopened.Query(Filter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 4 {
		t.Errorf("expected 4 records after reopen, got %d", len(records))
	}
}
