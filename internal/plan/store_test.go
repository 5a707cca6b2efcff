package plan

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Rishikoli/speedline-metro-glow/internal/logging"
	"github.com/Rishikoli/speedline-metro-glow/internal/model"
	yamlutil "github.com/Rishikoli/speedline-metro-glow/internal/yaml"
)

var baseTime = time.Date(2025, 6, 1, 5, 0, 0, 0, time.UTC)

func testPlan(minute int) *model.InductionPlan {
	at := baseTime.Add(time.Duration(minute) * time.Minute)
	return &model.InductionPlan{
		ID:          model.PlanID(at),
		GeneratedAt: at,
		Assignments: []model.InductionAssignment{
			{TrainsetID: "TS-101", Role: model.RoleService, Score: 23.75, Reasons: []string{"optimization: High branding commitment"}},
			{TrainsetID: "TS-205", Role: model.RoleMaintenance, Score: -161, RiskFactors: []string{"Fitness certificate expired"}},
		},
		Constraints:    model.DefaultConstraints(),
		ApprovalStatus: model.ApprovalPending,
		AuditTrail:     []model.AuditEntry{model.NewPlanGeneratedEntry(at, 2, 2)},
	}
}

type storeFactory func(t *testing.T, limit int) Store

func storeImpls() map[string]storeFactory {
	return map[string]storeFactory{
		"memory": func(t *testing.T, limit int) Store {
			return NewMemoryStore(limit)
		},
		"file": func(t *testing.T, limit int) Store {
			s, err := NewFileStore(t.TempDir(), limit, logging.Discard())
			require.NoError(t, err)
			return s
		},
	}
}

func historyIDs(t *testing.T, s Store, limit int) []string {
	t.Helper()
	plans, err := s.History(limit)
	require.NoError(t, err)
	ids := make([]string, len(plans))
	for i, p := range plans {
		ids[i] = p.ID
	}
	return ids
}

func TestStore_CurrentIsNewest(t *testing.T) {
	for name, newStore := range storeImpls() {
		t.Run(name, func(t *testing.T) {
			s := newStore(t, 0)

			_, err := s.Current()
			assert.ErrorIs(t, err, ErrNotFound)
			assert.EqualError(t, err, "no current plan")

			p1, p2 := testPlan(0), testPlan(1)
			require.NoError(t, s.Save(p1))
			require.NoError(t, s.Save(p2))

			cur, err := s.Current()
			require.NoError(t, err)
			assert.Equal(t, p2.ID, cur.ID)

			got, err := s.Get(p1.ID)
			require.NoError(t, err)
			assert.Equal(t, p1.ID, got.ID)
			assert.Equal(t, model.RoleMaintenance, got.Assignments[1].Role)
			assert.Equal(t, []string{"Fitness certificate expired"}, got.Assignments[1].RiskFactors)
			require.Len(t, got.AuditTrail, 1)
			assert.Equal(t, model.AuditPlanGenerated, got.AuditTrail[0].Kind)
			assert.True(t, got.GeneratedAt.Equal(p1.GeneratedAt))
		})
	}
}

func TestStore_GetUnknown(t *testing.T) {
	for name, newStore := range storeImpls() {
		t.Run(name, func(t *testing.T) {
			s := newStore(t, 0)
			_, err := s.Get("PLAN-404")

			var nf *NotFoundError
			require.True(t, errors.As(err, &nf))
			assert.Equal(t, "PLAN-404", nf.PlanID)
			assert.EqualError(t, err, "plan PLAN-404 not found")
		})
	}
}

func TestStore_ReadsAreCopies(t *testing.T) {
	for name, newStore := range storeImpls() {
		t.Run(name, func(t *testing.T) {
			s := newStore(t, 0)
			p := testPlan(0)
			require.NoError(t, s.Save(p))

			p.Assignments[0].Role = model.RoleStandby
			got, err := s.Current()
			require.NoError(t, err)
			got.Assignments[0].Reasons[0] = "mutated"
			got.ApprovalStatus = model.ApprovalApproved

			again, err := s.Get(p.ID)
			require.NoError(t, err)
			assert.Equal(t, model.RoleService, again.Assignments[0].Role)
			assert.Equal(t, "optimization: High branding commitment", again.Assignments[0].Reasons[0])
			assert.Equal(t, model.ApprovalPending, again.ApprovalStatus)
		})
	}
}

func TestStore_HistoryNewestFirst(t *testing.T) {
	for name, newStore := range storeImpls() {
		t.Run(name, func(t *testing.T) {
			s := newStore(t, 0)
			for i := 0; i < 4; i++ {
				require.NoError(t, s.Save(testPlan(i)))
			}

			all := historyIDs(t, s, 0)
			assert.Equal(t, []string{testPlan(3).ID, testPlan(2).ID, testPlan(1).ID, testPlan(0).ID}, all)
			assert.Equal(t, []string{testPlan(3).ID, testPlan(2).ID}, historyIDs(t, s, 2))
			assert.Len(t, historyIDs(t, s, 10), 4)
		})
	}
}

func TestStore_HistoryIsBounded(t *testing.T) {
	for name, newStore := range storeImpls() {
		t.Run(name, func(t *testing.T) {
			s := newStore(t, 2)
			p0 := testPlan(0)
			require.NoError(t, s.Save(p0))
			require.NoError(t, s.RecordOverride(model.SupervisorOverride{ID: "ovr-0", PlanID: p0.ID, TrainsetID: "TS-101"}))
			require.NoError(t, s.Save(testPlan(1)))
			require.NoError(t, s.Save(testPlan(2)))

			assert.Equal(t, []string{testPlan(2).ID, testPlan(1).ID}, historyIDs(t, s, 0))

			_, err := s.Get(p0.ID)
			assert.ErrorIs(t, err, ErrNotFound)

			all, err := s.Overrides("")
			require.NoError(t, err)
			assert.Empty(t, all)
		})
	}
}

func TestStore_SaveRejectsStoredID(t *testing.T) {
	for name, newStore := range storeImpls() {
		t.Run(name, func(t *testing.T) {
			s := newStore(t, 0)
			p0, p1 := testPlan(0), testPlan(1)
			require.NoError(t, s.Save(p0))
			require.NoError(t, s.RecordOverride(model.SupervisorOverride{ID: "ovr-a", PlanID: p0.ID}))
			require.NoError(t, s.Save(p1))

			clash := testPlan(0)
			clash.ObjectiveNotes = []string{"regenerated"}
			err := s.Save(clash)
			var dup *DuplicateError
			require.True(t, errors.As(err, &dup))
			assert.ErrorIs(t, err, ErrDuplicatePlan)
			assert.Equal(t, p0.ID, dup.PlanID)

			assert.Equal(t, []string{p1.ID, p0.ID}, historyIDs(t, s, 0))
			got, err := s.Get(p0.ID)
			require.NoError(t, err)
			assert.Empty(t, got.ObjectiveNotes)
			overrides, err := s.Overrides(p0.ID)
			require.NoError(t, err)
			assert.Len(t, overrides, 1)
		})
	}
}

func TestStore_EvictedIDCanBeSavedAgain(t *testing.T) {
	for name, newStore := range storeImpls() {
		t.Run(name, func(t *testing.T) {
			s := newStore(t, 1)
			require.NoError(t, s.Save(testPlan(0)))
			require.NoError(t, s.Save(testPlan(1)))
			require.NoError(t, s.Save(testPlan(0)))
			assert.Equal(t, []string{testPlan(0).ID}, historyIDs(t, s, 0))
		})
	}
}

func TestStore_Update(t *testing.T) {
	for name, newStore := range storeImpls() {
		t.Run(name, func(t *testing.T) {
			s := newStore(t, 0)
			p := testPlan(0)
			require.NoError(t, s.Save(p))

			updated, err := s.Update(p.ID, func(p *model.InductionPlan) error {
				p.ApprovalStatus = model.ApprovalModified
				p.Assignments[0].Role = model.RoleStandby
				return nil
			})
			require.NoError(t, err)
			assert.Equal(t, model.ApprovalModified, updated.ApprovalStatus)

			got, err := s.Get(p.ID)
			require.NoError(t, err)
			assert.Equal(t, model.RoleStandby, got.Assignments[0].Role)
			assert.Equal(t, model.ApprovalModified, got.ApprovalStatus)
		})
	}
}

func TestStore_FailedUpdateLeavesPlanUntouched(t *testing.T) {
	for name, newStore := range storeImpls() {
		t.Run(name, func(t *testing.T) {
			s := newStore(t, 0)
			p := testPlan(0)
			require.NoError(t, s.Save(p))

			boom := errors.New("boom")
			_, err := s.Update(p.ID, func(p *model.InductionPlan) error {
				p.Assignments[0].Role = model.RoleMaintenance
				return boom
			})
			assert.ErrorIs(t, err, boom)

			got, err := s.Get(p.ID)
			require.NoError(t, err)
			assert.Equal(t, model.RoleService, got.Assignments[0].Role)

			_, err = s.Update("PLAN-404", func(*model.InductionPlan) error { return nil })
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestStore_Overrides(t *testing.T) {
	for name, newStore := range storeImpls() {
		t.Run(name, func(t *testing.T) {
			s := newStore(t, 0)
			p0, p1 := testPlan(0), testPlan(1)
			require.NoError(t, s.Save(p0))
			require.NoError(t, s.Save(p1))

			require.NoError(t, s.RecordOverride(model.SupervisorOverride{ID: "ovr-a", PlanID: p0.ID, TrainsetID: "TS-101"}))
			require.NoError(t, s.RecordOverride(model.SupervisorOverride{ID: "ovr-b", PlanID: p1.ID, TrainsetID: "TS-205"}))
			require.NoError(t, s.RecordOverride(model.SupervisorOverride{ID: "ovr-c", PlanID: p0.ID, TrainsetID: "TS-205"}))

			got, err := s.Overrides(p0.ID)
			require.NoError(t, err)
			require.Len(t, got, 2)
			assert.Equal(t, "ovr-a", got[0].ID)
			assert.Equal(t, "ovr-c", got[1].ID)

			all, err := s.Overrides("")
			require.NoError(t, err)
			assert.Len(t, all, 3)

			_, err = s.Overrides("PLAN-404")
			assert.ErrorIs(t, err, ErrNotFound)

			err = s.RecordOverride(model.SupervisorOverride{ID: "ovr-x", PlanID: "PLAN-404"})
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestFileStore_PersistsAcrossInstances(t *testing.T) {
	dir := t.TempDir()
	s1, err := NewFileStore(dir, 0, logging.Discard())
	require.NoError(t, err)

	p := testPlan(0)
	require.NoError(t, s1.Save(p))
	require.NoError(t, s1.RecordOverride(model.SupervisorOverride{ID: "ovr-a", PlanID: p.ID, TrainsetID: "TS-101"}))

	s2, err := NewFileStore(dir, 0, logging.Discard())
	require.NoError(t, err)
	cur, err := s2.Current()
	require.NoError(t, err)
	assert.Equal(t, p.ID, cur.ID)

	overrides, err := s2.Overrides(p.ID)
	require.NoError(t, err)
	require.Len(t, overrides, 1)
	assert.Equal(t, "ovr-a", overrides[0].ID)

	require.NoError(t, yamlutil.ValidateSchemaHeader(filepath.Join(dir, "index.yaml"), yamlutil.FileTypePlanIndex))
	require.NoError(t, yamlutil.ValidateSchemaHeader(filepath.Join(dir, p.ID+".yaml"), yamlutil.FileTypeInductionPlan))
}

func TestFileStore_ConcurrentWritersShareDirectory(t *testing.T) {
	dir := t.TempDir()
	s1, err := NewFileStore(dir, 0, logging.Discard())
	require.NoError(t, err)
	s2, err := NewFileStore(dir, 0, logging.Discard())
	require.NoError(t, err)

	p := testPlan(0)
	require.NoError(t, s1.Save(p))

	const rounds = 25
	var wg sync.WaitGroup
	for w, s := range []*FileStore{s1, s2} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < rounds; i++ {
				o := model.SupervisorOverride{ID: fmt.Sprintf("ovr-%d-%d", w, i), PlanID: p.ID}
				assert.NoError(t, s.RecordOverride(o))
			}
		}()
	}
	wg.Wait()

	overrides, err := s2.Overrides(p.ID)
	require.NoError(t, err)
	assert.Len(t, overrides, 2*rounds)
}

func TestFileStore_EvictionRemovesFiles(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir, 1, logging.Discard())
	require.NoError(t, err)

	p0 := testPlan(0)
	require.NoError(t, s.Save(p0))
	require.NoError(t, s.Save(testPlan(1)))

	_, err = os.Stat(filepath.Join(dir, p0.ID+".yaml"))
	assert.True(t, os.IsNotExist(err))
}

func TestFileStore_CorruptIndexRestoresBackup(t *testing.T) {
	dir := t.TempDir()
	var logs bytes.Buffer
	s, err := NewFileStore(dir, 0, logging.New(&logs, logging.LogLevelWarn))
	require.NoError(t, err)

	p0, p1 := testPlan(0), testPlan(1)
	require.NoError(t, s.Save(p0))
	require.NoError(t, s.Save(p1)) // index.yaml.bak now lists only p0

	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.yaml"), []byte("{{{not yaml"), 0644))

	cur, err := s.Current()
	require.NoError(t, err)
	assert.Equal(t, p0.ID, cur.ID)
	assert.Contains(t, logs.String(), "plan index recovered from backup")

	entries, err := os.ReadDir(filepath.Join(dir, "quarantine"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestFileStore_CorruptIndexWithoutBackupStartsEmpty(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir, 0, logging.Discard())
	require.NoError(t, err)
	require.NoError(t, s.Save(testPlan(0)))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.yaml"), []byte("schema_version: 7\nfile_type: plan_index\n"), 0644))

	_, err = s.Current()
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFileStore_RejectsForeignPlanFile(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir, 0, logging.Discard())
	require.NoError(t, err)
	p := testPlan(0)
	require.NoError(t, s.Save(p))

	require.NoError(t, os.WriteFile(filepath.Join(dir, p.ID+".yaml"),
		[]byte("schema_version: 1\nfile_type: fleet_snapshot\n"), 0644))

	_, err = s.Get(p.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "file_type mismatch")
}
