package daemon

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Rishikoli/speedline-metro-glow/internal/events"
	"github.com/Rishikoli/speedline-metro-glow/internal/model"
	"github.com/Rishikoli/speedline-metro-glow/internal/orchestrator"
	"github.com/Rishikoli/speedline-metro-glow/internal/plan"
	"github.com/Rishikoli/speedline-metro-glow/internal/provider"
	"github.com/Rishikoli/speedline-metro-glow/internal/uds"
)

// recordingGenerator reports each planning input on calls.
type recordingGenerator struct {
	calls chan orchestrator.Input
}

func newRecordingGenerator() *recordingGenerator {
	return &recordingGenerator{calls: make(chan orchestrator.Input, 16)}
}

func (g *recordingGenerator) Generate(_ context.Context, in orchestrator.Input) (plan.GenerateResult, error) {
	g.calls <- in
	return plan.GenerateResult{Plan: &model.InductionPlan{ID: model.PlanID(in.Now)}}, nil
}

func (g *recordingGenerator) wait(t *testing.T) orchestrator.Input {
	t.Helper()
	select {
	case in := <-g.calls:
		return in
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a planning run")
		return orchestrator.Input{}
	}
}

func (g *recordingGenerator) expectNone(t *testing.T, within time.Duration) {
	t.Helper()
	select {
	case <-g.calls:
		t.Fatal("unexpected planning run")
	case <-time.After(within):
	}
}

// syncBuffer lets the test read the log while the daemon writes it.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

var snapshotTime = time.Date(2025, 6, 1, 5, 0, 0, 0, time.UTC)

func writeFleet(t *testing.T, path string, ids ...string) {
	t.Helper()
	s := provider.Snapshot{GeneratedAt: snapshotTime}
	for _, id := range ids {
		s.Fleet = append(s.Fleet, model.TrainsetSnapshot{ID: id, KM: 1000, FitnessValidUntil: snapshotTime.Add(48 * time.Hour)})
	}
	if err := provider.Write(path, s); err != nil {
		t.Fatalf("write fleet: %v", err)
	}
}

func testConfig() model.Config {
	cfg := model.Config{
		Watcher: model.WatcherConfig{DebounceMs: 150},
		Logging: model.LoggingConfig{Level: "debug"},
	}
	cfg.ApplyDefaults()
	return cfg
}

// shortTempDir keeps the control socket path under the sun_path limit on macOS.
func shortTempDir(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("/tmp", "sl-watch-*")
	if err != nil {
		t.Fatalf("create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })
	return dir
}

type harness struct {
	dir  string
	d    *Daemon
	gen  *recordingGenerator
	logs *syncBuffer
	done chan error
}

func start(t *testing.T, bus *events.Bus) *harness {
	t.Helper()
	dir := shortTempDir(t)
	writeFleet(t, filepath.Join(dir, "fleet.yaml"), "TS-101")

	h := &harness{dir: dir, gen: newRecordingGenerator(), logs: &syncBuffer{}, done: make(chan error, 1)}
	h.d = newDaemon(dir, testConfig(), h.gen, bus, h.logs, nil)
	h.d.now = func() time.Time { return snapshotTime }

	ctx, cancel := context.WithCancel(context.Background())
	go func() { h.done <- h.d.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-h.done
	})
	return h
}

func TestNewDaemon(t *testing.T) {
	var buf bytes.Buffer
	d := newDaemon("/tmp/test-speedline", testConfig(), newRecordingGenerator(), nil, &buf, nil)

	if d.fleetPath != filepath.Join("/tmp/test-speedline", "fleet.yaml") {
		t.Errorf("fleetPath: got %q", d.fleetPath)
	}
	if d.debounce != 150*time.Millisecond {
		t.Errorf("debounce: got %v", d.debounce)
	}
}

func TestDaemon_PlansOnStartup(t *testing.T) {
	h := start(t, nil)

	in := h.gen.wait(t)
	if len(in.Fleet) != 1 || in.Fleet[0].ID != "TS-101" {
		t.Errorf("fleet: got %+v", in.Fleet)
	}
	if !in.Now.Equal(snapshotTime) {
		t.Errorf("now: got %v", in.Now)
	}
	if in.Constraints != model.DefaultConstraints() {
		t.Errorf("constraints: got %+v", in.Constraints)
	}
}

func TestDaemon_ReplansOnSnapshotChange(t *testing.T) {
	bus := events.NewBus(8)
	defer bus.Close()
	changed := make(chan events.Event, 4)
	bus.Subscribe(events.EventSnapshotChanged, func(e events.Event) { changed <- e })

	h := start(t, bus)
	h.gen.wait(t)

	writeFleet(t, filepath.Join(h.dir, "fleet.yaml"), "TS-101", "TS-205")
	in := h.gen.wait(t)
	if len(in.Fleet) != 2 {
		t.Fatalf("fleet size after change: got %d, want 2", len(in.Fleet))
	}

	select {
	case e := <-changed:
		if e.Data["path"] != filepath.Join(h.dir, "fleet.yaml") {
			t.Errorf("event path: got %v", e.Data["path"])
		}
	case <-time.After(2 * time.Second):
		t.Fatal("snapshot_changed event not published")
	}
}

func TestDaemon_DebouncesBursts(t *testing.T) {
	h := start(t, nil)
	h.gen.wait(t)

	path := filepath.Join(h.dir, "fleet.yaml")
	for i := 0; i < 5; i++ {
		writeFleet(t, path, "TS-101", "TS-317")
	}
	h.gen.wait(t)
	h.gen.expectNone(t, 500*time.Millisecond)
}

func TestDaemon_IgnoresOtherFiles(t *testing.T) {
	h := start(t, nil)
	h.gen.wait(t)

	if err := os.WriteFile(filepath.Join(h.dir, "notes.txt"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	h.gen.expectNone(t, 400*time.Millisecond)
}

func TestDaemon_InvalidSnapshotKeepsPlan(t *testing.T) {
	h := start(t, nil)
	h.gen.wait(t)

	if err := os.WriteFile(filepath.Join(h.dir, "fleet.yaml"), []byte("schema_version: 1\nfile_type: fleet_snapshot\nfleet:\n  - id: \"\"\n"), 0644); err != nil {
		t.Fatal(err)
	}
	h.gen.expectNone(t, 500*time.Millisecond)

	if !strings.Contains(h.logs.String(), "snapshot rejected, keeping current plan") {
		t.Errorf("expected rejection in log, got:\n%s", h.logs.String())
	}
}

func TestDaemon_SecondWatcherIsLockedOut(t *testing.T) {
	h := start(t, nil)
	h.gen.wait(t)

	var buf bytes.Buffer
	other := newDaemon(h.dir, testConfig(), newRecordingGenerator(), nil, &buf, nil)
	err := other.Run(context.Background())
	if err == nil {
		t.Fatal("expected lock error")
	}
	if !strings.Contains(err.Error(), "workspace is locked by pid") {
		t.Errorf("error: got %v", err)
	}
}

func TestDaemon_ShutdownIdempotent(t *testing.T) {
	h := start(t, nil)
	h.gen.wait(t)

	h.d.Shutdown()
	h.d.Shutdown()

	select {
	case err := <-h.done:
		if err != nil {
			t.Errorf("Run: %v", err)
		}
		h.done <- err
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Shutdown")
	}

	if _, err := os.Stat(filepath.Join(h.dir, "locks", "watch.lock")); !os.IsNotExist(err) {
		t.Errorf("lock file should be removed, stat err=%v", err)
	}
}

func TestDaemon_ControlSocketStatus(t *testing.T) {
	h := start(t, nil)
	h.gen.wait(t)

	c := uds.NewClient(filepath.Join(h.dir, uds.SocketName))
	c.SetTimeout(2 * time.Second)

	var st Status
	waitFor(t, func() bool {
		return c.Call("status", nil, &st) == nil
	})
	if st.PID != os.Getpid() {
		t.Errorf("pid: got %d", st.PID)
	}
	if st.Replans != 1 || st.LastTrigger != "startup" {
		t.Errorf("status: got %+v", st)
	}
	if st.LastPlanID != model.PlanID(snapshotTime) {
		t.Errorf("last plan: got %q", st.LastPlanID)
	}
}

func TestDaemon_ControlSocketReplan(t *testing.T) {
	h := start(t, nil)
	h.gen.wait(t)

	c := uds.NewClient(filepath.Join(h.dir, uds.SocketName))
	c.SetTimeout(2 * time.Second)
	waitFor(t, func() bool { return c.Call("status", nil, nil) == nil })

	var st Status
	if err := c.Call("replan", nil, &st); err != nil {
		t.Fatalf("replan: %v", err)
	}
	h.gen.wait(t)
	if st.Replans != 2 || st.LastTrigger != "control request" {
		t.Errorf("status: got %+v", st)
	}

	if err := os.WriteFile(filepath.Join(h.dir, "fleet.yaml"), []byte("not: [valid"), 0644); err != nil {
		t.Fatal(err)
	}
	// The file change also triggers a debounced replan; both are rejected.
	err := c.Call("replan", nil, nil)
	var detail *uds.ErrorDetail
	if !errors.As(err, &detail) || detail.Code != uds.ErrCodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	if got := h.d.Status(); got.LastError == "" || got.Replans != 2 {
		t.Errorf("status after rejected snapshot: %+v", got)
	}
}

func TestDaemon_ShutdownRemovesSocket(t *testing.T) {
	h := start(t, nil)
	h.gen.wait(t)
	sock := filepath.Join(h.dir, uds.SocketName)
	waitFor(t, func() bool {
		_, err := os.Stat(sock)
		return err == nil
	})

	h.d.Shutdown()
	if _, err := os.Stat(sock); !os.IsNotExist(err) {
		t.Errorf("socket should be removed, stat err=%v", err)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}
