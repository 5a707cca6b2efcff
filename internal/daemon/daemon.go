// Package daemon runs the watch loop that re-plans whenever the fleet snapshot file changes.
package daemon

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Rishikoli/speedline-metro-glow/internal/events"
	"github.com/Rishikoli/speedline-metro-glow/internal/lock"
	"github.com/Rishikoli/speedline-metro-glow/internal/logging"
	"github.com/Rishikoli/speedline-metro-glow/internal/model"
	"github.com/Rishikoli/speedline-metro-glow/internal/orchestrator"
	"github.com/Rishikoli/speedline-metro-glow/internal/plan"
	"github.com/Rishikoli/speedline-metro-glow/internal/provider"
	"github.com/Rishikoli/speedline-metro-glow/internal/uds"
)

// Generator produces and stores a plan. *plan.Service satisfies it.
type Generator interface {
	Generate(ctx context.Context, in orchestrator.Input) (plan.GenerateResult, error)
}

// Status is what the watcher reports over its control socket.
type Status struct {
	PID          int       `json:"pid"`
	StartedAt    time.Time `json:"started_at"`
	FleetFile    string    `json:"fleet_file"`
	Replans      int       `json:"replans"`
	LastTrigger  string    `json:"last_trigger,omitempty"`
	LastPlanID   string    `json:"last_plan_id,omitempty"`
	LastReplanAt time.Time `json:"last_replan_at"`
	LastError    string    `json:"last_error,omitempty"`
}

// Daemon watches the fleet snapshot and regenerates the current plan after each change.
type Daemon struct {
	baseDir   string
	config    model.Config
	logger    *logging.Logger
	logFile   io.Closer
	fleetPath string

	fileLock  *lock.FileLock
	control   *uds.Server
	watcher   *fsnotify.Watcher
	provider  *provider.File
	generator Generator
	bus       *events.Bus
	debounce  time.Duration
	now       func() time.Time

	replanMu sync.Mutex // one planning run at a time
	mu       sync.Mutex
	status   Status

	wg       sync.WaitGroup
	shutdown sync.Once
	cancel   context.CancelFunc
}

// New creates a daemon logging to <baseDir>/logs/watch.log.
func New(baseDir string, cfg model.Config, gen Generator, bus *events.Bus) (*Daemon, error) {
	logPath := filepath.Join(baseDir, "logs", "watch.log")
	if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	logFile, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("open watch log: %w", err)
	}
	return newDaemon(baseDir, cfg, gen, bus, logFile, logFile), nil
}

// newDaemon is the internal constructor for testing.
func newDaemon(baseDir string, cfg model.Config, gen Generator, bus *events.Bus, w io.Writer, closer io.Closer) *Daemon {
	cfg.ApplyDefaults()
	fleetPath := filepath.Join(baseDir, cfg.Data.FleetFile)
	base := logging.New(w, logging.ParseLogLevel(cfg.Logging.Level))
	return &Daemon{
		baseDir:   baseDir,
		config:    cfg,
		logger:    base.With("watch"),
		logFile:   closer,
		fleetPath: fleetPath,
		fileLock:  lock.NewFileLock(filepath.Join(baseDir, "locks", "watch.lock")),
		control:   uds.NewServer(filepath.Join(baseDir, uds.SocketName), base),
		provider:  provider.NewFile(fleetPath),
		generator: gen,
		bus:       bus,
		debounce:  time.Duration(cfg.Watcher.DebounceMs) * time.Millisecond,
		now:       time.Now,
	}
}

// Run plans once from the current snapshot, then re-plans after every change until ctx is
// cancelled or Shutdown is called.
func (d *Daemon) Run(ctx context.Context) error {
	// Step 1: Acquire file lock
	if err := os.MkdirAll(filepath.Join(d.baseDir, "locks"), 0755); err != nil {
		return fmt.Errorf("ensure lock dir: %w", err)
	}
	if err := d.fileLock.TryLock(); err != nil {
		return fmt.Errorf("watch lock: %w", err)
	}
	d.logger.Infof("watcher starting pid=%d file=%s", os.Getpid(), d.fleetPath)

	// Step 2: Watch the snapshot's directory; atomic writers replace the file by rename.
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		d.cleanup()
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	d.watcher = watcher
	if err := watcher.Add(filepath.Dir(d.fleetPath)); err != nil {
		d.cleanup()
		return fmt.Errorf("watch %s: %w", filepath.Dir(d.fleetPath), err)
	}

	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.mu.Lock()
	d.status = Status{PID: os.Getpid(), StartedAt: d.now(), FleetFile: d.fleetPath}
	d.mu.Unlock()

	// Step 3: Initial plan
	_ = d.replan(ctx, "startup")

	// Step 4: Control socket
	d.registerHandlers(ctx)
	if err := d.control.Start(); err != nil {
		cancel()
		d.watcher.Close()
		d.cleanup()
		return fmt.Errorf("control socket: %w", err)
	}

	// Step 5: Event loop
	d.wg.Add(1)
	go d.fsnotifyLoop(ctx)
	d.logger.Infof("watcher ready")

	<-ctx.Done()
	d.Shutdown()
	return nil
}

func (d *Daemon) fsnotifyLoop(ctx context.Context) {
	defer d.wg.Done()

	timer := time.NewTimer(d.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-d.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(d.fleetPath) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			d.logger.Debugf("fsnotify event=%s file=%s", event.Op, event.Name)
			timer.Reset(d.debounce)
		case <-timer.C:
			d.bus.Publish(events.EventSnapshotChanged, "", map[string]any{"path": d.fleetPath})
			_ = d.replan(ctx, "snapshot changed")
		case err, ok := <-d.watcher.Errors:
			if !ok {
				return
			}
			d.logger.Errorf("fsnotify error=%v", err)
		}
	}
}

func (d *Daemon) registerHandlers(ctx context.Context) {
	d.control.Handle("status", func(*uds.Request) *uds.Response {
		return uds.SuccessResponse(d.Status())
	})
	d.control.Handle("replan", func(*uds.Request) *uds.Response {
		if err := d.replan(ctx, "control request"); err != nil {
			if ctx.Err() != nil {
				return uds.ErrorResponse(uds.ErrCodeCancelled, "watcher is shutting down")
			}
			return uds.ErrorResponse(uds.ErrCodeValidation, err.Error())
		}
		return uds.SuccessResponse(d.Status())
	})
}

// Status returns a copy of the watcher's counters.
func (d *Daemon) Status() Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.status
}

// replan keeps the previous current plan when the snapshot is unreadable or invalid.
func (d *Daemon) replan(ctx context.Context, trigger string) error {
	d.replanMu.Lock()
	defer d.replanMu.Unlock()

	snap, err := d.provider.Snapshot()
	if err != nil {
		d.logger.Errorf("%s: snapshot rejected, keeping current plan: %v", trigger, err)
		d.record(trigger, "", err)
		return err
	}

	res, err := d.generator.Generate(ctx, plan.InputFromSnapshot(snap, d.config, d.now()))
	if err != nil {
		d.logger.Errorf("%s: planning failed: %v", trigger, err)
		d.record(trigger, "", err)
		return err
	}
	roles := res.Plan.RoleCounts()
	d.logger.Infof("%s: plan %s service=%d standby=%d maintenance=%d in %s", trigger, res.Plan.ID,
		roles[model.RoleService], roles[model.RoleStandby], roles[model.RoleMaintenance], res.Duration)
	d.record(trigger, res.Plan.ID, nil)
	return nil
}

func (d *Daemon) record(trigger, planID string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.status.LastTrigger = trigger
	d.status.LastReplanAt = d.now()
	if err != nil {
		d.status.LastError = err.Error()
		return
	}
	d.status.Replans++
	d.status.LastPlanID = planID
	d.status.LastError = ""
}

// Shutdown stops the watch loop and releases the lock. Safe to call more than once.
func (d *Daemon) Shutdown() {
	d.shutdown.Do(func() {
		d.logger.Infof("shutdown started")
		if d.cancel != nil {
			d.cancel()
		}
		d.control.Stop()
		if d.watcher != nil {
			d.watcher.Close()
		}
		d.wg.Wait()
		d.logger.Infof("watcher stopped")
		d.cleanup()
	})
}

func (d *Daemon) cleanup() {
	d.fileLock.Unlock()
	if d.logFile != nil {
		d.logFile.Close()
	}
}
