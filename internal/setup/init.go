// Package setup initializes a speedline workspace.
package setup

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	yamlv3 "gopkg.in/yaml.v3"

	"github.com/Rishikoli/speedline-metro-glow/internal/model"
	"github.com/Rishikoli/speedline-metro-glow/internal/provider"
	"github.com/Rishikoli/speedline-metro-glow/internal/simulation"
	atomicyaml "github.com/Rishikoli/speedline-metro-glow/internal/yaml"
	"github.com/Rishikoli/speedline-metro-glow/templates"
)

// WorkspaceDir is the directory setup creates inside the project directory.
const WorkspaceDir = ".speedline"

// Run initializes the .speedline/ workspace in projectDir. projectName overrides the
// auto-detected name (defaults to the directory basename if empty).
func Run(projectDir, projectName string) error {
	return run(projectDir, projectName, time.Now())
}

func run(projectDir, projectName string, now time.Time) error {
	absDir, err := filepath.Abs(projectDir)
	if err != nil {
		return fmt.Errorf("resolve project dir: %w", err)
	}

	base := filepath.Join(absDir, WorkspaceDir)
	if _, err := os.Stat(base); err == nil {
		return fmt.Errorf("%s already exists", base)
	}

	cfg, err := generateConfig(absDir, projectName)
	if err != nil {
		return fmt.Errorf("generate config: %w", err)
	}

	dirs := []string{
		cfg.Store.Dir,
		filepath.Dir(cfg.Audit.Path),
		"locks",
		"quarantine",
	}
	for _, d := range dirs {
		if err := os.MkdirAll(filepath.Join(base, d), 0755); err != nil {
			return fmt.Errorf("create directory %s: %w", d, err)
		}
	}

	if err := atomicyaml.WriteFile(filepath.Join(base, "config.yaml"), cfg); err != nil {
		return fmt.Errorf("write config.yaml: %w", err)
	}

	if err := writeSampleFleet(filepath.Join(base, cfg.Data.FleetFile), now); err != nil {
		return err
	}

	if err := simulation.WriteScenarios(filepath.Join(base, cfg.Data.ScenariosFile), simulation.CommonScenarios()); err != nil {
		return fmt.Errorf("write %s: %w", cfg.Data.ScenariosFile, err)
	}

	indexPath := filepath.Join(base, cfg.Store.Dir, "index.yaml")
	if err := atomicyaml.WriteRaw(indexPath, []byte("schema_version: 1\nfile_type: \"plan_index\"\ncurrent: \"\"\nplan_ids: []\n"), atomicyaml.FileTypePlanIndex); err != nil {
		return fmt.Errorf("write plan index: %w", err)
	}

	if err := os.WriteFile(filepath.Join(base, "locks", "watch.lock"), nil, 0600); err != nil {
		return fmt.Errorf("create watch.lock: %w", err)
	}

	return nil
}

func generateConfig(projectDir, projectName string) (*model.Config, error) {
	data, err := fs.ReadFile(templates.FS, "config.yaml")
	if err != nil {
		return nil, fmt.Errorf("read config template: %w", err)
	}

	var cfg model.Config
	if err := yamlv3.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config template: %w", err)
	}

	if projectName != "" {
		cfg.Project.Name = projectName
	} else {
		cfg.Project.Name = filepath.Base(projectDir)
	}
	cfg.ApplyDefaults()
	return &cfg, nil
}

// writeSampleFleet copies the embedded snapshot with every timestamp shifted so that the
// snapshot appears to have been captured at now.
func writeSampleFleet(path string, now time.Time) error {
	data, err := fs.ReadFile(templates.FS, "fleet.yaml")
	if err != nil {
		return fmt.Errorf("read fleet template: %w", err)
	}
	snap, err := provider.Parse(data)
	if err != nil {
		return fmt.Errorf("parse fleet template: %w", err)
	}

	rebase(&snap, now.UTC().Truncate(time.Second))
	if err := provider.Write(path, snap); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return nil
}

func rebase(s *provider.Snapshot, now time.Time) {
	d := now.Sub(s.GeneratedAt)
	shift := func(t *time.Time) {
		if !t.IsZero() {
			*t = t.Add(d)
		}
	}

	shift(&s.GeneratedAt)
	shift(&s.Signals.CapturedAt)
	for i := range s.Fleet {
		ts := &s.Fleet[i]
		shift(&ts.FitnessValidUntil)
		shift(&ts.LastCleaningDate)
		shift(&ts.ComponentWear.LastInspection)
		for j := range ts.OpenWorkOrders {
			shift(&ts.OpenWorkOrders[j].DueDate)
		}
		for j := range ts.BrandingContracts {
			shift(&ts.BrandingContracts[j].ExpiryDate)
		}
		for sys, h := range ts.SystemHealth {
			shift(&h.LastUpdated)
			ts.SystemHealth[sys] = h
		}
	}
	for i := range s.Signals.PriorityMessages {
		shift(&s.Signals.PriorityMessages[i].Timestamp)
	}
	for i := range s.Signals.JobCards {
		shift(&s.Signals.JobCards[i].DueDate)
	}
	for i := range s.Signals.SensorReadings {
		shift(&s.Signals.SensorReadings[i].Timestamp)
	}
}

// LoadConfig reads <baseDir>/config.yaml and fills defaults for anything left unset.
func LoadConfig(baseDir string) (model.Config, error) {
	data, err := os.ReadFile(filepath.Join(baseDir, "config.yaml"))
	if err != nil {
		return model.Config{}, fmt.Errorf("read config.yaml: %w", err)
	}
	var cfg model.Config
	if err := yamlv3.Unmarshal(data, &cfg); err != nil {
		return model.Config{}, fmt.Errorf("parse config.yaml: %w", err)
	}
	cfg.ApplyDefaults()
	return cfg, nil
}
