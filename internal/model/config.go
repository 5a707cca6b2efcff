package model

type Config struct {
	Project  ProjectConfig  `yaml:"project"`
	Planning PlanningConfig `yaml:"planning"`
	Agents   AgentsConfig   `yaml:"agents"`
	Data     DataConfig     `yaml:"data"`
	Store    StoreConfig    `yaml:"store"`
	Audit    AuditConfig    `yaml:"audit"`
	Watcher  WatcherConfig  `yaml:"watcher"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type ProjectConfig struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

type PlanningConfig struct {
	Constraints    GlobalConstraints `yaml:"constraints"`
	HistoryLimit   int               `yaml:"history_limit"`
	ParallelAgents bool              `yaml:"parallel_agents"`
}

type AgentsConfig struct {
	StaleDataMinutes   float64 `yaml:"stale_data_minutes"`
	MinConsistency     float64 `yaml:"min_consistency"`
	FitnessWarningDays int     `yaml:"fitness_warning_days"`
}

// DataConfig points at the snapshot files read by the file data provider, relative to the
// workspace directory.
type DataConfig struct {
	FleetFile     string `yaml:"fleet_file"`
	ScenariosFile string `yaml:"scenarios_file"`
}

type StoreConfig struct {
	Driver string `yaml:"driver"` // "memory" or "file"
	Dir    string `yaml:"dir"`
}

type AuditConfig struct {
	Path         string `yaml:"path"`
	MaxSizeBytes int64  `yaml:"max_size_bytes"`
	Checksum     bool   `yaml:"checksum"`
}

type WatcherConfig struct {
	DebounceMs int `yaml:"debounce_ms"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

const (
	DefaultHistoryLimit       = 50
	DefaultStaleDataMinutes   = 30
	DefaultMinConsistency     = 0.9
	DefaultFitnessWarningDays = 3
)

// ApplyDefaults fills zero-valued fields. Constraint fields are left alone when any of them is
// set, since zero is a legitimate value for most of them.
func (c *Config) ApplyDefaults() {
	if c.Planning.Constraints == (GlobalConstraints{}) {
		c.Planning.Constraints = DefaultConstraints()
	}
	if c.Planning.HistoryLimit <= 0 {
		c.Planning.HistoryLimit = DefaultHistoryLimit
	}
	if c.Agents.StaleDataMinutes <= 0 {
		c.Agents.StaleDataMinutes = DefaultStaleDataMinutes
	}
	if c.Agents.MinConsistency <= 0 {
		c.Agents.MinConsistency = DefaultMinConsistency
	}
	if c.Agents.FitnessWarningDays <= 0 {
		c.Agents.FitnessWarningDays = DefaultFitnessWarningDays
	}
	if c.Data.FleetFile == "" {
		c.Data.FleetFile = "fleet.yaml"
	}
	if c.Data.ScenariosFile == "" {
		c.Data.ScenariosFile = "scenarios.yaml"
	}
	if c.Store.Driver == "" {
		c.Store.Driver = "file"
	}
	if c.Store.Dir == "" {
		c.Store.Dir = "plans"
	}
	if c.Audit.Path == "" {
		c.Audit.Path = "logs/audit.jsonl"
	}
	if c.Watcher.DebounceMs <= 0 {
		c.Watcher.DebounceMs = 500
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}
