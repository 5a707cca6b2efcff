package model

import "time"

// PriorityMessage is an operator-submitted priority request already parsed from its channel.
type PriorityMessage struct {
	ID         string    `yaml:"id" json:"id"`
	Channel    string    `yaml:"channel" json:"channel"`
	User       string    `yaml:"user" json:"user"`
	TrainsetID string    `yaml:"trainset_id" json:"trainset_id"`
	Action     Action    `yaml:"action" json:"action"`
	Priority   int       `yaml:"priority" json:"priority"` // 1-10
	Details    string    `yaml:"details" json:"details"`
	Timestamp  time.Time `yaml:"timestamp" json:"timestamp"`
}

type JobCardStatus string

const (
	JobCardOpen       JobCardStatus = "open"
	JobCardInProgress JobCardStatus = "in_progress"
	JobCardClosed     JobCardStatus = "closed"
)

// JobCard is a maintenance job card from the work-order system.
type JobCard struct {
	WorkOrderID    string        `yaml:"work_order_id" json:"work_order_id"`
	TrainsetID     string        `yaml:"trainset_id" json:"trainset_id"`
	Status         JobCardStatus `yaml:"status" json:"status"`
	Priority       int           `yaml:"priority" json:"priority"`
	System         Subsystem     `yaml:"system" json:"system"`
	Description    string        `yaml:"description" json:"description"`
	EstimatedHours float64       `yaml:"estimated_hours" json:"estimated_hours"`
	DueDate        time.Time     `yaml:"due_date" json:"due_date"`
}

type SensorStatus string

const (
	SensorNormal   SensorStatus = "normal"
	SensorWarning  SensorStatus = "warning"
	SensorCritical SensorStatus = "critical"
)

type SensorReading struct {
	TrainsetID string       `yaml:"trainset_id" json:"trainset_id"`
	SensorType string       `yaml:"sensor_type" json:"sensor_type"`
	Value      float64      `yaml:"value" json:"value"`
	Unit       string       `yaml:"unit" json:"unit"`
	Status     SensorStatus `yaml:"status" json:"status"`
	Location   string       `yaml:"location" json:"location"`
	Timestamp  time.Time    `yaml:"timestamp" json:"timestamp"`
}

// Signals carries the already-fetched DataProvider inputs the agents consume besides the fleet.
// A nil DataQuality means the ingestion agent derives what it can from the fleet itself.
type Signals struct {
	CapturedAt       time.Time           `yaml:"captured_at,omitempty" json:"captured_at,omitempty"`
	PriorityMessages []PriorityMessage   `yaml:"priority_messages,omitempty" json:"priority_messages,omitempty"`
	JobCards         []JobCard           `yaml:"job_cards,omitempty" json:"job_cards,omitempty"`
	SensorReadings   []SensorReading     `yaml:"sensor_readings,omitempty" json:"sensor_readings,omitempty"`
	DataQuality      *DataQualityMetrics `yaml:"data_quality,omitempty" json:"data_quality,omitempty"`
	RecentOverrides  int                 `yaml:"recent_overrides,omitempty" json:"recent_overrides,omitempty"`
}

func (s Signals) Clone() Signals {
	c := s
	c.PriorityMessages = append([]PriorityMessage(nil), s.PriorityMessages...)
	c.JobCards = append([]JobCard(nil), s.JobCards...)
	c.SensorReadings = append([]SensorReading(nil), s.SensorReadings...)
	if s.DataQuality != nil {
		dq := *s.DataQuality
		c.DataQuality = &dq
	}
	return c
}
