// Package model defines the fleet snapshot, planning, and audit data structures shared by the
// scoring agents, the orchestrator, the simulation engine and the plan store.
package model

import "time"

type HealthStatus string

const (
	HealthOK       HealthStatus = "ok"
	HealthWarn     HealthStatus = "warn"
	HealthCritical HealthStatus = "critical"
)

var validHealthStatuses = map[HealthStatus]bool{
	HealthOK:       true,
	HealthWarn:     true,
	HealthCritical: true,
}

func IsValidHealthStatus(s HealthStatus) bool {
	return validHealthStatuses[s]
}

// Subsystem is the closed set of trainset subsystems tracked by health data and work orders.
type Subsystem string

const (
	SubsystemBrakes       Subsystem = "brakes"
	SubsystemHVAC         Subsystem = "hvac"
	SubsystemDoors        Subsystem = "doors"
	SubsystemTraction     Subsystem = "traction"
	SubsystemSignalling   Subsystem = "signalling"
	SubsystemBogies       Subsystem = "bogies"
	SubsystemRollingStock Subsystem = "rolling_stock"
	SubsystemElectrical   Subsystem = "electrical"
)

var validSubsystems = map[Subsystem]bool{
	SubsystemBrakes:       true,
	SubsystemHVAC:         true,
	SubsystemDoors:        true,
	SubsystemTraction:     true,
	SubsystemSignalling:   true,
	SubsystemBogies:       true,
	SubsystemRollingStock: true,
	SubsystemElectrical:   true,
}

func IsValidSubsystem(s Subsystem) bool {
	return validSubsystems[s]
}

type WorkOrderType string

const (
	WorkOrderCritical   WorkOrderType = "critical"
	WorkOrderPreventive WorkOrderType = "preventive"
	WorkOrderCorrective WorkOrderType = "corrective"
)

type WorkOrder struct {
	ID             string        `yaml:"id" json:"id"`
	Type           WorkOrderType `yaml:"type" json:"type"`
	System         Subsystem     `yaml:"system" json:"system"`
	Priority       int           `yaml:"priority" json:"priority"` // 1-10
	EstimatedHours float64       `yaml:"estimated_hours" json:"estimated_hours"`
	DueDate        time.Time     `yaml:"due_date" json:"due_date"`
	Description    string        `yaml:"description" json:"description"`
}

type BrandingContract struct {
	ID             string    `yaml:"id" json:"id"`
	Advertiser     string    `yaml:"advertiser" json:"advertiser"`
	CommittedHours float64   `yaml:"committed_hours" json:"committed_hours"`
	RemainingHours float64   `yaml:"remaining_hours" json:"remaining_hours"`
	PenaltyRate    float64   `yaml:"penalty_rate" json:"penalty_rate"`
	ExpiryDate     time.Time `yaml:"expiry_date" json:"expiry_date"`
}

type SubsystemHealth struct {
	Status      HealthStatus `yaml:"status" json:"status"`
	LastUpdated time.Time    `yaml:"last_updated" json:"last_updated"`
}

// ComponentWear holds wear percentages (0-100) of the four tracked components.
type ComponentWear struct {
	BrakePads      float64   `yaml:"brake_pads" json:"brake_pads"`
	HVAC           float64   `yaml:"hvac" json:"hvac"`
	Bogies         float64   `yaml:"bogies" json:"bogies"`
	Doors          float64   `yaml:"doors" json:"doors"`
	LastInspection time.Time `yaml:"last_inspection" json:"last_inspection"`
}

func (w ComponentWear) Average() float64 {
	return (w.BrakePads + w.HVAC + w.Bogies + w.Doors) / 4
}

func (w ComponentWear) IsZero() bool {
	return w.BrakePads == 0 && w.HVAC == 0 && w.Bogies == 0 && w.Doors == 0 && w.LastInspection.IsZero()
}

type TrainsetSnapshot struct {
	ID                  string                        `yaml:"id" json:"id"`
	KM                  int                           `yaml:"km" json:"km"`
	FitnessValidUntil   time.Time                     `yaml:"fitness_valid_until" json:"fitness_valid_until"`
	OpenWorkOrders      []WorkOrder                   `yaml:"open_work_orders,omitempty" json:"open_work_orders,omitempty"`
	BrandingContracts   []BrandingContract            `yaml:"branding_contracts,omitempty" json:"branding_contracts,omitempty"`
	BrandingHoursNext7d float64                       `yaml:"branding_hours_next_7d,omitempty" json:"branding_hours_next_7d,omitempty"`
	CleaningRequired    bool                          `yaml:"cleaning_required" json:"cleaning_required"`
	LastCleaningDate    time.Time                     `yaml:"last_cleaning_date" json:"last_cleaning_date"`
	CurrentLocation     string                        `yaml:"current_location,omitempty" json:"current_location,omitempty"`
	SystemHealth        map[Subsystem]SubsystemHealth `yaml:"system_health,omitempty" json:"system_health,omitempty"`
	ComponentWear       ComponentWear                 `yaml:"component_wear" json:"component_wear"`
}

// RemainingBrandingHours sums the remaining hours of every branding contract.
func (t TrainsetSnapshot) RemainingBrandingHours() float64 {
	var sum float64
	for _, c := range t.BrandingContracts {
		sum += c.RemainingHours
	}
	return sum
}

// BrandingHoursDue returns the branding exposure owed over the next week. Snapshots that do not
// carry the weekly figure fall back to the remaining contract hours.
func (t TrainsetSnapshot) BrandingHoursDue() float64 {
	if t.BrandingHoursNext7d > 0 {
		return t.BrandingHoursNext7d
	}
	return t.RemainingBrandingHours()
}

func (t TrainsetSnapshot) CriticalWorkOrders() int {
	n := 0
	for _, wo := range t.OpenWorkOrders {
		if wo.Type == WorkOrderCritical {
			n++
		}
	}
	return n
}

// CriticalSubsystems returns the subsystems in critical health, sorted for stable output.
func (t TrainsetSnapshot) CriticalSubsystems() []Subsystem {
	var out []Subsystem
	for sys, h := range t.SystemHealth {
		if h.Status == HealthCritical {
			out = append(out, sys)
		}
	}
	sortSubsystems(out)
	return out
}

// NeedsMaintenance reports whether the trainset has a critical work order or a critical subsystem.
func (t TrainsetSnapshot) NeedsMaintenance() bool {
	return t.CriticalWorkOrders() > 0 || len(t.CriticalSubsystems()) > 0
}

// Clone returns a deep copy so scenario modifications never alias the source snapshot.
func (t TrainsetSnapshot) Clone() TrainsetSnapshot {
	c := t
	if t.OpenWorkOrders != nil {
		c.OpenWorkOrders = append([]WorkOrder(nil), t.OpenWorkOrders...)
	}
	if t.BrandingContracts != nil {
		c.BrandingContracts = append([]BrandingContract(nil), t.BrandingContracts...)
	}
	if t.SystemHealth != nil {
		c.SystemHealth = make(map[Subsystem]SubsystemHealth, len(t.SystemHealth))
		for k, v := range t.SystemHealth {
			c.SystemHealth[k] = v
		}
	}
	return c
}

func CloneFleet(fleet []TrainsetSnapshot) []TrainsetSnapshot {
	if fleet == nil {
		return nil
	}
	out := make([]TrainsetSnapshot, len(fleet))
	for i, ts := range fleet {
		out[i] = ts.Clone()
	}
	return out
}

type BayType string

const (
	BayService     BayType = "service"
	BayMaintenance BayType = "maintenance"
	BayCleaning    BayType = "cleaning"
	BayStorage     BayType = "storage"
)

type BayGeometry struct {
	TrackNumber      int `yaml:"track_number" json:"track_number"`
	Position         int `yaml:"position" json:"position"`
	AccessDifficulty int `yaml:"access_difficulty" json:"access_difficulty"` // 1-10
}

type DepotBay struct {
	ID                 string      `yaml:"id" json:"id"`
	Type               BayType     `yaml:"type" json:"type"`
	Capacity           int         `yaml:"capacity" json:"capacity"`
	CurrentOccupancy   int         `yaml:"current_occupancy" json:"current_occupancy"`
	CleaningCapable    bool        `yaml:"cleaning_capable" json:"cleaning_capable"`
	MaintenanceCapable bool        `yaml:"maintenance_capable" json:"maintenance_capable"`
	Geometry           BayGeometry `yaml:"geometry" json:"geometry"`
}

func FindBay(bays []DepotBay, id string) (DepotBay, bool) {
	for _, b := range bays {
		if b.ID == id {
			return b, true
		}
	}
	return DepotBay{}, false
}

// GlobalConstraints are read-only per planning run. It is a value type so that copies made by
// the simulation engine never alias the caller's constraints.
type GlobalConstraints struct {
	MinStandby              int     `yaml:"min_standby" json:"min_standby"`
	MaxService              int     `yaml:"max_service" json:"max_service"`
	CleaningBayCapacity     int     `yaml:"cleaning_bay_capacity" json:"cleaning_bay_capacity"`
	CleaningCrewCapacity    int     `yaml:"cleaning_crew_capacity" json:"cleaning_crew_capacity"`
	MaxShuntingMoves        int     `yaml:"max_shunting_moves" json:"max_shunting_moves"`
	PunctualityTarget       float64 `yaml:"punctuality_target" json:"punctuality_target"`
	MileageBalanceThreshold float64 `yaml:"mileage_balance_threshold" json:"mileage_balance_threshold"`
}

func DefaultConstraints() GlobalConstraints {
	return GlobalConstraints{
		MinStandby:              1,
		MaxService:              2,
		CleaningBayCapacity:     1,
		CleaningCrewCapacity:    2,
		MaxShuntingMoves:        6,
		PunctualityTarget:       0.995,
		MileageBalanceThreshold: 20000,
	}
}

// ConstraintPatch is a partial GlobalConstraints; nil fields are left untouched by Apply.
type ConstraintPatch struct {
	MinStandby              *int     `yaml:"min_standby,omitempty" json:"min_standby,omitempty"`
	MaxService              *int     `yaml:"max_service,omitempty" json:"max_service,omitempty"`
	CleaningBayCapacity     *int     `yaml:"cleaning_bay_capacity,omitempty" json:"cleaning_bay_capacity,omitempty"`
	CleaningCrewCapacity    *int     `yaml:"cleaning_crew_capacity,omitempty" json:"cleaning_crew_capacity,omitempty"`
	MaxShuntingMoves        *int     `yaml:"max_shunting_moves,omitempty" json:"max_shunting_moves,omitempty"`
	PunctualityTarget       *float64 `yaml:"punctuality_target,omitempty" json:"punctuality_target,omitempty"`
	MileageBalanceThreshold *float64 `yaml:"mileage_balance_threshold,omitempty" json:"mileage_balance_threshold,omitempty"`
}

func (p ConstraintPatch) Apply(c GlobalConstraints) GlobalConstraints {
	if p.MinStandby != nil {
		c.MinStandby = *p.MinStandby
	}
	if p.MaxService != nil {
		c.MaxService = *p.MaxService
	}
	if p.CleaningBayCapacity != nil {
		c.CleaningBayCapacity = *p.CleaningBayCapacity
	}
	if p.CleaningCrewCapacity != nil {
		c.CleaningCrewCapacity = *p.CleaningCrewCapacity
	}
	if p.MaxShuntingMoves != nil {
		c.MaxShuntingMoves = *p.MaxShuntingMoves
	}
	if p.PunctualityTarget != nil {
		c.PunctualityTarget = *p.PunctualityTarget
	}
	if p.MileageBalanceThreshold != nil {
		c.MileageBalanceThreshold = *p.MileageBalanceThreshold
	}
	return c
}

func IntPtr(v int) *int { return &v }

func FloatPtr(v float64) *float64 { return &v }
