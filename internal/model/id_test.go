package model

import (
	"testing"
	"time"
)

func TestGenerateID(t *testing.T) {
	types := []IDType{IDTypeOverride, IDTypeAudit, IDTypeScenario}
	for _, idType := range types {
		t.Run(string(idType), func(t *testing.T) {
			id, err := GenerateID(idType)
			if err != nil {
				t.Fatalf("GenerateID(%s) returned error: %v", idType, err)
			}
			if !ValidateID(id) {
				t.Errorf("generated ID %q does not match regex", id)
			}
			got, err := ParseIDType(id)
			if err != nil {
				t.Fatalf("ParseIDType(%q): %v", id, err)
			}
			if got != idType {
				t.Errorf("ParseIDType(%q) = %q, want %q", id, got, idType)
			}
		})
	}
}

func TestGenerateID_InvalidType(t *testing.T) {
	if _, err := GenerateID("invalid"); err == nil {
		t.Error("expected error for invalid ID type")
	}
}

func TestGenerateID_Uniqueness(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id, err := GenerateID(IDTypeOverride)
		if err != nil {
			t.Fatalf("GenerateID returned error: %v", err)
		}
		if seen[id] {
			t.Fatalf("duplicate ID generated: %s", id)
		}
		seen[id] = true
	}
}

func TestValidateID(t *testing.T) {
	tests := []struct {
		name  string
		id    string
		valid bool
	}{
		{"valid override", "ovr_1771722000_a3f2b7c1", true},
		{"valid audit", "aud_1771722060_b7c1d4e9", true},
		{"valid scenario", "scn_1771722000_c3d4e5f6", true},
		{"invalid prefix", "xxx_1771722000_a3f2b7c1", false},
		{"short timestamp", "ovr_177172200_a3f2b7c1", false},
		{"uppercase hex", "ovr_1771722000_A3F2B7C1", false},
		{"short hex", "ovr_1771722000_a3f2b7c", false},
		{"empty", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ValidateID(tt.id); got != tt.valid {
				t.Errorf("ValidateID(%q) = %v, want %v", tt.id, got, tt.valid)
			}
		})
	}
}

func TestPlanID_RoundTripsPlanningInstant(t *testing.T) {
	now := time.Date(2025, 3, 14, 5, 30, 0, 123_000_000, time.UTC)
	id := PlanID(now)
	if id != "PLAN-1741930200123" {
		t.Fatalf("PlanID = %q", id)
	}
	if !ValidatePlanID(id) {
		t.Fatalf("ValidatePlanID(%q) = false", id)
	}
	got, err := ParsePlanTime(id)
	if err != nil {
		t.Fatalf("ParsePlanTime: %v", err)
	}
	if !got.Equal(now) {
		t.Errorf("ParsePlanTime = %v, want %v", got, now)
	}
	if _, err := ParsePlanTime("PLAN-abc"); err == nil {
		t.Error("expected error for malformed plan id")
	}
}
