package model

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

type IDType string

const (
	IDTypeOverride IDType = "ovr"
	IDTypeAudit    IDType = "aud"
	IDTypeScenario IDType = "scn"
)

var validIDTypes = map[IDType]bool{
	IDTypeOverride: true,
	IDTypeAudit:    true,
	IDTypeScenario: true,
}

var idRegex = regexp.MustCompile(`^(ovr|aud|scn)_[0-9]{10}_[0-9a-f]{8}$`)

var planIDRegex = regexp.MustCompile(`^PLAN-[0-9]+$`)

// IDGenerator produces identifiers for records created outside the deterministic planning path.
type IDGenerator func(IDType) (string, error)

func GenerateID(idType IDType) (string, error) {
	if !validIDTypes[idType] {
		return "", fmt.Errorf("invalid ID type: %s", idType)
	}
	u, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("failed to generate uuid: %w", err)
	}
	suffix := strings.ReplaceAll(u.String(), "-", "")[:8]
	return fmt.Sprintf("%s_%010d_%s", idType, time.Now().Unix(), suffix), nil
}

func ValidateID(id string) bool {
	return idRegex.MatchString(id)
}

func ParseIDType(id string) (IDType, error) {
	if !ValidateID(id) {
		return "", fmt.Errorf("invalid ID format: %s", id)
	}
	match := idRegex.FindStringSubmatch(id)
	return IDType(match[1]), nil
}

// PlanID derives the plan identifier from the planning instant, so identical runs yield
// identical ids.
func PlanID(now time.Time) string {
	return "PLAN-" + strconv.FormatInt(now.UnixMilli(), 10)
}

func ValidatePlanID(id string) bool {
	return planIDRegex.MatchString(id)
}

// ParsePlanTime recovers the planning instant from a plan id.
func ParsePlanTime(id string) (time.Time, error) {
	if !ValidatePlanID(id) {
		return time.Time{}, fmt.Errorf("invalid plan ID format: %s", id)
	}
	ms, err := strconv.ParseInt(strings.TrimPrefix(id, "PLAN-"), 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse timestamp from plan ID %s: %w", id, err)
	}
	return time.UnixMilli(ms), nil
}
