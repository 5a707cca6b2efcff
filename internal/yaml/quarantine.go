package yaml

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	yamlv3 "gopkg.in/yaml.v3"
)

// Quarantine moves a corrupt file into <baseDir>/quarantine and returns its new path.
func Quarantine(baseDir, filePath string) (string, error) {
	quarantineDir := filepath.Join(baseDir, "quarantine")
	if err := os.MkdirAll(quarantineDir, 0755); err != nil {
		return "", fmt.Errorf("create quarantine dir: %w", err)
	}

	baseName := filepath.Base(filePath)
	timestamp := time.Now().Format("20060102T150405")
	quarantinePath := filepath.Join(quarantineDir, fmt.Sprintf("%s.%s.corrupt", baseName, timestamp))

	if err := os.Rename(filePath, quarantinePath); err != nil {
		return "", fmt.Errorf("move to quarantine: %w", err)
	}
	return quarantinePath, nil
}

func RestoreFromBackup(filePath string) error {
	bakPath := filePath + ".bak"
	if _, err := os.Stat(bakPath); os.IsNotExist(err) {
		return fmt.Errorf("no backup file: %s", bakPath)
	}

	content, err := os.ReadFile(bakPath)
	if err != nil {
		return fmt.Errorf("read backup: %w", err)
	}
	if err := checkWellFormed(content); err != nil {
		return fmt.Errorf("backup YAML is also corrupted: %w", err)
	}

	if err := os.WriteFile(filePath, content, 0644); err != nil {
		return fmt.Errorf("restore from backup: %w", err)
	}
	return nil
}

func GenerateSkeleton(filePath string, fileType string) error {
	content, err := yamlv3.Marshal(skeletonForType(fileType))
	if err != nil {
		return fmt.Errorf("marshal skeleton: %w", err)
	}
	if err := os.WriteFile(filePath, content, 0644); err != nil {
		return fmt.Errorf("write skeleton: %w", err)
	}
	return nil
}

// RecoveryOutcome reports which step of RecoverCorruptedFile produced the current file.
type RecoveryOutcome string

const (
	RecoveredFromBackup RecoveryOutcome = "backup"
	RecoveredSkeleton   RecoveryOutcome = "skeleton"
)

// RecoverCorruptedFile quarantines filePath, then restores its .bak or, failing that, writes an
// empty skeleton of fileType.
func RecoverCorruptedFile(baseDir, filePath, fileType string) (RecoveryOutcome, error) {
	if _, err := Quarantine(baseDir, filePath); err != nil {
		return "", fmt.Errorf("quarantine failed: %w", err)
	}
	if err := RestoreFromBackup(filePath); err == nil {
		return RecoveredFromBackup, nil
	}
	if err := GenerateSkeleton(filePath, fileType); err != nil {
		return "", fmt.Errorf("skeleton generation failed: %w", err)
	}
	return RecoveredSkeleton, nil
}

func skeletonForType(fileType string) any {
	switch fileType {
	case FileTypePlanIndex:
		return map[string]any{
			"schema_version": CurrentSchemaVersion,
			"file_type":      FileTypePlanIndex,
			"current":        "",
			"plan_ids":       []any{},
		}
	case FileTypeScenarioCatalog:
		return map[string]any{
			"schema_version": CurrentSchemaVersion,
			"file_type":      FileTypeScenarioCatalog,
			"scenarios":      []any{},
		}
	case FileTypeFleetSnapshot:
		return map[string]any{
			"schema_version": CurrentSchemaVersion,
			"file_type":      FileTypeFleetSnapshot,
			"fleet":          []any{},
			"depot_bays":     []any{},
		}
	default:
		return map[string]any{
			"schema_version": CurrentSchemaVersion,
			"file_type":      fileType,
		}
	}
}
