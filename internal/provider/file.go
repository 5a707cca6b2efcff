package provider

import (
	"fmt"
	"os"

	yamlv3 "gopkg.in/yaml.v3"

	atomicyaml "github.com/Rishikoli/speedline-metro-glow/internal/yaml"
)

// File reads a fleet_snapshot YAML document on every call, so edits are picked up by the next
// planning run.
type File struct {
	path string
}

func NewFile(path string) *File {
	return &File{path: path}
}

func (p *File) Path() string {
	return p.path
}

func (p *File) Snapshot() (Snapshot, error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return Snapshot{}, fmt.Errorf("read fleet snapshot: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a fleet_snapshot document.
func Parse(data []byte) (Snapshot, error) {
	if err := atomicyaml.ValidateSchemaHeaderFromBytes(data, atomicyaml.FileTypeFleetSnapshot); err != nil {
		return Snapshot{}, fmt.Errorf("fleet snapshot header: %w", err)
	}
	var s Snapshot
	if err := yamlv3.Unmarshal(data, &s); err != nil {
		return Snapshot{}, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if s.Signals.CapturedAt.IsZero() {
		s.Signals.CapturedAt = s.GeneratedAt
	}
	if err := Validate(s); err != nil {
		return Snapshot{}, err
	}
	return s, nil
}

// Write stores the snapshot atomically with a current schema header.
func Write(path string, s Snapshot) error {
	return atomicyaml.WriteDocument(path, atomicyaml.FileTypeFleetSnapshot, &s)
}
