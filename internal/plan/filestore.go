package plan

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	yamlv3 "gopkg.in/yaml.v3"

	"github.com/Rishikoli/speedline-metro-glow/internal/lock"
	"github.com/Rishikoli/speedline-metro-glow/internal/logging"
	"github.com/Rishikoli/speedline-metro-glow/internal/model"
	yamlutil "github.com/Rishikoli/speedline-metro-glow/internal/yaml"
)

const (
	indexFileName = "index.yaml"
	lockFileName  = ".plans.lock"
)

type planIndex struct {
	yamlutil.SchemaHeader `yaml:",inline"`
	Current               string   `yaml:"current"`
	PlanIDs               []string `yaml:"plan_ids"` // oldest first
}

type planDocument struct {
	yamlutil.SchemaHeader `yaml:",inline"`
	Plan                  *model.InductionPlan       `yaml:"plan"`
	Overrides             []model.SupervisorOverride `yaml:"overrides"`
}

// FileStore keeps one YAML document per plan under dir plus an index naming the history order.
// Every write goes through the atomic writer, so a crash leaves either the old or the new file.
// Every operation holds a flock on dir/.plans.lock, so several processes (the CLI and a
// watcher) can share one plan directory without losing each other's writes.
type FileStore struct {
	mu     sync.Mutex
	dir    string
	limit  int
	logger *logging.Logger
}

func NewFileStore(dir string, limit int, logger *logging.Logger) (*FileStore, error) {
	if limit <= 0 {
		limit = model.DefaultHistoryLimit
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create plan dir: %w", err)
	}
	return &FileStore{dir: dir, limit: limit, logger: logger.With("plan-store")}, nil
}

func (s *FileStore) Dir() string {
	return s.dir
}

func (s *FileStore) indexPath() string {
	return filepath.Join(s.dir, indexFileName)
}

func (s *FileStore) planPath(id string) string {
	return filepath.Join(s.dir, id+".yaml")
}

// locked runs fn under the store mutex and the directory flock. Reads take it as well since
// loading a corrupt index rewrites it.
func (s *FileStore) locked(fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return lock.Exclusive(filepath.Join(s.dir, lockFileName), fn)
}

// loadIndex returns an empty index when none exists yet. A corrupt index is quarantined and
// replaced by its backup or an empty skeleton.
func (s *FileStore) loadIndex() (*planIndex, error) {
	path := s.indexPath()
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return &planIndex{SchemaHeader: yamlutil.NewHeader(yamlutil.FileTypePlanIndex)}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read plan index: %w", err)
	}

	idx, err := parseIndex(data)
	if err == nil {
		return idx, nil
	}

	s.logger.Warnf("plan index corrupt: %v", err)
	outcome, rerr := yamlutil.RecoverCorruptedFile(s.dir, path, yamlutil.FileTypePlanIndex)
	if rerr != nil {
		return nil, fmt.Errorf("recover plan index: %w", rerr)
	}
	s.logger.Warnf("plan index recovered from %s", outcome)

	data, err = os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read recovered plan index: %w", err)
	}
	return parseIndex(data)
}

func parseIndex(data []byte) (*planIndex, error) {
	if err := yamlutil.ValidateSchemaHeaderFromBytes(data, yamlutil.FileTypePlanIndex); err != nil {
		return nil, err
	}
	var idx planIndex
	if err := yamlv3.Unmarshal(data, &idx); err != nil {
		return nil, fmt.Errorf("parse plan index: %w", err)
	}
	return &idx, nil
}

func (s *FileStore) saveIndex(idx *planIndex) error {
	if n := len(idx.PlanIDs); n > 0 {
		idx.Current = idx.PlanIDs[n-1]
	} else {
		idx.Current = ""
	}
	return yamlutil.WriteDocument(s.indexPath(), yamlutil.FileTypePlanIndex, idx)
}

func (s *FileStore) loadDocument(id string) (*planDocument, error) {
	path := s.planPath(id)
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, &NotFoundError{PlanID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("read plan %s: %w", id, err)
	}
	if err := yamlutil.ValidateSchemaHeaderFromBytes(data, yamlutil.FileTypeInductionPlan); err != nil {
		return nil, fmt.Errorf("plan %s: %w", id, err)
	}

	var doc planDocument
	if err := yamlv3.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse plan %s: %w", id, err)
	}
	if doc.Plan == nil || doc.Plan.ID != id {
		return nil, fmt.Errorf("plan file %s does not contain plan %s", path, id)
	}
	return &doc, nil
}

func (s *FileStore) saveDocument(doc *planDocument) error {
	return yamlutil.WriteDocument(s.planPath(doc.Plan.ID), yamlutil.FileTypeInductionPlan, doc)
}

func (s *FileStore) Save(p *model.InductionPlan) error {
	return s.locked(func() error {
		idx, err := s.loadIndex()
		if err != nil {
			return err
		}
		if containsID(idx.PlanIDs, p.ID) {
			return &DuplicateError{PlanID: p.ID}
		}

		if err := s.saveDocument(&planDocument{Plan: p.Clone()}); err != nil {
			return fmt.Errorf("save plan %s: %w", p.ID, err)
		}

		ids := append(idx.PlanIDs, p.ID)
		var evicted []string
		if len(ids) > s.limit {
			cut := len(ids) - s.limit
			evicted = append(evicted, ids[:cut]...)
			ids = append([]string(nil), ids[cut:]...)
		}
		idx.PlanIDs = ids
		if err := s.saveIndex(idx); err != nil {
			return fmt.Errorf("save plan index: %w", err)
		}

		for _, id := range evicted {
			if err := s.removeDocument(id); err != nil {
				s.logger.Warnf("remove evicted plan %s: %v", id, err)
			}
		}
		return nil
	})
}

func (s *FileStore) removeDocument(id string) error {
	for _, path := range []string{s.planPath(id), s.planPath(id) + ".bak"} {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	return nil
}

func (s *FileStore) Get(id string) (*model.InductionPlan, error) {
	var p *model.InductionPlan
	err := s.locked(func() error {
		doc, err := s.loadIndexed(id)
		if err != nil {
			return err
		}
		p = doc.Plan
		return nil
	})
	return p, err
}

// loadIndexed loads a plan only if the index still lists it.
func (s *FileStore) loadIndexed(id string) (*planDocument, error) {
	idx, err := s.loadIndex()
	if err != nil {
		return nil, err
	}
	if !containsID(idx.PlanIDs, id) {
		return nil, &NotFoundError{PlanID: id}
	}
	return s.loadDocument(id)
}

func (s *FileStore) Current() (*model.InductionPlan, error) {
	var p *model.InductionPlan
	err := s.locked(func() error {
		idx, err := s.loadIndex()
		if err != nil {
			return err
		}
		if len(idx.PlanIDs) == 0 {
			return &NotFoundError{}
		}
		doc, err := s.loadDocument(idx.PlanIDs[len(idx.PlanIDs)-1])
		if err != nil {
			return err
		}
		p = doc.Plan
		return nil
	})
	return p, err
}

func (s *FileStore) History(limit int) ([]*model.InductionPlan, error) {
	var out []*model.InductionPlan
	err := s.locked(func() error {
		idx, err := s.loadIndex()
		if err != nil {
			return err
		}
		n := len(idx.PlanIDs)
		if limit > 0 && limit < n {
			n = limit
		}
		out = make([]*model.InductionPlan, 0, n)
		for i := len(idx.PlanIDs) - 1; i >= 0 && len(out) < n; i-- {
			doc, err := s.loadDocument(idx.PlanIDs[i])
			if err != nil {
				return err
			}
			out = append(out, doc.Plan)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *FileStore) Update(id string, fn func(*model.InductionPlan) error) (*model.InductionPlan, error) {
	var updated *model.InductionPlan
	err := s.locked(func() error {
		doc, err := s.loadIndexed(id)
		if err != nil {
			return err
		}
		if err := fn(doc.Plan); err != nil {
			return err
		}
		if err := s.saveDocument(doc); err != nil {
			return fmt.Errorf("save plan %s: %w", id, err)
		}
		updated = doc.Plan.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *FileStore) RecordOverride(o model.SupervisorOverride) error {
	return s.locked(func() error {
		doc, err := s.loadIndexed(o.PlanID)
		if err != nil {
			return err
		}
		doc.Overrides = append(doc.Overrides, cloneOverride(o))
		if err := s.saveDocument(doc); err != nil {
			return fmt.Errorf("save plan %s: %w", o.PlanID, err)
		}
		return nil
	})
}

func (s *FileStore) Overrides(planID string) ([]model.SupervisorOverride, error) {
	var out []model.SupervisorOverride
	err := s.locked(func() error {
		if planID != "" {
			doc, err := s.loadIndexed(planID)
			if err != nil {
				return err
			}
			out = filterOverrides(doc.Overrides, "")
			return nil
		}

		idx, err := s.loadIndex()
		if err != nil {
			return err
		}
		out = []model.SupervisorOverride{}
		for _, id := range idx.PlanIDs {
			doc, err := s.loadDocument(id)
			if err != nil {
				return err
			}
			out = append(out, doc.Overrides...)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func containsID(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
