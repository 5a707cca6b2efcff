// Package yaml provides crash-safe YAML file I/O, schema headers and corrupt-file recovery.
package yaml

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	yamlv3 "gopkg.in/yaml.v3"
)

// Document is a YAML document carrying a schema header. Structs that embed SchemaHeader
// satisfy it through a pointer.
type Document interface {
	Stamp(fileType string)
}

// Stamp sets the header to the current schema version for fileType.
func (h *SchemaHeader) Stamp(fileType string) {
	*h = NewHeader(fileType)
}

// WriteDocument stamps doc with a current header and replaces path with it. The encoded bytes
// must pass ValidateSchemaHeaderFromBytes for fileType before anything on disk changes, so a
// document written here can always be read back by its loader.
func WriteDocument(path, fileType string, doc Document) error {
	doc.Stamp(fileType)
	content, err := yamlv3.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode %s: %w", fileType, err)
	}
	return WriteRaw(path, content, fileType)
}

// WriteFile encodes v and replaces path with it. For headerless files such as config.yaml.
func WriteFile(path string, v any) error {
	content, err := yamlv3.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	return WriteRaw(path, content, "")
}

// WriteRaw replaces path with already-encoded content. An empty fileType only requires
// well-formed YAML.
func WriteRaw(path string, content []byte, fileType string) error {
	if fileType == "" {
		if err := checkWellFormed(content); err != nil {
			return fmt.Errorf("refusing to write %s: %w", path, err)
		}
	} else if err := ValidateSchemaHeaderFromBytes(content, fileType); err != nil {
		return fmt.Errorf("refusing to write %s: %w", path, err)
	}
	return replaceFile(path, content)
}

// replaceFile writes content next to path, keeps the previous version as path.bak and renames
// the new file into place. Readers see either the old or the new content, never a partial file.
func replaceFile(path string, content []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create staging file: %w", err)
	}
	staged := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(staged)
		}
	}()

	if _, err := tmp.Write(content); err != nil {
		return fmt.Errorf("write staging file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync staging file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close staging file: %w", err)
	}

	if err := keepBackup(path); err != nil {
		return fmt.Errorf("back up %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(staged, path); err != nil {
		return fmt.Errorf("rename into place: %w", err)
	}
	committed = true
	syncDir(dir)
	return nil
}

// keepBackup points path.bak at the current contents of path. A hard link shares the old inode,
// which the following rename detaches from path; filesystems without links get a copy.
func keepBackup(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	bak := path + ".bak"
	if err := os.Remove(bak); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	if err := os.Link(path, bak); err == nil {
		return nil
	}
	old, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return os.WriteFile(bak, old, 0644)
}

// syncDir flushes the directory entry of a rename. Best effort: not every platform can fsync a
// directory.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}

func checkWellFormed(content []byte) error {
	var v any
	return yamlv3.Unmarshal(content, &v)
}
