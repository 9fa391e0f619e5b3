package taxonomy

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"contextgraph/internal/models"
)

type document struct {
	Version  string                `yaml:"version"`
	Includes []string              `yaml:"includes"`
	Types    []models.SemanticType `yaml:"types"`
}

// Loader reads the embedded taxonomy and optionally merges a custom file.
type Loader struct {
	embedded fs.FS
}

func NewLoader() *Loader {
	return &Loader{embedded: taxonomyFS}
}

// Load parses the embedded taxonomy only.
func (l *Loader) Load() (*Taxonomy, error) {
	data, err := fs.ReadFile(l.embedded, embeddedFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read embedded taxonomy: %w", err)
	}

	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse embedded taxonomy: %w", err)
	}

	t := newTaxonomy(doc.Version)
	for _, st := range doc.Types {
		if err := t.add(st, "embedded"); err != nil {
			return nil, err
		}
	}
	t.sort()
	return t, nil
}

// LoadWithCustom loads the embedded taxonomy and adds the types found in
// customPath and the files it includes. Custom entries are additive: they
// cannot redefine an embedded type.
func (l *Loader) LoadWithCustom(customPath string) (*Taxonomy, error) {
	t, err := l.Load()
	if err != nil {
		return nil, err
	}
	if customPath == "" {
		return t, nil
	}

	if err := l.mergeFile(t, customPath, map[string]bool{}); err != nil {
		return nil, err
	}
	t.Custom = true
	t.Version += "+custom"
	t.sort()
	return t, nil
}

func (l *Loader) mergeFile(t *Taxonomy, path string, seen map[string]bool) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", path, err)
	}
	if seen[abs] {
		return nil
	}
	seen[abs] = true

	data, err := os.ReadFile(abs)
	if err != nil {
		return fmt.Errorf("failed to read custom taxonomy file %s: %w", path, err)
	}

	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to parse custom taxonomy file %s: %w", path, err)
	}

	for _, st := range doc.Types {
		if err := t.add(st, "custom"); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
	}

	dir := filepath.Dir(abs)
	for _, inc := range doc.Includes {
		if err := l.mergeFile(t, filepath.Join(dir, inc), seen); err != nil {
			return err
		}
	}
	return nil
}
