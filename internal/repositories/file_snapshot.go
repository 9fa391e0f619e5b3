package repositories

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"contextgraph/internal/models"
)

type snapshotFile struct {
	Tables []models.Table `yaml:"tables"`
}

// FileSnapshotProvider serves one project's tables from a YAML or JSON file.
// The file is re-read on every call so edits show up in the next analysis.
type FileSnapshotProvider struct {
	path string
}

func NewFileSnapshotProvider(path string) *FileSnapshotProvider {
	return &FileSnapshotProvider{path: path}
}

func (p *FileSnapshotProvider) GetTables(ctx context.Context, projectID uuid.UUID) ([]models.Table, error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot %s: %w", p.path, err)
	}

	// JSON is valid YAML, so one decoder covers both formats.
	var doc snapshotFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse snapshot %s: %w", p.path, err)
	}

	for i := range doc.Tables {
		t := &doc.Tables[i]
		t.ProjectID = projectID
		t.TruthType = models.ParseTruthType(string(t.TruthType))
		if t.UploadedAt.IsZero() {
			t.UploadedAt = time.Unix(0, 0).UTC()
		}
		for j := range t.Columns {
			c := &t.Columns[j]
			if c.Cardinality == 0 {
				c.Cardinality = distinctCount(c.SampleValues)
			}
		}
	}
	sort.SliceStable(doc.Tables, func(i, j int) bool { return doc.Tables[i].Name < doc.Tables[j].Name })
	return doc.Tables, nil
}

func distinctCount(values []string) int {
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		seen[v] = struct{}{}
	}
	return len(seen)
}

// StaticSnapshotProvider serves fixed tables per project. Useful for tests
// and embedding.
type StaticSnapshotProvider struct {
	Tables map[uuid.UUID][]models.Table
	Err    error
}

func (p *StaticSnapshotProvider) GetTables(ctx context.Context, projectID uuid.UUID) ([]models.Table, error) {
	if p.Err != nil {
		return nil, p.Err
	}
	return p.Tables[projectID], nil
}
