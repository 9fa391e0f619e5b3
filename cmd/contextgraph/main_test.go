package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contextgraph/internal/models"
)

const snapshot = `
tables:
  - name: earnings_codes
    truth_type: configuration
    row_count: 4
    columns:
      - name: code
        sample_values: [REG, OT, HOL, VAC]
  - name: payroll_lines
    truth_type: reality
    row_count: 25
    columns:
      - name: earn_code
        sample_values: [REG, OT]
`

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func writeSnapshot(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "snapshot.yaml")
	require.NoError(t, os.WriteFile(path, []byte(snapshot), 0o600))
	return path, filepath.Join(dir, "store.db")
}

func TestAnalyzeSummary(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "")
	t.Setenv("REDIS_ADDR", "")
	path, store := writeSnapshot(t)

	out, err := run(t, "analyze", "--snapshot", path, "--store", store, "--project", uuid.NewString())
	require.NoError(t, err)
	assert.Contains(t, out, "earnings_codes.code")
	assert.Contains(t, out, "payroll_lines.earn_code")
	assert.Contains(t, out, "100.00")
}

func TestAnalyzeJSON(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "")
	t.Setenv("REDIS_ADDR", "")
	path, store := writeSnapshot(t)

	out, err := run(t, "analyze", "--snapshot", path, "--store", store, "--project", uuid.NewString(), "-o", "json")
	require.NoError(t, err)

	var g models.Graph
	require.NoError(t, json.Unmarshal([]byte(out), &g))
	require.Len(t, g.Gaps, 1)
	require.NotNil(t, g.Gaps[0].UsedTotal)
	assert.Equal(t, 2, *g.Gaps[0].UsedTotal)
	assert.Equal(t, []string{"HOL", "VAC"}, g.Gaps[0].UnusedValues)
}

func TestAnalyzeValidatesFlags(t *testing.T) {
	path, store := writeSnapshot(t)

	_, err := run(t, "analyze", "--snapshot", path, "--store", store, "--project", "nope")
	assert.ErrorContains(t, err, "invalid project ID")

	_, err = run(t, "analyze", "--snapshot", path, "--store", store, "--project", uuid.NewString(), "-o", "xml")
	assert.ErrorContains(t, err, "unsupported output format")

	_, err = run(t, "analyze", "--store", store)
	assert.Error(t, err)
}

func TestTaxonomyCommand(t *testing.T) {
	out, err := run(t, "taxonomy")
	require.NoError(t, err)
	assert.Contains(t, out, "earnings_code")

	out, err = run(t, "taxonomy", "--json")
	require.NoError(t, err)
	var doc struct {
		Version       string                `json:"version"`
		SemanticTypes []models.SemanticType `json:"semantic_types"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	assert.NotEmpty(t, doc.SemanticTypes)
}
