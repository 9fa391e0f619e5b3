package inference

import (
	"fmt"
	"sort"

	"contextgraph/internal/apperrors"
	"contextgraph/internal/models"
)

type edge struct {
	to   string
	step models.JoinStep
}

// FindJoinPath returns the shortest chain of joins between two tables using
// relationships that are valid foreign keys or user-confirmed, and not
// rejected. Ties between equally short paths resolve by table name.
func FindJoinPath(rels []models.Relationship, from, to string) (models.JoinPath, error) {
	path := models.JoinPath{From: from, To: to, Steps: []models.JoinStep{}}

	adj := make(map[string][]edge)
	for _, r := range rels {
		if r.Status == models.StatusRejected {
			continue
		}
		if !r.IsValidFK && r.Status != models.StatusConfirmed {
			continue
		}
		forward := models.JoinStep{
			FromTable: r.SourceTable, FromColumn: r.SourceColumn,
			ToTable: r.TargetTable, ToColumn: r.TargetColumn,
			SemanticType: r.SemanticType,
		}
		backward := models.JoinStep{
			FromTable: r.TargetTable, FromColumn: r.TargetColumn,
			ToTable: r.SourceTable, ToColumn: r.SourceColumn,
			SemanticType: r.SemanticType,
		}
		adj[r.SourceTable] = append(adj[r.SourceTable], edge{to: r.TargetTable, step: forward})
		adj[r.TargetTable] = append(adj[r.TargetTable], edge{to: r.SourceTable, step: backward})
	}
	for table := range adj {
		edges := adj[table]
		sort.Slice(edges, func(i, j int) bool {
			if edges[i].to != edges[j].to {
				return edges[i].to < edges[j].to
			}
			if edges[i].step.FromColumn != edges[j].step.FromColumn {
				return edges[i].step.FromColumn < edges[j].step.FromColumn
			}
			return edges[i].step.ToColumn < edges[j].step.ToColumn
		})
	}

	if from == to {
		return path, nil
	}

	prev := map[string]edge{}
	visited := map[string]bool{from: true}
	queue := []string{from}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, e := range adj[cur] {
			if visited[e.to] {
				continue
			}
			visited[e.to] = true
			prev[e.to] = e
			if e.to == to {
				for node := to; node != from; node = prev[node].step.FromTable {
					path.Steps = append(path.Steps, prev[node].step)
				}
				for i, j := 0, len(path.Steps)-1; i < j; i, j = i+1, j-1 {
					path.Steps[i], path.Steps[j] = path.Steps[j], path.Steps[i]
				}
				return path, nil
			}
			queue = append(queue, e.to)
		}
	}

	return path, fmt.Errorf("no join path from %s to %s: %w", from, to, apperrors.ErrNotFound)
}
