package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"contextgraph/internal/config"
	"contextgraph/internal/models"
	"contextgraph/internal/server"
)

type analyzeOptions struct {
	snapshot string
	project  string
	store    string
	taxonomy string
	output   string
}

func newAnalyzeCmd(flags *globalFlags) *cobra.Command {
	opts := &analyzeOptions{}

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Analyze a snapshot file and print the context graph",
		Long: `Analyze a YAML or JSON snapshot file offline. Overrides (confirmations,
deletions, manual relationships, hub pins) are read from a local SQLite store
so decisions made earlier are applied.`,
		Example: `  contextgraph analyze --snapshot tables.yaml --project 5f0c...
  contextgraph analyze --snapshot tables.json --project 5f0c... --output json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyze(cmd, flags, opts)
		},
	}

	cmd.Flags().StringVar(&opts.snapshot, "snapshot", "", "Snapshot file (YAML or JSON)")
	cmd.Flags().StringVar(&opts.project, "project", "", "Project ID (UUID)")
	cmd.Flags().StringVar(&opts.store, "store", "", "SQLite override store path (defaults to SQLITE_PATH)")
	cmd.Flags().StringVar(&opts.taxonomy, "taxonomy", "", "Custom taxonomy file merged into the embedded one")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "summary", "Output format (summary, json)")
	_ = cmd.MarkFlagRequired("snapshot")
	_ = cmd.MarkFlagRequired("project")
	return cmd
}

func runAnalyze(cmd *cobra.Command, flags *globalFlags, opts *analyzeOptions) error {
	projectID, err := uuid.Parse(opts.project)
	if err != nil {
		return fmt.Errorf("invalid project ID %q: %w", opts.project, err)
	}
	if opts.output != "summary" && opts.output != "json" {
		return fmt.Errorf("unsupported output format %q", opts.output)
	}

	cfg := config.Read()
	cfg.Database.Driver = "sqlite"
	cfg.SnapshotPath = opts.snapshot
	if opts.store != "" {
		cfg.Database.SQLitePath = opts.store
	}
	if opts.taxonomy != "" {
		cfg.TaxonomyPath = opts.taxonomy
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	svc, cleanup, err := server.BuildService(cmd.Context(), cfg, flags.logger())
	if err != nil {
		return err
	}
	defer cleanup()

	graph, err := svc.Analyze(cmd.Context(), projectID)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if opts.output == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(graph)
	}
	return printSummary(out, graph)
}

func printSummary(out io.Writer, g *models.Graph) error {
	if g.Summary.Message != "" {
		_, err := fmt.Fprintln(out, g.Summary.Message)
		return err
	}

	fmt.Fprintf(out, "Project %s: %d tables, %d hubs, %d relationships (taxonomy %s)\n\n",
		g.ProjectID, g.Summary.TableCount, g.Summary.HubCount, g.Summary.SpokeCount, g.Summary.TaxonomyVersion)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SEMANTIC TYPE\tHUB\tCARDINALITY\tMETHOD")
	for _, h := range g.Hubs {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", h.SemanticType, h.Ref(), h.Cardinality, h.Method)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "SOURCE\tTARGET\tCOVERAGE\tVALID FK\tCONFIDENCE\tSTATUS")
	for _, r := range g.Relationships {
		coverage := strconv.FormatFloat(r.CoveragePct, 'f', 2, 64)
		if r.Estimated {
			coverage += "~"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%.4f\t%s\n", r.Source(), r.Target(), coverage, r.IsValidFK, r.Confidence, r.Status)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "SEMANTIC TYPE\tCONFIGURED\tUSED\tUNUSED\tUNCONFIGURED")
	for _, gap := range g.Gaps {
		used, unused := "-", "-"
		if !gap.AwaitingReality {
			used, unused = strconv.Itoa(*gap.UsedTotal), strconv.Itoa(*gap.UnusedCount)
		}
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%d\n", gap.SemanticType, gap.ConfiguredTotal, used, unused, gap.UnconfiguredCount)
	}
	return w.Flush()
}
