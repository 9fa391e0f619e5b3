package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"contextgraph/internal/config"
	"contextgraph/internal/database"
	"contextgraph/internal/models"
	"contextgraph/internal/repositories"
)

type ingestOptions struct {
	project       string
	schema        string
	sourceDSN     string
	tables        []string
	configTables  []string
	realityTables []string
	sampleLimit   int
}

func newIngestCmd(flags *globalFlags) *cobra.Command {
	opts := &ingestOptions{}

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Profile a Postgres schema into the project's table catalog",
		Long: `Profile every table of a Postgres schema (row count, distinct counts and a
bounded sample of distinct values per column) and store the result in the
catalog the API analyzes. Tables are tagged "other" unless listed in
--config-tables or --reality-tables.`,
		Example: `  contextgraph ingest --project 5f0c... --schema payroll \
    --config-tables earnings_codes,companies --reality-tables payroll_lines`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(cmd, flags, opts)
		},
	}

	cmd.Flags().StringVar(&opts.project, "project", "", "Project ID (UUID)")
	cmd.Flags().StringVar(&opts.schema, "schema", "public", "Source schema")
	cmd.Flags().StringVar(&opts.sourceDSN, "source-dsn", "", "Source database DSN (defaults to the catalog database)")
	cmd.Flags().StringSliceVar(&opts.tables, "tables", nil, "Only ingest these tables")
	cmd.Flags().StringSliceVar(&opts.configTables, "config-tables", nil, "Tables holding configured values")
	cmd.Flags().StringSliceVar(&opts.realityTables, "reality-tables", nil, "Tables holding transactional data")
	cmd.Flags().IntVar(&opts.sampleLimit, "sample-limit", repositories.DefaultSampleLimit, "Distinct values sampled per column")
	_ = cmd.MarkFlagRequired("project")
	return cmd
}

func runIngest(cmd *cobra.Command, flags *globalFlags, opts *ingestOptions) error {
	ctx := cmd.Context()
	logger := flags.logger()

	projectID, err := uuid.Parse(opts.project)
	if err != nil {
		return fmt.Errorf("invalid project ID %q: %w", opts.project, err)
	}

	cfg := config.Read()
	cfg.Database.Driver = "postgres"
	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := database.EnsureDatabaseExists(ctx, cfg.Database); err != nil {
		return err
	}
	catalog, err := database.Connect(ctx, database.DSN(cfg.Database))
	if err != nil {
		return err
	}
	defer catalog.Close()
	if err := database.RunMigrations(ctx, catalog); err != nil {
		return err
	}

	source := catalog
	if opts.sourceDSN != "" {
		source, err = database.Connect(ctx, opts.sourceDSN)
		if err != nil {
			return err
		}
		defer source.Close()
	}

	schemas := repositories.NewSchemaRepository(source, opts.sampleLimit)
	snapshots := repositories.NewSnapshotRepository(catalog)

	names := opts.tables
	if len(names) == 0 {
		names, err = schemas.GetTables(ctx, opts.schema)
		if err != nil {
			return fmt.Errorf("failed to list tables in %s: %w", opts.schema, err)
		}
	}

	truth := make(map[string]models.TruthType)
	for _, n := range opts.configTables {
		truth[n] = models.TruthConfiguration
	}
	for _, n := range opts.realityTables {
		truth[n] = models.TruthReality
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TABLE\tTRUTH TYPE\tROWS\tCOLUMNS")
	for _, name := range names {
		tt, ok := truth[name]
		if !ok {
			tt = models.TruthOther
		}
		table, err := schemas.ProfileTable(ctx, opts.schema, name, tt)
		if err != nil {
			return err
		}
		if err := snapshots.ReplaceTable(ctx, projectID, table); err != nil {
			return err
		}
		logger.Info("table ingested", "project_id", projectID, "table", name, "rows", table.RowCount)
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\n", name, tt, table.RowCount, len(table.Columns))
	}
	return w.Flush()
}
