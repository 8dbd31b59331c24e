package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"doctable/internal/catalog"
	"doctable/internal/infer"
	"doctable/internal/sample"
)

// GenerateSummary is the JSON payload of a generation run.
type GenerateSummary struct {
	Schema  string         `json:"schema"`
	Version int            `json:"version"`
	Outcome string         `json:"outcome"`
	Tables  []TableSummary `json:"tables"`
}

// TableSummary is one generated table in the summary.
type TableSummary struct {
	Name    string `json:"name"`
	Columns int    `json:"columns"`
	Virtual bool   `json:"virtual,omitempty"`
}

// NewGenerateCommand creates the generate command.
func NewGenerateCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		schemaName string
		method     string
		limit      int64
	)

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Sample collections and generate a schema version",
		Long: `Samples every collection of the configured database, infers relational
tables from the sampled documents and persists them as the next schema
version. When the store refuses the write the schema is reported as
cached-only.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerate(rootOpts, cmd, schemaName, method, limit)
		},
	}

	cmd.Flags().StringVar(&schemaName, "schema", "", "schema name (default from config)")
	cmd.Flags().StringVar(&method, "scan-method", "", "sampling method: idForward|idReverse|random|all")
	cmd.Flags().Int64Var(&limit, "sample-size", 0, "documents sampled per collection")

	return cmd
}

func runGenerate(opts *RootOptions, cmd *cobra.Command, schemaName, method string, limit int64) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	cfg, err := LoadConfig(opts.ConfigPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "load config", err)
	}
	if schemaName == "" {
		schemaName = cfg.Schema
	}
	if method == "" {
		method = cfg.ScanMethod
	}
	if limit <= 0 {
		limit = cfg.SampleSize
	}
	scanMethod, err := sample.ParseScanMethod(method)
	if err != nil {
		return WrapExitError(ExitCommandError, "scan method", err)
	}

	ctx := cmd.Context()
	client, err := connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer client.Disconnect(ctx)
	db := client.Database(cfg.Database)

	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close(ctx)

	svc, err := catalog.New(catalog.Config{
		Store:    st,
		Database: cfg.Database,
		Collections: func(ctx context.Context) ([]string, error) {
			return userCollections(ctx, db)
		},
		Sample: func(ctx context.Context, coll string) (infer.DocumentSource, error) {
			formatter.VerboseLog("sampling %s (%s, limit %d)", coll, scanMethod, limit)
			return sample.Open(ctx, db.Collection(coll), scanMethod, limit)
		},
		Logger: slog.New(slog.NewTextHandler(os.Stderr, nil)),
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "catalog", err)
	}

	res, err := svc.Generate(ctx, schemaName)
	if err != nil {
		return WrapExitError(ExitFailure, "generate", err)
	}

	summary := GenerateSummary{
		Schema:  res.Schema.Name,
		Version: res.Schema.Version,
		Outcome: string(res.Outcome),
	}
	for _, ref := range res.Schema.Tables {
		t := res.Tables[ref.SQLName]
		summary.Tables = append(summary.Tables, TableSummary{
			Name:    t.SQLName,
			Columns: t.Len(),
			Virtual: t.Virtual(),
		})
	}

	if opts.Format == "json" {
		return formatter.Success(summary)
	}

	fmt.Fprintf(formatter.Writer, "Schema %s version %d (%s)\n", summary.Schema, summary.Version, summary.Outcome)
	for _, t := range summary.Tables {
		kind := "table"
		if t.Virtual {
			kind = "virtual table"
		}
		fmt.Fprintf(formatter.Writer, "  %-40s %s, %d columns\n", t.Name, kind, t.Columns)
	}
	return nil
}

func userCollections(ctx context.Context, db *mongo.Database) ([]string, error) {
	names, err := db.ListCollectionNames(ctx, bson.D{})
	if err != nil {
		return nil, err
	}
	out := names[:0]
	for _, name := range names {
		if !systemCollection(name) {
			out = append(out, name)
		}
	}
	return out, nil
}
