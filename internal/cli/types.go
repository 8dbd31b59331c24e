package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"doctable/internal/doctype"
)

var bsonTypes = []doctype.BsonType{
	doctype.BsonNull,
	doctype.BsonBoolean,
	doctype.BsonInt32,
	doctype.BsonInt64,
	doctype.BsonDouble,
	doctype.BsonDecimal128,
	doctype.BsonString,
	doctype.BsonObjectID,
	doctype.BsonDateTime,
	doctype.BsonBinary,
	doctype.BsonMinKey,
	doctype.BsonMaxKey,
	doctype.BsonDocument,
	doctype.BsonArray,
}

var sqlTypes = []doctype.SQLType{
	doctype.SQLNull,
	doctype.SQLBoolean,
	doctype.SQLInteger,
	doctype.SQLBigInt,
	doctype.SQLDouble,
	doctype.SQLDecimal,
	doctype.SQLTimestamp,
	doctype.SQLVarchar,
	doctype.SQLVarbinary,
	doctype.SQLJavaObject,
	doctype.SQLArray,
}

// PromotionRow is one row of the promotion matrix in JSON output.
type PromotionRow struct {
	Current  string            `json:"current"`
	Observed map[string]string `json:"observed"`
}

// NewTypesCommand creates the types command.
func NewTypesCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "types",
		Short:         "Print the type promotion matrix",
		Long:          "Prints how an established column type combines with each observed document type.",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTypes(rootOpts, cmd)
		},
	}
}

func runTypes(opts *RootOptions, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	if opts.Format == "json" {
		rows := make([]PromotionRow, 0, len(sqlTypes))
		for _, cur := range sqlTypes {
			row := PromotionRow{Current: cur.String(), Observed: make(map[string]string, len(bsonTypes))}
			for _, obs := range bsonTypes {
				row.Observed[obs.String()] = doctype.Promote(cur, obs).String()
			}
			rows = append(rows, row)
		}
		return formatter.Success(rows)
	}

	w := tabwriter.NewWriter(formatter.Writer, 2, 4, 2, ' ', 0)
	fmt.Fprint(w, "current")
	for _, obs := range bsonTypes {
		fmt.Fprintf(w, "\t%s", obs)
	}
	fmt.Fprintln(w)
	for _, cur := range sqlTypes {
		fmt.Fprint(w, cur)
		for _, obs := range bsonTypes {
			fmt.Fprintf(w, "\t%s", doctype.Promote(cur, obs))
		}
		fmt.Fprintln(w)
	}
	return w.Flush()
}
