package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/rushairer/bulkcopy"
)

func newDescribeCommand(a *app) *cobra.Command {
	var table, schemaDSN string
	cmd := &cobra.Command{
		Use:   "describe --table TABLE",
		Short: "Print the column types used to encode rows for a table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			var resolver bulkcopy.SchemaResolver
			if schemaDSN != "" {
				r, closeFn, err := sqlResolver(ctx, schemaDSN)
				if err != nil {
					return err
				}
				defer closeFn()
				resolver = r
			} else {
				client, err := a.clickhouseClient()
				if err != nil {
					return err
				}
				defer client.Close()
				resolver = client
			}

			columns, err := resolver.ResolveSchema(ctx, table)
			if err != nil {
				return fmt.Errorf("%w: table %s: %w", bulkcopy.ErrSchemaResolution, table, err)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "#\tNAME\tTYPE")
			for i, c := range columns {
				fmt.Fprintf(tw, "%d\t%s\t%s\n", i, c.Name, c.Type.Name())
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVarP(&table, "table", "t", "", "Table to describe")
	cmd.Flags().StringVar(&schemaDSN, "schema-dsn", "", "Resolve over database/sql (mysql://, postgres://, sqlite3://)")
	_ = cmd.MarkFlagRequired("table")
	return cmd
}
