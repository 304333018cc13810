package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newForwardCommand(a *app) *cobra.Command {
	var count int64
	cmd := &cobra.Command{
		Use:   "forward",
		Short: "Send batches held in the Redis spool to ClickHouse",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := a.clickhouseClient()
			if err != nil {
				return err
			}
			defer client.Close()

			spool, redisClient := a.redisSpool()
			defer redisClient.Close()

			forwarded, err := spool.Forward(cmd.Context(), client, count)
			fmt.Fprintf(cmd.OutOrStdout(), "%d batches forwarded from %s\n", forwarded, spool.Stream())
			if err != nil {
				return err
			}
			a.logger.Info().Int("batches", forwarded).Str("stream", spool.Stream()).Msg("spool drained")
			return nil
		},
	}
	cmd.Flags().Int64Var(&count, "count", 100, "Entries read from the stream per round")
	return cmd
}
