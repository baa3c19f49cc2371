package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"clipnote/internal/api"
)

func newEventsCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events <job-id>",
		Short: "Follow progress events for a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid job id %q", args[0])
			}
			client, err := ctx.client()
			if err != nil {
				return err
			}
			return followEvents(cmd, client, id)
		},
	}
	return cmd
}

// followEvents long-polls the daemon and prints progress lines until the
// job's stream reaches a terminal event.
func followEvents(cmd *cobra.Command, client *api.Client, id int64) error {
	out := cmd.OutOrStdout()
	var since uint64
	for {
		resp, err := client.Events(cmd.Context(), id, since, 0, true)
		if err != nil {
			if cerr := cmd.Context().Err(); cerr != nil {
				return cerr
			}
			return err
		}
		for _, evt := range resp.Events {
			fmt.Fprintf(out, "[%s] %5.1f%% %s\n", evt.Stage, evt.Percent, evt.Message)
			if evt.Terminal() {
				if evt.ErrorKind != "" {
					return fmt.Errorf("job %d failed (%s): %s", id, evt.ErrorKind, evt.Error)
				}
				return nil
			}
		}
		if resp.Next > since {
			since = resp.Next
		}
	}
}
