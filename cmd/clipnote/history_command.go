package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var showDocument bool

	cmd := &cobra.Command{
		Use:   "history [job-id]",
		Short: "List generated documents",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			records, err := client.History(cmd.Context())
			if err != nil {
				return err
			}

			if len(args) == 1 {
				jobID, err := strconv.ParseInt(args[0], 10, 64)
				if err != nil {
					return fmt.Errorf("invalid job id %q", args[0])
				}
				for _, record := range records {
					if record.JobID == jobID {
						if showDocument {
							fmt.Fprintln(cmd.OutOrStdout(), record.Document)
						} else {
							fmt.Fprintf(cmd.OutOrStdout(), "%s (%s)\n%s\n", record.Title, record.Style, record.Source)
						}
						return nil
					}
				}
				return fmt.Errorf("no history record for job %d", jobID)
			}

			if len(records) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No documents generated yet")
				return nil
			}
			rows := make([][]string, 0, len(records))
			for _, record := range records {
				rows = append(rows, []string{
					strconv.FormatInt(record.JobID, 10),
					truncate(record.Title, 44),
					record.Style,
					record.UpdatedAt,
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Job", "Title", "Style", "Updated"},
				rows,
				1,
			))
			return nil
		},
	}

	cmd.Flags().BoolVar(&showDocument, "document", false, "Print the full document body")
	return cmd
}
