package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

const (
	ansiReset  = "\x1b[0m"
	ansiGreen  = "\x1b[32m"
	ansiRed    = "\x1b[31m"
	ansiYellow = "\x1b[33m"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			status, err := client.Status(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			fmt.Fprintf(out, "Daemon running: %s (pid %d)\n", marked(yesNo(status.Running), status.Running, colorize), status.PID)
			fmt.Fprintf(out, "Database:       %s\n", status.DBPath)
			fmt.Fprintf(out, "Lock file:      %s\n", status.LockFilePath)

			if len(status.JobStats) > 0 {
				fmt.Fprintln(out, "\nJobs:")
				keys := make([]string, 0, len(status.JobStats))
				for key := range status.JobStats {
					keys = append(keys, key)
				}
				sort.Strings(keys)
				for _, key := range keys {
					fmt.Fprintf(out, "  %-22s %d\n", key, status.JobStats[key])
				}
			}

			fmt.Fprintln(out, "\nStages:")
			for _, health := range status.StageHealth {
				line := fmt.Sprintf("  %-22s %s", health.Name, marked(readyLabel(health.Ready), health.Ready, colorize))
				if health.Detail != "" {
					line += "  " + health.Detail
				}
				fmt.Fprintln(out, line)
			}

			fmt.Fprintln(out, "\nDependencies:")
			for _, dep := range status.Dependencies {
				line := fmt.Sprintf("  %-22s %s", dep.Command, marked(availableLabel(dep.Available), dep.Available, colorize))
				if dep.Detail != "" {
					line += "  " + dep.Detail
				}
				fmt.Fprintln(out, line)
			}
			return nil
		},
	}
}

func readyLabel(ready bool) string {
	if ready {
		return "ready"
	}
	return "not ready"
}

func availableLabel(available bool) string {
	if available {
		return "available"
	}
	return "missing"
}

func marked(label string, ok bool, colorize bool) string {
	if !colorize {
		return label
	}
	color := ansiRed
	if ok {
		color = ansiGreen
	}
	return color + label + ansiReset
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	if strings.TrimSpace(os.Getenv("NO_COLOR")) != "" {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
