package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"clipnote/internal/api"
	"clipnote/internal/subtitles"
)

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var style string
	var engine string
	var strategy string
	var tracks []string
	var follow bool

	cmd := &cobra.Command{
		Use:   "submit <source>",
		Short: "Queue a video for conversion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			parsed, err := parseTracks(tracks)
			if err != nil {
				return err
			}
			job, err := client.Submit(cmd.Context(), api.SubmitRequest{
				Source:   args[0],
				Style:    style,
				Engine:   engine,
				Strategy: strategy,
				Tracks:   parsed,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Queued job %d (style %s)\n", job.ID, job.Style)
			if follow {
				return followEvents(cmd, client, job.ID)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&style, "style", "", "Document style (note, summary, article, mindmap, post, table)")
	cmd.Flags().StringVar(&engine, "engine", "", "Transcription engine (local, cloud)")
	cmd.Flags().StringVar(&strategy, "strategy", "", "Keyframe strategy (uniform, keyword, semantic, visual, hybrid)")
	cmd.Flags().StringArrayVar(&tracks, "track", nil, "Subtitle track as lang=url (repeatable)")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Stream progress until the job finishes")

	return cmd
}

func parseTracks(values []string) ([]subtitles.Track, error) {
	if len(values) == 0 {
		return nil, nil
	}
	out := make([]subtitles.Track, 0, len(values))
	for _, value := range values {
		lang, rawURL, ok := strings.Cut(value, "=")
		if !ok || strings.TrimSpace(rawURL) == "" {
			return nil, fmt.Errorf("invalid track %q, expected lang=url", value)
		}
		out = append(out, subtitles.Track{
			URL:      strings.TrimSpace(rawURL),
			Language: strings.TrimSpace(lang),
		})
	}
	return out, nil
}
