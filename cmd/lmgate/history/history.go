// Package historycmder provides the history command for inspecting
// generations recorded by the gateway.
package historycmder

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/lmgate/pkg/cliui"
	"github.com/papercomputeco/lmgate/pkg/client"
	"github.com/papercomputeco/lmgate/pkg/config"
	"github.com/papercomputeco/lmgate/pkg/storage"
	"github.com/papercomputeco/lmgate/pkg/utils"
)

const historyLongDesc string = `Show generations recorded by the gateway.

Without arguments the most recent generations are listed, newest first.
With an id the full record is shown. Streaming generations keep counts
only, so their response is not available.

Examples:
  lmgate history
  lmgate history --limit 5
  lmgate history 3f0c2f5e-8a7d-4c34-9a4e-2b1f0f6f1a2b`

const historyShortDesc string = "Show recorded generations"

const previewLen = 60

var historyFlagKeys = []string{config.FlagAPITarget}

func NewHistoryCmd() *cobra.Command {
	var (
		apiTarget string
		limit     int
	)

	cmd := &cobra.Command{
		Use:   "history [id]",
		Short: historyShortDesc,
		Long:  historyLongDesc,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			v, err := config.InitViper(configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			config.BindRegisteredFlags(v, cmd, config.ClientFlags, historyFlagKeys)

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			cl := client.New("", v.GetString("client.api_target"))
			if len(args) == 1 {
				return runShow(ctx, cl, args[0], cmd.OutOrStdout())
			}
			return runList(ctx, cl, limit, cmd.OutOrStdout())
		},
	}

	config.AddStringFlag(cmd, config.ClientFlags, config.FlagAPITarget, &apiTarget)
	cmd.Flags().IntVarP(&limit, "limit", "n", storage.DefaultListLimit, "Number of generations to list")

	return cmd
}

func runList(ctx context.Context, cl *client.Client, limit int, w io.Writer) error {
	records, err := cl.ListGenerations(ctx, limit)
	if err != nil {
		return fmt.Errorf("listing generations: %w", err)
	}

	if len(records) == 0 {
		fmt.Fprintf(w, "\n  %s\n\n", cliui.DimStyle.Render("No generations recorded."))
		return nil
	}

	fmt.Fprintln(w)
	for _, rec := range records {
		fmt.Fprintf(w, "  %s %s  %s  %s  %s\n",
			statusMark(rec.Status),
			cliui.DimStyle.Render(rec.ID),
			cliui.NameStyle.Render(rec.Model),
			cliui.StepStyle.Render(cliui.FormatDuration(rec.Duration())),
			utils.Truncate(rec.Prompt, previewLen),
		)
	}
	fmt.Fprintln(w)

	return nil
}

func runShow(ctx context.Context, cl *client.Client, id string, w io.Writer) error {
	rec, err := cl.GetGeneration(ctx, id)
	if err != nil {
		return fmt.Errorf("getting generation %s: %w", id, err)
	}

	mode := "buffered"
	if rec.Streaming {
		mode = "streaming"
	}

	fmt.Fprintln(w)
	row := func(key, value string) {
		fmt.Fprintf(w, "  %s  %s\n", cliui.KeyStyle.Render(fmt.Sprintf("%-10s", key)), cliui.ValueStyle.Render(value))
	}
	row("ID:", rec.ID)
	row("Model:", rec.Model)
	row("Status:", rec.Status)
	row("Mode:", mode)
	row("Started:", rec.StartedAt.Local().Format("2006-01-02 15:04:05"))
	row("Duration:", cliui.FormatDuration(rec.Duration()))
	row("Fragments:", fmt.Sprintf("%d (%d bytes)", rec.Fragments, rec.Bytes))
	if rec.UpstreamStatus != 0 {
		row("Upstream:", fmt.Sprintf("%d", rec.UpstreamStatus))
	}
	if rec.Error != "" {
		row("Error:", rec.Error)
	}

	fmt.Fprintf(w, "\n  %s\n  %s\n", cliui.KeyStyle.Render("Prompt"), rec.Prompt)
	if rec.Response != "" {
		fmt.Fprintf(w, "\n  %s\n  %s\n", cliui.KeyStyle.Render("Response"), rec.Response)
	}
	fmt.Fprintln(w)

	return nil
}

func statusMark(status string) string {
	if status == storage.StatusCompleted {
		return cliui.SuccessMark
	}
	return cliui.FailMark
}
