// Package modelscmder provides the models command for listing and pulling
// models through a running lmgate gateway.
package modelscmder

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/lmgate/pkg/cliui"
	"github.com/papercomputeco/lmgate/pkg/client"
	"github.com/papercomputeco/lmgate/pkg/config"
)

const modelsLongDesc string = `Manage the models available on the upstream model server.

  lmgate models list           List available models
  lmgate models pull <name>    Download a model and wait for it`

const modelsShortDesc string = "List and pull upstream models"

var modelsFlagKeys = []string{config.FlagGatewayTarget}

// modelEntry picks the displayed fields out of an upstream model entry.
type modelEntry struct {
	Name       string `json:"name"`
	Size       int64  `json:"size"`
	ModifiedAt string `json:"modified_at"`
}

func NewModelsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "models",
		Short: modelsShortDesc,
		Long:  modelsLongDesc,
	}

	cmd.AddCommand(newListCmd())
	cmd.AddCommand(newPullCmd())

	return cmd
}

func newListCmd() *cobra.Command {
	var gatewayTarget string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List available models",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cl, err := newClient(cmd)
			if err != nil {
				return err
			}
			return runList(commandContext(cmd), cl, cmd.OutOrStdout())
		},
	}

	config.AddStringFlag(cmd, config.ClientFlags, config.FlagGatewayTarget, &gatewayTarget)
	return cmd
}

func newPullCmd() *cobra.Command {
	var gatewayTarget string

	cmd := &cobra.Command{
		Use:   "pull <name>",
		Short: "Download a model and wait for it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cl, err := newClient(cmd)
			if err != nil {
				return err
			}
			return runPull(commandContext(cmd), cl, args[0], cmd.OutOrStdout())
		},
	}

	config.AddStringFlag(cmd, config.ClientFlags, config.FlagGatewayTarget, &gatewayTarget)
	return cmd
}

func runList(ctx context.Context, cl *client.Client, w io.Writer) error {
	models, err := cl.ListModels(ctx)
	if err != nil {
		return fmt.Errorf("listing models: %w", err)
	}

	if len(models) == 0 {
		fmt.Fprintf(w, "\n  %s\n\n", cliui.DimStyle.Render("No models available."))
		return nil
	}

	entries := make([]modelEntry, 0, len(models))
	maxLen := 0
	for _, raw := range models {
		var entry modelEntry
		if err := json.Unmarshal(raw, &entry); err != nil || entry.Name == "" {
			continue
		}
		entries = append(entries, entry)
		maxLen = max(maxLen, len(entry.Name))
	}

	fmt.Fprintln(w)
	for _, entry := range entries {
		size := ""
		if entry.Size > 0 {
			size = cliui.FormatBytes(entry.Size)
		}
		fmt.Fprintf(w, "  %s  %s\n",
			cliui.NameStyle.Render(fmt.Sprintf("%-*s", maxLen, entry.Name)),
			cliui.DimStyle.Render(size),
		)
	}
	fmt.Fprintln(w)

	return nil
}

func runPull(ctx context.Context, cl *client.Client, name string, w io.Writer) error {
	var message string
	err := cliui.Step(w, "pulling "+name, func() error {
		var pullErr error
		message, pullErr = cl.PullModel(ctx, name)
		return pullErr
	})
	if err != nil {
		return fmt.Errorf("pulling %s: %w", name, err)
	}

	fmt.Fprintf(w, "  %s\n", cliui.DimStyle.Render(message))
	return nil
}

func newClient(cmd *cobra.Command) (*client.Client, error) {
	configDir, _ := cmd.Flags().GetString("config-dir")
	v, err := config.InitViper(configDir)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	config.BindRegisteredFlags(v, cmd, config.ClientFlags, modelsFlagKeys)
	return client.New(v.GetString("client.gateway_target"), ""), nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
