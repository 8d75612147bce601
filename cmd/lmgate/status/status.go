// Package statuscmder provides the status command for checking that the
// gateway, its upstream and the history API are reachable.
package statuscmder

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/lmgate/pkg/cliui"
	"github.com/papercomputeco/lmgate/pkg/client"
	"github.com/papercomputeco/lmgate/pkg/config"
)

const statusLongDesc string = `Check that lmgate services are reachable.

Probes the gateway's /healthz endpoint, which in turn asks the upstream
model server for its version, and pings the history API.

Examples:
  lmgate status
  lmgate status --gateway-target http://gateway.internal:3335`

const statusShortDesc string = "Check lmgate service status"

// ErrUnhealthy is returned when any probe fails.
var ErrUnhealthy = errors.New("one or more services are unavailable")

var statusFlagKeys = []string{config.FlagGatewayTarget, config.FlagAPITarget}

func NewStatusCmd() *cobra.Command {
	var gatewayTarget, apiTarget string

	cmd := &cobra.Command{
		Use:   "status",
		Short: statusShortDesc,
		Long:  statusLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			v, err := config.InitViper(configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			config.BindRegisteredFlags(v, cmd, config.ClientFlags, statusFlagKeys)

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			cl := client.New(v.GetString("client.gateway_target"), v.GetString("client.api_target"))
			return runStatus(ctx, cl, cmd.OutOrStdout())
		},
	}

	config.AddStringFlag(cmd, config.ClientFlags, config.FlagGatewayTarget, &gatewayTarget)
	config.AddStringFlag(cmd, config.ClientFlags, config.FlagAPITarget, &apiTarget)

	return cmd
}

func runStatus(ctx context.Context, cl *client.Client, w io.Writer) error {
	healthy := true
	fmt.Fprintln(w)

	health, err := cl.Health(ctx)
	switch {
	case err != nil:
		healthy = false
		fmt.Fprintf(w, "  %s %s  %s\n", cliui.FailMark, cliui.KeyStyle.Render("gateway "), cliui.DimStyle.Render(err.Error()))
	case health.Status != "ok":
		healthy = false
		fmt.Fprintf(w, "  %s %s  %s\n", cliui.SuccessMark, cliui.KeyStyle.Render("gateway "), cliui.DimStyle.Render("up"))
		fmt.Fprintf(w, "  %s %s  %s %s\n", cliui.FailMark, cliui.KeyStyle.Render("upstream"),
			cliui.ValueStyle.Render(health.Upstream), cliui.DimStyle.Render(health.Error))
	default:
		fmt.Fprintf(w, "  %s %s  %s\n", cliui.SuccessMark, cliui.KeyStyle.Render("gateway "), cliui.DimStyle.Render("up"))
		fmt.Fprintf(w, "  %s %s  %s %s\n", cliui.SuccessMark, cliui.KeyStyle.Render("upstream"),
			cliui.ValueStyle.Render(health.Upstream), cliui.DimStyle.Render("version "+health.Version))
	}

	if err := cl.Ping(ctx); err != nil {
		healthy = false
		fmt.Fprintf(w, "  %s %s  %s\n", cliui.FailMark, cliui.KeyStyle.Render("history "), cliui.DimStyle.Render(err.Error()))
	} else {
		fmt.Fprintf(w, "  %s %s  %s\n", cliui.SuccessMark, cliui.KeyStyle.Render("history "), cliui.DimStyle.Render("up"))
	}
	fmt.Fprintln(w)

	if !healthy {
		return ErrUnhealthy
	}
	return nil
}
