// Package lmgatecmder
package lmgatecmder

import (
	"github.com/spf13/cobra"

	configcmder "github.com/papercomputeco/lmgate/cmd/lmgate/config"
	generatecmder "github.com/papercomputeco/lmgate/cmd/lmgate/generate"
	historycmder "github.com/papercomputeco/lmgate/cmd/lmgate/history"
	modelscmder "github.com/papercomputeco/lmgate/cmd/lmgate/models"
	servecmder "github.com/papercomputeco/lmgate/cmd/lmgate/serve"
	statuscmder "github.com/papercomputeco/lmgate/cmd/lmgate/status"
	versioncmder "github.com/papercomputeco/lmgate/cmd/lmgate/version"
)

const lmgateLongDesc string = `lmgate is a thin HTTP gateway in front of Ollama.

It relays generated text to clients as it arrives, or returns it in one piece,
and records every generation for later inspection.

Run services using:
  lmgate serve gateway   Run the generation gateway
  lmgate serve api       Run the history API and MCP server
  lmgate serve           Run both servers together

Talk to a running gateway using:
  lmgate generate        Generate text from a prompt
  lmgate models          List or pull models
  lmgate history         Inspect recorded generations
  lmgate status          Check gateway and upstream health`

const lmgateShortDesc string = "lmgate - Ollama gateway"

func NewLmgateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "lmgate",
		Short:        lmgateShortDesc,
		Long:         lmgateLongDesc,
		SilenceUsage: true,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override path to .lmgate/ config directory")

	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(generatecmder.NewGenerateCmd())
	cmd.AddCommand(modelscmder.NewModelsCmd())
	cmd.AddCommand(historycmder.NewHistoryCmd())
	cmd.AddCommand(statuscmder.NewStatusCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
