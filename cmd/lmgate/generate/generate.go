// Package generatecmder provides the generate command, which sends one
// prompt through a running lmgate gateway.
package generatecmder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/papercomputeco/lmgate/gateway"
	"github.com/papercomputeco/lmgate/pkg/cliui"
	"github.com/papercomputeco/lmgate/pkg/client"
	"github.com/papercomputeco/lmgate/pkg/config"
)

type generateCommander struct {
	gatewayTarget string
	model         string
	noStream      bool
	markdown      bool

	viper  *viper.Viper
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

const generateLongDesc string = `Generate text through a running lmgate gateway.

The prompt is taken from the arguments, or read from stdin when the only
argument is "-". By default fragments are printed as the model produces
them. With --no-stream the full response is printed once the model has
finished and, on a terminal, --markdown renders it.

Examples:
  lmgate generate "why is the sky blue?"
  lmgate generate -m mistral --no-stream --markdown "write a haiku"
  echo "summarize this" | lmgate generate -`

const generateShortDesc string = "Generate text through the gateway"

var generateFlagKeys = []string{config.FlagGatewayTarget}

func NewGenerateCmd() *cobra.Command {
	cmder := &generateCommander{}

	cmd := &cobra.Command{
		Use:   "generate <prompt>",
		Short: generateShortDesc,
		Long:  generateLongDesc,
		Args:  cobra.MinimumNArgs(1),
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			v, err := config.InitViper(configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			config.BindRegisteredFlags(v, cmd, config.ClientFlags, generateFlagKeys)
			cmder.viper = v
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cmder.stdin = cmd.InOrStdin()
			cmder.stdout = cmd.OutOrStdout()
			cmder.stderr = cmd.ErrOrStderr()

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			return cmder.run(ctx, args)
		},
	}

	config.AddStringFlag(cmd, config.ClientFlags, config.FlagGatewayTarget, &cmder.gatewayTarget)
	cmd.Flags().StringVarP(&cmder.model, "model", "m", "", "Model name (default: the gateway's default model)")
	cmd.Flags().BoolVar(&cmder.noStream, "no-stream", false, "Wait for the full response instead of streaming fragments")
	cmd.Flags().BoolVar(&cmder.markdown, "markdown", false, "Render the buffered response as markdown on a terminal")

	return cmd
}

func (c *generateCommander) run(ctx context.Context, args []string) error {
	prompt, err := c.prompt(args)
	if err != nil {
		return err
	}

	cl := client.New(c.viper.GetString("client.gateway_target"), "")
	req := gateway.GenerationRequest{
		Prompt: prompt,
		Model:  c.model,
	}

	if !c.noStream {
		if _, err := cl.Stream(ctx, req, c.stdout); err != nil {
			return err
		}
		fmt.Fprintln(c.stdout)
		return nil
	}

	var response string
	err = cliui.Step(c.stderr, "generating", func() error {
		var genErr error
		response, genErr = cl.Generate(ctx, req)
		return genErr
	})
	if err != nil {
		return err
	}

	if c.markdown && cliui.IsTerminal(c.stdout) {
		if rendered, err := cliui.RenderMarkdown(response); err == nil {
			response = rendered
		}
	}

	fmt.Fprintln(c.stdout, response)
	return nil
}

func (c *generateCommander) prompt(args []string) (string, error) {
	if len(args) == 1 && args[0] == "-" {
		data, err := io.ReadAll(c.stdin)
		if err != nil {
			return "", fmt.Errorf("reading prompt from stdin: %w", err)
		}
		args = []string{string(data)}
	}

	prompt := strings.TrimSpace(strings.Join(args, " "))
	if prompt == "" {
		return "", errors.New("prompt is empty")
	}
	return prompt, nil
}

