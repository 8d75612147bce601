// Package configcmder provides the config command for managing persistent
// lmgate configuration stored in the .lmgate/ directory.
package configcmder

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/lmgate/pkg/cliui"
	"github.com/papercomputeco/lmgate/pkg/config"
)

const configLongDesc string = `Manage persistent lmgate configuration.

Configuration is stored as config.toml in the .lmgate/ directory and provides
default values for command flags. CLI flags and LMGATE_* environment
variables always take precedence over config file values.

Keys use dotted notation matching the TOML section structure:
  gateway.listen, gateway.upstream, gateway.delimiter, gateway.field,
  gateway.default_model, gateway.connect_timeout,
  api.listen, storage.sqlite_path, storage.postgres_dsn,
  events.kafka_brokers, events.kafka_topic,
  client.gateway_target, client.api_target

Use subcommands to get, set, or list configuration values:
  lmgate config set <key> <value>    Set a configuration value
  lmgate config get <key>            Get a configuration value
  lmgate config list                 List all configuration values

Examples:
  lmgate config set gateway.upstream http://gpu-box:11434
  lmgate config set gateway.delimiter blank-line
  lmgate config get gateway.default_model
  lmgate config list`

const configShortDesc string = "Manage persistent lmgate configuration"

func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: configShortDesc,
		Long:  configLongDesc,
	}

	cmd.AddCommand(newSetCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newListCmd())

	return cmd
}

func validateKey(key string) error {
	if !config.IsValidConfigKey(key) {
		return fmt.Errorf("unknown config key: %q\n\nValid keys: %s",
			key, strings.Join(config.ValidConfigKeys(), ", "))
	}
	return nil
}

func completeKeys(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
	if len(args) == 0 {
		return config.ValidConfigKeys(), cobra.ShellCompDirectiveNoFileComp
	}
	return nil, cobra.ShellCompDirectiveNoFileComp
}

func printTarget(w io.Writer, target string) {
	if target != "" {
		fmt.Fprintf(w, "\n  %s %s\n\n",
			cliui.KeyStyle.Render("Config file:"),
			cliui.DimStyle.Render(target),
		)
		return
	}
	fmt.Fprintf(w, "\n  %s\n\n", cliui.DimStyle.Render("No config file found. Using defaults."))
}
