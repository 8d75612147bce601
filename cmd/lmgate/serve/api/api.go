// Package apicmder provides the standalone history API cobra command.
package apicmder

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/papercomputeco/lmgate/api"
	"github.com/papercomputeco/lmgate/cmd/lmgate/serve/wiring"
	"github.com/papercomputeco/lmgate/pkg/config"
)

type apiCommander struct {
	listen       string
	upstream     string
	defaultModel string
	sqlitePath   string
	postgresDSN  string
	debug        bool

	viper *viper.Viper
}

const apiLongDesc string = `Run the lmgate history API for inspecting recorded generations.

The API also serves an MCP endpoint at /mcp whose tools generate text
through the configured upstream.`

const apiShortDesc string = "Run the lmgate history API"

var apiFlagKeys = []string{
	config.FlagAPIListenStandalone,
	config.FlagUpstream,
	config.FlagDefaultModel,
	config.FlagSQLite,
	config.FlagPostgres,
}

func NewAPICmd() *cobra.Command {
	cmder := &apiCommander{}

	cmd := &cobra.Command{
		Use:   "api",
		Short: apiShortDesc,
		Long:  apiLongDesc,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			v, err := config.InitViper(configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			config.BindRegisteredFlags(v, cmd, wiring.Flags, apiFlagKeys)
			cmder.viper = v
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}
			return cmder.run(cmd.Context())
		},
	}

	config.AddStringFlag(cmd, wiring.Flags, config.FlagAPIListenStandalone, &cmder.listen)
	config.AddStringFlag(cmd, wiring.Flags, config.FlagUpstream, &cmder.upstream)
	config.AddStringFlag(cmd, wiring.Flags, config.FlagDefaultModel, &cmder.defaultModel)
	config.AddStringFlag(cmd, wiring.Flags, config.FlagSQLite, &cmder.sqlitePath)
	config.AddStringFlag(cmd, wiring.Flags, config.FlagPostgres, &cmder.postgresDSN)

	return cmd
}

func (c *apiCommander) run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	log, closeLog, err := wiring.NewLogger(c.debug, "")
	if err != nil {
		return err
	}
	defer closeLog()

	driver, err := wiring.OpenStorage(ctx, c.viper, log)
	if err != nil {
		return err
	}
	defer driver.Close()

	mcpHandler, err := wiring.MCPHandler(c.viper, driver, log)
	if err != nil {
		return err
	}

	server := api.NewServer(api.Config{
		ListenAddr: c.viper.GetString("api.listen"),
		MCP:        mcpHandler,
	}, driver, log)
	defer server.Shutdown()

	errChan := make(chan error, 1)
	go func() {
		if err := server.Run(); err != nil {
			errChan <- fmt.Errorf("API server error: %w", err)
		}
	}()

	return wiring.WaitForShutdown(log, errChan)
}
