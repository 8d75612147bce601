// Package servecmder provides the serve command with subcommands for running services.
package servecmder

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/papercomputeco/lmgate/api"
	apicmder "github.com/papercomputeco/lmgate/cmd/lmgate/serve/api"
	gatewaycmder "github.com/papercomputeco/lmgate/cmd/lmgate/serve/gateway"
	"github.com/papercomputeco/lmgate/cmd/lmgate/serve/wiring"
	"github.com/papercomputeco/lmgate/gateway"
	"github.com/papercomputeco/lmgate/pkg/config"
)

type ServeCommander struct {
	gatewayListen  string
	apiListen      string
	upstream       string
	delimiter      string
	field          string
	defaultModel   string
	connectTimeout time.Duration
	sqlitePath     string
	postgresDSN    string
	kafkaBrokers   string
	kafkaTopic     string
	logFile        string
	debug          bool

	viper *viper.Viper
}

const serveLongDesc string = `Run lmgate services.

Use subcommands to run individual services or all services together:
  lmgate serve            Run the gateway and the history API together
  lmgate serve gateway    Run just the gateway
  lmgate serve api        Run just the history API`

const serveShortDesc string = "Run lmgate services"

var serveFlagKeys = []string{
	config.FlagGatewayListen,
	config.FlagAPIListen,
	config.FlagUpstream,
	config.FlagDelimiter,
	config.FlagField,
	config.FlagDefaultModel,
	config.FlagConnectTimeout,
	config.FlagSQLite,
	config.FlagPostgres,
	config.FlagKafkaBrokers,
	config.FlagKafkaTopic,
}

func NewServeCmd() *cobra.Command {
	cmder := &ServeCommander{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			v, err := config.InitViper(configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			config.BindRegisteredFlags(v, cmd, wiring.Flags, serveFlagKeys)
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

	config.AddStringFlag(cmd, wiring.Flags, config.FlagGatewayListen, &cmder.gatewayListen)
	config.AddStringFlag(cmd, wiring.Flags, config.FlagAPIListen, &cmder.apiListen)
	config.AddStringFlag(cmd, wiring.Flags, config.FlagUpstream, &cmder.upstream)
	config.AddStringFlag(cmd, wiring.Flags, config.FlagDelimiter, &cmder.delimiter)
	config.AddStringFlag(cmd, wiring.Flags, config.FlagField, &cmder.field)
	config.AddStringFlag(cmd, wiring.Flags, config.FlagDefaultModel, &cmder.defaultModel)
	config.AddDurationFlag(cmd, wiring.Flags, config.FlagConnectTimeout, &cmder.connectTimeout)
	config.AddStringFlag(cmd, wiring.Flags, config.FlagSQLite, &cmder.sqlitePath)
	config.AddStringFlag(cmd, wiring.Flags, config.FlagPostgres, &cmder.postgresDSN)
	config.AddStringFlag(cmd, wiring.Flags, config.FlagKafkaBrokers, &cmder.kafkaBrokers)
	config.AddStringFlag(cmd, wiring.Flags, config.FlagKafkaTopic, &cmder.kafkaTopic)
	cmd.Flags().StringVar(&cmder.logFile, "log-file", "", "Also write JSON log records to this file")

	cmd.AddCommand(gatewaycmder.NewGatewayCmd())
	cmd.AddCommand(apicmder.NewAPICmd())

	return cmd
}

func (c *ServeCommander) run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	log, closeLog, err := wiring.NewLogger(c.debug, c.logFile)
	if err != nil {
		return err
	}
	defer closeLog()

	// Shared between the gateway's recorder and the history API
	driver, err := wiring.OpenStorage(ctx, c.viper, log)
	if err != nil {
		return err
	}
	defer driver.Close()

	publisher, err := wiring.OpenPublisher(c.viper, log)
	if err != nil {
		return err
	}
	defer publisher.Close()

	gatewayConfig, err := wiring.GatewayConfig(c.viper, publisher)
	if err != nil {
		return err
	}

	gw, err := gateway.New(gatewayConfig, driver, log)
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}
	defer gw.Close()

	mcpHandler, err := wiring.MCPHandler(c.viper, driver, log)
	if err != nil {
		return err
	}

	apiServer := api.NewServer(api.Config{
		ListenAddr: c.viper.GetString("api.listen"),
		MCP:        mcpHandler,
	}, driver, log)
	defer apiServer.Shutdown()

	errChan := make(chan error, 2)

	go func() {
		if err := gw.Run(); err != nil {
			errChan <- fmt.Errorf("gateway error: %w", err)
		}
	}()

	go func() {
		if err := apiServer.Run(); err != nil {
			errChan <- fmt.Errorf("API server error: %w", err)
		}
	}()

	return wiring.WaitForShutdown(log, errChan)
}
