// Package gatewaycmder provides the standalone gateway cobra command.
package gatewaycmder

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/papercomputeco/lmgate/cmd/lmgate/serve/wiring"
	"github.com/papercomputeco/lmgate/gateway"
	"github.com/papercomputeco/lmgate/pkg/config"
)

type gatewayCommander struct {
	listen         string
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

const gatewayLongDesc string = `Run the lmgate gateway.

The gateway forwards generation requests to the upstream model server and
relays its output back as a plain text stream or one JSON result. Finished
generations are recorded to the configured storage and event stream.`

const gatewayShortDesc string = "Run the lmgate gateway"

var gatewayFlagKeys = []string{
	config.FlagGatewayListenStandalone,
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

func NewGatewayCmd() *cobra.Command {
	cmder := &gatewayCommander{}

	cmd := &cobra.Command{
		Use:   "gateway",
		Short: gatewayShortDesc,
		Long:  gatewayLongDesc,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			v, err := config.InitViper(configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			config.BindRegisteredFlags(v, cmd, wiring.Flags, gatewayFlagKeys)
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

	config.AddStringFlag(cmd, wiring.Flags, config.FlagGatewayListenStandalone, &cmder.listen)
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

	return cmd
}

func (c *gatewayCommander) run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	log, closeLog, err := wiring.NewLogger(c.debug, c.logFile)
	if err != nil {
		return err
	}
	defer closeLog()

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

	cfg, err := wiring.GatewayConfig(c.viper, publisher)
	if err != nil {
		return err
	}

	gw, err := gateway.New(cfg, driver, log)
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}
	defer gw.Close()

	errChan := make(chan error, 1)
	go func() {
		if err := gw.Run(); err != nil {
			errChan <- fmt.Errorf("gateway error: %w", err)
		}
	}()

	return wiring.WaitForShutdown(log, errChan)
}
