package cmd

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/taskpilot/internal/api"
	"github.com/taskpilot/internal/config"
)

// APICommand returns the CLI command for starting the API server
func APICommand() *cli.Command {
	return &cli.Command{
		Name:  "api",
		Usage: "Start the Taskpilot API server",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port for the API server (overrides config)",
			},
		},
		Action: func(c *cli.Context) error {
			cfg, err := config.LoadConfig(c.String("config"))
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			if c.IsSet("port") {
				cfg.Server.Port = c.Int("port")
			}

			if err := config.Validate(cfg); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			server, err := api.NewServer(context.Background(), cfg)
			if err != nil {
				return err
			}
			return server.Start()
		},
	}
}
