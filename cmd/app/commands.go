package main

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/allisson/fieldsync/cmd/app/commands"
	"github.com/allisson/fieldsync/internal/app"
	"github.com/allisson/fieldsync/internal/config"
)

func getCommands(version string) []*cli.Command {
	return []*cli.Command{
		{
			Name:  "agent",
			Usage: "Start the sync agent (queue, connectivity monitor, API server)",
			Action: func(ctx context.Context, cmd *cli.Command) error {
				return commands.RunAgent(ctx, version)
			},
		},
		{
			Name:  "migrate",
			Usage: "Run database migrations",
			Action: func(ctx context.Context, cmd *cli.Command) error {
				cfg := config.Load()
				container := app.NewContainer(cfg)
				defer func() { _ = container.Shutdown(ctx) }()

				return commands.RunMigrations(ctx, container)
			},
		},
		{
			Name:  "sync-now",
			Usage: "Run one drain cycle against the remote endpoint",
			Action: func(ctx context.Context, cmd *cli.Command) error {
				return commands.RunSyncNow(ctx, commands.DefaultIO())
			},
		},
		{
			Name:  "status",
			Usage: "Print the queue status snapshot",
			Flags: []cli.Flag{
				&cli.BoolFlag{
					Name:    "failed",
					Aliases: []string{"f"},
					Value:   false,
					Usage:   "Also list envelopes parked in terminal failure states",
				},
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				return commands.RunStatus(ctx, cmd.Bool("failed"), commands.DefaultIO())
			},
		},
		{
			Name:  "record-action",
			Usage: "Record one action into the durable queue",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:     "kind",
					Aliases:  []string{"k"},
					Required: true,
					Usage:    "Action kind (clock_in, clock_out, location_update, photo_upload, form_submit)",
				},
				&cli.StringFlag{
					Name:     "payload",
					Aliases:  []string{"p"},
					Required: true,
					Usage:    "Action payload as a JSON object",
				},
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				return commands.RunRecordAction(ctx, cmd.String("kind"), cmd.String("payload"), commands.DefaultIO())
			},
		},
	}
}
