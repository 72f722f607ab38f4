package cmd

import (
	"github.com/spf13/cobra"

	"github.com/jonesrussell/north-cloud/harvester/internal/bootstrap"
)

func newRunCommand(open appOpener) *cobra.Command {
	var withAPI bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the control loop of every enabled source",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := bootstrap.RunUntilInterrupt(cmd.Context())
			defer stop()

			return withApp(ctx, open, func(app *bootstrap.App) error {
				if cmd.Flags().Changed("api") {
					return app.Run(ctx, withAPI)
				}
				return app.Run(ctx, app.Config.Server.Enabled)
			})
		},
	}

	cmd.Flags().BoolVar(&withAPI, "api", false, "serve the control API (default from server.enabled)")

	return cmd
}
