package cmd

import (
	"errors"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/jonesrussell/north-cloud/harvester/internal/bootstrap"
	"github.com/jonesrussell/north-cloud/harvester/internal/ingest"
)

func newOnceCommand(open appOpener) *cobra.Command {
	var sourceName string

	cmd := &cobra.Command{
		Use:   "once",
		Short: "Run a single ingestion cycle and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := bootstrap.RunUntilInterrupt(cmd.Context())
			defer stop()

			return withApp(ctx, open, func(app *bootstrap.App) error {
				sources, err := selectSources(app.Config, sourceName)
				if err != nil {
					return err
				}

				t := newTable(cmd.OutOrStdout())
				t.AppendHeader(table.Row{"Source", "Found", "New", "Dup URL", "Dup Content", "Skipped", "Notified", "Error"})

				var errs []error
				for _, sc := range sources {
					loop, loopErr := app.Services.NewLoop(sc)
					if loopErr != nil {
						return loopErr
					}

					stats, runErr := loop.RunOnce(ctx)
					t.AppendRow(statsRow(sc.Name, stats, runErr))
					errs = append(errs, runErr)
				}

				t.Render()
				return errors.Join(errs...)
			})
		},
	}

	cmd.Flags().StringVar(&sourceName, "source", "", "source to run (default all enabled)")

	return cmd
}

func statsRow(name string, stats ingest.CycleStats, err error) table.Row {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return table.Row{
		name,
		stats.Found,
		stats.New,
		stats.DuplicateURL,
		stats.DuplicateFingerprint,
		stats.Skipped,
		stats.Notified,
		msg,
	}
}
