package cmd

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/jonesrussell/north-cloud/harvester/internal/bootstrap"
	"github.com/jonesrussell/north-cloud/harvester/internal/database"
	"github.com/jonesrussell/north-cloud/harvester/internal/format"
)

const defaultListLimit = 20

func newListCommand(open appOpener) *cobra.Command {
	var (
		sourceName string
		limit      int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the most recent stored records",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), open, func(app *bootstrap.App) error {
				records, err := app.Services.Records.List(cmd.Context(), database.ListFilter{
					Source: sourceName,
					Limit:  limit,
				})
				if err != nil {
					return err
				}

				t := newTable(cmd.OutOrStdout())
				t.AppendHeader(table.Row{"ID", "Source", "Name", "Size", "Stored", "URL"})
				for _, rec := range records {
					size := ""
					if rec.Size != nil {
						size = format.HumanSize(*rec.Size)
					}
					t.AppendRow(table.Row{
						rec.ID,
						rec.Source,
						rec.DisplayName,
						size,
						rec.CreatedAt.Format("2006-01-02 15:04"),
						rec.SourceURL,
					})
				}
				t.AppendFooter(table.Row{"", "", "Total", len(records)})
				t.Render()
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&sourceName, "source", "", "only list records of this source")
	cmd.Flags().IntVar(&limit, "limit", defaultListLimit, "maximum number of records")

	return cmd
}
