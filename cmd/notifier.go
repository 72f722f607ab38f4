package cmd

import (
	"fmt"
	"html"
	"time"

	"github.com/spf13/cobra"

	"github.com/jonesrussell/north-cloud/harvester/internal/bootstrap"
	"github.com/jonesrussell/north-cloud/harvester/internal/notifier"
)

func newTestNotifierCommand(open appOpener) *cobra.Command {
	var sourceName string

	cmd := &cobra.Command{
		Use:   "test-notifier",
		Short: "Send a test message to a source's destination",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), open, func(app *bootstrap.App) error {
				sc, err := defaultSource(app.Config, sourceName)
				if err != nil {
					return err
				}

				dest := notifier.Destination{Family: sc.Destination.Family, ChatID: sc.Destination.ChatID}
				message := fmt.Sprintf("🧪 <b>Test notification</b>\n\nSource: %s\nSent: %s",
					html.EscapeString(sc.Name), time.Now().UTC().Format(time.RFC3339))

				if !app.Services.Notifier.Deliver(cmd.Context(), dest, message) {
					return fmt.Errorf("test notification to %s %s was not delivered", dest.Family, dest.ChatID)
				}

				fmt.Fprintf(cmd.OutOrStdout(), "Test notification delivered to %s %s\n", dest.Family, dest.ChatID)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&sourceName, "source", "", "source whose destination is tested (default first enabled)")

	return cmd
}
