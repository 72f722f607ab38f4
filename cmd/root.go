// Package cmd implements the harvester command-line interface.
package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonesrussell/north-cloud/harvester/internal/bootstrap"
	"github.com/jonesrussell/north-cloud/harvester/internal/config"
)

// Version is set at build time with -ldflags "-X .../cmd.Version=...".
var Version = "dev"

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "harvester",
		Short:         "Poll sources for new records and announce them",
		Long:          `harvester polls web sources, stores every new record once and notifies a chat channel about it.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "config file (default $CONFIG_PATH or config.yml)")

	opener := func(ctx context.Context) (*bootstrap.App, error) {
		app, err := bootstrap.New(ctx, configPath)
		if err != nil {
			return nil, err
		}
		app.Config.Service.Version = Version
		return app, nil
	}

	root.AddCommand(
		newRunCommand(opener),
		newOnceCommand(opener),
		newListCommand(opener),
		newTestNotifierCommand(opener),
		newSettingsCommand(opener),
		newCheckCommand(opener),
		newMigrateCommand(&configPath),
		newVersionCommand(),
	)

	return root
}

// Execute runs the root command.
func Execute() error {
	return NewRootCommand().ExecuteContext(context.Background())
}

// appOpener initializes the application for a command.
type appOpener func(ctx context.Context) (*bootstrap.App, error)

// withApp opens the app, runs fn and closes the app.
func withApp(ctx context.Context, open appOpener, fn func(app *bootstrap.App) error) error {
	app, err := open(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	return fn(app)
}

// selectSources returns the named source, or every enabled source when name is empty.
func selectSources(cfg *config.Config, name string) ([]config.SourceConfig, error) {
	if name == "" {
		return cfg.EnabledSources(), nil
	}
	sc, ok := cfg.FindSource(name)
	if !ok {
		return nil, fmt.Errorf("unknown source %q", name)
	}
	return []config.SourceConfig{sc}, nil
}

// defaultSource returns the named source or the first enabled one.
func defaultSource(cfg *config.Config, name string) (config.SourceConfig, error) {
	sources, err := selectSources(cfg, name)
	if err != nil {
		return config.SourceConfig{}, err
	}
	if len(sources) == 0 {
		return config.SourceConfig{}, fmt.Errorf("no enabled sources configured")
	}
	return sources[0], nil
}
