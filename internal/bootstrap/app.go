// Package bootstrap wires the harvester components and manages their lifecycle.
package bootstrap

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonesrussell/north-cloud/harvester/internal/config"
	"github.com/jonesrussell/north-cloud/harvester/internal/logger"
)

// App is an initialized harvester.
type App struct {
	Config   *config.Config
	Log      logger.Logger
	Services *Services
}

// New runs the startup phases shared by every command: config and logger,
// then database (and migrations), then services.
func New(ctx context.Context, configPath string) (*App, error) {
	// Phase 1: config and logger
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return nil, err
	}

	log, err := CreateLogger(cfg)
	if err != nil {
		return nil, err
	}

	// Phase 2: database
	db, err := SetupDatabase(ctx, cfg, log)
	if err != nil {
		_ = log.Sync()
		return nil, err
	}

	// Phase 3: services
	return &App{
		Config:   cfg,
		Log:      log,
		Services: SetupServices(cfg, db, log),
	}, nil
}

// Close releases every resource held by the app.
func (a *App) Close() {
	a.Services.Close()
	_ = a.Log.Sync()
}

// Run starts one loop per enabled source, plus the control API when
// withAPI is set, and blocks until ctx is cancelled or the server fails.
func (a *App) Run(ctx context.Context, withAPI bool) error {
	// Phase 4: loops
	loops, err := a.Services.NewManager()
	if err != nil {
		return err
	}
	if len(loops.Loops()) == 0 {
		a.Log.Warn("No enabled sources configured")
	}
	loops.Start(ctx)
	defer loops.Stop()

	if !withAPI {
		<-ctx.Done()
		a.Log.Info("Shutting down")
		return nil
	}

	// Phase 5: server
	server := SetupHTTPServer(a.Services, loops)
	errCh := server.StartAsync()

	select {
	case serveErr := <-errCh:
		if serveErr != nil {
			return fmt.Errorf("http server: %w", serveErr)
		}
		return nil
	case <-ctx.Done():
		a.Log.Info("Shutting down")
	}

	//nolint:contextcheck // ctx is already cancelled; shutdown needs a fresh one
	return server.Shutdown(context.Background())
}

// RunUntilInterrupt returns a context cancelled on SIGINT or SIGTERM.
func RunUntilInterrupt(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
