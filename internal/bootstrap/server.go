package bootstrap

import (
	"context"

	"github.com/jonesrussell/north-cloud/harvester/internal/api"
	"github.com/jonesrussell/north-cloud/harvester/internal/notifier"
	"github.com/jonesrussell/north-cloud/harvester/internal/scheduler"
)

// SetupHTTPServer creates the control API over the running loops.
func SetupHTTPServer(s *Services, loops *scheduler.Manager) *api.Server {
	controls := make([]api.SourceControl, 0, len(s.Config.Sources))
	for _, sc := range s.Config.Sources {
		control := api.SourceControl{
			Name:     sc.Name,
			Kind:     sc.Kind,
			Settings: s.SourceSettings(sc),
		}
		if loop, ok := loops.Get(sc.Name); ok {
			control.Loop = loop
		}
		controls = append(controls, control)
	}

	router := api.NewRouter(controls, s.Records, s.Registry, s.Config.Service.Version).
		WithHealthCheck("database", func(ctx context.Context) error {
			return s.DB.PingContext(ctx)
		})

	if s.Config.Redis.Enabled() {
		router.WithHealthCheck("redis", func(ctx context.Context) error {
			return s.Notifier.Ping(ctx, notifier.Destination{Family: notifier.FamilyRedis})
		})
	}

	return api.NewServer(s.Config.Server.Address(), s.Config.Service.Debug, s.Log, router.SetupRoutes)
}
