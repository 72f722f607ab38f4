package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jonesrussell/north-cloud/harvester/internal/database"
	"github.com/jonesrussell/north-cloud/harvester/internal/domain"
	"github.com/jonesrussell/north-cloud/harvester/internal/scheduler"
	"github.com/jonesrussell/north-cloud/harvester/internal/settings"
)

const (
	healthCheckTimeout   = 2 * time.Second
	healthStatusHealthy  = "healthy"
	healthStatusDegraded = "degraded"
	actorHeader          = "X-Actor"
	maxActorLength       = 64
)

// SettingsService is the per-source settings surface the API writes through.
type SettingsService interface {
	Snapshot(ctx context.Context) settings.Snapshot
	SetCheckInterval(ctx context.Context, seconds int, actor string) error
	SetEnabled(ctx context.Context, enabled bool, actor string) error
	RequestCheck(ctx context.Context, actor string) error
}

// Loop is the control loop view the API reads and nudges.
type Loop interface {
	Status() scheduler.Status
	Trigger()
}

// RecordReader lists stored records.
type RecordReader interface {
	List(ctx context.Context, filter database.ListFilter) ([]*domain.Record, error)
	GetByID(ctx context.Context, id int64) (*domain.Record, error)
	CountBySource(ctx context.Context) ([]domain.SourceCount, error)
}

// SourceControl binds a source to its settings and loop. Loop may be nil when
// the loop is not running in this process.
type SourceControl struct {
	Name     string
	Kind     string
	Settings SettingsService
	Loop     Loop
}

// HealthCheck reports a dependency failure.
type HealthCheck func(ctx context.Context) error

// Router holds the API dependencies.
type Router struct {
	sources  map[string]SourceControl
	order    []string
	records  RecordReader
	gatherer prometheus.Gatherer
	checks   map[string]HealthCheck
	version  string
}

// NewRouter creates a router over sources.
func NewRouter(sources []SourceControl, records RecordReader, gatherer prometheus.Gatherer, version string) *Router {
	r := &Router{
		sources:  make(map[string]SourceControl, len(sources)),
		records:  records,
		gatherer: gatherer,
		checks:   make(map[string]HealthCheck),
		version:  version,
	}
	for _, s := range sources {
		r.sources[s.Name] = s
		r.order = append(r.order, s.Name)
	}
	return r
}

// WithHealthCheck adds a named dependency check to /health.
func (r *Router) WithHealthCheck(name string, check HealthCheck) *Router {
	r.checks[name] = check
	return r
}

// SetupRoutes registers every route on engine.
func (r *Router) SetupRoutes(engine *gin.Engine) {
	engine.GET("/health", r.health)
	if r.gatherer != nil {
		engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{})))
	}

	v1 := engine.Group("/api/v1")

	v1.GET("/sources", r.listSources)
	src := v1.Group("/sources/:source")
	src.Use(r.requireSource)
	src.GET("/settings", r.getSettings)
	src.PUT("/interval", r.setInterval)
	src.POST("/enable", r.enable)
	src.POST("/disable", r.disable)
	src.POST("/check", r.check)

	v1.GET("/records", r.listRecords)
	v1.GET("/records/:id", r.getRecord)
	v1.GET("/stats", r.stats)
}

func (r *Router) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
	defer cancel()

	status := healthStatusHealthy
	checks := make(map[string]string, len(r.checks))
	for name, check := range r.checks {
		if err := check(ctx); err != nil {
			status = healthStatusDegraded
			checks[name] = err.Error()
			continue
		}
		checks[name] = "ok"
	}

	code := http.StatusOK
	if status != healthStatusHealthy {
		code = http.StatusServiceUnavailable
	}

	c.JSON(code, gin.H{
		"status":  status,
		"service": "harvester",
		"version": r.version,
		"checks":  checks,
		"time":    time.Now().UTC(),
	})
}
