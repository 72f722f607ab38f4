package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/jonesrussell/north-cloud/harvester/internal/database"
	"github.com/jonesrussell/north-cloud/harvester/internal/domain"
	"github.com/jonesrussell/north-cloud/harvester/internal/scheduler"
	"github.com/jonesrussell/north-cloud/harvester/internal/settings"
)

const sourceKey = "source_control"

type intervalRequest struct {
	Seconds int `json:"seconds" binding:"required"`
}

type sourceView struct {
	Name     string            `json:"name"`
	Kind     string            `json:"kind"`
	Settings settings.Snapshot `json:"settings"`
	Loop     *scheduler.Status `json:"loop,omitempty"`
}

// requireSource resolves :source or aborts with 404.
func (r *Router) requireSource(c *gin.Context) {
	name := c.Param("source")
	src, ok := r.sources[name]
	if !ok {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "Unknown source: " + name})
		return
	}
	c.Set(sourceKey, src)
	c.Next()
}

func sourceFrom(c *gin.Context) SourceControl {
	src, _ := c.MustGet(sourceKey).(SourceControl)
	return src
}

// actor returns the X-Actor header, defaulting to "api".
func actor(c *gin.Context) string {
	a := c.GetHeader(actorHeader)
	if a == "" || len(a) > maxActorLength {
		return domain.ActorAPI
	}
	return a
}

func (r *Router) view(c *gin.Context, src SourceControl) sourceView {
	v := sourceView{
		Name:     src.Name,
		Kind:     src.Kind,
		Settings: src.Settings.Snapshot(c.Request.Context()),
	}
	if src.Loop != nil {
		status := src.Loop.Status()
		v.Loop = &status
	}
	return v
}

// listSources returns every source with its settings and loop status.
// GET /api/v1/sources
func (r *Router) listSources(c *gin.Context) {
	views := make([]sourceView, 0, len(r.order))
	for _, name := range r.order {
		views = append(views, r.view(c, r.sources[name]))
	}
	c.JSON(http.StatusOK, gin.H{"sources": views, "count": len(views)})
}

// GET /api/v1/sources/:source/settings
func (r *Router) getSettings(c *gin.Context) {
	c.JSON(http.StatusOK, r.view(c, sourceFrom(c)))
}

// setInterval changes the check interval.
// PUT /api/v1/sources/:source/interval {"seconds": 1800}
func (r *Router) setInterval(c *gin.Context) {
	var req intervalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	src := sourceFrom(c)
	if err := src.Settings.SetCheckInterval(c.Request.Context(), req.Seconds, actor(c)); err != nil {
		if errors.Is(err, settings.ErrIntervalOutOfRange) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": err.Error(),
				"min":   domain.MinCheckIntervalSeconds,
				"max":   domain.MaxCheckIntervalSeconds,
			})
			return
		}
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update interval"})
		return
	}

	c.JSON(http.StatusOK, r.view(c, src))
}

// POST /api/v1/sources/:source/enable
func (r *Router) enable(c *gin.Context) {
	r.setEnabled(c, true)
}

// POST /api/v1/sources/:source/disable
func (r *Router) disable(c *gin.Context) {
	r.setEnabled(c, false)
}

func (r *Router) setEnabled(c *gin.Context, enabled bool) {
	src := sourceFrom(c)
	if err := src.Settings.SetEnabled(c.Request.Context(), enabled, actor(c)); err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update source state"})
		return
	}
	c.JSON(http.StatusOK, r.view(c, src))
}

// check requests an immediate cycle: the flag is persisted for loops in
// other processes and the local loop is woken directly.
// POST /api/v1/sources/:source/check
func (r *Router) check(c *gin.Context) {
	src := sourceFrom(c)
	if err := src.Settings.RequestCheck(c.Request.Context(), actor(c)); err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to request check"})
		return
	}
	if src.Loop != nil {
		src.Loop.Trigger()
	}
	c.JSON(http.StatusAccepted, gin.H{"source": src.Name, "status": "check requested"})
}

// listRecords returns stored records, newest first.
// GET /api/v1/records?source=documents&limit=50&offset=0
func (r *Router) listRecords(c *gin.Context) {
	filter := database.ListFilter{Source: c.Query("source")}

	var ok bool
	if filter.Limit, ok = queryInt(c, "limit"); !ok {
		return
	}
	if filter.Offset, ok = queryInt(c, "offset"); !ok {
		return
	}

	records, err := r.records.List(c.Request.Context(), filter)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list records"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"records": records, "count": len(records)})
}

// GET /api/v1/records/:id
func (r *Router) getRecord(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid record ID"})
		return
	}

	rec, err := r.records.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Record not found"})
			return
		}
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get record"})
		return
	}

	c.JSON(http.StatusOK, rec)
}

// stats returns record counts per source.
// GET /api/v1/stats
func (r *Router) stats(c *gin.Context) {
	counts, err := r.records.CountBySource(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get stats"})
		return
	}

	var total int64
	for _, sc := range counts {
		total += sc.Count
	}

	c.JSON(http.StatusOK, gin.H{"by_source": counts, "total": total})
}

// queryInt parses an optional integer query parameter, writing a 400 on failure.
func queryInt(c *gin.Context, name string) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid " + name})
		return 0, false
	}
	return n, true
}
