package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/comalice/pimulator"
	"github.com/comalice/pimulator/realtime"
)

type server struct {
	// ctx bounds runs started over HTTP; request contexts end with the request.
	ctx         context.Context
	sim         *pimulator.Simulation
	readTimeout time.Duration
	logger      *zap.Logger
}

func newRouter(ctx context.Context, sim *pimulator.Simulation, hub *streamHub, reg *prometheus.Registry, readTimeout time.Duration, logger *zap.Logger) *gin.Engine {
	s := &server{ctx: ctx, sim: sim, readTimeout: readTimeout, logger: logger}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(ginzap.Ginzap(logger, time.RFC3339, true))
	router.Use(ginzap.RecoveryWithZap(logger, true))

	router.GET("/healthz", s.health)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
	router.GET("/stream", gin.WrapH(hub))

	router.POST("/start", s.start)
	router.POST("/stop", s.stop)
	router.GET("/state", s.state)

	router.GET("/gamepad", s.overrides)
	router.POST("/gamepad", s.override)
	router.DELETE("/gamepad", s.clearOverrides)
	return router
}

func (s *server) health(c *gin.Context) {
	body := gin.H{"status": s.sim.Status().String()}
	if info, ok := s.sim.Run(); ok {
		body["run_id"] = info.ID
		body["mode"] = info.Mode.String()
	}
	if f := s.sim.Fault(); f != nil {
		body["fault"] = faultBody(f)
	}
	c.JSON(http.StatusOK, body)
}

func (s *server) start(c *gin.Context) {
	mode, err := pimulator.ParseMode(c.DefaultQuery("mode", "teleop"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	started, err := s.sim.Start(s.ctx, mode)
	if err != nil {
		var f *realtime.Fault
		if errors.As(err, &f) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"started": started, "fault": faultBody(f)})
			return
		}
		s.logger.Error("starting run", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"started": started, "error": err.Error()})
		return
	}
	body := gin.H{"started": started}
	if info, ok := s.sim.Run(); ok {
		body["run_id"] = info.ID
	}
	c.JSON(http.StatusOK, body)
}

func (s *server) stop(c *gin.Context) {
	stopped, err := s.sim.Stop()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"stopped": stopped, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"stopped": stopped})
}

func (s *server) state(c *gin.Context) {
	timeout := s.readTimeout
	if q := c.Query("timeout"); q != "" {
		d, err := time.ParseDuration(q)
		if err != nil || d < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid timeout"})
			return
		}
		timeout = d
	}

	snap, err := s.sim.GetState(timeout)
	var f *realtime.Fault
	switch {
	case err == nil:
		c.JSON(http.StatusOK, snap)
	case errors.Is(err, pimulator.ErrNotStarted):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, pimulator.ErrStarting):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	case errors.Is(err, pimulator.ErrStalled):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error(), "last": snap})
	case errors.As(err, &f):
		c.JSON(http.StatusConflict, gin.H{"fault": faultBody(f)})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func (s *server) overrides(c *gin.Context) {
	c.JSON(http.StatusOK, s.sim.Overrides())
}

// override accepts a JSON object of axis ids to values.
func (s *server) override(c *gin.Context) {
	var req map[string]float64
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	for id, v := range req {
		if err := s.sim.Override(id, v); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, s.sim.Overrides())
}

func (s *server) clearOverrides(c *gin.Context) {
	s.sim.ClearOverrides(c.QueryArray("axis")...)
	c.JSON(http.StatusOK, s.sim.Overrides())
}

func faultBody(f *realtime.Fault) gin.H {
	return gin.H{
		"kind":  f.Kind.String(),
		"phase": string(f.Phase),
		"tick":  f.Tick,
		"error": f.Error(),
	}
}
