package api

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"strings"

	"github.com/labstack/echo-contrib/pprof"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/tweetscout/tweetscout/api/types"
	"github.com/tweetscout/tweetscout/internal/jobs"
	"github.com/tweetscout/tweetscout/internal/stats"
	"github.com/tweetscout/tweetscout/internal/store"
)

// Start runs the HTTP command surface until the context is cancelled.
func Start(ctx context.Context, listenAddress string, config types.JobConfiguration, enhanced *jobs.EnhancedAPI, collector *stats.StatsCollector, st store.Store) error {
	e := echo.New()
	e.HideBanner = true

	switch strings.ToLower(config.GetString("log_level", "info")) {
	case "debug":
		e.Logger.SetLevel(log.DEBUG)
	case "warn":
		e.Logger.SetLevel(log.WARN)
	case "error":
		e.Logger.SetLevel(log.ERROR)
	default:
		e.Logger.SetLevel(log.INFO)
	}

	healthMetrics := NewHealthMetrics()

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(APIKeyAuthMiddleware(config))
	e.Use(HealthMetricsMiddleware(healthMetrics))

	// Health check endpoints (no auth required)
	e.GET("/healthz", Healthz())
	e.GET("/readyz", Readyz(st, healthMetrics))

	if config.GetBool("profiling_enabled", false) {
		enableProfiling(e)
	}

	e.POST("/invoke", invoke(enhanced))

	identity := e.Group("/identity")
	identity.POST("/:username/credential", setCredential(enhanced))
	identity.DELETE("/:username/credential", removeCredential(enhanced))
	identity.DELETE("/:username/guest", invalidateGuest(enhanced))
	identity.GET("/:username/capabilities", getCapabilities(enhanced))

	e.POST("/identities/validate", validateAll(enhanced))
	e.GET("/stats", statsHandler(collector))

	go func() {
		<-ctx.Done()
		if err := e.Close(); err != nil {
			e.Logger.Error("Failed to close Echo server: ", err)
		}
	}()

	e.Logger.Info(fmt.Sprintf("Starting server on %s", listenAddress))
	if err := e.Start(listenAddress); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// enableProfiling enables pprof profiling.
func enableProfiling(e *echo.Echo) {
	e.Logger.Info("Enabling profiling - this may impact performance")

	runtime.SetBlockProfileRate(500)
	runtime.SetMutexProfileFraction(1)
	runtime.SetCPUProfileRate(30)

	pprof.Register(e)
}
