// Package api exposes the HTTP surface: device and reading endpoints, alert
// rule management, push subscription management, the live WebSocket upgrade,
// and operational endpoints.
package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/terrasense/terrasense-go/internal/alerting"
	"github.com/terrasense/terrasense-go/internal/datastore/repository"
	"github.com/terrasense/terrasense-go/internal/ingest"
	"github.com/terrasense/terrasense-go/internal/notify"
	"github.com/terrasense/terrasense-go/internal/realtime"
	"github.com/terrasense/terrasense-go/internal/status"
)

const identityKey = "identity"

// Controller wires the HTTP routes to the core services.
type Controller struct {
	Echo *echo.Echo

	pipeline   *ingest.Pipeline
	engine     *alerting.Engine
	hub        *realtime.Hub
	dispatcher *notify.Dispatcher
	tracker    *status.Tracker

	devices  repository.DeviceRepository
	readings repository.ReadingRepository
	farms    repository.FarmRepository
	rules    repository.RuleRepository

	verifier realtime.Verifier
	log      *zap.Logger
}

// Config carries the controller's collaborators.
type Config struct {
	Pipeline   *ingest.Pipeline
	Engine     *alerting.Engine
	Hub        *realtime.Hub
	Dispatcher *notify.Dispatcher
	Tracker    *status.Tracker

	Devices  repository.DeviceRepository
	Readings repository.ReadingRepository
	Farms    repository.FarmRepository
	Rules    repository.RuleRepository

	Verifier realtime.Verifier
	Log      *zap.Logger
}

// New creates the controller and registers all routes.
func New(cfg Config) *Controller {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())

	c := &Controller{
		Echo:       e,
		pipeline:   cfg.Pipeline,
		engine:     cfg.Engine,
		hub:        cfg.Hub,
		dispatcher: cfg.Dispatcher,
		tracker:    cfg.Tracker,
		devices:    cfg.Devices,
		readings:   cfg.Readings,
		farms:      cfg.Farms,
		rules:      cfg.Rules,
		verifier:   cfg.Verifier,
		log:        cfg.Log,
	}
	c.initRoutes()
	return c
}

func (c *Controller) initRoutes() {
	v1 := c.Echo.Group("/api/v1")

	devices := v1.Group("/devices")
	devices.POST("", c.RegisterDevice)
	devices.GET("", c.ListDevices)
	devices.POST("/:id/calibrate", c.CalibrateDevice)
	devices.DELETE("/:id", c.DeactivateDevice)
	devices.GET("/:id/status", c.GetDeviceStatus)
	devices.GET("/:id/readings", c.ListDeviceReadings)

	readings := v1.Group("/readings")
	readings.POST("", c.SubmitReading)
	readings.POST("/batch", c.SubmitReadingBatch)
	readings.GET("", c.QueryReadings)
	readings.GET("/stats", c.GetReadingStats)

	alerts := v1.Group("/alerts")
	alerts.GET("/rules", c.ListAlertRules)
	alerts.POST("/rules", c.CreateAlertRule)
	alerts.DELETE("/rules/:id", c.DeleteAlertRule)
	alerts.POST("/trigger", c.TriggerAlert)
	alerts.GET("/history", c.ListAlertHistory)

	farms := v1.Group("/farms")
	farms.GET("/:id/health", c.GetFarmHealth)

	push := v1.Group("/push", c.authMiddleware)
	push.POST("/subscribe", c.PushSubscribe)
	push.POST("/unsubscribe", c.PushUnsubscribe)
	push.PUT("/preferences", c.UpdatePushPreferences)

	c.Echo.GET("/ws", c.LiveConnection)
	c.Echo.GET("/healthz", c.Healthz)
	c.Echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
}

// authMiddleware verifies the bearer token and stores the identity in the
// request context.
func (c *Controller) authMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		token := ""
		const prefix = "Bearer "
		if auth := ctx.Request().Header.Get("Authorization"); len(auth) > len(prefix) && auth[:len(prefix)] == prefix {
			token = auth[len(prefix):]
		}
		identity, err := c.verifier.Verify(token)
		if err != nil {
			return ctx.JSON(http.StatusUnauthorized, map[string]string{"error": "authentication required"})
		}
		ctx.Set(identityKey, identity)
		return next(ctx)
	}
}

func identityFrom(ctx echo.Context) *realtime.Identity {
	identity, _ := ctx.Get(identityKey).(*realtime.Identity)
	return identity
}

// handleError translates domain errors to HTTP status codes.
func (c *Controller) handleError(ctx echo.Context, err error, message string) error {
	statusCode := http.StatusInternalServerError
	switch {
	case errors.Is(err, repository.ErrDeviceNotFound),
		errors.Is(err, repository.ErrFarmNotFound),
		errors.Is(err, repository.ErrAlertRuleNotFound),
		errors.Is(err, repository.ErrSubscriptionNotFound):
		statusCode = http.StatusNotFound
	case errors.Is(err, repository.ErrDeviceExists):
		statusCode = http.StatusConflict
	case errors.Is(err, ingest.ErrInvalidPayload):
		statusCode = http.StatusBadRequest
	default:
		c.log.Error(message, zap.Error(err))
	}
	return ctx.JSON(statusCode, map[string]string{
		"error":   message,
		"details": err.Error(),
	})
}

// LiveConnection upgrades to the live WebSocket protocol.
func (c *Controller) LiveConnection(ctx echo.Context) error {
	c.hub.HandleConnection(ctx.Response(), ctx.Request())
	return nil
}

// Healthz reports process liveness and live connection accounting.
func (c *Controller) Healthz(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, map[string]any{
		"status":          "ok",
		"queue_depth":     c.pipeline.QueueDepth(),
		"connected_farms": c.hub.ConnectedFarms(),
	})
}
