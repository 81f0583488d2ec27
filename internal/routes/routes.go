// internal/routes/routes.go
package routes

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/rsnodgrass/goanthem/internal/config"
	"github.com/rsnodgrass/goanthem/internal/handler"
	"github.com/rsnodgrass/goanthem/internal/middleware"
	"github.com/rsnodgrass/goanthem/internal/utils"
	"github.com/rsnodgrass/goanthem/pkg/control"
)

// Router holds all dependencies for routing
type Router struct {
	config   *config.Config
	logger   *zap.Logger
	amp      control.AmpControl
	eventBus *handler.EventBus
}

// NewRouter creates a new router instance
func NewRouter(config *config.Config, logger *zap.Logger, amp control.AmpControl, eventBus *handler.EventBus) *Router {
	return &Router{
		config:   config,
		logger:   logger,
		amp:      amp,
		eventBus: eventBus,
	}
}

// SetupRouter creates and configures the Gin router
func (r *Router) SetupRouter() *gin.Engine {
	if r.config.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()
	r.addMiddleware(router)
	r.addRoutes(router)
	return router
}

// addMiddleware adds middleware to the router
func (r *Router) addMiddleware(router *gin.Engine) {
	router.Use(middleware.RecoveryMiddleware(r.logger))
	router.Use(middleware.RequestIDMiddleware())

	serviceLogger := utils.NewServiceLogger(r.logger, "http-server")
	router.Use(middleware.LoggingMiddleware(serviceLogger))

	router.Use(middleware.CORSMiddleware(&r.config.Security))

	r.logger.Info("Middleware configured")
}

// addRoutes sets up all application routes
func (r *Router) addRoutes(router *gin.Engine) {
	healthHandler := handler.NewHealthHandler(r.config, r.logger)
	ampHandler := handler.NewAmpHandler(r.amp, r.eventBus, r.logger)
	wsHandler := handler.NewWebSocketHandler(r.eventBus, r.logger)

	healthHandler.RegisterRoutes(router.Group(""))

	apiV1 := router.Group("/api/v1")
	ampHandler.RegisterRoutes(apiV1)

	wsHandler.RegisterRoutes(router.Group("/ws"))

	r.logger.Info("All routes configured successfully")
}
