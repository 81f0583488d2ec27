// cmd/server/main.go
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/rsnodgrass/goanthem/internal/amp"
	"github.com/rsnodgrass/goanthem/internal/config"
	"github.com/rsnodgrass/goanthem/internal/handler"
	"github.com/rsnodgrass/goanthem/internal/routes"
	"github.com/rsnodgrass/goanthem/internal/utils"
	"github.com/rsnodgrass/goanthem/pkg/control"
)

// Application represents the main application
type Application struct {
	config   *config.Config
	logger   *zap.Logger
	server   *http.Server
	registry *config.Registry
	amp      control.AmpControl
	eventBus *handler.EventBus
}

func main() {
	app, err := NewApplication()
	if err != nil {
		fmt.Printf("Failed to initialize application: %v\n", err)
		os.Exit(1)
	}

	if err := app.Start(); err != nil {
		app.logger.Fatal("Failed to start application", zap.Error(err))
	}
}

// NewApplication creates a new application instance
func NewApplication() (*Application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := utils.NewLogger(&cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	serviceLogger := utils.NewServiceLogger(logger, "goanthem")
	serviceLogger.LogServiceStart(cfg.App.Version)

	app := &Application{
		config: cfg,
		logger: logger,
	}

	if err := app.initializeAmp(); err != nil {
		return nil, fmt.Errorf("failed to initialize amplifier: %w", err)
	}

	if err := app.initializeServer(); err != nil {
		return nil, fmt.Errorf("failed to initialize server: %w", err)
	}

	return app, nil
}

// initializeAmp loads the device configuration trees and opens the
// amplifier controller.
func (app *Application) initializeAmp() error {
	registry, err := config.LoadRegistry(app.logger)
	if err != nil {
		return fmt.Errorf("failed to load device configuration: %w", err)
	}
	app.registry = registry

	app.eventBus = handler.NewEventBus(app.logger)
	go app.eventBus.Start()

	overrides := amp.Overrides{BaudRate: app.config.Amp.BaudRate}

	if app.config.Amp.Async {
		controller, err := amp.NewAsyncController(
			registry, app.config.Amp.Series, app.config.Amp.Port, overrides, app.logger)
		if err != nil {
			return err
		}
		// Surface unsolicited status lines as live events.
		controller.OnStatusLine(func(line string, fields control.ParsedResponse) {
			app.eventBus.Publish(handler.NewEvent(handler.EventZoneStatus, "device", map[string]interface{}{
				"line":   line,
				"fields": fields,
			}))
		})
		app.amp = controller
	} else {
		controller, err := amp.NewController(
			registry, app.config.Amp.Series, app.config.Amp.Port, overrides, app.logger)
		if err != nil {
			return err
		}
		app.amp = controller
	}

	app.logger.Info("Amplifier controller initialized",
		zap.String("series", app.config.Amp.Series),
		zap.String("port", app.config.Amp.Port),
		zap.Bool("async", app.config.Amp.Async),
	)
	return nil
}

// initializeServer sets up HTTP server and routes
func (app *Application) initializeServer() error {
	routerManager := routes.NewRouter(app.config, app.logger, app.amp, app.eventBus)
	router := routerManager.SetupRouter()

	app.server = &http.Server{
		Addr:         app.config.GetServerAddr(),
		Handler:      router,
		ReadTimeout:  app.config.Server.ReadTimeout,
		WriteTimeout: app.config.Server.WriteTimeout,
		IdleTimeout:  app.config.Server.IdleTimeout,
	}

	app.logger.Info("HTTP server initialized",
		zap.String("address", app.config.GetServerAddr()),
	)
	return nil
}

// Start runs the server until a shutdown signal arrives.
func (app *Application) Start() error {
	go func() {
		app.logger.Info("Starting HTTP server",
			zap.String("address", app.server.Addr),
		)
		if err := app.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			app.logger.Fatal("Failed to start HTTP server", zap.Error(err))
		}
	}()

	app.waitForShutdown()
	return nil
}

func (app *Application) waitForShutdown() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	sig := <-quit
	app.logger.Info("Received shutdown signal", zap.String("signal", sig.String()))

	app.shutdown()
}

// shutdown performs graceful shutdown
func (app *Application) shutdown() {
	serviceLogger := utils.NewServiceLogger(app.logger, "goanthem")
	serviceLogger.LogServiceStop("shutdown signal received")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("HTTP server shutdown error", zap.Error(err))
	} else {
		app.logger.Info("HTTP server stopped")
	}

	if app.amp != nil {
		if err := app.amp.Close(); err != nil {
			app.logger.Error("Amplifier close error", zap.Error(err))
		} else {
			app.logger.Info("Serial connection closed")
		}
	}

	if err := utils.CloseLogger(app.logger); err != nil {
		fmt.Printf("Logger close error: %v\n", err)
	}
}
