// File: cmd/govledger/app.go
package main

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/govledger/internal/config"
	"github.com/smartdevs17/govledger/internal/eventlog"
	"github.com/smartdevs17/govledger/internal/ledger"
	"github.com/smartdevs17/govledger/internal/metrics"
	"github.com/smartdevs17/govledger/internal/models"
	"github.com/smartdevs17/govledger/internal/monitor"
	"github.com/smartdevs17/govledger/internal/notification"
	"github.com/smartdevs17/govledger/internal/server"
	"github.com/smartdevs17/govledger/internal/storage"
	"github.com/smartdevs17/govledger/pkg/utils"
)

// Application represents the main application
type Application struct {
	config       *config.Config
	logger       *logrus.Logger
	metrics      *metrics.Manager
	storage      storage.Storage
	ledger       *ledger.Ledger
	monitor      *monitor.EventMonitor
	notification *notification.Manager
	server       *server.HTTPServer
	ctx          context.Context
	cancel       context.CancelFunc
}

// NewApplication creates a new application instance
func NewApplication(cfg *config.Config) (*Application, error) {
	ctx, cancel := context.WithCancel(context.Background())

	app := &Application{
		config:  cfg,
		metrics: metrics.NewManager(),
		ctx:     ctx,
		cancel:  cancel,
	}

	if err := app.initializeLogger(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	if err := app.initializeComponents(); err != nil {
		app.Stop()
		return nil, fmt.Errorf("failed to initialize components: %w", err)
	}

	return app, nil
}

// initializeLogger initializes the application logger
func (app *Application) initializeLogger() error {
	logCfg := app.config.Logging

	if err := utils.InitLogger(logCfg.Level, logCfg.Format, logCfg.Output, logCfg.File); err != nil {
		return err
	}

	app.logger = utils.GetLogger()
	app.logger.WithFields(logrus.Fields{
		"level":  logCfg.Level,
		"format": logCfg.Format,
		"output": logCfg.Output,
	}).Info("Logger initialized")

	return nil
}

// initializeComponents initializes all application components
func (app *Application) initializeComponents() error {
	app.logger.Info("Initializing application components")

	if err := app.initializeStorage(); err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}

	if err := app.initializeLedger(); err != nil {
		return fmt.Errorf("failed to initialize ledger: %w", err)
	}

	if err := app.initializeNotification(); err != nil {
		return fmt.Errorf("failed to initialize notification: %w", err)
	}

	if err := app.initializeMonitor(); err != nil {
		return fmt.Errorf("failed to initialize monitor: %w", err)
	}

	if err := app.initializeServer(); err != nil {
		return fmt.Errorf("failed to initialize server: %w", err)
	}

	app.logger.Info("All components initialized successfully")
	return nil
}

// initializeStorage opens the durable event store and runs migrations
func (app *Application) initializeStorage() error {
	app.logger.Info("Initializing storage layer")

	store, err := openStorage(&app.config.Storage)
	if err != nil {
		return err
	}
	app.storage = storage.NewStorageWithMetrics(store, app.metrics)

	app.logger.WithField("type", app.config.Storage.Type).Info("Storage layer initialized successfully")
	return nil
}

// initializeLedger rebuilds ledger state from the stored event log
func (app *Application) initializeLedger() error {
	app.logger.Info("Initializing ledger")

	var err error
	app.ledger, err = ledger.New(app.config.ToLedgerConfig(), eventlog.New(app.storage), ledger.SystemClock{}, app.metrics)
	if err != nil {
		return fmt.Errorf("failed to create ledger: %w", err)
	}

	start := time.Now()
	events, err := storage.LoadAll(app.ctx, app.storage, app.config.Storage.BatchSize)
	if err != nil {
		return fmt.Errorf("failed to load event log: %w", err)
	}
	if err := app.ledger.Restore(app.ctx, events); err != nil {
		return fmt.Errorf("failed to restore ledger: %w", err)
	}

	app.logger.WithFields(logrus.Fields{
		"events":   len(events),
		"duration": time.Since(start),
	}).Info("Ledger initialized successfully")
	return nil
}

// initializeNotification initializes the notification manager and its channels
func (app *Application) initializeNotification() error {
	cfg := app.config.Notifications
	if !cfg.Enabled {
		app.logger.Info("Notifications disabled")
		return nil
	}
	app.logger.Info("Initializing notification manager")

	minSeverity, err := models.ParseSeverity(cfg.MinSeverity)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeConfiguration, "Invalid notification severity", err.Error())
	}

	app.notification = notification.NewManager(&notification.ManagerConfig{
		MinSeverity: minSeverity,
		MaxRetries:  cfg.MaxRetries,
		RetryDelay:  cfg.RetryDelay,
	}, app.metrics)

	app.notification.AddChannel(notification.NewLogChannel("log"))
	for i, wh := range cfg.Webhooks {
		id := wh.Name
		if id == "" {
			id = fmt.Sprintf("webhook-%d", i+1)
		}
		ch, err := notification.NewWebhookChannel(id, notification.WebhookConfig{
			URL:     wh.URL,
			Headers: wh.Headers,
			Timeout: wh.Timeout,
		})
		if err != nil {
			return fmt.Errorf("failed to create webhook channel %s: %w", id, err)
		}
		app.notification.AddChannel(ch)
	}

	if err := app.notification.Start(app.ctx); err != nil {
		return fmt.Errorf("failed to start notification manager: %w", err)
	}

	app.logger.WithField("channels", len(app.notification.GetChannels())).Info("Notification manager initialized successfully")
	return nil
}

// initializeMonitor wires the event monitor to the ledger log
func (app *Application) initializeMonitor() error {
	cfg := app.config.Monitor
	if !cfg.Enabled {
		app.logger.Info("Event monitor disabled")
		return nil
	}
	app.logger.Info("Initializing event monitor")

	// restored history was alerted on in a previous run
	start := cfg.StartSequence
	if start == 0 {
		start = app.ledger.Events().Latest()
	}

	app.monitor = monitor.NewEventMonitor(app.ledger.Events(), &monitor.MonitorConfig{
		PollInterval:  cfg.PollInterval,
		BatchSize:     cfg.BatchSize,
		StartSequence: start,
	}, app.metrics)

	if app.notification != nil {
		app.monitor.AddHandler("notifications", app.notification.Criteria(), app.notification.HandleEvent)
	}

	app.logger.WithField("start_sequence", start).Info("Event monitor initialized successfully")
	return nil
}

// initializeServer initializes the HTTP server
func (app *Application) initializeServer() error {
	app.logger.Info("Initializing HTTP server")

	serverCfg := &server.ServerConfig{
		Port:          app.config.Server.Port,
		Host:          app.config.Server.Host,
		ReadTimeout:   app.config.Server.ReadTimeout,
		WriteTimeout:  app.config.Server.WriteTimeout,
		EnableMetrics: app.config.Server.EnableMetrics,
		EnableHealth:  app.config.Server.EnableHealth,
		Version:       AppVersion,
	}

	var err error
	app.server, err = server.NewHTTPServer(serverCfg, app.ledger, app.storage, app.monitor, app.notification, app.metrics)
	if err != nil {
		return fmt.Errorf("failed to create HTTP server: %w", err)
	}

	app.logger.Info("HTTP server initialized successfully")
	return nil
}

// Start starts the application
func (app *Application) Start() error {
	app.logger.WithFields(logrus.Fields{
		"version":     AppVersion,
		"environment": app.config.App.Environment,
	}).Info("Starting govledger")

	if err := app.server.Start(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	if app.monitor != nil {
		if err := app.monitor.Start(app.ctx); err != nil {
			return fmt.Errorf("failed to start event monitor: %w", err)
		}
	}

	app.logger.WithFields(logrus.Fields{
		"server_address":  fmt.Sprintf("%s:%d", app.config.Server.Host, app.config.Server.Port),
		"storage":         app.config.Storage.Type,
		"latest_sequence": app.ledger.Events().Latest(),
	}).Info("govledger started successfully")

	return nil
}

// Stop stops the application gracefully, in reverse start order
func (app *Application) Stop() error {
	app.logger.Info("Stopping govledger")

	app.cancel()

	if app.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := app.server.Stop(ctx); err != nil {
			app.logger.WithError(err).Error("Failed to stop HTTP server")
		}
		cancel()
	}

	if app.monitor != nil {
		if err := app.monitor.Stop(); err != nil {
			app.logger.WithError(err).Error("Failed to stop event monitor")
		}
	}

	if app.notification != nil {
		if err := app.notification.Stop(); err != nil {
			app.logger.WithError(err).Error("Failed to stop notification manager")
		}
	}

	if app.ledger != nil {
		app.ledger.Events().Close()
	}

	if app.storage != nil {
		if err := app.storage.Close(); err != nil {
			app.logger.WithError(err).Error("Failed to close storage")
		}
	}

	app.logger.Info("govledger stopped successfully")
	return nil
}

// openStorage creates, connects and migrates the configured backend
func openStorage(cfg *config.StorageConfig) (storage.Storage, error) {
	store, err := storage.NewStorage(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage: %w", err)
	}
	if err := store.Connect(); err != nil {
		return nil, fmt.Errorf("failed to connect to storage: %w", err)
	}
	if err := store.Migrate(); err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to run storage migrations: %w", err)
	}
	return store, nil
}
