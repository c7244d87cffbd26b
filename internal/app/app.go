package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/salonpress/internal/common"
	"github.com/ternarybob/salonpress/internal/handlers"
	"github.com/ternarybob/salonpress/internal/interfaces"
	"github.com/ternarybob/salonpress/internal/jobs"
	"github.com/ternarybob/salonpress/internal/models"
	"github.com/ternarybob/salonpress/internal/portal"
	"github.com/ternarybob/salonpress/internal/queue"
	"github.com/ternarybob/salonpress/internal/services/cleanup"
	"github.com/ternarybob/salonpress/internal/services/events"
	"github.com/ternarybob/salonpress/internal/services/generator"
	"github.com/ternarybob/salonpress/internal/services/scraper"
	"github.com/ternarybob/salonpress/internal/services/status"
	"github.com/ternarybob/salonpress/internal/storage"
	"github.com/timshannon/badgerhold/v4"
)

// App holds all application components and dependencies
type App struct {
	Config         *common.Config
	Logger         arbor.ILogger
	StorageManager interfaces.StorageManager

	// Event-driven services
	EventService   interfaces.EventService
	StatusService  *status.Service
	CleanupService *cleanup.Service

	// Job execution
	QueueManager interfaces.QueueManager
	WorkerPool   *queue.WorkerPool
	Orchestrator *jobs.Orchestrator
	Publisher    interfaces.Publisher
	Generator    interfaces.ContentGenerator // nil when no provider is configured
	Scraper      interfaces.SalonScraper

	// HTTP handlers
	WSHandler      *handlers.WebSocketHandler
	PostHandler    *handlers.PostHandler
	AccountHandler *handlers.AccountHandler
	SalonHandler   *handlers.SalonHandler
	HealthHandler  *handlers.HealthHandler

	cancelCtx context.CancelFunc
}

// New initializes the application with all dependencies
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	if err := app.initDatabase(); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	// The WebSocket handler subscribes as soon as events exist so no early
	// progress frame is missed
	app.EventService = events.NewService(app.Logger)
	app.WSHandler = handlers.NewWebSocketHandler(app.EventService, app.Logger, &app.Config.WebSocket)
	statusService, err := status.NewService(app.EventService, app.Logger)
	if err != nil {
		app.StorageManager.Close()
		return nil, fmt.Errorf("failed to initialize status service: %w", err)
	}
	app.StatusService = statusService
	if app.Config.Logging.Level == "debug" {
		if err := events.SubscribeLoggerToAllEvents(app.EventService, app.Logger); err != nil {
			app.Logger.Warn().Err(err).Msg("Failed to subscribe event logger")
		}
	}

	if err := app.initServices(); err != nil {
		app.StorageManager.Close()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	app.initHandlers()

	ctx, cancel := context.WithCancel(context.Background())
	app.cancelCtx = cancel
	app.WorkerPool.Start(ctx)

	if app.CleanupService != nil {
		if err := app.CleanupService.Start(); err != nil {
			app.Logger.Warn().Err(err).Msg("Cleanup scheduler not started")
		}
	}

	logger.Info().
		Bool("generator_enabled", app.Generator != nil).
		Int("workers", app.Config.Queue.Concurrency).
		Msg("Application initialization complete")

	return app, nil
}

// initDatabase initializes the storage layer (Badger)
func (a *App) initDatabase() error {
	storageManager, err := storage.NewStorageManager(a.Logger, a.Config)
	if err != nil {
		return fmt.Errorf("failed to create storage manager: %w", err)
	}

	a.StorageManager = storageManager
	a.Logger.Debug().
		Str("storage", "badger").
		Str("path", a.Config.Storage.Badger.Path).
		Msg("Storage layer initialized")
	return nil
}

func (a *App) initServices() error {
	// The queue shares the Badger instance behind badgerhold
	store, ok := a.StorageManager.DB().(*badgerhold.Store)
	if !ok {
		return fmt.Errorf("storage does not expose a badgerhold store")
	}
	queueConfig := queue.NewConfig(a.Config.Queue)
	queueMgr, err := queue.NewBadgerManager(store.Badger(), queueConfig, a.Logger)
	if err != nil {
		return fmt.Errorf("failed to create queue manager: %w", err)
	}
	a.QueueManager = queueMgr

	catalogue, err := portal.LoadCatalogue(a.Config.Portal.SelectorsFile)
	if err != nil {
		return err
	}
	a.Publisher = portal.NewRunner(
		sessionConfig(&a.Config.Browser),
		catalogue,
		clientOptions(a.Config),
		portal.NewScreenshotter(a.Config.Storage.Screenshots.Dir, a.Logger),
		a.Config.Browser.LaunchesPerMinute,
		a.Config.Browser.MaxSessions,
		a.Logger,
	)

	gen, err := generator.New(a.Config, a.Logger)
	switch {
	case errors.Is(err, generator.ErrNotConfigured):
		a.Logger.Warn().Str("provider", string(a.Config.LLM.DefaultProvider)).Msg("AI generation disabled: no API key")
	case err != nil:
		return fmt.Errorf("failed to create content generator: %w", err)
	default:
		a.Generator = gen
	}

	a.Scraper = scraper.NewScraper(&a.Config.Scraper, a.StorageManager.CacheStorage(), a.Logger)

	a.Orchestrator = jobs.NewOrchestrator(
		a.StorageManager,
		a.QueueManager,
		a.Publisher,
		a.Generator,
		a.EventService,
		jobs.NewConfig(a.Config),
		a.Logger,
	)

	a.WorkerPool = queue.NewWorkerPool(a.QueueManager, queueConfig, a.Logger)
	a.WorkerPool.RegisterHandler(models.TaskPublish, a.Orchestrator.HandlePublish)
	a.WorkerPool.RegisterHandler(models.TaskGenerate, a.Orchestrator.HandleGenerate)

	if a.Config.Cleanup.Enabled {
		a.CleanupService = cleanup.NewService(a.StorageManager, &a.Config.Cleanup, a.Logger)
	}
	return nil
}

func (a *App) initHandlers() {
	a.PostHandler = handlers.NewPostHandler(a.StorageManager, a.Orchestrator, a.Logger)
	a.AccountHandler = handlers.NewAccountHandler(a.StorageManager.CredentialStorage(), a.Logger)
	a.SalonHandler = handlers.NewSalonHandler(a.Scraper, a.Logger)
	a.HealthHandler = handlers.NewHealthHandler(a.QueueManager, a.WSHandler, a.StatusService, a.Logger)
}

// Close stops workers first so no job writes to a closed database
func (a *App) Close() error {
	if a.WorkerPool != nil {
		a.WorkerPool.Stop()
		a.Logger.Info().Msg("Worker pool stopped")
	}
	if a.cancelCtx != nil {
		a.cancelCtx()
	}

	if a.CleanupService != nil {
		a.CleanupService.Stop()
	}

	// Final terminal events go out before the socket closes
	if a.Orchestrator != nil {
		a.Orchestrator.Close(2 * time.Second)
	}

	if a.WSHandler != nil {
		a.WSHandler.Close()
	}

	if a.EventService != nil {
		if err := a.EventService.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close event service")
		}
	}

	if a.QueueManager != nil {
		a.QueueManager.Close()
	}

	if a.StorageManager != nil {
		if err := a.StorageManager.Close(); err != nil {
			return fmt.Errorf("failed to close storage: %w", err)
		}
		a.Logger.Info().Msg("Storage closed")
	}
	return nil
}

func sessionConfig(c *common.BrowserConfig) portal.SessionConfig {
	return portal.SessionConfig{
		Headless:          c.Headless,
		UserAgent:         c.UserAgent,
		Locale:            c.Locale,
		Timezone:          c.Timezone,
		AcceptLanguage:    c.AcceptLanguage,
		Languages:         languages(c.AcceptLanguage),
		WindowWidth:       c.WindowWidth,
		WindowHeight:      c.WindowHeight,
		NavigationTimeout: common.ParseDuration(c.NavigationTimeout, 60*time.Second),
		ActionTimeout:     common.ParseDuration(c.ActionTimeout, 10*time.Second),
	}
}

func clientOptions(c *common.Config) portal.ClientOptions {
	opts := portal.DefaultClientOptions()
	if c.Portal.LoginURL != "" {
		opts.LoginURL = c.Portal.LoginURL
	}
	if c.Publish.CategoryCode != "" {
		opts.CategoryCode = c.Publish.CategoryCode
	}
	if c.Publish.TitleLimit > 0 {
		opts.TitleLimit = c.Publish.TitleLimit
	}
	return opts
}

// languages turns an Accept-Language header into navigator.languages
func languages(acceptLanguage string) []string {
	var out []string
	for _, part := range strings.Split(acceptLanguage, ",") {
		tag := strings.TrimSpace(strings.SplitN(part, ";", 2)[0])
		if tag != "" {
			out = append(out, tag)
		}
	}
	return out
}
