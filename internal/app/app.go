// -----------------------------------------------------------------------
// App - component wiring and lifecycle
// -----------------------------------------------------------------------

package app

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/venator/internal/common"
	"github.com/ternarybob/venator/internal/coordinator"
	"github.com/ternarybob/venator/internal/handlers"
	"github.com/ternarybob/venator/internal/interfaces"
	"github.com/ternarybob/venator/internal/scheduler"
	"github.com/ternarybob/venator/internal/services/auth"
	"github.com/ternarybob/venator/internal/services/notify"
	"github.com/ternarybob/venator/internal/services/scraper"
	"github.com/ternarybob/venator/internal/services/sheets"
	"github.com/ternarybob/venator/internal/services/syncqueue"
	"github.com/ternarybob/venator/internal/storage/badger"
)

// App holds all application components and dependencies
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	ctx       context.Context
	cancelCtx context.CancelFunc

	StorageManager interfaces.StorageManager
	Clock          interfaces.Clock

	// Core services
	ScheduleService *scheduler.Service
	Coordinator     *coordinator.Coordinator
	Ticker          *coordinator.Ticker

	// Collaborator services
	AuthService    *auth.Service
	SheetsService  *sheets.Service
	SearchResolver *sheets.Resolver
	SourceMapper   *sheets.Mapper
	ScraperService *scraper.Service
	SyncQueue      *syncqueue.Service
	Notifier       *notify.Service

	// HTTP handlers
	APIHandler       *handlers.APIHandler
	ScheduleHandler  *handlers.ScheduleHandler
	RunHandler       *handlers.RunHandler
	HistoryHandler   *handlers.HistoryHandler
	WebhookHandler   *handlers.WebhookHandler
	SyncQueueHandler *handlers.SyncQueueHandler
	MappingHandler   *handlers.MappingHandler
}

// New creates the application with all components wired.
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	ctx, cancel := context.WithCancel(context.Background())

	app := &App{
		Config:    cfg,
		Logger:    logger,
		ctx:       ctx,
		cancelCtx: cancel,
	}

	if err := app.initStorage(); err != nil {
		cancel()
		return nil, err
	}
	if err := app.initServices(); err != nil {
		cancel()
		app.StorageManager.Close()
		return nil, err
	}
	app.initHandlers()

	return app, nil
}

func (a *App) initStorage() error {
	manager, err := badger.NewManager(a.Logger, &a.Config.Storage.Badger)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	a.StorageManager = manager

	a.Logger.Info().
		Str("path", a.Config.Storage.Badger.Path).
		Msg("✅ Storage initialized")
	return nil
}

func (a *App) initServices() error {
	clock, err := scheduler.NewClock(a.Config.Scheduler.TimeZone)
	if err != nil {
		return fmt.Errorf("failed to initialize clock: %w", err)
	}
	a.Clock = clock

	a.AuthService = auth.NewService(&a.Config.GoogleAuth, a.Logger)
	a.SheetsService = sheets.NewService(&a.Config.Sheets, a.AuthService, clock, a.Logger)
	a.SearchResolver = sheets.NewResolver(&a.Config.Sheets, a.SheetsService, a.Logger)
	a.SourceMapper = sheets.NewMapper(&a.Config.Sheets, a.SheetsService, clock, a.Logger)
	a.ScraperService = scraper.NewService(&a.Config.Scraper, clock, a.Logger)
	a.SyncQueue = syncqueue.NewService(&a.Config.SyncQueue, a.StorageManager.SyncQueueStorage(), a.SheetsService, clock, a.Logger)
	a.Notifier = notify.NewService(&a.Config.Webhook, a.StorageManager.KeyValueStorage(), clock, a.Logger)

	a.ScheduleService = scheduler.NewService(a.StorageManager.ScheduleStorage(), clock, a.Logger)

	a.Coordinator = coordinator.New(coordinator.Deps{
		Schedules: a.ScheduleService,
		Storage:   a.StorageManager,
		Clock:     clock,
		Logger:    a.Logger,
		Scraper:   a.ScraperService,
		Searches:  a.SearchResolver,
		Sheets:    a.SheetsService,
		Tokens:    a.AuthService,
		Notifier:  a.Notifier,
		Mapper:    a.SourceMapper,
		Sink:      a.SyncQueue,
		Scraping:  &a.Config.Scraper,
	})
	a.Ticker = coordinator.NewTicker(a.Coordinator, a.Logger)

	a.Logger.Info().Msg("✅ Services initialized")
	return nil
}

func (a *App) initHandlers() {
	a.APIHandler = handlers.NewAPIHandler()
	a.ScheduleHandler = handlers.NewScheduleHandler(a.ScheduleService, a.Coordinator)
	a.RunHandler = handlers.NewRunHandler(a.Coordinator, a.StorageManager)
	a.HistoryHandler = handlers.NewHistoryHandler(a.StorageManager, a.SheetsService)
	a.WebhookHandler = handlers.NewWebhookHandler(a.Notifier)
	a.SyncQueueHandler = handlers.NewSyncQueueHandler(a.SyncQueue, a.StorageManager)
	a.MappingHandler = handlers.NewMappingHandler(a.SourceMapper)
}

// Start recovers interrupted runs, then begins the tick loop and the sync
// queue processor.
func (a *App) Start() error {
	if err := a.Coordinator.RecoverOnStartup(a.ctx); err != nil {
		return fmt.Errorf("startup recovery failed: %w", err)
	}

	if err := a.Ticker.Start(a.Config.Scheduler.TickSchedule); err != nil {
		return fmt.Errorf("failed to start ticker: %w", err)
	}

	go a.SyncQueue.Run(a.ctx)

	a.Logger.Info().Msg("🚀 Venator started")
	return nil
}

// Close shuts down all components in reverse dependency order.
func (a *App) Close() error {
	a.Logger.Info().Msg("Shutting down...")

	a.Ticker.Stop()
	a.cancelCtx()
	a.ScraperService.Close()

	if err := a.StorageManager.Close(); err != nil {
		a.Logger.Warn().Err(err).Msg("Failed to close storage")
		return err
	}

	a.Logger.Info().Msg("✅ Shutdown complete")
	return nil
}
