package app

import (
	"context"
	"errors"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"inventuri/internal/alerting"
	"inventuri/internal/archive"
	"inventuri/internal/auth"
	"inventuri/internal/config"
	"inventuri/internal/inventory"
	"inventuri/internal/report"
	"inventuri/internal/scheduler"
	"inventuri/internal/server"
	"inventuri/internal/storage"
	"inventuri/internal/stream"
	"inventuri/internal/version"
	"inventuri/internal/watch"
)

const reportJobTimeout = 5 * time.Minute

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) newNotifier() alerting.Notifier {
	if a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		return alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, cfg.Timeout, a.Logger)
	}
	return nil
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

// requireStore opens the database or explains why the command cannot run.
func (a *App) requireStore(ctx context.Context, action string) (*storage.Store, func(), error) {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return nil, nil, err
	}
	if store == nil {
		return nil, nil, errors.New("database.dsn not configured; cannot " + action)
	}
	return store, closeStore, nil
}

func (a *App) location() *time.Location {
	loc, err := time.LoadLocation(a.Config.Report.Timezone)
	if err != nil || a.Config.Report.Timezone == "" {
		return time.UTC
	}
	return loc
}

func (a *App) newReports(store *storage.Store) *report.Service {
	return report.NewService(store, store, store, report.Options{
		ItemTemplate:      a.Config.Report.ItemTemplate,
		EquipmentTemplate: a.Config.Report.EquipmentTemplate,
		Location:          a.location(),
	}, a.Logger)
}

// Serve runs the HTTP API together with the realtime hub, the stock watch
// and the scheduled report job until a signal arrives.
func (a *App) Serve(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.requireStore(ctx, "serve")
	if err != nil {
		return err
	}
	defer closeStore()

	cfg := a.Config
	reports := a.newReports(store)
	authn := auth.New(store, auth.Config{
		Secret: cfg.Auth.TokenSecret,
		Issuer: cfg.Auth.TokenIssuer,
		TTL:    cfg.Auth.TokenTTL,
	}, a.Logger)
	if cfg.Auth.TokenSecret == "" {
		a.Logger.Warn().Msg("auth.token_secret not configured; logins will fail")
	}

	hub := stream.NewHub(0, a.Logger)
	handler := server.NewHandler(inventory.NewService(store, store, store, a.Logger), reports, authn, hub, a.Logger)
	srv := server.New(cfg.Server, server.NewRouter(handler, a.Logger), a.Logger)

	var wg sync.WaitGroup
	defer func() {
		cancel()
		wg.Wait()
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := hub.Run(ctx, store, cfg.Database.NotifyChannel); err != nil && !errors.Is(err, context.Canceled) {
			a.Logger.Error().Err(err).Msg("realtime hub stopped")
		}
	}()

	if cfg.Scheduler.Enabled {
		sched, err := scheduler.New(scheduler.Options{
			Interval:     cfg.Scheduler.Interval,
			AlignToStart: cfg.Scheduler.AlignToBucket,
			StartupDelay: cfg.Scheduler.StartupDelay,
		}, a.Logger)
		if err != nil {
			return err
		}
		watcher := watch.New(cfg, sched, reports, a.newNotifier(), store, a.Logger)

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := watcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				a.Logger.Error().Err(err).Msg("stock watch terminated with error")
			}
		}()
	}

	if cfg.Report.Schedule != "" {
		stopCron, err := a.startReportCron(ctx, reports)
		if err != nil {
			return err
		}
		defer stopCron()
	}

	a.Logger.Info().Str("version", version.String()).Str("addr", cfg.Server.Addr).Msg("starting inventory service")
	if err := srv.Run(ctx); err != nil {
		a.Logger.Error().Err(err).Msg("server terminated with error")
		return err
	}

	a.Logger.Info().Msg("inventory service stopped")
	return nil
}

// startReportCron schedules the supplies report, archiving snapshots to
// MongoDB when archive.mongo_uri is set.
func (a *App) startReportCron(ctx context.Context, reports *report.Service) (func(), error) {
	cfg := a.Config
	var snapshots archive.Store
	var mongoArchive *archive.MongoArchive
	if cfg.Archive.MongoURI != "" {
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		m, err := archive.NewMongoArchive(connectCtx, cfg.Archive.MongoURI, cfg.Archive.Database, cfg.Archive.Collection)
		if err != nil {
			return nil, err
		}
		mongoArchive = m
		snapshots = m
	}

	loc := a.location()
	job := archive.NewJob(reports, snapshots, cfg.Report.OutputDir, loc, a.Logger)
	cron := scheduler.NewCron(loc, reportJobTimeout, a.Logger)
	if err := cron.Add(cfg.Report.Schedule, "supplies-report", job.Run); err != nil {
		if mongoArchive != nil {
			_ = mongoArchive.Close(context.Background())
		}
		return nil, err
	}
	cron.Start()

	return func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), reportJobTimeout)
		defer cancel()
		cron.Stop(stopCtx)
		if mongoArchive != nil {
			if err := mongoArchive.Close(stopCtx); err != nil {
				a.Logger.Warn().Err(err).Msg("close mongodb archive")
			}
		}
	}, nil
}

// Migrate applies pending SQL migrations.
func (a *App) Migrate(ctx context.Context) error {
	store, closeStore, err := a.requireStore(ctx, "migrate")
	if err != nil {
		return err
	}
	defer closeStore()

	applied, err := store.Migrate(ctx, a.Config.Database.MigrationsPath)
	if err != nil {
		return err
	}
	if len(applied) == 0 {
		a.Logger.Info().Msg("schema up to date")
		return nil
	}
	a.Logger.Info().Strs("applied", applied).Msg("migrations applied")
	return nil
}

// ReportOptions select which document the report command renders.
type ReportOptions struct {
	Kind string
	Out  string
}

// ExportOptions hold parameters for exporting item history.
type ExportOptions struct {
	ItemID      int64
	PNGPath     string
	CSVPath     string
	SuppliesCSV string
	MaxPoints   int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit int
}

// BackfillOptions configure the backfill job.
type BackfillOptions struct {
	DryRun bool
}
