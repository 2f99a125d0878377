package main

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	accounts "github.com/goliatone/go-accounts"
	"github.com/goliatone/go-accounts/config"
	"github.com/goliatone/go-accounts/oauth"
	"github.com/goliatone/go-accounts/oauth/providers/google"
	"github.com/goliatone/go-accounts/oauth/providers/outlook"
	"github.com/goliatone/go-accounts/repository"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-router"
	"github.com/redis/go-redis/v9"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
)

type App struct {
	config   *config.Config
	logger   *glog.BaseLogger
	db       *bun.DB
	redis    *redis.Client
	repo     accounts.RepositoryManager
	service  *accounts.Service
	reaper   *accounts.ExpiryReaper
	srv      router.Server[*fiber.App]
	shutdown []func(context.Context) error
}

func (a *App) GetLogger(name string) glog.Logger {
	return a.logger.GetLogger(name)
}

func main() {
	lgr := glog.NewLogger(
		glog.WithLoggerTypePretty(),
		glog.WithLevel(glog.Debug),
		glog.WithName("accountsd"),
		glog.WithAddSource(false),
		glog.WithRichErrorHandler(goerrors.ToSlogAttributes),
	)

	ctx := context.Background()

	app := &App{logger: lgr}

	cfg, err := config.Load()
	if err != nil {
		fatal(app.GetLogger("config"), "failed to load configuration", err)
	}
	app.config = cfg

	if err := WithPersistence(ctx, app); err != nil {
		fatal(app.GetLogger("main"), "persistence setup failed", err)
	}

	if err := WithService(ctx, app); err != nil {
		fatal(app.GetLogger("main"), "service setup failed", err)
	}

	WithHTTPServer(app)

	go func() {
		if err := app.srv.Serve(cfg.ListenAddr); err != nil {
			app.GetLogger("http").Error("http server stopped", "error", err)
		}
	}()

	sig := WaitExitSignal()
	app.GetLogger("main").Info("shutting down", "signal", sig.String())

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	for i := len(app.shutdown) - 1; i >= 0; i-- {
		if err := app.shutdown[i](ctx); err != nil {
			app.GetLogger("main").Error("shutdown step failed", "error", err)
		}
	}
}

func WithPersistence(ctx context.Context, app *App) error {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(app.config.DatabaseURL)))
	app.db = bun.NewDB(sqldb, pgdialect.New())
	app.shutdown = append(app.shutdown, func(context.Context) error {
		return app.db.Close()
	})

	if err := app.db.PingContext(ctx); err != nil {
		return err
	}

	if err := accounts.CreateSchema(ctx, app.db); err != nil {
		return err
	}

	var opts []repository.Option
	if app.config.StagingBackend == config.StagingRedis {
		app.redis = redis.NewClient(&redis.Options{
			Addr:     app.config.RedisAddr,
			Password: app.config.RedisPassword,
			DB:       app.config.RedisDB,
		})
		app.shutdown = append(app.shutdown, func(context.Context) error {
			return app.redis.Close()
		})

		if err := app.redis.Ping(ctx).Err(); err != nil {
			return err
		}
		opts = append(opts, repository.WithRedisStaging(app.redis))
	}

	app.repo = repository.NewRepositoryManager(app.db, opts...)
	if err := app.repo.Validate(); err != nil {
		return err
	}

	app.GetLogger("persistence").Info("persistence ready", "staging", app.config.StagingBackend)
	return nil
}

func WithService(ctx context.Context, app *App) error {
	verifiers, err := oauth.NewRegistry(
		google.New(google.Config{ClientID: app.config.GoogleClientID}),
		outlook.New(outlook.Config{}),
	)
	if err != nil {
		return err
	}

	var notifier accounts.Notifier = accounts.NewLogNotifier(os.Stdout)
	if app.config.SMTPHost != "" {
		mailer, err := accounts.NewMailNotifier(
			app.config.SMTPHost,
			app.config.SMTPPort,
			app.config.SMTPUsername,
			app.config.SMTPPassword,
			app.config.SMTPFrom,
		)
		if err != nil {
			return err
		}
		notifier = mailer
	}

	app.service = accounts.NewService(accounts.Dependencies{
		Repo:      app.repo,
		Config:    app.config,
		Notifier:  notifier,
		Verifiers: verifiers,
		Logger:    app.GetLogger("accounts"),
	})

	staging := app.repo.PendingChanges()
	app.reaper = accounts.NewExpiryReaper(staging).
		WithSchedule(app.config.ReaperSchedule).
		WithLogger(app.GetLogger("reaper"))

	if err := app.reaper.Start(); err != nil {
		return err
	}
	app.shutdown = append(app.shutdown, func(context.Context) error {
		app.reaper.Stop()
		return nil
	})

	// clear anything left behind while the service was down
	if _, err := app.reaper.Sweep(ctx); err != nil {
		app.GetLogger("reaper").Warn("initial sweep failed", "error", err)
	}

	return nil
}

func WithHTTPServer(app *App) {
	app.srv = router.NewFiberAdapter(func(a *fiber.App) *fiber.App {
		return router.DefaultFiberOptions(fiber.New(fiber.Config{
			AppName:               "accountsd",
			DisableStartupMessage: true,
			ReadTimeout:           15 * time.Second,
			WriteTimeout:          15 * time.Second,
			ErrorHandler: func(c *fiber.Ctx, err error) error {
				var fe *fiber.Error
				if errors.As(err, &fe) {
					return c.Status(fe.Code).JSON(fiber.Map{"error": fe.Message})
				}
				app.GetLogger("http").Error("unhandled error", "path", c.Path(), "error", err)
				return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal error"})
			},
		}))
	})

	app.srv.Router().WithLogger(app.GetLogger("router"))

	app.srv.Router().Get("/healthz", func(ctx router.Context) error {
		return ctx.Status(router.StatusOK).SendString("ok")
	}).SetName("healthz")

	accounts.RegisterRoutes(app.srv.Router(),
		accounts.NewController(app.service, app.GetLogger("http")))

	app.shutdown = append(app.shutdown, func(ctx context.Context) error {
		return app.srv.Shutdown(ctx)
	})
}

func fatal(lgr glog.Logger, msg string, err error) {
	lgr.Error(msg, "error", err)
	os.Exit(1)
}

func WaitExitSignal() os.Signal {
	ch := make(chan os.Signal, 3)
	signal.Notify(ch,
		syscall.SIGINT,
		syscall.SIGQUIT,
		syscall.SIGTERM,
	)
	return <-ch
}
