package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BlackMaN314/daily-routine-bot/internal/backend"
	"github.com/BlackMaN314/daily-routine-bot/internal/config"
	"github.com/BlackMaN314/daily-routine-bot/internal/notify"
	"github.com/BlackMaN314/daily-routine-bot/internal/scheduler"
	"github.com/BlackMaN314/daily-routine-bot/internal/store"
	"github.com/BlackMaN314/daily-routine-bot/internal/telegram"
)

const (
	shutdownTimeout = 5 * time.Second
	maxInFlight     = 16 // concurrently handled chat updates
)

type App struct {
	cfg config.Config
	log *zap.Logger
	bot *tgbotapi.BotAPI
}

func New(cfg config.Config, log *zap.Logger) (*App, error) {
	hc := &http.Client{Timeout: cfg.TelegramTimeout}
	bot, err := tgbotapi.NewBotAPIWithClient(cfg.BotToken, tgbotapi.APIEndpoint, hc)
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	bot.Debug = false
	return &App{cfg: cfg, log: log, bot: bot}, nil
}

// Run starts every component and blocks until SIGINT/SIGTERM or ctx is done.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a.log.Info("starting daily-routine-bot",
		zap.String("bot", a.bot.Self.UserName),
		zap.String("backend", a.cfg.BackendURL),
		zap.String("notify", a.cfg.NotifyAddr),
	)

	repo, err := store.OpenSQLite(ctx, a.cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open sqlite: %w", err)
	}
	a.log.Info("sqlite ready", zap.String("path", a.cfg.DBPath))

	api := backend.New(a.cfg.BackendURL, a.cfg.BotToken, repo, a.log.Named("backend"),
		backend.WithTimeout(a.cfg.BackendTimeout),
		backend.WithStaticToken(a.cfg.BackendAccessToken),
	)
	if err := api.Ping(ctx, a.cfg.PingTimeout); err != nil {
		a.log.Warn("backend is not reachable, continuing", zap.String("url", api.BaseURL()), zap.Error(err))
	}

	throttle := telegram.NewThrottle(nil, a.cfg.MessageRate, a.cfg.CallbackRate)
	router := telegram.NewRouter(a.bot, a.log.Named("telegram"), api, repo, throttle, a.cfg.WebAppURL)

	push := notify.NewServer(a.cfg.NotifyAddr, router, a.log.Named("notify"))
	go func() {
		if err := push.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("push endpoint stopped", zap.Error(err))
		}
	}()

	sched := scheduler.New(repo, api, router, router, a.log.Named("scheduler"),
		scheduler.WithWorkers(a.cfg.SchedulerWorkers),
		scheduler.WithUserTimeout(a.cfg.SchedulerUserTimeout),
	)
	if err := sched.Start(ctx); err != nil {
		_ = repo.Close()
		return fmt.Errorf("start scheduler: %w", err)
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = int(config.LongPollTimeout.Seconds())
	updCh := a.bot.GetUpdatesChan(u)

	// Handlers outlive the signal so that a reply in progress still goes out.
	handlerCtx := context.WithoutCancel(ctx)
	handlers := new(errgroup.Group)
	handlers.SetLimit(maxInFlight)

	for {
		select {
		case <-ctx.Done():
			a.log.Info("shutdown signal received")
			return shutdown(a.log,
				step{"scheduler", func(ctx context.Context) error { return sched.Stop(ctx) }},
				step{"push endpoint", push.Shutdown},
				step{"telegram polling", func(context.Context) error {
					a.bot.StopReceivingUpdates()
					return handlers.Wait()
				}},
				step{"sqlite", func(context.Context) error { return repo.Close() }},
			)

		case upd := <-updCh:
			handlers.Go(func() error {
				defer func() {
					if r := recover(); r != nil {
						a.log.Error("update handler panicked", zap.Int("updateID", upd.UpdateID), zap.Any("panic", r))
					}
				}()
				router.HandleUpdate(handlerCtx, upd)
				return nil
			})
		}
	}
}

// step is one named part of the shutdown sequence.
type step struct {
	name string
	fn   func(ctx context.Context) error
}

// shutdown runs steps in order, each with its own timeout. A failing step
// is logged and does not prevent the ones after it.
func shutdown(log *zap.Logger, steps ...step) error {
	var errs []error
	for _, s := range steps {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		err := s.fn(ctx)
		cancel()
		if err != nil {
			log.Warn("shutdown step failed", zap.String("step", s.name), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", s.name, err))
			continue
		}
		log.Info("stopped", zap.String("step", s.name))
	}
	return errors.Join(errs...)
}
