package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BlackMaN314/daily-routine-bot/internal/backend"
	"github.com/BlackMaN314/daily-routine-bot/internal/domain"
)

const (
	defaultWorkers     = 8
	defaultUserTimeout = 20 * time.Second
	minSleep           = time.Second
)

// Sender sends a chat message and returns the platform message id.
// Blocked recipients are reported as domain.ErrRecipientBlocked.
type Sender interface {
	SendMessage(ctx context.Context, chatID int64, text string, kb domain.Keyboard) (int, error)
}

// ProfileFetcher loads a display profile from the messaging platform.
type ProfileFetcher interface {
	FetchProfile(ctx context.Context, chatID int64) (domain.Profile, error)
}

// Store is the part of the credential store the scheduler reads.
type Store interface {
	ListTelegramIDs(ctx context.Context) ([]int64, error)
	GetProfile(ctx context.Context, telegramID int64) (*domain.Profile, error)
}

// HabitAPI is the part of the backend gateway the scheduler calls.
type HabitAPI interface {
	Settings(ctx context.Context, u backend.User) (domain.NotificationSettings, error)
	Habits(ctx context.Context, u backend.User) ([]domain.Habit, error)
	Register(ctx context.Context, u backend.User) (string, error)
}

// Report summarizes one tick.
type Report struct {
	Users   int
	Sent    int
	Skipped int
	Failed  int
}

type outcome int

const (
	skipped outcome = iota
	sent
)

// Scheduler wakes at every wall-clock minute boundary and sends due habit
// reminders. Users are evaluated concurrently, bounded by a worker limit
// and a per-user timeout.
type Scheduler struct {
	store    Store
	api      HabitAPI
	sender   Sender
	profiles ProfileFetcher
	log      *zap.Logger
	clock    clockwork.Clock

	workers     int
	userTimeout time.Duration
	dedup       *Dedup

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	done    chan struct{}
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock injects the clock (tests use a fake one).
func WithClock(c clockwork.Clock) Option { return func(s *Scheduler) { s.clock = c } }

// WithWorkers caps concurrent per-user evaluations.
func WithWorkers(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithUserTimeout bounds a single user's evaluation.
func WithUserTimeout(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.userTimeout = d
		}
	}
}

// New creates a stopped Scheduler. profiles may be nil.
func New(store Store, api HabitAPI, sender Sender, profiles ProfileFetcher, log *zap.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		store:       store,
		api:         api,
		sender:      sender,
		profiles:    profiles,
		log:         log,
		clock:       clockwork.NewRealClock(),
		workers:     defaultWorkers,
		userTimeout: defaultUserTimeout,
		dedup:       NewDedup(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches the loop in the background.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return errors.New("scheduler already running")
	}
	s.running = true
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	go s.loop(ctx, s.stop, s.done)
	s.log.Info("scheduler started", zap.Int("workers", s.workers))
	return nil
}

// Stop prevents further ticks and waits for an in-flight tick to finish,
// or for ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	close(s.stop)
	done := s.done
	s.mu.Unlock()

	select {
	case <-done:
		s.log.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("scheduler stop: %w", ctx.Err())
	}
}

// Running reports whether the loop is active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Scheduler) loop(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	// A started tick runs to completion even when ctx is canceled.
	tickCtx := context.WithoutCancel(ctx)

	for {
		wait := domain.UntilNextMinute(s.clock.Now(), minSleep)
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-s.clock.After(wait):
		}

		select {
		case <-stop:
			return
		default:
		}
		s.Tick(tickCtx, s.clock.Now())
	}
}

// Tick evaluates every known user once for the minute of now. Per-user
// failures are logged and never abort the tick.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) Report {
	log := s.log.With(zap.String("tick", uuid.NewString()))

	ids, err := s.store.ListTelegramIDs(ctx)
	if err != nil {
		log.Error("list users failed", zap.Error(err))
		return Report{}
	}
	if len(ids) == 0 {
		log.Debug("no users to check")
		return Report{}
	}

	var sentN, skippedN, failedN atomic.Int32
	g := new(errgroup.Group)
	g.SetLimit(s.workers)
	for _, id := range ids {
		g.Go(func() error {
			uctx, cancel := context.WithTimeout(ctx, s.userTimeout)
			defer cancel()
			defer func() {
				if r := recover(); r != nil {
					failedN.Add(1)
					log.Error("user evaluation panicked", zap.Int64("telegramID", id), zap.Any("panic", r))
				}
			}()

			res, err := s.evaluate(uctx, log, id, now)
			switch {
			case err != nil:
				failedN.Add(1)
				log.Warn("user evaluation failed", zap.Int64("telegramID", id), zap.Error(err))
			case res == sent:
				sentN.Add(1)
			default:
				skippedN.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	report := Report{
		Users:   len(ids),
		Sent:    int(sentN.Load()),
		Skipped: int(skippedN.Load()),
		Failed:  int(failedN.Load()),
	}
	log.Debug("tick done",
		zap.Int("users", report.Users),
		zap.Int("sent", report.Sent),
		zap.Int("failed", report.Failed),
		zap.Int("dedupEntries", s.dedup.Entries()),
	)
	return report
}

func (s *Scheduler) evaluate(ctx context.Context, log *zap.Logger, telegramID int64, now time.Time) (outcome, error) {
	u := backend.User{TelegramID: telegramID, Profile: s.profile(ctx, log, telegramID)}

	settings, err := s.api.Settings(ctx, u)
	if backend.IsAuth(err) {
		if _, regErr := s.api.Register(ctx, u); regErr != nil {
			return skipped, fmt.Errorf("settings: %w; re-register: %v", err, regErr)
		}
		settings, err = s.api.Settings(ctx, u)
	}
	if err != nil {
		return skipped, fmt.Errorf("settings: %w", err)
	}

	if settings.DoNotDisturb || len(settings.NotifyTimes) == 0 {
		return skipped, nil
	}

	loc, err := domain.LoadLocationOrUTC(settings.Timezone)
	if err != nil {
		log.Warn("unknown timezone, using UTC", zap.Int64("telegramID", telegramID), zap.String("tz", settings.Timezone))
	}
	slot, due := domain.DueSlot(now, loc, settings.NotifyTimes)
	if !due || s.dedup.Sent(telegramID, slot) {
		return skipped, nil
	}

	habits, err := s.api.Habits(ctx, u)
	if err != nil {
		return skipped, fmt.Errorf("habits: %w", err)
	}
	if len(habits) == 0 {
		return skipped, nil
	}

	text, kb := ComposeReminder(habits)
	msgID, err := s.send(ctx, telegramID, text, kb)
	if errors.Is(err, domain.ErrRecipientBlocked) {
		log.Info("user blocked the bot", zap.Int64("telegramID", telegramID))
		s.dedup.Mark(telegramID, slot)
		return skipped, nil
	}
	if err != nil {
		return skipped, fmt.Errorf("send: %w", err)
	}

	s.dedup.Mark(telegramID, slot)
	log.Info("reminder sent",
		zap.Int64("telegramID", telegramID),
		zap.String("slot", slot.Time),
		zap.Int("messageID", msgID),
		zap.Int("habits", len(habits)),
	)
	return sent, nil
}

// send gives up when ctx ends even if the sender does not watch ctx. A
// delivery that completes afterwards is not recorded as sent.
func (s *Scheduler) send(ctx context.Context, chatID int64, text string, kb domain.Keyboard) (int, error) {
	type result struct {
		id  int
		err error
	}
	done := make(chan result, 1)
	go func() {
		id, err := s.sender.SendMessage(ctx, chatID, text, kb)
		done <- result{id, err}
	}()

	select {
	case r := <-done:
		return r.id, r.err
	case <-ctx.Done():
		return 0, fmt.Errorf("send abandoned: %w", ctx.Err())
	}
}

// profile prefers the cached profile and falls back to the platform.
func (s *Scheduler) profile(ctx context.Context, log *zap.Logger, telegramID int64) domain.Profile {
	cached, err := s.store.GetProfile(ctx, telegramID)
	if err != nil {
		log.Debug("profile lookup failed", zap.Int64("telegramID", telegramID), zap.Error(err))
	}
	if cached != nil && !cached.IsZero() {
		return *cached
	}
	if s.profiles == nil {
		return domain.Profile{}
	}
	p, err := s.profiles.FetchProfile(ctx, telegramID)
	if err != nil {
		log.Debug("profile fetch failed", zap.Int64("telegramID", telegramID), zap.Error(err))
		return domain.Profile{}
	}
	return p
}
