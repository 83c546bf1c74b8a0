package telegram

import (
	"context"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/BlackMaN314/daily-routine-bot/internal/backend"
	"github.com/BlackMaN314/daily-routine-bot/internal/domain"
)

// Pending steps of conversational flows.
const (
	pendingTimes     = "await_times_text"
	pendingTZ        = "await_tz_text"
	pendingHabit     = "await_habit_title"
	pendingHabitKind = "await_habit_kind"
	pendingHabitGoal = "await_habit_goal"
	pendingHabitUnit = "await_habit_unit"
	pendingAmount    = "await_amount"
)

// pending is the unfinished flow of one chat.
type pending struct {
	step    string
	habitID int64            // pendingAmount
	draft   backend.NewHabit // habit creation steps
}

// Callback data handled by the router.
const (
	cbDone      = "done:"
	cbUndo      = "undo:"
	cbDelete    = "del:"
	cbAmount    = "amt:"
	cbProgress  = "progress:"
	cbHabitKind = "nkind:"
	cbHabitUnit = "nunit:"
	cbDNDToggle = "dnd:toggle"
	cbSetTimes  = "set_times"
	cbSetTZ     = "set_tz"
	cbSettings  = "settings"
)

// Habit kinds offered when creating a habit.
const (
	kindCheck = "check"
	kindCount = "count"
	kindTime  = "time"
)

// botClient is the subset of *tgbotapi.BotAPI the router uses.
type botClient interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetChat(config tgbotapi.ChatInfoConfig) (tgbotapi.Chat, error)
	GetUserProfilePhotos(config tgbotapi.UserProfilePhotosConfig) (tgbotapi.UserProfilePhotos, error)
	GetFile(config tgbotapi.FileConfig) (tgbotapi.File, error)
}

// HabitService is the backend gateway as seen from chat handlers.
type HabitService interface {
	Register(ctx context.Context, u backend.User) (string, error)
	RotateTokens(ctx context.Context, telegramID int64) (string, error)
	Habits(ctx context.Context, u backend.User) ([]domain.Habit, error)
	CompleteHabit(ctx context.Context, u backend.User, habitID int64) (domain.Habit, error)
	AddProgress(ctx context.Context, u backend.User, habitID int64, amount float64) (domain.Habit, error)
	Progress(ctx context.Context, u backend.User, period domain.Period) (domain.Progress, error)
	UndoHabit(ctx context.Context, u backend.User, habitID int64) (domain.Habit, error)
	Habit(ctx context.Context, u backend.User, habitID int64) (domain.Habit, error)
	CreateHabit(ctx context.Context, u backend.User, h backend.NewHabit) (domain.Habit, error)
	DeleteHabit(ctx context.Context, u backend.User, habitID int64) error
	CompleteAll(ctx context.Context, u backend.User) (int, error)
	Settings(ctx context.Context, u backend.User) (domain.NotificationSettings, error)
	SetDoNotDisturb(ctx context.Context, u backend.User, dnd bool) (domain.NotificationSettings, error)
	SetNotifyTimes(ctx context.Context, u backend.User, times []string) (domain.NotificationSettings, error)
	SetTimezone(ctx context.Context, u backend.User, tz string) (domain.NotificationSettings, error)
}

// ProfileStore keeps chat profiles next to the credentials.
type ProfileStore interface {
	GetRefreshToken(ctx context.Context, telegramID int64) (string, error)
	SaveAll(ctx context.Context, c *domain.Credentials) error
}

// Router wires Telegram updates to handlers and holds minimal in-memory state.
type Router struct {
	bot       botClient
	token     string
	log       *zap.Logger
	api       HabitService
	store     ProfileStore
	throttle  *Throttle
	webAppURL string

	state map[int64]pending // by chat id
	mu    sync.RWMutex
}

// NewRouter creates a new Telegram router.
func NewRouter(bot *tgbotapi.BotAPI, log *zap.Logger, api HabitService, store ProfileStore, throttle *Throttle, webAppURL string) *Router {
	return newRouter(bot, bot.Token, log, api, store, throttle, webAppURL)
}

func newRouter(bot botClient, token string, log *zap.Logger, api HabitService, store ProfileStore, throttle *Throttle, webAppURL string) *Router {
	return &Router{
		bot:       bot,
		token:     token,
		log:       log,
		api:       api,
		store:     store,
		throttle:  throttle,
		webAppURL: webAppURL,
		state:     make(map[int64]pending),
	}
}

func (r *Router) setPending(chatID int64, p pending) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state[chatID] = p
}

func (r *Router) getPending(chatID int64) pending {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state[chatID]
}

func (r *Router) clearPending(chatID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.state, chatID)
}

// HandleUpdate routes a single update to appropriate handler.
func (r *Router) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	if upd.Message != nil && upd.Message.From != nil {
		msg := upd.Message
		if !r.allow(msg.From.ID, msg.Chat.ID, EventMessage, "") {
			return
		}
		u := userOf(msg.From)
		chatID := msg.Chat.ID
		text := strings.TrimSpace(msg.Text)

		switch {
		case strings.HasPrefix(text, "/start"):
			r.clearPending(chatID)
			r.handleStart(ctx, chatID, u)
		case strings.HasPrefix(text, "/today"):
			r.clearPending(chatID)
			r.sendToday(ctx, chatID, u)
		case strings.HasPrefix(text, "/settings"):
			r.clearPending(chatID)
			r.sendSettings(ctx, chatID, u)
		case strings.HasPrefix(text, "/new"):
			r.clearPending(chatID)
			r.handleNewHabit(chatID, strings.TrimSpace(strings.TrimPrefix(text, "/new")))
		case strings.HasPrefix(text, "/progress"):
			r.clearPending(chatID)
			r.sendProgress(ctx, chatID, u, domain.PeriodWeek)
		default:
			r.handleFreeForm(ctx, chatID, u, text)
		}
		return
	}

	if upd.CallbackQuery != nil && upd.CallbackQuery.Message != nil {
		cb := upd.CallbackQuery
		if !r.allow(cb.From.ID, cb.Message.Chat.ID, EventCallback, cb.ID) {
			return
		}
		r.handleCallback(ctx, cb)
	}
}

func (r *Router) allow(userID, chatID int64, kind Event, callbackID string) bool {
	if r.throttle == nil {
		return true
	}
	d := r.throttle.Check(userID, kind)
	if d.Allowed {
		return true
	}
	if d.Warn {
		text := throttledText(d.Wait)
		if callbackID != "" {
			_ = r.answerAlert(callbackID, text)
		} else {
			r.sendText(chatID, text)
		}
	}
	if d.Abusive {
		r.log.Warn("user keeps exceeding rate limit", zap.Int64("telegramID", userID))
	}
	return false
}

func (r *Router) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	chatID := cb.Message.Chat.ID
	msgID := cb.Message.MessageID
	u := userOf(cb.From)
	data := cb.Data

	switch {
	case data == domain.CallbackOpenToday:
		_ = r.answerCallback(cb.ID, "")
		r.editToday(ctx, chatID, msgID, u)
	case data == domain.CallbackCompleteAll:
		r.handleCompleteAll(ctx, cb.ID, chatID, msgID, u)
	case data == domain.CallbackDisableReminders:
		r.handleDisableReminders(ctx, cb.ID, chatID, msgID, u)
	case strings.HasPrefix(data, cbDone):
		r.handleMark(ctx, cb.ID, chatID, msgID, u, strings.TrimPrefix(data, cbDone), true)
	case strings.HasPrefix(data, cbUndo):
		r.handleMark(ctx, cb.ID, chatID, msgID, u, strings.TrimPrefix(data, cbUndo), false)
	case strings.HasPrefix(data, cbDelete):
		r.handleDelete(ctx, cb.ID, chatID, msgID, u, strings.TrimPrefix(data, cbDelete))
	case strings.HasPrefix(data, cbAmount):
		r.handleAmountPrompt(ctx, cb.ID, chatID, u, strings.TrimPrefix(data, cbAmount))
	case strings.HasPrefix(data, cbProgress):
		r.handleProgressPeriod(ctx, cb.ID, chatID, msgID, u, strings.TrimPrefix(data, cbProgress))
	case strings.HasPrefix(data, cbHabitKind):
		r.handleHabitKind(ctx, cb.ID, chatID, u, strings.TrimPrefix(data, cbHabitKind))
	case strings.HasPrefix(data, cbHabitUnit):
		r.handleHabitUnit(ctx, cb.ID, chatID, u, strings.TrimPrefix(data, cbHabitUnit))
	case data == cbDNDToggle:
		r.handleDNDToggle(ctx, cb.ID, chatID, msgID, u)
	case data == cbSettings:
		_ = r.answerCallback(cb.ID, "")
		r.editSettings(ctx, chatID, msgID, u)
	case data == cbSetTimes:
		_ = r.answerCallback(cb.ID, "")
		r.setPending(chatID, pending{step: pendingTimes})
		r.sendText(chatID, askTimesText)
	case data == cbSetTZ:
		_ = r.answerCallback(cb.ID, "")
		r.setPending(chatID, pending{step: pendingTZ})
		r.sendText(chatID, askTZText)
	default:
		_ = r.answerCallback(cb.ID, "")
	}
}

func userOf(from *tgbotapi.User) backend.User {
	if from == nil {
		return backend.User{}
	}
	return backend.User{
		TelegramID: from.ID,
		Profile: domain.Profile{
			Username:  from.UserName,
			FirstName: from.FirstName,
			LastName:  from.LastName,
		},
	}
}
