package telegram

import (
	"context"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/BlackMaN314/daily-routine-bot/internal/backend"
	"github.com/BlackMaN314/daily-routine-bot/internal/domain"
)

type fakeBot struct {
	mu       sync.Mutex
	sent     []tgbotapi.Chattable
	requests []tgbotapi.Chattable
	sendErr  error
	nextID   int
	hang     chan struct{} // Send blocks until closed

	chat   tgbotapi.Chat
	photos tgbotapi.UserProfilePhotos
	file   tgbotapi.File
}

func (f *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if f.hang != nil {
		<-f.hang
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return tgbotapi.Message{}, f.sendErr
	}
	f.sent = append(f.sent, c)
	f.nextID++
	return tgbotapi.Message{MessageID: f.nextID}, nil
}

func (f *fakeBot) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeBot) GetChat(tgbotapi.ChatInfoConfig) (tgbotapi.Chat, error) { return f.chat, nil }

func (f *fakeBot) GetUserProfilePhotos(tgbotapi.UserProfilePhotosConfig) (tgbotapi.UserProfilePhotos, error) {
	return f.photos, nil
}

func (f *fakeBot) GetFile(tgbotapi.FileConfig) (tgbotapi.File, error) { return f.file, nil }

func (f *fakeBot) messages() []tgbotapi.MessageConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []tgbotapi.MessageConfig
	for _, c := range f.sent {
		if m, ok := c.(tgbotapi.MessageConfig); ok {
			out = append(out, m)
		}
	}
	return out
}

func (f *fakeBot) edits() []tgbotapi.EditMessageTextConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []tgbotapi.EditMessageTextConfig
	for _, c := range f.sent {
		if m, ok := c.(tgbotapi.EditMessageTextConfig); ok {
			out = append(out, m)
		}
	}
	return out
}

func (f *fakeBot) callbacks() []tgbotapi.CallbackConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []tgbotapi.CallbackConfig
	for _, c := range f.requests {
		if m, ok := c.(tgbotapi.CallbackConfig); ok {
			out = append(out, m)
		}
	}
	return out
}

type fakeHabits struct {
	habits    []domain.Habit
	settings  domain.NotificationSettings
	habitsErr error
	rotateErr error
	regErr    error

	registered []backend.User
	rotated    []int64
	completed  []int64
	undone     []int64
	created    []backend.NewHabit
	deleted    []int64
	createErr  error
	dnd        []bool
	times      [][]string
	timezones  []string
	amounts    map[int64][]float64
	periods    []domain.Period
}

func (f *fakeHabits) Register(_ context.Context, u backend.User) (string, error) {
	f.registered = append(f.registered, u)
	return "access", f.regErr
}

func (f *fakeHabits) RotateTokens(_ context.Context, id int64) (string, error) {
	f.rotated = append(f.rotated, id)
	return "access", f.rotateErr
}

func (f *fakeHabits) Habits(context.Context, backend.User) ([]domain.Habit, error) {
	return f.habits, f.habitsErr
}

func (f *fakeHabits) CompleteHabit(_ context.Context, _ backend.User, id int64) (domain.Habit, error) {
	f.completed = append(f.completed, id)
	return f.find(id), nil
}

func (f *fakeHabits) AddProgress(_ context.Context, _ backend.User, id int64, amount float64) (domain.Habit, error) {
	if f.amounts == nil {
		f.amounts = make(map[int64][]float64)
	}
	f.amounts[id] = append(f.amounts[id], amount)
	h := f.find(id)
	h.Progress += amount
	h.Completed = h.Goal > 0 && h.Progress >= h.Goal
	return h, nil
}

func (f *fakeHabits) Progress(_ context.Context, _ backend.User, period domain.Period) (domain.Progress, error) {
	f.periods = append(f.periods, period)
	if f.habitsErr != nil {
		return domain.Progress{}, f.habitsErr
	}
	return domain.SummarizeProgress(f.habits, period), nil
}

func (f *fakeHabits) UndoHabit(_ context.Context, _ backend.User, id int64) (domain.Habit, error) {
	f.undone = append(f.undone, id)
	return f.find(id), nil
}

func (f *fakeHabits) Habit(_ context.Context, _ backend.User, id int64) (domain.Habit, error) {
	return f.find(id), nil
}

func (f *fakeHabits) CreateHabit(_ context.Context, _ backend.User, h backend.NewHabit) (domain.Habit, error) {
	if f.createErr != nil {
		return domain.Habit{}, f.createErr
	}
	f.created = append(f.created, h)
	return domain.Habit{ID: int64(len(f.created)), Title: h.Title}, nil
}

func (f *fakeHabits) DeleteHabit(_ context.Context, _ backend.User, id int64) error {
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeHabits) find(id int64) domain.Habit {
	for _, h := range f.habits {
		if h.ID == id {
			return h
		}
	}
	return domain.Habit{ID: id}
}

func (f *fakeHabits) CompleteAll(context.Context, backend.User) (int, error) {
	pending, _ := domain.SplitHabits(f.habits)
	return len(pending), nil
}

func (f *fakeHabits) Settings(context.Context, backend.User) (domain.NotificationSettings, error) {
	return f.settings, nil
}

func (f *fakeHabits) SetDoNotDisturb(_ context.Context, _ backend.User, dnd bool) (domain.NotificationSettings, error) {
	f.dnd = append(f.dnd, dnd)
	f.settings.DoNotDisturb = dnd
	return f.settings, nil
}

func (f *fakeHabits) SetNotifyTimes(_ context.Context, _ backend.User, times []string) (domain.NotificationSettings, error) {
	f.times = append(f.times, times)
	f.settings.NotifyTimes = times
	return f.settings, nil
}

func (f *fakeHabits) SetTimezone(_ context.Context, _ backend.User, tz string) (domain.NotificationSettings, error) {
	f.timezones = append(f.timezones, tz)
	f.settings.Timezone = tz
	return f.settings, nil
}

type fakeProfileStore struct {
	refresh string
	saved   []*domain.Credentials
}

func (f *fakeProfileStore) GetRefreshToken(context.Context, int64) (string, error) {
	return f.refresh, nil
}

func (f *fakeProfileStore) SaveAll(_ context.Context, c *domain.Credentials) error {
	f.saved = append(f.saved, c)
	return nil
}

func newTestRouter(bot *fakeBot, api *fakeHabits, store *fakeProfileStore, throttle *Throttle) *Router {
	return newRouter(bot, "TOKEN", zap.NewNop(), api, store, throttle, "https://app.example")
}

func textUpdate(userID int64, text string) tgbotapi.Update {
	return tgbotapi.Update{Message: &tgbotapi.Message{
		Text: text,
		From: &tgbotapi.User{ID: userID, UserName: "alice", FirstName: "Alice"},
		Chat: &tgbotapi.Chat{ID: userID},
	}}
}

func callbackUpdate(userID int64, data string) tgbotapi.Update {
	return tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:   "cb-1",
		From: &tgbotapi.User{ID: userID},
		Data: data,
		Message: &tgbotapi.Message{
			MessageID: 99,
			Chat:      &tgbotapi.Chat{ID: userID},
		},
	}}
}
