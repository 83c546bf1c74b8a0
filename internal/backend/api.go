package backend

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/BlackMaN314/daily-routine-bot/internal/domain"
)

// Time units as the backend stores them.
const (
	UnitMinutes = "минут"
	UnitHours   = "часов"
)

// DefaultSettings is used when the backend has no settings for a user and
// refuses to create them.
var DefaultSettings = domain.NotificationSettings{
	NotifyTimes:  []string{"08:00"},
	DoNotDisturb: false,
	Timezone:     "Europe/Moscow",
}

type habitResource struct {
	ID           int64    `json:"id"`
	Title        string   `json:"title"`
	Type         string   `json:"type"`
	Format       string   `json:"format"`
	Value        float64  `json:"value"`
	Unit         string   `json:"unit"`
	IsDone       bool     `json:"is_done"`
	Progress     *float64 `json:"progress"`
	CurrentValue *float64 `json:"current_value"`
	Series       int      `json:"series"`
}

type settingsResource struct {
	NotifyTimes  []string `json:"notify_times"`
	DoNotDisturb bool     `json:"do_not_disturb"`
	Timezone     string   `json:"timezone"`
}

// NewHabit is the input of CreateHabit. A goal in UnitHours is stored
// in minutes.
type NewHabit struct {
	Title      string
	Timed      bool // "time" format when true, "count" otherwise
	Value      int
	Unit       string
	Beneficial bool
}

func mapHabit(h habitResource) domain.Habit {
	format := h.Format
	if format == "" {
		format = h.Type
	}
	kind := domain.HabitBoolean
	if format == "" || format == "time" || format == "count" {
		kind = domain.HabitQuantity
	}

	var progress float64
	switch {
	case h.Progress != nil && *h.Progress != 0:
		progress = *h.Progress
	case h.CurrentValue != nil && *h.CurrentValue != 0:
		progress = *h.CurrentValue
	case h.IsDone:
		progress = h.Value
	}

	goal, unit := h.Value, h.Unit
	if unit == UnitMinutes && goal >= 60 && int64(goal)%60 == 0 && goal == float64(int64(goal)) {
		goal /= 60
		progress /= 60
		unit = UnitHours
	}

	title := h.Title
	if title == "" {
		title = "Habit"
	}

	return domain.Habit{
		ID:        h.ID,
		Title:     title,
		Emoji:     domain.DefaultHabitEmoji,
		Type:      kind,
		Goal:      goal,
		Progress:  progress,
		Unit:      unit,
		Completed: h.IsDone,
		Streak:    h.Series,
	}
}

func mapSettings(s settingsResource) domain.NotificationSettings {
	tz := s.Timezone
	if tz == "" {
		tz = "UTC"
	}
	return domain.NotificationSettings{
		NotifyTimes:  s.NotifyTimes,
		DoNotDisturb: s.DoNotDisturb,
		Timezone:     tz,
	}
}

// Habits returns today's habits of u.
func (c *Client) Habits(ctx context.Context, u User) ([]domain.Habit, error) {
	var raw []habitResource
	if err := c.Call(ctx, Request{User: u, Method: http.MethodGet, Path: "/habits"}, &raw); err != nil {
		return nil, err
	}
	habits := make([]domain.Habit, 0, len(raw))
	for _, h := range raw {
		habits = append(habits, mapHabit(h))
	}
	return habits, nil
}

// Habit returns a single habit.
func (c *Client) Habit(ctx context.Context, u User, habitID int64) (domain.Habit, error) {
	var raw habitResource
	if err := c.Call(ctx, Request{User: u, Method: http.MethodGet, Path: habitPath(habitID)}, &raw); err != nil {
		return domain.Habit{}, err
	}
	return mapHabit(raw), nil
}

// CompleteHabit marks a habit done for today.
func (c *Client) CompleteHabit(ctx context.Context, u User, habitID int64) (domain.Habit, error) {
	return c.setDone(ctx, u, habitID, true)
}

// UndoHabit reverts today's completion of a habit.
func (c *Client) UndoHabit(ctx context.Context, u User, habitID int64) (domain.Habit, error) {
	return c.setDone(ctx, u, habitID, false)
}

func (c *Client) setDone(ctx context.Context, u User, habitID int64, done bool) (domain.Habit, error) {
	var raw habitResource
	err := c.Call(ctx, Request{
		User:   u,
		Method: http.MethodPatch,
		Path:   habitPath(habitID),
		Body:   map[string]bool{"is_done": done},
	}, &raw)
	if err != nil {
		return domain.Habit{}, err
	}
	return mapHabit(raw), nil
}

// AddProgress adds amount, in the habit's display unit, to today's progress
// and marks the habit done once the goal is reached.
func (c *Client) AddProgress(ctx context.Context, u User, habitID int64, amount float64) (domain.Habit, error) {
	if amount <= 0 {
		return domain.Habit{}, domain.ErrInvalidAmount
	}
	var raw habitResource
	if err := c.Call(ctx, Request{User: u, Method: http.MethodGet, Path: habitPath(habitID)}, &raw); err != nil {
		return domain.Habit{}, err
	}

	// Goals in whole hours are shown in hours but stored in minutes.
	if raw.Unit == UnitMinutes && mapHabit(raw).Unit == UnitHours {
		amount *= 60
	}
	var current float64
	switch {
	case raw.Progress != nil:
		current = *raw.Progress
	case raw.CurrentValue != nil:
		current = *raw.CurrentValue
	case raw.IsDone:
		current = raw.Value
	}
	total := current + amount

	var updated habitResource
	err := c.Call(ctx, Request{
		User:   u,
		Method: http.MethodPatch,
		Path:   habitPath(habitID),
		Body: map[string]any{
			"current_value": total,
			"is_done":       raw.Value > 0 && total >= raw.Value,
		},
	}, &updated)
	if err != nil {
		return domain.Habit{}, err
	}
	return mapHabit(updated), nil
}

// Progress summarizes completion over period from the current habit list.
func (c *Client) Progress(ctx context.Context, u User, period domain.Period) (domain.Progress, error) {
	habits, err := c.Habits(ctx, u)
	if err != nil {
		return domain.Progress{}, err
	}
	return domain.SummarizeProgress(habits, period), nil
}

// CompleteAll marks every pending habit done and returns how many were completed.
// It stops at the first failure.
func (c *Client) CompleteAll(ctx context.Context, u User) (int, error) {
	habits, err := c.Habits(ctx, u)
	if err != nil {
		return 0, err
	}
	pending, _ := domain.SplitHabits(habits)
	done := 0
	for _, h := range pending {
		if _, err := c.CompleteHabit(ctx, u, h.ID); err != nil {
			return done, err
		}
		done++
	}
	return done, nil
}

// CreateHabit creates a habit and returns it as stored by the backend.
func (c *Client) CreateHabit(ctx context.Context, u User, h NewHabit) (domain.Habit, error) {
	if h.Title == "" {
		return domain.Habit{}, errors.New("habit title is required")
	}
	format := "count"
	if h.Timed {
		format = "time"
	}
	kind := "harmful"
	if h.Beneficial {
		kind = "beneficial"
	}
	value, unit := h.Value, h.Unit
	if value <= 0 {
		value = 1
	}
	if unit == UnitHours {
		value, unit = value*60, UnitMinutes
	}
	payload := map[string]any{
		"title":     h.Title,
		"format":    format,
		"value":     value,
		"is_active": true,
		"type":      kind,
	}
	if unit != "" {
		payload["unit"] = unit
	}

	var raw habitResource
	if err := c.Call(ctx, Request{User: u, Method: http.MethodPost, Path: "/habits", Body: payload}, &raw); err != nil {
		return domain.Habit{}, err
	}
	return mapHabit(raw), nil
}

// DeleteHabit removes a habit.
func (c *Client) DeleteHabit(ctx context.Context, u User, habitID int64) error {
	return c.Call(ctx, Request{User: u, Method: http.MethodDelete, Path: habitPath(habitID)}, nil)
}

// Settings returns the notification settings of u. Missing settings are
// created with backend defaults; if that fails too, DefaultSettings is returned.
func (c *Client) Settings(ctx context.Context, u User) (domain.NotificationSettings, error) {
	var raw settingsResource
	err := c.Call(ctx, Request{User: u, Method: http.MethodGet, Path: "/user/me/settings"}, &raw)
	if err == nil {
		return mapSettings(raw), nil
	}
	if !IsNotFound(err) {
		return domain.NotificationSettings{}, err
	}

	err = c.Call(ctx, Request{User: u, Method: http.MethodPut, Path: "/user/me/settings", Body: struct{}{}}, &raw)
	if err == nil {
		return mapSettings(raw), nil
	}
	if KindOf(err) == KindBackend {
		c.log.Warn("settings create failed, using defaults", zap.Int64("telegramID", u.TelegramID), zap.Error(err))
		return DefaultSettings, nil
	}
	return domain.NotificationSettings{}, err
}

// SetDoNotDisturb toggles proactive reminders.
func (c *Client) SetDoNotDisturb(ctx context.Context, u User, dnd bool) (domain.NotificationSettings, error) {
	return c.patchSettings(ctx, u, map[string]any{"do_not_disturb": dnd})
}

// SetNotifyTimes replaces the reminder times; each must be HH:MM.
func (c *Client) SetNotifyTimes(ctx context.Context, u User, times []string) (domain.NotificationSettings, error) {
	norm := make([]string, 0, len(times))
	for _, t := range times {
		n, err := domain.NormalizeHHMM(t)
		if err != nil {
			return domain.NotificationSettings{}, err
		}
		norm = append(norm, n)
	}
	return c.patchSettings(ctx, u, map[string]any{"notify_times": norm})
}

// SetTimezone stores the IANA timezone used for reminders.
func (c *Client) SetTimezone(ctx context.Context, u User, tz string) (domain.NotificationSettings, error) {
	valid, err := domain.ValidateTZ(tz)
	if err != nil {
		return domain.NotificationSettings{}, fmt.Errorf("invalid timezone %q: %w", tz, err)
	}
	return c.patchSettings(ctx, u, map[string]any{"timezone": valid})
}

func (c *Client) patchSettings(ctx context.Context, u User, patch map[string]any) (domain.NotificationSettings, error) {
	var raw settingsResource
	if err := c.Call(ctx, Request{User: u, Method: http.MethodPatch, Path: "/user/me/settings", Body: patch}, &raw); err != nil {
		return domain.NotificationSettings{}, err
	}
	return mapSettings(raw), nil
}

// Ping checks that the backend answers HTTP at all.
func (c *Client) Ping(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if _, _, err := c.send(ctx, http.MethodGet, "/users", "", nil); err != nil {
		return unreachable(err)
	}
	return nil
}

func habitPath(id int64) string {
	return "/habits/" + strconv.FormatInt(id, 10)
}
