package domain

import (
	"errors"
	"math"
	"strconv"
	"strings"
)

// Period is the window of a progress report.
type Period string

const (
	PeriodToday Period = "today"
	PeriodWeek  Period = "week"
	PeriodMonth Period = "month"
)

// ParsePeriod accepts "today", "week" or "month".
func ParsePeriod(s string) (Period, bool) {
	switch p := Period(strings.TrimSpace(s)); p {
	case PeriodToday, PeriodWeek, PeriodMonth:
		return p, true
	}
	return "", false
}

// Days is the number of days the period covers.
func (p Period) Days() int {
	switch p {
	case PeriodToday:
		return 1
	case PeriodMonth:
		return 30
	default:
		return 7
	}
}

// HabitProgress is one habit's line in a report.
type HabitProgress struct {
	ID        int64
	Title     string
	Emoji     string
	Completed int
	Total     int
}

// Progress is a per-period summary over all habits.
type Progress struct {
	Period     Period
	Habits     []HabitProgress
	Completed  int
	Total      int
	BestTitle  string
	BestStreak int
}

// Percent is the overall completion rate, rounded down.
func (p Progress) Percent() int {
	if p.Total == 0 {
		return 0
	}
	return p.Completed * 100 / p.Total
}

// SummarizeProgress builds a report from today's habit list. The backend
// keeps no per-day history, so days completed within the period are
// derived from the current streak; for today the done flag is used.
func SummarizeProgress(habits []Habit, period Period) Progress {
	days := period.Days()
	out := Progress{Period: period}
	for _, h := range habits {
		done := min(h.Streak, days)
		if period == PeriodToday {
			done = 0
			if h.Completed {
				done = 1
			}
		}
		emoji := h.Emoji
		if emoji == "" {
			emoji = DefaultHabitEmoji
		}
		out.Habits = append(out.Habits, HabitProgress{
			ID:        h.ID,
			Title:     h.Title,
			Emoji:     emoji,
			Completed: done,
			Total:     days,
		})
		out.Completed += done
		out.Total += days
		if h.Streak > out.BestStreak {
			out.BestStreak = h.Streak
			out.BestTitle = h.Title
		}
	}
	return out
}

var ErrInvalidAmount = errors.New("amount must be a positive number")

// ParseAmount reads a positive decimal such as "2", "0.5" or "1,5".
func ParseAmount(s string) (float64, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", ".")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v <= 0 || math.IsInf(v, 0) || math.IsNaN(v) {
		return 0, ErrInvalidAmount
	}
	return v, nil
}

// ParseGoal reads a positive whole-number target for a new habit.
func ParseGoal(s string) (int, error) {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || v <= 0 {
		return 0, ErrInvalidAmount
	}
	return v, nil
}
