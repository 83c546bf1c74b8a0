package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/BlackMaN314/daily-routine-bot/internal/domain"
)

// SendMessage sends text with an optional inline keyboard and returns the
// message id. It satisfies scheduler.Sender and notify.Sender.
func (r *Router) SendMessage(ctx context.Context, chatID int64, text string, kb domain.Keyboard) (int, error) {
	msg := tgbotapi.NewMessage(chatID, text)
	if markup, ok := inlineMarkup(kb); ok {
		msg.ReplyMarkup = markup
	}
	sent, err := withContext(ctx, func() (tgbotapi.Message, error) { return r.bot.Send(msg) })
	if err != nil {
		return 0, classifySendError(err)
	}
	return sent.MessageID, nil
}

// FetchProfile reads the display profile of a private chat, including a
// downloadable avatar URL when the user has one.
func (r *Router) FetchProfile(ctx context.Context, chatID int64) (domain.Profile, error) {
	return withContext(ctx, func() (domain.Profile, error) {
		chat, err := r.bot.GetChat(tgbotapi.ChatInfoConfig{ChatConfig: tgbotapi.ChatConfig{ChatID: chatID}})
		if err != nil {
			return domain.Profile{}, classifySendError(err)
		}
		return domain.Profile{
			Username:  chat.UserName,
			FirstName: chat.FirstName,
			LastName:  chat.LastName,
			PhotoURL:  r.photoURL(chatID),
		}, nil
	})
}

// withContext returns when fn does or when ctx ends, whichever comes first.
// The bot API takes no context, so an abandoned fn finishes in the background
// and its result is dropped.
func withContext[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn()
		done <- result{v, err}
	}()

	select {
	case res := <-done:
		return res.v, res.err
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// photoURL returns the link to the user's latest avatar or "".
func (r *Router) photoURL(userID int64) string {
	photos, err := r.bot.GetUserProfilePhotos(tgbotapi.UserProfilePhotosConfig{UserID: userID, Limit: 1})
	if err != nil || photos.TotalCount == 0 || len(photos.Photos) == 0 || len(photos.Photos[0]) == 0 {
		return ""
	}
	sizes := photos.Photos[0]
	file, err := r.bot.GetFile(tgbotapi.FileConfig{FileID: sizes[len(sizes)-1].FileID})
	if err != nil || file.FilePath == "" {
		return ""
	}
	return file.Link(r.token)
}

// classifySendError maps Telegram API failures onto domain errors:
// 403 means the user blocked the bot, 400 means the request itself was bad.
func classifySendError(err error) error {
	var apiErr *tgbotapi.Error
	if !errors.As(err, &apiErr) {
		return err
	}
	switch apiErr.Code {
	case http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrRecipientBlocked, apiErr.Message)
	case http.StatusBadRequest:
		return fmt.Errorf("%w: %s", domain.ErrBadRequest, apiErr.Message)
	default:
		return err
	}
}

func inlineMarkup(kb domain.Keyboard) (tgbotapi.InlineKeyboardMarkup, bool) {
	if kb.Empty() {
		return tgbotapi.InlineKeyboardMarkup{}, false
	}
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, row := range kb {
		var buttons []tgbotapi.InlineKeyboardButton
		for _, b := range row {
			switch {
			case b.Text == "":
				continue
			case b.URL != "":
				buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonURL(b.Text, b.URL))
			case b.CallbackData != "":
				buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(b.Text, b.CallbackData))
			}
		}
		if len(buttons) > 0 {
			rows = append(rows, buttons)
		}
	}
	if len(rows) == 0 {
		return tgbotapi.InlineKeyboardMarkup{}, false
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...), true
}
