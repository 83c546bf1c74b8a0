package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/BlackMaN314/daily-routine-bot/internal/domain"
)

type notifyRequest struct {
	TelegramID any `json:"telegram_id"`
	Message    any `json:"message"`
	Keyboard   any `json:"keyboard"`
}

type notifyResponse struct {
	Success    bool  `json:"success"`
	MessageID  int   `json:"message_id"`
	TelegramID int64 `json:"telegram_id"`
}

type errorResponse struct {
	Error      string `json:"error"`
	TelegramID *int64 `json:"telegram_id,omitempty"`
}

var (
	errMissingID = errors.New("telegram_id is required")
	errInvalidID = errors.New("telegram_id must be a valid integer")
)

func (s *Server) handleNotify(c echo.Context) error {
	var req notifyRequest
	dec := json.NewDecoder(c.Request().Body)
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "Invalid request: " + err.Error()})
	}

	chatID, err := parseTelegramID(req.TelegramID)
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
	}

	text, ok := req.Message.(string)
	if !ok || strings.TrimSpace(text) == "" {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "message is required and must be a non-empty string"})
	}

	kb := ParseKeyboard(req.Keyboard)

	ctx, cancel := context.WithTimeout(c.Request().Context(), s.sendTimeout)
	defer cancel()
	msgID, err := s.sender.SendMessage(ctx, chatID, text, kb)
	switch {
	case errors.Is(err, domain.ErrRecipientBlocked):
		s.log.Info("push target blocked the bot", zap.Int64("telegramID", chatID))
		return c.JSON(http.StatusForbidden, errorResponse{Error: "User blocked the bot", TelegramID: &chatID})
	case errors.Is(err, domain.ErrBadRequest):
		s.log.Error("push rejected by platform", zap.Int64("telegramID", chatID), zap.Error(err))
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "Telegram API error: " + err.Error(), TelegramID: &chatID})
	case err != nil:
		s.log.Error("push delivery failed", zap.Int64("telegramID", chatID), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: "Failed to send message: " + err.Error(), TelegramID: &chatID})
	}

	return c.JSON(http.StatusOK, notifyResponse{Success: true, MessageID: msgID, TelegramID: chatID})
}

// parseTelegramID accepts a JSON integer or a numeric string.
func parseTelegramID(v any) (int64, error) {
	switch id := v.(type) {
	case nil:
		return 0, errMissingID
	case json.Number:
		if n, err := id.Int64(); err == nil {
			return n, nil
		}
		// 1e3 style integers still count, fractions do not.
		f, err := id.Float64()
		if err != nil || f != math.Trunc(f) || math.Abs(f) > math.MaxInt64 {
			return 0, errInvalidID
		}
		return int64(f), nil
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(id), 10, 64)
		if err != nil {
			return 0, errInvalidID
		}
		return n, nil
	default:
		return 0, errInvalidID
	}
}

// ParseKeyboard converts a loosely typed button grid. Buttons need text and
// exactly one of url or callback_data; anything else is dropped, as are
// rows left empty.
func ParseKeyboard(v any) domain.Keyboard {
	rows, ok := v.([]any)
	if !ok {
		return nil
	}

	var kb domain.Keyboard
	for _, r := range rows {
		cells, ok := r.([]any)
		if !ok {
			continue
		}
		var row []domain.Button
		for _, cell := range cells {
			if b, ok := parseButton(cell); ok {
				row = append(row, b)
			}
		}
		if len(row) > 0 {
			kb = append(kb, row)
		}
	}
	return kb
}

func parseButton(v any) (domain.Button, bool) {
	m, ok := v.(map[string]any)
	if !ok {
		return domain.Button{}, false
	}
	text := stringField(m, "text")
	url := stringField(m, "url")
	data := stringField(m, "callback_data")
	if text == "" || (url == "") == (data == "") {
		return domain.Button{}, false
	}
	return domain.Button{Text: text, URL: url, CallbackData: data}, true
}

func stringField(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}
