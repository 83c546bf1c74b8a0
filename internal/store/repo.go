package store

import (
	"context"
	"errors"

	"github.com/BlackMaN314/daily-routine-bot/internal/domain"
)

var (
	// ErrNotFound is returned when no credential record exists for a chat.
	ErrNotFound = errors.New("credentials not found")
	// ErrTokenWithoutUser is returned when saving an access token with no backend user id.
	ErrTokenWithoutUser = errors.New("access token requires backend user id")
)

// Repo is the per-chat credential store. Every write is a single statement,
// so concurrent writers for the same chat resolve as last-writer-wins.
type Repo interface {
	GetCredentials(ctx context.Context, telegramID int64) (*domain.Credentials, error)
	GetAccessToken(ctx context.Context, telegramID int64) (string, error)
	GetRefreshToken(ctx context.Context, telegramID int64) (string, error)
	GetBackendUserID(ctx context.Context, telegramID int64) (int64, bool, error)
	GetProfile(ctx context.Context, telegramID int64) (*domain.Profile, error)
	SaveAll(ctx context.Context, c *domain.Credentials) error
	UpdateAccessToken(ctx context.Context, telegramID int64, token string) error
	UpdateTokens(ctx context.Context, telegramID int64, access, refresh string) error
	ListTelegramIDs(ctx context.Context) ([]int64, error)
	Close() error
}
