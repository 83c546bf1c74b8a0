package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	// Registers the "sqlite" driver (pure Go).
	_ "modernc.org/sqlite"

	"github.com/BlackMaN314/daily-routine-bot/internal/domain"
)

// SQLiteRepo implements Repo using an embedded SQLite database.
type SQLiteRepo struct{ db *sql.DB }

// OpenSQLite opens (or creates) the SQLite database at the given path,
// applies recommended PRAGMAs, runs SQL migrations, and returns a repository.
func OpenSQLite(ctx context.Context, path string) (*SQLiteRepo, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// Reasonable pooling for SQLite; it's a single-writer engine.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := applyPragmas(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply pragmas: %w", err)
	}
	if err := RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}

	return &SQLiteRepo{db: db}, nil
}

// applyPragmas configures the SQLite connection for durability and concurrency.
func applyPragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA foreign_keys=ON;",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the underlying database resources.
func (r *SQLiteRepo) Close() error {
	return r.db.Close()
}

// SaveAll upserts a credential record in one statement. Empty fields of c
// keep whatever is already stored, so callers may pass partial records.
func (r *SQLiteRepo) SaveAll(ctx context.Context, c *domain.Credentials) error {
	if c == nil {
		return errors.New("nil credentials")
	}
	if c.AccessToken != "" && c.BackendUserID == nil {
		return ErrTokenWithoutUser
	}

	now := time.Now().UTC().Unix()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO credentials (
			telegram_id, access_token, refresh_token, backend_user_id,
			username, first_name, last_name, photo_url, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(telegram_id) DO UPDATE SET
			access_token    = COALESCE(excluded.access_token, credentials.access_token),
			refresh_token   = COALESCE(excluded.refresh_token, credentials.refresh_token),
			backend_user_id = COALESCE(excluded.backend_user_id, credentials.backend_user_id),
			username        = COALESCE(excluded.username, credentials.username),
			first_name      = COALESCE(excluded.first_name, credentials.first_name),
			last_name       = COALESCE(excluded.last_name, credentials.last_name),
			photo_url       = COALESCE(excluded.photo_url, credentials.photo_url),
			updated_at      = excluded.updated_at`,
		c.TelegramID,
		toNullString(c.AccessToken), toNullString(c.RefreshToken), toNullInt64(c.BackendUserID),
		toNullString(c.Profile.Username), toNullString(c.Profile.FirstName),
		toNullString(c.Profile.LastName), toNullString(c.Profile.PhotoURL),
		now, now,
	)
	return err
}

// GetCredentials returns the full record for a chat or ErrNotFound.
func (r *SQLiteRepo) GetCredentials(ctx context.Context, telegramID int64) (*domain.Credentials, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT access_token, refresh_token, backend_user_id,
		       username, first_name, last_name, photo_url
		FROM credentials
		WHERE telegram_id = ?`,
		telegramID,
	)

	var (
		access, refresh                         sql.NullString
		userID                                  sql.NullInt64
		username, firstName, lastName, photoURL sql.NullString
	)
	if err := row.Scan(&access, &refresh, &userID, &username, &firstName, &lastName, &photoURL); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	return &domain.Credentials{
		TelegramID:    telegramID,
		AccessToken:   access.String,
		RefreshToken:  refresh.String,
		BackendUserID: fromNullInt64(userID),
		Profile: domain.Profile{
			Username:  username.String,
			FirstName: firstName.String,
			LastName:  lastName.String,
			PhotoURL:  photoURL.String,
		},
	}, nil
}

// GetAccessToken returns the stored access token, or "" when there is none.
func (r *SQLiteRepo) GetAccessToken(ctx context.Context, telegramID int64) (string, error) {
	return r.nullableText(ctx, `SELECT access_token FROM credentials WHERE telegram_id = ?`, telegramID)
}

// GetRefreshToken returns the stored refresh token, or "" when there is none.
func (r *SQLiteRepo) GetRefreshToken(ctx context.Context, telegramID int64) (string, error) {
	return r.nullableText(ctx, `SELECT refresh_token FROM credentials WHERE telegram_id = ?`, telegramID)
}

func (r *SQLiteRepo) nullableText(ctx context.Context, query string, telegramID int64) (string, error) {
	var v sql.NullString
	err := r.db.QueryRowContext(ctx, query, telegramID).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return v.String, nil
}

// GetBackendUserID returns the backend account id and whether it is known.
func (r *SQLiteRepo) GetBackendUserID(ctx context.Context, telegramID int64) (int64, bool, error) {
	var v sql.NullInt64
	err := r.db.QueryRowContext(ctx,
		`SELECT backend_user_id FROM credentials WHERE telegram_id = ?`, telegramID,
	).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return v.Int64, v.Valid, nil
}

// GetProfile returns the cached profile, or nil when the chat is unknown.
func (r *SQLiteRepo) GetProfile(ctx context.Context, telegramID int64) (*domain.Profile, error) {
	c, err := r.GetCredentials(ctx, telegramID)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c.Profile, nil
}

// UpdateAccessToken replaces the access token in place. It is a no-op when
// the record is absent or has no backend user id yet.
func (r *SQLiteRepo) UpdateAccessToken(ctx context.Context, telegramID int64, token string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE credentials
		SET access_token = ?, updated_at = ?
		WHERE telegram_id = ? AND backend_user_id IS NOT NULL`,
		toNullString(token), time.Now().UTC().Unix(), telegramID,
	)
	return err
}

// UpdateTokens rotates both tokens in place, with the same guard as UpdateAccessToken.
func (r *SQLiteRepo) UpdateTokens(ctx context.Context, telegramID int64, access, refresh string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE credentials
		SET access_token = ?, refresh_token = ?, updated_at = ?
		WHERE telegram_id = ? AND backend_user_id IS NOT NULL`,
		toNullString(access), toNullString(refresh), time.Now().UTC().Unix(), telegramID,
	)
	return err
}

// ListTelegramIDs returns every known chat id in ascending order.
func (r *SQLiteRepo) ListTelegramIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT telegram_id FROM credentials ORDER BY telegram_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}
