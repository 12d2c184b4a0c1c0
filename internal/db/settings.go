package db

import (
	"context"
	"database/sql"
	"errors"
	"strconv"

	"github.com/oquvmarkaz/markaz-bot/internal/ctxutil"
)

// GetSetting читает глобальную настройку (user_id = 0).
// Отсутствие ключа — не ошибка: ok=false, вызывающий берёт свой дефолт.
func GetSetting(ctx context.Context, database *sql.DB, key string) (string, bool, error) {
	return GetUserSetting(ctx, database, key, 0)
}

func GetUserSetting(ctx context.Context, database *sql.DB, key string, userID int64) (string, bool, error) {
	ctx, cancel := ctxutil.WithDBTimeout(ctx)
	defer cancel()

	var value string
	err := database.QueryRowContext(ctx,
		`SELECT value FROM settings WHERE key = $1 AND user_id = $2`, key, userID).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// GetSettingInt — числовая настройка с фолбэком def (нет ключа или мусор в value).
func GetSettingInt(ctx context.Context, database *sql.DB, key string, def int64) (int64, error) {
	raw, ok, err := GetSetting(ctx, database, key)
	if err != nil {
		return def, err
	}
	if !ok {
		return def, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return def, nil
	}
	return n, nil
}

func SetSetting(ctx context.Context, database *sql.DB, key string, userID int64, value string) error {
	ctx, cancel := ctxutil.WithDBTimeout(ctx)
	defer cancel()

	_, err := database.ExecContext(ctx, `
		INSERT INTO settings (key, user_id, value) VALUES ($1, $2, $3)
		ON CONFLICT (key, user_id) DO UPDATE SET value = excluded.value`,
		key, userID, value)
	return err
}
