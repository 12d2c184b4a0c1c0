package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/oquvmarkaz/markaz-bot/internal/ctxutil"
	"github.com/oquvmarkaz/markaz-bot/internal/models"
)

const notificationCols = `id, type, message, telegram_id, phone_number, status, error, created_at, updated_at`

// InsertNotification ставит сообщение в очередь (status = WAITING).
func InsertNotification(ctx context.Context, database *sql.DB, n models.Notification) (int64, error) {
	ctx, cancel := ctxutil.WithDBTimeout(ctx)
	defer cancel()

	var id int64
	err := database.QueryRowContext(ctx, `
		INSERT INTO notifications (type, message, telegram_id, phone_number, status)
		VALUES ($1, $2, $3, $4, 'WAITING')
		RETURNING id`,
		n.Type, n.Message, n.TelegramID, n.PhoneNumber).Scan(&id)
	return id, err
}

// ListWaitingNotifications — очередь на отправку, от старых к новым.
func ListWaitingNotifications(ctx context.Context, database *sql.DB, limit int) ([]models.Notification, error) {
	ctx, cancel := ctxutil.WithDBTimeout(ctx)
	defer cancel()

	rows, err := database.QueryContext(ctx, `
		SELECT `+notificationCols+` FROM notifications
		WHERE status = 'WAITING'
		ORDER BY id
		LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return scanNotifications(rows)
}

// ListNotifications — аудит для админки; status="" — без фильтра.
func ListNotifications(ctx context.Context, database *sql.DB, status models.NotificationStatus, limit int) ([]models.Notification, error) {
	ctx, cancel := ctxutil.WithDBTimeout(ctx)
	defer cancel()

	query := `SELECT ` + notificationCols + ` FROM notifications`
	var args []any
	if status != "" {
		query += ` WHERE status = $1`
		args = append(args, status)
	}
	query += fmt.Sprintf(` ORDER BY id DESC LIMIT $%d`, len(args)+1)
	args = append(args, limit)

	rows, err := database.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return scanNotifications(rows)
}

// SetNotificationStatus — переход конечного автомата WAITING→SENDING→{SENT|ERROR}.
// errText пишется только для ERROR.
func SetNotificationStatus(ctx context.Context, database *sql.DB, id int64, status models.NotificationStatus, errText string) error {
	ctx, cancel := ctxutil.WithDBTimeout(ctx)
	defer cancel()

	var errVal sql.NullString
	if errText != "" {
		errVal = sql.NullString{String: errText, Valid: true}
	}
	_, err := database.ExecContext(ctx, `
		UPDATE notifications SET status = $1, error = $2, updated_at = now()
		WHERE id = $3`, status, errVal, id)
	return err
}

func scanNotifications(rows *sql.Rows) ([]models.Notification, error) {
	var out []models.Notification
	for rows.Next() {
		var n models.Notification
		if err := rows.Scan(&n.ID, &n.Type, &n.Message, &n.TelegramID, &n.PhoneNumber, &n.Status, &n.Error, &n.CreatedAt, &n.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}
