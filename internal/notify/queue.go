package notify

import (
	"context"
	"database/sql"

	"github.com/oquvmarkaz/markaz-bot/internal/db"
	"github.com/oquvmarkaz/markaz-bot/internal/models"
)

// Enqueue кладёт готовый (уже отрендеренный) текст в очередь.
// phone непустой — к сообщению в чат добавится SMS-дубль, если для типа
// уведомления есть шаблон у SMS-провайдера.
func Enqueue(ctx context.Context, database *sql.DB, typ models.NotificationType, chatID int64, message, phone string) (int64, error) {
	n := models.Notification{
		Type:       typ,
		Message:    message,
		TelegramID: chatID,
	}
	if phone != "" {
		n.PhoneNumber = sql.NullString{String: phone, Valid: true}
	}
	return db.InsertNotification(ctx, database, n)
}

// EnqueueBroadcast — рассылка всем родителям (адресат — зарезервированный chatID).
func EnqueueBroadcast(ctx context.Context, database *sql.DB, message string) (int64, error) {
	return Enqueue(ctx, database, models.NotifyBroadcast, models.BroadcastChatID, message, "")
}
