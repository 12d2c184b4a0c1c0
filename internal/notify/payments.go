package notify

import (
	"context"
	"database/sql"

	"go.uber.org/zap"

	"github.com/oquvmarkaz/markaz-bot/internal/db"
	"github.com/oquvmarkaz/markaz-bot/internal/models"
)

const defaultTmplPayment = "Напоминаем об оплате обучения для {studentName}."

// EnqueuePaymentReminders ставит напоминание об оплате родителям всех
// активных должников. Возвращает число поставленных уведомлений.
// Дёргается админкой, обычно раз в день.
func EnqueuePaymentReminders(ctx context.Context, database *sql.DB, log *zap.Logger) (int, error) {
	debtors, err := db.ListDebtors(ctx, database)
	if err != nil {
		return 0, err
	}

	tmpl, ok, err := db.GetSetting(ctx, database, "tmpl_payment")
	if err != nil || !ok {
		tmpl = defaultTmplPayment
	}

	var queued int
	for _, student := range debtors {
		parents, err := db.ListParentsOfStudent(ctx, database, student.ID)
		if err != nil {
			return queued, err
		}
		if len(parents) == 0 {
			continue
		}
		message := Render(tmpl, map[string]string{"studentName": student.Name})
		for _, p := range parents {
			if p.TelegramID == 0 {
				continue
			}
			if _, err := Enqueue(ctx, database, models.NotifyPayment, p.TelegramID, message, p.Phone); err != nil {
				log.Error("напоминание об оплате не поставлено",
					zap.Int64("student_id", student.ID), zap.Error(err))
				continue
			}
			queued++
		}
	}
	return queued, nil
}
