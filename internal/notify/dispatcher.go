package notify

import (
	"context"
	"database/sql"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/oquvmarkaz/markaz-bot/internal/ctxutil"
	"github.com/oquvmarkaz/markaz-bot/internal/db"
	"github.com/oquvmarkaz/markaz-bot/internal/metrics"
	"github.com/oquvmarkaz/markaz-bot/internal/models"
	"github.com/oquvmarkaz/markaz-bot/internal/observability"
)

// ChatSender — канал чата (Telegram).
type ChatSender interface {
	SendText(ctx context.Context, chatID int64, text string) error
}

// SMSSender — канал SMS. Applicable=false — у провайдера нет шаблона
// для этого типа уведомления, SMS не отправляется.
type SMSSender interface {
	Applicable(typ models.NotificationType) bool
	SendTemplate(ctx context.Context, typ models.NotificationType, phone string, fields map[string]string) error
}

const cycleLimit = 100

// Dispatcher разгребает очередь уведомлений. Конечный автомат записи:
// WAITING → SENDING → {SENT | ERROR}, из терминальных состояний выхода нет,
// автоповторов нет — мёртвые письма разбираются руками.
type Dispatcher struct {
	db   *sql.DB
	chat ChatSender
	sms  SMSSender // nil — SMS-канал выключен
	log  *zap.Logger

	// цикл не реентерабелен: пока прошлый тик не дорисовал очередь,
	// новый пропускается
	busy atomic.Bool
}

func NewDispatcher(database *sql.DB, chat ChatSender, sms SMSSender, log *zap.Logger) *Dispatcher {
	return &Dispatcher{db: database, chat: chat, sms: sms, log: log}
}

// RunCycle — один проход по WAITING-уведомлениям в порядке постановки.
// Появившиеся во время прохода сообщения подождут следующего тика.
func (d *Dispatcher) RunCycle(ctx context.Context) error {
	if !d.busy.CompareAndSwap(false, true) {
		d.log.Debug("цикл рассылки ещё идёт, тик пропущен")
		return nil
	}
	defer d.busy.Store(false)

	waiting, err := db.ListWaitingNotifications(ctx, d.db, cycleLimit)
	if err != nil {
		return err
	}
	for _, n := range waiting {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		d.dispatchOne(ctx, n)
	}
	return nil
}

func (d *Dispatcher) dispatchOne(ctx context.Context, n models.Notification) {
	if err := db.SetNotificationStatus(ctx, d.db, n.ID, models.NotifSending, ""); err != nil {
		observability.CaptureErr(err)
		return
	}

	if n.TelegramID == models.BroadcastChatID {
		d.broadcast(ctx, n)
		return
	}

	sendCtx, cancel := ctxutil.WithSendTimeout(ctx)
	err := d.chat.SendText(sendCtx, n.TelegramID, n.Message)
	cancel()
	if err != nil {
		metrics.NotificationErrors.WithLabelValues("telegram").Inc()
		d.log.Warn("уведомление не доставлено",
			zap.Int64("notification_id", n.ID), zap.Error(err))
		if dbErr := db.SetNotificationStatus(ctx, d.db, n.ID, models.NotifError, err.Error()); dbErr != nil {
			observability.CaptureErr(dbErr)
		}
		return
	}
	metrics.NotificationsSent.WithLabelValues("telegram").Inc()

	// SMS-дубль: неудача не влияет ни на чат-канал, ни на итоговый статус
	if d.sms != nil && n.PhoneNumber.Valid && d.sms.Applicable(n.Type) {
		smsCtx, cancel := ctxutil.WithSendTimeout(ctx)
		if err := d.sms.SendTemplate(smsCtx, n.Type, n.PhoneNumber.String, map[string]string{"text": n.Message}); err != nil {
			metrics.NotificationErrors.WithLabelValues("sms").Inc()
			d.log.Warn("SMS-дубль не отправлен",
				zap.Int64("notification_id", n.ID), zap.Error(err))
		} else {
			metrics.NotificationsSent.WithLabelValues("sms").Inc()
		}
		cancel()
	}

	if err := db.SetNotificationStatus(ctx, d.db, n.ID, models.NotifSent, ""); err != nil {
		observability.CaptureErr(err)
	}
}

// broadcast — веерная рассылка всем родителям. Список чатов читается здесь,
// в момент отправки. Доставка best-effort: частные отказы считаем, но статус
// всё равно SENT — даже при нуле получателей.
func (d *Dispatcher) broadcast(ctx context.Context, n models.Notification) {
	chatIDs, err := db.ListAllParentChatIDs(ctx, d.db)
	if err != nil {
		observability.CaptureErr(err)
		if dbErr := db.SetNotificationStatus(ctx, d.db, n.ID, models.NotifError, err.Error()); dbErr != nil {
			observability.CaptureErr(dbErr)
		}
		return
	}

	var failed int
	for _, chatID := range chatIDs {
		sendCtx, cancel := ctxutil.WithSendTimeout(ctx)
		if err := d.chat.SendText(sendCtx, chatID, n.Message); err != nil {
			failed++
			metrics.NotificationErrors.WithLabelValues("telegram").Inc()
		} else {
			metrics.NotificationsSent.WithLabelValues("telegram").Inc()
		}
		cancel()
	}
	if failed > 0 {
		d.log.Warn("широковещательная рассылка: часть получателей недоступна",
			zap.Int64("notification_id", n.ID),
			zap.Int("total", len(chatIDs)), zap.Int("failed", failed))
	}
	if err := db.SetNotificationStatus(ctx, d.db, n.ID, models.NotifSent, ""); err != nil {
		observability.CaptureErr(err)
	}
}
