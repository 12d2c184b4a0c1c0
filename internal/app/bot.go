package app

import (
	"context"
	"database/sql"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/oquvmarkaz/markaz-bot/internal/db"
	"github.com/oquvmarkaz/markaz-bot/internal/notify"
	"github.com/oquvmarkaz/markaz-bot/internal/observability"
	"github.com/oquvmarkaz/markaz-bot/internal/sms"
	"github.com/oquvmarkaz/markaz-bot/internal/tg"
)

// Bot — входящая сторона Telegram: привязка чата родителя по номеру
// телефона и админская команда рассылки. Всё остальное делает админка по HTTP.
type Bot struct {
	api    *tgbotapi.BotAPI
	db     *sql.DB
	log    *zap.Logger
	admins map[int64]struct{}

	mu           sync.Mutex
	waitingPhone map[int64]bool // чаты, от которых ждём номер телефона
}

func NewBot(api *tgbotapi.BotAPI, database *sql.DB, log *zap.Logger, adminIDs []int64) *Bot {
	admins := make(map[int64]struct{}, len(adminIDs))
	for _, id := range adminIDs {
		admins[id] = struct{}{}
	}
	return &Bot{
		api:          api,
		db:           database,
		log:          log,
		admins:       admins,
		waitingPhone: map[int64]bool{},
	}
}

// Run крутит long polling до отмены контекста.
func (b *Bot) Run(ctx context.Context) {
	cmds := tgbotapi.NewSetMyCommands(
		tgbotapi.BotCommand{Command: "start", Description: "Привязать чат по номеру телефона"},
		tgbotapi.BotCommand{Command: "broadcast", Description: "Рассылка всем родителям (для администраторов)"},
	)
	if _, err := tg.Request(b.api, cmds); err != nil {
		b.log.Warn("команды бота не зарегистрированы", zap.Error(err))
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if update.Message == nil {
				continue
			}
			b.handleMessage(ctx, update.Message)
		}
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	text := strings.TrimSpace(msg.Text)

	switch {
	case text == "/start":
		b.setWaiting(chatID, true)
		b.reply(chatID, "Здравствуйте! Отправьте номер телефона, указанный при записи ребёнка (например, +998 90 123-45-67), чтобы получать уведомления центра.")

	case strings.HasPrefix(text, "/broadcast"):
		if _, ok := b.admins[chatID]; !ok {
			b.reply(chatID, "⚠️ Команда доступна только администраторам.")
			return
		}
		body := strings.TrimSpace(strings.TrimPrefix(text, "/broadcast"))
		if body == "" {
			b.reply(chatID, "Использование: /broadcast <текст сообщения>")
			return
		}
		if _, err := notify.EnqueueBroadcast(ctx, b.db, body); err != nil {
			observability.CaptureErr(err)
			b.reply(chatID, "Не удалось поставить рассылку в очередь.")
			return
		}
		b.reply(chatID, "Рассылка поставлена в очередь.")

	case b.isWaiting(chatID):
		b.linkParent(ctx, chatID, text)

	default:
		b.reply(chatID, "⚠️ Неизвестная команда. Используйте /start")
	}
}

// linkParent привязывает chatID ко всем контактам с этим телефоном.
func (b *Bot) linkParent(ctx context.Context, chatID int64, raw string) {
	phone, err := sms.NormalizePhone(raw)
	if err != nil {
		b.reply(chatID, "Не получилось разобрать номер. Отправьте его в формате +998 XX XXX-XX-XX.")
		return
	}

	linked, err := db.LinkParentTelegram(ctx, b.db, phone, chatID)
	if err != nil {
		observability.CaptureErr(err)
		b.reply(chatID, "Временная ошибка, попробуйте ещё раз позже.")
		return
	}
	if linked == 0 {
		b.reply(chatID, "Этот номер не найден среди контактов центра. Уточните номер у администратора.")
		return
	}
	b.setWaiting(chatID, false)
	b.log.Info("родитель привязал чат", zap.Int64("chat_id", chatID))
	b.reply(chatID, "Готово! Теперь уведомления о посещаемости и оплате будут приходить сюда.")
}

func (b *Bot) reply(chatID int64, text string) {
	if _, err := tg.Send(b.api, tgbotapi.NewMessage(chatID, text)); err != nil {
		b.log.Warn("ответ в чат не доставлен", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

func (b *Bot) setWaiting(chatID int64, v bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if v {
		b.waitingPhone[chatID] = true
	} else {
		delete(b.waitingPhone, chatID)
	}
}

func (b *Bot) isWaiting(chatID int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.waitingPhone[chatID]
}
