package tg

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Notifier — чат-адаптер для диспетчера уведомлений: отправка текста
// в один чат с настраиваемой разметкой. Состояния не держит.
type Notifier struct {
	bot       *tgbotapi.BotAPI
	parseMode string // "" — без разметки
}

func NewNotifier(bot *tgbotapi.BotAPI, parseMode string) *Notifier {
	return &Notifier{bot: bot, parseMode: parseMode}
}

// SendText шлёт сообщение, уважая отмену контекста до фактического вызова API.
// Сам HTTP-вызов ограничен таймаутом клиента бота, заданным при старте.
func (n *Notifier) SendText(ctx context.Context, chatID int64, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(chatID, text)
	if n.parseMode != "" {
		msg.ParseMode = n.parseMode
	}
	_, err := Send(n.bot, msg)
	return err
}
