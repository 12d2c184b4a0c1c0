package ctxutil

import (
	"context"
	"time"
)

// Таймауты: общий и для БД.
var (
	DefaultDBTimeout   = 5 * time.Second
	DefaultSendTimeout = 10 * time.Second
)

// WithTimeout — удобная обёртка над context.WithTimeout.
func WithTimeout(parent context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		// на всякий случай: если d<=0 — без таймаута
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, d)
}

// WithDBTimeout — стандартный таймаут для запроса к БД.
func WithDBTimeout(parent context.Context) (context.Context, context.CancelFunc) {
	if dl, ok := parent.Deadline(); ok {
		// если у родителя осталось меньше DefaultDBTimeout — берём остаток
		remain := time.Until(dl)
		if remain < DefaultDBTimeout {
			return context.WithTimeout(parent, remain)
		}
	}
	return context.WithTimeout(parent, DefaultDBTimeout)
}

// WithSendTimeout — ограничение на один вызов канала доставки,
// чтобы зависший шлюз не останавливал весь цикл рассылки.
func WithSendTimeout(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, DefaultSendTimeout)
}
