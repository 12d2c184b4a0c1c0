package observability

import (
	"time"

	"github.com/getsentry/sentry-go"
)

// InitSentry подключает репортинг ошибок. Пустой DSN — штатный случай
// (локальная разработка): возвращается no-op flush, процесс живёт без Sentry.
func InitSentry(dsn, env, release string) (func(), error) {
	if dsn == "" {
		return func() {}, nil
	}
	err := sentry.Init(sentry.ClientOptions{
		Dsn:         dsn,
		Environment: env,
		Release:     release,
	})
	if err != nil {
		return func() {}, err
	}
	return func() { sentry.Flush(2 * time.Second) }, nil
}

// CaptureErr шлёт ошибку в Sentry; nil игнорируется, проверка на месте
// вызова не нужна.
func CaptureErr(err error) {
	if err == nil {
		return
	}
	sentry.CaptureException(err)
}
