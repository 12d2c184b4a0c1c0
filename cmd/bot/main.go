package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/oquvmarkaz/markaz-bot/internal/app"
	"github.com/oquvmarkaz/markaz-bot/internal/attendance"
	"github.com/oquvmarkaz/markaz-bot/internal/billing"
	"github.com/oquvmarkaz/markaz-bot/internal/config"
	"github.com/oquvmarkaz/markaz-bot/internal/db"
	"github.com/oquvmarkaz/markaz-bot/internal/jobs"
	"github.com/oquvmarkaz/markaz-bot/internal/logging"
	"github.com/oquvmarkaz/markaz-bot/internal/notify"
	"github.com/oquvmarkaz/markaz-bot/internal/observability"
	"github.com/oquvmarkaz/markaz-bot/internal/sms"
	"github.com/oquvmarkaz/markaz-bot/internal/tg"
)

func main() {
	if err := godotenv.Load(); err != nil {
		// не фатально: на проде переменные приходят из окружения
		_, _ = os.Stderr.WriteString(".env не найден, используем переменные окружения\n")
	}

	cfg, err := config.Load()
	if err != nil {
		_, _ = os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(2)
	}

	lg, err := logging.Init(cfg.LogLevel, cfg.Env)
	if err != nil {
		_, _ = os.Stderr.WriteString("logger: " + err.Error() + "\n")
		os.Exit(2)
	}
	defer lg.Closer()
	log := lg.Base

	flush, err := observability.InitSentry(cfg.SentryDSN, cfg.Env, "markaz-bot")
	if err != nil {
		log.Warn("sentry не инициализирован", zap.Error(err))
	}
	defer flush()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	database, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal("подключение к БД", zap.Error(err))
	}
	defer func() { _ = database.Close() }()

	if err := db.Migrate(database); err != nil {
		log.Fatal("миграции", zap.Error(err))
	}

	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		log.Fatal("запуск Telegram-бота", zap.Error(err))
	}
	// ограничиваем каждый вызов Bot API, чтобы один зависший send
	// не останавливал цикл рассылки
	bot.Client = &http.Client{Timeout: 15 * time.Second}
	log.Info("бот запущен", zap.String("username", bot.Self.UserName))

	ledger := billing.NewLedger(database, log)
	detector := attendance.NewDetector(database, log)
	recorder := attendance.NewRecorder(database, ledger, detector, log, cfg.Location)

	smsClient := sms.New(cfg.SMSBaseURL, cfg.SMSLogin, cfg.SMSPassword, cfg.SMSSender, log)
	notifier := tg.NewNotifier(bot, "")
	var smsSender notify.SMSSender
	if smsClient != nil {
		smsSender = smsClient
	}
	dispatcher := notify.NewDispatcher(database, notifier, smsSender, log)

	runner := jobs.New(ctx)
	runner.Every(cfg.DispatchInterval, "notify_dispatch", dispatcher.RunCycle)

	app.StartHTTP(ctx, cfg.HTTPAddr, &app.API{
		DB:       database,
		Recorder: recorder,
		Log:      log,
		Location: cfg.Location,
	})

	app.NewBot(bot, database, log, cfg.AdminIDs).Run(ctx)

	log.Info("остановка по сигналу")
}
