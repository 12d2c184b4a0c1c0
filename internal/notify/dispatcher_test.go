//go:build testutil
// +build testutil

package notify_test

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/oquvmarkaz/markaz-bot/internal/models"
	"github.com/oquvmarkaz/markaz-bot/internal/notify"
	"github.com/oquvmarkaz/markaz-bot/internal/testutil/testdb"
)

type fakeChat struct {
	mu      sync.Mutex
	sent    []int64
	fail    bool
	failFor map[int64]bool // отказ только для перечисленных чатов
}

func (f *fakeChat) SendText(_ context.Context, chatID int64, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail || f.failFor[chatID] {
		return errors.New("chat not found")
	}
	f.sent = append(f.sent, chatID)
	return nil
}

// blockingChat виснет в отправке, пока тест не отпустит release.
type blockingChat struct {
	entered chan struct{}
	release chan struct{}
}

func (c *blockingChat) SendText(_ context.Context, _ int64, _ string) error {
	c.entered <- struct{}{}
	<-c.release
	return nil
}

type fakeSMS struct {
	calls int
	fail  bool
}

func (f *fakeSMS) Applicable(typ models.NotificationType) bool {
	return typ == models.NotifyAttendance
}

func (f *fakeSMS) SendTemplate(_ context.Context, _ models.NotificationType, _ string, _ map[string]string) error {
	f.calls++
	if f.fail {
		return errors.New("gateway down")
	}
	return nil
}

func getNotification(t *testing.T, dbx *sql.DB, id int64) models.Notification {
	t.Helper()
	var n models.Notification
	err := dbx.QueryRow(`
		SELECT id, status, COALESCE(error, '') FROM notifications WHERE id = $1`, id).
		Scan(&n.ID, &n.Status, &n.Error.String)
	if err != nil {
		t.Fatal(err)
	}
	return n
}

func seedParentChat(t *testing.T, dbx *sql.DB, chatID int64) {
	t.Helper()
	var sid int64
	if err := dbx.QueryRow(`INSERT INTO students (name) VALUES ('Ученик') RETURNING id`).Scan(&sid); err != nil {
		t.Fatal(err)
	}
	if _, err := dbx.Exec(`
		INSERT INTO parents (student_id, name, phone, telegram_id)
		VALUES ($1, 'Родитель', '998900000000', $2)`, sid, chatID); err != nil {
		t.Fatal(err)
	}
}

func TestDispatcher_WaitingToSent(t *testing.T) {
	ctx := context.Background()
	h, err := testdb.Start(ctx)
	if err != nil {
		t.Fatal(err)
	}
	defer h.Close()

	id, err := notify.Enqueue(ctx, h.DB, models.NotifyPayment, 42, "Оплатите обучение", "")
	if err != nil {
		t.Fatal(err)
	}

	chat := &fakeChat{}
	d := notify.NewDispatcher(h.DB, chat, nil, zap.NewNop())
	if err := d.RunCycle(ctx); err != nil {
		t.Fatal(err)
	}

	n := getNotification(t, h.DB, id)
	if n.Status != models.NotifSent {
		t.Fatalf("статус %s, ожидали SENT", n.Status)
	}
	if len(chat.sent) != 1 || chat.sent[0] != 42 {
		t.Fatalf("отправки: %v", chat.sent)
	}

	// повторный цикл ничего не переотправляет
	if err := d.RunCycle(ctx); err != nil {
		t.Fatal(err)
	}
	if len(chat.sent) != 1 {
		t.Fatalf("после второго цикла отправок %d, ожидали 1", len(chat.sent))
	}
}

func TestDispatcher_SendFailureIsTerminalError(t *testing.T) {
	ctx := context.Background()
	h, err := testdb.Start(ctx)
	if err != nil {
		t.Fatal(err)
	}
	defer h.Close()

	id, err := notify.Enqueue(ctx, h.DB, models.NotifyOther, 99, "текст", "")
	if err != nil {
		t.Fatal(err)
	}

	chat := &fakeChat{fail: true}
	d := notify.NewDispatcher(h.DB, chat, nil, zap.NewNop())
	if err := d.RunCycle(ctx); err != nil {
		t.Fatal(err)
	}

	n := getNotification(t, h.DB, id)
	if n.Status != models.NotifError {
		t.Fatalf("статус %s, ожидали ERROR", n.Status)
	}
	if n.Error.String == "" {
		t.Fatal("текст ошибки должен быть записан")
	}

	// автоповторов нет: следующий цикл не трогает мёртвое письмо
	chat.fail = false
	if err := d.RunCycle(ctx); err != nil {
		t.Fatal(err)
	}
	if got := getNotification(t, h.DB, id); got.Status != models.NotifError {
		t.Fatalf("статус изменился на %s, ERROR терминален", got.Status)
	}
}

// Широковещательная рассылка best-effort: ноль получателей — всё равно SENT.
func TestDispatcher_BroadcastZeroGuardiansStillSent(t *testing.T) {
	ctx := context.Background()
	h, err := testdb.Start(ctx)
	if err != nil {
		t.Fatal(err)
	}
	defer h.Close()

	id, err := notify.EnqueueBroadcast(ctx, h.DB, "Центр не работает 21 марта")
	if err != nil {
		t.Fatal(err)
	}

	chat := &fakeChat{}
	d := notify.NewDispatcher(h.DB, chat, nil, zap.NewNop())
	if err := d.RunCycle(ctx); err != nil {
		t.Fatal(err)
	}

	if n := getNotification(t, h.DB, id); n.Status != models.NotifSent {
		t.Fatalf("статус %s, ожидали SENT", n.Status)
	}
	if len(chat.sent) != 0 {
		t.Fatalf("отправок быть не должно: %v", chat.sent)
	}
}

func TestDispatcher_BroadcastFansOutToLinkedParents(t *testing.T) {
	ctx := context.Background()
	h, err := testdb.Start(ctx)
	if err != nil {
		t.Fatal(err)
	}
	defer h.Close()

	seedParentChat(t, h.DB, 700)
	seedParentChat(t, h.DB, 701)
	seedParentChat(t, h.DB, 0) // не привязан — не получает

	id, err := notify.EnqueueBroadcast(ctx, h.DB, "Собрание в субботу")
	if err != nil {
		t.Fatal(err)
	}

	chat := &fakeChat{}
	d := notify.NewDispatcher(h.DB, chat, nil, zap.NewNop())
	if err := d.RunCycle(ctx); err != nil {
		t.Fatal(err)
	}

	if n := getNotification(t, h.DB, id); n.Status != models.NotifSent {
		t.Fatalf("статус %s, ожидали SENT", n.Status)
	}
	if len(chat.sent) != 2 {
		t.Fatalf("веер на %v, ожидали два привязанных чата", chat.sent)
	}
}

// Веер доставляется best-effort: упавший получатель считается, но не
// обрывает рассылку и не меняет итоговый SENT.
func TestDispatcher_BroadcastPartialFailureStillSent(t *testing.T) {
	ctx := context.Background()
	h, err := testdb.Start(ctx)
	if err != nil {
		t.Fatal(err)
	}
	defer h.Close()

	seedParentChat(t, h.DB, 700)
	seedParentChat(t, h.DB, 701)

	id, err := notify.EnqueueBroadcast(ctx, h.DB, "Каникулы с понедельника")
	if err != nil {
		t.Fatal(err)
	}

	chat := &fakeChat{failFor: map[int64]bool{700: true}}
	d := notify.NewDispatcher(h.DB, chat, nil, zap.NewNop())
	if err := d.RunCycle(ctx); err != nil {
		t.Fatal(err)
	}

	if n := getNotification(t, h.DB, id); n.Status != models.NotifSent {
		t.Fatalf("статус %s, ожидали SENT при частичном сбое", n.Status)
	}
	if len(chat.sent) != 1 || chat.sent[0] != 701 {
		t.Fatalf("живой получатель должен получить сообщение: %v", chat.sent)
	}
}

// Циклы не пересекаются: пока один разгребает очередь, конкурентный вызов
// возвращается сразу и ничего не трогает.
func TestDispatcher_CyclesDoNotOverlap(t *testing.T) {
	ctx := context.Background()
	h, err := testdb.Start(ctx)
	if err != nil {
		t.Fatal(err)
	}
	defer h.Close()

	id1, err := notify.Enqueue(ctx, h.DB, models.NotifyOther, 10, "первое", "")
	if err != nil {
		t.Fatal(err)
	}
	id2, err := notify.Enqueue(ctx, h.DB, models.NotifyOther, 11, "второе", "")
	if err != nil {
		t.Fatal(err)
	}

	chat := &blockingChat{entered: make(chan struct{}, 2), release: make(chan struct{})}
	d := notify.NewDispatcher(h.DB, chat, nil, zap.NewNop())

	done := make(chan error, 1)
	go func() { done <- d.RunCycle(ctx) }()
	<-chat.entered // первый цикл завис внутри отправки

	if err := d.RunCycle(ctx); err != nil {
		t.Fatal(err)
	}
	if n := getNotification(t, h.DB, id2); n.Status != models.NotifWaiting {
		t.Fatalf("конкурентный цикл тронул очередь: статус %s", n.Status)
	}

	close(chat.release)
	if err := <-done; err != nil {
		t.Fatal(err)
	}
	for _, id := range []int64{id1, id2} {
		if n := getNotification(t, h.DB, id); n.Status != models.NotifSent {
			t.Fatalf("уведомление %d: статус %s, ожидали SENT", id, n.Status)
		}
	}
}

// SMS-дубль: отказ SMS не меняет терминальный статус чат-канала.
func TestDispatcher_SMSFailureDoesNotAffectOutcome(t *testing.T) {
	ctx := context.Background()
	h, err := testdb.Start(ctx)
	if err != nil {
		t.Fatal(err)
	}
	defer h.Close()

	id, err := notify.Enqueue(ctx, h.DB, models.NotifyAttendance, 42, "Пропуск занятия", "998901234567")
	if err != nil {
		t.Fatal(err)
	}

	chat := &fakeChat{}
	sms := &fakeSMS{fail: true}
	d := notify.NewDispatcher(h.DB, chat, sms, zap.NewNop())
	if err := d.RunCycle(ctx); err != nil {
		t.Fatal(err)
	}

	if n := getNotification(t, h.DB, id); n.Status != models.NotifSent {
		t.Fatalf("статус %s, ожидали SENT несмотря на отказ SMS", n.Status)
	}
	if sms.calls != 1 {
		t.Fatalf("SMS вызвана %d раз, ожидали 1", sms.calls)
	}
}
