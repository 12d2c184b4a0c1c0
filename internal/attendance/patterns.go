package attendance

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/oquvmarkaz/markaz-bot/internal/db"
	"github.com/oquvmarkaz/markaz-bot/internal/models"
	"github.com/oquvmarkaz/markaz-bot/internal/notify"
)

// Дефолтные тексты на случай отсутствия ключей в settings.
const (
	defaultTmplAbsent = "Ваш ребёнок {studentName} отсутствовал на занятии {date}."
	defaultTmplGood   = "{studentName} отлично занимался на уроках {dates}. Так держать!"
	defaultTmplBad    = "{studentName} плохо занимался на уроках {dates}. Пожалуйста, обратите внимание."
	defaultConjunct   = " и "
)

// Detector решает по свежей записи посещаемости, пора ли беспокоить родителей:
// пропуск — напоминание сразу и каждый раз; серия одинаковых оценок —
// парой, с пометкой израсходованных записей.
type Detector struct {
	db  *sql.DB
	log *zap.Logger
}

func NewDetector(database *sql.DB, log *zap.Logger) *Detector {
	return &Detector{db: database, log: log}
}

// AfterRecord вызывается один раз на каждую новую запись посещаемости.
func (d *Detector) AfterRecord(ctx context.Context, student *models.Student, rec *models.Attendance) error {
	if rec.Status == models.StatusAbsent {
		if err := d.absenceReminder(ctx, student, rec); err != nil {
			return fmt.Errorf("absence reminder: %w", err)
		}
	}
	if rec.Performance == models.PerfGood || rec.Performance == models.PerfBad {
		if err := d.performanceStreak(ctx, student, rec.Performance); err != nil {
			return fmt.Errorf("performance streak: %w", err)
		}
	}
	return nil
}

// absenceReminder шлётся на каждый пропуск без какой-либо дедупликации:
// пропустил два дня подряд — родители получат два напоминания.
func (d *Detector) absenceReminder(ctx context.Context, student *models.Student, rec *models.Attendance) error {
	parents, err := db.ListParentsOfStudent(ctx, d.db, student.ID)
	if err != nil {
		return err
	}
	if len(parents) == 0 {
		d.log.Info("у ученика нет опекунов, напоминание о пропуске пропущено",
			zap.Int64("student_id", student.ID))
		return nil
	}

	tmpl := d.setting(ctx, "tmpl_absent", defaultTmplAbsent)
	message := notify.Render(tmpl, map[string]string{
		"studentName": student.Name,
		"date":        notify.FormatDate(rec.Date),
	})
	d.enqueueForParents(ctx, models.NotifyAttendance, parents, message)
	return nil
}

// performanceStreak — скользящая пара: две самые старые неотмеченные записи
// с той же оценкой дают одно уведомление и помечаются. Третья запись сама
// по себе ничего не триггерит — ждёт четвёртую.
func (d *Detector) performanceStreak(ctx context.Context, student *models.Student, perf models.Performance) error {
	history, err := db.ListUnreportedByPerformance(ctx, d.db, student.ID, perf)
	if err != nil {
		return err
	}
	if len(history) < 2 {
		return nil
	}
	pair := history[:2]

	parents, err := db.ListParentsOfStudent(ctx, d.db, student.ID)
	if err != nil {
		return err
	}
	if len(parents) == 0 {
		d.log.Info("у ученика нет опекунов, уведомление об успеваемости пропущено",
			zap.Int64("student_id", student.ID))
		return nil
	}

	key, def := "tmpl_bad", defaultTmplBad
	if perf == models.PerfGood {
		key, def = "tmpl_good", defaultTmplGood
	}
	conj := d.setting(ctx, "date_conjunction", defaultConjunct)
	dates := strings.Join([]string{notify.FormatDate(pair[0].Date), notify.FormatDate(pair[1].Date)}, conj)

	message := notify.Render(d.setting(ctx, key, def), map[string]string{
		"studentName": student.Name,
		"dates":       dates,
	})
	d.enqueueForParents(ctx, models.NotifyPerformance, parents, message)

	return db.MarkPerformanceReported(ctx, d.db, []int64{pair[0].ID, pair[1].ID})
}

func (d *Detector) enqueueForParents(ctx context.Context, typ models.NotificationType, parents []models.Parent, message string) {
	for _, p := range parents {
		if p.TelegramID == 0 {
			// родитель ещё не привязал чат — адресовать некуда
			continue
		}
		if _, err := notify.Enqueue(ctx, d.db, typ, p.TelegramID, message, p.Phone); err != nil {
			d.log.Error("не удалось поставить уведомление в очередь",
				zap.Int64("parent_id", p.ID), zap.Error(err))
		}
	}
}

func (d *Detector) setting(ctx context.Context, key, def string) string {
	val, ok, err := db.GetSetting(ctx, d.db, key)
	if err != nil || !ok {
		return def
	}
	return val
}
