package attendance

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/oquvmarkaz/markaz-bot/internal/billing"
	"github.com/oquvmarkaz/markaz-bot/internal/db"
	"github.com/oquvmarkaz/markaz-bot/internal/metrics"
	"github.com/oquvmarkaz/markaz-bot/internal/models"
	"github.com/oquvmarkaz/markaz-bot/internal/observability"
)

// Submission — один элемент пакетной отметки посещаемости.
// Performance и Date опциональны.
type Submission struct {
	StudentID   int64                   `json:"student_id" validate:"required"`
	GroupID     int64                   `json:"group_id" validate:"required"`
	Status      models.AttendanceStatus `json:"status" validate:"required,oneof=PRESENT ABSENT"`
	Performance models.Performance      `json:"performance,omitempty" validate:"omitempty,oneof=GOOD NORMAL BAD ABSENT"`
	Date        *time.Time              `json:"date,omitempty"`
}

// ValidationError — ошибка проверки одного элемента пакета.
// Останавливает только свой элемент, соседи по пакету обрабатываются дальше.
type ValidationError struct {
	StudentID int64
	GroupID   int64
	Date      time.Time
	Reason    string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("посещаемость: ученик %d, группа %d, %s: %s",
		e.StudentID, e.GroupID, e.Date.Format("02.01.2006"), e.Reason)
}

// Recorder — оркестратор записи посещаемости: валидация, запись,
// затем списание с баланса и уведомления.
type Recorder struct {
	db       *sql.DB
	ledger   *billing.Ledger
	detector *Detector
	log      *zap.Logger
	loc      *time.Location
	now      func() time.Time // подменяется в тестах
}

func NewRecorder(database *sql.DB, ledger *billing.Ledger, detector *Detector, log *zap.Logger, loc *time.Location) *Recorder {
	return &Recorder{
		db:       database,
		ledger:   ledger,
		detector: detector,
		log:      log,
		loc:      loc,
		now:      time.Now,
	}
}

// RecordBatch обрабатывает пакет строго последовательно — так двойная отметка
// одного ученика в одном запросе ловится честно. Отбракованный элемент не
// мешает соседним: возвращаются созданные записи и список отказов по элементам.
// err — только инфраструктурный сбой (БД недоступна и т.п.), он обрывает пакет.
// Ошибки побочных эффектов (биллинг, уведомления) наружу не выходят никогда.
func (r *Recorder) RecordBatch(ctx context.Context, items []Submission) ([]models.Attendance, []*ValidationError, error) {
	var created []models.Attendance
	var rejected []*ValidationError

	for _, item := range items {
		rec, verr, err := r.recordOne(ctx, item)
		if err != nil {
			return created, rejected, err
		}
		if verr != nil {
			metrics.AttendanceRejected.Inc()
			rejected = append(rejected, verr)
			continue
		}
		metrics.AttendanceRecorded.Inc()
		created = append(created, *rec)
	}
	return created, rejected, nil
}

func (r *Recorder) recordOne(ctx context.Context, item Submission) (*models.Attendance, *ValidationError, error) {
	rec, verr := r.normalize(item)
	if verr != nil {
		return nil, verr, nil
	}

	student, err := db.GetStudentByID(ctx, r.db, item.StudentID)
	if err != nil {
		return nil, nil, err
	}
	if student == nil || student.IsDeleted {
		return nil, &ValidationError{StudentID: item.StudentID, GroupID: item.GroupID, Date: rec.Date,
			Reason: "ученик не найден"}, nil
	}
	group, err := db.GetGroupByID(ctx, r.db, item.GroupID)
	if err != nil {
		return nil, nil, err
	}
	if group == nil {
		return nil, &ValidationError{StudentID: item.StudentID, GroupID: item.GroupID, Date: rec.Date,
			Reason: "группа не найдена"}, nil
	}

	exists, err := db.AttendanceExists(ctx, r.db, item.StudentID, item.GroupID, rec.Date)
	if err != nil {
		return nil, nil, err
	}
	if exists {
		return nil, &ValidationError{StudentID: item.StudentID, GroupID: item.GroupID, Date: rec.Date,
			Reason: "посещаемость за этот день уже отмечена"}, nil
	}

	saved, err := db.InsertAttendance(ctx, r.db, rec)
	if err != nil {
		if errors.Is(err, db.ErrDuplicateAttendance) {
			// гонка check-then-insert закрыта уникальным индексом
			return nil, &ValidationError{StudentID: item.StudentID, GroupID: item.GroupID, Date: rec.Date,
				Reason: "посещаемость за этот день уже отмечена"}, nil
		}
		return nil, nil, err
	}

	// Запись посещаемости — источник истины. Всё дальше не фатально:
	// сбой биллинга или уведомлений не откатывает запись.
	if err := r.ledger.ChargeLesson(ctx, student, saved); err != nil {
		r.log.Error("списание за занятие не прошло",
			zap.Int64("student_id", student.ID), zap.Int64("attendance_id", saved.ID), zap.Error(err))
		observability.CaptureErr(err)
	}
	if err := r.detector.AfterRecord(ctx, student, saved); err != nil {
		r.log.Error("уведомления по посещаемости не поставлены",
			zap.Int64("student_id", student.ID), zap.Int64("attendance_id", saved.ID), zap.Error(err))
		observability.CaptureErr(err)
	}
	return saved, nil, nil
}

// normalize — чистая часть валидации: дата, согласованность статуса и оценки.
func (r *Recorder) normalize(item Submission) (models.Attendance, *ValidationError) {
	day := dayOf(r.now().In(r.loc))
	if item.Date != nil {
		day = dayOf(item.Date.In(r.loc))
	}
	today := dayOf(r.now().In(r.loc))

	if day.Before(today) {
		return models.Attendance{}, &ValidationError{StudentID: item.StudentID, GroupID: item.GroupID, Date: day,
			Reason: "день уже закрыт, посещаемость задним числом не отмечается"}
	}

	perf := item.Performance
	if item.Status == models.StatusAbsent {
		if perf != "" && perf != models.PerfAbsent {
			return models.Attendance{}, &ValidationError{StudentID: item.StudentID, GroupID: item.GroupID, Date: day,
				Reason: "для отсутствующего нельзя указать оценку за занятие"}
		}
		perf = models.PerfAbsent
	} else if perf == "" {
		perf = models.PerfNormal
	}

	return models.Attendance{
		StudentID:   item.StudentID,
		GroupID:     item.GroupID,
		Date:        day,
		Status:      item.Status,
		Performance: perf,
	}, nil
}

// dayOf — усечение до календарного дня в рабочем часовом поясе.
func dayOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
