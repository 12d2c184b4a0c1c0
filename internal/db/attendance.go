package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/oquvmarkaz/markaz-bot/internal/ctxutil"
	"github.com/oquvmarkaz/markaz-bot/internal/models"
)

// ErrDuplicateAttendance — вторая отметка по (ученик, группа, день).
var ErrDuplicateAttendance = errors.New("attendance already recorded for this day")

// AttendanceExists — вежливая проверка перед вставкой. Настоящая защита —
// уникальный индекс attendances_once_per_day, гонку закрывает он.
func AttendanceExists(ctx context.Context, database *sql.DB, studentID, groupID int64, day time.Time) (bool, error) {
	ctx, cancel := ctxutil.WithDBTimeout(ctx)
	defer cancel()

	var n int
	err := database.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM attendances
		WHERE student_id = $1 AND group_id = $2 AND date = $3`,
		studentID, groupID, day.Format("2006-01-02")).Scan(&n)
	return n > 0, err
}

func InsertAttendance(ctx context.Context, database *sql.DB, a models.Attendance) (*models.Attendance, error) {
	ctx, cancel := ctxutil.WithDBTimeout(ctx)
	defer cancel()

	err := database.QueryRowContext(ctx, `
		INSERT INTO attendances (student_id, group_id, date, status, performance)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, performance_reported, created_at`,
		a.StudentID, a.GroupID, a.Date.Format("2006-01-02"), a.Status, a.Performance).
		Scan(&a.ID, &a.PerformanceReported, &a.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrDuplicateAttendance
		}
		return nil, err
	}
	return &a, nil
}

// ListUnreportedByPerformance — история того же ученика с той же оценкой и
// performance_reported = FALSE, от старых к новым. При равных датах порядок
// по id — то есть по порядку вставки.
func ListUnreportedByPerformance(ctx context.Context, database *sql.DB, studentID int64, perf models.Performance) ([]models.Attendance, error) {
	ctx, cancel := ctxutil.WithDBTimeout(ctx)
	defer cancel()

	rows, err := database.QueryContext(ctx, `
		SELECT id, student_id, group_id, date, status, performance, performance_reported, created_at
		FROM attendances
		WHERE student_id = $1 AND performance = $2 AND performance_reported = FALSE
		ORDER BY date, id`, studentID, perf)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []models.Attendance
	for rows.Next() {
		var a models.Attendance
		if err := rows.Scan(&a.ID, &a.StudentID, &a.GroupID, &a.Date, &a.Status, &a.Performance, &a.PerformanceReported, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// MarkPerformanceReported помечает ровно переданные записи как доведённые
// до родителей, чтобы серия не сработала повторно.
// Плейсхолдеры разворачиваются вручную: передача слайса в ANY($1)
// работает не на всех драйверах.
func MarkPerformanceReported(ctx context.Context, database *sql.DB, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	ctx, cancel := ctxutil.WithDBTimeout(ctx)
	defer cancel()

	ph := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		ph[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}
	_, err := database.ExecContext(ctx,
		`UPDATE attendances SET performance_reported = TRUE WHERE id IN (`+strings.Join(ph, ", ")+`)`,
		args...)
	return err
}

// ListAttendanceBetween — выборка для отчёта за период.
func ListAttendanceBetween(ctx context.Context, database *sql.DB, from, to time.Time) ([]models.Attendance, error) {
	ctx, cancel := ctxutil.WithDBTimeout(ctx)
	defer cancel()

	rows, err := database.QueryContext(ctx, `
		SELECT id, student_id, group_id, date, status, performance, performance_reported, created_at
		FROM attendances
		WHERE date >= $1 AND date <= $2
		ORDER BY date, group_id, student_id`,
		from.Format("2006-01-02"), to.Format("2006-01-02"))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []models.Attendance
	for rows.Next() {
		var a models.Attendance
		if err := rows.Scan(&a.ID, &a.StudentID, &a.GroupID, &a.Date, &a.Status, &a.Performance, &a.PerformanceReported, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
