package db

import (
	"context"
	"database/sql"
	"errors"

	"github.com/oquvmarkaz/markaz-bot/internal/ctxutil"
	"github.com/oquvmarkaz/markaz-bot/internal/models"
)

const studentCols = `id, name, phone, balance, is_active, frozen, is_deleted, group_id, came_date, created_at`

func scanStudent(row *sql.Row) (*models.Student, error) {
	var s models.Student
	err := row.Scan(&s.ID, &s.Name, &s.Phone, &s.Balance, &s.IsActive, &s.Frozen, &s.IsDeleted, &s.GroupID, &s.CameDate, &s.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func GetStudentByID(ctx context.Context, database *sql.DB, id int64) (*models.Student, error) {
	ctx, cancel := ctxutil.WithDBTimeout(ctx)
	defer cancel()

	row := database.QueryRowContext(ctx,
		`SELECT `+studentCols+` FROM students WHERE id = $1`, id)
	return scanStudent(row)
}

// AdjustStudentBalance — атомарная относительная корректировка баланса
// (delta может быть отрицательной). Возвращает новый баланс и флаг активности.
// Именно относительный UPDATE, а не read-modify-write: параллельные отметки
// посещаемости по одному ученику не должны терять списания.
func AdjustStudentBalance(ctx context.Context, database *sql.DB, studentID int64, delta int64) (balance int64, isActive bool, err error) {
	ctx, cancel := ctxutil.WithDBTimeout(ctx)
	defer cancel()

	err = database.QueryRowContext(ctx, `
		UPDATE students SET balance = balance + $1
		WHERE id = $2
		RETURNING balance, is_active`, delta, studentID).Scan(&balance, &isActive)
	return balance, isActive, err
}

// DeactivateStudent гасит is_active. Обратного пути из этого кода нет:
// реактивация — только руками администратора.
func DeactivateStudent(ctx context.Context, database *sql.DB, studentID int64) error {
	ctx, cancel := ctxutil.WithDBTimeout(ctx)
	defer cancel()

	_, err := database.ExecContext(ctx,
		`UPDATE students SET is_active = FALSE WHERE id = $1 AND is_active = TRUE`, studentID)
	return err
}

// ListDebtors — активные незамороженные ученики с отрицательным балансом.
func ListDebtors(ctx context.Context, database *sql.DB) ([]models.Student, error) {
	ctx, cancel := ctxutil.WithDBTimeout(ctx)
	defer cancel()

	rows, err := database.QueryContext(ctx, `
		SELECT `+studentCols+` FROM students
		WHERE balance < 0 AND is_active = TRUE AND frozen = FALSE AND is_deleted = FALSE
		ORDER BY balance`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []models.Student
	for rows.Next() {
		var s models.Student
		if err := rows.Scan(&s.ID, &s.Name, &s.Phone, &s.Balance, &s.IsActive, &s.Frozen, &s.IsDeleted, &s.GroupID, &s.CameDate, &s.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
