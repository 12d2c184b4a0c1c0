package db

import (
	"context"
	"database/sql"
	"errors"

	"github.com/oquvmarkaz/markaz-bot/internal/ctxutil"
	"github.com/oquvmarkaz/markaz-bot/internal/models"
)

func GetGroupByID(ctx context.Context, database *sql.DB, id int64) (*models.Group, error) {
	ctx, cancel := ctxutil.WithDBTimeout(ctx)
	defer cancel()

	var g models.Group
	err := database.QueryRowContext(ctx,
		`SELECT id, name, teacher_id, price FROM groups WHERE id = $1`, id).
		Scan(&g.ID, &g.Name, &g.TeacherID, &g.Price)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &g, nil
}

func ListGroups(ctx context.Context, database *sql.DB) ([]models.Group, error) {
	ctx, cancel := ctxutil.WithDBTimeout(ctx)
	defer cancel()

	rows, err := database.QueryContext(ctx,
		`SELECT id, name, teacher_id, price FROM groups ORDER BY name, id`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []models.Group
	for rows.Next() {
		var g models.Group
		if err := rows.Scan(&g.ID, &g.Name, &g.TeacherID, &g.Price); err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func GetEmployeeByID(ctx context.Context, database *sql.DB, id int64) (*models.Employee, error) {
	ctx, cancel := ctxutil.WithDBTimeout(ctx)
	defer cancel()

	var e models.Employee
	err := database.QueryRowContext(ctx,
		`SELECT id, name, salary_type, salary FROM employees WHERE id = $1`, id).
		Scan(&e.ID, &e.Name, &e.SalaryType, &e.Salary)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// CountStudentsInGroup — для PER_STUDENT-зарплат и отчётов.
func CountStudentsInGroup(ctx context.Context, database *sql.DB, groupID int64) (int, error) {
	ctx, cancel := ctxutil.WithDBTimeout(ctx)
	defer cancel()

	var n int
	err := database.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM students
		WHERE group_id = $1 AND is_deleted = FALSE`, groupID).Scan(&n)
	return n, err
}
