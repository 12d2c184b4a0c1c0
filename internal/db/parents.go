package db

import (
	"context"
	"database/sql"

	"github.com/oquvmarkaz/markaz-bot/internal/ctxutil"
	"github.com/oquvmarkaz/markaz-bot/internal/models"
)

// ListParentsOfStudent — опекуны ученика (справочник для уведомлений).
func ListParentsOfStudent(ctx context.Context, database *sql.DB, studentID int64) ([]models.Parent, error) {
	ctx, cancel := ctxutil.WithDBTimeout(ctx)
	defer cancel()

	rows, err := database.QueryContext(ctx, `
		SELECT id, student_id, name, phone, telegram_id
		FROM parents
		WHERE student_id = $1
		ORDER BY id`, studentID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []models.Parent
	for rows.Next() {
		var p models.Parent
		if err := rows.Scan(&p.ID, &p.StudentID, &p.Name, &p.Phone, &p.TelegramID); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ListAllParentChatIDs — все привязанные чаты родителей, без повторов.
// Читается в момент рассылки, а не постановки в очередь: родители,
// добавившиеся позже, тоже получат широковещательное сообщение.
func ListAllParentChatIDs(ctx context.Context, database *sql.DB) ([]int64, error) {
	ctx, cancel := ctxutil.WithDBTimeout(ctx)
	defer cancel()

	rows, err := database.QueryContext(ctx, `
		SELECT DISTINCT telegram_id FROM parents
		WHERE telegram_id <> 0
		ORDER BY telegram_id`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// LinkParentTelegram привязывает chatID ко всем контактам с этим телефоном.
// Возвращает число привязанных записей (0 — телефон не найден).
func LinkParentTelegram(ctx context.Context, database *sql.DB, phone string, chatID int64) (int64, error) {
	ctx, cancel := ctxutil.WithDBTimeout(ctx)
	defer cancel()

	res, err := database.ExecContext(ctx,
		`UPDATE parents SET telegram_id = $1 WHERE phone = $2`, chatID, phone)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
