package billing

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/oquvmarkaz/markaz-bot/internal/db"
	"github.com/oquvmarkaz/markaz-bot/internal/models"
)

const (
	// Фолбэк, если настройка min_balance не задана.
	DefaultMinBalance int64 = -600000

	keyLessonPrice = "lesson_price"
	keyMinBalance  = "min_balance"
)

// Ledger списывает стоимость занятия с баланса ученика и гасит ученика
// при уходе ниже порога. Занятие оплачивается и при отсутствии:
// запланированный урок расходует предоплату в любом случае.
type Ledger struct {
	db  *sql.DB
	log *zap.Logger
}

func NewLedger(database *sql.DB, log *zap.Logger) *Ledger {
	return &Ledger{db: database, log: log}
}

// ChargeLesson — одно списание за одну запись посещаемости.
func (l *Ledger) ChargeLesson(ctx context.Context, student *models.Student, rec *models.Attendance) error {
	if student.Frozen || student.IsDeleted {
		l.log.Info("баланс не трогаем: ученик заморожен или удалён",
			zap.Int64("student_id", student.ID))
		return nil
	}

	price, err := l.resolvePrice(ctx, rec.GroupID)
	if err != nil {
		return fmt.Errorf("resolve price: %w", err)
	}
	if price == 0 {
		// цена не настроена — списывать нечего
		return nil
	}

	balance, isActive, err := db.AdjustStudentBalance(ctx, l.db, student.ID, -price)
	if err != nil {
		return fmt.Errorf("adjust balance: %w", err)
	}

	minBalance, err := db.GetSettingInt(ctx, l.db, keyMinBalance, DefaultMinBalance)
	if err != nil {
		return fmt.Errorf("min balance setting: %w", err)
	}
	// Порог не включается: ученик с балансом ровно min_balance ещё активен,
	// гасим только при уходе строго ниже.
	if balance < minBalance && isActive {
		if err := db.DeactivateStudent(ctx, l.db, student.ID); err != nil {
			return fmt.Errorf("deactivate student: %w", err)
		}
		l.log.Info("ученик деактивирован по порогу баланса",
			zap.Int64("student_id", student.ID),
			zap.Int64("balance", balance),
			zap.Int64("min_balance", minBalance))
	}
	return nil
}

// resolvePrice: переопределение в группе, иначе глобальная настройка, иначе 0.
func (l *Ledger) resolvePrice(ctx context.Context, groupID int64) (int64, error) {
	group, err := db.GetGroupByID(ctx, l.db, groupID)
	if err != nil {
		return 0, err
	}
	if group != nil && group.Price.Valid {
		return group.Price.Int64, nil
	}
	return db.GetSettingInt(ctx, l.db, keyLessonPrice, 0)
}
