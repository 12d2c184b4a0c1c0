//go:build testutil
// +build testutil

package billing_test

import (
	"context"
	"database/sql"
	"testing"

	"go.uber.org/zap"

	"github.com/oquvmarkaz/markaz-bot/internal/billing"
	"github.com/oquvmarkaz/markaz-bot/internal/db"
	"github.com/oquvmarkaz/markaz-bot/internal/models"
	"github.com/oquvmarkaz/markaz-bot/internal/testutil/testdb"
)

func mustSeedGroup(t *testing.T, dbx *sql.DB, name string, price *int64) int64 {
	t.Helper()
	var id int64
	if err := dbx.QueryRow(
		`INSERT INTO groups (name, price) VALUES ($1, $2) RETURNING id`, name, price).Scan(&id); err != nil {
		t.Fatal(err)
	}
	return id
}

func mustSeedStudent(t *testing.T, dbx *sql.DB, name string, groupID int64, frozen bool) int64 {
	t.Helper()
	var id int64
	if err := dbx.QueryRow(`
		INSERT INTO students (name, balance, group_id, frozen)
		VALUES ($1, 0, $2, $3) RETURNING id`, name, groupID, frozen).Scan(&id); err != nil {
		t.Fatal(err)
	}
	return id
}

// Сценарий из постановки: цена 50000, порог -600000. Двенадцать занятий
// доводят баланс ровно до порога — ученик ещё активен; тринадцатое уводит
// ниже — ученик гаснет.
func TestChargeLesson_DeactivationOnThreshold(t *testing.T) {
	ctx := context.Background()
	h, err := testdb.Start(ctx)
	if err != nil {
		t.Fatal(err)
	}
	defer h.Close()

	gid := mustSeedGroup(t, h.DB, "Математика", nil) // цена из settings: 50000
	sid := mustSeedStudent(t, h.DB, "Алишер", gid, false)

	ledger := billing.NewLedger(h.DB, zap.NewNop())
	rec := &models.Attendance{GroupID: gid}

	for i := 1; i <= 12; i++ {
		student, err := db.GetStudentByID(ctx, h.DB, sid)
		if err != nil {
			t.Fatal(err)
		}
		if err := ledger.ChargeLesson(ctx, student, rec); err != nil {
			t.Fatalf("занятие %d: %v", i, err)
		}
	}

	student, err := db.GetStudentByID(ctx, h.DB, sid)
	if err != nil {
		t.Fatal(err)
	}
	if student.Balance != -600000 {
		t.Fatalf("после 12 занятий баланс %d, ожидали -600000", student.Balance)
	}
	if !student.IsActive {
		t.Fatal("на пороге ученик ещё должен быть активен")
	}

	// тринадцатое занятие — уход строго ниже порога
	if err := ledger.ChargeLesson(ctx, student, rec); err != nil {
		t.Fatal(err)
	}
	student, err = db.GetStudentByID(ctx, h.DB, sid)
	if err != nil {
		t.Fatal(err)
	}
	if student.Balance != -650000 {
		t.Fatalf("баланс %d, ожидали -650000", student.Balance)
	}
	if student.IsActive {
		t.Fatal("ученик должен быть деактивирован")
	}

	// идемпотентность: дальнейшие списания не ошибаются и не реактивируют
	if err := ledger.ChargeLesson(ctx, student, rec); err != nil {
		t.Fatal(err)
	}
	student, _ = db.GetStudentByID(ctx, h.DB, sid)
	if student.IsActive {
		t.Fatal("деактивация необратима из биллинга")
	}
	if student.Balance != -700000 {
		t.Fatalf("баланс %d, списания должны продолжаться", student.Balance)
	}
}

func TestChargeLesson_GroupPriceOverride(t *testing.T) {
	ctx := context.Background()
	h, err := testdb.Start(ctx)
	if err != nil {
		t.Fatal(err)
	}
	defer h.Close()

	price := int64(70000)
	gid := mustSeedGroup(t, h.DB, "Английский (интенсив)", &price)
	sid := mustSeedStudent(t, h.DB, "Мадина", gid, false)

	ledger := billing.NewLedger(h.DB, zap.NewNop())
	student, _ := db.GetStudentByID(ctx, h.DB, sid)
	if err := ledger.ChargeLesson(ctx, student, &models.Attendance{GroupID: gid}); err != nil {
		t.Fatal(err)
	}

	student, _ = db.GetStudentByID(ctx, h.DB, sid)
	if student.Balance != -70000 {
		t.Fatalf("баланс %d, ожидали -70000 (цена группы важнее глобальной)", student.Balance)
	}
}

func TestChargeLesson_FrozenStudentUntouched(t *testing.T) {
	ctx := context.Background()
	h, err := testdb.Start(ctx)
	if err != nil {
		t.Fatal(err)
	}
	defer h.Close()

	gid := mustSeedGroup(t, h.DB, "Химия", nil)
	sid := mustSeedStudent(t, h.DB, "Зафар", gid, true)

	ledger := billing.NewLedger(h.DB, zap.NewNop())
	student, _ := db.GetStudentByID(ctx, h.DB, sid)
	if err := ledger.ChargeLesson(ctx, student, &models.Attendance{GroupID: gid}); err != nil {
		t.Fatal(err)
	}

	student, _ = db.GetStudentByID(ctx, h.DB, sid)
	if student.Balance != 0 {
		t.Fatalf("баланс замороженного ученика изменился: %d", student.Balance)
	}
}
