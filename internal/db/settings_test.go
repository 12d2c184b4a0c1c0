//go:build testutil
// +build testutil

package db_test

import (
	"context"
	"testing"

	"github.com/oquvmarkaz/markaz-bot/internal/db"
	"github.com/oquvmarkaz/markaz-bot/internal/testutil/testdb"
)

func TestSetSetting_Upsert(t *testing.T) {
	ctx := context.Background()
	h, err := testdb.Start(ctx)
	if err != nil {
		t.Fatal(err)
	}
	defer h.Close()

	if err := db.SetSetting(ctx, h.DB, "trial_key", 0, "первое"); err != nil {
		t.Fatal(err)
	}
	val, ok, err := db.GetSetting(ctx, h.DB, "trial_key")
	if err != nil || !ok || val != "первое" {
		t.Fatalf("GetSetting = (%q, %v, %v)", val, ok, err)
	}

	// повторная запись того же ключа перетирает значение, а не плодит строки
	if err := db.SetSetting(ctx, h.DB, "trial_key", 0, "второе"); err != nil {
		t.Fatal(err)
	}
	val, ok, err = db.GetSetting(ctx, h.DB, "trial_key")
	if err != nil || !ok || val != "второе" {
		t.Fatalf("после перезаписи GetSetting = (%q, %v, %v)", val, ok, err)
	}

	// персональная настройка живёт рядом и не перекрывает глобальную
	if err := db.SetSetting(ctx, h.DB, "trial_key", 42, "личное"); err != nil {
		t.Fatal(err)
	}
	val, ok, err = db.GetUserSetting(ctx, h.DB, "trial_key", 42)
	if err != nil || !ok || val != "личное" {
		t.Fatalf("GetUserSetting = (%q, %v, %v)", val, ok, err)
	}
	val, _, _ = db.GetSetting(ctx, h.DB, "trial_key")
	if val != "второе" {
		t.Fatalf("глобальное значение затронуто: %q", val)
	}
}

func TestGetSettingInt_Fallbacks(t *testing.T) {
	ctx := context.Background()
	h, err := testdb.Start(ctx)
	if err != nil {
		t.Fatal(err)
	}
	defer h.Close()

	// отсутствующий ключ — дефолт без ошибки
	n, err := db.GetSettingInt(ctx, h.DB, "no_such_key", 7)
	if err != nil || n != 7 {
		t.Fatalf("GetSettingInt(no_such_key) = (%d, %v)", n, err)
	}

	// мусор в value — тоже дефолт
	if err := db.SetSetting(ctx, h.DB, "bad_int", 0, "не число"); err != nil {
		t.Fatal(err)
	}
	n, err = db.GetSettingInt(ctx, h.DB, "bad_int", 7)
	if err != nil || n != 7 {
		t.Fatalf("GetSettingInt(bad_int) = (%d, %v)", n, err)
	}

	// засеянная миграцией цена читается как есть
	n, err = db.GetSettingInt(ctx, h.DB, "lesson_price", 0)
	if err != nil || n != 50000 {
		t.Fatalf("GetSettingInt(lesson_price) = (%d, %v)", n, err)
	}
}
