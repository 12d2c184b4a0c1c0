package notify

import (
	"testing"
	"time"
)

func TestRender_Substitution(t *testing.T) {
	got := Render("Ваш ребёнок {studentName} отсутствовал {date}.", map[string]string{
		"studentName": "Алишер Усманов",
		"date":        "05.03.2026",
	})
	want := "Ваш ребёнок Алишер Усманов отсутствовал 05.03.2026."
	if got != want {
		t.Errorf("Render = %q, ожидали %q", got, want)
	}
}

func TestRender_UnknownPlaceholderStays(t *testing.T) {
	// не шаблонизатор: незнакомый плейсхолдер остаётся буквально
	got := Render("{studentName} — {unknown}", map[string]string{"studentName": "Иван"})
	if got != "Иван — {unknown}" {
		t.Errorf("Render = %q", got)
	}
}

func TestFormatDate(t *testing.T) {
	d := time.Date(2026, 3, 5, 15, 30, 0, 0, time.UTC)
	if got := FormatDate(d); got != "05.03.2026" {
		t.Errorf("FormatDate = %q", got)
	}
}
