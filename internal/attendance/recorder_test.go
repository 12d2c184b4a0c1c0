package attendance

import (
	"strings"
	"testing"
	"time"

	"github.com/oquvmarkaz/markaz-bot/internal/models"
)

func testRecorder(t *testing.T) *Recorder {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Tashkent")
	if err != nil {
		t.Fatal(err)
	}
	// фиксированное «сейчас»: 10 марта 2026, 14:00 по Ташкенту
	now := time.Date(2026, 3, 10, 14, 0, 0, 0, loc)
	return &Recorder{loc: loc, now: func() time.Time { return now }}
}

func datePtr(t time.Time) *time.Time { return &t }

func TestNormalize_RejectsBackdated(t *testing.T) {
	r := testRecorder(t)
	yesterday := time.Date(2026, 3, 9, 23, 59, 0, 0, r.loc)

	_, verr := r.normalize(Submission{
		StudentID: 1, GroupID: 2,
		Status: models.StatusPresent,
		Date:   datePtr(yesterday),
	})
	if verr == nil {
		t.Fatal("вчерашняя дата должна отклоняться")
	}
}

func TestNormalize_TodayAndFutureAllowed(t *testing.T) {
	r := testRecorder(t)

	// сегодня, раннее утро — день ещё не закрыт
	morning := time.Date(2026, 3, 10, 0, 1, 0, 0, r.loc)
	if _, verr := r.normalize(Submission{StudentID: 1, GroupID: 2, Status: models.StatusPresent, Date: datePtr(morning)}); verr != nil {
		t.Fatalf("сегодняшняя дата отклонена: %v", verr)
	}

	tomorrow := time.Date(2026, 3, 11, 9, 0, 0, 0, r.loc)
	if _, verr := r.normalize(Submission{StudentID: 1, GroupID: 2, Status: models.StatusPresent, Date: datePtr(tomorrow)}); verr != nil {
		t.Fatalf("завтрашняя дата отклонена: %v", verr)
	}
}

func TestNormalize_DefaultDateIsToday(t *testing.T) {
	r := testRecorder(t)

	rec, verr := r.normalize(Submission{StudentID: 1, GroupID: 2, Status: models.StatusPresent})
	if verr != nil {
		t.Fatal(verr)
	}
	want := time.Date(2026, 3, 10, 0, 0, 0, 0, r.loc)
	if !rec.Date.Equal(want) {
		t.Errorf("дата по умолчанию %v, ожидали %v", rec.Date, want)
	}
}

func TestNormalize_AbsentForcesAbsentPerformance(t *testing.T) {
	r := testRecorder(t)

	rec, verr := r.normalize(Submission{StudentID: 1, GroupID: 2, Status: models.StatusAbsent})
	if verr != nil {
		t.Fatal(verr)
	}
	if rec.Performance != models.PerfAbsent {
		t.Errorf("performance = %s, ожидали ABSENT", rec.Performance)
	}

	// явный ABSENT тоже допустим
	rec, verr = r.normalize(Submission{StudentID: 1, GroupID: 2, Status: models.StatusAbsent, Performance: models.PerfAbsent})
	if verr != nil {
		t.Fatal(verr)
	}
	if rec.Performance != models.PerfAbsent {
		t.Errorf("performance = %s", rec.Performance)
	}
}

func TestNormalize_AbsentWithConflictingPerformanceRejected(t *testing.T) {
	r := testRecorder(t)

	_, verr := r.normalize(Submission{StudentID: 1, GroupID: 2, Status: models.StatusAbsent, Performance: models.PerfGood})
	if verr == nil {
		t.Fatal("оценка GOOD при статусе ABSENT должна отклоняться")
	}
}

func TestNormalize_PresentDefaultsToNormal(t *testing.T) {
	r := testRecorder(t)

	rec, verr := r.normalize(Submission{StudentID: 1, GroupID: 2, Status: models.StatusPresent})
	if verr != nil {
		t.Fatal(verr)
	}
	if rec.Performance != models.PerfNormal {
		t.Errorf("performance = %s, ожидали NORMAL", rec.Performance)
	}
}

func TestValidationError_NamesOffender(t *testing.T) {
	verr := &ValidationError{StudentID: 7, GroupID: 3,
		Date: time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC), Reason: "день уже закрыт"}
	msg := verr.Error()
	for _, part := range []string{"7", "3", "09.03.2026"} {
		if !strings.Contains(msg, part) {
			t.Errorf("в ошибке нет %q: %s", part, msg)
		}
	}
}
