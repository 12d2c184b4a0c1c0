package models

import "time"

type AttendanceStatus string

const (
	StatusPresent AttendanceStatus = "PRESENT"
	StatusAbsent  AttendanceStatus = "ABSENT"
)

type Performance string

const (
	PerfGood   Performance = "GOOD"
	PerfNormal Performance = "NORMAL"
	PerfBad    Performance = "BAD"
	PerfAbsent Performance = "ABSENT"
)

type Attendance struct {
	ID        int64
	StudentID int64
	GroupID   int64
	// Дата занятия с точностью до календарного дня (в рабочем часовом поясе).
	Date                time.Time
	Status              AttendanceStatus
	Performance         Performance
	PerformanceReported bool
	CreatedAt           time.Time
}
