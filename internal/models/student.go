package models

import (
	"database/sql"
	"time"
)

type SalaryType string

const (
	SalaryFixed      SalaryType = "FIXED"
	SalaryPerStudent SalaryType = "PER_STUDENT"
)

type Student struct {
	ID        int64
	Name      string
	Phone     sql.NullString
	Balance   int64
	IsActive  bool
	Frozen    bool
	IsDeleted bool
	GroupID   sql.NullInt64
	CameDate  sql.NullTime
	CreatedAt time.Time
}

type Group struct {
	ID        int64
	Name      string
	TeacherID sql.NullInt64
	// Цена за занятие; NULL — берём глобальную из settings.
	Price sql.NullInt64
}

type Employee struct {
	ID         int64
	Name       string
	SalaryType SalaryType
	Salary     int64
}

// Parent — контакт опекуна, привязанный к ученику.
// TelegramID = 0, пока родитель не прошёл /start в боте.
type Parent struct {
	ID         int64
	StudentID  int64
	Name       string
	Phone      string
	TelegramID int64
}
