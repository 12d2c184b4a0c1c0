package models

import (
	"database/sql"
	"time"
)

type NotificationType string

const (
	NotifyAttendance  NotificationType = "attendance_reminder"
	NotifyPerformance NotificationType = "performance_reminder"
	NotifyPayment     NotificationType = "payment_reminder"
	NotifyTestResult  NotificationType = "test_result"
	NotifyBroadcast   NotificationType = "broadcast"
	NotifyOther       NotificationType = "other"
)

type NotificationStatus string

const (
	NotifWaiting NotificationStatus = "WAITING"
	NotifSending NotificationStatus = "SENDING"
	NotifSent    NotificationStatus = "SENT"
	NotifError   NotificationStatus = "ERROR"
)

// BroadcastChatID — зарезервированный telegram_id: «разослать всем родителям».
const BroadcastChatID int64 = 1

// Notification — строка очереди исходящих сообщений. Append-only:
// после SENT/ERROR запись не меняется и не удаляется.
type Notification struct {
	ID          int64
	Type        NotificationType
	Message     string
	TelegramID  int64
	PhoneNumber sql.NullString
	Status      NotificationStatus
	Error       sql.NullString
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
