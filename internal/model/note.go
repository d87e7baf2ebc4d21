package model

import "time"

// Note は応募記録に紐づくメモを表す。
// ReminderDateが設定されている場合、リマインダージョブの対象となる。
type Note struct {
	ID             string
	ApplicationID  string
	UserID         string
	Content        string
	ReminderDate   *time.Time
	ReminderSentAt *time.Time
	CreatedAt      time.Time
}

// DueReminder はリマインダー送信対象のメモと送信先情報を表す。
type DueReminder struct {
	Note
	UserEmail string
	Company   string
	Position  string
}

// Notification はユーザー宛の通知を表す。
type Notification struct {
	ID            string
	UserID        string
	ApplicationID string
	Message       string
	IsRead        bool
	CreatedAt     time.Time
}
