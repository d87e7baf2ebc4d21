// Package model はドメインモデルを定義する。
package model

import "time"

// User はサービス利用ユーザーを表す。
type User struct {
	ID        string
	Email     string
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Identity は外部IdPとの紐付け情報を表す。
type Identity struct {
	ID             string
	UserID         string
	Provider       string
	ProviderUserID string
	CreatedAt      time.Time
}

// Session はユーザーのログインセッションを表す。
type Session struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Profile はユーザーのプロフィールを表す。ユーザーと1対1で対応する。
type Profile struct {
	UserID         string
	DisplayName    string
	AvatarPath     string
	ResumePath     string
	ResumeAnalysis *ResumeAnalysis
	UpdatedAt      time.Time
}

// ResumeAnalysis は履歴書のAI分析結果を表す。
type ResumeAnalysis struct {
	Summary         string   `json:"summary"`
	Skills          []string `json:"skills"`
	ExperienceYears float64  `json:"experienceYears"`
}
