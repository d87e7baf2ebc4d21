package model

import (
	"strings"
	"time"
)

// Status は応募記録のステータスを表す。
type Status string

const (
	StatusSaved     Status = "saved"
	StatusApplied   Status = "applied"
	StatusInterview Status = "interview"
	StatusOffer     Status = "offer"
	StatusRejected  Status = "rejected"
)

// AllStatuses はボードの列順でステータスを返す。
func AllStatuses() []Status {
	return []Status{StatusSaved, StatusApplied, StatusInterview, StatusOffer, StatusRejected}
}

// Valid はステータスが定義済みの5値のいずれかであるかを返す。
func (s Status) Valid() bool {
	switch s {
	case StatusSaved, StatusApplied, StatusInterview, StatusOffer, StatusRejected:
		return true
	default:
		return false
	}
}

// ParseStatus は文字列をStatusに変換する。前後の空白と大文字小文字は無視する。
func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	if !st.Valid() {
		return "", NewInvalidStatusError(s)
	}
	return st, nil
}

// DateLayout は応募日の表現形式。
const DateLayout = "2006-01-02"

// Application は応募記録を表す。
// URL、Location、InterviewDateは未設定を許容する。
type Application struct {
	ID            string
	UserID        string
	Company       string
	Position      string
	Status        Status
	DateApplied   time.Time
	URL           string
	Location      string
	InterviewDate *time.Time
	Notes         string
	MatchAnalysis *MatchAnalysis
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// MatchAnalysis は履歴書と求人のマッチング分析結果を表す。
type MatchAnalysis struct {
	MatchScore  int      `json:"matchScore"`
	Summary     string   `json:"summary"`
	Suggestions []string `json:"suggestions"`
}

// ApplicationInput は応募記録の作成・更新入力。
type ApplicationInput struct {
	Company       string
	Position      string
	Status        Status
	DateApplied   time.Time
	URL           string
	Location      string
	InterviewDate *time.Time
	Notes         string
}
