package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/hitoshi/jobtrail/internal/model"
)

var profileColumnNames = []string{"user_id", "display_name", "avatar_path", "resume_path", "resume_analysis", "updated_at"}

func TestPostgresProfileRepo_FindByUserID_DecodesAnalysis(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewPostgresProfileRepo(db)
	now := time.Now()

	mock.ExpectQuery(`FROM profiles WHERE user_id`).
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows(profileColumnNames).
			AddRow("user-1", "Alice", "user-1/a.png", "user-1.pdf",
				[]byte(`{"summary":"Go engineer","skills":["Go","SQL"],"experienceYears":5}`), now))

	p, err := repo.FindByUserID(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("FindByUserID returned error: %v", err)
	}
	if p.ResumeAnalysis == nil {
		t.Fatal("ResumeAnalysis = nil")
	}
	if len(p.ResumeAnalysis.Skills) != 2 || p.ResumeAnalysis.ExperienceYears != 5 {
		t.Errorf("ResumeAnalysis = %+v", p.ResumeAnalysis)
	}
}

// 履歴書を差し替えると分析結果がクリアされること
func TestPostgresProfileRepo_UpdateResumePath_ClearsAnalysis(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewPostgresProfileRepo(db)

	mock.ExpectExec(`resume_analysis = NULL`).
		WithArgs("user-1", "user-1.pdf").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.UpdateResumePath(context.Background(), "user-1", "user-1.pdf"); err != nil {
		t.Fatalf("UpdateResumePath returned error: %v", err)
	}
}

func TestPostgresProfileRepo_UpdateResumeAnalysis_MissingProfile(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewPostgresProfileRepo(db)

	mock.ExpectExec(`UPDATE profiles SET resume_analysis`).
		WithArgs("user-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateResumeAnalysis(context.Background(), "user-1", &model.ResumeAnalysis{Summary: "x"})
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeUserNotFound {
		t.Errorf("error = %v, want USER_NOT_FOUND", err)
	}
}

func TestPostgresProfileRepo_UpdateDisplayName_Upserts(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewPostgresProfileRepo(db)
	now := time.Now()

	mock.ExpectQuery(`ON CONFLICT`).
		WithArgs("user-1", "Bob").
		WillReturnRows(sqlmock.NewRows(profileColumnNames).AddRow("user-1", "Bob", "", "", nil, now))

	p, err := repo.UpdateDisplayName(context.Background(), "user-1", "Bob")
	if err != nil {
		t.Fatalf("UpdateDisplayName returned error: %v", err)
	}
	if p.DisplayName != "Bob" || p.ResumeAnalysis != nil {
		t.Errorf("profile = %+v", p)
	}
}
