package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/hitoshi/jobtrail/internal/model"
)

func newSQLMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet sqlmock expectations: %v", err)
		}
		db.Close()
	})
	return db, mock
}

var applicationColumnNames = []string{
	"id", "user_id", "company", "position", "status", "date_applied", "url", "location",
	"interview_date", "notes", "match_analysis", "created_at", "updated_at",
}

func TestPostgresApplicationRepo_ListByUser_ScansNullableColumns(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewPostgresApplicationRepo(db)
	date := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	interview := time.Date(2024, 2, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`FROM applications WHERE user_id`).
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows(applicationColumnNames).
			AddRow("app-2", "user-1", "Globex", "SRE", "interview", date, "", "", interview, "",
				[]byte(`{"matchScore":80,"summary":"good","suggestions":["a","b","c"]}`), date, date).
			AddRow("app-1", "user-1", "Acme", "Engineer", "applied", date, "https://acme.example", "Tokyo", nil, "memo", nil, date, date))

	apps, err := repo.ListByUser(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("ListByUser returned error: %v", err)
	}
	if len(apps) != 2 {
		t.Fatalf("len(apps) = %d, want 2", len(apps))
	}

	if apps[0].InterviewDate == nil || !apps[0].InterviewDate.Equal(interview) {
		t.Errorf("InterviewDate = %v, want %v", apps[0].InterviewDate, interview)
	}
	if apps[0].MatchAnalysis == nil || apps[0].MatchAnalysis.MatchScore != 80 {
		t.Errorf("MatchAnalysis = %+v, want score 80", apps[0].MatchAnalysis)
	}
	if apps[1].InterviewDate != nil {
		t.Errorf("InterviewDate = %v, want nil", apps[1].InterviewDate)
	}
	if apps[1].MatchAnalysis != nil {
		t.Errorf("MatchAnalysis = %+v, want nil", apps[1].MatchAnalysis)
	}
	if apps[1].Status != model.StatusApplied {
		t.Errorf("Status = %q, want applied", apps[1].Status)
	}
}

// 他ユーザーの記録はuser_id条件で除外され、nilが返る
func TestPostgresApplicationRepo_FindByID_ScopedByOwner(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewPostgresApplicationRepo(db)

	mock.ExpectQuery(`FROM applications WHERE id = \$1 AND user_id = \$2`).
		WithArgs("app-1", "other-user").
		WillReturnRows(sqlmock.NewRows(applicationColumnNames))

	app, err := repo.FindByID(context.Background(), "other-user", "app-1")
	if err != nil {
		t.Fatalf("FindByID returned error: %v", err)
	}
	if app != nil {
		t.Errorf("FindByID = %+v, want nil", app)
	}
}

func TestPostgresApplicationRepo_UpdateStatus_KeepsInterviewDateOnlyForInterview(t *testing.T) {
	tests := []struct {
		status model.Status
		keep   bool
	}{
		{model.StatusInterview, true},
		{model.StatusOffer, false},
		{model.StatusRejected, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			db, mock := newSQLMock(t)
			repo := NewPostgresApplicationRepo(db)

			mock.ExpectExec(`UPDATE applications SET status`).
				WithArgs("app-1", "user-1", string(tt.status), tt.keep).
				WillReturnResult(sqlmock.NewResult(0, 1))

			ok, err := repo.UpdateStatus(context.Background(), "user-1", "app-1", tt.status)
			if err != nil || !ok {
				t.Errorf("UpdateStatus = %v, %v; want true, nil", ok, err)
			}
		})
	}
}

// saved以外の記録はSQL条件により更新されない
func TestPostgresApplicationRepo_MarkApplied_OnlyFromSaved(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewPostgresApplicationRepo(db)
	today := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec(`UPDATE applications SET status = 'applied'.+AND status = 'saved'`).
		WithArgs("app-1", "user-1", today).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := repo.MarkApplied(context.Background(), "user-1", "app-1", today)
	if err != nil {
		t.Fatalf("MarkApplied returned error: %v", err)
	}
	if ok {
		t.Error("MarkApplied = true, want false")
	}
}

func TestPostgresApplicationRepo_Create_NullInterviewDate(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewPostgresApplicationRepo(db)
	now := time.Now()
	app := &model.Application{
		ID: "app-1", UserID: "user-1", Company: "Acme", Position: "Engineer",
		Status: model.StatusApplied, DateApplied: now, CreatedAt: now, UpdatedAt: now,
	}

	mock.ExpectExec(`INSERT INTO applications`).
		WithArgs("app-1", "user-1", "Acme", "Engineer", "applied", now, "", "", nil, "", now, now).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := repo.Create(context.Background(), app); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
}

func TestPostgresApplicationRepo_UpdateMatchAnalysis_EncodesJSON(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewPostgresApplicationRepo(db)
	analysis := &model.MatchAnalysis{MatchScore: 72, Summary: "ok", Suggestions: []string{"a", "b", "c"}}

	mock.ExpectExec(`UPDATE applications SET match_analysis`).
		WithArgs("app-1", "user-1", []byte(`{"matchScore":72,"summary":"ok","suggestions":["a","b","c"]}`)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := repo.UpdateMatchAnalysis(context.Background(), "user-1", "app-1", analysis)
	if err != nil || !ok {
		t.Errorf("UpdateMatchAnalysis = %v, %v; want true, nil", ok, err)
	}
}
