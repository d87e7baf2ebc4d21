package client

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/hitoshi/jobtrail/internal/model"
)

// User はログインユーザー。
type User struct {
	ID      string   `json:"id"`
	Email   string   `json:"email"`
	Name    string   `json:"name"`
	Profile *Profile `json:"profile,omitempty"`
}

// Profile はユーザーのプロフィール。
type Profile struct {
	DisplayName    string                `json:"display_name"`
	AvatarPath     string                `json:"avatar_path"`
	ResumePath     string                `json:"resume_path"`
	ResumeAnalysis *model.ResumeAnalysis `json:"resume_analysis"`
	UpdatedAt      time.Time             `json:"updated_at"`
}

// Application は応募記録。
type Application struct {
	ID            string               `json:"id"`
	Company       string               `json:"company"`
	Position      string               `json:"position"`
	Status        model.Status         `json:"status"`
	DateApplied   string               `json:"date_applied"`
	URL           string               `json:"url"`
	Location      string               `json:"location"`
	InterviewDate *time.Time           `json:"interview_date"`
	Notes         string               `json:"notes"`
	MatchAnalysis *model.MatchAnalysis `json:"match_analysis"`
	CreatedAt     time.Time            `json:"created_at"`
	UpdatedAt     time.Time            `json:"updated_at"`
}

// ApplicationInput は応募記録の作成内容。DateAppliedはYYYY-MM-DD形式。
type ApplicationInput struct {
	Company       string       `json:"company"`
	Position      string       `json:"position"`
	Status        model.Status `json:"status,omitempty"`
	DateApplied   string       `json:"date_applied,omitempty"`
	URL           string       `json:"url,omitempty"`
	Location      string       `json:"location,omitempty"`
	InterviewDate *time.Time   `json:"interview_date,omitempty"`
	Notes         string       `json:"notes,omitempty"`
}

// Me は現在のユーザーを返す。未ログインの場合は401の*Errorを返す。
func (c *Client) Me(ctx context.Context) (*User, error) {
	var u User
	if err := c.do(ctx, http.MethodGet, "/auth/me", nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// Logout はセッションを破棄する。
func (c *Client) Logout(ctx context.Context) error {
	err := c.do(ctx, http.MethodPost, "/auth/logout", nil, nil)
	c.setToken("")
	return err
}

// RefreshSession はセッションの有効期限を延長する。
func (c *Client) RefreshSession(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/auth/refresh", nil, nil)
}

func (c *Client) ListApplications(ctx context.Context) ([]Application, error) {
	var apps []Application
	if err := c.do(ctx, http.MethodGet, "/api/applications", nil, &apps); err != nil {
		return nil, err
	}
	return apps, nil
}

func (c *Client) GetApplication(ctx context.Context, id string) (*Application, error) {
	var app Application
	if err := c.do(ctx, http.MethodGet, "/api/applications/"+url.PathEscape(id), nil, &app); err != nil {
		return nil, err
	}
	return &app, nil
}

func (c *Client) CreateApplication(ctx context.Context, in ApplicationInput) (*Application, error) {
	var app Application
	if err := c.do(ctx, http.MethodPost, "/api/applications", in, &app); err != nil {
		return nil, err
	}
	return &app, nil
}

// UpdateStatus は応募記録のステータスを変更する。
func (c *Client) UpdateStatus(ctx context.Context, id string, status model.Status) (*Application, error) {
	var app Application
	body := map[string]model.Status{"status": status}
	if err := c.do(ctx, http.MethodPatch, "/api/applications/"+url.PathEscape(id)+"/status", body, &app); err != nil {
		return nil, err
	}
	return &app, nil
}

// ApplyNow はsaved状態の記録をappliedにする。
func (c *Client) ApplyNow(ctx context.Context, id string) (*Application, error) {
	var app Application
	if err := c.do(ctx, http.MethodPost, "/api/applications/"+url.PathEscape(id)+"/apply", nil, &app); err != nil {
		return nil, err
	}
	return &app, nil
}

// ImportJob は検索結果の求人をsaved状態で取り込む。
func (c *Client) ImportJob(ctx context.Context, job model.Job) (*Application, error) {
	var app Application
	body := map[string]model.Job{"job": job}
	if err := c.do(ctx, http.MethodPost, "/api/applications/import", body, &app); err != nil {
		return nil, err
	}
	return &app, nil
}

// SearchJobs は求人検索プロキシを呼び出す。engineが空の場合はサーバー既定のエンジンを使う。
func (c *Client) SearchJobs(ctx context.Context, term, engine string) ([]model.Job, error) {
	var resp struct {
		Jobs []model.Job `json:"jobs"`
	}
	body := map[string]string{"searchTerm": term, "engine": engine}
	if err := c.do(ctx, http.MethodPost, "/api/job-search", body, &resp); err != nil {
		return nil, err
	}
	return resp.Jobs, nil
}

func (c *Client) GetProfile(ctx context.Context) (*Profile, error) {
	var p Profile
	if err := c.do(ctx, http.MethodGet, "/api/profile", nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// AnalyzeResume は履歴書解析を開始する。結果はプロフィールに保存される。
func (c *Client) AnalyzeResume(ctx context.Context) (*model.ResumeAnalysis, error) {
	var resp struct {
		Analysis *model.ResumeAnalysis `json:"analysis"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/profile/analyze-resume", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Analysis, nil
}

// Match は応募先との適合度採点を開始する。結果は応募記録に保存される。
func (c *Client) Match(ctx context.Context, applicationID string) (*model.MatchAnalysis, error) {
	var resp struct {
		Analysis *model.MatchAnalysis `json:"analysis"`
	}
	body := map[string]string{"applicationId": applicationID}
	if err := c.do(ctx, http.MethodPost, "/api/match", body, &resp); err != nil {
		return nil, err
	}
	return resp.Analysis, nil
}

func (c *Client) UnreadCount(ctx context.Context) (int, error) {
	var resp struct {
		Count int `json:"count"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/notifications/unread-count", nil, &resp); err != nil {
		return 0, err
	}
	return resp.Count, nil
}

func (c *Client) MarkAllRead(ctx context.Context) (int64, error) {
	var resp struct {
		Updated int64 `json:"updated"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/notifications/read-all", nil, &resp); err != nil {
		return 0, err
	}
	return resp.Updated, nil
}
