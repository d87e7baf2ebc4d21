package handler

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/jobtrail/internal/model"
)

// ApplicationServiceInterface は応募記録ハンドラーが必要とするサービスインターフェース。
type ApplicationServiceInterface interface {
	List(ctx context.Context, userID string) ([]*model.Application, error)
	Get(ctx context.Context, userID, id string) (*model.Application, error)
	Create(ctx context.Context, userID string, in model.ApplicationInput) (*model.Application, error)
	Update(ctx context.Context, userID, id string, in model.ApplicationInput) (*model.Application, error)
	Delete(ctx context.Context, userID, id string) error
	UpdateStatus(ctx context.Context, userID, id string, status model.Status) (*model.Application, error)
	ApplyNow(ctx context.Context, userID, id string) (*model.Application, error)
	ImportFromSearch(ctx context.Context, userID string, job model.Job) (*model.Application, error)
	ExportCSV(ctx context.Context, userID string, w io.Writer) error
}

// ApplicationHandler は応募記録のHTTPハンドラー。
type ApplicationHandler struct {
	service   ApplicationServiceInterface
	validator *RequestValidator
}

// NewApplicationHandler はApplicationHandlerを生成する。
func NewApplicationHandler(service ApplicationServiceInterface, validator *RequestValidator) *ApplicationHandler {
	return &ApplicationHandler{service: service, validator: validator}
}

// applicationRequest は作成・更新リクエストのボディ。
type applicationRequest struct {
	Company       string     `json:"company" validate:"required,max=200"`
	Position      string     `json:"position" validate:"required,max=200"`
	Status        string     `json:"status" validate:"omitempty,oneof=saved applied interview offer rejected"`
	DateApplied   string     `json:"date_applied" validate:"omitempty,datetime=2006-01-02"`
	URL           string     `json:"url" validate:"omitempty,max=2048"`
	Location      string     `json:"location" validate:"max=200"`
	InterviewDate *time.Time `json:"interview_date"`
	Notes         string     `json:"notes" validate:"max=5000"`
}

type statusRequest struct {
	Status string `json:"status" validate:"required,oneof=saved applied interview offer rejected"`
}

type importRequest struct {
	Job model.Job `json:"job"`
}

// applicationResponse は応募記録のAPIレスポンス。
type applicationResponse struct {
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

func toApplicationResponse(app *model.Application) applicationResponse {
	resp := applicationResponse{
		ID:            app.ID,
		Company:       app.Company,
		Position:      app.Position,
		Status:        app.Status,
		URL:           app.URL,
		Location:      app.Location,
		InterviewDate: app.InterviewDate,
		Notes:         app.Notes,
		MatchAnalysis: app.MatchAnalysis,
		CreatedAt:     app.CreatedAt,
		UpdatedAt:     app.UpdatedAt,
	}
	if !app.DateApplied.IsZero() {
		resp.DateApplied = app.DateApplied.Format(model.DateLayout)
	}
	return resp
}

func toApplicationResponses(apps []*model.Application) []applicationResponse {
	out := make([]applicationResponse, 0, len(apps))
	for _, a := range apps {
		out = append(out, toApplicationResponse(a))
	}
	return out
}

func (req *applicationRequest) toInput() model.ApplicationInput {
	in := model.ApplicationInput{
		Company:       req.Company,
		Position:      req.Position,
		Status:        model.Status(req.Status),
		URL:           req.URL,
		Location:      req.Location,
		InterviewDate: req.InterviewDate,
		Notes:         req.Notes,
	}
	if req.DateApplied != "" {
		// validatorで形式は検証済み
		in.DateApplied, _ = time.Parse(model.DateLayout, req.DateApplied)
	}
	return in
}

func (h *ApplicationHandler) decodeApplication(w http.ResponseWriter, r *http.Request) (*applicationRequest, bool) {
	var req applicationRequest
	if err := decodeJSON(r, &req, false); err != nil {
		handleServiceError(w, err)
		return nil, false
	}
	if err := h.validator.Validate(&req); err != nil {
		handleServiceError(w, err)
		return nil, false
	}
	return &req, true
}

// List は応募記録一覧を返す。
// GET /api/applications
func (h *ApplicationHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	apps, err := h.service.List(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toApplicationResponses(apps))
}

// Create は応募記録を作成する。
// POST /api/applications
func (h *ApplicationHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	req, ok := h.decodeApplication(w, r)
	if !ok {
		return
	}
	app, err := h.service.Create(r.Context(), userID, req.toInput())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toApplicationResponse(app))
}

// Get は応募記録を1件返す。
// GET /api/applications/{id}
func (h *ApplicationHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	app, err := h.service.Get(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toApplicationResponse(app))
}

// Update は応募記録を更新する。
// PUT /api/applications/{id}
func (h *ApplicationHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	req, ok := h.decodeApplication(w, r)
	if !ok {
		return
	}
	app, err := h.service.Update(r.Context(), userID, chi.URLParam(r, "id"), req.toInput())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toApplicationResponse(app))
}

// Delete は応募記録を削除する。
// DELETE /api/applications/{id}
func (h *ApplicationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UpdateStatus はステータスを変更する。
// PATCH /api/applications/{id}/status
func (h *ApplicationHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	var req statusRequest
	if err := decodeJSON(r, &req, false); err != nil {
		handleServiceError(w, err)
		return
	}
	if err := h.validator.Validate(&req); err != nil {
		handleServiceError(w, model.NewInvalidStatusError(req.Status))
		return
	}
	app, err := h.service.UpdateStatus(r.Context(), userID, chi.URLParam(r, "id"), model.Status(req.Status))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toApplicationResponse(app))
}

// Apply はsaved状態の求人に応募済みとして記録する。
// POST /api/applications/{id}/apply
func (h *ApplicationHandler) Apply(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	app, err := h.service.ApplyNow(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toApplicationResponse(app))
}

// Import は求人検索結果をsaved状態の応募記録として取り込む。
// POST /api/applications/import
func (h *ApplicationHandler) Import(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	var req importRequest
	if err := decodeJSON(r, &req, false); err != nil {
		handleServiceError(w, err)
		return
	}
	app, err := h.service.ImportFromSearch(r.Context(), userID, req.Job)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toApplicationResponse(app))
}

// ExportCSV は応募記録をCSVでダウンロードさせる。
// GET /api/applications/export.csv
func (h *ApplicationHandler) ExportCSV(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	// エラー時にJSONを返せるよう、いったんバッファに書き出す
	var buf bytes.Buffer
	if err := h.service.ExportCSV(r.Context(), userID, &buf); err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="applications.csv"`)
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		slog.Warn("failed to write csv", slog.String("error", err.Error()))
	}
}
