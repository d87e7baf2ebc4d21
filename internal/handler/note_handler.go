package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/jobtrail/internal/model"
)

// NoteServiceInterface はメモハンドラーが必要とするサービスインターフェース。
type NoteServiceInterface interface {
	List(ctx context.Context, userID, applicationID string) ([]*model.Note, error)
	Create(ctx context.Context, userID, applicationID, content string, reminderDate *time.Time) (*model.Note, error)
	Delete(ctx context.Context, userID, noteID string) error
}

// NoteHandler は応募記録に紐づくメモのHTTPハンドラー。
type NoteHandler struct {
	service   NoteServiceInterface
	validator *RequestValidator
}

// NewNoteHandler はNoteHandlerを生成する。
func NewNoteHandler(service NoteServiceInterface, validator *RequestValidator) *NoteHandler {
	return &NoteHandler{service: service, validator: validator}
}

type noteRequest struct {
	Content      string     `json:"content" validate:"required,max=5000"`
	ReminderDate *time.Time `json:"reminder_date"`
}

type noteResponse struct {
	ID             string     `json:"id"`
	ApplicationID  string     `json:"application_id"`
	Content        string     `json:"content"`
	ReminderDate   *time.Time `json:"reminder_date"`
	ReminderSentAt *time.Time `json:"reminder_sent_at"`
	CreatedAt      time.Time  `json:"created_at"`
}

func toNoteResponse(n *model.Note) noteResponse {
	return noteResponse{
		ID:             n.ID,
		ApplicationID:  n.ApplicationID,
		Content:        n.Content,
		ReminderDate:   n.ReminderDate,
		ReminderSentAt: n.ReminderSentAt,
		CreatedAt:      n.CreatedAt,
	}
}

// List は応募記録のメモを作成日時の新しい順で返す。
// GET /api/applications/{id}/notes
func (h *NoteHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	notes, err := h.service.List(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	resp := make([]noteResponse, 0, len(notes))
	for _, n := range notes {
		resp = append(resp, toNoteResponse(n))
	}
	writeJSON(w, http.StatusOK, resp)
}

// Create はメモを追加する。
// POST /api/applications/{id}/notes
func (h *NoteHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	var req noteRequest
	if err := decodeJSON(r, &req, false); err != nil {
		handleServiceError(w, err)
		return
	}
	if err := h.validator.Validate(&req); err != nil {
		handleServiceError(w, err)
		return
	}
	note, err := h.service.Create(r.Context(), userID, chi.URLParam(r, "id"), req.Content, req.ReminderDate)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toNoteResponse(note))
}

// Delete はメモを削除する。
// DELETE /api/notes/{id}
func (h *NoteHandler) Delete(w http.ResponseWriter, r *http.Request) {
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
