package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/hitoshi/jobtrail/internal/model"
)

// JobSearcher は求人検索プロキシのインターフェース。
type JobSearcher interface {
	Search(ctx context.Context, term, engine string) ([]model.Job, error)
}

// Analyzer はAI解析プロキシのインターフェース。
type Analyzer interface {
	AnalyzeResume(ctx context.Context, userID string) (*model.ResumeAnalysis, error)
	ScoreMatch(ctx context.Context, userID, applicationID string) (*model.MatchAnalysis, error)
}

// ProxyHandler は外部APIを中継するHTTPハンドラー。
// エラーは {"error": "..."} 形式で返す。
type ProxyHandler struct {
	searcher JobSearcher
	analyzer Analyzer
}

// NewProxyHandler はProxyHandlerを生成する。
func NewProxyHandler(searcher JobSearcher, analyzer Analyzer) *ProxyHandler {
	return &ProxyHandler{searcher: searcher, analyzer: analyzer}
}

type jobSearchRequest struct {
	SearchTerm string `json:"searchTerm"`
	Engine     string `json:"engine"`
}

type jobSearchResponse struct {
	Jobs []model.Job `json:"jobs"`
}

type matchRequest struct {
	ApplicationID string `json:"applicationId"`
}

type analysisResponse struct {
	Success  bool `json:"success"`
	Analysis any  `json:"analysis"`
}

// JobSearch は求人を検索する。
// POST /api/job-search
func (h *ProxyHandler) JobSearch(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireUserID(w, r); !ok {
		return
	}
	var req jobSearchRequest
	if err := decodeJSON(r, &req, false); err != nil {
		handleProxyError(w, err)
		return
	}
	if strings.TrimSpace(req.SearchTerm) == "" {
		handleProxyError(w, model.NewValidationError("searchTerm", "必須です"))
		return
	}
	jobs, err := h.searcher.Search(r.Context(), req.SearchTerm, req.Engine)
	if err != nil {
		handleProxyError(w, err)
		return
	}
	if jobs == nil {
		jobs = []model.Job{}
	}
	writeJSON(w, http.StatusOK, jobSearchResponse{Jobs: jobs})
}

// AnalyzeResume はアップロード済み履歴書を解析する。
// POST /api/profile/analyze-resume
func (h *ProxyHandler) AnalyzeResume(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	analysis, err := h.analyzer.AnalyzeResume(r.Context(), userID)
	if err != nil {
		handleProxyError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, analysisResponse{Success: true, Analysis: analysis})
}

// Match は履歴書と応募先の適合度を採点する。
// POST /api/match
func (h *ProxyHandler) Match(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	var req matchRequest
	if err := decodeJSON(r, &req, false); err != nil {
		handleProxyError(w, err)
		return
	}
	if req.ApplicationID == "" {
		handleProxyError(w, model.NewValidationError("applicationId", "必須です"))
		return
	}
	analysis, err := h.analyzer.ScoreMatch(r.Context(), userID, req.ApplicationID)
	if err != nil {
		handleProxyError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, analysisResponse{Success: true, Analysis: analysis})
}
