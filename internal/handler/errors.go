package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/hitoshi/jobtrail/internal/middleware"
	"github.com/hitoshi/jobtrail/internal/model"
)

// maxJSONBodySize はJSONリクエストボディの上限（1MiB）。
const maxJSONBodySize = 1 << 20

// writeAPIErrorResponse は統一エラーフォーマットでエラーレスポンスを書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	middleware.WriteErrorResponse(w, statusCode, apiErr)
}

func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	middleware.WriteJSON(w, statusCode, v)
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		writeAPIErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	middleware.WriteInternalServerError(w)
}

// handleProxyError は外部APIプロキシ系のエラーを {"error": "..."} 形式で書き込む。
func handleProxyError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Category == "upstream" {
			slog.Warn("upstream request failed",
				slog.String("code", apiErr.Code),
				slog.String("error", apiErr.Message),
			)
		}
		middleware.WriteProxyError(w, mapAPIErrorToHTTPStatus(apiErr), apiErr.Message)
		return
	}

	slog.Error("internal server error", slog.String("error", err.Error()))
	middleware.WriteProxyError(w, http.StatusInternalServerError, "内部エラーが発生しました。")
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case model.ErrCodeInvalidRequest, model.ErrCodeValidation, model.ErrCodeInvalidURL,
		model.ErrCodeInvalidStatus, model.ErrCodeUnsupportedFile, model.ErrCodeUnknownEngine:
		return http.StatusBadRequest
	case model.ErrCodeMissingJobURL, model.ErrCodeMissingResume, model.ErrCodeMissingResumeAnalysis:
		return http.StatusBadRequest
	case model.ErrCodeSSRFBlocked, model.ErrCodeFileForbidden, model.ErrCodeCSRFFailed:
		return http.StatusForbidden
	case model.ErrCodeApplicationNotFound, model.ErrCodeNoteNotFound,
		model.ErrCodeNotificationNotFound, model.ErrCodeUserNotFound, model.ErrCodeUnknownProvider:
		return http.StatusNotFound
	case model.ErrCodeApplyNotAllowed:
		return http.StatusConflict
	case model.ErrCodeMalformedUpstream:
		return http.StatusUnprocessableEntity
	case model.ErrCodeUpstreamFailed:
		return http.StatusBadGateway
	case model.ErrCodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// requireUserID はコンテキストからユーザーIDを取得する。未認証の場合は401を書き込みfalseを返す。
func requireUserID(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return "", false
	}
	return userID, true
}

// decodeJSON はリクエストボディをvにデコードする。空ボディはallowEmptyの場合のみ許可する。
func decodeJSON(r *http.Request, v any, allowEmpty bool) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxJSONBodySize))
	if err := dec.Decode(v); err != nil {
		if allowEmpty && errors.Is(err, io.EOF) {
			return nil
		}
		return model.NewInvalidRequestError()
	}
	return nil
}
