package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hitoshi/jobtrail/internal/model"
)

const huggingFaceEndpoint = "https://api-inference.huggingface.co/models/"

// defaultColdStartWait はestimated_timeが返されない場合の待機時間。
const defaultColdStartWait = 20 * time.Second

// HuggingFace はHugging Face Inference APIのテキスト生成クライアント。
type HuggingFace struct {
	client   *http.Client
	apiKey   string
	model    string
	endpoint string
	logger   *slog.Logger
	wait     func(ctx context.Context, d time.Duration) error
}

// NewHuggingFace はHuggingFaceを生成する。
func NewHuggingFace(client *http.Client, apiKey, modelName string, logger *slog.Logger) *HuggingFace {
	return &HuggingFace{
		client:   client,
		apiKey:   apiKey,
		model:    modelName,
		endpoint: huggingFaceEndpoint,
		logger:   logger,
		wait:     sleepContext,
	}
}

type hfRequest struct {
	Inputs     string       `json:"inputs"`
	Parameters hfParameters `json:"parameters"`
}

type hfParameters struct {
	MaxNewTokens   int  `json:"max_new_tokens"`
	ReturnFullText bool `json:"return_full_text"`
}

type hfLoading struct {
	Error         string  `json:"error"`
	EstimatedTime float64 `json:"estimated_time"`
}

type hfGenerated struct {
	GeneratedText string `json:"generated_text"`
}

// Generate はプロンプトからテキストを生成する。
// モデルのコールドスタート（503 "is currently loading"）は推定時間待ってから1回だけ再試行する。
func (h *HuggingFace) Generate(ctx context.Context, prompt string) (string, error) {
	if h.apiKey == "" {
		return "", model.NewUpstreamFailedError("huggingface", "APIキーが設定されていません")
	}
	payload, err := json.Marshal(hfRequest{
		Inputs:     prompt,
		Parameters: hfParameters{MaxNewTokens: 512, ReturnFullText: false},
	})
	if err != nil {
		return "", fmt.Errorf("リクエストのエンコードに失敗しました: %w", err)
	}

	status, body, err := h.post(ctx, payload)
	if err != nil {
		return "", err
	}

	if status == http.StatusServiceUnavailable {
		var loading hfLoading
		if json.Unmarshal(body, &loading) == nil && strings.Contains(loading.Error, "is currently loading") {
			d := defaultColdStartWait
			if loading.EstimatedTime > 0 {
				d = time.Duration(loading.EstimatedTime * float64(time.Second))
			}
			h.logger.Info("モデルの起動を待機して再試行します",
				slog.String("model", h.model),
				slog.Float64("wait_seconds", d.Seconds()),
			)
			if err := h.wait(ctx, d); err != nil {
				return "", err
			}
			status, body, err = h.post(ctx, payload)
			if err != nil {
				return "", err
			}
		}
	}

	if status < 200 || status > 299 {
		h.logger.Error("Hugging Face APIがエラーステータスを返しました",
			slog.String("model", h.model),
			slog.Int("http_status", status),
		)
		return "", model.NewUpstreamFailedError("huggingface", fmt.Sprintf("HTTPステータス %d", status))
	}

	var out []hfGenerated
	if err := json.Unmarshal(body, &out); err != nil || len(out) == 0 {
		return "", model.NewMalformedUpstreamError("huggingface", "generated_textがありません")
	}
	return out[0].GeneratedText, nil
}

func (h *HuggingFace) post(ctx context.Context, payload []byte) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint+h.model, bytes.NewReader(payload))
	if err != nil {
		return 0, nil, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+h.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return 0, nil, model.NewUpstreamFailedError("huggingface", err.Error())
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 5<<20))
	if err != nil {
		return 0, nil, model.NewUpstreamFailedError("huggingface", "レスポンスの読み取りに失敗しました")
	}
	return resp.StatusCode, body, nil
}

// sleepContext はdだけ待機する。ctxがキャンセルされた場合は即座に戻る。
func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
