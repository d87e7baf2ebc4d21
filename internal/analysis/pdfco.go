package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/hitoshi/jobtrail/internal/model"
)

const pdfcoEndpoint = "https://api.pdf.co/v1/pdf/convert/to/text-simple"

// PDFCo はPDF.coのPDF→テキスト変換APIクライアント。
type PDFCo struct {
	client   *http.Client
	apiKey   string
	endpoint string
}

// NewPDFCo はPDFCoを生成する。
func NewPDFCo(client *http.Client, apiKey string) *PDFCo {
	return &PDFCo{client: client, apiKey: apiKey, endpoint: pdfcoEndpoint}
}

type pdfcoResponse struct {
	Error   bool   `json:"error"`
	Message string `json:"message"`
	Body    string `json:"body"`
}

// ExtractText は署名付きURLのPDFからテキストを抽出する。
func (p *PDFCo) ExtractText(ctx context.Context, fileURL string) (string, error) {
	if p.apiKey == "" {
		return "", model.NewUpstreamFailedError("pdfco", "APIキーが設定されていません")
	}

	payload, err := json.Marshal(map[string]any{"url": fileURL, "inline": true})
	if err != nil {
		return "", fmt.Errorf("リクエストのエンコードに失敗しました: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("x-api-key", p.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", model.NewUpstreamFailedError("pdfco", err.Error())
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return "", model.NewUpstreamFailedError("pdfco", "レスポンスの読み取りに失敗しました")
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", model.NewUpstreamFailedError("pdfco", fmt.Sprintf("HTTPステータス %d", resp.StatusCode))
	}

	var result pdfcoResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", model.NewMalformedUpstreamError("pdfco", "JSONではありません")
	}
	if result.Error {
		return "", model.NewUpstreamFailedError("pdfco", result.Message)
	}
	return result.Body, nil
}
