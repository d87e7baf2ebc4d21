// Package search は外部求人検索APIのプロキシと結果の正規化を提供する。
package search

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/hitoshi/jobtrail/internal/model"
)

// Source は1つの求人検索ソース。
type Source interface {
	Name() string
	Search(ctx context.Context, term string) ([]model.Job, error)
}

// userAgent は外部APIへのリクエストに付与するUser-Agent。
const userAgent = "jobtrail/1.0 (+job application tracker)"

// maxResponseSize は外部APIの応答ボディの読み取り上限。
const maxResponseSize = 5 << 20

// getBody はGETリクエストを送信し、2xxの応答ボディを返す。
func getBody(ctx context.Context, client *http.Client, upstream, reqURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json, application/rss+xml, application/atom+xml, */*")

	resp, err := client.Do(req)
	if err != nil {
		return nil, model.NewUpstreamFailedError(upstream, err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, model.NewUpstreamFailedError(upstream, fmt.Sprintf("HTTPステータス %d", resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, model.NewUpstreamFailedError(upstream, "レスポンスの読み取りに失敗しました")
	}
	return body, nil
}
