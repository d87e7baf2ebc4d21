package search

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/hitoshi/jobtrail/internal/model"
)

// DefaultRemoteOKEndpoint はRemoteOK APIのエンドポイント。
const DefaultRemoteOKEndpoint = "https://remoteok.com/api"

// RemoteOK はRemoteOK公開APIの求人検索ソース。
type RemoteOK struct {
	client   *http.Client
	endpoint string
}

// NewRemoteOK はRemoteOKを生成する。endpointが空の場合は既定値を使う。
func NewRemoteOK(client *http.Client, endpoint string) *RemoteOK {
	if endpoint == "" {
		endpoint = DefaultRemoteOKEndpoint
	}
	return &RemoteOK{client: client, endpoint: endpoint}
}

// Name はソース名を返す。
func (r *RemoteOK) Name() string { return "remoteok" }

type remoteOKJob struct {
	ID       json.RawMessage `json:"id"`
	Company  string          `json:"company"`
	Position string          `json:"position"`
	Tags     []string        `json:"tags"`
	Location string          `json:"location"`
	URL      string          `json:"url"`
	ApplyURL string          `json:"apply_url"`
}

// Search はタグ検索を行う。応答の先頭要素は利用規約のため除外する。
func (r *RemoteOK) Search(ctx context.Context, term string) ([]model.Job, error) {
	tag := strings.ToLower(strings.Join(strings.Fields(term), "-"))
	body, err := getBody(ctx, r.client, r.Name(), r.endpoint+"?"+url.Values{"tag": {tag}}.Encode())
	if err != nil {
		return nil, err
	}

	var raw []remoteOKJob
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, model.NewMalformedUpstreamError(r.Name(), "配列形式ではありません")
	}
	if len(raw) > 0 {
		raw = raw[1:]
	}

	jobs := make([]model.Job, 0, len(raw))
	for _, j := range raw {
		id := string(bytes.Trim(j.ID, `"`))
		if id == "" || j.Position == "" {
			continue
		}
		link := j.URL
		if link == "" {
			link = j.ApplyURL
		}
		tags := j.Tags
		if tags == nil {
			tags = []string{}
		}
		jobs = append(jobs, model.Job{
			ID:       "remoteok-" + id,
			Company:  j.Company,
			Position: j.Position,
			Tags:     tags,
			Location: j.Location,
			URL:      link,
		})
	}
	return jobs, nil
}
