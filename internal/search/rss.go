package search

import (
	"context"
	"net/http"
	"strings"

	"github.com/mmcdole/gofeed"

	"github.com/hitoshi/jobtrail/internal/model"
	"github.com/hitoshi/jobtrail/internal/security"
)

// RSS は求人ボードのRSS/Atomフィードを検索ソースとして扱う。
// フィードはSSRF対策済みのクライアントで取得する。
type RSS struct {
	client    *http.Client
	feeds     []string
	sanitizer security.Sanitizer
}

// NewRSS はRSSを生成する。
func NewRSS(client *http.Client, feeds []string, sanitizer security.Sanitizer) *RSS {
	return &RSS{client: client, feeds: feeds, sanitizer: sanitizer}
}

// Name はソース名を返す。
func (r *RSS) Name() string { return "rss" }

// Search は全フィードを取得し、タイトルまたは本文に検索語を含む記事を返す。
// 一部のフィードが失敗しても、1件でも取得できれば結果を返す。
func (r *RSS) Search(ctx context.Context, term string) ([]model.Job, error) {
	needle := strings.ToLower(term)
	var (
		jobs    []model.Job
		lastErr error
		ok      int
	)
	for _, feedURL := range r.feeds {
		feed, err := r.fetch(ctx, feedURL)
		if err != nil {
			lastErr = err
			continue
		}
		ok++
		for _, item := range feed.Items {
			if item == nil {
				continue
			}
			if job, match := r.convert(feed, item, needle); match {
				jobs = append(jobs, job)
			}
		}
	}
	if ok == 0 && lastErr != nil {
		return nil, lastErr
	}
	if jobs == nil {
		jobs = []model.Job{}
	}
	return jobs, nil
}

func (r *RSS) fetch(ctx context.Context, feedURL string) (*gofeed.Feed, error) {
	body, err := getBody(ctx, r.client, r.Name(), feedURL)
	if err != nil {
		return nil, err
	}
	feed, err := gofeed.NewParser().ParseString(string(body))
	if err != nil {
		return nil, model.NewMalformedUpstreamError(r.Name(), "フィードを解析できません")
	}
	return feed, nil
}

func (r *RSS) convert(feed *gofeed.Feed, item *gofeed.Item, needle string) (model.Job, bool) {
	title := r.sanitizer.Text(item.Title)
	desc := r.sanitizer.Text(item.Description)
	if !strings.Contains(strings.ToLower(title), needle) && !strings.Contains(strings.ToLower(desc), needle) {
		return model.Job{}, false
	}

	company := ""
	if item.Author != nil {
		company = item.Author.Name
	}
	if company == "" && len(item.Authors) > 0 && item.Authors[0] != nil {
		company = item.Authors[0].Name
	}
	if company == "" {
		company = feed.Title
	}

	key := item.GUID
	if key == "" {
		key = item.Link
	}
	tags := item.Categories
	if tags == nil {
		tags = []string{}
	}
	return model.Job{
		ID:       "rss-" + key,
		Company:  company,
		Position: title,
		Tags:     tags,
		URL:      item.Link,
	}, true
}
