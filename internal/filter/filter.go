// Package filter は応募一覧の検索フィルターを提供する。
package filter

import (
	"strings"
	"sync"

	"github.com/hitoshi/jobtrail/internal/client"
)

// Apply は会社名または職種にqueryを含む記録を返す。大文字小文字は区別しない。
// 入力スライスは変更せず、常に新しいスライスを返す。
func Apply(apps []client.Application, query string) []client.Application {
	q := strings.ToLower(strings.TrimSpace(query))
	out := make([]client.Application, 0, len(apps))
	for _, a := range apps {
		if q == "" ||
			strings.Contains(strings.ToLower(a.Company), q) ||
			strings.Contains(strings.ToLower(a.Position), q) {
			out = append(out, a)
		}
	}
	return out
}

// Memo はApplyの結果をキャッシュする。
// 一覧のバージョンとqueryのどちらかが変わったときだけ再計算する。
type Memo struct {
	mu       sync.Mutex
	valid    bool
	version  int
	query    string
	result   []client.Application
	computed int
}

// Get はversionの一覧appsにqueryを適用した結果を返す。
func (m *Memo) Get(version int, apps []client.Application, query string) []client.Application {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.valid || m.version != version || m.query != query {
		m.result = Apply(apps, query)
		m.version = version
		m.query = query
		m.valid = true
		m.computed++
	}
	out := make([]client.Application, len(m.result))
	copy(out, m.result)
	return out
}
