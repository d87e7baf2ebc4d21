// Package analytics は応募記録の集計を提供する。
package analytics

import (
	"sort"
	"time"

	"github.com/hitoshi/jobtrail/internal/model"
)

// WeekCount は週ごとの応募件数。WeekStartは日曜日。
type WeekCount struct {
	WeekStart string `json:"weekStart"`
	Count     int    `json:"count"`
}

// Summary は応募記録の集計結果。
type Summary struct {
	Total          int                  `json:"total"`
	CountsByStatus map[model.Status]int `json:"countsByStatus"`
	InterviewRate  float64              `json:"interviewRate"`
	OfferRate      float64              `json:"offerRate"`
	Weekly         []WeekCount          `json:"weekly"`
}

// Summarize は応募記録からステータス別件数、面接率、内定率、週別件数を算出する。
// 入力が空の場合、率は0となる。
func Summarize(apps []*model.Application) Summary {
	s := Summary{
		CountsByStatus: make(map[model.Status]int, 5),
		Weekly:         []WeekCount{},
	}
	for _, st := range model.AllStatuses() {
		s.CountsByStatus[st] = 0
	}

	weeks := make(map[string]int)
	for _, app := range apps {
		if app == nil {
			continue
		}
		s.Total++
		s.CountsByStatus[app.Status]++
		weeks[weekStart(app.DateApplied)]++
	}

	if s.Total > 0 {
		interviews := s.CountsByStatus[model.StatusInterview] + s.CountsByStatus[model.StatusOffer]
		s.InterviewRate = float64(interviews) / float64(s.Total) * 100
		s.OfferRate = float64(s.CountsByStatus[model.StatusOffer]) / float64(s.Total) * 100
	}

	for w, c := range weeks {
		s.Weekly = append(s.Weekly, WeekCount{WeekStart: w, Count: c})
	}
	// yyyy-mm-ddは文字列順と日付順が一致する
	sort.Slice(s.Weekly, func(i, j int) bool { return s.Weekly[i].WeekStart < s.Weekly[j].WeekStart })
	return s
}

func weekStart(d time.Time) string {
	y, m, day := d.Date()
	date := time.Date(y, m, day, 0, 0, 0, 0, time.UTC)
	return date.AddDate(0, 0, -int(date.Weekday())).Format(model.DateLayout)
}
