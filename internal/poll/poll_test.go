package poll

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hitoshi/jobtrail/internal/client"
	"github.com/hitoshi/jobtrail/internal/model"
)

// 値が揃った時点で停止し、それ以降は読み取らない
func TestUntil_StopsExactlyWhenDone(t *testing.T) {
	var reads atomic.Int32
	got, err := Until(context.Background(), time.Millisecond, func(ctx context.Context) (string, bool, error) {
		n := reads.Add(1)
		if n < 3 {
			return "", false, nil
		}
		return "ready", true, nil
	})
	if err != nil {
		t.Fatalf("Until() error: %v", err)
	}
	if got != "ready" {
		t.Errorf("value = %q, want ready", got)
	}

	time.Sleep(20 * time.Millisecond)
	if n := reads.Load(); n != 3 {
		t.Errorf("reads = %d, want 3", n)
	}
}

func TestUntil_ImmediateRead(t *testing.T) {
	var reads atomic.Int32
	start := time.Now()
	_, err := Until(context.Background(), time.Hour, func(ctx context.Context) (int, bool, error) {
		reads.Add(1)
		return 1, true, nil
	})
	if err != nil {
		t.Fatalf("Until() error: %v", err)
	}
	if time.Since(start) > time.Second {
		t.Error("first read should not wait for the interval")
	}
}

// 0以下のintervalでもpanicせず既定の間隔で読み取る
func TestUntil_NonPositiveInterval(t *testing.T) {
	tests := []struct {
		name     string
		interval time.Duration
	}{
		{"ゼロ", 0},
		{"負の値", -time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var reads atomic.Int32
			got, err := Until(context.Background(), tt.interval, func(ctx context.Context) (int, bool, error) {
				return int(reads.Add(1)), true, nil
			})
			if err != nil {
				t.Fatalf("Until() error: %v", err)
			}
			if got != 1 {
				t.Errorf("value = %d, want 1", got)
			}
		})
	}

	// 既定の間隔で次の読み取りを待つため、短いタイムアウトでキャンセルされる
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	var reads atomic.Int32
	_, err := Until(ctx, 0, func(ctx context.Context) (int, bool, error) {
		reads.Add(1)
		return 0, false, nil
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error = %v, want DeadlineExceeded", err)
	}
	if n := reads.Load(); n != 1 {
		t.Errorf("reads = %d, want 1", n)
	}
}

func TestUntil_ErrorsContinuePolling(t *testing.T) {
	var reads atomic.Int32
	var reported []error
	got, err := Until(context.Background(), time.Millisecond, func(ctx context.Context) (int, bool, error) {
		if reads.Add(1) <= 2 {
			return 0, false, errors.New("temporary")
		}
		return 7, true, nil
	}, WithErrorHandler(func(err error) { reported = append(reported, err) }))
	if err != nil {
		t.Fatalf("Until() error: %v", err)
	}
	if got != 7 || len(reported) != 2 {
		t.Errorf("value = %d, reported = %d", got, len(reported))
	}
}

func TestUntil_ContextCancel(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := Until(ctx, time.Millisecond, func(ctx context.Context) (int, bool, error) {
		return 0, false, nil
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error = %v, want DeadlineExceeded", err)
	}
}

type fakeProfileReader struct {
	calls atomic.Int32
	after int32
}

func (f *fakeProfileReader) GetProfile(ctx context.Context) (*client.Profile, error) {
	if f.calls.Add(1) < f.after {
		return &client.Profile{}, nil
	}
	return &client.Profile{ResumeAnalysis: &model.ResumeAnalysis{Summary: "Go 5年"}}, nil
}

type fakeApplicationReader struct {
	calls atomic.Int32
}

func (f *fakeApplicationReader) GetApplication(ctx context.Context, id string) (*client.Application, error) {
	if f.calls.Add(1) < 2 {
		return &client.Application{ID: id}, nil
	}
	return &client.Application{ID: id, MatchAnalysis: &model.MatchAnalysis{MatchScore: 70}}, nil
}

func TestResumeAnalysis(t *testing.T) {
	r := &fakeProfileReader{after: 3}
	got, err := ResumeAnalysis(context.Background(), r, time.Millisecond)
	if err != nil {
		t.Fatalf("ResumeAnalysis() error: %v", err)
	}
	if got.Summary != "Go 5年" || r.calls.Load() != 3 {
		t.Errorf("got = %+v, calls = %d", got, r.calls.Load())
	}
}

func TestMatchAnalysis(t *testing.T) {
	r := &fakeApplicationReader{}
	got, err := MatchAnalysis(context.Background(), r, "app-1", time.Millisecond)
	if err != nil {
		t.Fatalf("MatchAnalysis() error: %v", err)
	}
	if got.MatchScore != 70 || r.calls.Load() != 2 {
		t.Errorf("got = %+v, calls = %d", got, r.calls.Load())
	}
}
