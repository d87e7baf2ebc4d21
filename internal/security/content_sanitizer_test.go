package security

import (
	"strings"
	"testing"
)

func TestContentSanitizer_Text(t *testing.T) {
	s := NewContentSanitizer()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"プレーンテキストはそのまま", "面接の準備をする", "面接の準備をする"},
		{"scriptタグは中身ごと除去", `電話<script>alert('xss')</script>する`, "電話する"},
		{"装飾タグは除去しテキストを残す", "<p><strong>重要</strong>: 書類提出</p>", "重要: 書類提出"},
		{"イベント属性も除去", `<img src="x" onerror="alert(1)">`, ""},
		{"実体参照は元の文字に戻す", "R&amp;D チーム", "R&D チーム"},
		{"前後の空白を除去", "  メモ  ", "メモ"},
		{"空文字", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.Text(tt.input); got != tt.want {
				t.Errorf("Text(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

// 同一入力に対して常に同一出力を返す
func TestContentSanitizer_Text_Idempotent(t *testing.T) {
	s := NewContentSanitizer()
	input := `<a href="javascript:alert(1)">link</a> & more`
	first := s.Text(input)
	if second := s.Text(first); strings.Contains(second, "<") {
		t.Errorf("Text(Text(x)) = %q, should not contain tags", second)
	}
}

func TestContentSanitizer_Summary(t *testing.T) {
	s := NewContentSanitizer()

	got := s.Summary("<p>Go   エンジニア\n\n募集</p><ul><li>リモート</li></ul>", 0)
	if got != "Go エンジニア 募集リモート" {
		t.Errorf("Summary = %q", got)
	}

	long := strings.Repeat("あ", 20)
	got = s.Summary(long, 5)
	if got != "あああああ…" {
		t.Errorf("Summary(truncated) = %q", got)
	}
}
