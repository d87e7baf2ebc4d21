package model

import (
	"errors"
	"testing"
)

func TestParseStatus(t *testing.T) {
	tests := []struct {
		in      string
		want    Status
		wantErr bool
	}{
		{"saved", StatusSaved, false},
		{"Applied", StatusApplied, false},
		{" interview ", StatusInterview, false},
		{"offer", StatusOffer, false},
		{"rejected", StatusRejected, false},
		{"", "", true},
		{"archived", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseStatus(tt.in)
			if tt.wantErr {
				var apiErr *APIError
				if !errors.As(err, &apiErr) || apiErr.Code != ErrCodeInvalidStatus {
					t.Fatalf("ParseStatus(%q) error = %v, want INVALID_STATUS", tt.in, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseStatus(%q) unexpected error: %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ParseStatus(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestAllStatuses_ColumnOrder(t *testing.T) {
	got := AllStatuses()
	want := []Status{StatusSaved, StatusApplied, StatusInterview, StatusOffer, StatusRejected}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("AllStatuses()[%d] = %q, want %q", i, got[i], want[i])
		}
		if !got[i].Valid() {
			t.Errorf("%q should be valid", got[i])
		}
	}
}
