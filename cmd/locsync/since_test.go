package main

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/steveyegge/locsync/internal/store"
)

func TestParseSince(t *testing.T) {
	now := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		in   string
		want time.Time
	}{
		{"2026-10-01T08:30:00Z", time.Date(2026, 10, 1, 8, 30, 0, 0, time.UTC)},
		{"2026-10-01 08:30", time.Date(2026, 10, 1, 8, 30, 0, 0, time.UTC)},
		{"2026-10-01", time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)},
		{" 2 hours ago ", now.Add(-2 * time.Hour)},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseSince(tt.in, now)
			if err != nil {
				t.Fatalf("parseSince(%q) error: %v", tt.in, err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("parseSince(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}

	if _, err := parseSince("gibberish", now); err == nil {
		t.Error("parseSince(gibberish) succeeded, want error")
	}
}

func TestLogsSince(t *testing.T) {
	base := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)
	logs := []*store.SyncLog{
		{ID: "c", StartedAt: base},
		{ID: "b", StartedAt: base.Add(-time.Hour)},
		{ID: "a", StartedAt: base.Add(-2 * time.Hour)},
	}

	ids := func(logs []*store.SyncLog) []string {
		var out []string
		for _, l := range logs {
			out = append(out, l.ID)
		}
		return out
	}

	if diff := cmp.Diff([]string{"c", "b"}, ids(logsSince(logs, base.Add(-time.Hour)))); diff != "" {
		t.Errorf("logsSince mismatch (-want +got):\n%s", diff)
	}
	if got := logsSince(logs, base.Add(time.Minute)); len(got) != 0 {
		t.Errorf("logsSince(future) = %v, want none", ids(got))
	}
	if got := logsSince(logs, time.Time{}); len(got) != 3 {
		t.Errorf("logsSince(zero) = %v, want all", ids(got))
	}
}
