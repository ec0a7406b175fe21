package monitor

import (
	"strings"
	"testing"

	"tapwatch/internal/state"
)

func TestProgressMessage(t *testing.T) {
	t.Parallel()

	snap := Snapshot{
		Counter: 4000,
		Contributors: []state.Contributor{
			{Name: "alice", Amount: 100},
			{Name: "bob", Amount: 50},
		},
	}

	msg := ProgressMessage(snap, 150000)

	if !strings.HasPrefix(msg, "[146000/150000]\n\n") {
		t.Fatalf("unexpected header: %q", msg)
	}
	if !strings.Contains(msg, "alice: 100") || !strings.Contains(msg, "bob: 50") {
		t.Fatalf("contributor lines missing: %q", msg)
	}
	// Contributor order is preserved from the page.
	if strings.Index(msg, "alice: 100") > strings.Index(msg, "bob: 50") {
		t.Fatalf("contributor order not preserved: %q", msg)
	}
	if !strings.Contains(msg, "[97%]") {
		t.Fatalf("percentage missing: %q", msg)
	}
}

func TestProgressBar(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		progress float64
		want     string
	}{
		{name: "empty", progress: 0, want: strings.Repeat("□", 20) + " [0%]"},
		{name: "full", progress: 1, want: strings.Repeat("■", 20) + " [100%]"},
		{name: "half", progress: 0.5, want: strings.Repeat("■", 10) + strings.Repeat("□", 10) + " [50%]"},
		{name: "clamped low", progress: -0.2, want: strings.Repeat("□", 20) + " [0%]"},
		{name: "clamped high", progress: 1.5, want: strings.Repeat("■", 20) + " [100%]"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if got := progressBar(tt.progress); got != tt.want {
				t.Fatalf("progressBar(%v) = %q, want %q", tt.progress, got, tt.want)
			}
		})
	}
}

func TestStartMessageMentionsSite(t *testing.T) {
	t.Parallel()
	if !strings.Contains(StartMessage("https://example.net"), "https://example.net") {
		t.Fatal("start message must carry the site URL")
	}
}
