package config

import (
	"testing"
	"time"
)

func TestLoadAttemptDefaults(t *testing.T) {
	for _, k := range []string{"QUESTIONS_PER_PAGE", "TICK_INTERVAL_MS", "SNAPSHOT_TTL_HOURS", "SUBMIT_LOCK_TTL_MINUTES", "REMOTE_TIMEOUT_MS"} {
		t.Setenv(k, "")
	}

	cfg := Load()

	if cfg.QuestionsPerPage != 10 {
		t.Errorf("QuestionsPerPage = %d", cfg.QuestionsPerPage)
	}
	if cfg.TickInterval != time.Second {
		t.Errorf("TickInterval = %v", cfg.TickInterval)
	}
	if cfg.SnapshotTTL != 168*time.Hour {
		t.Errorf("SnapshotTTL = %v", cfg.SnapshotTTL)
	}
	if cfg.SubmitLockTTL != 30*time.Minute {
		t.Errorf("SubmitLockTTL = %v", cfg.SubmitLockTTL)
	}
	if cfg.RemoteTimeout != 3*time.Second {
		t.Errorf("RemoteTimeout = %v", cfg.RemoteTimeout)
	}
}

func TestLoadOverridesAndBadValues(t *testing.T) {
	t.Setenv("QUESTIONS_PER_PAGE", "25")
	t.Setenv("TICK_INTERVAL_MS", "not-a-number")
	t.Setenv("REMOTE_TIMEOUT_MS", "-5")

	cfg := Load()

	if cfg.QuestionsPerPage != 25 {
		t.Errorf("QuestionsPerPage = %d, want 25", cfg.QuestionsPerPage)
	}
	if cfg.TickInterval != time.Second {
		t.Errorf("bad TICK_INTERVAL_MS should fall back, got %v", cfg.TickInterval)
	}
	if cfg.RemoteTimeout != 3*time.Second {
		t.Errorf("negative REMOTE_TIMEOUT_MS should fall back, got %v", cfg.RemoteTimeout)
	}
}

func TestParseOrigins(t *testing.T) {
	tests := []struct {
		raw  string
		want int
	}{
		{raw: "", want: 0},
		{raw: "https://a.example, https://b.example ,", want: 2},
	}
	for _, tc := range tests {
		if got := parseOrigins(tc.raw); len(got) != tc.want {
			t.Errorf("parseOrigins(%q) = %v", tc.raw, got)
		}
	}
}
