package config

import (
	"testing"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	if cfg.Poll != "2s" {
		t.Errorf("Poll: got %q, want %q", cfg.Poll, "2s")
	}
	if cfg.Replay != ReplayEnd {
		t.Errorf("Replay: got %q, want %q", cfg.Replay, ReplayEnd)
	}
}

func TestMergeFile(t *testing.T) {
	cfg := Defaults()
	mergeFile(cfg, &Config{
		ClaudeToken: "tok-claude",
		ChatID:      -100123,
		Poll:        "5s",
	})

	if cfg.ClaudeToken != "tok-claude" {
		t.Errorf("ClaudeToken: got %q, want %q", cfg.ClaudeToken, "tok-claude")
	}
	if cfg.ChatID != -100123 {
		t.Errorf("ChatID: got %d, want %d", cfg.ChatID, -100123)
	}
	if cfg.Poll != "5s" {
		t.Errorf("Poll: got %q, want %q", cfg.Poll, "5s")
	}
	// Untouched fields keep defaults.
	if cfg.Replay != ReplayEnd {
		t.Errorf("Replay: got %q, want %q", cfg.Replay, ReplayEnd)
	}
}

func TestMergeEnvOverridesFile(t *testing.T) {
	t.Setenv("PANETONE_TOKEN_CLAUDE", "env-token")
	t.Setenv("PANETONE_CHAT", "-100999")
	t.Setenv("PANETONE_OWNER", "42")
	t.Setenv("PANETONE_REPLAY", "start")

	cfg := Defaults()
	mergeFile(cfg, &Config{ClaudeToken: "file-token", ChatID: -100123})
	mergeEnv(cfg)

	if cfg.ClaudeToken != "env-token" {
		t.Errorf("ClaudeToken: got %q, want %q", cfg.ClaudeToken, "env-token")
	}
	if cfg.ChatID != -100999 {
		t.Errorf("ChatID: got %d, want %d", cfg.ChatID, -100999)
	}
	if cfg.OwnerID != 42 {
		t.Errorf("OwnerID: got %d, want %d", cfg.OwnerID, 42)
	}
	if cfg.Replay != ReplayStart {
		t.Errorf("Replay: got %q, want %q", cfg.Replay, ReplayStart)
	}
}

func TestValidate(t *testing.T) {
	cfg := &Config{ClaudeToken: "tok", ChatID: -100123}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}

	cfg = &Config{ChatID: -100123}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for missing claude token")
	}

	cfg = &Config{ClaudeToken: "tok"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for missing chat id")
	}
}

func TestLoadRejectsBadReplayMode(t *testing.T) {
	t.Setenv("PANETONE_REPLAY", "bogus")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for invalid replay mode")
	}
}

func TestLoadRejectsBadPollInterval(t *testing.T) {
	t.Setenv("PANETONE_REPLAY", "end")
	t.Setenv("PANETONE_POLL", "not-a-duration")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for invalid poll interval")
	}
}
