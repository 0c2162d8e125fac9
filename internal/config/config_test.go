package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Port)
	}
	if cfg.HistoryLoadTurns != 6 {
		t.Errorf("expected default load bound of 6 turns, got %d", cfg.HistoryLoadTurns)
	}
	if cfg.HistorySaveTurns != 10 {
		t.Errorf("expected default save bound of 10 turns, got %d", cfg.HistorySaveTurns)
	}
	if cfg.DisplayTimezone != "Asia/Dubai" {
		t.Errorf("unexpected display timezone %s", cfg.DisplayTimezone)
	}
	if cfg.StorageTimezone != "America/New_York" {
		t.Errorf("unexpected storage timezone %s", cfg.StorageTimezone)
	}
	if cfg.OutreachMessageDelay != 5*time.Second {
		t.Errorf("unexpected outreach delay %s", cfg.OutreachMessageDelay)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("HISTORY_LOAD_TURNS", "3")
	t.Setenv("OUTREACH_MESSAGE_DELAY_SECONDS", "2s")
	t.Setenv("OPENAI_MODEL", "gpt-4o-mini")

	cfg := Load()
	if cfg.HistoryLoadTurns != 3 {
		t.Errorf("expected load bound 3, got %d", cfg.HistoryLoadTurns)
	}
	if cfg.OutreachMessageDelay != 2*time.Second {
		t.Errorf("expected 2s delay, got %s", cfg.OutreachMessageDelay)
	}
	if cfg.OpenAIModel != "gpt-4o-mini" {
		t.Errorf("expected model override, got %s", cfg.OpenAIModel)
	}
}

func TestDurationAcceptsBareSeconds(t *testing.T) {
	t.Setenv("OUTREACH_MESSAGE_DELAY_SECONDS", "7")
	cfg := Load()
	if cfg.OutreachMessageDelay != 7*time.Second {
		t.Errorf("expected 7s delay from bare integer, got %s", cfg.OutreachMessageDelay)
	}
}
