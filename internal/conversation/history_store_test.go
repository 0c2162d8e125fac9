package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mohomer/layla-concierge/pkg/logging"
)

func newTestStore(t *testing.T, loadTurns, saveTurns int) *HistoryStore {
	t.Helper()
	store, err := NewHistoryStore(t.TempDir(), loadTurns, saveTurns, logging.Default())
	if err != nil {
		t.Fatalf("NewHistoryStore: %v", err)
	}
	return store
}

func TestLoadMissingFileReturnsEmpty(t *testing.T) {
	store := newTestStore(t, 6, 10)
	if got := store.Load(context.Background(), "nobody"); len(got) != 0 {
		t.Fatalf("expected empty history, got %d entries", len(got))
	}
}

func TestLoadTruncatesToMostRecentTurns(t *testing.T) {
	store := newTestStore(t, 6, 10)
	ctx := context.Background()

	var history []ChatMessage
	for i := 0; i < 20; i++ {
		history = append(history,
			NewChatMessage(RoleUser, fmt.Sprintf("question %d", i)),
			NewChatMessage(RoleModel, fmt.Sprintf("answer %d", i)),
		)
	}
	if err := store.Save(ctx, "u1", history); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got := store.Load(ctx, "u1")
	if len(got) != 12 {
		t.Fatalf("expected 12 entries (6 turns), got %d", len(got))
	}
	if got[0].Text() != "question 14" {
		t.Errorf("expected oldest kept entry to be question 14, got %q", got[0].Text())
	}
	if got[11].Text() != "answer 19" {
		t.Errorf("expected newest entry to be answer 19, got %q", got[11].Text())
	}
}

func TestLoadFiltersMalformedEntries(t *testing.T) {
	dir := t.TempDir()
	store, err := NewHistoryStore(dir, 6, 10, logging.Default())
	if err != nil {
		t.Fatalf("NewHistoryStore: %v", err)
	}

	raw := `[
		{"role": "user", "parts": ["hello"]},
		{"parts": ["missing role"]},
		{"role": "model"},
		{"role": "model", "parts": ["hi there"]}
	]`
	if err := os.WriteFile(filepath.Join(dir, "u2.json"), []byte(raw), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	got := store.Load(context.Background(), "u2")
	if len(got) != 2 {
		t.Fatalf("expected 2 valid entries, got %d", len(got))
	}
	if got[0].Text() != "hello" || got[1].Text() != "hi there" {
		t.Errorf("unexpected entries: %#v", got)
	}
}

func TestLoadCorruptFileReturnsEmpty(t *testing.T) {
	dir := t.TempDir()
	store, err := NewHistoryStore(dir, 6, 10, logging.Default())
	if err != nil {
		t.Fatalf("NewHistoryStore: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "u3.json"), []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	if got := store.Load(context.Background(), "u3"); got != nil {
		t.Fatalf("expected nil history for corrupt file, got %#v", got)
	}
}

func TestSavePreservesUnicode(t *testing.T) {
	dir := t.TempDir()
	store, err := NewHistoryStore(dir, 6, 10, logging.Default())
	if err != nil {
		t.Fatalf("NewHistoryStore: %v", err)
	}
	ctx := context.Background()

	history := []ChatMessage{
		NewChatMessage(RoleUser, "مرحبا"),
		NewChatMessage(RoleModel, "هلا والله! 👋"),
	}
	if err := store.Save(ctx, "u4", history); err != nil {
		t.Fatalf("Save: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "u4.json"))
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if !strings.Contains(string(data), "مرحبا") {
		t.Error("expected Arabic text stored unescaped")
	}

	var decoded []ChatMessage
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded[1].Text() != "هلا والله! 👋" {
		t.Errorf("round trip mismatch: %q", decoded[1].Text())
	}
}

func TestTruncatedAppliesSaveBound(t *testing.T) {
	store := newTestStore(t, 6, 10)

	var history []ChatMessage
	for i := 0; i < 15; i++ {
		history = append(history,
			NewChatMessage(RoleUser, fmt.Sprintf("q%d", i)),
			NewChatMessage(RoleModel, fmt.Sprintf("a%d", i)),
		)
	}
	got := store.Truncated(history)
	if len(got) != 20 {
		t.Fatalf("expected 20 entries (10 turns), got %d", len(got))
	}
	if got[0].Text() != "q5" {
		t.Errorf("expected truncation to keep most recent, got first %q", got[0].Text())
	}

	short := history[:4]
	if out := store.Truncated(short); len(out) != 4 {
		t.Errorf("short history must pass through untouched, got %d", len(out))
	}
}
