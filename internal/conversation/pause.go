package conversation

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// PauseRegistry tracks which conversations the bot must stay silent in.
// Implementations must be safe for concurrent use.
type PauseRegistry interface {
	IsBlocked(ctx context.Context, conversationID string) bool
	PauseAll(ctx context.Context) error
	// ResumeAll clears the global flag and every scoped pause.
	ResumeAll(ctx context.Context) error
	Pause(ctx context.Context, conversationID string) error
	Resume(ctx context.Context, conversationID string) error
}

// MemoryPauseRegistry is the default mutex-guarded in-process registry.
// State is intentionally not persisted; a restart resumes everything.
type MemoryPauseRegistry struct {
	mu       sync.Mutex
	all      bool
	specific map[string]struct{}
}

// NewMemoryPauseRegistry returns an empty in-memory registry.
func NewMemoryPauseRegistry() *MemoryPauseRegistry {
	return &MemoryPauseRegistry{specific: make(map[string]struct{})}
}

func (r *MemoryPauseRegistry) IsBlocked(_ context.Context, conversationID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.all {
		return true
	}
	_, paused := r.specific[conversationID]
	return paused
}

func (r *MemoryPauseRegistry) PauseAll(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.all = true
	return nil
}

func (r *MemoryPauseRegistry) ResumeAll(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.all = false
	r.specific = make(map[string]struct{})
	return nil
}

func (r *MemoryPauseRegistry) Pause(_ context.Context, conversationID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.specific[conversationID] = struct{}{}
	return nil
}

func (r *MemoryPauseRegistry) Resume(_ context.Context, conversationID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.specific, conversationID)
	return nil
}

const (
	cmdPauseAll     = "bot pause all"
	cmdResumeAll    = "bot resume all"
	cmdPausePrefix  = "bot pause "
	cmdResumePrefix = "bot resume "
)

// ApplyControlCommand interprets the four recognized control command shapes
// against the registry. It returns the acknowledgment to send back to the
// issuer, or ok=false when the text is not a control command and normal
// processing should continue.
func ApplyControlCommand(ctx context.Context, registry PauseRegistry, body string) (reply string, ok bool) {
	normalized := strings.ToLower(strings.TrimSpace(body))

	switch {
	case normalized == cmdPauseAll:
		if err := registry.PauseAll(ctx); err != nil {
			return "Failed to pause the bot. Please try again.", true
		}
		return "Bot is now globally paused.", true

	case normalized == cmdResumeAll:
		if err := registry.ResumeAll(ctx); err != nil {
			return "Failed to resume the bot. Please try again.", true
		}
		return "Bot is now globally resumed. All specific conversation pauses have been cleared.", true

	case strings.HasPrefix(normalized, cmdPausePrefix):
		target := strings.TrimSpace(strings.TrimPrefix(normalized, cmdPausePrefix))
		if target == "" {
			return "Invalid command format. Use: bot pause <target_user_id>", true
		}
		if err := registry.Pause(ctx, target); err != nil {
			return "Failed to pause that conversation. Please try again.", true
		}
		return fmt.Sprintf("Bot interactions will be paused for: %s", target), true

	case strings.HasPrefix(normalized, cmdResumePrefix):
		target := strings.TrimSpace(strings.TrimPrefix(normalized, cmdResumePrefix))
		if target == "" {
			return "Invalid command format. Use: bot resume <target_user_id>", true
		}
		if err := registry.Resume(ctx, target); err != nil {
			return "Failed to resume that conversation. Please try again.", true
		}
		return fmt.Sprintf("Bot interactions will be resumed for: %s", target), true
	}

	return "", false
}
