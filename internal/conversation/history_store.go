package conversation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mohomer/layla-concierge/pkg/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// HistoryStore persists per-conversation message logs as JSON files, one per
// conversation id. Read failures are absorbed (logged, empty history
// returned) so a corrupt file never breaks a turn.
type HistoryStore struct {
	dir       string
	loadTurns int
	saveTurns int
	logger    *logging.Logger
	tracer    trace.Tracer
}

// NewHistoryStore creates the storage directory if absent and returns the
// store. loadTurns bounds what Load returns; saveTurns bounds what Truncated
// keeps. The two bounds are independent.
func NewHistoryStore(dir string, loadTurns, saveTurns int, logger *logging.Logger) (*HistoryStore, error) {
	if dir == "" {
		dir = "conversations"
	}
	if loadTurns <= 0 {
		loadTurns = 6
	}
	if saveTurns <= 0 {
		saveTurns = 10
	}
	if logger == nil {
		logger = logging.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("conversation: failed to create history dir: %w", err)
	}
	return &HistoryStore{
		dir:       dir,
		loadTurns: loadTurns,
		saveTurns: saveTurns,
		logger:    logger,
		tracer:    otel.Tracer("layla.internal.conversation.history"),
	}, nil
}

// Load reads the persisted history for a conversation. Malformed entries are
// filtered out; when the remainder exceeds loadTurns×2 entries only the most
// recent loadTurns turns are returned. Missing files and read errors yield an
// empty history.
func (s *HistoryStore) Load(ctx context.Context, conversationID string) []ChatMessage {
	_, span := s.tracer.Start(ctx, "conversation.load_history")
	defer span.End()

	data, err := os.ReadFile(s.path(conversationID))
	if err != nil {
		if !os.IsNotExist(err) {
			span.RecordError(err)
			s.logger.Error("failed to read history file", "conversation_id", conversationID, "error", err)
		}
		return nil
	}

	var raw []ChatMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		span.RecordError(err)
		s.logger.Error("failed to decode history file", "conversation_id", conversationID, "error", err)
		return nil
	}

	history := make([]ChatMessage, 0, len(raw))
	for _, msg := range raw {
		if !msg.valid() {
			s.logger.Warn("skipping malformed history entry", "conversation_id", conversationID, "role", msg.Role)
			continue
		}
		history = append(history, msg)
	}

	if max := s.loadTurns * 2; len(history) > max {
		s.logger.Info("truncating loaded history",
			"conversation_id", conversationID,
			"entries", len(history),
			"kept_turns", s.loadTurns,
		)
		history = history[len(history)-max:]
	}
	return history
}

// Save overwrites the conversation record with exactly the given sequence.
// Callers apply Truncated beforehand; Save never trims.
func (s *HistoryStore) Save(ctx context.Context, conversationID string, history []ChatMessage) error {
	_, span := s.tracer.Start(ctx, "conversation.save_history")
	defer span.End()

	serializable := make([]ChatMessage, 0, len(history))
	for _, msg := range history {
		if !msg.valid() {
			s.logger.Warn("skipping malformed history entry on save", "conversation_id", conversationID)
			continue
		}
		serializable = append(serializable, msg)
	}

	buf, err := marshalHistory(serializable)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("conversation: failed to marshal history: %w", err)
	}
	if err := os.WriteFile(s.path(conversationID), buf, 0o644); err != nil {
		span.RecordError(err)
		return fmt.Errorf("conversation: failed to write history: %w", err)
	}
	return nil
}

// Truncated applies the save bound: at most saveTurns turns, most recent kept.
func (s *HistoryStore) Truncated(history []ChatMessage) []ChatMessage {
	if max := s.saveTurns * 2; len(history) > max {
		return history[len(history)-max:]
	}
	return history
}

func (s *HistoryStore) path(conversationID string) string {
	return filepath.Join(s.dir, conversationID+".json")
}

// marshalHistory produces indented JSON without escaping non-ASCII text, so
// Arabic (and any other script) stays readable in the files.
func marshalHistory(history []ChatMessage) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(history); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
