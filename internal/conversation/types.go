// Package conversation implements the turn pipeline: history persistence,
// pause control, and retrieval-augmented response generation.
package conversation

import "strings"

// Message roles as persisted in conversation history files.
const (
	RoleUser  = "user"
	RoleModel = "model"
)

// ChatMessage is one persisted history entry. Parts holds a single element
// with the message text; the slice shape is kept for file compatibility.
type ChatMessage struct {
	Role  string   `json:"role"`
	Parts []string `json:"parts"`
}

// NewChatMessage builds a single-part history entry.
func NewChatMessage(role, text string) ChatMessage {
	return ChatMessage{Role: role, Parts: []string{text}}
}

// Text returns the first part, or empty if the entry carries none.
func (m ChatMessage) Text() string {
	if len(m.Parts) == 0 {
		return ""
	}
	return m.Parts[0]
}

// valid reports whether the entry has the shape the pipeline relies on.
func (m ChatMessage) valid() bool {
	return m.Role != "" && len(m.Parts) > 0
}

// ReplyKind discriminates the generator's typed result.
type ReplyKind int

const (
	ReplyText ReplyKind = iota
	ReplyImage
)

// Reply is the generator's output, decoded once from the raw model text.
// Side-effect tokens never leak past this boundary.
type Reply struct {
	Kind     ReplyKind
	Text     string
	ImageURL string
	Caption  string
}

// ConversationID projects a raw provider address (e.g. a WhatsApp JID) onto
// the alphanumeric identifier used for history files.
func ConversationID(sender string) string {
	var b strings.Builder
	for _, r := range sender {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// BareSenderID strips the provider domain suffix from a sender address,
// leaving the plain number used in notifications and emails.
func BareSenderID(sender string) string {
	if i := strings.Index(sender, "@"); i >= 0 {
		return sender[:i]
	}
	return sender
}
