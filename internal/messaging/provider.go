// Package messaging sends WhatsApp messages through an HTTP gateway.
package messaging

import (
	"context"
	"strings"
)

// Button is one quick-reply option on an interactive message.
type Button struct {
	Title string
	ID    string
}

// InteractiveMessage is a button-carrying message. Header and Footer are
// optional; at least one button is required.
type InteractiveMessage struct {
	Header  string
	Body    string
	Footer  string
	Buttons []Button
}

// Provider delivers messages to a WhatsApp recipient. Implementations retry
// internally; a returned error means delivery ultimately failed.
type Provider interface {
	SendText(ctx context.Context, to, text string) error
	SendImage(ctx context.Context, to, caption, imageURL string) error
	SendButtons(ctx context.Context, to string, msg InteractiveMessage) error
}

// NormalizePhone reduces a raw phone entry to its digits and appends the
// WhatsApp JID domain. Returns "" when no digits remain.
func NormalizePhone(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return ""
	}
	return b.String() + "@s.whatsapp.net"
}

// NormalizeRecipient strips the JID domain for gateways that address by bare
// number.
func NormalizeRecipient(to string) string {
	if strings.Contains(to, "@s.whatsapp.net") {
		return strings.SplitN(to, "@", 2)[0]
	}
	return to
}
