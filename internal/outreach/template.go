// Package outreach runs WhatsApp campaigns over a contact sheet.
package outreach

import (
	"strings"

	"github.com/mohomer/layla-concierge/internal/messaging"
)

const (
	defaultClientName  = "Valued Customer"
	defaultServiceName = "our services"
)

// Template is the campaign message loaded from the template sheet. When the
// interactive form has buttons it wins over the simple text form.
type Template struct {
	Interactive messaging.InteractiveMessage
	Simple      string
}

// HasInteractive reports whether the interactive form is usable.
func (t Template) HasInteractive() bool {
	return t.Interactive.Body != "" && len(t.Interactive.Buttons) > 0
}

// Empty reports whether neither form is usable.
func (t Template) Empty() bool {
	return !t.HasInteractive() && t.Simple == ""
}

// Placeholders are the per-contact substitution values.
type Placeholders struct {
	ClientName  string
	ServiceName string
}

func (p Placeholders) withDefaults() Placeholders {
	if strings.TrimSpace(p.ClientName) == "" {
		p.ClientName = defaultClientName
	}
	if strings.TrimSpace(p.ServiceName) == "" {
		p.ServiceName = defaultServiceName
	}
	return p
}

// PersonalizeSimple substitutes {{ClientName}} and {{ServiceName}} in the
// simple template.
func PersonalizeSimple(tpl string, p Placeholders) string {
	p = p.withDefaults()
	out := strings.ReplaceAll(tpl, "{{ClientName}}", p.ClientName)
	return strings.ReplaceAll(out, "{{ServiceName}}", p.ServiceName)
}

// PersonalizeInteractive returns a copy of the interactive message with the
// body placeholders substituted.
func PersonalizeInteractive(msg messaging.InteractiveMessage, p Placeholders) messaging.InteractiveMessage {
	out := msg
	out.Buttons = append([]messaging.Button(nil), msg.Buttons...)
	out.Body = PersonalizeSimple(msg.Body, p)
	return out
}
