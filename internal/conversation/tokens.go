package conversation

import "strings"

// ActionKind identifies a side effect the model requested in-band.
type ActionKind int

const (
	// ActionNotifyUnanswered asks the pipeline to forward the user's
	// question to the operator because the context could not answer it.
	ActionNotifyUnanswered ActionKind = iota
	// ActionSendAppointmentEmail asks the pipeline to extract appointment
	// details from the transcript and email them to the clinic.
	ActionSendAppointmentEmail
)

// Action is a decoded side-effect request.
type Action struct {
	Kind ActionKind
}

// ModelOutput is the typed decoding of one raw completion. The rest of the
// pipeline operates on this value; nothing downstream re-scans strings for
// marker tokens.
type ModelOutput struct {
	Reply   Reply
	Actions []Action
}

// DecodeModelOutput parses raw model text into a typed result.
//
// Precedence is strict: a leading image directive consumes the whole output
// and suppresses every other token. Otherwise the notify and email markers
// are stripped from the visible text and surfaced as Actions.
func DecodeModelOutput(raw string) ModelOutput {
	trimmed := strings.TrimSpace(raw)

	if strings.HasPrefix(trimmed, tokenSendImage) {
		lines := strings.Split(trimmed, "\n")
		if len(lines) < 3 {
			return ModelOutput{Reply: Reply{
				Kind: ReplyText,
				Text: "I tried to get an image for you, but there was a formatting issue. Can I help with something else?",
			}}
		}
		url := strings.TrimSpace(lines[1])
		caption := strings.TrimSpace(lines[2])
		if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
			text := "I found an image that might be relevant, but I'm having trouble displaying it right now."
			if caption != "" {
				text += " The description was: " + caption
			}
			return ModelOutput{Reply: Reply{Kind: ReplyText, Text: text}}
		}
		return ModelOutput{Reply: Reply{Kind: ReplyImage, ImageURL: url, Caption: caption}}
	}

	out := ModelOutput{}
	text := trimmed
	if strings.Contains(text, tokenNotifyUnanswered) {
		text = strings.TrimSpace(strings.ReplaceAll(text, tokenNotifyUnanswered, ""))
		out.Actions = append(out.Actions, Action{Kind: ActionNotifyUnanswered})
	}
	if strings.Contains(text, tokenEmailConfirm) {
		text = strings.TrimSpace(strings.ReplaceAll(text, tokenEmailConfirm, ""))
		out.Actions = append(out.Actions, Action{Kind: ActionSendAppointmentEmail})
	}
	out.Reply = Reply{Kind: ReplyText, Text: text}
	return out
}
