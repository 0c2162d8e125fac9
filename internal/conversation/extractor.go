package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// ChatClient is the subset of the OpenAI client the conversation pipeline
// uses. Kept narrow so tests can stub it.
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// AppointmentDetails is the structured extraction used for the staff email.
// Values stay in the conversation's original language; keys are fixed.
type AppointmentDetails struct {
	Name              string `json:"name"`
	PreferredDatetime string `json:"preferred_datetime"`
	ServiceReason     string `json:"service_reason"`
}

// Complete reports whether every field required for the email is present.
func (d AppointmentDetails) Complete() bool {
	return d.Name != "" && d.PreferredDatetime != "" && d.ServiceReason != ""
}

const appointmentExtractionPrompt = "Given the following conversation snippet:\n" +
	"--- --- --- --- --- --- --- --- --- --- ---\n%s\n--- --- --- --- --- --- --- --- --- --- ---\n" +
	"The last message from the Assistant confirms that details were collected and a human will follow up.\n" +
	"The conversation snippet may be in any language (e.g., English, Arabic). Extract the information into the JSON format below.\n" +
	"The JSON keys (\"name\", \"preferred_datetime\", \"service_reason\") MUST be in English as specified.\n" +
	"The JSON values should be the extracted text, even if it's in the original language of the conversation.\n" +
	"The extracted values MUST be plain text only — no markdown, HTML, or other formatting characters. Preserve all characters of the original language correctly as simple text.\n" +
	"Extract the user's full name, their stated preferred date and time, and the service/reason for the appointment.\n" +
	"Respond with ONLY a JSON object in this exact format:\n" +
	"{\n" +
	"    \"name\": \"extracted full name\" or null,\n" +
	"    \"preferred_datetime\": \"extracted preferred date and time as a string\" or null,\n" +
	"    \"service_reason\": \"extracted service or reason for appointment\" or null\n" +
	"}\n" +
	"If any detail is missing or unclear from the user's input in the snippet, use null for its value.\n" +
	"Focus on what the user explicitly stated for their appointment request. Look through the entire snippet for the details."

// ExtractAppointmentDetails asks the model to pull name, preferred time, and
// service out of a transcript snippet.
func ExtractAppointmentDetails(ctx context.Context, client ChatClient, model, transcript string) (*AppointmentDetails, error) {
	resp, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{{
			Role:    openai.ChatMessageRoleUser,
			Content: fmt.Sprintf(appointmentExtractionPrompt, transcript),
		}},
	})
	if err != nil {
		return nil, fmt.Errorf("conversation: appointment extraction failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("conversation: appointment extraction returned no choices")
	}

	raw := stripCodeFence(resp.Choices[0].Message.Content)
	var details AppointmentDetails
	if err := json.Unmarshal([]byte(raw), &details); err != nil {
		return nil, fmt.Errorf("conversation: appointment extraction returned invalid JSON: %w", err)
	}
	return &details, nil
}

// BuildTranscript renders the last few history entries plus the current
// exchange as the snippet handed to the extractor.
func BuildTranscript(history []ChatMessage, userText, assistantText string) string {
	var lines []string

	start := 0
	if len(history) > 6 {
		start = len(history) - 6
	}
	for _, msg := range history[start:] {
		if !msg.valid() {
			continue
		}
		lines = append(lines, fmt.Sprintf("%s: %s", capitalize(msg.Role), msg.Text()))
	}
	lines = append(lines, "User: "+userText)
	lines = append(lines, "Assistant (Layla): "+assistantText)
	return strings.Join(lines, "\n")
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// stripCodeFence unwraps ```json ... ``` (or bare ```) fences the model
// sometimes adds around JSON answers.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```json") {
		s = strings.TrimPrefix(s, "```json")
	} else if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
