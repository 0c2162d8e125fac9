package scheduling

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// ChatClient is the slice of the OpenAI client the scheduler needs.
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// DatetimeInfo is the structured extraction of a booking request. Date and
// Time are wall-clock strings in the display zone, "2006-01-02" and "15:04".
type DatetimeInfo struct {
	HasDatetime     bool    `json:"has_datetime"`
	Date            string  `json:"date"`
	Time            string  `json:"time"`
	DurationMinutes int     `json:"duration_minutes"`
	ServiceType     string  `json:"service_type"`
	Confidence      float64 `json:"confidence"`
}

const datetimeExtractionPrompt = `Extract date and time information from this message: %q

Current date and time: %s (%s timezone)

Please respond with ONLY a JSON object in this exact format:
{
    "has_datetime": true/false,
    "date": "YYYY-MM-DD" or null,
    "time": "HH:MM" or null,
    "duration_minutes": number or 60,
    "service_type": "extracted service name" or "General Consultation",
    "confidence": 0.0-1.0
}

Rules:
- If no specific date is mentioned but "today" is implied, use today's date in the %[3]s timezone
- If "tomorrow" is mentioned, use tomorrow's date in the %[3]s timezone
- If a day of the week is mentioned without a date, use the next occurrence of that day
- If no time is specified, return null for time
- Default duration is 60 minutes unless specified
- Extract any service type mentioned (consultation, meeting, checkup, etc.)
- Confidence should reflect how certain you are about the extraction
- All dates and times extracted should be interpreted as local time for %[3]s`

// ExtractDatetime asks the model to normalize free text into a DatetimeInfo,
// interpreting everything relative to "now" on the display clock.
func ExtractDatetime(ctx context.Context, client ChatClient, model string, message string, now DisplayTime) (*DatetimeInfo, error) {
	if client == nil {
		return nil, fmt.Errorf("scheduling: chat client not configured")
	}

	prompt := fmt.Sprintf(datetimeExtractionPrompt, message, now.Format("2006-01-02 15:04"), now.Zone())
	resp, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("scheduling: datetime extraction call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("scheduling: datetime extraction returned no choices")
	}

	raw := stripCodeFence(strings.TrimSpace(resp.Choices[0].Message.Content))
	info := DatetimeInfo{DurationMinutes: 60, ServiceType: "General Consultation"}
	if err := json.Unmarshal([]byte(raw), &info); err != nil {
		return nil, fmt.Errorf("scheduling: decode datetime extraction %q: %w", raw, err)
	}
	if info.DurationMinutes <= 0 {
		info.DurationMinutes = 60
	}
	if info.ServiceType == "" {
		info.ServiceType = "General Consultation"
	}
	return &info, nil
}

// stripCodeFence unwraps a ```json fenced block when the model adds one.
func stripCodeFence(s string) string {
	if i := strings.Index(s, "```json"); i >= 0 {
		rest := s[i+len("```json"):]
		if j := strings.Index(rest, "```"); j >= 0 {
			return strings.TrimSpace(rest[:j])
		}
		return strings.TrimSpace(rest)
	}
	if i := strings.Index(s, "```"); i >= 0 {
		rest := s[i+3:]
		if j := strings.Index(rest, "```"); j >= 0 {
			return strings.TrimSpace(rest[:j])
		}
		return strings.TrimSpace(rest)
	}
	return s
}
