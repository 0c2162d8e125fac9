package conversation

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"
	"unicode/utf8"

	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/mohomer/layla-concierge/internal/notify"
	"github.com/mohomer/layla-concierge/internal/retrieval"
	"github.com/mohomer/layla-concierge/pkg/logging"
)

const (
	generateAttempts = 3
	retrievalK       = 5

	replyModelDown  = "🚨 AI Model not configured."
	replyTransient  = "Sorry, I'm having trouble connecting right now. Please try again in a moment."
	replyExhausted  = "Sorry, I couldn't generate a response after multiple attempts."
	perAttemptLimit = 30 * time.Second
)

// Short acknowledgments and greetings that carry no retrievable signal.
// Querying the store for these only adds noise to the prompt.
var commonPhrases = map[string]struct{}{
	"hi": {}, "hello": {}, "thanks": {}, "ok": {}, "yes": {}, "no": {},
	"bye": {}, "thank you": {}, "okey": {}, "okay": {}, "sure": {}, "cool": {},
	"مرحبا": {}, "اهلا": {}, "شكرا": {}, "نعم": {}, "لا": {}, "وداعا": {},
	"تمام": {}, "اوك": {}, "أوك": {}, "اكيد": {},
}

// Notifier forwards a message to the clinic operator's own chat.
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

// Generator assembles persona + history + retrieved context into a model
// request and decodes the output into a typed Reply, executing any decoded
// side-effect actions along the way.
type Generator struct {
	client    ChatClient
	retriever retrieval.Retriever
	notifier  Notifier
	mailer    *notify.AppointmentMailer
	model     string
	logger    *logging.Logger
	tracer    trace.Tracer

	// sleep and jitter are swappable so tests don't wait out real backoff.
	sleep  func(time.Duration)
	jitter func() float64
}

// GeneratorConfig wires the generator's collaborators. Client is required;
// everything else degrades gracefully when absent.
type GeneratorConfig struct {
	Client    ChatClient
	Retriever retrieval.Retriever
	Notifier  Notifier
	Mailer    *notify.AppointmentMailer
	Model     string
	Logger    *logging.Logger
}

// NewGenerator builds a Generator. A nil client is allowed: Generate then
// returns the fixed "not configured" reply, matching the degraded-feature
// policy for missing credentials.
func NewGenerator(cfg GeneratorConfig) *Generator {
	if cfg.Model == "" {
		cfg.Model = "gpt-4o"
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	return &Generator{
		client:    cfg.Client,
		retriever: cfg.Retriever,
		notifier:  cfg.Notifier,
		mailer:    cfg.Mailer,
		model:     cfg.Model,
		logger:    cfg.Logger,
		tracer:    otel.Tracer("layla.internal.conversation.generator"),
		sleep:     time.Sleep,
		jitter:    rand.Float64,
	}
}

// Generate produces the reply for one user turn. It never returns an error:
// every failure mode maps to a fixed user-safe text reply.
func (g *Generator) Generate(ctx context.Context, userText, senderID string, history []ChatMessage) Reply {
	ctx, span := g.tracer.Start(ctx, "conversation.generate")
	defer span.End()
	span.SetAttributes(attribute.String("layla.sender", BareSenderID(senderID)))

	if g.client == nil {
		g.logger.Error("openai client not configured; cannot generate")
		return Reply{Kind: ReplyText, Text: replyModelDown}
	}

	prompt := g.augmentWithContext(ctx, userText)
	messages := g.assembleMessages(history, prompt)

	for attempt := 0; attempt < generateAttempts; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, perAttemptLimit)
		resp, err := g.client.CreateChatCompletion(callCtx, openai.ChatCompletionRequest{
			Model:    g.model,
			Messages: messages,
		})
		cancel()
		if err != nil {
			g.logger.Warn("model call failed", "attempt", attempt+1, "error", err)
			if attempt+1 == generateAttempts {
				span.RecordError(err)
				g.logger.Error("all model attempts failed", "sender", BareSenderID(senderID))
				return Reply{Kind: ReplyText, Text: replyTransient}
			}
			g.sleep(backoff(attempt, g.jitter))
			continue
		}
		if len(resp.Choices) == 0 {
			g.logger.Warn("model returned no choices", "attempt", attempt+1)
			g.sleep(backoff(attempt, g.jitter))
			continue
		}

		out := DecodeModelOutput(resp.Choices[0].Message.Content)
		if out.Reply.Kind == ReplyImage {
			// Image branch suppresses every other token by contract.
			return out.Reply
		}

		g.runActions(ctx, out, userText, senderID, history)

		if out.Reply.Text != "" {
			return out.Reply
		}
		g.logger.Warn("model returned an empty or token-only response", "attempt", attempt+1)
		break
	}
	return Reply{Kind: ReplyText, Text: replyExhausted}
}

// augmentWithContext retrieves and sanitizes snippets for the prompt, or
// returns the bare text when retrieval is gated off or unavailable.
func (g *Generator) augmentWithContext(ctx context.Context, userText string) string {
	if g.retriever == nil || skipRetrieval(userText) {
		return userText
	}

	snippets, err := g.retriever.Retrieve(ctx, userText, retrievalK)
	if err != nil {
		g.logger.Error("retrieval failed; continuing without context", "error", err)
		return userText
	}
	if len(snippets) == 0 {
		return userText
	}

	cleaned := make([]string, 0, len(snippets))
	for _, s := range snippets {
		cleaned = append(cleaned, StripEmphasis(s.Content))
	}
	return "Relevant Information Found:\n" + strings.Join(cleaned, "\n") + "\n\nUser Question: " + userText
}

func (g *Generator) assembleMessages(history []ChatMessage, prompt string) []openai.ChatCompletionMessage {
	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: SystemPrompt},
	}
	for _, msg := range history {
		if !msg.valid() {
			continue
		}
		switch msg.Role {
		case RoleUser:
			messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: msg.Text()})
		case RoleModel, "assistant":
			messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: msg.Text()})
		}
	}
	return append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: prompt})
}

func (g *Generator) runActions(ctx context.Context, out ModelOutput, userText, senderID string, history []ChatMessage) {
	for _, action := range out.Actions {
		switch action.Kind {
		case ActionNotifyUnanswered:
			g.notifyUnanswered(userText, senderID)
		case ActionSendAppointmentEmail:
			g.sendAppointmentEmail(ctx, userText, senderID, out.Reply.Text, history)
		}
	}
}

// notifyUnanswered forwards the question to the operator off the request
// path. The goroutine gets its own bounded context rather than the
// request-scoped one.
func (g *Generator) notifyUnanswered(question, senderID string) {
	if g.notifier == nil {
		g.logger.Error("operator notifier not configured; dropping unanswered-query notification")
		return
	}
	text := fmt.Sprintf("Unanswered WhatsApp Query:\nAsker's Number: %s\nQuestion: %s", BareSenderID(senderID), question)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := g.notifier.Notify(ctx, text); err != nil {
			g.logger.Error("failed to notify operator of unanswered query", "error", err)
		}
	}()
}

func (g *Generator) sendAppointmentEmail(ctx context.Context, userText, senderID, assistantText string, history []ChatMessage) {
	if g.mailer == nil {
		g.logger.Error("appointment mailer not configured; dropping email request")
		return
	}

	transcript := BuildTranscript(history, userText, assistantText)
	details, err := ExtractAppointmentDetails(ctx, g.client, g.model, transcript)
	if err != nil {
		g.logger.Error("appointment detail extraction failed; email not sent", "error", err)
		return
	}
	if !details.Complete() {
		g.logger.Warn("appointment details incomplete; email not sent",
			"has_name", details.Name != "",
			"has_datetime", details.PreferredDatetime != "",
			"has_service", details.ServiceReason != "",
		)
		return
	}

	err = g.mailer.SendAppointmentRequest(ctx, notify.AppointmentRequest{
		Name:              details.Name,
		Phone:             BareSenderID(senderID),
		PreferredDatetime: details.PreferredDatetime,
		ServiceReason:     details.ServiceReason,
	})
	if err != nil {
		g.logger.Error("appointment request email failed", "error", err)
	}
}

// skipRetrieval gates the store query: short inputs and stock phrases in any
// supported language retrieve nothing useful.
func skipRetrieval(text string) bool {
	normalized := strings.ToLower(strings.TrimSpace(text))
	if utf8.RuneCountInString(normalized) < 4 {
		return true
	}
	_, common := commonPhrases[normalized]
	return common
}

// backoff returns 2^attempt seconds plus 0.1–0.5s of jitter.
func backoff(attempt int, jitter func() float64) time.Duration {
	base := time.Duration(1<<uint(attempt)) * time.Second
	j := time.Duration((0.1 + 0.4*jitter()) * float64(time.Second))
	return base + j
}
