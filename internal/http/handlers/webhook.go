// Package handlers contains the HTTP entry points of the bot.
package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/mohomer/layla-concierge/internal/conversation"
	"github.com/mohomer/layla-concierge/internal/media"
	"github.com/mohomer/layla-concierge/internal/messaging"
	"github.com/mohomer/layla-concierge/internal/observability/metrics"
	"github.com/mohomer/layla-concierge/internal/scheduling"
	"github.com/mohomer/layla-concierge/pkg/logging"
)

const (
	welcomeText = "Hello! How can I assist you today? Please select an option:"

	buttonBookID    = "book_appointment"
	buttonInquireID = "inquire_service"

	replyBookChosen    = "You've chosen to book an appointment. Please tell me your preferred date and time."
	replyInquireChosen = "You've chosen to inquire about a service. What can I help you with?"
	replyUnknownButton = "I'm not sure what you selected. Please try again."

	imageSendFallback = "I tried to send you an image, but it seems there was a problem. Please try again later or ask me something else! 😊"
)

// replyGenerator is the conversational core the dispatcher hands a turn to.
type replyGenerator interface {
	Generate(ctx context.Context, userText, senderID string, history []conversation.ChatMessage) conversation.Reply
}

// appointmentScheduler books a turn that carries scheduling intent.
type appointmentScheduler interface {
	Handle(ctx context.Context, message string) scheduling.Result
}

// mediaFetcher downloads and decrypts an encrypted media attachment.
type mediaFetcher interface {
	FetchAndDecrypt(ctx context.Context, url, mediaKeyB64 string, t media.Type) ([]byte, error)
}

// audioTranscriber turns a decrypted voice note into text.
type audioTranscriber interface {
	Available() bool
	Transcribe(ctx context.Context, audio []byte) (string, error)
}

// WebhookHandler normalizes one inbound gateway event into a (sender, body)
// turn and runs it through the pipeline synchronously: the request returns
// only after the reply is sent and history is saved.
type WebhookHandler struct {
	history     *conversation.HistoryStore
	pauses      conversation.PauseRegistry
	generator   replyGenerator
	scheduler   appointmentScheduler
	provider    messaging.Provider
	fetcher     mediaFetcher
	transcriber audioTranscriber
	metrics     *metrics.BotMetrics
	logger      *logging.Logger

	sleep  func(time.Duration)
	jitter func() float64
}

// WebhookConfig wires the dispatcher. History, Pauses, Generator, and
// Provider are required; Scheduler, Fetcher, Transcriber, and Metrics are
// optional features.
type WebhookConfig struct {
	History     *conversation.HistoryStore
	Pauses      conversation.PauseRegistry
	Generator   replyGenerator
	Scheduler   appointmentScheduler
	Provider    messaging.Provider
	Fetcher     mediaFetcher
	Transcriber audioTranscriber
	Metrics     *metrics.BotMetrics
	Logger      *logging.Logger
}

// NewWebhookHandler builds the dispatcher.
func NewWebhookHandler(cfg WebhookConfig) *WebhookHandler {
	if cfg.History == nil {
		panic("handlers: history store is required")
	}
	if cfg.Pauses == nil {
		panic("handlers: pause registry is required")
	}
	if cfg.Generator == nil {
		panic("handlers: reply generator is required")
	}
	if cfg.Provider == nil {
		panic("handlers: messaging provider is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	return &WebhookHandler{
		history:     cfg.History,
		pauses:      cfg.Pauses,
		generator:   cfg.Generator,
		scheduler:   cfg.Scheduler,
		provider:    cfg.Provider,
		fetcher:     cfg.Fetcher,
		transcriber: cfg.Transcriber,
		metrics:     cfg.Metrics,
		logger:      cfg.Logger,
		sleep:       time.Sleep,
		jitter:      rand.Float64,
	}
}

type webhookEnvelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type messageKey struct {
	RemoteJid string `json:"remoteJid"`
	FromMe    bool   `json:"fromMe"`
}

type mediaAttachment struct {
	URL      string `json:"url"`
	MediaKey string `json:"mediaKey"`
}

type messageContent struct {
	Conversation        string `json:"conversation"`
	ExtendedTextMessage *struct {
		Text string `json:"text"`
	} `json:"extendedTextMessage"`
	ButtonsResponseMessage *struct {
		SelectedButtonID string `json:"selectedButtonId"`
	} `json:"buttonsResponseMessage"`
	AudioMessage *mediaAttachment `json:"audioMessage"`
	ImageMessage *mediaAttachment `json:"imageMessage"`
	VideoMessage *mediaAttachment `json:"videoMessage"`
}

type messagePayload struct {
	Key     messageKey      `json:"key"`
	Message *messageContent `json:"message"`
}

// Handle is POST /webhook.
func (h *WebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()

	var envelope webhookEnvelope
	if err := json.NewDecoder(r.Body).Decode(&envelope); err != nil {
		h.logger.Warn("webhook payload is not valid JSON", "error", err)
		writeJSON(w, http.StatusBadRequest, map[string]string{"status": "error", "message": "Invalid JSON payload"})
		return
	}
	if envelope.Event == "" || len(envelope.Data) == 0 {
		h.logger.Warn("webhook received malformed data")
		writeStatus(w, http.StatusBadRequest, "ignored: malformed data")
		return
	}
	if envelope.Event != "messages.upsert" {
		h.logger.Info("webhook ignored event", "event", envelope.Event)
		writeStatus(w, http.StatusOK, "ignored: not a message upsert event")
		return
	}

	payload, ok := decodeMessagePayload(envelope.Data)
	if !ok {
		h.logger.Warn("webhook message data missing or malformed")
		writeStatus(w, http.StatusOK, "ignored: no message data or malformed")
		return
	}
	if payload.Key.FromMe {
		writeStatus(w, http.StatusOK, "ignored: from me")
		return
	}

	sender := payload.Key.RemoteJid
	body, messageType, buttonID := h.extractBody(ctx, sender, payload.Message)
	if sender == "" || body == "" {
		h.logger.Warn("webhook ignored: no sender or body", "sender", sender)
		h.metrics.ObserveInbound(messageType, "ignored")
		writeStatus(w, http.StatusOK, "ignored: no sender or final body content")
		return
	}
	h.metrics.ObserveInbound(messageType, "accepted")
	defer func() {
		h.metrics.ObserveWebhookLatency(messageType, time.Since(start).Seconds())
	}()

	// Control commands and pause state bypass history entirely.
	if ack, isCommand := conversation.ApplyControlCommand(ctx, h.pauses, body); isCommand {
		h.sendText(ctx, sender, ack)
		writeStatus(w, http.StatusOK, commandStatus(body))
		return
	}
	conversationID := conversation.ConversationID(sender)
	// Pause targets are stored lowercased by ApplyControlCommand.
	if h.pauses.IsBlocked(ctx, strings.ToLower(sender)) {
		h.logger.Info("conversation is paused; ignoring message", "sender", conversation.BareSenderID(sender))
		writeStatus(w, http.StatusOK, "ignored_paused")
		return
	}

	history := h.history.Load(ctx, conversationID)

	if buttonID != "" {
		h.handleButtonReply(ctx, sender, conversationID, body, buttonID, history)
		writeStatus(w, http.StatusOK, "success")
		return
	}

	if len(history) == 0 {
		h.handleNewConversation(ctx, sender, conversationID, body)
		writeStatus(w, http.StatusOK, "success")
		return
	}

	var reply conversation.Reply
	if h.scheduler != nil && scheduling.DetectIntent(body) {
		result := h.scheduler.Handle(ctx, body)
		reply = conversation.Reply{Kind: conversation.ReplyText, Text: result.Message}
		h.metrics.ObserveGeneration("scheduling")
	} else {
		reply = h.generator.Generate(ctx, body, sender, history)
		if reply.Kind == conversation.ReplyImage {
			h.metrics.ObserveGeneration("image")
		} else {
			h.metrics.ObserveGeneration("text")
		}
	}

	recorded := h.deliverReply(ctx, sender, reply)
	h.appendTurn(ctx, conversationID, history, body, recorded)
	writeStatus(w, http.StatusOK, "success")
}

// decodeMessagePayload accepts the message either under data.messages or as
// the data object itself.
func decodeMessagePayload(data json.RawMessage) (messagePayload, bool) {
	var outer struct {
		Messages json.RawMessage `json:"messages"`
	}
	raw := data
	if err := json.Unmarshal(data, &outer); err == nil && len(outer.Messages) > 0 && string(outer.Messages) != "null" {
		raw = outer.Messages
	}
	var payload messagePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return messagePayload{}, false
	}
	if payload.Key.RemoteJid == "" && payload.Message == nil {
		return messagePayload{}, false
	}
	return payload, true
}

// extractBody normalizes the message content to a text body. For media it
// returns a placeholder immediately and upgrades it only when processing
// succeeds.
func (h *WebhookHandler) extractBody(ctx context.Context, sender string, msg *messageContent) (body, messageType, buttonID string) {
	if msg == nil {
		return "", "unknown", ""
	}
	switch {
	case msg.ButtonsResponseMessage != nil:
		id := msg.ButtonsResponseMessage.SelectedButtonID
		return fmt.Sprintf("Button selected: %s", id), "button", id
	case msg.Conversation != "":
		return msg.Conversation, "text", ""
	case msg.ExtendedTextMessage != nil:
		return msg.ExtendedTextMessage.Text, "text", ""
	case msg.AudioMessage != nil:
		return h.processMedia(ctx, sender, msg.AudioMessage, media.TypeAudio), "audio", ""
	case msg.ImageMessage != nil:
		return h.processMedia(ctx, sender, msg.ImageMessage, media.TypeImage), "image", ""
	case msg.VideoMessage != nil:
		return h.processMedia(ctx, sender, msg.VideoMessage, media.TypeVideo), "video", ""
	}
	return "", "unknown", ""
}

func (h *WebhookHandler) processMedia(ctx context.Context, sender string, att *mediaAttachment, t media.Type) string {
	// Placeholder first so the turn still has a body if processing fails.
	placeholder := fmt.Sprintf("[User sent %s %s. Analyzing context...]", article(t), t)
	if att.URL == "" || att.MediaKey == "" {
		h.logger.Error("media message missing URL or key", "sender", conversation.BareSenderID(sender), "type", t)
		return "[Media processing error: Missing URL or key]"
	}
	if h.fetcher == nil {
		return placeholder
	}

	decrypted, err := h.fetcher.FetchAndDecrypt(ctx, att.URL, att.MediaKey, t)
	if err != nil {
		h.logger.Error("media decryption failed", "sender", conversation.BareSenderID(sender), "type", t, "error", err)
		return fmt.Sprintf("[%s decryption failed. Please try sending again.]", capitalizeType(t))
	}
	h.logger.Info("media decrypted", "sender", conversation.BareSenderID(sender), "type", t, "bytes", len(decrypted))

	if t != media.TypeAudio {
		return placeholder
	}
	if h.transcriber == nil || !h.transcriber.Available() {
		h.logger.Warn("transcription service unavailable")
		return "[Audio received, but transcription service is unavailable.]"
	}
	text, err := h.transcriber.Transcribe(ctx, decrypted)
	if err != nil || text == "" {
		h.logger.Error("audio transcription failed", "sender", conversation.BareSenderID(sender), "error", err)
		return "[Audio transcription failed. Please try again or type your message.]"
	}
	return text
}

func (h *WebhookHandler) handleButtonReply(ctx context.Context, sender, conversationID, body, buttonID string, history []conversation.ChatMessage) {
	var response string
	switch buttonID {
	case buttonBookID:
		response = replyBookChosen
	case buttonInquireID:
		response = replyInquireChosen
	default:
		response = replyUnknownButton
	}
	h.sendText(ctx, sender, response)
	h.appendTurn(ctx, conversationID, history, body, response)
}

// handleNewConversation sends the fixed menu instead of a generated reply,
// and records that exchange as the first history turn.
func (h *WebhookHandler) handleNewConversation(ctx context.Context, sender, conversationID, body string) {
	menu := messaging.InteractiveMessage{
		Body: welcomeText,
		Buttons: []messaging.Button{
			{Title: "Book an Appointment", ID: buttonBookID},
			{Title: "Inquire About a Service", ID: buttonInquireID},
		},
	}
	if err := h.provider.SendButtons(ctx, sender, menu); err != nil {
		h.logger.Error("failed to send menu", "sender", conversation.BareSenderID(sender), "error", err)
		h.metrics.ObserveOutbound("buttons", "failed")
		return
	}
	h.metrics.ObserveOutbound("buttons", "sent")
	h.appendTurn(ctx, conversationID, nil, body, welcomeText)
}

// deliverReply sends the reply and returns the text to record in history.
func (h *WebhookHandler) deliverReply(ctx context.Context, sender string, reply conversation.Reply) string {
	if reply.Kind == conversation.ReplyImage {
		if err := h.provider.SendImage(ctx, sender, reply.Caption, reply.ImageURL); err != nil {
			h.logger.Error("failed to send image", "sender", conversation.BareSenderID(sender), "url", reply.ImageURL, "error", err)
			h.metrics.ObserveOutbound("image", "failed")
			h.sendText(ctx, sender, imageSendFallback)
			return fmt.Sprintf("[Failed to send Image: %s with caption: %s]", reply.ImageURL, reply.Caption)
		}
		h.metrics.ObserveOutbound("image", "sent")
		return fmt.Sprintf("[Sent Image: %s with caption: %s]", reply.ImageURL, reply.Caption)
	}

	chunks := messaging.SplitMessage(reply.Text, messaging.MaxChunkLines, messaging.MaxChunkChars)
	for i, chunk := range chunks {
		if err := h.provider.SendText(ctx, sender, chunk); err != nil {
			// Remaining chunks are abandoned but the turn still lands in
			// history with the full text.
			h.logger.Error("failed to send chunk; aborting remaining chunks",
				"sender", conversation.BareSenderID(sender), "chunk", i+1, "total", len(chunks), "error", err)
			h.metrics.ObserveOutbound("text", "failed")
			break
		}
		h.metrics.ObserveOutbound("text", "sent")
		if i+1 < len(chunks) {
			h.sleep(time.Duration((2.0 + h.jitter()) * float64(time.Second)))
		}
	}
	return reply.Text
}

func (h *WebhookHandler) appendTurn(ctx context.Context, conversationID string, history []conversation.ChatMessage, userText, modelText string) {
	history = append(history,
		conversation.NewChatMessage(conversation.RoleUser, userText),
		conversation.NewChatMessage(conversation.RoleModel, modelText),
	)
	if err := h.history.Save(ctx, conversationID, h.history.Truncated(history)); err != nil {
		h.logger.Error("failed to save history", "conversation_id", conversationID, "error", err)
	}
}

func (h *WebhookHandler) sendText(ctx context.Context, sender, text string) {
	if err := h.provider.SendText(ctx, sender, text); err != nil {
		h.logger.Error("failed to send message", "sender", conversation.BareSenderID(sender), "error", err)
	}
}

func commandStatus(body string) string {
	normalized := strings.ToLower(strings.TrimSpace(body))
	switch {
	case normalized == "bot pause all":
		return "success_paused_all"
	case normalized == "bot resume all":
		return "success_resumed_all"
	case strings.HasPrefix(normalized, "bot pause "):
		return "success_paused_specific_or_error"
	default:
		return "success_resumed_specific_or_error"
	}
}

func article(t media.Type) string {
	if t == media.TypeAudio || t == media.TypeImage {
		return "an"
	}
	return "a"
}

func capitalizeType(t media.Type) string {
	s := string(t)
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func writeStatus(w http.ResponseWriter, code int, status string) {
	writeJSON(w, code, map[string]string{"status": status})
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}
