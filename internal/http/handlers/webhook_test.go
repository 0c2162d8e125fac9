package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohomer/layla-concierge/internal/conversation"
	"github.com/mohomer/layla-concierge/internal/media"
	"github.com/mohomer/layla-concierge/internal/messaging"
	"github.com/mohomer/layla-concierge/internal/scheduling"
)

type stubGenerator struct {
	reply    conversation.Reply
	lastText string
	lastHist []conversation.ChatMessage
	calls    int
}

func (g *stubGenerator) Generate(_ context.Context, userText, _ string, history []conversation.ChatMessage) conversation.Reply {
	g.calls++
	g.lastText = userText
	g.lastHist = history
	return g.reply
}

type stubScheduler struct {
	result scheduling.Result
	calls  int
}

func (s *stubScheduler) Handle(context.Context, string) scheduling.Result {
	s.calls++
	return s.result
}

type sentText struct {
	To   string
	Text string
}

type sentImage struct {
	To      string
	Caption string
	URL     string
}

type fakeProvider struct {
	texts    []sentText
	images   []sentImage
	buttons  []messaging.InteractiveMessage
	textErr  error
	imageErr error
	// failAfter>0 makes SendText fail once that many sends have succeeded.
	failAfter int
}

func (p *fakeProvider) SendText(_ context.Context, to, text string) error {
	if p.failAfter > 0 && len(p.texts) >= p.failAfter {
		return errors.New("gateway down")
	}
	if p.textErr != nil {
		return p.textErr
	}
	p.texts = append(p.texts, sentText{To: to, Text: text})
	return nil
}

func (p *fakeProvider) SendImage(_ context.Context, to, caption, imageURL string) error {
	if p.imageErr != nil {
		return p.imageErr
	}
	p.images = append(p.images, sentImage{To: to, Caption: caption, URL: imageURL})
	return nil
}

func (p *fakeProvider) SendButtons(_ context.Context, _ string, msg messaging.InteractiveMessage) error {
	p.buttons = append(p.buttons, msg)
	return nil
}

type stubFetcher struct {
	payload []byte
	err     error
	lastURL string
}

func (f *stubFetcher) FetchAndDecrypt(_ context.Context, url, _ string, _ media.Type) ([]byte, error) {
	f.lastURL = url
	return f.payload, f.err
}

type stubTranscriber struct {
	available bool
	text      string
	err       error
}

func (t *stubTranscriber) Available() bool { return t.available }

func (t *stubTranscriber) Transcribe(context.Context, []byte) (string, error) {
	return t.text, t.err
}

type webhookFixture struct {
	handler   *WebhookHandler
	history   *conversation.HistoryStore
	pauses    *conversation.MemoryPauseRegistry
	generator *stubGenerator
	scheduler *stubScheduler
	provider  *fakeProvider
}

func newWebhookFixture(t *testing.T, opts ...func(*WebhookConfig)) *webhookFixture {
	t.Helper()
	history, err := conversation.NewHistoryStore(t.TempDir(), 6, 10, nil)
	require.NoError(t, err)

	f := &webhookFixture{
		history:   history,
		pauses:    conversation.NewMemoryPauseRegistry(),
		generator: &stubGenerator{reply: conversation.Reply{Kind: conversation.ReplyText, Text: "hello there"}},
		scheduler: &stubScheduler{result: scheduling.Result{Kind: scheduling.OutcomeBooked, Message: "booked"}},
		provider:  &fakeProvider{},
	}
	cfg := WebhookConfig{
		History:   f.history,
		Pauses:    f.pauses,
		Generator: f.generator,
		Scheduler: f.scheduler,
		Provider:  f.provider,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	f.handler = NewWebhookHandler(cfg)
	f.handler.sleep = func(time.Duration) {}
	f.handler.jitter = func() float64 { return 0 }
	return f
}

func (f *webhookFixture) post(t *testing.T, payload any) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	switch v := payload.(type) {
	case string:
		body.WriteString(v)
	default:
		require.NoError(t, json.NewEncoder(&body).Encode(v))
	}
	req := httptest.NewRequest(http.MethodPost, "/webhook", &body)
	rec := httptest.NewRecorder()
	f.handler.Handle(rec, req)
	return rec
}

func decodeStatus(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp["status"]
}

func textEvent(sender, text string) map[string]any {
	return map[string]any{
		"event": "messages.upsert",
		"data": map[string]any{
			"messages": map[string]any{
				"key":     map[string]any{"remoteJid": sender, "fromMe": false},
				"message": map[string]any{"conversation": text},
			},
		},
	}
}

const testSender = "971501234567@s.whatsapp.net"

// seedHistory writes one prior turn so a test skips the welcome-menu path.
func seedHistory(t *testing.T, f *webhookFixture) {
	t.Helper()
	id := conversation.ConversationID(testSender)
	require.NoError(t, f.history.Save(context.Background(), id, []conversation.ChatMessage{
		conversation.NewChatMessage(conversation.RoleUser, "hi"),
		conversation.NewChatMessage(conversation.RoleModel, "hello"),
	}))
}

func TestWebhookInvalidJSON(t *testing.T) {
	f := newWebhookFixture(t)
	rec := f.post(t, "{not json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "error", resp["status"])
	assert.Equal(t, "Invalid JSON payload", resp["message"])
}

func TestWebhookMalformedData(t *testing.T) {
	f := newWebhookFixture(t)
	rec := f.post(t, map[string]any{"event": "messages.upsert"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "ignored: malformed data", decodeStatus(t, rec))
}

func TestWebhookIgnoresOtherEvents(t *testing.T) {
	f := newWebhookFixture(t)
	rec := f.post(t, map[string]any{"event": "messages.update", "data": map[string]any{"x": 1}})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ignored: not a message upsert event", decodeStatus(t, rec))
}

func TestWebhookIgnoresFromMe(t *testing.T) {
	f := newWebhookFixture(t)
	payload := textEvent(testSender, "hello")
	payload["data"].(map[string]any)["messages"].(map[string]any)["key"].(map[string]any)["fromMe"] = true
	rec := f.post(t, payload)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ignored: from me", decodeStatus(t, rec))
	assert.Zero(t, f.generator.calls)
}

func TestWebhookIgnoresEmptyBody(t *testing.T) {
	f := newWebhookFixture(t)
	rec := f.post(t, textEvent(testSender, ""))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ignored: no sender or final body content", decodeStatus(t, rec))
}

func TestWebhookMessageUnderDataDirectly(t *testing.T) {
	f := newWebhookFixture(t)
	seedHistory(t, f)
	payload := map[string]any{
		"event": "messages.upsert",
		"data": map[string]any{
			"key":     map[string]any{"remoteJid": testSender, "fromMe": false},
			"message": map[string]any{"conversation": "hello"},
		},
	}
	rec := f.post(t, payload)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "success", decodeStatus(t, rec))
	assert.Equal(t, 1, f.generator.calls)
}

func TestWebhookControlCommands(t *testing.T) {
	cases := []struct {
		body   string
		status string
	}{
		{"bot pause all", "success_paused_all"},
		{"bot resume all", "success_resumed_all"},
		{"Bot Pause " + testSender, "success_paused_specific_or_error"},
		{"bot resume " + testSender, "success_resumed_specific_or_error"},
	}
	for _, tc := range cases {
		t.Run(tc.body, func(t *testing.T) {
			f := newWebhookFixture(t)
			rec := f.post(t, textEvent(testSender, tc.body))
			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, tc.status, decodeStatus(t, rec))
			// The acknowledgment goes back to the issuer.
			require.Len(t, f.provider.texts, 1)
			assert.Equal(t, testSender, f.provider.texts[0].To)
			assert.Zero(t, f.generator.calls)
		})
	}
}

func TestWebhookPausedConversationIsIgnored(t *testing.T) {
	f := newWebhookFixture(t)
	seedHistory(t, f)

	f.post(t, textEvent("admin@s.whatsapp.net", "bot pause "+testSender))
	f.provider.texts = nil

	rec := f.post(t, textEvent(testSender, "are you there?"))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ignored_paused", decodeStatus(t, rec))
	assert.Zero(t, f.generator.calls)
	assert.Empty(t, f.provider.texts)

	// Resuming restores normal processing.
	f.post(t, textEvent("admin@s.whatsapp.net", "bot resume "+testSender))
	f.provider.texts = nil
	rec = f.post(t, textEvent(testSender, "are you there?"))
	assert.Equal(t, "success", decodeStatus(t, rec))
	assert.Equal(t, 1, f.generator.calls)
}

func TestWebhookGlobalPause(t *testing.T) {
	f := newWebhookFixture(t)
	seedHistory(t, f)
	f.post(t, textEvent("admin@s.whatsapp.net", "bot pause all"))

	rec := f.post(t, textEvent(testSender, "hello"))
	assert.Equal(t, "ignored_paused", decodeStatus(t, rec))
	assert.Zero(t, f.generator.calls)
}

func TestWebhookNewConversationGetsMenu(t *testing.T) {
	f := newWebhookFixture(t)
	rec := f.post(t, textEvent(testSender, "hi"))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "success", decodeStatus(t, rec))
	assert.Zero(t, f.generator.calls)

	require.Len(t, f.provider.buttons, 1)
	menu := f.provider.buttons[0]
	assert.Equal(t, welcomeText, menu.Body)
	require.Len(t, menu.Buttons, 2)
	assert.Equal(t, buttonBookID, menu.Buttons[0].ID)
	assert.Equal(t, buttonInquireID, menu.Buttons[1].ID)

	// The exchange becomes the first history turn.
	history := f.history.Load(context.Background(), conversation.ConversationID(testSender))
	require.Len(t, history, 2)
	assert.Equal(t, "hi", history[0].Text())
	assert.Equal(t, welcomeText, history[1].Text())
}

func TestWebhookButtonReplies(t *testing.T) {
	cases := []struct {
		buttonID string
		reply    string
	}{
		{buttonBookID, replyBookChosen},
		{buttonInquireID, replyInquireChosen},
		{"mystery", replyUnknownButton},
	}
	for _, tc := range cases {
		t.Run(tc.buttonID, func(t *testing.T) {
			f := newWebhookFixture(t)
			seedHistory(t, f)
			payload := map[string]any{
				"event": "messages.upsert",
				"data": map[string]any{
					"messages": map[string]any{
						"key": map[string]any{"remoteJid": testSender, "fromMe": false},
						"message": map[string]any{
							"buttonsResponseMessage": map[string]any{"selectedButtonId": tc.buttonID},
						},
					},
				},
			}
			rec := f.post(t, payload)
			assert.Equal(t, "success", decodeStatus(t, rec))
			require.Len(t, f.provider.texts, 1)
			assert.Equal(t, tc.reply, f.provider.texts[0].Text)
			assert.Zero(t, f.generator.calls)

			history := f.history.Load(context.Background(), conversation.ConversationID(testSender))
			require.Len(t, history, 4)
			assert.Equal(t, "Button selected: "+tc.buttonID, history[2].Text())
			assert.Equal(t, tc.reply, history[3].Text())
		})
	}
}

func TestWebhookSchedulingIntentRoutesToScheduler(t *testing.T) {
	f := newWebhookFixture(t)
	seedHistory(t, f)
	rec := f.post(t, textEvent(testSender, "I want to book an appointment tomorrow at 5pm"))
	assert.Equal(t, "success", decodeStatus(t, rec))
	assert.Equal(t, 1, f.scheduler.calls)
	assert.Zero(t, f.generator.calls)
	require.Len(t, f.provider.texts, 1)
	assert.Equal(t, "booked", f.provider.texts[0].Text)
}

func TestWebhookGeneratedReplyRecordedInHistory(t *testing.T) {
	f := newWebhookFixture(t)
	seedHistory(t, f)
	rec := f.post(t, textEvent(testSender, "what services do you offer?"))
	assert.Equal(t, "success", decodeStatus(t, rec))
	assert.Equal(t, "what services do you offer?", f.generator.lastText)
	require.Len(t, f.generator.lastHist, 2)
	require.Len(t, f.provider.texts, 1)
	assert.Equal(t, "hello there", f.provider.texts[0].Text)

	history := f.history.Load(context.Background(), conversation.ConversationID(testSender))
	require.Len(t, history, 4)
	assert.Equal(t, "what services do you offer?", history[2].Text())
	assert.Equal(t, "hello there", history[3].Text())
}

func TestWebhookChunkedReplyAbortsOnFailure(t *testing.T) {
	f := newWebhookFixture(t)
	seedHistory(t, f)
	f.generator.reply = conversation.Reply{
		Kind: conversation.ReplyText,
		Text: "line one\nline two\nline three\nline four\nline five",
	}
	f.provider.failAfter = 1

	rec := f.post(t, textEvent(testSender, "tell me more please"))
	assert.Equal(t, "success", decodeStatus(t, rec))
	// First chunk sent, the rest abandoned.
	require.Len(t, f.provider.texts, 1)
	assert.Equal(t, "line one\nline two", f.provider.texts[0].Text)

	// History still records the full reply text.
	history := f.history.Load(context.Background(), conversation.ConversationID(testSender))
	assert.Equal(t, f.generator.reply.Text, history[len(history)-1].Text())
}

func TestWebhookImageReply(t *testing.T) {
	f := newWebhookFixture(t)
	seedHistory(t, f)
	f.generator.reply = conversation.Reply{
		Kind:     conversation.ReplyImage,
		ImageURL: "https://cdn.example.com/promo.jpg",
		Caption:  "Our summer offer",
	}
	rec := f.post(t, textEvent(testSender, "show me the offer picture"))
	assert.Equal(t, "success", decodeStatus(t, rec))
	require.Len(t, f.provider.images, 1)
	assert.Equal(t, "https://cdn.example.com/promo.jpg", f.provider.images[0].URL)
	assert.Empty(t, f.provider.texts)

	history := f.history.Load(context.Background(), conversation.ConversationID(testSender))
	assert.Equal(t, "[Sent Image: https://cdn.example.com/promo.jpg with caption: Our summer offer]",
		history[len(history)-1].Text())
}

func TestWebhookImageReplyFallbackOnSendFailure(t *testing.T) {
	f := newWebhookFixture(t)
	seedHistory(t, f)
	f.generator.reply = conversation.Reply{
		Kind:     conversation.ReplyImage,
		ImageURL: "https://cdn.example.com/promo.jpg",
		Caption:  "Our summer offer",
	}
	f.provider.imageErr = errors.New("gateway down")

	rec := f.post(t, textEvent(testSender, "show me the offer picture"))
	assert.Equal(t, "success", decodeStatus(t, rec))
	require.Len(t, f.provider.texts, 1)
	assert.Equal(t, imageSendFallback, f.provider.texts[0].Text)

	history := f.history.Load(context.Background(), conversation.ConversationID(testSender))
	assert.True(t, strings.HasPrefix(history[len(history)-1].Text(), "[Failed to send Image:"))
}

func mediaEvent(field string, att map[string]any) map[string]any {
	return map[string]any{
		"event": "messages.upsert",
		"data": map[string]any{
			"messages": map[string]any{
				"key":     map[string]any{"remoteJid": testSender, "fromMe": false},
				"message": map[string]any{field: att},
			},
		},
	}
}

func TestWebhookAudioTranscribed(t *testing.T) {
	fetcher := &stubFetcher{payload: []byte("ogg-bytes")}
	transcriber := &stubTranscriber{available: true, text: "what are your prices"}
	f := newWebhookFixture(t, func(cfg *WebhookConfig) {
		cfg.Fetcher = fetcher
		cfg.Transcriber = transcriber
	})
	seedHistory(t, f)

	rec := f.post(t, mediaEvent("audioMessage", map[string]any{"url": "https://mmg.whatsapp.net/a", "mediaKey": "a2V5"}))
	assert.Equal(t, "success", decodeStatus(t, rec))
	assert.Equal(t, "https://mmg.whatsapp.net/a", fetcher.lastURL)
	assert.Equal(t, "what are your prices", f.generator.lastText)
}

func TestWebhookAudioTranscriberUnavailable(t *testing.T) {
	f := newWebhookFixture(t, func(cfg *WebhookConfig) {
		cfg.Fetcher = &stubFetcher{payload: []byte("ogg-bytes")}
		cfg.Transcriber = &stubTranscriber{available: false}
	})
	seedHistory(t, f)

	f.post(t, mediaEvent("audioMessage", map[string]any{"url": "https://mmg.whatsapp.net/a", "mediaKey": "a2V5"}))
	assert.Equal(t, "[Audio received, but transcription service is unavailable.]", f.generator.lastText)
}

func TestWebhookAudioTranscriptionFails(t *testing.T) {
	f := newWebhookFixture(t, func(cfg *WebhookConfig) {
		cfg.Fetcher = &stubFetcher{payload: []byte("ogg-bytes")}
		cfg.Transcriber = &stubTranscriber{available: true, err: errors.New("whisper down")}
	})
	seedHistory(t, f)

	f.post(t, mediaEvent("audioMessage", map[string]any{"url": "https://mmg.whatsapp.net/a", "mediaKey": "a2V5"}))
	assert.Equal(t, "[Audio transcription failed. Please try again or type your message.]", f.generator.lastText)
}

func TestWebhookImageMessagePlaceholder(t *testing.T) {
	f := newWebhookFixture(t, func(cfg *WebhookConfig) {
		cfg.Fetcher = &stubFetcher{payload: []byte("jpeg-bytes")}
	})
	seedHistory(t, f)

	f.post(t, mediaEvent("imageMessage", map[string]any{"url": "https://mmg.whatsapp.net/i", "mediaKey": "a2V5"}))
	assert.Equal(t, "[User sent an image. Analyzing context...]", f.generator.lastText)
}

func TestWebhookVideoDecryptionFails(t *testing.T) {
	f := newWebhookFixture(t, func(cfg *WebhookConfig) {
		cfg.Fetcher = &stubFetcher{err: errors.New("bad mac")}
	})
	seedHistory(t, f)

	f.post(t, mediaEvent("videoMessage", map[string]any{"url": "https://mmg.whatsapp.net/v", "mediaKey": "a2V5"}))
	assert.Equal(t, "[Video decryption failed. Please try sending again.]", f.generator.lastText)
}

func TestWebhookMediaMissingKey(t *testing.T) {
	f := newWebhookFixture(t, func(cfg *WebhookConfig) {
		cfg.Fetcher = &stubFetcher{payload: []byte("x")}
	})
	seedHistory(t, f)

	f.post(t, mediaEvent("imageMessage", map[string]any{"url": "https://mmg.whatsapp.net/i"}))
	assert.Equal(t, "[Media processing error: Missing URL or key]", f.generator.lastText)
}

func TestWebhookHistoryBoundOnSave(t *testing.T) {
	f := newWebhookFixture(t)
	id := conversation.ConversationID(testSender)

	// Seed well past the save bound.
	var history []conversation.ChatMessage
	for i := 0; i < 12; i++ {
		history = append(history,
			conversation.NewChatMessage(conversation.RoleUser, fmt.Sprintf("q%d", i)),
			conversation.NewChatMessage(conversation.RoleModel, fmt.Sprintf("a%d", i)),
		)
	}
	require.NoError(t, f.history.Save(context.Background(), id, f.history.Truncated(history)))

	rec := f.post(t, textEvent(testSender, "latest question"))
	assert.Equal(t, "success", decodeStatus(t, rec))

	saved := f.history.Load(context.Background(), id)
	// Load is bounded to the most recent turns and the newest lands last.
	assert.Equal(t, "hello there", saved[len(saved)-1].Text())
	assert.Equal(t, "latest question", saved[len(saved)-2].Text())
}
