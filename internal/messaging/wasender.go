package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/mohomer/layla-concierge/pkg/logging"
)

const sendAttempts = 4

// WaSenderConfig configures the WaSender gateway client.
type WaSenderConfig struct {
	// APIURL is the send-message endpoint.
	APIURL string
	// InteractiveURL is the interactive-message endpoint. Empty disables
	// button messages.
	InteractiveURL string
	Token          string
	HTTPClient     *http.Client
	Logger         *logging.Logger
}

// WaSender sends messages through the WaSender HTTP API. Text and image
// sends retry with exponential backoff; a 401 aborts immediately since the
// token will not heal between attempts.
type WaSender struct {
	apiURL         string
	interactiveURL string
	token          string
	client         *http.Client
	logger         *logging.Logger
	tracer         trace.Tracer

	sleep  func(time.Duration)
	jitter func() float64
}

// NewWaSender builds the gateway client. APIURL and Token are required.
func NewWaSender(cfg WaSenderConfig) *WaSender {
	if cfg.APIURL == "" {
		panic("messaging: WaSender API URL is required")
	}
	if cfg.Token == "" {
		panic("messaging: WaSender API token is required")
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 20 * time.Second}
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	return &WaSender{
		apiURL:         cfg.APIURL,
		interactiveURL: cfg.InteractiveURL,
		token:          cfg.Token,
		client:         cfg.HTTPClient,
		logger:         cfg.Logger,
		tracer:         otel.Tracer("layla.internal.messaging.wasender"),
		sleep:          time.Sleep,
		jitter:         rand.Float64,
	}
}

// SendText delivers a plain text message.
func (w *WaSender) SendText(ctx context.Context, to, text string) error {
	ctx, span := w.tracer.Start(ctx, "messaging.send_text")
	defer span.End()

	payload := map[string]any{"to": NormalizeRecipient(to), "text": text}
	if err := w.postWithRetry(ctx, w.apiURL, payload); err != nil {
		span.RecordError(err)
		return fmt.Errorf("messaging: send text to %s: %w", NormalizeRecipient(to), err)
	}
	return nil
}

// SendImage delivers an image by URL with an optional caption.
func (w *WaSender) SendImage(ctx context.Context, to, caption, imageURL string) error {
	ctx, span := w.tracer.Start(ctx, "messaging.send_image")
	defer span.End()

	payload := map[string]any{"to": NormalizeRecipient(to), "imageUrl": imageURL}
	if caption != "" {
		payload["text"] = caption
	}
	if err := w.postWithRetry(ctx, w.apiURL, payload); err != nil {
		span.RecordError(err)
		return fmt.Errorf("messaging: send image to %s: %w", NormalizeRecipient(to), err)
	}
	return nil
}

// SendButtons delivers an interactive quick-reply message. Unlike text and
// image sends this endpoint is not retried.
func (w *WaSender) SendButtons(ctx context.Context, to string, msg InteractiveMessage) error {
	ctx, span := w.tracer.Start(ctx, "messaging.send_buttons")
	defer span.End()

	if w.interactiveURL == "" {
		return fmt.Errorf("messaging: interactive endpoint not configured")
	}
	if len(msg.Buttons) == 0 {
		return fmt.Errorf("messaging: interactive message has no buttons")
	}

	buttons := make([]map[string]string, 0, len(msg.Buttons))
	for _, b := range msg.Buttons {
		buttons = append(buttons, map[string]string{"type": "quick_reply", "title": b.Title, "id": b.ID})
	}
	payload := map[string]any{
		"to":        NormalizeRecipient(to),
		"type":      "button",
		"body":      map[string]string{"text": msg.Body},
		"action":    map[string]any{"buttons": buttons},
		"view_once": false,
	}
	if msg.Header != "" {
		payload["header"] = map[string]string{"text": msg.Header}
	}
	if msg.Footer != "" {
		payload["footer"] = map[string]string{"text": msg.Footer}
	}

	status, body, err := w.post(ctx, w.interactiveURL, payload)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("messaging: send interactive to %s: %w", NormalizeRecipient(to), err)
	}
	if status < 200 || status >= 300 {
		return fmt.Errorf("messaging: interactive endpoint returned status %d", status)
	}
	var result struct {
		Sent bool `json:"sent"`
	}
	if err := json.Unmarshal(body, &result); err != nil || !result.Sent {
		return fmt.Errorf("messaging: interactive send not acknowledged: %s", truncate(body, 200))
	}
	return nil
}

// postWithRetry posts the payload up to sendAttempts times. The gateway
// acknowledges delivery with {"success": true}; anything else on a 2xx is a
// retryable failure.
func (w *WaSender) postWithRetry(ctx context.Context, url string, payload map[string]any) error {
	var lastErr error
	for attempt := 0; attempt < sendAttempts; attempt++ {
		status, body, err := w.post(ctx, url, payload)
		switch {
		case err != nil:
			lastErr = err
			w.logger.Warn("gateway request failed", "attempt", attempt+1, "error", err)
		case status == http.StatusUnauthorized:
			return fmt.Errorf("gateway rejected token (status 401)")
		case status < 200 || status >= 300:
			lastErr = fmt.Errorf("gateway returned status %d: %s", status, truncate(body, 200))
			w.logger.Warn("gateway returned error status", "attempt", attempt+1, "status", status)
		default:
			var result struct {
				Success bool `json:"success"`
			}
			if jsonErr := json.Unmarshal(body, &result); jsonErr == nil && result.Success {
				return nil
			}
			lastErr = fmt.Errorf("gateway did not acknowledge send: %s", truncate(body, 200))
			w.logger.Warn("gateway did not acknowledge send", "attempt", attempt+1)
		}
		if attempt+1 < sendAttempts {
			w.sleep(time.Duration(1<<uint(attempt))*time.Second + time.Duration((0.1+0.8*w.jitter())*float64(time.Second)))
		}
	}
	return fmt.Errorf("all %d attempts failed: %w", sendAttempts, lastErr)
}

func (w *WaSender) post(ctx context.Context, url string, payload map[string]any) (int, []byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, fmt.Errorf("marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return 0, nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+w.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, body, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
