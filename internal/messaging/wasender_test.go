package messaging

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestWaSender(t *testing.T, srv *httptest.Server) *WaSender {
	t.Helper()
	w := NewWaSender(WaSenderConfig{
		APIURL:         srv.URL + "/send-message",
		InteractiveURL: srv.URL + "/messages/interactive",
		Token:          "test-token",
		HTTPClient:     srv.Client(),
	})
	w.sleep = func(time.Duration) {}
	w.jitter = func() float64 { return 0 }
	return w
}

func TestSendTextSuccess(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		rw.Write([]byte(`{"success": true}`))
	}))
	defer srv.Close()

	w := newTestWaSender(t, srv)
	err := w.SendText(context.Background(), "97150123@s.whatsapp.net", "hello")
	require.NoError(t, err)
	assert.Equal(t, "97150123", got["to"])
	assert.Equal(t, "hello", got["text"])
}

func TestSendTextRetriesThenSucceeds(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			rw.WriteHeader(http.StatusBadGateway)
			return
		}
		rw.Write([]byte(`{"success": true}`))
	}))
	defer srv.Close()

	w := newTestWaSender(t, srv)
	require.NoError(t, w.SendText(context.Background(), "97150123", "hello"))
	assert.Equal(t, 3, calls)
}

func TestSendTextUnauthorizedAborts(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		calls++
		rw.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	w := newTestWaSender(t, srv)
	err := w.SendText(context.Background(), "97150123", "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
	assert.Equal(t, 1, calls, "a bad token never heals, no retries expected")
}

func TestSendTextUnacknowledgedExhaustsRetries(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		calls++
		rw.Write([]byte(`{"success": false, "message": "queue full"}`))
	}))
	defer srv.Close()

	w := newTestWaSender(t, srv)
	err := w.SendText(context.Background(), "97150123", "hello")
	require.Error(t, err)
	assert.Equal(t, sendAttempts, calls)
}

func TestSendImagePayload(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		rw.Write([]byte(`{"success": true}`))
	}))
	defer srv.Close()

	w := newTestWaSender(t, srv)
	err := w.SendImage(context.Background(), "97150123@s.whatsapp.net", "Our balayage work", "https://cdn.example.com/b.jpg")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/b.jpg", got["imageUrl"])
	assert.Equal(t, "Our balayage work", got["text"])
}

func TestSendImageOmitsEmptyCaption(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		rw.Write([]byte(`{"success": true}`))
	}))
	defer srv.Close()

	w := newTestWaSender(t, srv)
	require.NoError(t, w.SendImage(context.Background(), "97150123", "", "https://cdn.example.com/b.jpg"))
	_, hasText := got["text"]
	assert.False(t, hasText)
}

func TestSendButtons(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/messages/interactive", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		rw.Write([]byte(`{"sent": true}`))
	}))
	defer srv.Close()

	w := newTestWaSender(t, srv)
	err := w.SendButtons(context.Background(), "97150123@s.whatsapp.net", InteractiveMessage{
		Body: "Please select an option:",
		Buttons: []Button{
			{Title: "Book an Appointment", ID: "book_appointment"},
			{Title: "Inquire About Services", ID: "inquire_service"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "button", got["type"])
	_, hasHeader := got["header"]
	assert.False(t, hasHeader, "empty header should be omitted")
	action := got["action"].(map[string]any)
	assert.Len(t, action["buttons"], 2)
}

func TestSendButtonsRequiresButtons(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected")
	}))
	defer srv.Close()

	w := newTestWaSender(t, srv)
	err := w.SendButtons(context.Background(), "97150123", InteractiveMessage{Body: "no buttons"})
	assert.Error(t, err)
}

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"+971 50-123-4567", "971501234567@s.whatsapp.net"},
		{"971501234567", "971501234567@s.whatsapp.net"},
		{"(971) 50 123 4567", "971501234567@s.whatsapp.net"},
		{"no digits", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := NormalizePhone(tt.in); got != tt.want {
			t.Errorf("NormalizePhone(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeRecipient(t *testing.T) {
	assert.Equal(t, "97150123", NormalizeRecipient("97150123@s.whatsapp.net"))
	assert.Equal(t, "97150123", NormalizeRecipient("97150123"))
}
