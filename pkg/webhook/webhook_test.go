package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 5, 20, 12, 0, 0, 0, time.UTC)

func capture(t *testing.T, status int) (*httptest.Server, *map[string]any) {
	t.Helper()
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv, &got
}

func TestFormatFor(t *testing.T) {
	assert.Equal(t, FormatDiscord, FormatFor("https://discord.com/api/webhooks/1/abc"))
	assert.Equal(t, FormatDiscord, FormatFor("https://discordapp.com/api/webhooks/1/abc"))
	assert.Equal(t, FormatSlack, FormatFor("https://hooks.slack.com/services/T/B/X"))
	assert.Equal(t, FormatGeneric, FormatFor("https://ops.example.com/hook"))
}

func TestSend_NoURL(t *testing.T) {
	n := New("", 0)
	assert.False(t, n.Enabled())
	assert.False(t, n.Send(context.Background(), Message{Title: "x"}))
}

func TestSend_Generic(t *testing.T) {
	srv, got := capture(t, http.StatusOK)
	n := New(srv.URL, time.Second, WithClock(func() time.Time { return fixedNow }))

	ok := n.Send(context.Background(), Message{
		Title:  "Ingest",
		Text:   "done",
		Fields: []Field{{Name: "Saved", Value: "3"}},
	})

	require.True(t, ok)
	assert.Equal(t, "Ingest", (*got)["title"])
	assert.Equal(t, "done", (*got)["message"])
	assert.Equal(t, "2026-05-20T12:00:00Z", (*got)["timestamp"])
	assert.Equal(t, map[string]any{"Saved": "3"}, (*got)["data"])
}

func TestDiscordPayload(t *testing.T) {
	n := New("https://discord.com/api/webhooks/1/abc", 0, WithClock(func() time.Time { return fixedNow }))

	p := n.payload(Message{
		Title:  "Analysis Complete",
		Text:   "ok",
		Fields: []Field{{Name: "Total", Value: "4", Inline: true}},
		Footer: footer,
	}).(map[string]any)

	embed := p["embeds"].([]any)[0].(map[string]any)
	assert.Equal(t, "Analysis Complete", embed["title"])
	assert.Equal(t, "ok", embed["description"])
	assert.Equal(t, colorGreen, embed["color"])
	assert.Equal(t, map[string]string{"text": footer}, embed["footer"])
	assert.Equal(t, []map[string]any{{"name": "Total", "value": "4", "inline": true}}, embed["fields"])
}

func TestSlackPayload(t *testing.T) {
	n := New("https://hooks.slack.com/services/T/B/X", 0)

	p := n.payload(Message{Title: "T", Text: "body", Fields: []Field{{Name: "Saved", Value: "2"}}}).(map[string]any)

	blocks := p["blocks"].([]any)
	require.Len(t, blocks, 3)
	assert.Equal(t, "header", blocks[0].(map[string]any)["type"])
	fields := blocks[2].(map[string]any)["fields"].([]map[string]string)
	assert.Equal(t, "*Saved*\n2", fields[0]["text"])
}

func TestColorFor(t *testing.T) {
	assert.Equal(t, colorRed, colorFor(Message{Title: "Ingest Failed"}))
	assert.Equal(t, colorGreen, colorFor(Message{Title: "Job complete"}))
	assert.Equal(t, colorBlue, colorFor(Message{Title: "Heads up"}))
	assert.Equal(t, 0x123456, colorFor(Message{Title: "Failed", Color: 0x123456}))
}

func TestSend_AcceptsNoContent(t *testing.T) {
	srv, _ := capture(t, http.StatusNoContent)
	assert.True(t, New(srv.URL, time.Second).Send(context.Background(), Message{Title: "x"}))
}

func TestSend_FailuresReturnFalse(t *testing.T) {
	srv, _ := capture(t, http.StatusInternalServerError)
	assert.False(t, New(srv.URL, time.Second).Send(context.Background(), Message{Title: "x"}))

	closed := httptest.NewServer(http.NotFoundHandler())
	url := closed.URL
	closed.Close()
	assert.False(t, New(url, time.Second).Send(context.Background(), Message{Title: "x"}))
}

func TestSend_NoRetry(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	New(srv.URL, time.Second).Send(context.Background(), Message{Title: "x"})
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestGoAndWait(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer srv.Close()

	n := New(srv.URL, time.Second)
	n.Go(Message{Title: "a"})
	n.Go(Message{Title: "b"})
	n.Wait()

	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestSentimentCompleteMessage(t *testing.T) {
	msg := SentimentCompleteMessage(4, 2, 1, 1)

	assert.Equal(t, "Analyzed 4 KAP disclosures", msg.Text)
	assert.Equal(t, "4", msg.Fields[0].Value)
	assert.Equal(t, "2 (50.0%)", msg.Fields[1].Value)
	assert.Equal(t, "1 (25.0%)", msg.Fields[2].Value)

	empty := SentimentCompleteMessage(0, 0, 0, 0)
	assert.Equal(t, "0 (0.0%)", empty.Fields[1].Value)
}

func TestIngestAndFailureMessages(t *testing.T) {
	msg := IngestCompleteMessage("kap", 10, 7, 2, 1)
	assert.Equal(t, "✅ KAP Ingest Complete", msg.Title)
	assert.Equal(t, "7", msg.Fields[2].Value)

	fail := FailureMessage("finnhub ingest", "timeout")
	assert.Equal(t, "❌ FINNHUB INGEST Failed", fail.Title)
	assert.Equal(t, "Error: timeout", fail.Text)
	assert.Equal(t, colorRed, fail.Color)
}
