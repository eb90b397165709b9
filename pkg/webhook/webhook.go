// Package webhook posts best-effort notifications to Discord, Slack or any
// JSON endpoint.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"
)

const (
	DefaultTimeout = 10 * time.Second

	footer = "KAP Sentiment"

	colorRed   = 0xFF0000
	colorGreen = 0x00FF00
	colorBlue  = 0x0099FF
)

type Format string

const (
	FormatDiscord Format = "discord"
	FormatSlack   Format = "slack"
	FormatGeneric Format = "generic"
)

// FormatFor picks the payload shape from the destination host.
func FormatFor(url string) Format {
	lower := strings.ToLower(url)
	switch {
	case strings.Contains(lower, "discord.com"), strings.Contains(lower, "discordapp.com"):
		return FormatDiscord
	case strings.Contains(lower, "slack.com"):
		return FormatSlack
	default:
		return FormatGeneric
	}
}

type Field struct {
	Name   string
	Value  string
	Inline bool
}

type Message struct {
	Title  string
	Text   string
	Color  int // 0 picks a color from the title
	Fields []Field
	Footer string
}

type Notifier struct {
	url        string
	format     Format
	httpClient *http.Client
	logger     *slog.Logger
	now        func() time.Time
	wg         sync.WaitGroup
}

type Option func(*Notifier)

func WithHTTPClient(hc *http.Client) Option {
	return func(n *Notifier) { n.httpClient = hc }
}

func WithLogger(l *slog.Logger) Option {
	return func(n *Notifier) { n.logger = l }
}

func WithClock(now func() time.Time) Option {
	return func(n *Notifier) { n.now = now }
}

// New returns a notifier for url. An empty url yields a notifier whose sends
// are logged and dropped.
func New(url string, timeout time.Duration, opts ...Option) *Notifier {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	n := &Notifier{
		url:        url,
		format:     FormatFor(url),
		httpClient: &http.Client{Timeout: timeout},
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

func (n *Notifier) Enabled() bool { return n.url != "" }

// Send posts msg once. It never returns an error: failures are logged and
// reported as false.
func (n *Notifier) Send(ctx context.Context, msg Message) bool {
	if n.url == "" {
		n.logger.Warn("no webhook url configured, skipping notification", "title", msg.Title)
		return false
	}

	body, err := json.Marshal(n.payload(msg))
	if err != nil {
		n.logger.Error("error encoding webhook payload", "error", err)
		return false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		n.logger.Error("error creating webhook request", "error", err)
		return false
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		n.logger.Error("error sending webhook notification", "title", msg.Title, "error", err)
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		text, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		n.logger.Error("webhook failed", "status", resp.StatusCode, "body", string(text))
		return false
	}

	n.logger.Info("webhook notification sent", "title", msg.Title, "format", n.format)
	return true
}

// Go sends msg in the background. Wait blocks until every pending send is done.
func (n *Notifier) Go(msg Message) {
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		n.Send(context.Background(), msg)
	}()
}

func (n *Notifier) Wait() {
	n.wg.Wait()
}

func (n *Notifier) payload(msg Message) any {
	switch n.format {
	case FormatDiscord:
		return n.discordPayload(msg)
	case FormatSlack:
		return slackPayload(msg)
	default:
		return n.genericPayload(msg)
	}
}

func (n *Notifier) discordPayload(msg Message) map[string]any {
	embed := map[string]any{
		"title":       msg.Title,
		"description": msg.Text,
		"timestamp":   n.now().UTC().Format(time.RFC3339),
		"color":       colorFor(msg),
	}

	if len(msg.Fields) > 0 {
		fields := make([]map[string]any, 0, len(msg.Fields))
		for _, f := range msg.Fields {
			fields = append(fields, map[string]any{"name": f.Name, "value": f.Value, "inline": f.Inline})
		}
		embed["fields"] = fields
	}

	if msg.Footer != "" {
		embed["footer"] = map[string]string{"text": msg.Footer}
	}

	return map[string]any{"embeds": []any{embed}}
}

func slackPayload(msg Message) map[string]any {
	blocks := []any{
		map[string]any{
			"type": "header",
			"text": map[string]string{"type": "plain_text", "text": msg.Title},
		},
		map[string]any{
			"type": "section",
			"text": map[string]string{"type": "mrkdwn", "text": msg.Text},
		},
	}

	if len(msg.Fields) > 0 {
		fields := make([]map[string]string, 0, len(msg.Fields))
		for _, f := range msg.Fields {
			fields = append(fields, map[string]string{"type": "mrkdwn", "text": fmt.Sprintf("*%s*\n%s", f.Name, f.Value)})
		}
		blocks = append(blocks, map[string]any{"type": "section", "fields": fields})
	}

	return map[string]any{"blocks": blocks}
}

func (n *Notifier) genericPayload(msg Message) map[string]any {
	payload := map[string]any{
		"title":     msg.Title,
		"message":   msg.Text,
		"timestamp": n.now().UTC().Format(time.RFC3339),
	}

	if len(msg.Fields) > 0 {
		data := make(map[string]string, len(msg.Fields))
		for _, f := range msg.Fields {
			data[f.Name] = f.Value
		}
		payload["data"] = data
	}

	return payload
}

func colorFor(msg Message) int {
	if msg.Color != 0 {
		return msg.Color
	}
	title := strings.ToLower(msg.Title)
	switch {
	case strings.Contains(title, "error"), strings.Contains(title, "failed"):
		return colorRed
	case strings.Contains(title, "success"), strings.Contains(title, "complete"):
		return colorGreen
	default:
		return colorBlue
	}
}
