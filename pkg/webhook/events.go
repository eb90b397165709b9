package webhook

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

func IngestCompleteMessage(source string, fetched, saved, skipped, errors int) Message {
	name := strings.ToUpper(source)
	return Message{
		Title: fmt.Sprintf("✅ %s Ingest Complete", name),
		Text:  fmt.Sprintf("Fetched %d disclosures from %s", fetched, source),
		Fields: []Field{
			{Name: "Source", Value: name, Inline: true},
			{Name: "Fetched", Value: strconv.Itoa(fetched), Inline: true},
			{Name: "Saved", Value: strconv.Itoa(saved), Inline: true},
			{Name: "Skipped", Value: strconv.Itoa(skipped), Inline: true},
			{Name: "Errors", Value: strconv.Itoa(errors), Inline: true},
		},
		Footer: footer,
	}
}

func FailureMessage(scope, errMsg string) Message {
	return Message{
		Title:  fmt.Sprintf("❌ %s Failed", strings.ToUpper(scope)),
		Text:   "Error: " + errMsg,
		Color:  colorRed,
		Footer: footer,
	}
}

// SentimentCompleteMessage reports counts with their share of total.
func SentimentCompleteMessage(total, positive, neutral, negative int) Message {
	return Message{
		Title: "📊 Sentiment Analysis Complete",
		Text:  fmt.Sprintf("Analyzed %d KAP disclosures", total),
		Fields: []Field{
			{Name: "Total Disclosures", Value: strconv.Itoa(total), Inline: true},
			{Name: "Positive", Value: share(positive, total), Inline: true},
			{Name: "Neutral", Value: share(neutral, total), Inline: true},
			{Name: "Negative", Value: share(negative, total), Inline: true},
		},
		Footer: footer,
	}
}

func share(n, total int) string {
	pct := 0.0
	if total > 0 {
		pct = float64(n) / float64(total) * 100
	}
	return fmt.Sprintf("%d (%.1f%%)", n, pct)
}

func (n *Notifier) IngestComplete(ctx context.Context, source string, fetched, saved, skipped, errors int) bool {
	return n.Send(ctx, IngestCompleteMessage(source, fetched, saved, skipped, errors))
}

func (n *Notifier) Failure(ctx context.Context, scope, errMsg string) bool {
	return n.Send(ctx, FailureMessage(scope, errMsg))
}

func (n *Notifier) SentimentComplete(ctx context.Context, total, positive, neutral, negative int) bool {
	return n.Send(ctx, SentimentCompleteMessage(total, positive, neutral, negative))
}
