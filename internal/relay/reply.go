package relay

import (
	"strings"

	"bilirelay/internal/model"
)

// BuildReplyText renders a bot answer as the private-message reply:
// intent name, answer, then each option's title and answer, newline-joined.
func BuildReplyText(ans model.BotAnswer) string {
	var b strings.Builder
	b.WriteString(ans.IntentName)
	b.WriteString("\n")
	b.WriteString(ans.Answer)
	for _, o := range ans.Options {
		b.WriteString("\n")
		b.WriteString(o.Title)
		b.WriteString("\n")
		b.WriteString(o.Answer)
	}
	return b.String()
}
