// Package conversation implements the conversation-truncation half of the
// Streaming Conversation State Machine: what is sent to the Intent Analyzer and Response
// Generator in place of raw history. Kept independent of both
// internal/orchestrator and internal/pipeline (which both need it) so
// neither has to import the other.
package conversation

import (
	"fmt"
	"strings"

	"github.com/contosowiki/sage/internal/config"
	"github.com/contosowiki/sage/internal/quality"
	"github.com/contosowiki/sage/internal/types"
)

// BuildSummary produces the "trimmed conversation summary" fed to the
// Intent Analyzer in place of raw history: the last keep_exchanges exchanges verbatim
// up to truncate_chars total, plus the persisted per-conversation summary
// standing in for everything older. Until the conversation is old enough
// to have a persisted summary, entities extracted from the messages that already fell out
// of the verbatim window stand in for it, so nothing mentioned early on is
// silently lost.
func BuildSummary(history []*types.Message, persistedSummary string, cfg *config.Config) string {
	recentMessages := cfg.Conversation.KeepExchanges * 2
	var recent []*types.Message
	if len(history) > recentMessages {
		recent = history[len(history)-recentMessages:]
	} else {
		recent = history
	}

	verbatim := renderVerbatim(recent, cfg.Conversation.TruncateChars)

	var b strings.Builder
	if persistedSummary != "" {
		b.WriteString("Earlier conversation summary: ")
		b.WriteString(persistedSummary)
		b.WriteString("\n")
	} else if entities := ExtractEntities(history, cfg.Conversation.KeepExchanges, memberExtractor); entities != "" {
		b.WriteString("Earlier conversation summary: ")
		b.WriteString(entities)
		b.WriteString("\n")
	}
	if verbatim != "" {
		b.WriteString("Recent exchanges:\n")
		b.WriteString(verbatim)
	}
	return strings.TrimSpace(b.String())
}

// memberExtractor adapts the Quality Analyzer's name/email heuristics
// to
// the EntityExtractor shape ExtractEntities needs.
func memberExtractor(text string) (names, emails []string) {
	ml := quality.ExtractMembers(text)
	return ml.Names, ml.Emails
}

// renderVerbatim renders messages oldest-first, dropping the oldest ones
// first if the total would exceed the character budget.
func renderVerbatim(messages []*types.Message, budgetChars int) string {
	lines := make([]string, len(messages))
	for i, m := range messages {
		lines[i] = fmt.Sprintf("%s: %s", m.Role, m.Content)
	}

	total := 0
	start := len(lines)
	for i := len(lines) - 1; i >= 0; i-- {
		total += len(lines[i]) + 1
		if total > budgetChars {
			break
		}
		start = i
	}
	return strings.Join(lines[start:], "\n")
}

// EntityExtractor pulls names/emails out of one message's content.
type EntityExtractor func(text string) (names, emails []string)

// ExtractEntities pulls names/emails/teams out of history older than the
// verbatim window, so nothing is lost when raw assistant responses are
// dropped. The
// extraction itself reuses the Quality Analyzer's member-list heuristics
// since both are "find names/emails in free text".
func ExtractEntities(history []*types.Message, keepExchanges int, extract EntityExtractor) string {
	recentMessages := keepExchanges * 2
	if len(history) <= recentMessages {
		return ""
	}
	older := history[:len(history)-recentMessages]

	seenNames := map[string]bool{}
	seenEmails := map[string]bool{}
	var names, emails []string
	for _, m := range older {
		n, e := extract(m.Content)
		for _, v := range n {
			if !seenNames[v] {
				seenNames[v] = true
				names = append(names, v)
			}
		}
		for _, v := range e {
			if !seenEmails[v] {
				seenEmails[v] = true
				emails = append(emails, v)
			}
		}
	}
	if len(names) == 0 && len(emails) == 0 {
		return ""
	}
	var b strings.Builder
	if len(names) > 0 {
		b.WriteString("People/teams mentioned earlier: " + strings.Join(names, ", ") + ". ")
	}
	if len(emails) > 0 {
		b.WriteString("Contacts mentioned earlier: " + strings.Join(emails, ", ") + ".")
	}
	return strings.TrimSpace(b.String())
}
