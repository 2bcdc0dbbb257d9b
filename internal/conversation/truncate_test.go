package conversation

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/contosowiki/sage/internal/config"
	"github.com/contosowiki/sage/internal/types"
)

func testConfig(keepExchanges, truncateChars int) *config.Config {
	return &config.Config{
		Conversation: config.ConversationConfig{
			KeepExchanges: keepExchanges,
			TruncateChars: truncateChars,
		},
	}
}

func msg(role types.Role, content string) *types.Message {
	return &types.Message{Role: role, Content: content}
}

func TestBuildSummaryIncludesPersistedSummaryAndVerbatimExchanges(t *testing.T) {
	history := []*types.Message{
		msg(types.RoleUser, "what's the deploy process"),
		msg(types.RoleAssistant, "open a PR and tag release-eng"),
	}
	out := BuildSummary(history, "earlier the user asked about on-call rotation", testConfig(4, 3000))
	assert.Contains(t, out, "Earlier conversation summary: earlier the user asked about on-call rotation")
	assert.Contains(t, out, "user: what's the deploy process")
	assert.Contains(t, out, "assistant: open a PR and tag release-eng")
}

func TestBuildSummaryWithNoPersistedSummaryOmitsThatSection(t *testing.T) {
	history := []*types.Message{msg(types.RoleUser, "hello")}
	out := BuildSummary(history, "", testConfig(4, 3000))
	assert.NotContains(t, out, "Earlier conversation summary")
	assert.Contains(t, out, "user: hello")
}

func TestRenderVerbatimDropsOldestOnceBudgetExceeded(t *testing.T) {
	messages := []*types.Message{
		msg(types.RoleUser, "first message, long ago"),
		msg(types.RoleAssistant, "first answer"),
		msg(types.RoleUser, "second message"),
		msg(types.RoleAssistant, "second answer"),
	}
	out := renderVerbatim(messages, 40)
	assert.NotContains(t, out, "first message")
	assert.Contains(t, out, "second answer")
}

func TestExtractEntitiesOnlyScansHistoryOlderThanVerbatimWindow(t *testing.T) {
	history := []*types.Message{
		msg(types.RoleUser, "mentions Alice and Bob"),
		msg(types.RoleAssistant, "ack"),
		msg(types.RoleUser, "recent question"),
		msg(types.RoleAssistant, "recent answer"),
	}
	extract := func(text string) (names, emails []string) {
		if text == "mentions Alice and Bob" {
			return []string{"Alice", "Bob"}, nil
		}
		return nil, nil
	}
	out := ExtractEntities(history, 1, extract)
	assert.Contains(t, out, "Alice")
	assert.Contains(t, out, "Bob")
}

func TestExtractEntitiesReturnsEmptyWhenHistoryFitsEntirelyInVerbatimWindow(t *testing.T) {
	history := []*types.Message{
		msg(types.RoleUser, "mentions Alice"),
		msg(types.RoleAssistant, "ack"),
	}
	extract := func(text string) (names, emails []string) { return []string{"Alice"}, nil }
	out := ExtractEntities(history, 4, extract)
	assert.Equal(t, "", out)
}
