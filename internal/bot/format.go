package bot

import (
	"fmt"
	"strings"

	"chat_watcher/internal/authoring"
	"chat_watcher/internal/model"
)

const (
	msgStartOnlyInPrivate = "The !watch command only works in your private chat with this bot. Send it again there."
	msgCancelled          = "Watcher setup cancelled."
	msgNothingToCancel    = "No watcher setup in progress."
	msgReplaced           = "The previous watcher setup was replaced by this new request."
	msgExpired            = "Watcher setup for chat %d expired after %s without a reply. Send !watch <chat_id> to start again."
	msgSaveFailed         = "Failed to save the watcher: %v\nSend the exclude keywords again to retry, or !cancel."
	msgAllowListOnboard   = "Note: this chat is not in WATCH_CHAT_IDS yet. Update that variable so its messages are watched."
	msgAllowListSummary   = "- Note: this chat is not in WATCH_CHAT_IDS yet. Update the environment if it should be watched."
	msgUnwatchUsage       = "Usage: !unwatch <n>, where n is the number shown by !rules."
	msgInvalidChatID      = "Invalid chat id. Usage: !watch <chat_id>, for example !watch -1001234567890."
)

const helpText = `Watcher setup (in this chat):
!watch <chat_id> - start a new watcher for a chat
!cancel - abort the setup in progress

Rules:
!rules - list the saved watchers
!unwatch <n> - remove watcher number n
!help - show this message

Keywords are separated by commas, semicolons or new lines. Send '-' to skip a step.`

// FormatRuleList formats the rules with their 1-based position.
func FormatRuleList(rules []model.Rule) string {
	if len(rules) == 0 {
		return "No watchers yet. Use !watch <chat_id> to add one."
	}
	var b strings.Builder
	b.WriteString("Your watchers:\n")
	for i, r := range rules {
		fmt.Fprintf(&b, "\n#%d %s  (%s)\n", i+1, r.Label, chatScope(r.Chats))
		fmt.Fprintf(&b, "   include_all: %s\n", authoring.FormatKeywords(r.IncludeAll))
		fmt.Fprintf(&b, "   include_any: %s\n", authoring.FormatKeywords(r.IncludeAny))
		fmt.Fprintf(&b, "   exclude: %s\n", authoring.FormatKeywords(r.Exclude))
	}
	return b.String()
}

func chatScope(chats []int64) string {
	if len(chats) == 0 {
		return "all chats"
	}
	ids := make([]string, len(chats))
	for i, id := range chats {
		ids[i] = fmt.Sprint(id)
	}
	return "chats " + strings.Join(ids, ", ")
}
