// Package model defines the domain types used across the application.
package model

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Rule is a named keyword condition with optional chat scoping.
// A nil Chats slice means the rule applies to every chat.
type Rule struct {
	Label      string
	IncludeAll []string
	IncludeAny []string
	Exclude    []string
	Chats      []int64
}

// Validate checks the rule invariants: a non-empty label and at least
// one keyword in IncludeAll or IncludeAny.
func (r Rule) Validate() error {
	if strings.TrimSpace(r.Label) == "" {
		return errors.New("label is required")
	}
	if len(r.IncludeAll) == 0 && len(r.IncludeAny) == 0 {
		return fmt.Errorf("rule %q needs at least one keyword in include_all or include_any", r.Label)
	}
	return nil
}

// AppliesTo reports whether the rule is scoped to the given chat.
func (r Rule) AppliesTo(chatID int64) bool {
	if len(r.Chats) == 0 {
		return true
	}
	return slices.Contains(r.Chats, chatID)
}

// NormalizeChats sorts and de-duplicates chat ids. An empty input yields nil.
func NormalizeChats(ids []int64) []int64 {
	if len(ids) == 0 {
		return nil
	}
	out := slices.Clone(ids)
	slices.Sort(out)
	return slices.Compact(out)
}

// Headers is the fixed column layout of a log row.
var Headers = []string{
	"timestamp_utc",
	"timestamp_local",
	"rule_label",
	"chat_name",
	"chat_id",
	"message_id",
	"message_link",
	"username",
	"display_name",
	"telegram_user_id",
	"message_text",
	"matched_keywords",
	"excluded_keywords",
}

// MessageRecord is one matched message, normalized for the log sinks.
type MessageRecord struct {
	TimestampUTC     time.Time `json:"timestamp_utc"`
	TimestampLocal   time.Time `json:"timestamp_local"`
	Label            string    `json:"rule_label"`
	ChatName         string    `json:"chat_name"`
	ChatID           int64     `json:"chat_id"`
	MessageID        int       `json:"message_id"`
	MessageLink      string    `json:"message_link,omitempty"`
	Username         string    `json:"username,omitempty"`
	DisplayName      string    `json:"display_name,omitempty"`
	SenderID         int64     `json:"telegram_user_id,omitempty"`
	Text             string    `json:"message_text"`
	MatchedKeywords  []string  `json:"matched_keywords"`
	ExcludedKeywords []string  `json:"excluded_keywords"`
}

// Row renders the record in Headers order.
func (m MessageRecord) Row() []string {
	sender := ""
	if m.SenderID != 0 {
		sender = strconv.FormatInt(m.SenderID, 10)
	}
	return []string{
		m.TimestampUTC.Format(time.RFC3339),
		m.TimestampLocal.Format(time.RFC3339),
		m.Label,
		m.ChatName,
		strconv.FormatInt(m.ChatID, 10),
		strconv.Itoa(m.MessageID),
		m.MessageLink,
		m.Username,
		m.DisplayName,
		sender,
		m.Text,
		strings.Join(m.MatchedKeywords, ", "),
		strings.Join(m.ExcludedKeywords, ", "),
	}
}
