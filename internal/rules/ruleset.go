package rules

import (
	"slices"

	"chat_watcher/internal/filter"
	"chat_watcher/internal/model"
)

// RuleSet is an ordered collection of rules plus the union of their chat
// scopes. The cache is rebuilt on every mutation.
type RuleSet struct {
	rules   []model.Rule
	chatIDs []int64
}

// NewRuleSet creates a RuleSet holding a copy of rules.
func NewRuleSet(rules []model.Rule) *RuleSet {
	s := &RuleSet{}
	s.Replace(rules)
	return s
}

// Rules returns a copy of the rules in definition order.
func (s *RuleSet) Rules() []model.Rule {
	return slices.Clone(s.rules)
}

// Len returns the number of rules.
func (s *RuleSet) Len() int {
	return len(s.rules)
}

// ChatIDs returns the sorted union of all rule chat scopes, or nil when no
// rule is scoped.
func (s *RuleSet) ChatIDs() []int64 {
	return slices.Clone(s.chatIDs)
}

// Watches reports whether chatID is in the derived chat scope. An empty
// scope watches every chat.
func (s *RuleSet) Watches(chatID int64) bool {
	if len(s.chatIDs) == 0 {
		return true
	}
	_, found := slices.BinarySearch(s.chatIDs, chatID)
	return found
}

// Add appends a rule.
func (s *RuleSet) Add(r model.Rule) {
	s.rules = append(s.rules, r)
	s.rebuild()
}

// Replace swaps the full rule list.
func (s *RuleSet) Replace(rules []model.Rule) {
	s.rules = slices.Clone(rules)
	s.rebuild()
}

// Match evaluates the set against a message in chatID.
func (s *RuleSet) Match(chatID int64, text string) []model.Rule {
	return filter.Match(s.rules, chatID, text)
}

func (s *RuleSet) rebuild() {
	var ids []int64
	for _, r := range s.rules {
		ids = append(ids, r.Chats...)
	}
	s.chatIDs = model.NormalizeChats(ids)
}
