// Package filter implements the message matching engine.
package filter

import (
	"strings"

	"golang.org/x/text/cases"

	"chat_watcher/internal/model"
)

// Match returns the rules that match text for a message in chatID, in
// definition order. Rules scoped to other chats are skipped.
func Match(rules []model.Rule, chatID int64, text string) []model.Rule {
	return match(rules, &chatID, text)
}

// MatchAnyChat is Match without chat scoping.
func MatchAnyChat(rules []model.Rule, text string) []model.Rule {
	return match(rules, nil, text)
}

func match(rules []model.Rule, chatID *int64, text string) []model.Rule {
	folded := fold(text)
	var matched []model.Rule
	for _, r := range rules {
		if chatID != nil && !r.AppliesTo(*chatID) {
			continue
		}
		if matchesRule(r, folded) {
			matched = append(matched, r)
		}
	}
	return matched
}

// Include-all uses AND logic, include-any OR logic, and any exclude
// keyword rejects the rule regardless of the include lists.
func matchesRule(r model.Rule, folded string) bool {
	for _, kw := range r.IncludeAll {
		if !contains(folded, kw) {
			return false
		}
	}
	if len(r.IncludeAny) > 0 {
		anyMatched := false
		for _, kw := range r.IncludeAny {
			if contains(folded, kw) {
				anyMatched = true
				break
			}
		}
		if !anyMatched {
			return false
		}
	}
	for _, kw := range r.Exclude {
		if contains(folded, kw) {
			return false
		}
	}
	return true
}

// MatchedKeywords returns the include keywords of r that occur in text,
// include_all first, preserving definition order.
func MatchedKeywords(r model.Rule, text string) []string {
	folded := fold(text)
	var found []string
	for _, list := range [][]string{r.IncludeAll, r.IncludeAny} {
		for _, kw := range list {
			if contains(folded, kw) {
				found = append(found, kw)
			}
		}
	}
	return found
}

func contains(folded, keyword string) bool {
	return strings.Contains(folded, fold(keyword))
}

func fold(s string) string {
	return cases.Fold().String(s)
}
