// Package authoring implements the guided dialogue that builds a new
// watch rule one owner message at a time.
package authoring

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	startRe   = regexp.MustCompile(`(?i)^[!/]watch(?:@\w+)?\s+(\S+)$`)
	cancelRe  = regexp.MustCompile(`(?i)^[!/]cancel(?:@\w+)?$`)
	rulesRe   = regexp.MustCompile(`(?i)^[!/]rules(?:@\w+)?$`)
	helpRe    = regexp.MustCompile(`(?i)^[!/]help(?:@\w+)?$`)
	unwatchRe = regexp.MustCompile(`(?i)^[!/]unwatch(?:@\w+)?(?:\s+(\S+))?$`)
	splitRe   = regexp.MustCompile(`[,;\r\n]+`)
)

// ParseStart extracts the target chat id from a start command such as
// "!watch -1001234567890". ok is false when text is not a start command;
// err is set when it is one but the argument is not a valid chat id.
func ParseStart(text string) (id int64, ok bool, err error) {
	m := startRe.FindStringSubmatch(strings.TrimSpace(text))
	if m == nil {
		return 0, false, nil
	}
	id, convErr := strconv.ParseInt(m[1], 10, 64)
	if convErr != nil {
		return 0, true, errInvalidChatID
	}
	return id, true, nil
}

// IsCancel reports whether text is the cancel command.
func IsCancel(text string) bool {
	return cancelRe.MatchString(strings.TrimSpace(text))
}

// IsListRules reports whether text asks for the rule list.
func IsListRules(text string) bool {
	return rulesRe.MatchString(strings.TrimSpace(text))
}

// IsHelp reports whether text asks for the command reference.
func IsHelp(text string) bool {
	return helpRe.MatchString(strings.TrimSpace(text))
}

// ParseUnwatch extracts the 1-based rule number from "!unwatch <n>".
// ok is false when text is not an unwatch command; err is set when it is
// one but the argument is missing or not a positive number.
func ParseUnwatch(text string) (n int, ok bool, err error) {
	m := unwatchRe.FindStringSubmatch(strings.TrimSpace(text))
	if m == nil {
		return 0, false, nil
	}
	if m[1] == "" {
		return 0, true, errUnwatchUsage
	}
	n, convErr := strconv.Atoi(m[1])
	if convErr != nil || n < 1 {
		return 0, true, errUnwatchUsage
	}
	return n, true, nil
}

// ParseKeywords splits owner input into a keyword list. "-", "skip" and
// "none" mean no keywords.
func ParseKeywords(raw string) []string {
	cleaned := strings.TrimSpace(raw)
	if cleaned == "" {
		return nil
	}
	switch strings.ToLower(cleaned) {
	case "-", "skip", "none":
		return nil
	}
	var out []string
	for _, part := range splitRe.Split(cleaned, -1) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
