package authoring

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"chat_watcher/internal/model"
)

// Step is the field the session expects next.
type Step string

// Steps in dialogue order.
const (
	StepLabel      Step = "label"
	StepIncludeAll Step = "include_all"
	StepIncludeAny Step = "include_any"
	StepExclude    Step = "exclude"
)

var (
	errUnwatchUsage  = errors.New("usage: !unwatch <rule number>")
	errInvalidChatID = errors.New("invalid chat id")
)

// Prompts sent to the owner.
const (
	PromptEmptyLabel = "The label cannot be empty. Send it again."
	PromptIncludeAll = "Step 2 of 4: send the required keywords (include_all).\n" +
		"Separate them with commas or new lines. Send '-' for none."
	PromptIncludeAny = "Step 3 of 4: send the optional keywords (include_any).\n" +
		"Separate them with commas or new lines. Send '-' for none."
	PromptIncludeAnyRequired = "\nNote: include_all is empty, so at least one keyword is required here."
	PromptNeedKeyword        = "At least one keyword is required. Send include_any keywords separated by commas."
	PromptExclude            = "Step 4 of 4: send the exclusion keywords (exclude).\n" +
		"Separate them with commas or send '-' for none."
)

// Session holds the partial rule for one origin chat.
type Session struct {
	ID           string
	OriginChatID int64
	RequesterID  int64
	TargetChatID int64
	Step         Step
	Label        string
	IncludeAll   []string
	IncludeAny   []string
	Exclude      []string
	StartedAt    time.Time
	UpdatedAt    time.Time
}

// Outcome is the result of feeding one message into a session.
type Outcome struct {
	// Reply is the next prompt. It is empty when Rule is set.
	Reply string
	// Rule is the finished rule. The caller persists it and then ends
	// the session.
	Rule *model.Rule
}

// New starts a session at the label step.
func New(originChatID, requesterID, targetChatID int64, now time.Time) *Session {
	return &Session{
		ID:           uuid.NewString(),
		OriginChatID: originChatID,
		RequesterID:  requesterID,
		TargetChatID: targetChatID,
		Step:         StepLabel,
		StartedAt:    now,
		UpdatedAt:    now,
	}
}

// Onboarding is the first prompt of a new session.
func Onboarding(targetChatID int64) string {
	return fmt.Sprintf("Setting up a watcher for chat %d.\n"+
		"Step 1 of 4: send the rule label (for example: Gadget Promo).\n"+
		"Send !cancel at any time to abort.", targetChatID)
}

// Feed applies one owner message to the session. Invalid input re-prompts
// without advancing.
func (s *Session) Feed(text string, now time.Time) Outcome {
	text = strings.TrimSpace(text)
	s.UpdatedAt = now

	switch s.Step {
	case StepLabel:
		if text == "" {
			return Outcome{Reply: PromptEmptyLabel}
		}
		s.Label = text
		s.Step = StepIncludeAll
		return Outcome{Reply: PromptIncludeAll}

	case StepIncludeAll:
		s.IncludeAll = ParseKeywords(text)
		s.Step = StepIncludeAny
		prompt := PromptIncludeAny
		if len(s.IncludeAll) == 0 {
			prompt += PromptIncludeAnyRequired
		}
		return Outcome{Reply: prompt}

	case StepIncludeAny:
		keywords := ParseKeywords(text)
		if len(keywords) == 0 && len(s.IncludeAll) == 0 {
			return Outcome{Reply: PromptNeedKeyword}
		}
		s.IncludeAny = keywords
		s.Step = StepExclude
		return Outcome{Reply: PromptExclude}

	case StepExclude:
		s.Exclude = ParseKeywords(text)
		r := s.Rule()
		return Outcome{Rule: &r}
	}
	return Outcome{Reply: fmt.Sprintf("Unknown step %q. Send !cancel to start over.", s.Step)}
}

// Rule builds the rule collected so far, scoped to the target chat.
func (s *Session) Rule() model.Rule {
	return model.Rule{
		Label:      s.Label,
		IncludeAll: s.IncludeAll,
		IncludeAny: s.IncludeAny,
		Exclude:    s.Exclude,
		Chats:      []int64{s.TargetChatID},
	}
}

// Idle reports whether the session has seen no input for longer than
// timeout. A zero timeout never expires.
func (s *Session) Idle(now time.Time, timeout time.Duration) bool {
	return timeout > 0 && now.Sub(s.UpdatedAt) > timeout
}

// Summary describes a saved rule.
func Summary(r model.Rule, targetChatID int64) string {
	var b strings.Builder
	fmt.Fprintf(&b, "New watcher saved for chat %d:\n", targetChatID)
	fmt.Fprintf(&b, "- Label: %s\n", r.Label)
	fmt.Fprintf(&b, "- include_all: %s\n", FormatKeywords(r.IncludeAll))
	fmt.Fprintf(&b, "- include_any: %s\n", FormatKeywords(r.IncludeAny))
	fmt.Fprintf(&b, "- exclude: %s", FormatKeywords(r.Exclude))
	return b.String()
}

// FormatKeywords joins keywords for display, "-" when there are none.
func FormatKeywords(keywords []string) string {
	if len(keywords) == 0 {
		return "-"
	}
	return strings.Join(keywords, ", ")
}
