package bot

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"chat_watcher/internal/authoring"
	"chat_watcher/internal/config"
	"chat_watcher/internal/filter"
	"chat_watcher/internal/metrics"
	"chat_watcher/internal/model"
	"chat_watcher/internal/rules"
	"chat_watcher/internal/sink"
)

// Sender delivers text messages to a chat.
type Sender interface {
	SendMessage(chatID int64, text string)
}

// Router decides what happens to every incoming message: owner commands,
// rule authoring, or matching against the watch rules. It owns the
// authoring sessions and is not safe for concurrent use.
type Router struct {
	store    *rules.Store
	cfg      *config.Config
	sink     sink.Sink
	loc      *time.Location
	metrics  *metrics.Metrics
	log      *slog.Logger
	now      func() time.Time
	sessions map[int64]*authoring.Session
}

// NewRouter creates a Router. A nil loc means UTC; m may be nil.
func NewRouter(store *rules.Store, cfg *config.Config, out sink.Sink, loc *time.Location, m *metrics.Metrics, log *slog.Logger) *Router {
	if loc == nil {
		loc = time.UTC
	}
	m.SetRules(store.Set().Len())
	return &Router{
		store:    store,
		cfg:      cfg,
		sink:     out,
		loc:      loc,
		metrics:  m,
		log:      log,
		now:      time.Now,
		sessions: make(map[int64]*authoring.Session),
	}
}

// Handle routes one event. Errors are logged and reported to the owner where
// relevant; nothing is returned.
func (r *Router) Handle(ctx context.Context, ev Event, out Sender) {
	if strings.TrimSpace(ev.Text) == "" {
		r.metrics.Message(metrics.OutcomeEmpty)
		return
	}
	if ev.Outgoing && r.handleOwner(ev, out) {
		return
	}
	r.watch(ctx, ev)
}

// handleOwner processes commands and session input from the owner. It
// returns false when the message should continue to rule matching.
func (r *Router) handleOwner(ev Event, out Sender) bool {
	target, isStart, startErr := authoring.ParseStart(ev.Text)
	self := ev.SelfChat()

	if isStart && !self {
		r.log.Info("watch command outside private chat", "chat_id", ev.ChatID)
		out.SendMessage(r.cfg.OwnerUserID, msgStartOnlyInPrivate)
		r.metrics.Message(metrics.OutcomeCommand)
		return true
	}

	now := r.now()
	sess := r.sessions[ev.ChatID]
	if sess != nil && sess.Idle(now, r.cfg.SessionIdle) {
		r.expire(sess, out)
		sess = nil
	}

	if sess != nil && authoring.IsCancel(ev.Text) {
		delete(r.sessions, ev.ChatID)
		r.log.Info("authoring session cancelled", "session_id", sess.ID, "target_chat_id", sess.TargetChatID)
		r.metrics.Session(metrics.SessionCancelled)
		r.metrics.Message(metrics.OutcomeCommand)
		out.SendMessage(ev.ChatID, msgCancelled)
		return true
	}

	if isStart {
		if startErr != nil {
			out.SendMessage(ev.ChatID, msgInvalidChatID)
		} else {
			r.startSession(ev, target, sess, now, out)
		}
		r.metrics.Message(metrics.OutcomeCommand)
		return true
	}

	if self && r.ownerCommand(ev, sess, out) {
		r.metrics.Message(metrics.OutcomeCommand)
		return true
	}

	if sess != nil {
		r.feed(ev, sess, now, out)
		r.metrics.Message(metrics.OutcomeSession)
		return true
	}
	return false
}

func (r *Router) startSession(ev Event, target int64, prev *authoring.Session, now time.Time, out Sender) {
	if prev != nil {
		r.log.Info("authoring session replaced", "session_id", prev.ID)
		out.SendMessage(ev.ChatID, msgReplaced)
	}

	sess := authoring.New(ev.ChatID, ev.SenderID, target, now)
	r.sessions[ev.ChatID] = sess
	r.log.Info("authoring session started", "session_id", sess.ID, "target_chat_id", target)
	r.metrics.Session(metrics.SessionStarted)

	reply := authoring.Onboarding(target)
	if r.outsideAllowList(target) {
		reply += "\n" + msgAllowListOnboard
	}
	out.SendMessage(ev.ChatID, reply)
}

func (r *Router) feed(ev Event, sess *authoring.Session, now time.Time, out Sender) {
	res := sess.Feed(ev.Text, now)
	if res.Rule == nil {
		r.log.Debug("authoring step", "session_id", sess.ID, "step", sess.Step)
		out.SendMessage(ev.ChatID, res.Reply)
		return
	}

	rule := *res.Rule
	if err := r.store.AddRule(rule); err != nil {
		r.log.Error("save rule", "session_id", sess.ID, "rule", rule.Label, "error", err)
		out.SendMessage(ev.ChatID, fmt.Sprintf(msgSaveFailed, err))
		return
	}
	delete(r.sessions, ev.ChatID)

	r.log.Info("rule added", "rule", rule.Label, "target_chat_id", sess.TargetChatID, "session_id", sess.ID)
	r.metrics.Session(metrics.SessionCompleted)
	r.metrics.SetRules(r.store.Set().Len())

	summary := authoring.Summary(rule, sess.TargetChatID)
	if r.outsideAllowList(sess.TargetChatID) {
		summary += "\n" + msgAllowListSummary
	}
	out.SendMessage(ev.ChatID, summary)
}

// ownerCommand handles the rule management commands of the private chat.
// They leave any session in progress untouched.
func (r *Router) ownerCommand(ev Event, sess *authoring.Session, out Sender) bool {
	switch {
	case authoring.IsHelp(ev.Text):
		out.SendMessage(ev.ChatID, helpText)
	case authoring.IsListRules(ev.Text):
		out.SendMessage(ev.ChatID, FormatRuleList(r.store.Set().Rules()))
	case sess == nil && authoring.IsCancel(ev.Text):
		out.SendMessage(ev.ChatID, msgNothingToCancel)
	default:
		n, ok, err := authoring.ParseUnwatch(ev.Text)
		if !ok {
			return false
		}
		if err != nil {
			out.SendMessage(ev.ChatID, msgUnwatchUsage)
			return true
		}
		r.unwatch(ev.ChatID, n, out)
	}
	return true
}

func (r *Router) unwatch(chatID int64, n int, out Sender) {
	removed, err := r.store.RemoveAt(n - 1)
	if err != nil {
		r.log.Warn("remove rule", "index", n, "error", err)
		out.SendMessage(chatID, fmt.Sprintf("Failed to remove watcher #%d: %v", n, err))
		return
	}
	r.log.Info("rule removed", "rule", removed.Label, "index", n)
	r.metrics.SetRules(r.store.Set().Len())
	out.SendMessage(chatID, fmt.Sprintf("Watcher #%d %q removed.", n, removed.Label))
}

func (r *Router) outsideAllowList(chatID int64) bool {
	return len(r.cfg.WatchChatIDs) > 0 && !r.cfg.IsChatWatched(chatID)
}

// ExpireIdle ends sessions that have been idle longer than the configured
// timeout and notifies their chats.
func (r *Router) ExpireIdle(out Sender) {
	now := r.now()
	for _, sess := range r.sessions {
		if sess.Idle(now, r.cfg.SessionIdle) {
			r.expire(sess, out)
		}
	}
}

func (r *Router) expire(sess *authoring.Session, out Sender) {
	delete(r.sessions, sess.OriginChatID)
	r.log.Info("authoring session expired", "session_id", sess.ID, "step", sess.Step)
	r.metrics.Session(metrics.SessionExpired)
	out.SendMessage(sess.OriginChatID, fmt.Sprintf(msgExpired, sess.TargetChatID, r.cfg.SessionIdle))
}

// Reload re-reads the rule file. On failure the current rules stay active.
func (r *Router) Reload() {
	if err := r.store.Reload(); err != nil {
		r.log.Warn("reload rules, keeping current set", "path", r.store.Path(), "error", err)
		return
	}
	r.metrics.SetRules(r.store.Set().Len())
}

// watch applies the chat filters and the rules, then logs every match.
func (r *Router) watch(ctx context.Context, ev Event) {
	set := r.store.Set()

	if len(r.cfg.WatchChatIDs) > 0 {
		if !r.cfg.IsChatWatched(ev.ChatID) {
			r.metrics.Message(metrics.OutcomeNotWatched)
			return
		}
	} else if !set.Watches(ev.ChatID) {
		r.metrics.Message(metrics.OutcomeNotWatched)
		return
	}

	if (ev.Outgoing && r.cfg.IgnoreSelf) || (ev.SenderIsBot && r.cfg.IgnoreBots) {
		r.metrics.Message(metrics.OutcomeIgnored)
		return
	}

	matches := set.Match(ev.ChatID, ev.Text)
	if len(matches) == 0 {
		r.metrics.Message(metrics.OutcomeNoMatch)
		return
	}
	r.metrics.Message(metrics.OutcomeMatched)

	for _, rule := range matches {
		r.metrics.Match(rule.Label)
		r.deliver(ctx, r.record(ev, rule))
	}
}

func (r *Router) record(ev Event, rule model.Rule) model.MessageRecord {
	ts := ev.Date
	if ts.IsZero() {
		ts = r.now()
	}
	return model.MessageRecord{
		TimestampUTC:     ts.UTC(),
		TimestampLocal:   ts.In(r.loc),
		Label:            rule.Label,
		ChatName:         ev.ChatTitle,
		ChatID:           ev.ChatID,
		MessageID:        ev.MessageID,
		MessageLink:      messageLink(ev),
		Username:         ev.SenderUsername,
		DisplayName:      ev.SenderName,
		SenderID:         ev.SenderID,
		Text:             ev.Text,
		MatchedKeywords:  filter.MatchedKeywords(rule, ev.Text),
		ExcludedKeywords: slices.Clone(rule.Exclude),
	}
}

// deliver appends one record under its own timeout. Failures are logged.
func (r *Router) deliver(ctx context.Context, rec model.MessageRecord) {
	if r.cfg.SinkTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.SinkTimeout)
		defer cancel()
	}

	if err := r.sink.Append(ctx, rec); err != nil {
		r.log.Error("append record",
			"chat_id", rec.ChatID,
			"message_id", rec.MessageID,
			"rule", rec.Label,
			"error", err,
		)
		return
	}
	r.log.Info("logged message",
		"chat_id", rec.ChatID,
		"chat", rec.ChatName,
		"message_id", rec.MessageID,
		"rule", rec.Label,
	)
}
