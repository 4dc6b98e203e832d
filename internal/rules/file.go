// Package rules loads, persists, and caches the watch rule set.
package rules

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"chat_watcher/internal/model"
)

// ErrInvalidRules is wrapped by every error caused by rule file contents.
var ErrInvalidRules = errors.New("invalid rules file")

// rawRule is the on-disk shape of a rule before alias normalization.
// Keyword fields accept either a string or a list.
type rawRule struct {
	Label      string          `json:"label"`
	Name       string          `json:"name"`
	IncludeAll json.RawMessage `json:"include_all"`
	Include    json.RawMessage `json:"include"`
	IncludeAny json.RawMessage `json:"include_any"`
	Exclude    json.RawMessage `json:"exclude"`
	Chats      json.RawMessage `json:"chats"`
}

type fileRule struct {
	Label      string   `json:"label"`
	IncludeAll []string `json:"include_all"`
	IncludeAny []string `json:"include_any"`
	Exclude    []string `json:"exclude"`
	Chats      []int64  `json:"chats,omitempty"`
}

type fileDoc struct {
	Rules []fileRule `json:"rules"`
}

// Load reads rules from a JSON file. A missing or blank file yields an
// empty set.
func Load(path string) (*RuleSet, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return NewRuleSet(nil), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read rules file %s: %w", path, err)
	}
	rules, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return NewRuleSet(rules), nil
}

// Parse decodes rule file contents into canonical rules.
func Parse(data []byte) ([]model.Rule, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, nil
	}

	var entries []json.RawMessage
	switch data[0] {
	case '{':
		var doc struct {
			Rules json.RawMessage `json:"rules"`
		}
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRules, err)
		}
		if len(doc.Rules) > 0 && !bytes.Equal(doc.Rules, []byte("null")) {
			if err := json.Unmarshal(doc.Rules, &entries); err != nil {
				return nil, fmt.Errorf("%w: field \"rules\" must be a list", ErrInvalidRules)
			}
		}
	case '[':
		if err := json.Unmarshal(data, &entries); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRules, err)
		}
	default:
		if !json.Valid(data) {
			return nil, fmt.Errorf("%w: malformed JSON", ErrInvalidRules)
		}
		return nil, fmt.Errorf("%w: expected an object with a \"rules\" field or a list", ErrInvalidRules)
	}

	rules := make([]model.Rule, 0, len(entries))
	for i, entry := range entries {
		r, err := parseRule(entry)
		if err != nil {
			return nil, fmt.Errorf("%w: rule #%d: %v", ErrInvalidRules, i+1, err)
		}
		rules = append(rules, r)
	}
	return rules, nil
}

func parseRule(entry json.RawMessage) (model.Rule, error) {
	if trimmed := bytes.TrimSpace(entry); len(trimmed) == 0 || trimmed[0] != '{' {
		return model.Rule{}, errors.New("each rule must be an object")
	}
	var raw rawRule
	if err := json.Unmarshal(entry, &raw); err != nil {
		return model.Rule{}, err
	}

	label := strings.TrimSpace(raw.Label)
	if label == "" {
		label = strings.TrimSpace(raw.Name)
	}
	if label == "" {
		return model.Rule{}, errors.New("field \"label\" is required")
	}

	includeAll, err := keywordList(raw.IncludeAll)
	if err != nil {
		return model.Rule{}, fmt.Errorf("%q: include_all: %w", label, err)
	}
	if len(includeAll) == 0 {
		if includeAll, err = keywordList(raw.Include); err != nil {
			return model.Rule{}, fmt.Errorf("%q: include: %w", label, err)
		}
	}
	includeAny, err := keywordList(raw.IncludeAny)
	if err != nil {
		return model.Rule{}, fmt.Errorf("%q: include_any: %w", label, err)
	}
	exclude, err := keywordList(raw.Exclude)
	if err != nil {
		return model.Rule{}, fmt.Errorf("%q: exclude: %w", label, err)
	}
	chats, err := chatList(raw.Chats)
	if err != nil {
		return model.Rule{}, fmt.Errorf("%q: chats: %w", label, err)
	}

	r := model.Rule{
		Label:      label,
		IncludeAll: includeAll,
		IncludeAny: includeAny,
		Exclude:    exclude,
		Chats:      chats,
	}
	if err := r.Validate(); err != nil {
		return model.Rule{}, err
	}
	return r, nil
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || bytes.Equal(raw, []byte("null"))
}

// keywordList accepts a string or a list of scalars. Values are trimmed
// and empty ones dropped.
func keywordList(raw json.RawMessage) ([]string, error) {
	if isNull(raw) {
		return nil, nil
	}
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		return appendKeyword(nil, single), nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, errors.New("must be a string or a list")
	}
	var out []string
	for _, item := range items {
		var s string
		if err := json.Unmarshal(item, &s); err == nil {
			out = appendKeyword(out, s)
			continue
		}
		switch bytes.TrimSpace(item)[0] {
		case '{', '[':
			return nil, fmt.Errorf("unsupported keyword value %s", item)
		}
		if isNull(item) {
			continue
		}
		out = appendKeyword(out, string(item))
	}
	return out, nil
}

func appendKeyword(list []string, kw string) []string {
	kw = strings.TrimSpace(kw)
	if kw == "" {
		return list
	}
	return append(list, kw)
}

// chatList accepts a list of integers or integer strings.
func chatList(raw json.RawMessage) ([]int64, error) {
	if isNull(raw) {
		return nil, nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, errors.New("must be a list of integers")
	}
	ids := make([]int64, 0, len(items))
	for _, item := range items {
		var id int64
		if err := json.Unmarshal(item, &id); err == nil {
			ids = append(ids, id)
			continue
		}
		var s string
		if err := json.Unmarshal(item, &s); err != nil {
			return nil, fmt.Errorf("invalid chat id %s", item)
		}
		id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid chat id %q", s)
		}
		ids = append(ids, id)
	}
	return model.NormalizeChats(ids), nil
}

// Save writes rules in canonical form. The file is replaced atomically
// and parent directories are created as needed.
func Save(path string, rules []model.Rule) error {
	doc := fileDoc{Rules: make([]fileRule, 0, len(rules))}
	for _, r := range rules {
		doc.Rules = append(doc.Rules, fileRule{
			Label:      r.Label,
			IncludeAll: nonNil(r.IncludeAll),
			IncludeAny: nonNil(r.IncludeAny),
			Exclude:    nonNil(r.Exclude),
			Chats:      model.NormalizeChats(r.Chats),
		})
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode rules: %w", err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create rules directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write rules: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync rules: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close rules: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace rules file: %w", err)
	}
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
