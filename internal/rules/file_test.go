package rules

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"chat_watcher/internal/filter"
	"chat_watcher/internal/model"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		want    []model.Rule
		wantErr string
	}{
		{
			name: "blank content",
			data: "  \n",
			want: nil,
		},
		{
			name: "object with rules",
			data: `{"rules": [{"label": "Promo", "include_all": ["buy now"], "include_any": [], "exclude": ["spam"], "chats": [5]}]}`,
			want: []model.Rule{{Label: "Promo", IncludeAll: []string{"buy now"}, Exclude: []string{"spam"}, Chats: []int64{5}}},
		},
		{
			name: "bare array",
			data: `[{"label": "A", "include_any": "urgent"}]`,
			want: []model.Rule{{Label: "A", IncludeAny: []string{"urgent"}}},
		},
		{
			name: "include alias and name alias",
			data: `[{"name": "Legacy", "include": ["x", " y "]}]`,
			want: []model.Rule{{Label: "Legacy", IncludeAll: []string{"x", "y"}}},
		},
		{
			name: "include_all wins over include",
			data: `[{"label": "A", "include_all": "a", "include": "b"}]`,
			want: []model.Rule{{Label: "A", IncludeAll: []string{"a"}}},
		},
		{
			name: "empty include_all falls back to include",
			data: `[{"label": "A", "include_all": [], "include": "b"}]`,
			want: []model.Rule{{Label: "A", IncludeAll: []string{"b"}}},
		},
		{
			name: "chat ids as strings, sorted and deduplicated",
			data: `[{"label": "A", "include_any": "x", "chats": ["-1001", 7, "7"]}]`,
			want: []model.Rule{{Label: "A", IncludeAny: []string{"x"}, Chats: []int64{-1001, 7}}},
		},
		{
			name: "empty chats means global",
			data: `[{"label": "A", "include_any": "x", "chats": []}]`,
			want: []model.Rule{{Label: "A", IncludeAny: []string{"x"}}},
		},
		{
			name: "numeric keywords become strings",
			data: `[{"label": "A", "include_any": [2024, "sale"]}]`,
			want: []model.Rule{{Label: "A", IncludeAny: []string{"2024", "sale"}}},
		},
		{
			name: "rules null is empty",
			data: `{"rules": null}`,
			want: nil,
		},
		{
			name:    "malformed json",
			data:    `{"rules": [`,
			wantErr: "invalid rules file",
		},
		{
			name:    "wrong top-level shape",
			data:    `"rules"`,
			wantErr: "expected an object",
		},
		{
			name:    "rules not a list",
			data:    `{"rules": {"label": "A"}}`,
			wantErr: "must be a list",
		},
		{
			name:    "entry not an object",
			data:    `["A"]`,
			wantErr: "rule #1: each rule must be an object",
		},
		{
			name:    "missing label",
			data:    `[{"label": "ok", "include_any": "x"}, {"include_any": "x"}]`,
			wantErr: "rule #2: field \"label\" is required",
		},
		{
			name:    "no include keywords",
			data:    `[{"label": "Empty", "exclude": "x"}]`,
			wantErr: `"Empty" needs at least one keyword`,
		},
		{
			name:    "bad chat id names the rule",
			data:    `[{"label": "Chatty", "include_any": "x", "chats": ["abc"]}]`,
			wantErr: `"Chatty": chats: invalid chat id "abc"`,
		},
		{
			name:    "chats not a list",
			data:    `[{"label": "Chatty", "include_any": "x", "chats": 5}]`,
			wantErr: `"Chatty": chats: must be a list of integers`,
		},
		{
			name:    "keyword object rejected",
			data:    `[{"label": "K", "include_any": {"a": 1}}]`,
			wantErr: `"K": include_any: must be a string or a list`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse([]byte(tt.data))
			if tt.wantErr != "" {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				if !errors.Is(err, ErrInvalidRules) {
					t.Errorf("error %v does not wrap ErrInvalidRules", err)
				}
				if !strings.Contains(err.Error(), tt.wantErr) {
					t.Errorf("error %q missing %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(tt.want) == 0 {
				if len(got) != 0 {
					t.Errorf("expected no rules, got %+v", got)
				}
				return
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Parse() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	set, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := cmp.Diff(0, set.Len()); diff != "" {
		t.Errorf("rule count (-want +got):\n%s", diff)
	}
}

func TestLoadEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.json")
	if err := os.WriteFile(path, nil, 0o600); err != nil {
		t.Fatal(err)
	}
	set, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := cmp.Diff(0, set.Len()); diff != "" {
		t.Errorf("rule count (-want +got):\n%s", diff)
	}
}

func TestLoadMalformedFileFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}
	_, err := Load(path)
	if !errors.Is(err, ErrInvalidRules) {
		t.Fatalf("Load() error = %v, want ErrInvalidRules", err)
	}
	if !strings.Contains(err.Error(), path) {
		t.Errorf("error %q does not name the file", err)
	}
}

func TestSaveCreatesDirectoriesAndCanonicalForm(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "rules.json")
	rules := []model.Rule{
		{Label: "Promo", IncludeAll: []string{"buy now"}, Chats: []int64{9, 3}},
		{Label: "Any", IncludeAny: []string{"x"}},
	}
	if err := Save(path, rules); err != nil {
		t.Fatalf("save: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	want := `{
  "rules": [
    {
      "label": "Promo",
      "include_all": [
        "buy now"
      ],
      "include_any": [],
      "exclude": [],
      "chats": [
        3,
        9
      ]
    },
    {
      "label": "Any",
      "include_all": [],
      "include_any": [
        "x"
      ],
      "exclude": []
    }
  ]
}
`
	if diff := cmp.Diff(want, string(data)); diff != "" {
		t.Errorf("file contents mismatch (-want +got):\n%s", diff)
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(1, len(entries)); diff != "" {
		t.Errorf("temp files left behind (-want +got):\n%s", diff)
	}
}

func TestSaveLoadRoundTripBehaviour(t *testing.T) {
	rules := []model.Rule{
		{Label: "Promo", IncludeAll: []string{"buy now"}, Chats: []int64{5}},
		{Label: "Urgent", IncludeAny: []string{"urgent", "asap"}, Exclude: []string{"spam"}},
		{Label: "Both", IncludeAll: []string{"deal"}, IncludeAny: []string{"phone", "laptop"}},
	}
	path := filepath.Join(t.TempDir(), "rules.json")
	if err := Save(path, rules); err != nil {
		t.Fatalf("save: %v", err)
	}
	first, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := Save(path, first.Rules()); err != nil {
		t.Fatalf("second save: %v", err)
	}
	second, err := Load(path)
	if err != nil {
		t.Fatalf("second load: %v", err)
	}

	inputs := []struct {
		chatID int64
		text   string
	}{
		{5, "Buy now!"},
		{6, "buy now"},
		{1, "URGENT deal"},
		{1, "urgent spam"},
		{2, "deal on a laptop"},
		{2, "nothing"},
	}
	for _, in := range inputs {
		want := filter.Match(rules, in.chatID, in.text)
		got := second.Match(in.chatID, in.text)
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("Match(%d, %q) mismatch (-want +got):\n%s", in.chatID, in.text, diff)
		}
	}
}
