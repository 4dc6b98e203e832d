// Command rules inspects the watch rules and the local message log without
// starting the bot.
package main

import (
	"fmt"
	"os"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"chat_watcher/internal/bot"
	"chat_watcher/internal/filter"
	"chat_watcher/internal/rules"
	"chat_watcher/internal/storage"
)

type rootOptions struct {
	rulesFile string
	dbPath    string
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "rules",
		Short:         "Inspect chat watcher rules and logged matches",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.rulesFile, "rules", envOrDefault("WATCH_RULES_FILE", "watch_rules.json"), "path to the rules file")
	cmd.PersistentFlags().StringVar(&opts.dbPath, "db", envOrDefault("DATABASE_PATH", "./data/watcher.db"), "path to sqlite database")

	cmd.AddCommand(newListCommand(opts))
	cmd.AddCommand(newValidateCommand(opts))
	cmd.AddCommand(newTestCommand(opts))
	cmd.AddCommand(newLogCommand(opts))
	cmd.AddCommand(newStatsCommand(opts))
	return cmd
}

func newListCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Print the rules with their index",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			set, err := rules.Load(opts.rulesFile)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), bot.FormatRuleList(set.Rules()))
			return nil
		},
	}
}

func newValidateCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check that the rules file parses",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := os.Stat(opts.rulesFile); err != nil {
				return fmt.Errorf("rules file: %w", err)
			}
			set, err := rules.Load(opts.rulesFile)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d rule(s) OK\n", opts.rulesFile, set.Len())
			return nil
		},
	}
}

func newTestCommand(opts *rootOptions) *cobra.Command {
	var chatID int64

	cmd := &cobra.Command{
		Use:   "test <text>...",
		Short: "Show which rules match a message",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			set, err := rules.Load(opts.rulesFile)
			if err != nil {
				return err
			}
			text := strings.Join(args, " ")

			matches := filter.MatchAnyChat(set.Rules(), text)
			if cmd.Flags().Changed("chat") {
				matches = filter.Match(set.Rules(), chatID, text)
			}

			out := cmd.OutOrStdout()
			if len(matches) == 0 {
				fmt.Fprintln(out, "no rule matches")
				return nil
			}
			for _, r := range matches {
				fmt.Fprintf(out, "%s: %s\n", r.Label, strings.Join(filter.MatchedKeywords(r, text), ", "))
			}
			return nil
		},
	}
	cmd.Flags().Int64Var(&chatID, "chat", 0, "chat id the message comes from (default: ignore chat scoping)")
	return cmd
}

func newLogCommand(opts *rootOptions) *cobra.Command {
	var f storage.ListFilter

	cmd := &cobra.Command{
		Use:   "log",
		Short: "Print logged matches, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := storage.NewSQLite(opts.dbPath)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			records, err := db.ListRecords(cmd.Context(), f)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "TIME (UTC)\tRULE\tCHAT\tMESSAGE\tTEXT")
			for _, rec := range records {
				fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\n",
					rec.TimestampUTC.Format("2006-01-02 15:04:05"),
					rec.Label,
					rec.ChatID,
					rec.MessageID,
					oneLine(rec.Text, 60),
				)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&f.Label, "rule", "", "only show matches of this rule")
	cmd.Flags().Int64Var(&f.ChatID, "chat", 0, "only show matches from this chat")
	cmd.Flags().IntVar(&f.Limit, "limit", 20, "maximum number of rows (0 for all)")
	return cmd
}

func newStatsCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Count logged matches per rule",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := storage.NewSQLite(opts.dbPath)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			counts, err := db.CountByRule(cmd.Context())
			if err != nil {
				return err
			}
			labels := make([]string, 0, len(counts))
			for label := range counts {
				labels = append(labels, label)
			}
			slices.Sort(labels)

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "RULE\tMATCHES")
			for _, label := range labels {
				fmt.Fprintf(w, "%s\t%d\n", label, counts[label])
			}
			return w.Flush()
		},
	}
}

// oneLine flattens text to a single line of at most n runes.
func oneLine(text string, n int) string {
	text = strings.Join(strings.Fields(text), " ")
	if r := []rune(text); len(r) > n {
		return string(r[:n-1]) + "…"
	}
	return text
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
