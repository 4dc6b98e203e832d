package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"gopkg.in/natefinch/lumberjack.v2"

	"chat_watcher/internal/bot"
	"chat_watcher/internal/config"
	"chat_watcher/internal/metrics"
	"chat_watcher/internal/rules"
	"chat_watcher/internal/sink"
	"chat_watcher/internal/state"
	"chat_watcher/internal/storage"
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("load .env", "error", err)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	log, closeLog := newLogger(cfg)
	defer closeLog()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, err := rules.Open(cfg.RulesFile, log)
	if err != nil {
		log.Error("load rules", "path", cfg.RulesFile, "error", err)
		os.Exit(1)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m, err := metrics.New(reg)
	if err != nil {
		log.Error("create metrics", "error", err)
		os.Exit(1)
	}

	if dir := filepath.Dir(cfg.DatabasePath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			log.Error("create data directory", "path", dir, "error", err)
			os.Exit(1)
		}
	}
	db, err := storage.NewSQLite(cfg.DatabasePath)
	if err != nil {
		log.Error("open database", "path", cfg.DatabasePath, "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	sinks := []sink.Named{{Name: "sqlite", Sink: sink.NewSQLite(db)}}

	if cfg.ServiceAccountFile != "" {
		sheets, err := openSheets(ctx, cfg, log)
		if err != nil {
			log.Error("open google sheets", "error", err)
			os.Exit(1)
		}
		sinks = append(sinks, sink.Named{Name: "sheets", Sink: sheets})
	}

	if cfg.NATSURL != "" {
		nc, err := sink.DialNATS(cfg.NATSURL, cfg.NATSSubject)
		if err != nil {
			log.Error("connect nats", "url", cfg.NATSURL, "error", err)
			os.Exit(1)
		}
		defer nc.Close()
		sinks = append(sinks, sink.Named{Name: "nats", Sink: nc})
	}

	out := sink.NewMulti(m.SinkResult, sinks...)

	loc, err := time.LoadLocation(cfg.LocalTimezone)
	if err != nil {
		log.Warn("unknown LOCAL_TIMEZONE, using UTC", "timezone", cfg.LocalTimezone, "error", err)
		loc = time.UTC
	}

	router := bot.NewRouter(store, cfg, out, loc, m, log)
	b, err := bot.New(cfg.TelegramBotToken, router, log)
	if err != nil {
		log.Error("create bot", "error", err)
		os.Exit(1)
	}

	if cfg.RulesReload {
		changes, err := rules.Watch(ctx, cfg.RulesFile, log)
		if err != nil {
			log.Warn("watch rules file, hot reload disabled", "path", cfg.RulesFile, "error", err)
		} else {
			b.ReloadOn(changes)
		}
	}

	if cfg.MetricsAddr != "" {
		go func() {
			if err := metrics.Serve(ctx, cfg.MetricsAddr, reg, log); err != nil {
				log.Error("metrics server", "error", err)
			}
		}()
	}

	if len(cfg.WatchChatIDs) > 0 {
		log.Info("listening to configured chats", "chat_ids", cfg.WatchChatIDs)
	} else if ids := store.Set().ChatIDs(); ids != nil {
		log.Info("listening to chats named by rules", "chat_ids", ids)
	} else {
		log.Info("listening to every chat the bot can see")
	}
	log.Info("starting bot", "rules", store.Set().Len(), "sinks", out.Names(), "timezone", loc.String())

	b.Run(ctx)

	log.Info("bot stopped")
}

// openSheets connects the Sheets sink, reusing the spreadsheet recorded in
// the state file when none is configured, and records the result.
func openSheets(ctx context.Context, cfg *config.Config, log *slog.Logger) (*sink.Sheets, error) {
	stateFile := state.NewFile(cfg.StateFile, log)
	st := stateFile.Load()

	sheetsCfg := sink.SheetsConfig{
		ServiceAccountFile: cfg.ServiceAccountFile,
		SpreadsheetID:      cfg.SpreadsheetID,
		SpreadsheetTitle:   cfg.SpreadsheetTitle,
		WorksheetName:      cfg.WorksheetName,
	}
	if sheetsCfg.SpreadsheetID == "" {
		sheetsCfg.SpreadsheetID = st.SpreadsheetID
	}

	s, err := sink.OpenSheets(ctx, sheetsCfg, log)
	if err != nil {
		return nil, err
	}

	next := state.State{
		SpreadsheetID:    s.SpreadsheetID(),
		WorksheetName:    s.WorksheetName(),
		SpreadsheetTitle: cfg.SpreadsheetTitle,
	}
	if next != st {
		stateFile.Save(next)
	}
	log.Info("google sheets ready", "spreadsheet_id", s.SpreadsheetID(), "worksheet", s.WorksheetName())
	return s, nil
}

func newLogger(cfg *config.Config) (*slog.Logger, func()) {
	lvl := parseLevel(cfg.LogLevel)

	var w io.Writer = os.Stderr
	closeFn := func() {}
	if cfg.LogFile != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.LogFile), 0o750); err != nil {
			slog.Warn("create log directory, file logging disabled", "path", cfg.LogFile, "error", err)
		} else {
			rotating := &lumberjack.Logger{
				Filename:   cfg.LogFile,
				MaxSize:    maxSizeMB(cfg.LogMaxBytes),
				MaxBackups: cfg.LogBackupCount,
			}
			w = io.MultiWriter(os.Stderr, rotating)
			closeFn = func() { _ = rotating.Close() }
		}
	}

	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl})), closeFn
}

// parseLevel also accepts the WARNING and CRITICAL level names used by
// older .env files.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error", "critical", "fatal":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// maxSizeMB converts LOG_MAX_BYTES to lumberjack's megabyte unit, rounding up.
func maxSizeMB(maxBytes int) int {
	const mib = 1 << 20
	return max(1, (maxBytes+mib-1)/mib)
}
