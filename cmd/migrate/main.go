// Command migrate manages the schema of the local message log.
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"chat_watcher/migrations"
)

func main() {
	dbPath := flag.String("db", envOrDefault("DATABASE_PATH", "./data/watcher.db"), "path to sqlite database")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		usage(os.Stderr)
		os.Exit(1)
	}

	db, err := sql.Open("sqlite", *dbPath)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer func() { _ = db.Close() }()

	p, err := migrations.NewProvider(db)
	if err != nil {
		log.Fatal(err)
	}

	if err := run(context.Background(), p, args[0], os.Stdout); err != nil {
		log.Fatalf("%s: %v", args[0], err)
	}
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "Usage: migrate [-db path] <command>")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  up          Migrate to the latest version")
	fmt.Fprintln(w, "  up-one      Migrate one version up")
	fmt.Fprintln(w, "  down        Roll back one version")
	fmt.Fprintln(w, "  status      Show migration status")
	fmt.Fprintln(w, "  version     Show current version")
	fmt.Fprintln(w, "  reset       Roll back all migrations")
}

func run(ctx context.Context, p *goose.Provider, cmd string, out io.Writer) error {
	var (
		results []*goose.MigrationResult
		err     error
	)

	switch cmd {
	case "up":
		results, err = p.Up(ctx)
	case "up-one":
		var res *goose.MigrationResult
		res, err = p.UpByOne(ctx)
		results = append(results, res)
	case "down":
		var res *goose.MigrationResult
		res, err = p.Down(ctx)
		results = append(results, res)
	case "reset":
		results, err = p.DownTo(ctx, 0)
	case "status":
		return printStatus(ctx, p, out)
	case "version":
		v, err := p.GetDBVersion(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "version %d\n", v)
		return nil
	default:
		return errors.New("unknown command")
	}

	if errors.Is(err, goose.ErrNoNextVersion) {
		fmt.Fprintln(out, "nothing to do")
		return nil
	}
	if err != nil {
		return err
	}
	if len(results) == 0 {
		fmt.Fprintln(out, "no migrations to apply")
	}
	for _, res := range results {
		if res != nil {
			fmt.Fprintln(out, res.String())
		}
	}
	return nil
}

func printStatus(ctx context.Context, p *goose.Provider, out io.Writer) error {
	statuses, err := p.Status(ctx)
	if err != nil {
		return err
	}
	for _, st := range statuses {
		applied := "pending"
		if st.State == goose.StateApplied {
			applied = st.AppliedAt.Format(time.DateTime)
		}
		fmt.Fprintf(out, "%-20s %s\n", applied, st.Source.Path)
	}
	return nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
