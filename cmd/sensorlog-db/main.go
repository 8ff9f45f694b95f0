package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"sensorlog/internal/config"
	"sensorlog/internal/db"
	"sensorlog/internal/logging"
	"sensorlog/internal/migrate"
	"sensorlog/internal/readings/repository"
	"sensorlog/internal/readings/types"
)

var version = "dev"
var appName = "sensorlog-db"

const usage = `usage: %s <command>
  migrate  apply pending schema migrations
  prune    delete readings outside RETENTION_MAX_ROWS / RETENTION_MAX_AGE
  stats    print row count, newest reading and applied migrations
`

var errUsage = errors.New("usage")

func main() {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
	slog.SetDefault(logging.New(cfg, version, appName))

	if err := run(context.Background(), os.Args[1:], cfg, os.Stdout); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprintf(os.Stderr, usage, os.Args[0])
		} else {
			fmt.Fprintf(os.Stderr, "%v\n", err)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, cfg config.Config, out io.Writer) error {
	if len(args) < 1 {
		return errUsage
	}
	switch args[0] {
	case "migrate", "prune", "stats":
	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, args[0])
	}

	conn, err := db.Open(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(conn); closeErr != nil {
			slog.Error("db close", "error", closeErr)
		}
	}()

	if err := migrate.Run(ctx, conn); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	repo := repository.NewRepository(conn)

	switch args[0] {
	case "migrate":
		fmt.Fprintln(out, "migrations applied")
	case "prune":
		retention := types.Retention{MaxRows: cfg.RetentionMaxRows, MaxAge: cfg.RetentionMaxAge}
		if !retention.Enabled() {
			fmt.Fprintln(out, "retention disabled, nothing to prune")
			return nil
		}
		removed, err := repo.Prune(ctx, retention)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "pruned %d readings\n", removed)
	case "stats":
		return printStats(ctx, conn, repo, out)
	}
	return nil
}

func printStats(ctx context.Context, conn *sql.DB, repo repository.ReadingRepository, out io.Writer) error {
	n, err := repo.Count(ctx)
	if err != nil {
		return err
	}
	latest, ok, err := repo.Latest(ctx)
	if err != nil {
		return err
	}
	versions, err := migrate.Applied(ctx, conn)
	if err != nil {
		return fmt.Errorf("list migrations: %w", err)
	}

	fmt.Fprintf(out, "readings:   %d\n", n)
	if ok {
		fmt.Fprintf(out, "newest:     #%d at %s (%.1f °C, %.2f hPa, %.1f %%)\n",
			latest.ID, latest.Timestamp.UTC().Format(repository.TimestampLayout),
			latest.Temperature, latest.Pressure, latest.Humidity)
	} else {
		fmt.Fprintln(out, "newest:     none")
	}
	fmt.Fprintf(out, "migrations: %s\n", strings.Join(versions, ", "))
	return nil
}
