// Command ptutil runs maintenance tasks against the Picture Team database.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/notes-bin/pictureteam/internal/auth"
	"github.com/notes-bin/pictureteam/internal/config"
	"github.com/notes-bin/pictureteam/internal/db"
)

const usage = `Utility for The Picture Team applications

Usage:
  ptutil [-config path] migrate            apply the database schema
  ptutil [-config path] promote <email>    grant administrator rights
  ptutil [-config path] demote <email>     revoke administrator rights
`

var errUsage = errors.New("invalid usage")

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stderr); err != nil {
		if !errors.Is(err, errUsage) {
			slog.Error("ptutil failed", "error", err)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("ptutil", flag.ContinueOnError)
	fs.SetOutput(out)
	fs.Usage = func() { fmt.Fprint(out, usage) }
	configPath := fs.String("config", "config/config.json", "path to the JSON config file")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return errUsage
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(out, nil)))

	store, err := db.Open(ctx, db.Options{
		Driver:         cfg.Database.Driver,
		URL:            cfg.Database.URL,
		MaxConns:       cfg.Database.MaxConns,
		AcquireTimeout: cfg.AcquireTimeout(),
	})
	if err != nil {
		return err
	}
	defer store.Close()

	switch cmd := fs.Arg(0); cmd {
	case "migrate":
		return store.Migrate(ctx)
	case "promote", "demote":
		if fs.NArg() != 2 {
			fs.Usage()
			return errUsage
		}
		users := auth.NewAuth(store, auth.NewHasher(), auth.NewTokens(cfg.TokenSecret, cfg.TokenLifetime()), slog.Default())
		if err := users.SetAdmin(ctx, fs.Arg(1), cmd == "promote"); err != nil {
			return err
		}
		fmt.Fprintf(out, "%s: %s\n", cmd, auth.NormalizeEmail(fs.Arg(1)))
		return nil
	default:
		fs.Usage()
		return errUsage
	}
}
