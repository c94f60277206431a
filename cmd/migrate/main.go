package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/angelmondragon/voucherz-backend/pkg/bootstrap"
	"github.com/angelmondragon/voucherz-backend/pkg/db"
	"github.com/angelmondragon/voucherz-backend/pkg/migrate"
)

type options struct {
	cmd     string
	dir     string
	name    string
	version string
}

func parseOptions(args []string, stderr io.Writer) (options, error) {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var opts options
	fs.StringVar(&opts.cmd, "cmd", "up", "migration command: up|down|status|version|create|validate")
	fs.StringVar(&opts.dir, "dir", migrate.DefaultDir, "goose migrations directory")
	fs.StringVar(&opts.name, "name", "", "migration name for -cmd=create")
	fs.StringVar(&opts.version, "version", "", "target version (YYYYMMDDHHMMSS) for -cmd=version")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	switch opts.cmd {
	case "create":
		if opts.name == "" {
			return options{}, errors.New("missing -name for create")
		}
	case "version":
		if opts.version == "" {
			return options{}, errors.New("missing -version for version command")
		}
	case "up", "down", "status", "validate":
	default:
		return options{}, fmt.Errorf("unknown -cmd value %q", opts.cmd)
	}
	return opts, nil
}

// offline runs the commands that only touch the migrations directory. It
// reports false when the command needs a database.
func offline(opts options, stdout io.Writer) (bool, error) {
	switch opts.cmd {
	case "create":
		path, err := migrate.CreateSQLMigration(opts.dir, opts.name)
		if err != nil {
			return true, err
		}
		fmt.Fprintln(stdout, "created migration:", path)
		return true, nil
	case "validate":
		if err := migrate.ValidateDir(opts.dir); err != nil {
			return true, err
		}
		fmt.Fprintln(stdout, "migration validation passed")
		return true, nil
	}
	return false, nil
}

func online(ctx context.Context, opts options, sqlDB *sql.DB) error {
	if opts.cmd == "version" {
		return migrate.MigrateToVersion(ctx, sqlDB, opts.dir, opts.version)
	}
	return migrate.Run(ctx, sqlDB, opts.dir, opts.cmd)
}

func main() {
	opts, err := parseOptions(os.Args[1:], os.Stderr)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	cfg, logg, err := bootstrap.Load("migrate")
	if err != nil {
		os.Exit(1)
	}
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env": cfg.App.Env,
		"cmd": opts.cmd,
		"dir": opts.dir,
	})

	done, err := offline(opts, os.Stdout)
	if err != nil {
		logg.Error(ctx, "migration command failed", err)
		os.Exit(1)
	}
	if done {
		return
	}

	if cfg.DB.Driver == db.DriverSQLite {
		logg.Error(ctx, "goose migrations target postgres only", errors.New("sqlite driver configured"))
		os.Exit(1)
	}

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer dbClient.Close()

	sqlDB, err := dbClient.DB().DB()
	if err != nil {
		logg.Error(ctx, "failed to extract sql.DB", err)
		os.Exit(1)
	}

	if err := online(ctx, opts, sqlDB); err != nil {
		logg.Error(ctx, "migration command failed", err)
		os.Exit(1)
	}
	logg.Info(ctx, "migration command completed")
}
