// grant-claims はYAMLの付与リストからクレームを直接書き込むオフラインツール。
// 最初の管理者の作成に使用する。
//
//	grant-claims --file grants.yaml [--database-url URL] [--dry-run]
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/hitoshi/accessportal/internal/bootstrap"
	"github.com/hitoshi/accessportal/internal/claims"
	"github.com/hitoshi/accessportal/internal/database"
	"github.com/hitoshi/accessportal/internal/logger"
	"github.com/hitoshi/accessportal/internal/repository"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	var (
		filePath    string
		databaseURL string
		dryRun      bool
	)

	flagSet := pflag.NewFlagSet("grant-claims", pflag.ContinueOnError)
	flagSet.StringVarP(&filePath, "file", "f", "", "path to the YAML grant list (required)")
	flagSet.StringVar(&databaseURL, "database-url", os.Getenv("DATABASE_URL"), "PostgreSQL connection URL")
	flagSet.BoolVar(&dryRun, "dry-run", false, "validate and print grants without writing")
	if err := flagSet.Parse(args); err != nil {
		return err
	}

	if filePath == "" {
		return errors.New("--file is required")
	}
	if databaseURL == "" && !dryRun {
		return errors.New("--database-url or DATABASE_URL is required")
	}

	f, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("failed to open grant list: %w", err)
	}
	defer f.Close()

	grants, err := bootstrap.Parse(f)
	if err != nil {
		return err
	}

	l := logger.Setup(os.Stderr)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if dryRun {
		_, err := bootstrap.NewRunner(nil, nil, l).Run(ctx, grants, true)
		return err
	}

	db, err := database.Open(databaseURL)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := database.WaitReady(ctx, db, 5, 2*time.Second); err != nil {
		return err
	}

	store := repository.NewPostgresStore(db, repository.StoreConfig{}, l)
	repos := store.Repos()
	issuer := claims.NewIssuer(repos.Identities, repos.Profiles, nil, l)

	report, err := bootstrap.NewRunner(issuer, repos.Profiles, l).Run(ctx, grants, false)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "applied: %d, failed: %d\n", len(report.Applied), len(report.Failures))
	for _, failure := range report.Failures {
		fmt.Fprintf(os.Stdout, "  %s: %v\n", failure.UID, failure.Err)
	}
	if len(report.Failures) > 0 {
		return fmt.Errorf("%d grant(s) failed", len(report.Failures))
	}
	return nil
}
