// Package cli implements ledgerctl, the operator command line for the
// payable ledger.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"modalku/backend/internal/domain"
	"modalku/backend/internal/ledger"
	"modalku/backend/internal/logging"
	"modalku/backend/internal/money"
	"modalku/backend/internal/service"
	"modalku/backend/internal/store"
	pgstore "modalku/backend/internal/store/postgres"
	"modalku/backend/internal/store/sqlite"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	DatabaseURL string
	SQLitePath  string
	Format      string // "json" | "text"
	LogLevel    string
	Locale      string
}

var ValidFormats = []string{"text", "json"}

func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "ledgerctl",
		Short: "Operate the modalku payable ledger",
		Long: `ledgerctl records capital contributions and sales against a store's
payable ledger, prints balances and verifies ledger invariants.

It talks to the same Postgres or SQLite database as the backend server.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.DatabaseURL, "database-url", os.Getenv("DATABASE_URL"), "postgres connection string")
	cmd.PersistentFlags().StringVar(&opts.SQLitePath, "sqlite", os.Getenv("SQLITE_PATH"), "path to a SQLite ledger file")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "warn", "log level")
	cmd.PersistentFlags().StringVar(&opts.Locale, "locale", "id", "currency locale for text output")

	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewPayCommand(opts))
	cmd.AddCommand(NewSaleCommand(opts))
	cmd.AddCommand(NewVoidCommand(opts))
	cmd.AddCommand(NewBalanceCommand(opts))
	cmd.AddCommand(NewEntriesCommand(opts))
	cmd.AddCommand(NewVerifyCommand(opts))
	cmd.AddCommand(NewUserCommand(opts))

	return cmd
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

// env is what a command needs to talk to the ledger.
type env struct {
	repo    store.Repository
	service *service.Service
	out     *OutputFormatter
	close   func() error
}

func openEnv(ctx context.Context, opts *RootOptions, cmd *cobra.Command) (*env, error) {
	logger, err := logging.New(opts.LogLevel, "console")
	if err != nil {
		return nil, NewExitError(ExitCommandError, err.Error())
	}

	repo, closeFn, err := openRepository(ctx, opts, logger)
	if err != nil {
		return nil, err
	}
	engine := ledger.NewEngine(repo, ledger.WithLogger(logger.Named("ledger")))
	formatter := money.NewFormatter(opts.Locale)

	out := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Money:     formatter,
	}
	closeAll := func() error {
		_ = logger.Sync()
		return closeFn()
	}

	return &env{
		repo:    repo,
		service: service.New(repo, engine, "", formatter, logger.Named("service")),
		out:     out,
		close:   closeAll,
	}, nil
}

func openRepository(ctx context.Context, opts *RootOptions, logger *zap.Logger) (store.Repository, func() error, error) {
	switch {
	case opts.DatabaseURL != "":
		pg, err := pgstore.New(ctx, opts.DatabaseURL)
		if err != nil {
			return nil, nil, WrapExitError(ExitCommandError, "connect postgres", err)
		}
		logger.Debug("repository: postgres")
		return pg, pg.Close, nil
	case opts.SQLitePath != "":
		db, err := sqlite.Open(ctx, opts.SQLitePath)
		if err != nil {
			return nil, nil, WrapExitError(ExitCommandError, "open sqlite", err)
		}
		logger.Debug("repository: sqlite", zap.String("path", opts.SQLitePath))
		return db, db.Close, nil
	default:
		return nil, nil, NewExitError(ExitCommandError, "no ledger database: pass --database-url or --sqlite")
	}
}

// operatorContext marks CLI calls as coming from a trusted admin session.
func operatorContext(ctx context.Context) context.Context {
	return service.WithActor(ctx, domain.Actor{Username: "ledgerctl", Role: "admin"})
}
