package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"modalku/backend/internal/domain"
	"modalku/backend/internal/logging"
	"modalku/backend/internal/store"
)

type migrator interface {
	Migrate(ctx context.Context, logger *zap.Logger) error
}

func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := logging.New(rootOpts.LogLevel, "console")
			if err != nil {
				return NewExitError(ExitCommandError, err.Error())
			}
			defer func() { _ = logger.Sync() }()

			repo, closeFn, err := openRepository(cmd.Context(), rootOpts, logger)
			if err != nil {
				return err
			}
			defer func() { _ = closeFn() }()

			// SQLite applies its embedded schema when the file is opened.
			if m, ok := repo.(migrator); ok {
				if err := m.Migrate(cmd.Context(), logger); err != nil {
					return WrapExitError(ExitFailure, "migrate", err)
				}
			}
			out := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout()}
			return out.Success(map[string]bool{"migrated": true}, func(w io.Writer) {
				fmt.Fprintln(w, "schema is up to date")
			})
		},
	}

	return cmd
}

func NewUserCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage dashboard accounts",
	}
	cmd.AddCommand(newUserAddCommand(rootOpts))
	return cmd
}

func newUserAddCommand(rootOpts *RootOptions) *cobra.Command {
	var username, password, role string

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create a dashboard account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			username = strings.ToLower(strings.TrimSpace(username))
			if len(username) < 4 || strings.ContainsAny(username, " \t\r\n") {
				return NewExitError(ExitCommandError, "username must be at least 4 characters without spaces")
			}
			if len(strings.TrimSpace(password)) < 6 {
				return NewExitError(ExitCommandError, "password must be at least 6 characters")
			}
			if role != "admin" && role != "operator" {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid role %q: must be admin or operator", role))
			}

			e, err := openEnv(cmd.Context(), rootOpts, cmd)
			if err != nil {
				return err
			}
			defer func() { _ = e.close() }()

			hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
			if err != nil {
				return err
			}
			user := domain.UserAccount{
				Username:  username,
				Password:  string(hash),
				Role:      role,
				Active:    true,
				CreatedAt: time.Now().UTC(),
			}
			if err := e.repo.CreateUser(cmd.Context(), user); err != nil {
				if errors.Is(err, store.ErrConflict) {
					return NewExitError(ExitCommandError, fmt.Sprintf("user %q already exists", username))
				}
				return err
			}
			view := map[string]string{"username": username, "role": role}
			return e.out.Success(view, func(w io.Writer) {
				fmt.Fprintf(w, "user %s (%s) created\n", username, role)
			})
		},
	}

	cmd.Flags().StringVar(&username, "username", "", "login name")
	cmd.Flags().StringVar(&password, "password", "", "initial password")
	cmd.Flags().StringVar(&role, "role", "operator", "admin or operator")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}
