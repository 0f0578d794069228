package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mind-engage/mindengage-sheets/internal/config"
	"github.com/mind-engage/mindengage-sheets/internal/db"
	"github.com/mind-engage/mindengage-sheets/internal/exam"
	"github.com/mind-engage/mindengage-sheets/internal/logging"
	"github.com/mind-engage/mindengage-sheets/internal/users"
)

type globals struct {
	driver  string
	dsn     string
	verbose bool
	timeout time.Duration
}

func newRootCmd() *cobra.Command {
	cfg, err := config.FromEnv()
	if err != nil {
		cfg = config.Defaults()
	}
	g := &globals{}

	root := &cobra.Command{
		Use:           "sheetsctl",
		Short:         "Administer the exam sheets database",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&g.driver, "db-driver", cfg.DBDriver, "database driver (sqlite|postgres)")
	root.PersistentFlags().StringVar(&g.dsn, "db-dsn", cfg.DBDSN, "database DSN")
	root.PersistentFlags().BoolVarP(&g.verbose, "verbose", "v", false, "debug logging to stderr")
	root.PersistentFlags().DurationVar(&g.timeout, "timeout", 30*time.Second, "overall command timeout")

	root.AddCommand(newMigrateCmd(g), newUserAddCmd(g), newGradeCmd(g))
	return root
}

func (g *globals) open(ctx context.Context) (*sql.DB, error) {
	driver, err := db.ParseDriver(g.driver)
	if err != nil {
		return nil, err
	}
	return db.Open(ctx, driver, g.dsn)
}

func (g *globals) logger() *zap.Logger {
	if !g.verbose {
		return zap.NewNop()
	}
	l, err := logging.New("debug", true)
	if err != nil {
		return zap.NewNop()
	}
	return l
}

func (g *globals) context(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), g.timeout)
}

func newMigrateCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := g.context(cmd)
			defer cancel()
			h, err := g.open(ctx)
			if err != nil {
				return err
			}
			defer h.Close()
			fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
			return nil
		},
	}
}

func newUserAddCmd(g *globals) *cobra.Command {
	var password, role string
	cmd := &cobra.Command{
		Use:   "useradd <username>",
		Short: "Create a user account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := g.context(cmd)
			defer cancel()
			h, err := g.open(ctx)
			if err != nil {
				return err
			}
			defer h.Close()
			u, err := users.NewStore(h).Create(ctx, args[0], password, role)
			if err != nil {
				return err
			}
			g.logger().Debug("user created", zap.String("id", u.ID), zap.String("role", u.Role))
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", u.ID, u.Username, u.Role)
			return nil
		},
	}
	cmd.Flags().StringVarP(&password, "password", "p", "", "initial password (required)")
	cmd.Flags().StringVar(&role, "role", users.RoleUser, "role (user|admin)")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func newGradeCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "grade <exam-sheet-id> <user>",
		Short: "Print a user's final grade on an exam sheet",
		Long: `Print the sum of the calculated grades of a user's answers
to the tasks of an exam sheet. The user may be given by id or username.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := g.context(cmd)
			defer cancel()
			h, err := g.open(ctx)
			if err != nil {
				return err
			}
			defer h.Close()

			userID := args[1]
			if u, err := users.NewStore(h).ByUsername(ctx, args[1]); err == nil {
				userID = u.ID
			}
			svc := exam.NewService(exam.NewSQLStore(h), exam.WithLogger(g.logger()))
			grade, err := svc.UserFinalGrade(ctx, args[0], userID)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), grade)
			return nil
		},
	}
}
