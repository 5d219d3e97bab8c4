package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	migrator "github.com/Maksumys/schema-migrator"
	"github.com/Maksumys/schema-migrator/internal/config"
	"github.com/Maksumys/schema-migrator/internal/database"
	"github.com/Maksumys/schema-migrator/migrations"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

type rootOptions struct {
	configPath  string
	driver      string
	dsn         string
	ledgerTable string
	logLevel    string

	getenv func(string) string
}

func newRootCmd(opts *rootOptions) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "migrate",
		Short:         "Schema migrations for the registration store",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "path to a YAML config file")
	flags.StringVar(&opts.driver, "driver", "", "database driver: postgres or sqlite")
	flags.StringVar(&opts.dsn, "dsn", "", "database connection string")
	flags.StringVar(&opts.ledgerTable, "ledger-table", "", "ledger table name")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn, error")

	rootCmd.AddCommand(
		newUpCmd(opts),
		newDownCmd(opts),
		newStatusCmd(opts),
		newVerifyCmd(opts),
		newVersionCmd(),
	)
	return rootCmd
}

// session is an open database with a manager over the migration catalog.
type session struct {
	db      *gorm.DB
	manager *migrator.MigrationManager
}

func (s *session) Close() {
	_ = database.Close(s.db)
}

func (o *rootOptions) resolveConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return cfg, err
	}
	if err := cfg.ApplyEnv(o.getenv); err != nil {
		return cfg, err
	}

	flags := cmd.Flags()
	if flags.Changed("driver") {
		cfg.Driver = o.driver
	}
	if flags.Changed("dsn") {
		cfg.DSN = o.dsn
	}
	if flags.Changed("ledger-table") {
		cfg.LedgerTable = o.ledgerTable
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = o.logLevel
	}

	cfg.Resolve(o.getenv)
	return cfg, cfg.Validate()
}

func (o *rootOptions) open(cmd *cobra.Command) (*session, error) {
	cfg, err := o.resolveConfig(cmd)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", migrator.ErrConfiguration, err)
	}

	logger := logrus.New()
	logger.SetOutput(cmd.ErrOrStderr())
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", migrator.ErrConfiguration, err)
	}
	logger.SetLevel(level)

	source, err := migrations.Source()
	if err != nil {
		return nil, err
	}

	db, err := database.Open(cfg, logger)
	if err != nil {
		return nil, err
	}

	manager, err := migrator.NewMigrationsManager(db, source,
		migrator.WithLogger(logger.WithField("driver", cfg.Driver)),
		migrator.WithLedgerTable(cfg.LedgerTable),
		migrator.WithLockKey(cfg.LockKey),
		migrator.WithLockRetry(cfg.LockRetries, cfg.LockRetryDelay),
	)
	if err != nil {
		_ = database.Close(db)
		return nil, err
	}

	return &session{db: db, manager: manager}, nil
}

func newUpCmd(opts *rootOptions) *cobra.Command {
	var (
		target string
		dryRun bool
	)

	cmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			if dryRun {
				plan, err := s.manager.PlanUp(cmd.Context(), target)
				if err != nil {
					return err
				}
				printPlan(cmd.OutOrStdout(), plan)
				return nil
			}

			report, err := s.manager.Migrate(cmd.Context(), target)
			printReport(cmd.OutOrStdout(), report)
			return err
		},
	}

	cmd.Flags().StringVar(&target, "to", "", "apply up to and including this migration id")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print the plan without applying it")
	return cmd
}

func newDownCmd(opts *rootOptions) *cobra.Command {
	var (
		target string
		dryRun bool
	)

	cmd := &cobra.Command{
		Use:   "down",
		Short: "Revert applied migrations newer than --to",
		Long: "Revert applied migrations newer than --to, most recent first.\n" +
			"Use --to " + migrator.TargetInitial + " to revert everything.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			if dryRun {
				plan, err := s.manager.PlanDown(cmd.Context(), target)
				if err != nil {
					return err
				}
				printPlan(cmd.OutOrStdout(), plan)
				return nil
			}

			report, err := s.manager.Downgrade(cmd.Context(), target)
			printReport(cmd.OutOrStdout(), report)
			return err
		},
	}

	cmd.Flags().StringVar(&target, "to", "", "revert migrations newer than this id")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print the plan without reverting")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func newStatusCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show applied, pending and unknown migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			statuses, err := s.manager.Status(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ledger: %s\n", s.manager.Ledger().Table())
			printStatus(cmd.OutOrStdout(), statuses)
			return nil
		},
	}
}

func newVerifyCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Fail unless every migration is applied and unchanged",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			reason, ok, err := s.manager.CheckFulfillment(cmd.Context())
			if err != nil {
				return err
			}
			if !ok {
				return reason
			}
			fmt.Fprintln(cmd.OutOrStdout(), "database is up to date")
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the tool version and the latest catalog migration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			source, err := migrations.Source()
			if err != nil {
				return err
			}

			latest := "none"
			if all := source.ListAll(); len(all) > 0 {
				latest = all[len(all)-1].ID
			}
			fmt.Fprintf(cmd.OutOrStdout(), "migrate %s\nlatest migration: %s (%d total)\n", version, latest, source.Len())
			return nil
		},
	}
}

func printPlan(w io.Writer, plan migrator.Plan) {
	if plan.IsEmpty() {
		fmt.Fprintf(w, "nothing to %s\n", plan.Direction)
		return
	}
	fmt.Fprintf(w, "plan (%s, %d migration(s)):\n", plan.Direction, len(plan.Migrations))
	for _, m := range plan.Migrations {
		fmt.Fprintf(w, "  %s  %s\n", m.ID, m.Name)
	}
}

func printReport(w io.Writer, report migrator.Report) {
	if report.State == migrator.BatchIdle {
		return
	}
	verb := "applied"
	if report.Direction == migrator.DirectionDown {
		verb = "reverted"
	}
	for _, id := range report.Completed {
		fmt.Fprintf(w, "%s %s\n", verb, id)
	}
	fmt.Fprintf(w, "batch %s %s: %d %s\n", report.BatchID, report.State, len(report.Completed), verb)
}

func printStatus(w io.Writer, statuses []migrator.MigrationStatus) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tSTATE\tDOWN\tAPPLIED AT\tNOTE")
	for _, s := range statuses {
		appliedAt := "-"
		if !s.AppliedAt.IsZero() {
			appliedAt = s.AppliedAt.UTC().Format(time.RFC3339)
		}

		var notes []string
		if s.ChecksumMismatch {
			notes = append(notes, "checksum changed")
		}
		if s.State == migrator.StateUnknown {
			notes = append(notes, "not in catalog")
		}

		down := s.DownPolicy.String()
		if s.State == migrator.StateUnknown {
			down = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", s.ID, s.Name, s.State, down, appliedAt, strings.Join(notes, ", "))
	}
	_ = tw.Flush()
}
