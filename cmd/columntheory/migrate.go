package main

import (
	"context"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/theory-cloud/columntheory/pkg/lease"
	"github.com/theory-cloud/columntheory/pkg/migrate"
	"github.com/theory-cloud/columntheory/pkg/session"
	"github.com/theory-cloud/columntheory/pkg/warehouse"
)

func newMigrateCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply, roll back and inspect SQL migrations",
		Long: `Migrations are <version>_<name>.up.sql / .down.sql files read from
migrationsDir, or from migrationsBucket/migrationsPrefix when a bucket is
configured. Applied versions are recorded in the warehouse (migrationsTable)
or in DynamoDB when ledgerTable is set. lockTable enables a DynamoDB lease
so only one process migrates at a time.

Examples:
  columntheory migrate status --dsn local.db
  columntheory migrate up --dsn local.db
  columntheory migrate up --steps 1 --dsn local.db
  columntheory migrate down --dsn local.db
`,
	}

	var steps int
	up := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRunner(cmd, g, func(ctx context.Context, r *migrate.Runner) error {
				done, err := r.Up(ctx, steps)
				printApplied(cmd.OutOrStdout(), "applied", done)
				return err
			})
		},
	}
	up.Flags().IntVar(&steps, "steps", 0, "apply at most this many (0 applies all)")

	var downSteps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back applied migrations, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRunner(cmd, g, func(ctx context.Context, r *migrate.Runner) error {
				done, err := r.Down(ctx, downSteps)
				printApplied(cmd.OutOrStdout(), "reverted", done)
				return err
			})
		},
	}
	down.Flags().IntVar(&downSteps, "steps", 1, "roll back this many")

	status := &cobra.Command{
		Use:   "status",
		Short: "Show applied and pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRunner(cmd, g, func(ctx context.Context, r *migrate.Runner) error {
				st, err := r.Status(ctx)
				if err != nil {
					return err
				}
				printStatus(cmd.OutOrStdout(), st)
				return nil
			})
		},
	}

	cmd.AddCommand(up, down, status)
	return cmd
}

func withRunner(cmd *cobra.Command, g *globals, fn func(context.Context, *migrate.Runner) error) error {
	cfg, err := g.loadConfig(cmd)
	if err != nil {
		return err
	}
	gw, err := g.gateway(cfg)
	if err != nil {
		return err
	}
	defer gw.Close()

	ctx := commandContext(cmd)
	r, err := newRunner(ctx, cfg, gw)
	if err != nil {
		return err
	}
	return fn(ctx, r)
}

// newRunner wires the source, ledger and lock the config asks for. AWS
// clients are only built when a bucket or table is configured.
func newRunner(ctx context.Context, cfg *session.Config, gw warehouse.Gateway) (*migrate.Runner, error) {
	var sess *session.Session
	aws := func() (*session.Session, error) {
		if sess != nil {
			return sess, nil
		}
		var err error
		sess, err = session.NewSession(ctx, cfg)
		return sess, err
	}

	var source migrate.Source = migrate.NewDirSource(cfg.MigrationsDir)
	if cfg.MigrationsBucket != "" {
		s, err := aws()
		if err != nil {
			return nil, err
		}
		source = &migrate.S3Source{Client: s.S3(), Bucket: cfg.MigrationsBucket, Prefix: cfg.MigrationsPrefix}
	}

	var ledger migrate.Ledger
	if cfg.LedgerTable != "" {
		s, err := aws()
		if err != nil {
			return nil, err
		}
		ledger = migrate.NewDynamoLedger(s.DynamoDB(), cfg.LedgerTable, ledgerName(cfg))
	} else {
		table := cfg.MigrationsTable
		if table == "" {
			table = session.DefaultMigrationsTable
		}
		wl := migrate.NewWarehouseLedger(gw,
			warehouse.TableRef{Project: cfg.Project, Dataset: cfg.Dataset, Table: table},
			migrate.NewMemoryLedger(), cfg.Log())
		if err := wl.Ensure(ctx); err != nil {
			return nil, err
		}
		ledger = wl
	}

	opts := []migrate.Option{migrate.WithLogger(cfg.Log()), migrate.WithClock(cfg.Clock())}
	if cfg.LockTable != "" {
		s, err := aws()
		if err != nil {
			return nil, err
		}
		locks, err := lease.NewManager(s.DynamoDB(), cfg.LockTable, lease.WithLogger(cfg.Log()))
		if err != nil {
			return nil, err
		}
		opts = append(opts, migrate.WithLocker(locks), migrate.WithLockName(ledgerName(cfg)))
	}
	return migrate.NewRunner(gw, source, ledger, opts...), nil
}

// ledgerName scopes ledger records and the lock to one dataset.
func ledgerName(cfg *session.Config) string {
	ref := warehouse.TableRef{Project: cfg.Project, Dataset: cfg.Dataset}
	if name := ref.String(); name != "" {
		return name
	}
	return migrate.DefaultLockName
}

func printApplied(w io.Writer, verb string, done []migrate.Migration) {
	if len(done) == 0 {
		fmt.Fprintln(w, "nothing to do")
		return
	}
	ok := color.New(color.FgGreen, color.Bold)
	for _, m := range done {
		ok.Fprintf(w, "%s ", verb)
		fmt.Fprintln(w, m.ID())
	}
}

func printStatus(w io.Writer, st []migrate.Status) {
	green := color.New(color.FgGreen, color.Bold)
	yellow := color.New(color.FgYellow, color.Bold)
	red := color.New(color.FgRed, color.Bold)

	if len(st) == 0 {
		fmt.Fprintln(w, "no migrations found")
		return
	}
	for _, s := range st {
		switch {
		case s.Missing:
			red.Fprint(w, "missing  ")
		case s.Modified:
			red.Fprint(w, "modified ")
		case s.Applied:
			green.Fprint(w, "applied  ")
		default:
			yellow.Fprint(w, "pending  ")
		}
		fmt.Fprint(w, s.Migration.ID())
		if s.Applied {
			fmt.Fprintf(w, "  (%s)", s.AppliedAt.Format("2006-01-02 15:04:05"))
		}
		fmt.Fprintln(w)
	}
}
