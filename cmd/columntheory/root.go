package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/theory-cloud/columntheory/internal/columndb"
	"github.com/theory-cloud/columntheory/pkg/model"
	"github.com/theory-cloud/columntheory/pkg/session"
	"github.com/theory-cloud/columntheory/pkg/warehouse/sqlgateway"
)

// flags shared by every command.
type globals struct {
	config      string
	envFiles    []string
	dsn         string
	definitions string
	verbose     bool
}

func newRootCmd() *cobra.Command {
	g := &globals{}
	root := &cobra.Command{
		Use:   "columntheory",
		Short: "Entity runtime tooling for columnar warehouses",
		Long: `columntheory compiles find requests to warehouse SQL and manages
entity tables and migrations.

Examples:

  columntheory compile --definitions entities.yaml --entity User request.yaml
  columntheory sync --definitions entities.yaml --dsn local.db
  columntheory migrate up --dsn local.db
  columntheory migrate status --dsn local.db
`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&g.config, "config", "c", "", "YAML config file")
	flags.StringSliceVar(&g.envFiles, "env-file", nil, "dotenv files to read (default .env)")
	flags.StringVar(&g.dsn, "dsn", "columntheory.db", "SQLite database standing in for the warehouse")
	flags.StringVarP(&g.definitions, "definitions", "d", "", "YAML entity definitions")
	flags.BoolVarP(&g.verbose, "verbose", "v", false, "log compiled statements")

	root.AddCommand(newCompileCmd(g), newSyncCmd(g), newMigrateCmd(g))
	return root
}

func (g *globals) loadConfig(cmd *cobra.Command) (*session.Config, error) {
	cfg, err := session.Load(g.config, g.envFiles...)
	if err != nil {
		return nil, err
	}
	level := slog.LevelInfo
	if g.verbose {
		level = slog.LevelDebug
	}
	cfg.Logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
	return cfg, nil
}

func (g *globals) registry() (*model.Registry, error) {
	if g.definitions == "" {
		return nil, fmt.Errorf("--definitions is required")
	}
	defs, err := model.LoadDefinitions(g.definitions)
	if err != nil {
		return nil, err
	}
	r := model.NewRegistry()
	if err := defs.Apply(r); err != nil {
		return nil, err
	}
	return r, nil
}

// open returns a DB over the SQLite stand-in. The caller closes the gateway.
func (g *globals) open(cmd *cobra.Command) (*columndb.DB, *sqlgateway.Gateway, error) {
	cfg, err := g.loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	registry, err := g.registry()
	if err != nil {
		return nil, nil, err
	}
	gw, err := g.gateway(cfg)
	if err != nil {
		return nil, nil, err
	}
	db, err := columndb.New(cfg, gw, columndb.WithRegistry(registry))
	if err != nil {
		_ = gw.Close()
		return nil, nil, err
	}
	return db, gw, nil
}

func (g *globals) gateway(cfg *session.Config) (*sqlgateway.Gateway, error) {
	gw, err := sqlgateway.OpenSQLite(g.dsn, sqlgateway.WithLogger(cfg.Log()))
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", g.dsn, err)
	}
	// One connection keeps ":memory:" databases consistent across statements.
	gw.DB().SetMaxOpenConns(1)
	return gw, nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
