package main

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/theory-cloud/columntheory/pkg/query"
)

func newCompileCmd(g *globals) *cobra.Command {
	var (
		entity    string
		count     bool
		aggregate string
		field     string
		dataset   string
		project   string
		run       bool
	)

	cmd := &cobra.Command{
		Use:   "compile [request.yaml]",
		Short: "Print the SQL and parameters for a find request",
		Long: `Compile a YAML find request against the entity definitions and print
the statement the runtime would send to the warehouse.

Examples:
  columntheory compile -d entities.yaml --entity User request.yaml
  columntheory compile -d entities.yaml --entity User --count request.yaml
  columntheory compile -d entities.yaml --entity Order --aggregate sum --field amount
  columntheory compile -d entities.yaml --entity User --run request.yaml
`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if entity == "" {
				return fmt.Errorf("--entity is required")
			}
			var path string
			if len(args) == 1 {
				path = args[0]
			}
			req, err := readRequest(path)
			if err != nil {
				return err
			}

			if run {
				return runFind(cmd, g, entity, req, count)
			}

			registry, err := g.registry()
			if err != nil {
				return err
			}
			var opts []query.Option
			if dataset != "" {
				opts = append(opts, query.WithDataset(dataset), query.WithProject(project))
			}
			c := query.NewCompiler(registry, opts...)

			var q *query.CompiledQuery
			switch {
			case aggregate != "":
				q, err = c.Aggregate(entity, req, query.Aggregate{
					Func:  query.AggregateFunc(strings.ToUpper(aggregate)),
					Field: field,
				})
			case count:
				q, err = c.FindAndCount(entity, req)
			default:
				q, err = c.Find(entity, req)
			}
			if err != nil {
				return err
			}
			printCompiled(cmd.OutOrStdout(), q)
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&entity, "entity", "e", "", "entity to query")
	flags.BoolVar(&count, "count", false, "compile findAndCountAll")
	flags.StringVar(&aggregate, "aggregate", "", "aggregate function (count, max, min, sum, avg)")
	flags.StringVar(&field, "field", "", "field for --aggregate")
	flags.StringVar(&dataset, "dataset", "", "qualify tables with dataset")
	flags.StringVar(&project, "project", "", "qualify tables with project (requires --dataset)")
	flags.BoolVar(&run, "run", false, "run the request against --dsn and print the records")
	return cmd
}

func printCompiled(w io.Writer, q *query.CompiledQuery) {
	header := color.New(color.FgCyan, color.Bold)
	header.Fprintln(w, "-- sql")
	fmt.Fprintln(w, q.SQL)

	if len(q.Params) == 0 {
		return
	}
	header.Fprintln(w, "-- params")
	names := make([]string, 0, len(q.Params))
	for name := range q.Params {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "@%s = %#v\n", name, q.Params[name])
	}
}

func runFind(cmd *cobra.Command, g *globals, entity string, req query.FindRequest, count bool) error {
	db, gw, err := g.open(cmd)
	if err != nil {
		return err
	}
	defer gw.Close()

	m, err := db.Model(entity)
	if err != nil {
		return err
	}
	ctx := commandContext(cmd)

	var out any
	if count {
		res, err := m.FindAndCountAll(ctx, req)
		if err != nil {
			return err
		}
		out = map[string]any{"count": res.Count, "rows": res.Rows}
	} else {
		recs, err := m.FindAll(ctx, req)
		if err != nil {
			return err
		}
		out = recs
	}

	enc := yaml.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent(2)
	if err := enc.Encode(out); err != nil {
		return err
	}
	return enc.Close()
}
