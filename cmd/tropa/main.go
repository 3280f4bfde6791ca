// Command tropa runs the scout registration server and its maintenance tasks.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/gabrielmiguelok/tropa/internal/config"
	"github.com/gabrielmiguelok/tropa/internal/server"
	"github.com/gabrielmiguelok/tropa/internal/storage"
	"github.com/gabrielmiguelok/tropa/pkg/logging"
	"github.com/gabrielmiguelok/tropa/pkg/metrics"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := newRootCmd(viper.New()).ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// app is what every subcommand needs once flags are parsed.
type app struct {
	v      *viper.Viper
	cfg    config.Config
	logger logging.Logger
	out    io.Writer
}

func newRootCmd(v *viper.Viper) *cobra.Command {
	a := &app{v: v}

	root := &cobra.Command{
		Use:           "tropa",
		Short:         "Scout registration wizard",
		Long:          "tropa serves a multi-step wizard for registering and editing scouts, backed by SQLite.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.StringP("config", "c", "", "config file (default ./tropa.yaml if present)")
	flags.String("db", "", "sqlite database path")
	flags.String("log-level", "", "log level: debug, info, warn, error")
	flags.Bool("json", false, "output JSON")
	_ = v.BindPFlag("database.path", flags.Lookup("db"))
	_ = v.BindPFlag("log.level", flags.Lookup("log-level"))
	_ = v.BindPFlag("json", flags.Lookup("json"))

	root.AddCommand(serveCmd(a))
	root.AddCommand(migrateCmd(a))
	root.AddCommand(placesCmd(a))
	root.AddCommand(scoutsCmd(a))
	root.AddCommand(draftsCmd(a))
	return root
}

func (a *app) init(cmd *cobra.Command) error {
	file, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(a.v, file)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = logging.NewSlogLogger(logging.Options{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cmd.ErrOrStderr(),
	})
	logging.SetDefault(a.logger)
	a.out = cmd.OutOrStdout()
	return nil
}

// openDB opens the database and applies pending migrations.
func (a *app) openDB(ctx context.Context) (*storage.DB, error) {
	db, err := storage.Open(a.cfg.Database, a.logger)
	if err != nil {
		return nil, err
	}
	if _, err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func (a *app) withDB(ctx context.Context, fn func(ctx context.Context, db *storage.DB) error) error {
	db, err := a.openDB(ctx)
	if err != nil {
		return err
	}
	defer db.Close()
	return fn(ctx, db)
}

func serveCmd(a *app) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr != "" {
				a.cfg.Addr = addr
			}
			db, err := a.openDB(cmd.Context())
			if err != nil {
				return err
			}
			srv := server.New(a.cfg, db, server.Options{
				Logger:  a.logger,
				Metrics: metrics.NewMetrics("tropa"),
				Version: version,
			})
			return srv.Run(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides config)")
	return cmd
}

func migrateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := storage.Open(a.cfg.Database, a.logger)
			if err != nil {
				return err
			}
			defer db.Close()
			schema, err := db.Migrate(cmd.Context())
			if err != nil {
				return err
			}
			if a.v.GetBool("json") {
				return a.printJSON(map[string]int{"version": schema})
			}
			fmt.Fprintf(a.out, "schema at version %d\n", schema)
			return nil
		},
	}
}

func placesCmd(a *app) *cobra.Command {
	places := &cobra.Command{Use: "places", Short: "Manage regions, sub-regions and localities"}
	places.AddCommand(placesImportCmd(a))
	return places
}

func placesImportCmd(a *app) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import a YAML places tree",
		RunE: func(cmd *cobra.Command, args []string) error {
			if file == "" {
				return fmt.Errorf("--file required")
			}
			f, err := os.Open(file)
			if err != nil {
				return err
			}
			defer f.Close()

			return a.withDB(cmd.Context(), func(ctx context.Context, db *storage.DB) error {
				stats, err := storage.NewPlaces(db).Import(ctx, f)
				if err != nil {
					return err
				}
				if a.v.GetBool("json") {
					return a.printJSON(stats)
				}
				fmt.Fprintf(a.out, "imported %d region(s), %d sub-region(s), %d locality(ies)\n",
					stats.Regions, stats.Subregions, stats.Localities)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "YAML file")
	return cmd
}

func scoutsCmd(a *app) *cobra.Command {
	scouts := &cobra.Command{Use: "scouts", Short: "Inspect registered scouts"}
	scouts.AddCommand(scoutsListCmd(a))
	return scouts
}

func scoutsListCmd(a *app) *cobra.Command {
	var rama string
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List scouts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withDB(cmd.Context(), func(ctx context.Context, db *storage.DB) error {
				items, err := storage.NewScouts(db).List(ctx, storage.ListFilter{Rama: rama, Limit: limit})
				if err != nil {
					return err
				}
				if a.v.GetBool("json") {
					if items == nil {
						items = []storage.Scout{}
					}
					return a.printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(a.out)
				tw.AppendHeader(table.Row{"Code", "Apellidos", "Nombres", "Documento", "Rama", "Patrulla"})
				for _, s := range items {
					tw.AppendRow(table.Row{s.DisplayCode, s.Apellidos, s.Nombres, s.Documento, s.Rama, s.Patrulla})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&rama, "rama", "", "filter by rama")
	cmd.Flags().IntVar(&limit, "limit", 100, "maximum rows")
	return cmd
}

func draftsCmd(a *app) *cobra.Command {
	drafts := &cobra.Command{Use: "drafts", Short: "Manage wizard drafts"}
	drafts.AddCommand(draftsPurgeCmd(a))
	return drafts
}

func draftsPurgeCmd(a *app) *cobra.Command {
	var olderThan time.Duration
	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete drafts not touched for a while",
		RunE: func(cmd *cobra.Command, args []string) error {
			if olderThan <= 0 {
				olderThan = a.cfg.Drafts.MaxAge
			}
			return a.withDB(cmd.Context(), func(ctx context.Context, db *storage.DB) error {
				n, err := storage.NewDrafts(db).Purge(ctx, olderThan)
				if err != nil {
					return err
				}
				if a.v.GetBool("json") {
					return a.printJSON(map[string]int64{"purged": n})
				}
				fmt.Fprintf(a.out, "purged %d draft(s)\n", n)
				return nil
			})
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "age threshold (default drafts.max_age)")
	return cmd
}

func (a *app) printJSON(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
