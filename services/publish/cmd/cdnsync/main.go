package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"cdnsync/pkg/bus"
	"cdnsync/pkg/db"
	"cdnsync/pkg/telemetry"
	"cdnsync/services/config"
	"cdnsync/services/inventory"
	"cdnsync/services/publish"
	"cdnsync/services/resolver"
)

const serviceName = "cdnsync"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type globalFlags struct {
	configFile string
	envFiles   []string
}

func newRootCommand() *cobra.Command {
	flags := &globalFlags{}
	cmd := &cobra.Command{
		Use:           serviceName,
		Short:         "Publish static assets to a CDN and resolve their URLs",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return config.LoadDotEnv(flags.envFiles...)
		},
	}
	cmd.PersistentFlags().StringVarP(&flags.configFile, "config", "c", "cdn.json", "Project config file (cdn.json or cdn.yaml)")
	cmd.PersistentFlags().StringSliceVar(&flags.envFiles, "env-file", nil, "Optional .env files to load")

	cmd.AddCommand(newPublishCommand(flags))
	cmd.AddCommand(newResolveCommand(flags))
	cmd.AddCommand(newInventoryCommand(flags))
	cmd.AddCommand(newRunsCommand(flags))
	cmd.AddCommand(newMigrateCommand())
	return cmd
}

// session holds the optional infrastructure a command may use.
type session struct {
	logger  *log.Logger
	project *config.Project
	env     config.Env
	pool    *pgxpool.Pool
	orm     *gorm.DB
	bus     *bus.Bus
	closers []func()
}

func openSession(ctx context.Context, flags *globalFlags, needDB bool) (*session, error) {
	s := &session{
		logger: telemetry.NewLogger(serviceName, os.Stderr),
		env:    config.FromEnv(),
	}
	project, err := config.Load(flags.configFile)
	if err != nil {
		return nil, err
	}
	s.project = project

	if needDB || project.Backend() == config.BackendPostgres {
		if err := s.openDatabase(ctx); err != nil {
			s.Close()
			return nil, err
		}
	}
	return s, nil
}

// openDatabase connects to DATABASE_URL and applies the migrations once per session.
func (s *session) openDatabase(ctx context.Context) error {
	if s.pool != nil {
		return nil
	}
	if s.env.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required")
	}
	pool, err := db.Open(ctx, s.env.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	s.pool = pool
	s.closers = append(s.closers, pool.Close)
	if err := db.Migrate(ctx, pool); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}
	return nil
}

// openLedger returns nil without DATABASE_URL. The publish_runs table is migrated
// before the ledger is handed out, whatever the inventory backend.
func (s *session) openLedger(ctx context.Context) (*publish.Ledger, error) {
	if s.env.DatabaseURL == "" {
		return nil, nil
	}
	if err := s.openDatabase(ctx); err != nil {
		return nil, err
	}
	if s.orm == nil {
		orm, err := db.OpenORM(ctx, s.env.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("open run ledger: %w", err)
		}
		s.orm = orm
		s.closers = append(s.closers, func() { _ = db.CloseORM(orm) })
	}
	return publish.NewLedger(s.orm)
}

func (s *session) openBus() (*bus.Bus, error) {
	if s.env.NATSURL == "" {
		return nil, nil
	}
	b, err := bus.New(s.env.NATSURL)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	s.bus = b
	s.closers = append(s.closers, b.Close)
	return b, nil
}

func (s *session) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}

func newPublishCommand(flags *globalFlags) *cobra.Command {
	var (
		force       bool
		workers     int
		protocol    string
		metricsFile string
	)

	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Publish every configured path and rewrite the inventory",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			shutdown, _, _, err := telemetry.Init(ctx, serviceName)
			if err != nil {
				return err
			}
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = shutdown(shutdownCtx)
			}()

			s, err := openSession(ctx, flags, false)
			if err != nil {
				return err
			}
			defer s.Close()

			inv, err := s.project.OpenInventory(s.pool)
			if err != nil {
				return err
			}
			metrics, flushMetrics, err := textfileMetrics(metricsFile)
			if err != nil {
				return err
			}
			defer func() {
				if err := flushMetrics(); err != nil {
					s.logger.Printf("ERROR write metrics %s: %v", metricsFile, err)
				}
			}()
			opts := publish.SyncOptions{
				Inventory: inv,
				Registry:  publish.DefaultRegistry(),
				Force:     force,
				Workers:   workers,
				Protocol:  protocol,
				Logger:    s.logger,
				Metrics:   metrics,
			}
			if protocol == "" {
				opts.Protocol = s.env.Protocol
			}

			ledger, err := s.openLedger(ctx)
			if err != nil {
				return err
			}
			if ledger != nil {
				opts.Recorder = ledger
			}
			b, err := s.openBus()
			if err != nil {
				return err
			}
			if b != nil {
				opts.Notifier = b
			}

			res, err := publish.Sync(ctx, s.project, opts)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "published %d files (%d uploaded, %d unchanged); bootstrap %s\n",
				res.Summary.Files, res.Summary.Uploaded, res.Summary.Skipped, res.Bootstrap)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Upload files even when the remote copy is current")
	cmd.Flags().IntVarP(&workers, "workers", "w", 1, "Number of files pushed concurrently")
	cmd.Flags().StringVar(&protocol, "protocol", "", "Default protocol written to the bootstrap file (default $CDN_PROTOCOL or http)")
	cmd.Flags().StringVar(&metricsFile, "metrics-file", "", "Write the publish counters to this file in Prometheus text format (node_exporter textfile collector)")
	return cmd
}

// textfileMetrics returns publish counters backed by a private registry. flush writes
// them to file; without a file no counters are kept.
func textfileMetrics(file string) (*publish.Metrics, func() error, error) {
	if file == "" {
		return nil, func() error { return nil }, nil
	}
	reg := prometheus.NewRegistry()
	metrics, err := publish.NewMetrics(reg)
	if err != nil {
		return nil, nil, err
	}
	return metrics, func() error { return prometheus.WriteToTextfile(file, reg) }, nil
}

func newResolveCommand(flags *globalFlags) *cobra.Command {
	var protocol string

	cmd := &cobra.Command{
		Use:   "resolve <path>...",
		Short: "Print the CDN URL of published local files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := openSession(ctx, flags, false)
			if err != nil {
				return err
			}
			defer s.Close()

			inv, err := s.project.OpenInventory(s.pool)
			if err != nil {
				return err
			}
			r := resolver.New()
			r.SetDefaultProtocol(s.env.Protocol)
			r.Bypass(s.env.Bypass)
			if err := r.LoadInventory(ctx, inv); err != nil {
				return err
			}
			for _, p := range args {
				url, err := r.URL(ctx, p, protocol)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), url)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&protocol, "protocol", "", "Protocol for the returned URLs (default $CDN_PROTOCOL or http)")
	return cmd
}

func newInventoryCommand(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inventory",
		Short: "Inspect and maintain the inventory",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	cmd.AddCommand(newInventoryListCommand(flags))
	cmd.AddCommand(newInventoryClearCommand(flags))
	cmd.AddCommand(newInventoryImportCommand(flags))
	return cmd
}

func withInventory(cmd *cobra.Command, flags *globalFlags, fn func(context.Context, *session, *inventory.Inventory) error) error {
	ctx := cmd.Context()
	s, err := openSession(ctx, flags, false)
	if err != nil {
		return err
	}
	defer s.Close()

	inv, err := s.project.OpenInventory(s.pool)
	if err != nil {
		return err
	}
	return fn(ctx, s, inv)
}

func newInventoryListCommand(flags *globalFlags) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List published files",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withInventory(cmd, flags, func(ctx context.Context, _ *session, inv *inventory.Inventory) error {
				snap, err := inv.Snapshot(ctx)
				if err != nil {
					return err
				}
				return writeInventory(cmd.OutOrStdout(), snap, asJSON)
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the inventory as JSON")
	return cmd
}

func writeInventory(out io.Writer, snap inventory.Data, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	}

	keys := make([]string, 0, len(snap.Files))
	for k := range snap.Files {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "LOCAL\tREMOTE\tURL")
	for _, k := range keys {
		e := snap.Files[k]
		fmt.Fprintf(tw, "%s\t%s\t%s\n", k, e.Remote, e.URL)
	}
	return tw.Flush()
}

func newInventoryClearCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Drop every entry and reset the root to root-dir",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withInventory(cmd, flags, func(ctx context.Context, s *session, inv *inventory.Inventory) error {
				if err := inv.Clear(ctx, s.project.RootDirRelative()); err != nil {
					return err
				}
				s.logger.Printf("INFO cleared inventory %s", s.project.InventoryID())
				return nil
			})
		},
	}
}

func newInventoryImportCommand(flags *globalFlags) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Merge the entries of another inventory file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withInventory(cmd, flags, func(ctx context.Context, s *session, inv *inventory.Inventory) error {
				src, err := inventory.NewFileBackend(file)
				if err != nil {
					return err
				}
				data, err := src.Read(ctx)
				if err != nil {
					return err
				}
				if err := inv.Merge(ctx, data); err != nil {
					return err
				}
				s.logger.Printf("INFO merged %d entries from %s", len(data.Files), file)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "Inventory file to merge (.json, .yaml or .json.zst)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newRunsCommand(flags *globalFlags) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Show recent publish runs recorded in the database",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := openSession(ctx, flags, true)
			if err != nil {
				return err
			}
			defer s.Close()

			ledger, err := s.openLedger(ctx)
			if err != nil {
				return err
			}
			runs, err := ledger.Recent(ctx, s.project.InventoryID(), limit)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tSTATUS\tFILES\tUPLOADED\tSTARTED\tERROR")
			for _, r := range runs {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\t%s\n", r.ID, r.Status, r.Summary.Files, r.Summary.Uploaded, r.StartedAt.Format(time.RFC3339), r.Error)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Number of runs to show")
	return cmd
}

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			env := config.FromEnv()
			if env.DatabaseURL == "" {
				return errors.New("DATABASE_URL is required")
			}
			pool, err := db.Open(ctx, env.DatabaseURL)
			if err != nil {
				return err
			}
			defer pool.Close()
			return db.Migrate(ctx, pool)
		},
	}
}
