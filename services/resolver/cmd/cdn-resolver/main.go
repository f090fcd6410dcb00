package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"cdnsync/pkg/bus"
	"cdnsync/pkg/db"
	"cdnsync/pkg/telemetry"
	"cdnsync/services/config"
	"cdnsync/services/inventory"
	"cdnsync/services/resolver"
)

func main() {
	if err := run("cdn-resolver"); err != nil {
		log.New(os.Stderr, "", log.LstdFlags).Fatal(err)
	}
}

func run(serviceName string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := config.LoadDotEnv(); err != nil {
		return fmt.Errorf("load .env: %w", err)
	}
	env := config.FromEnv()

	shutdownTelemetry, middleware, logger, err := telemetry.Init(ctx, serviceName)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			fmt.Fprintf(os.Stderr, "%s: telemetry shutdown error: %v\n", serviceName, err)
		}
	}()

	src, err := resolveSource(env)
	if err != nil {
		return err
	}

	var pool *pgxpool.Pool
	if src.kind == inventory.KindPostgres {
		if env.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required for the postgres inventory")
		}
		pool, err = db.Open(ctx, env.DatabaseURL)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer pool.Close()
	}

	r := resolver.New()
	r.SetDefaultProtocol(src.protocol)
	r.Bypass(src.bypass)

	open := func(ctx context.Context) (*inventory.Inventory, error) {
		backend, err := inventory.Open(src.kind, src.path, src.name, pool)
		if err != nil {
			return nil, err
		}
		return inventory.New(backend)
	}
	reloader, err := resolver.NewReloader(r, open, src.name, logger)
	if err != nil {
		return err
	}
	if err := reloader.Reload(ctx); err != nil {
		if !src.bypass {
			return fmt.Errorf("load inventory: %w", err)
		}
		logger.Printf("WARN inventory not loaded, serving in bypass mode: %v", err)
	}

	if env.NATSURL != "" {
		b, err := bus.New(env.NATSURL)
		if err != nil {
			return fmt.Errorf("connect nats: %w", err)
		}
		defer b.Close()
		sub, err := reloader.Watch(ctx, b)
		if err != nil {
			return fmt.Errorf("watch inventory updates: %w", err)
		}
		defer sub.Close()
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	srv, err := resolver.NewServer(r, reloader, reg)
	if err != nil {
		return fmt.Errorf("init resolver server: %w", err)
	}

	server := &http.Server{
		Addr:              env.ResolverAddr,
		Handler:           middleware(srv.Routes()),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fmt.Fprintf(os.Stderr, "%s: server shutdown error: %v\n", serviceName, err)
		}
	}()

	logger.Printf("INFO listening on %s (inventory %s %s%s)", server.Addr, src.kind, src.path, src.name)

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Printf("ERROR server failed: %v", err)
		return err
	}
	return nil
}

type source struct {
	kind     string
	path     string
	name     string
	protocol string
	bypass   bool
}

// resolveSource picks the inventory from CDN_BOOTSTRAP, then CDN_INVENTORY, then the
// postgres inventory named by CDN_INVENTORY_NAME.
func resolveSource(env config.Env) (source, error) {
	src := source{protocol: env.Protocol, bypass: env.Bypass}

	switch {
	case env.Bootstrap != "":
		b, err := config.LoadBootstrap(env.Bootstrap)
		if err != nil {
			return source{}, err
		}
		src.kind = b.Inventory.Backend
		src.path = b.Inventory.Path
		src.name = b.Inventory.Name
		if b.Resolver.Protocol != "" && os.Getenv("CDN_PROTOCOL") == "" {
			src.protocol = b.Resolver.Protocol
		}
		src.bypass = src.bypass || b.Resolver.Bypass
	case env.Inventory != "":
		src.kind = inventory.KindFile
		src.path = env.Inventory
	case env.DatabaseURL != "":
		src.kind = inventory.KindPostgres
		src.name = env.InventoryName
	default:
		return source{}, errors.New("set CDN_BOOTSTRAP, CDN_INVENTORY or DATABASE_URL")
	}
	if src.kind == inventory.KindFile {
		src.name = ""
	}
	return src, nil
}
