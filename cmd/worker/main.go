package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"ordercore/internal/obs"
	"ordercore/internal/ops"
	"ordercore/internal/processor"
	"ordercore/internal/scheduler"
	"ordercore/internal/store"
	"ordercore/pkg/conn"

	pyroscope "github.com/grafana/pyroscope-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/sys"
)

const (
	storePostgres = "postgres"
	storeMemory   = "memory"

	connectTimeout = 10 * time.Second
)

func main() {
	if err := run(); err != nil {
		log.Printf("worker: %v", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "Path to JSON or YAML config")
	envFile := flag.String("env-file", ".env", "Optional dotenv file with ORDERCORE_* overrides")
	once := flag.Bool("once", false, "Run a single cycle and exit")
	storeKind := flag.String("store", storePostgres, "Order store (postgres|memory)")
	seed := flag.Int("seed", 0, "Orders to insert into the memory store at start")
	flag.Parse()

	if *seed < 0 {
		return fmt.Errorf("seed must be >= 0")
	}

	loaded, err := ops.Load(*configPath, *envFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		select {
		case <-sys.Shutdown():
			stop()
		case <-ctx.Done():
		}
	}()

	if loaded.PyroscopeAddr != "" {
		profiler, err := startProfiler(loaded.PyroscopeAddr)
		if err != nil {
			return fmt.Errorf("pyroscope start: %w", err)
		}
		defer func() {
			_ = profiler.Stop()
		}()
	}

	orders, closeStore, err := openStore(ctx, strings.ToLower(*storeKind), loaded, *seed)
	if err != nil {
		return err
	}
	defer closeStore()

	exec, err := buildExecutor(loaded.Executor)
	if err != nil {
		return err
	}
	if exec != nil {
		defer func() {
			if err := exec.Close(); err != nil {
				logs.Errorf("close executor, err: %+v", err)
			}
		}()
		if err := configureVenue(ctx, exec, loaded.Symbols); err != nil {
			return err
		}
	}

	metrics := obs.NewMetrics()
	if loaded.MetricsAddr != "" {
		srv, err := serveMetrics(metrics, loaded.MetricsAddr)
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	var hooks []processor.Hook
	if loaded.Bell {
		hooks = append(hooks, processor.BellHook(os.Stdout))
	}

	proc, err := processor.New(orders, processor.Config{
		Executor: exec,
		Metrics:  metrics,
		Hooks:    hooks,
	})
	if err != nil {
		return err
	}

	if *once {
		_, err := proc.ProcessOrders(ctx)
		return err
	}

	logs.Infof("worker started, store: %s, interval: %s, claim limit: %d, executor: %s",
		*storeKind, loaded.Interval, loaded.ClaimLimit, loaded.Executor.Kind)

	err = scheduler.Every(ctx, loaded.Interval, func(ctx context.Context) error {
		_, err := proc.ProcessOrders(ctx)
		return err
	})

	snap := metrics.Snapshot()
	logs.Infof("worker stopped, cycles: %d, executed: %d, skipped: %d, failed: %d",
		snap.Cycles, snap.Executed, snap.Skipped, snap.Failed)
	return err
}

func openStore(ctx context.Context, kind string, loaded ops.Loaded, seed int) (store.Store, func(), error) {
	switch kind {
	case storeMemory:
		mem := store.NewMemory(loaded.ClaimLimit)
		if err := seedMemory(mem, seed); err != nil {
			return nil, nil, err
		}
		return mem, func() {}, nil
	case storePostgres:
		connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
		defer cancel()

		opt := loaded.Store
		if opt.Params == nil {
			opt.Params = map[string]string{}
		}
		if _, ok := opt.Params["application_name"]; !ok {
			opt.Params["application_name"] = "ordercore"
		}

		client, err := conn.New(connectCtx, opt)
		if err != nil {
			return nil, nil, fmt.Errorf("connect store: %w", err)
		}
		pg, err := store.NewPostgres(client.DB(), store.PostgresConfig{ClaimLimit: loaded.ClaimLimit})
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		return pg, func() {
			if err := client.Close(); err != nil {
				logs.Errorf("close store, err: %+v", err)
			}
		}, nil
	default:
		return nil, nil, fmt.Errorf("unknown store %q; use -store %s or %s", kind, storePostgres, storeMemory)
	}
}

func serveMetrics(metrics *obs.Metrics, addr string) (*http.Server, error) {
	reg := prometheus.NewRegistry()
	if err := metrics.Register(reg); err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logs.Errorf("metrics server, err: %+v", err)
		}
	}()
	logs.Infof("metrics listening: %s", addr)
	return srv, nil
}

func startProfiler(addr string) (*pyroscope.Profiler, error) {
	return pyroscope.Start(pyroscope.Config{
		ApplicationName: "ordercore.worker",
		ServerAddress:   addr,
		Logger:          profilerLogger{},
		ProfileTypes: []pyroscope.ProfileType{
			pyroscope.ProfileCPU,
			pyroscope.ProfileAllocObjects,
			pyroscope.ProfileAllocSpace,
			pyroscope.ProfileInuseObjects,
			pyroscope.ProfileInuseSpace,
		},
	})
}

type profilerLogger struct{}

func (profilerLogger) Infof(format string, args ...interface{})  {}
func (profilerLogger) Debugf(format string, args ...interface{}) {}
func (profilerLogger) Errorf(format string, args ...interface{}) {
	logs.Errorf("pyroscope: "+format, args...)
}
