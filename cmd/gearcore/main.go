// Command gearcore runs the equipment engine: it restores state from the
// configured record backend, keeps the sync worker running and serves
// Prometheus metrics. The report subcommand prints what needs attention.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"expvar"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"gearcore/internal/blob"
	"gearcore/internal/config"
	"gearcore/internal/core"
)

// logNotifier records borrower notices in the log. Mail delivery is left to
// whatever consumes the log stream.
type logNotifier struct {
	logger core.Logger
}

func (n logNotifier) send(kind string, p core.NotificationPayload) error {
	n.logger.Info("notification", "kind", kind, "item_id", p.ItemID, "to", p.ContactEmail, "borrower", p.Borrower)
	return nil
}

func (n logNotifier) SendCheckoutEmail(_ context.Context, p core.NotificationPayload) error {
	return n.send("checkout", p)
}

func (n logNotifier) SendCheckinEmail(_ context.Context, p core.NotificationPayload) error {
	return n.send("checkin", p)
}

func (n logNotifier) SendReservationEmail(_ context.Context, p core.NotificationPayload) error {
	return n.send("reservation", p)
}

type app struct {
	cfg      config.Config
	logger   zapLogger
	svc      *core.Service
	registry *prometheus.Registry
	expvars  *core.ExpvarMetricsRecorder
	tracer   *core.JSONTraceTracer
	closers  []func() error
}

// metricsRecorder builds the configured exporter. The Prometheus registry is
// always created so the sync queue gauges have a home.
func (a *app) metricsRecorder() (core.MetricsRecorder, error) {
	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	if a.cfg.MetricsDriver() == config.MetricsExpvar {
		a.expvars = core.NewExpvarMetricsRecorder("")
		return a.expvars, nil
	}
	return core.NewPrometheusMetricsRecorder(a.registry)
}

// openTracer installs a JSON span writer when a trace file is configured.
func (a *app) openTracer() error {
	if a.cfg.Log.TraceFile == "" {
		return nil
	}
	f, err := os.OpenFile(a.cfg.Log.TraceFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open trace file: %w", err)
	}
	a.tracer = core.NewJSONTracer(f, 0)
	a.closers = append(a.closers, f.Close)
	return nil
}

func (a *app) closeFiles() {
	for _, closeFn := range a.closers {
		_ = closeFn()
	}
	a.closers = nil
}

// open wires configuration into a service and restores its state.
func open(ctx context.Context, cfg config.Config, logger zapLogger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}
	gateway, err := core.OpenRecordGateway(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("open record gateway: %w", err)
	}
	images, err := blob.Open(ctx, cfg.Blob.Settings())
	if err != nil {
		_ = gateway.Close()
		return nil, fmt.Errorf("open image store: %w", err)
	}

	metrics, err := a.metricsRecorder()
	if err != nil {
		_ = gateway.Close()
		return nil, err
	}
	if err := a.openTracer(); err != nil {
		_ = gateway.Close()
		return nil, err
	}

	policy := core.PolicyFromConfig(cfg)
	engine := core.NewDefaultRulesEngine()
	engine.Register(core.NewLowStockRule(policy))
	opts := []core.Option{
		core.WithLogger(logger),
		core.WithMetricsRecorder(metrics),
		core.WithNotifier(logNotifier{logger: logger.Named("notify")}),
		core.WithCategoryPolicy(policy),
		core.WithImageStore(images),
		core.WithRecordGateway(gateway, core.SyncOptionsFromConfig(cfg.Sync)...),
	}
	if a.tracer != nil {
		opts = append(opts, core.WithTracer(a.tracer))
	}
	a.svc = core.NewInMemoryService(engine, opts...)
	if err := core.WatchSyncQueue(a.registry, a.svc.Sync()); err != nil {
		_ = gateway.Close()
		a.closeFiles()
		return nil, err
	}
	if err := a.svc.Resync(ctx); err != nil {
		_ = a.svc.Close(ctx)
		a.closeFiles()
		return nil, fmt.Errorf("restore state: %w", err)
	}
	logger.Info("state restored",
		"storage", cfg.Storage.Driver,
		"images", string(images.Driver()),
		"metrics", cfg.MetricsDriver(),
		"items", len(a.svc.ListItems(core.ItemFilter{})),
	)
	return a, nil
}

// close drains the service and releases trace output.
func (a *app) close(ctx context.Context) error {
	err := a.svc.Close(ctx)
	a.closeFiles()
	return err
}

// metricsHandler serves the configured exporter.
func (a *app) metricsHandler() http.Handler {
	if a.expvars != nil {
		return expvar.Handler()
	}
	return promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{})
}

// serve runs the sync worker and the metrics endpoint until ctx ends, then
// drains pending writes.
func (a *app) serve(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	a.svc.Start(ctx)

	var server *http.Server
	if a.cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle(a.cfg.Metrics.Path, a.metricsHandler())
		server = &http.Server{
			Addr:              a.cfg.Metrics.Addr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}
		g.Go(func() error {
			a.logger.Info("metrics listening", "addr", server.Addr, "path", a.cfg.Metrics.Path)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		a.logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		var errs []error
		if server != nil {
			errs = append(errs, server.Shutdown(shutdownCtx))
		}
		errs = append(errs, a.close(shutdownCtx))
		return errors.Join(errs...)
	})
	return g.Wait()
}

// report prints overdue items, low stock, upcoming reservations and due
// maintenance as of now.
func (a *app) report(w io.Writer, now time.Time) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "OVERDUE\tBORROWER\tDUE")
	for _, item := range a.svc.OverdueItems(now) {
		borrower, due := "", ""
		if item.CheckedOutTo != nil {
			borrower = *item.CheckedOutTo
		}
		if item.DueBack != nil {
			due = item.DueBack.Format(time.DateOnly)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", item.ID, borrower, due)
	}
	fmt.Fprintln(tw, "\nLOW STOCK\tQUANTITY\tREORDER AT")
	for _, item := range a.svc.LowStockItems() {
		fmt.Fprintf(tw, "%s\t%d\t%d\n", item.ID, item.Quantity, item.ReorderPoint)
	}
	fmt.Fprintln(tw, "\nRESERVED\tBORROWER\tFROM\tTO")
	for _, r := range a.svc.UpcomingReservations(now) {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.ItemID, r.Borrower, r.Start.Format(time.DateOnly), r.End.Format(time.DateOnly))
	}
	fmt.Fprintln(tw, "\nMAINTENANCE DUE\tTYPE\tSCHEDULED")
	for _, due := range a.svc.DueMaintenance(now) {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", due.ItemID, due.Record.Type, due.Record.ScheduledDate.Format(time.DateOnly))
	}
	return tw.Flush()
}

const usage = `Usage: gearcore [flags] [serve|report]

Commands:
  serve    restore state, run the sync worker and serve metrics (default)
  report   restore state and print overdue, low stock, reservations and maintenance

Flags:
  -c, -config <path>   YAML configuration file (default: none, GEARCORE_* env only)
  -l, -log <path>      log file path (default: config log.file)
  -t, -trace <path>    JSON operation trace file (default: config log.trace_file)
  -h, -help            show this help and exit
`

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("gearcore", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var cfgPath, logPath, tracePath string
	fs.StringVar(&cfgPath, "config", "", "")
	fs.StringVar(&cfgPath, "c", "", "")
	fs.StringVar(&logPath, "log", "", "")
	fs.StringVar(&logPath, "l", "", "")
	fs.StringVar(&tracePath, "trace", "", "")
	fs.StringVar(&tracePath, "t", "", "")
	fs.Usage = func() { fmt.Fprint(stdout, usage) }
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	command := "serve"
	if fs.NArg() > 0 {
		command = fs.Arg(0)
	}
	if fs.NArg() > 1 || (command != "serve" && command != "report") {
		fmt.Fprintf(stderr, "unexpected argument: %s\n", strings.Join(fs.Args(), " "))
		fs.Usage()
		return 2
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	if logPath == "" {
		logPath = cfg.Log.File
	}
	if tracePath != "" {
		cfg.Log.TraceFile = tracePath
	}
	logger, closeLog, err := newLogger(stdout, stderr, cfg.Log.Level, logPath)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	defer closeLog()

	a, err := open(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup failed", "error", err)
		return 1
	}
	switch command {
	case "report":
		err = a.report(stdout, time.Now().UTC())
		if cerr := a.close(context.WithoutCancel(ctx)); err == nil {
			err = cerr
		}
	default:
		err = a.serve(ctx)
	}
	if err != nil {
		logger.Error(command+" failed", "error", err)
		return 1
	}
	return 0
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}
