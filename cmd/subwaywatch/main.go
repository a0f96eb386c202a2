package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"subwaywatch/internal/config"
	"subwaywatch/internal/geocode"
	"subwaywatch/internal/gtfs"
	"subwaywatch/internal/handler"
	"subwaywatch/internal/metrics"
	"subwaywatch/internal/publisher"
	"subwaywatch/internal/realtime"
	"subwaywatch/internal/server"
	"subwaywatch/internal/storage"
	"subwaywatch/internal/transit"
)

func main() {
	cfg := config.Load()

	// CLI flags
	importOnly := flag.Bool("import-gtfs", false, "Download and import static GTFS stops, then exit")
	gtfsFile := flag.String("gtfs-file", "", "Import a local static GTFS zip, then exit")
	flag.IntVar(&cfg.Port, "port", cfg.Port, "HTTP server port")
	flag.StringVar(&cfg.RoutesPath, "routes", cfg.RoutesPath, "Route table YAML (default: built-in NYC table)")
	flag.StringVar(&cfg.GTFSDir, "gtfs-dir", cfg.GTFSDir, "Directory for GTFS data files")
	flag.BoolVar(&cfg.Once, "once", cfg.Once, "Poll every feed once, print route summaries, exit")
	flag.Parse()
	cfg.ImportGTFS = *importOnly

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.Level(),
	}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *gtfsFile, logger); err != nil {
		logger.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, gtfsFile string, logger *slog.Logger) error {
	routes, err := config.LoadRoutes(cfg.RoutesPath)
	if err != nil {
		return err
	}
	loc := cfg.Location()

	db, err := storage.Open(cfg.DBPath, logger)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	downloader := gtfs.NewDownloader(cfg.GTFSURL, cfg.GTFSDir, logger)
	scheduler := gtfs.NewScheduler(downloader, db, loc, logger)

	if gtfsFile != "" {
		logger.Info("importing local GTFS archive", "path", gtfsFile)
		return scheduler.ImportFile(ctx, gtfsFile)
	}
	if cfg.ImportGTFS {
		logger.Info("force importing GTFS data")
		if err := scheduler.Update(ctx); err != nil {
			return fmt.Errorf("GTFS import: %w", err)
		}
		return nil
	}

	var collector *metrics.Collector
	if cfg.MetricsEnable {
		collector = metrics.NewCollector(cfg.PollInterval)
	}

	opts := realtime.Options{
		Endpoints:    feedEndpoints(routes),
		RouteFeeds:   routeFeeds(routes),
		APIKey:       cfg.APIKey,
		Location:     loc,
		PollInterval: cfg.PollInterval,
		Timeout:      cfg.FetchTimeout,
		MaxElapsed:   cfg.FetchMaxElapsed,
		Cooldown:     cfg.RefreshCooldown,
	}
	if collector != nil {
		opts.Metrics = collector
	}
	store := realtime.NewStore()
	fetcher := realtime.NewFetcher(opts, store, logger)

	loadStops := func(ctx context.Context) {
		table, err := db.StopTable(ctx)
		if err != nil {
			logger.Error("loading stop table", "error", err)
			return
		}
		fetcher.SetStops(table)
		logger.Info("stop names loaded", "stops", len(table))
	}
	scheduler.OnImport = loadStops

	// Stop names are optional; trips still classify without them
	if err := scheduler.EnsureData(ctx); err != nil {
		logger.Error("failed to ensure GTFS data", "error", err)
	}
	loadStops(ctx)

	if cfg.Once {
		printSummary(fetcher.Poll(ctx), routes, cfg, time.Now())
		return nil
	}

	go scheduler.StartBackground(ctx)
	go func() {
		if err := scheduler.CheckAndUpdate(ctx); err != nil {
			logger.Error("daily GTFS check failed", "error", err)
		}
	}()

	geo := geocode.New(geocode.DefaultBaseURL, "subwaywatch/1.0 (NYC subway board)")
	h := handler.New(db, store, fetcher, routes, geo, cfg, logger)

	var metricsHandler http.Handler
	if collector != nil {
		h.SetMetrics(collector)
		metricsHandler = collector.Handler()
		fetcher.OnUpdate(func(_ context.Context, sched transit.Schedule, at time.Time) {
			for _, r := range routes.Routes {
				statuses := h.Classifier().ClassifyAll(sched[r.ID], at)
				collector.ObserveStatuses(r.ID, transit.CountByKind(statuses))
			}
		})
	}

	srv := server.New(cfg, h, metricsHandler, logger)
	fetcher.OnUpdate(func(context.Context, transit.Schedule, time.Time) { srv.SetReady() })

	if cfg.NATSURL != "" {
		var pm publisher.Metrics
		if collector != nil {
			pm = collector
		}
		pub, err := publisher.Connect(cfg.NATSURL, cfg.NATSSubject, h.Classifier(), pm, logger)
		if err != nil {
			// Boards work without NATS
			logger.Error("nats connect failed, publishing disabled", "url", cfg.NATSURL, "error", err)
		} else {
			defer pub.Close()
			fetcher.OnUpdate(pub.PublishSchedule)
		}
	}

	go fetcher.Start(ctx)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// feedEndpoints lists the feeds carrying at least one configured route, in
// table order.
func feedEndpoints(routes *config.RouteTable) []realtime.Endpoint {
	used := make(map[string]bool)
	for _, feed := range routeFeeds(routes) {
		used[feed] = true
	}
	var eps []realtime.Endpoint
	for _, f := range routes.Feeds {
		if used[f.Name] {
			eps = append(eps, realtime.Endpoint{Name: f.Name, URL: f.URL})
		}
	}
	return eps
}

// routeFeeds maps each configured route to the name of the feed carrying it.
func routeFeeds(routes *config.RouteTable) map[string]string {
	out := make(map[string]string, len(routes.Routes))
	for _, r := range routes.Routes {
		if f, ok := routes.FeedForRoute(r.ID); ok {
			out[r.ID] = f.Name
		}
	}
	return out
}

func printSummary(sched transit.Schedule, routes *config.RouteTable, cfg *config.Config, now time.Time) {
	c := transit.NewClassifier(routes.TerminalMap())
	c.Thresholds = cfg.Thresholds()

	fmt.Printf("%-4s %6s %10s %8s %8s %14s\n", "LINE", "TRIPS", "AT_STATION", "EN_ROUTE", "IDLING", "OUT_OF_SERVICE")
	for _, r := range routes.Routes {
		fd := sched[r.ID]
		counts := transit.CountByKind(c.ClassifyAll(fd, now))
		fmt.Printf("%-4s %6d %10d %8d %8d %14d\n", r.ID, len(fd.Trips),
			counts[transit.AtStation], counts[transit.EnRoute], counts[transit.Idling], counts[transit.OutOfService])
	}
}
