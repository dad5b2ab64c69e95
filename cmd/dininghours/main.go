package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dininghours/internal/clock"
	"dininghours/internal/config"
	"dininghours/internal/fetch"
	appLog "dininghours/internal/log"
	"dininghours/internal/metrics"
	"dininghours/internal/snapshot"
	"dininghours/internal/web"
)

const version = "0.1.0"

type flagConfig struct {
	configPath string
	listen     string
	once       bool
}

func main() {
	flags := parseFlags()

	if err := config.LoadDotEnv(); err != nil {
		appLog.Warn("failed to load .env", "error", err.Error())
	}

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}

	// CLI --listen overrides config file listen if provided.
	if flags.listen != "" {
		conf.Listen = flags.listen
	}
	appLog.SetLevel(appLog.ParseLevel(conf.LogLevel))

	appLog.Info("dininghours starting", "version", version)
	appLog.Info("effective config",
		"listen", conf.Listen,
		"refresh", conf.RefreshCron,
		"cache_dir", conf.CacheDir,
		"fetch_timeout", conf.FetchTimeout.String(),
		"facilities", len(conf.Facilities),
		"once", flags.once,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, conf, flags.once, os.Stdout); err != nil {
		appLog.Error("dininghours exiting with error", err)
		os.Exit(1)
	}
	appLog.Info("dininghours exiting")
}

func run(ctx context.Context, conf *config.Config, once bool, stdout io.Writer) error {
	clk := clock.NewSystem()
	store := &snapshot.Store{}
	collector := metrics.NewCollector()
	fetcher := fetch.NewFetcher(conf.CacheDir, fetch.WithTimeout(conf.FetchTimeout))
	refresher := snapshot.NewRefresher(store, fetcher, conf.Facilities,
		snapshot.WithClock(clk),
		snapshot.WithMetrics(collector),
	)

	// A partial failure still leaves a usable snapshot; it is logged by Refresh.
	initialErr := refresher.Refresh(ctx)

	if once {
		if err := printStatus(stdout, store, clk.Now()); err != nil {
			return err
		}
		return initialErr
	}

	sched, err := snapshot.NewScheduler(conf.RefreshCron, func(ctx context.Context) {
		_ = refresher.Refresh(ctx)
	})
	if err != nil {
		return err
	}
	sched.Start(ctx)

	srv := web.NewServer(store, conf.Listen,
		web.WithClock(clk),
		web.WithMetrics(collector),
		web.WithBasicAuth(conf.BasicAuth),
	).HTTPServer()

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("HTTP server listening", "addr", conf.Listen)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		appLog.Info("signal received, shutting down")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// printStatus writes one line per facility: id, status kind and the event
// window the status refers to.
func printStatus(w io.Writer, store *snapshot.Store, now time.Time) error {
	snap, err := store.Load()
	if err != nil {
		return err
	}
	for _, f := range snap.List() {
		st := f.Status(now)
		line := fmt.Sprintf("%-20s %-13s", f.ID, st.Kind)
		if st.Event != nil {
			line += fmt.Sprintf(" %s-%s %s",
				st.Event.Start.Format("Mon 15:04"),
				st.Event.End.Format("15:04"),
				st.Event.Description,
			)
		}
		if wait, ok := f.WaitTime(now); ok {
			line += fmt.Sprintf(" wait~%s", wait.Expected.Round(time.Second))
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "/etc/dininghours/config.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.BoolVar(&cfg.once, "once", false, "Run one refresh, print every facility's status and exit")

	flag.Parse()

	return cfg
}
