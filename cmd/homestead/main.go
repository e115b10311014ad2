package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/dukerupert/homestead/internal/config"
	"github.com/dukerupert/homestead/internal/database"
	"github.com/dukerupert/homestead/internal/email"
	"github.com/dukerupert/homestead/internal/logging"
	"github.com/dukerupert/homestead/internal/notify"
	"github.com/dukerupert/homestead/internal/push"
	"github.com/dukerupert/homestead/internal/reminder"
	"github.com/dukerupert/homestead/internal/server"
	"github.com/dukerupert/homestead/internal/store"
	"github.com/dukerupert/homestead/internal/task"
)

const usage = `usage: homestead [command]

commands:
  serve   run the HTTP API and reminder runner (default)
  sweep   deliver due reminders once and exit
  prune   delete old sent reminders and exit
  vapid   print a new VAPID key pair`

func main() {
	cmd := "serve"
	if len(os.Args) > 1 {
		cmd = os.Args[1]
	}

	if cmd == "vapid" {
		pub, priv, err := push.GenerateVAPIDKeys()
		if err != nil {
			fmt.Fprintln(os.Stderr, "generate vapid keys:", err)
			os.Exit(1)
		}
		fmt.Printf("HOMESTEAD_VAPID_PUBLIC_KEY=%s\nHOMESTEAD_VAPID_PRIVATE_KEY=%s\n", pub, priv)
		return
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		os.Exit(1)
	}
	logger := logging.Setup(cfg.LogLevel, cfg.LogFormat)

	switch cmd {
	case "serve":
		err = serve(cfg, logger)
	case "sweep":
		err = sweepOnce(cfg, logger)
	case "prune":
		err = pruneOnce(cfg, logger)
	case "help", "-h", "--help":
		fmt.Println(usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s\n", cmd, usage)
		os.Exit(2)
	}
	if err != nil {
		logger.Error(cmd+" failed", "error", err)
		os.Exit(1)
	}
}

// newNotifier fans reminders out to every configured channel, falling back to
// the log when none is.
func newNotifier(cfg *config.Config, pushSvc *push.Service, pushStore *store.PushStore, logger *slog.Logger) notify.Notifier {
	var channels notify.Multi
	if cfg.EmailConfigured() {
		channels = append(channels, notify.NewEmailNotifier(email.NewClient(cfg.PostmarkToken, cfg.FromEmail)))
	}
	if pushSvc.Configured() {
		channels = append(channels, notify.NewPushNotifier(pushSvc, pushStore, logger))
	}
	if len(channels) == 0 {
		logger.Warn("no delivery channel configured, reminders will only be logged")
		return notify.NewLogNotifier(logger)
	}
	return channels
}

func sweepOnce(cfg *config.Config, logger *slog.Logger) error {
	db, err := database.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	pushSvc := push.NewService(cfg.VAPIDPublicKey, cfg.VAPIDPrivateKey, cfg.VAPIDSubscriber)
	sweeper := reminder.NewSweeper(store.NewScheduledReminderStore(db), newNotifier(cfg, pushSvc, store.NewPushStore(db), logger), logger, nil)
	_, err = sweeper.Sweep(context.Background(), time.Now().UTC())
	return err
}

func pruneOnce(cfg *config.Config, logger *slog.Logger) error {
	db, err := database.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	_, err = reminder.Prune(context.Background(), store.NewScheduledReminderStore(db), time.Now().UTC(), logger, nil)
	return err
}

func serve(cfg *config.Config, logger *slog.Logger) error {
	db, err := database.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := reminder.NewMetrics(reg)

	pushSvc := push.NewService(cfg.VAPIDPublicKey, cfg.VAPIDPrivateKey, cfg.VAPIDSubscriber)
	reminders := store.NewScheduledReminderStore(db)
	notifier := newNotifier(cfg, pushSvc, store.NewPushStore(db), logger)

	scheduler := reminder.NewScheduler(logger, metrics)
	tasks := task.NewService(db, scheduler, logger)
	mailer := email.NewClient(cfg.PostmarkToken, cfg.FromEmail)
	srv := server.New(db, tasks, pushSvc, mailer, cfg.BaseURL, reg, cfg.SessionTTL, logger)

	sweeper := reminder.NewSweeper(reminders, notifier, logger, metrics)
	runner := reminder.NewRunner(sweeper, reminders, logger, metrics, cfg.SweepInterval, cfg.PruneInterval)

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runner.Start(ctx)

	// Prune expired auth state every hour.
	go func() {
		ticker := time.NewTicker(1 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if n, err := srv.SessionStore().DeleteExpired(ctx); err != nil {
					logger.Error("cleanup expired sessions", "error", err)
				} else if n > 0 {
					logger.Info("cleaned up expired sessions", "count", n)
				}
				if n, err := srv.TokenStore().DeleteExpired(ctx); err != nil {
					logger.Error("cleanup account tokens", "error", err)
				} else if n > 0 {
					logger.Info("cleaned up account tokens", "count", n)
				}
				srv.RateLimiter().Cleanup()
			case <-ctx.Done():
				return
			}
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("homestead starting", "addr", httpServer.Addr, "base_url", cfg.BaseURL)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		runner.Stop()
		return fmt.Errorf("server error: %w", err)
	}

	logger.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	runner.Stop()
	return nil
}
