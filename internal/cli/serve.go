package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/vigilhq/vigil/internal/config"
	"github.com/vigilhq/vigil/internal/energy"
	"github.com/vigilhq/vigil/internal/escalate"
	"github.com/vigilhq/vigil/internal/guardian"
	"github.com/vigilhq/vigil/internal/notify"
	"github.com/vigilhq/vigil/internal/server"
	"github.com/vigilhq/vigil/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	dispatcher, closeDispatcher := buildDispatcher(cfg.Dispatch)
	defer closeDispatcher()

	ledger := energy.NewLedger(db, energyConfig(cfg), nil)
	engine := guardian.NewEngine(db, ledger, curseThresholds(cfg), dispatcher, nil)
	classifier := escalate.NewClassifier(db, dispatcher, escalationConfig(cfg))

	if cfg.Escalation.ScanIntervalMin > 0 {
		classifier.StartScanTimer(time.Duration(cfg.Escalation.ScanIntervalMin) * time.Minute)
		defer classifier.Stop()
		fmt.Fprintf(os.Stderr, "  scan: every %dm\n", cfg.Escalation.ScanIntervalMin)
	}

	srv := server.New(db, engine, ledger, classifier, VersionString())
	addr := cfg.ListenAddr()

	httpServer := &http.Server{
		Addr:    addr,
		Handler: srv,
	}

	// Graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		fmt.Fprintf(os.Stderr, "vigil serving on %s\n", addr)
		fmt.Fprintf(os.Stderr, "  db: %s\n", db.Path)
		fmt.Fprintf(os.Stderr, "  dispatch: %s\n", cfg.Dispatch.Mode)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Fprintf(os.Stderr, "server error: %v\n", err)
			os.Exit(1)
		}
	}()

	<-done
	fmt.Fprintln(os.Stderr, "\nshutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return httpServer.Shutdown(ctx)
}

func openDB(cfg config.Config) (*store.DB, error) {
	dbPath := cfg.Database.Path
	if dbPath == "" {
		var err error
		dbPath, err = store.DefaultDBPath()
		if err != nil {
			return nil, fmt.Errorf("resolve db path: %w", err)
		}
	}

	db, err := store.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return db, nil
}

// buildDispatcher wires the configured notification channel. The returned
// close func flushes channels that buffer (kafka).
func buildDispatcher(cfg config.DispatchConfig) (notify.Dispatcher, func()) {
	switch cfg.Mode {
	case "webhook":
		return notify.NewWebhookDispatcher(cfg.WebhookURL), func() {}
	case "kafka":
		d := notify.NewKafkaDispatcher(cfg.KafkaBrokers, cfg.KafkaTopic)
		return d, func() {
			if err := d.Close(); err != nil {
				fmt.Fprintf(os.Stderr, "close kafka dispatcher: %v\n", err)
			}
		}
	default:
		return notify.LogDispatcher{}, func() {}
	}
}

func energyConfig(cfg config.Config) energy.Config {
	return energy.Config{
		BaseEarn:         cfg.Energy.BaseEarn,
		LuckyProbability: cfg.Energy.LuckyProbability,
		LuckyMultiplier:  cfg.Energy.LuckyMultiplier,
		StreakCap:        cfg.Energy.StreakCap,
	}
}

func curseThresholds(cfg config.Config) guardian.CurseThresholds {
	return guardian.CurseThresholds{
		AnxietyHours:  cfg.Guardian.AnxietyHours,
		WeaknessHours: cfg.Guardian.WeaknessHours,
		CursedHours:   cfg.Guardian.CursedHours,
	}
}

func escalationConfig(cfg config.Config) escalate.Config {
	return escalate.Config{
		SummaryMin:       cfg.Escalation.SummaryMin,
		TopN:             cfg.Escalation.TopN,
		DispatchDelay:    time.Duration(cfg.Escalation.DispatchDelayMS) * time.Millisecond,
		RenotifyCooldown: time.Duration(cfg.Escalation.RenotifyCooldownH) * time.Hour,
	}
}
