package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/vigilhq/vigil/internal/config"
	"github.com/vigilhq/vigil/internal/escalate"
)

var scanDispatch bool

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Run one escalation scan against the database",
	Long:  "Classifies every member that has reported at least once and prints the ranked result as JSON. With --dispatch, alerts are also sent to the configured channel.",
	RunE:  runScan,
}

func init() {
	scanCmd.Flags().BoolVar(&scanDispatch, "dispatch", false, "dispatch alerts to the configured channel")
}

func runScan(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	classifier := escalate.NewClassifier(db, nil, escalationConfig(cfg))

	now := time.Now().UTC()
	var res *escalate.ScanResult
	if scanDispatch {
		dispatcher, closeDispatcher := buildDispatcher(cfg.Dispatch)
		defer closeDispatcher()
		classifier.Dispatcher = dispatcher

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		res, err = classifier.ScanAndDispatch(ctx, now)
	} else {
		res, err = classifier.RunScan(now)
	}
	if err != nil {
		return fmt.Errorf("scan: %w", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}
