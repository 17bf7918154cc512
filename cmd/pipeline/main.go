// Command pipeline runs Bronze, Silver and Gold once, in order, and exits
// non-zero on the first failing stage.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"

	"CoinPull/internal/di"
	"CoinPull/pkg/config"
	applogger "CoinPull/pkg/logger"
	"CoinPull/pkg/util"

	"github.com/joho/godotenv"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "config file path")
	envFile := flag.String("env", ".env", "optional dotenv file")
	stage := flag.String("stage", "all", "stage to run: all, bronze, silver or gold")
	skipFetch := flag.Bool("skip-fetch", false, "reprocess stored snapshots without fetching a new one")
	coins := flag.String("coins", "", "comma separated coin ids overriding the configured assets for this fetch")
	flag.Parse()
	if err := checkStage(*stage); err != nil {
		log.Fatal(err)
	}

	if err := godotenv.Load(*envFile); err != nil && !os.IsNotExist(err) {
		log.Printf("dotenv %s: %v", *envFile, err)
	}
	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	r, err := di.InitializePipeline(cfg)
	if err != nil {
		log.Fatalf("pipeline initialization failed: %v", err)
	}
	defer r.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, r, *stage, !*skipFetch, util.SplitCSV(*coins)); err != nil {
		r.Logger.Error("pipeline failed", applogger.String("stage", *stage), applogger.Error(err))
		_ = r.Close()
		os.Exit(1)
	}
}

func run(ctx context.Context, r *di.Runner, stage string, fetch bool, coins []string) error {
	switch stage {
	case "bronze":
		_, err := r.Pipeline.Ingest(ctx, coins)
		return err
	case "silver":
		_, err := r.Pipeline.RunSilver(ctx)
		return err
	case "gold":
		_, err := r.Pipeline.RunGold(ctx)
		return err
	case "all":
		_, err := r.Pipeline.RunAll(ctx, fetch, coins)
		return err
	}
	return checkStage(stage)
}

var stages = []string{"all", "bronze", "silver", "gold"}

func checkStage(stage string) error {
	if !slices.Contains(stages, stage) {
		return fmt.Errorf("unknown stage %q: want one of %s", stage, strings.Join(stages, ", "))
	}
	return nil
}
