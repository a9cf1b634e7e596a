package main

import (
	"context"
	"flag"

	"github.com/driverscout/driverscout/internal/config"
	"github.com/driverscout/driverscout/internal/iracing"
	"github.com/driverscout/driverscout/internal/observability"
	"github.com/driverscout/driverscout/internal/stats"
	"github.com/driverscout/driverscout/internal/store"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

func main() {
	logrus.SetLevel(logrus.InfoLevel)
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	mode := flag.String("mode", "local", "snapshot store mode: local or r2")
	category := flag.String("category", "", "fetch a single category instead of all configured ones")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logrus.Fatal("Configuration error: ", err)
	}

	var snapshots store.SnapshotStore
	switch *mode {
	case "local":
		snapshots = store.NewLocalStore(cfg.SnapshotsDir)
	case "r2":
		snapshots = store.NewR2Store(cfg, "snapshots")
	default:
		logrus.Fatalf("Unknown mode: %s", *mode)
	}

	client := iracing.NewClient(cfg)
	metrics := observability.NewMetrics(prometheus.DefaultRegisterer)
	service := stats.New(client, snapshots, cfg, metrics)

	counts, err := service.FetchAndStore(context.Background(), *category)
	for cat, count := range counts {
		logrus.Infof("Stored %d rows for category %s", count, cat)
	}
	if err != nil {
		logrus.Fatal("Fetch failed: ", err)
	}
	logrus.Info("Job completed successfully.")
}
