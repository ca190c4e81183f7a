package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/diwise/service-chassis/pkg/infrastructure/buildinfo"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y"

	"github.com/diwise/hyperstate/pkg/hyperstate/repository/postgres"
)

const (
	appName string = "hyperstate-cleaner"
)

func main() {
	appVersion := buildinfo.SourceVersion()

	ctx, log, cleanup := o11y.Init(context.Background(), appName, appVersion, "json")
	defer cleanup()

	log.Debug("begin clean hyperstate")

	p, err := postgres.Connect(ctx, postgres.LoadConfiguration(ctx))
	if err != nil {
		log.Error("failed to connect to database", "err", err.Error())
		os.Exit(1)
	}
	defer p.Close()

	parents, err := postgres.Parents(ctx, p)
	if err != nil {
		log.Error("failed to get parents", "err", err.Error())
		os.Exit(1)
	}

	log.Debug("number of parent entities", "count", len(parents))

	var totalCount int64 = 0

	for _, parent := range parents {
		l := log.With(slog.String("entity_path", parent))

		l.Debug("remove orphaned children", slog.Time("start_time", time.Now()))

		count, err := postgres.RemoveOrphans(ctx, p, parent)
		if err != nil {
			l.Error("failed to remove orphaned children", "err", err.Error())
			os.Exit(1)
		}

		if count == 0 {
			continue
		}

		totalCount += count

		l.Debug("done removing orphaned children", slog.Int64("count", count), slog.Time("end_time", time.Now()))
	}

	log.Debug("vacuum")

	err = postgres.Vacuum(ctx, p)
	if err != nil {
		log.Error("failed to vacuum tables", "err", err.Error())
		os.Exit(1)
	}

	log.Info("done cleaning", slog.Int64("total", totalCount))
}
