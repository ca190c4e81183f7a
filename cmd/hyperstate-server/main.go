package main

import (
	"context"
	"flag"
	"io"
	"net/http"
	"os"

	"github.com/diwise/service-chassis/pkg/infrastructure/buildinfo"
	"github.com/diwise/service-chassis/pkg/infrastructure/env"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y"

	"github.com/diwise/hyperstate/internal/pkg/application/session"
	"github.com/diwise/hyperstate/internal/pkg/infrastructure/router"
	"github.com/diwise/hyperstate/internal/pkg/presentation/api/hypermedia"
	"github.com/diwise/hyperstate/pkg/datamodels/accounts"
)

const serviceName string = "hyperstate-server"

func main() {
	serviceVersion := buildinfo.SourceVersion()

	ctx, log, cleanup := o11y.Init(context.Background(), serviceName, serviceVersion, "json")
	defer cleanup()

	var configPath, policiesPath string

	flag.StringVar(&configPath, "config", env.GetVariableOrDefault(ctx, "HYPERSTATE_CONFIG_PATH", ""), "path to the session configuration file")
	flag.StringVar(&policiesPath, "policies", env.GetVariableOrDefault(ctx, "OPA_POLICIES_PATH", ""), "path to the rego policies of the api")
	flag.Parse()

	cfg, err := loadConfiguration(configPath)
	if err != nil {
		fatal(ctx, "failed to load configuration", err)
	}

	s, err := session.New(ctx, cfg, accounts.Kinds()...)
	if err != nil {
		fatal(ctx, "failed to start session", err)
	}
	defer s.Close()

	if cfg.Backend == session.BackendMemory || cfg.Backend == session.BackendPostgres {
		err = accounts.Seed(ctx, s.Resolver(), s.Title())
		if err != nil {
			fatal(ctx, "failed to seed entity graph", err)
		}
	}

	var policies io.Reader

	if policiesPath != "" {
		f, err := os.Open(policiesPath)
		if err != nil {
			fatal(ctx, "failed to open policies", err)
		}
		defer f.Close()
		policies = f
	}

	r := router.New(serviceName, log)

	err = hypermedia.RegisterHandlers(ctx, r, s.Title(), policies, s.Resolver(), s.Notifier(), accounts.Kinds()...)
	if err != nil {
		fatal(ctx, "failed to register api handlers", err)
	}

	port := env.GetVariableOrDefault(ctx, "SERVICE_PORT", "8080")

	log.Info("starting to listen for connections", "port", port, "backend", string(cfg.Backend))

	err = http.ListenAndServe(":"+port, r)
	if err != nil {
		fatal(ctx, "failed to listen for connections", err)
	}
}

func loadConfiguration(path string) (*session.Config, error) {
	if path == "" {
		return session.DefaultConfig(), nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return session.LoadConfiguration(f)
}
