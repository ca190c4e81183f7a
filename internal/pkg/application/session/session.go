package session

import (
	"context"
	"fmt"
	"strconv"

	"github.com/chromedp/chromedp"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"

	"github.com/diwise/hyperstate/internal/pkg/application/notifications"
	"github.com/diwise/hyperstate/pkg/hyperstate"
	"github.com/diwise/hyperstate/pkg/hyperstate/client"
	"github.com/diwise/hyperstate/pkg/hyperstate/errors"
	"github.com/diwise/hyperstate/pkg/hyperstate/repository"
	"github.com/diwise/hyperstate/pkg/hyperstate/repository/postgres"
	"github.com/diwise/hyperstate/pkg/hyperstate/webdriver"
)

// Session owns the resolver selected by the configuration, and whatever
// connection or browser it needs. Every entity graph of the session is
// navigated through that single resolver.
type Session struct {
	title    string
	resolver hyperstate.Resolver
	notifier notifications.Notifier
	closers  []func()
}

func New(ctx context.Context, cfg *Config, kinds ...hyperstate.Kind) (*Session, error) {
	log := logging.GetFromContext(ctx)

	s := &Session{
		title:    cfg.Title,
		notifier: notifications.Discard(),
	}

	paths := repository.SequentialPaths
	if cfg.Store.Paths == "uuid" {
		paths = repository.UUIDPaths
	}

	switch cfg.Backend {
	case BackendMemory, "":
		s.resolver = repository.NewResolver(repository.NewMemoryStore(repository.WithPathGenerator(paths)), kinds...)

	case BackendPostgres:
		pgcfg := postgres.LoadConfiguration(ctx)
		if cfg.Postgres != nil {
			pgcfg = postgres.NewConfig(cfg.Postgres.Host, cfg.Postgres.User, cfg.Postgres.Password, cfg.Postgres.Port, cfg.Postgres.DBName, cfg.Postgres.SSLMode)
		}

		pool, err := postgres.Connect(ctx, pgcfg)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, pool.Close)

		store, err := postgres.New(ctx, pool, postgres.WithPathGenerator(paths))
		if err != nil {
			s.Close()
			return nil, err
		}

		s.resolver = repository.NewResolver(store, kinds...)

	case BackendHTTP:
		if cfg.HTTP == nil || cfg.HTTP.BaseURL == "" {
			return nil, errors.NewInvalidArgumentError("the http backend requires a base url")
		}

		options := []client.Option{
			client.Debug(strconv.FormatBool(cfg.HTTP.Debug)),
			client.Kinds(kinds...),
		}
		for name, value := range cfg.HTTP.Headers {
			options = append(options, client.Header(name, value))
		}

		s.resolver = client.NewResolver(cfg.HTTP.BaseURL, options...)

	case BackendBrowser:
		if cfg.Browser == nil || cfg.Browser.BaseURL == "" {
			return nil, errors.NewInvalidArgumentError("the browser backend requires a base url")
		}

		var driver webdriver.Driver

		if cfg.Browser.Driver == "http" {
			driver = webdriver.NewHTTPDriver()
		} else {
			var err error
			driver, err = webdriver.NewChromeDriver(ctx, chromedp.Flag("headless", cfg.Browser.IsHeadless()))
			if err != nil {
				return nil, err
			}
		}
		s.closers = append(s.closers, func() { driver.Close() })

		s.resolver = webdriver.NewResolver(cfg.Browser.BaseURL, driver, kinds...)

	default:
		return nil, errors.NewInvalidArgumentError(fmt.Sprintf("unknown backend %q", cfg.Backend))
	}

	if cfg.Notifications != nil && cfg.Notifications.Endpoint != "" {
		n, err := notifications.NewNotifier(ctx, cfg.Notifications.Endpoint)
		if err != nil {
			s.Close()
			return nil, err
		}

		if err = n.Start(); err != nil {
			s.Close()
			return nil, err
		}

		s.notifier = n
		s.closers = append(s.closers, func() { n.Stop() })
	}

	log.Info("session started", "backend", string(cfg.Backend))

	return s, nil
}

func (s *Session) Title() string {
	return s.title
}

func (s *Session) Resolver() hyperstate.Resolver {
	return s.resolver
}

// Notifier returns the notifier that changes made through the session
// should be reported to
func (s *Session) Notifier() notifications.Notifier {
	return s.notifier
}

// Async returns the resolver of the session with futures in place of
// blocking calls
func (s *Session) Async() hyperstate.AsyncResolver {
	return hyperstate.Async(s.resolver)
}

func (s *Session) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}
