package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/spockmay/bainbridge-now/internal/app"
	"github.com/spockmay/bainbridge-now/internal/digest"
	"github.com/spockmay/bainbridge-now/internal/logger"
	"github.com/spockmay/bainbridge-now/internal/metrics"
	"github.com/spockmay/bainbridge-now/internal/rabbit"
	internalhttp "github.com/spockmay/bainbridge-now/internal/server/http"
	"github.com/spockmay/bainbridge-now/internal/source"
	"github.com/spockmay/bainbridge-now/internal/storage"
	"github.com/spockmay/bainbridge-now/internal/storagebuilder"
	"github.com/urfave/cli/v2"
)

const closeTimeout = 3 * time.Second

func init() {
	log.SetFormatter(&log.TextFormatter{})
	log.SetOutput(os.Stdout)
	log.SetLevel(log.WarnLevel)
}

func main() {
	// A missing .env is fine, secrets may come from the environment.
	_ = godotenv.Load()

	if err := newCLI().Run(os.Args); err != nil {
		log.Errorf("failed to run: %v", err)
		os.Exit(1)
	}
}

func newCLI() *cli.App {
	return &cli.App{
		Name:  "bainbridgenow",
		Usage: "Collect local community events and publish the upcoming week digest.",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Value: "./configs/config.yaml",
				Usage: "Path to configuration file",
			},
		},
		Action: func(c *cli.Context) error {
			return withEnvironment(c, false, func(env *environment) error {
				if err := env.ingest(c.Context); err != nil {
					return err
				}
				return env.digest(c.Context, time.Now())
			})
		},
		Commands: []*cli.Command{
			{
				Name:  "ingest",
				Usage: "Fetch every configured source and store the events",
				Action: func(c *cli.Context) error {
					return withEnvironment(c, false, func(env *environment) error {
						return env.ingest(c.Context)
					})
				},
			},
			{
				Name:  "digest",
				Usage: "Render the upcoming events digest from the store",
				Action: func(c *cli.Context) error {
					return withEnvironment(c, false, func(env *environment) error {
						return env.digest(c.Context, time.Now())
					})
				},
			},
			{
				Name:  "serve",
				Usage: "Serve the live digest, events and metrics over HTTP",
				Flags: []cli.Flag{
					&cli.DurationFlag{
						Name: "ingest-every",
						Usage: "Ingest all sources periodically while serving, 0 disables. " +
							"The store is append-only, so every run stores each event again",
					},
				},
				Action: func(c *cli.Context) error {
					return withEnvironment(c, true, func(env *environment) error {
						return env.serve(c.Context, c.Duration("ingest-every"))
					})
				},
			},
			{
				Name:  "listen",
				Usage: "Log the announcements of newly stored events from the queue",
				Action: func(c *cli.Context) error {
					config, err := NewConfig(c.String("config"))
					if err != nil {
						return err
					}
					if err := logger.PrepareLogger(config.Logger); err != nil {
						return err
					}
					return listen(c.Context, config.Rabbit)
				},
			},
			{
				Name:  "version",
				Usage: "Print build information",
				Action: func(c *cli.Context) error {
					return printVersion(c.App.Writer)
				},
			},
		},
	}
}

// environment is everything a command needs, built from the config file.
type environment struct {
	config   Config
	storage  storage.Storage
	app      *app.App
	renderer *digest.Renderer
	rabbit   *rabbit.Provider
}

func withEnvironment(c *cli.Context, server bool, fn func(env *environment) error) error {
	config, err := NewConfig(c.String("config"))
	if err != nil {
		return err
	}
	if err := logger.PrepareLogger(config.Logger); err != nil {
		return err
	}
	env, err := newEnvironment(config, server)
	if err != nil {
		return err
	}
	defer env.close()
	return fn(env)
}

func newEnvironment(config Config, server bool) (*environment, error) {
	loc, err := storage.LoadZone(config.Digest.Zone)
	if err != nil {
		return nil, err
	}
	stor, err := storagebuilder.New(config.Storage)
	if err != nil {
		return nil, err
	}

	m := metrics.New()
	if server {
		m = m.WithProcessCollectors()
	}
	opts := []app.Option{app.WithMetrics(m)}

	env := &environment{config: config, storage: stor, renderer: digest.NewRenderer(stor, loc)}
	if config.Rabbit.Enabled {
		r := rabbit.New(config.Rabbit)
		if err := r.Connect(); err != nil {
			log.Errorf("events will not be announced: %v", err)
		} else {
			env.rabbit = r
			opts = append(opts, app.WithNotifier(r))
		}
	}
	env.app = app.New(stor, buildFeeds(config.Sources, loc), opts...)
	return env, nil
}

// buildFeeds turns the configured sources into feeds. Broken entries are
// logged and left out so the remaining sources still run.
func buildFeeds(configs []SourceConfig, loc *time.Location) []app.Feed {
	feeds := make([]app.Feed, 0, len(configs))
	for _, c := range configs {
		s, err := source.NewFromConfig(c.Config, loc)
		if err != nil {
			log.Errorf("skipping source: %v", err)
			continue
		}
		feeds = append(feeds, app.Feed{Source: s, Rules: c.Rules})
	}
	return feeds
}

func (env *environment) close() {
	if env.rabbit != nil {
		if err := env.rabbit.Close(); err != nil {
			log.Errorf("failed to close rabbit connection: %v", err)
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	if err := env.storage.Close(ctx); err != nil {
		log.Errorf("failed to close storage: %v", err)
	}
}

func (env *environment) ingest(ctx context.Context) error {
	results := env.app.Ingest(ctx)
	failed := 0
	for _, r := range results {
		if r.Failed() {
			failed++
		}
	}
	log.Infof("ingestion finished: %d sources, %d failed", len(results), failed)

	if path := env.config.Metrics.TextfilePath; path != "" {
		if err := env.app.Metrics().WriteTextfile(path); err != nil {
			log.Errorf("failed to write metrics: %v", err)
		}
	}
	return nil
}

func (env *environment) digest(ctx context.Context, now time.Time) error {
	page, err := env.renderer.Render(ctx, now)
	if err != nil {
		return fmt.Errorf("failed to render digest: %w", err)
	}
	path := env.config.Digest.HTMLPath
	if path == "" {
		path = digest.DefaultHTMLPath
	}
	if err := digest.WriteFile(path, page); err != nil {
		log.Errorf("failed to write digest: %v", err)
	} else {
		log.Infof("digest written to %s", path)
	}

	if env.config.Digest.ICSPath == "" {
		return nil
	}
	cal, err := env.renderer.RenderICS(ctx, now)
	if err != nil {
		return fmt.Errorf("failed to render calendar: %w", err)
	}
	if err := digest.WriteFile(env.config.Digest.ICSPath, cal); err != nil {
		return err
	}
	log.Infof("calendar written to %s", env.config.Digest.ICSPath)
	return nil
}

func (env *environment) serve(ctx context.Context, ingestEvery time.Duration) error {
	server := internalhttp.NewServer(env.config.HTTPServer, env.app, env.renderer)

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer cancel()

	if ingestEvery > 0 {
		go env.ingestPeriodically(ctx, ingestEvery)
	}

	go func() {
		<-ctx.Done()

		ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		defer cancel()

		if err := server.Stop(ctx); err != nil {
			log.Error("failed to stop http server: " + err.Error())
		}
	}()

	log.Info("bainbridgenow is serving...")
	return server.Start(ctx)
}

// ingestPeriodically runs an ingestion right away and then on every tick
// until ctx is done. Runs never overlap.
func (env *environment) ingestPeriodically(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		log.Debug("starting scheduled ingestion")
		_ = env.ingest(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func listen(ctx context.Context, config rabbit.Config) error {
	r := rabbit.New(config)
	if err := r.Connect(); err != nil {
		return err
	}
	defer r.Close()

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer cancel()

	log.Infof("listening on queue %q", config.Queue)
	return r.Consume(ctx, func(m rabbit.Message) {
		log.WithField("source", m.Source).WithField("type", m.EventType).
			Infof("new event %d: %s at %s", m.ID, m.Name, m.Start.Format(time.RFC3339))
	})
}
