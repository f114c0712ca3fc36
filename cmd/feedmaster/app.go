package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/jmoiron/sqlx"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"feedmaster/internal/api"
	"feedmaster/internal/config"
	"feedmaster/internal/domain"
	"feedmaster/internal/rss"
	"feedmaster/internal/scheduler"
	"feedmaster/internal/service"
	"feedmaster/internal/source/feed"
	"feedmaster/internal/storage/sqlstore"
)

func newApp() *cli.App {
	return &cli.App{
		Name:  "feedmaster",
		Usage: "Merge several podcast feeds into one RSS feed",
		Description: `feedmaster pulls the configured upstream feeds into a database,
keeping every episode once by its enclosure URL, and renders the newest
episodes of all sources into a single RSS 2.0 document.

update and generate are meant for cron, run keeps both going on a schedule
and serves the result over HTTP.`,
		Commands: []*cli.Command{
			updateCmd(),
			generateCmd(),
			runCmd(),
			listCmd(),
			pruneCmd(),
		},
		Action: func(c *cli.Context) error {
			return cli.ShowAppHelp(c)
		},
	}
}

func sharedFlags(extra ...cli.Flag) []cli.Flag {
	return append([]cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Value:   "config.yaml",
			Usage:   "path to config file",
			EnvVars: []string{"FEEDMASTER_CONFIG"},
		},
		&cli.StringFlag{
			Name:    "mongo",
			Aliases: []string{"db", "m"},
			Usage:   "database address as host[:port], overrides the config file",
			EnvVars: []string{"FEEDMASTER_DB"},
		},
		&cli.BoolFlag{
			Name:  "dbg",
			Usage: "debug logging",
		},
	}, extra...)
}

// env is the state every command builds in setup.
type env struct {
	cfg    *config.Config
	logger *slog.Logger
	db     *sqlx.DB
}

func setup(c *cli.Context) (*env, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}
	if err := cfg.Database.SetAddress(c.String("mongo")); err != nil {
		return nil, fmt.Errorf("--mongo: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logger := setupLogger(c.App.ErrWriter, cfg.LogLevel, cfg.LogFormat, c.Bool("dbg"))

	db, err := sqlstore.Connect(c.Context, cfg.Database)
	if err != nil {
		return nil, err
	}
	if err := sqlstore.Migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	logger.Debug("connected to database", "driver", cfg.Database.Driver)

	return &env{cfg: cfg, logger: logger, db: db}, nil
}

func (r *env) close() {
	if err := r.db.Close(); err != nil {
		r.logger.Warn("close database", "error", err)
	}
}

func (r *env) updateService() *service.UpdateService {
	fetcher := feed.New(feed.Config{
		Timeout:   r.cfg.Fetch.Timeout,
		MaxItems:  r.cfg.Feed.MaxItemsPerFeed,
		UserAgent: r.cfg.Fetch.UserAgent,
	}, r.logger)

	return service.NewUpdateService(
		r.cfg.Sources,
		fetcher,
		sqlstore.NewEpisodeStore(r.db),
		sqlstore.NewSourceStateStore(r.db),
		r.cfg.Fetch.Concurrency,
		r.logger,
	).WithTitleFilter(r.cfg.Feed.Filter.SkipTitle)
}

func (r *env) generateService() *service.GenerateService {
	renderer := rss.NewRenderer(rss.Meta{
		Title:       r.cfg.Feed.Title,
		Description: r.cfg.Feed.Description,
		Link:        r.cfg.Feed.Link,
		Language:    r.cfg.Feed.Language,
		SelfLink:    r.cfg.Feed.SelfLink,
		Image:       r.cfg.Feed.Image,
		Author:      r.cfg.Feed.Author,
	}, r.logger)

	return service.NewGenerateService(
		sqlstore.NewEpisodeStore(r.db),
		renderer,
		r.cfg.Feed.File,
		r.cfg.Feed.MaxItemsTotal,
		r.logger,
	)
}

func updateCmd() *cli.Command {
	return &cli.Command{
		Name:  "update",
		Usage: "Fetch all sources and store new episodes",
		Flags: sharedFlags(),
		Action: func(c *cli.Context) error {
			rt, err := setup(c)
			if err != nil {
				return err
			}
			defer rt.close()

			_, err = rt.updateService().Update(c.Context)
			return err
		},
	}
}

func generateCmd() *cli.Command {
	return &cli.Command{
		Name:  "generate",
		Usage: "Render the newest stored episodes into the output feed",
		Flags: sharedFlags(&cli.StringFlag{
			Name:    "file",
			Aliases: []string{"f"},
			Usage:   "output file, overrides feed.file",
		}),
		Action: func(c *cli.Context) error {
			rt, err := setup(c)
			if err != nil {
				return err
			}
			defer rt.close()

			if file := c.String("file"); file != "" {
				rt.cfg.Feed.File = file
			}

			_, err = rt.generateService().Generate(c.Context)
			return err
		},
	}
}

func runCmd() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Update and generate on a schedule, serving the feed over HTTP",
		Flags: sharedFlags(),
		Action: func(c *cli.Context) error {
			rt, err := setup(c)
			if err != nil {
				return err
			}
			defer rt.close()

			ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			update := rt.updateService()
			generate := rt.generateService()
			sched := scheduler.NewScheduler([]scheduler.Job{
				{Name: "update", Run: func(ctx context.Context) error {
					_, err := update.Update(ctx)
					return err
				}},
				{Name: "generate", Run: func(ctx context.Context) error {
					_, err := generate.Generate(ctx)
					return err
				}},
			}, rt.cfg.Schedule.Interval, rt.cfg.Schedule.Timeout, rt.logger)

			rt.logger.Info("starting feedmaster",
				"sources", len(rt.cfg.Sources),
				"interval", rt.cfg.Schedule.Interval,
				"file", rt.cfg.Feed.File,
			)

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				err := sched.Start(gctx)
				if errors.Is(err, context.Canceled) {
					return nil
				}
				return err
			})
			if addr := rt.cfg.Server.Address; addr != "" {
				srv := api.NewServer(addr, rt.cfg.Feed.File, rt.logger)
				g.Go(func() error {
					return srv.Run(gctx)
				})
			}

			err = g.Wait()
			rt.logger.Info("feedmaster stopped")
			return err
		},
	}
}

func listCmd() *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "Show the newest stored episodes and the state of every source",
		Flags: sharedFlags(
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"n"},
				Value:   20,
				Usage:   "number of episodes to show",
			},
			&cli.StringFlag{
				Name:    "source",
				Aliases: []string{"s"},
				Usage:   "show the state of this source only",
			},
		),
		Action: func(c *cli.Context) error {
			rt, err := setup(c)
			if err != nil {
				return err
			}
			defer rt.close()

			episodes, err := sqlstore.NewEpisodeStore(rt.db).TopN(c.Context, c.Int("limit"))
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(episodes))
			for _, ep := range episodes {
				rows = append(rows, []string{
					ep.Published.Format("2006-01-02 15:04"),
					humanize.Time(ep.Published),
					ep.Source,
					ep.Title,
					humanize.Bytes(uint64(max(ep.Enclosure.Length, 0))),
				})
			}
			fmt.Fprintln(c.App.Writer, renderTable([]string{"Published", "Age", "Source", "Title", "Size"}, rows, 5))

			states, err := sourceStates(c.Context, sqlstore.NewSourceStateStore(rt.db), c.String("source"))
			if err != nil {
				return err
			}
			rows = rows[:0]
			for _, st := range states {
				rows = append(rows, []string{
					st.SourceName,
					humanize.Time(st.LastSyncedAt),
					strconv.FormatInt(st.TotalNew, 10),
					st.LastError,
				})
			}
			fmt.Fprintln(c.App.Writer, renderTable([]string{"Source", "Synced", "Episodes", "Last error"}, rows, 3))

			return nil
		},
	}
}

// sourceStates returns the state of every source, or of name alone when it is set.
func sourceStates(ctx context.Context, store *sqlstore.SourceStateStore, name string) ([]domain.SourceState, error) {
	if name == "" {
		return store.List(ctx)
	}
	state, err := store.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	return []domain.SourceState{*state}, nil
}

func pruneCmd() *cli.Command {
	return &cli.Command{
		Name:  "prune",
		Usage: "Delete all but the newest episodes",
		Flags: sharedFlags(&cli.IntFlag{
			Name:    "keep",
			Aliases: []string{"k"},
			Usage:   "episodes to keep, defaults to feed.max_keep",
		}),
		Action: func(c *cli.Context) error {
			rt, err := setup(c)
			if err != nil {
				return err
			}
			defer rt.close()

			keep := rt.cfg.Feed.MaxKeep
			if c.IsSet("keep") {
				keep = c.Int("keep")
			}

			removed, err := sqlstore.NewEpisodeStore(rt.db).Prune(c.Context, keep)
			if err != nil {
				return err
			}
			rt.logger.Info("pruned episodes", "removed", removed, "kept", keep)
			return nil
		},
	}
}

