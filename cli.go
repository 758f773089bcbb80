package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"wooden_dutch/config"
	"wooden_dutch/drafts"
	"wooden_dutch/generator"
	"wooden_dutch/history"
	"wooden_dutch/imagegen"
	"wooden_dutch/logging"
	"wooden_dutch/metrics"
	"wooden_dutch/persona"
	"wooden_dutch/pipeline"
	"wooden_dutch/publisher"
	"wooden_dutch/research"
	"wooden_dutch/scheduler"
	"wooden_dutch/server"
)

// appState is loaded once in Before and shared by every command.
type appState struct {
	cfg     *config.Config
	logger  *logrus.Logger
	metrics *metrics.Metrics
}

func newCLIApp() *cli.App {
	st := &appState{}
	app := &cli.App{
		Name:  "wooden-dutch",
		Usage: "The Wooden Dutch: satirical logistics news generator",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "path to config.json (default " + config.DefaultPath + ")"},
			&cli.StringFlag{Name: "env-dir", Value: ".", Usage: "directory holding .env and .env.local"},
		},
		Before: func(c *cli.Context) error {
			boot := logging.New("info", "text")
			config.LoadEnvFiles(c.String("env-dir"), boot)
			cfg, err := config.Load(c.String("config"))
			if err != nil {
				return fail(err)
			}
			st.cfg = cfg
			st.logger = logging.NewWithWriter(c.App.ErrWriter, cfg.LogLevel, cfg.LogFormat)
			st.metrics = metrics.New()
			return nil
		},
		After: func(c *cli.Context) error {
			if st.cfg == nil || st.cfg.MetricsFile == "" {
				return nil
			}
			if err := st.metrics.WriteFile(st.cfg.MetricsFile); err != nil {
				st.logger.WithError(err).Warn("could not write metrics file")
			}
			return nil
		},
		Commands: []*cli.Command{
			generateCmd(st),
			listCmd(st),
			publishCmd(st),
			testGhostCmd(st),
			scheduleCmd(st),
			serveCmd(st),
		},
	}
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// fail turns any error into an exit-code-1 error for the CLI.
func fail(err error) error {
	if err == nil {
		return nil
	}
	var ec cli.ExitCoder
	if errors.As(err, &ec) {
		return err
	}
	return cli.Exit(err.Error(), 1)
}

func generateCmd(st *appState) *cli.Command {
	return &cli.Command{
		Name:  "generate",
		Usage: "Generate and publish articles",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "dry-run", Usage: "print the article instead of publishing"},
			&cli.BoolFlag{Name: "save", Usage: "save the article as a local draft instead of publishing"},
			&cli.StringFlag{Name: "topic", Usage: "theme all topic candidates must address"},
			&cli.IntFlag{Name: "count", Value: 1, Usage: "number of articles to generate, one after another"},
			&cli.BoolFlag{Name: "no-research", Usage: "skip fetching industry headlines"},
		},
		Action: func(c *cli.Context) error {
			opts := pipeline.Options{
				DryRun:    c.Bool("dry-run"),
				SaveOnly:  c.Bool("save"),
				TopicHint: c.String("topic"),
			}
			orch, err := st.orchestrator(wiring{
				llm:      true,
				cms:      opts.Mode() == pipeline.ModePublish,
				research: !c.Bool("no-research"),
			}, c.App.Writer)
			if err != nil {
				return fail(err)
			}
			if opts.Mode() == pipeline.ModePublish {
				if err := testConnection(c.Context, orch.CMS, st.logger); err != nil {
					return fail(err)
				}
			}

			count := c.Int("count")
			if count <= 1 {
				res, err := orch.Run(c.Context, opts)
				if err != nil {
					return fail(err)
				}
				printResult(c, res)
				return nil
			}

			report := orch.RunBatch(c.Context, count, opts)
			for _, res := range report.Results {
				printResult(c, res)
			}
			fmt.Fprintf(c.App.Writer, "Generated %d/%d articles\n", report.Succeeded, report.Requested)
			if report.Succeeded == 0 {
				return cli.Exit("no articles were generated", 1)
			}
			return nil
		},
	}
}

func printResult(c *cli.Context, res *pipeline.Result) {
	switch {
	case res.DraftFile != "":
		fmt.Fprintf(c.App.Writer, "Saved draft: %s\n", res.DraftFile)
	case res.PostURL != "":
		fmt.Fprintf(c.App.Writer, "Published: %s\n", res.PostURL)
	}
}

func listCmd(st *appState) *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List saved drafts",
		Action: func(c *cli.Context) error {
			entries, err := drafts.NewStore(st.cfg.DraftsDir()).List()
			if err != nil {
				return fail(err)
			}
			if len(entries) == 0 {
				fmt.Fprintln(c.App.Writer, "No drafts found")
				return nil
			}
			tw := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "FILE\tSTATUS\tTITLE\tAUTHOR\tGENERATED")
			for _, e := range entries {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
					e.Filename,
					e.Draft.Status,
					e.Draft.Article.Title,
					e.Draft.Article.AuthorName,
					e.Draft.GeneratedAt.Local().Format("2006-01-02 15:04"),
				)
			}
			return tw.Flush()
		},
	}
}

func publishCmd(st *appState) *cli.Command {
	return &cli.Command{
		Name:      "publish",
		Usage:     "Publish saved drafts",
		ArgsUsage: "<file|id-prefix|all>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "all", Usage: "publish every saved draft"},
		},
		Action: func(c *cli.Context) error {
			pattern := c.Args().First()
			if c.Bool("all") {
				pattern = drafts.MatchAll
			}
			if pattern == "" {
				return cli.Exit("publish needs a draft file name, id prefix or \"all\"", 1)
			}
			orch, err := st.orchestrator(wiring{}, c.App.Writer)
			if err != nil {
				return fail(err)
			}
			report, err := orch.PublishDrafts(c.Context, pattern)
			if err != nil {
				return fail(err)
			}
			if report.Matched > 0 {
				fmt.Fprintf(c.App.Writer, "Published: %d, reconciled: %d, skipped: %d\n",
					report.Published, report.Reconciled, report.Skipped)
			}
			return nil
		},
	}
}

func testGhostCmd(st *appState) *cli.Command {
	return &cli.Command{
		Name:  "test-ghost",
		Usage: "Check the Ghost admin API credentials",
		Action: func(c *cli.Context) error {
			cms, err := buildCMS(st.cfg, st.logger)
			if err != nil {
				return fail(err)
			}
			site, err := cms.TestConnection(c.Context)
			if err != nil {
				return fail(err)
			}
			fmt.Fprintf(c.App.Writer, "Ghost connection successful! %s (v%s)\n", site.Title, site.Version)
			return nil
		},
	}
}

func scheduleCmd(st *appState) *cli.Command {
	return &cli.Command{
		Name:  "schedule",
		Usage: "Generate and publish on the configured cron schedule until interrupted",
		Action: func(c *cli.Context) error {
			orch, err := st.orchestrator(wiring{llm: true, cms: true, research: true}, c.App.Writer)
			if err != nil {
				return fail(err)
			}
			if err := testConnection(c.Context, orch.CMS, st.logger); err != nil {
				return fail(err)
			}

			count := st.cfg.Scheduler.Count
			job := func(ctx context.Context) error {
				report := orch.RunBatch(ctx, count, pipeline.Options{})
				if err := st.metrics.WriteFile(st.cfg.MetricsFile); err != nil {
					st.logger.WithError(err).Warn("could not write metrics file")
				}
				if report.Succeeded == 0 {
					return fmt.Errorf("0/%d articles generated", report.Requested)
				}
				return nil
			}
			sched, err := scheduler.New(st.cfg.Scheduler.Cron, st.cfg.Scheduler.Timezone, job, st.logger)
			if err != nil {
				return fail(err)
			}

			ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			fmt.Fprintln(c.App.Writer, "Scheduler running. Press Ctrl+C to stop.")
			return fail(sched.Run(ctx))
		},
	}
}

func serveCmd(st *appState) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the drafts desk web server",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "addr", Usage: "listen address (overrides SERVER_ADDR)"},
		},
		Action: func(c *cli.Context) error {
			orch, err := st.orchestrator(wiring{}, c.App.Writer)
			if err != nil {
				return fail(err)
			}
			srv, err := server.New(orch.Drafts, orch, st.metrics, st.logger)
			if err != nil {
				return fail(err)
			}
			addr := st.cfg.ServerAddr
			if a := c.String("addr"); a != "" {
				addr = a
			}
			httpSrv := &http.Server{
				Addr:              addr,
				Handler:           srv.Routes(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			errCh := make(chan error, 1)
			go func() {
				st.logger.WithField("addr", addr).Info("drafts desk listening")
				errCh <- httpSrv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return fail(err)
				}
				return nil
			case <-ctx.Done():
			}
			st.logger.Info("shutting down drafts desk")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return fail(httpSrv.Shutdown(shutdownCtx))
		},
	}
}

// wiring selects which optional collaborators a command needs. A needed
// collaborator that is not configured is a config error; anything else is
// attached only when configured.
type wiring struct {
	llm      bool
	cms      bool
	research bool
}

func (st *appState) orchestrator(need wiring, out io.Writer) (*pipeline.Orchestrator, error) {
	cfg, logger := st.cfg, st.logger
	deps := pipeline.Deps{
		Personas: persona.Default(),
		Topics:   history.NewFileQueue("topics", cfg.TopicsFile(), history.TopicsCap),
		Authors:  history.NewFileQueue("authors", cfg.AuthorsFile(), history.AuthorsCap),
		Drafts:   drafts.NewStore(cfg.DraftsDir()),
		Metrics:  st.metrics,
		Logger:   logger,
		Out:      out,
	}

	if need.llm {
		llm, err := buildLLM(cfg)
		if err != nil {
			return nil, err
		}
		if deps.Agent, err = generator.NewAgent(llm); err != nil {
			return nil, err
		}
		if cfg.ImageEnabled() {
			gen, err := imagegen.NewOpenAIGenerator(imagegen.Settings{
				APIKey:  cfg.Image.APIKey,
				Model:   cfg.Image.Model,
				BaseURL: cfg.Image.BaseURL,
			})
			if err != nil {
				return nil, err
			}
			deps.Images = gen
		}
	}

	if need.research {
		agg := research.NewAggregator(logger)
		agg.OnSource = st.metrics.ObserveSource
		deps.Research = agg
	}

	cms, err := buildCMS(cfg, logger)
	switch {
	case err == nil:
		deps.CMS = cms
	case need.cms:
		return nil, err
	default:
		logger.WithError(err).Debug("ghost not configured")
	}
	return pipeline.New(deps)
}

func buildLLM(cfg *config.Config) (generator.LLMClient, error) {
	if err := cfg.RequireLLM(); err != nil {
		return nil, err
	}
	switch cfg.LLM.Provider {
	case "mock":
		return generator.MockLLM{}, nil
	default:
		// openai, anthropic and deepseek all speak the OpenAI chat API
		return generator.NewOpenAILLMFromConfig(&generator.LLMSettings{
			Provider:    cfg.LLM.Provider,
			Model:       cfg.LLM.Model,
			APIKey:      cfg.LLM.APIKey,
			BaseURL:     cfg.LLM.BaseURL,
			MaxTokens:   cfg.LLM.MaxTokens,
			Temperature: cfg.LLM.Temperature,
		})
	}
}

func buildCMS(cfg *config.Config, logger logrus.FieldLogger) (*publisher.Publisher, error) {
	if err := cfg.RequireGhost(); err != nil {
		return nil, err
	}
	return publisher.New(publisher.Config{
		URL:           cfg.Ghost.URL,
		AdminAPIKey:   cfg.Ghost.AdminAPIKey,
		AutoPublish:   cfg.Ghost.AutoPublish,
		AssignAuthors: cfg.Ghost.AssignAuthors,
	}, logger)
}

func testConnection(ctx context.Context, cms pipeline.CMS, logger logrus.FieldLogger) error {
	site, err := cms.TestConnection(ctx)
	if err != nil {
		return err
	}
	logger.WithFields(logrus.Fields{"site": site.Title, "version": site.Version}).Info("ghost connection ok")
	return nil
}
