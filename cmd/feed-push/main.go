package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/robertmeta/feed-push/config"
	"github.com/robertmeta/feed-push/digest"
	"github.com/robertmeta/feed-push/feed"
	"github.com/robertmeta/feed-push/logging"
	"github.com/robertmeta/feed-push/model"
	"github.com/robertmeta/feed-push/opml"
	"github.com/robertmeta/feed-push/pipeline"
	"github.com/robertmeta/feed-push/store"
)

const (
	ExitSuccess      = 0
	ExitGeneralError = 1
	ExitUsageError   = 2
	ExitDataError    = 3
)

func main() {
	app := newApp()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.RunContext(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(ExitGeneralError)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "feed-push",
		Usage:   "Mail a digest when a feed has new entries",
		Version: "0.1.0",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "env-file",
				Value:   ".env",
				Usage:   "Dotenv file loaded before reading the environment (ignored if absent)",
				EnvVars: []string{"FEED_PUSH_ENV_FILE"},
			},
			&cli.StringFlag{
				Name:    "profiles",
				Aliases: []string{"c"},
				Usage:   "YAML profiles file",
				EnvVars: []string{"FEED_PUSH_PROFILES"},
			},
			&cli.StringFlag{
				Name:    "profile",
				Aliases: []string{"p"},
				Usage:   "Profile to run (default: the only profile in the file, else " + config.DefaultProfile + ")",
				EnvVars: []string{"FEED_PUSH_PROFILE"},
			},
			&cli.StringFlag{
				Name:    "state-backend",
				Usage:   "State backend: file or sqlite",
				EnvVars: []string{"FEED_PUSH_STATE_BACKEND"},
			},
			&cli.StringFlag{
				Name:    "state",
				Aliases: []string{"s"},
				Usage:   "State path (default: " + store.DefaultPath + ", or " + store.DefaultSQLitePath + " for sqlite)",
				EnvVars: []string{"FEED_PUSH_STATE"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level: debug, info, warn, error",
				EnvVars: []string{"FEED_PUSH_LOG_LEVEL"},
			},
			&cli.StringFlag{
				Name:    "log-file",
				Usage:   "Also write logs to this file, rotated",
				EnvVars: []string{"FEED_PUSH_LOG_FILE"},
			},
		},
		Before: loadEnvFile,
		Action: runOnce,
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "Poll the feed once and mail a digest if there is something new",
				Action: runOnce,
			},
			{
				Name:  "preview",
				Usage: "Render the digest without touching state or sending mail",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "file",
						Aliases: []string{"f"},
						Usage:   "Read the feed from a local file instead of fetching it",
					},
					&cli.StringFlag{
						Name:  "url",
						Usage: "Fetch this feed instead of the profile's",
					},
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Output file (default: stdout)",
					},
				},
				Action: preview,
			},
			{
				Name:  "state",
				Usage: "Inspect or reset the stored last link",
				Subcommands: []*cli.Command{
					{
						Name:   "show",
						Usage:  "Print the stored last link",
						Action: showState,
					},
					{
						Name:   "reset",
						Usage:  "Forget the stored link so the next run mails everything",
						Action: resetState,
					},
				},
			},
			{
				Name:  "profiles",
				Usage: "Work with feed profiles",
				Subcommands: []*cli.Command{
					{
						Name:   "list",
						Usage:  "List the configured and built-in profiles",
						Action: listProfiles,
					},
					{
						Name:  "export",
						Usage: "Export profile feeds to OPML",
						Flags: []cli.Flag{
							&cli.StringFlag{
								Name:    "output",
								Aliases: []string{"o"},
								Usage:   "Output file (default: stdout)",
							},
						},
						Action: exportOPML,
					},
					{
						Name:      "import",
						Usage:     "Turn an OPML subscription list into a profiles file",
						ArgsUsage: "<opml-file>",
						Flags: []cli.Flag{
							&cli.StringFlag{
								Name:    "output",
								Aliases: []string{"o"},
								Usage:   "Output file (default: stdout)",
							},
						},
						Action: importOPML,
					},
				},
			},
		},
	}
}

func loadEnvFile(c *cli.Context) error {
	path := c.String("env-file")
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return cli.Exit(fmt.Sprintf("Failed to load %s: %v", path, err), ExitUsageError)
	}
	return nil
}

func overrides(c *cli.Context) config.Overrides {
	return config.Overrides{
		ProfilesFile: c.String("profiles"),
		Profile:      c.String("profile"),
		StateBackend: c.String("state-backend"),
		StatePath:    c.String("state"),
		LogLevel:     c.String("log-level"),
		LogFile:      c.String("log-file"),
	}
}

// setup loads the configuration and builds the logger. The returned
// function flushes and closes the log output.
func setup(c *cli.Context) (*config.Config, *zap.Logger, func(), error) {
	cfg, err := config.Load(overrides(c), os.LookupEnv)
	if err != nil {
		return nil, nil, nil, cli.Exit(fmt.Sprintf("Invalid configuration: %v", err), ExitUsageError)
	}
	log, closer, err := logging.New(cfg.Log)
	if err != nil {
		return nil, nil, nil, cli.Exit(fmt.Sprintf("Failed to set up logging: %v", err), ExitUsageError)
	}
	return cfg, log, func() {
		_ = log.Sync()
		closer.Close()
	}, nil
}

func outputJSON(v interface{}) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

// openOutput returns stdout when path is empty.
func openOutput(path string) (io.WriteCloser, error) {
	if path == "" {
		return nopWriteCloser{os.Stdout}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create output file: %w", err)
	}
	return f, nil
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

func runOnce(c *cli.Context) error {
	if c.NArg() > 0 {
		return cli.Exit(fmt.Sprintf("Unknown command %q", c.Args().First()), ExitUsageError)
	}

	cfg, log, done, err := setup(c)
	if err != nil {
		return err
	}
	defer done()

	runner, state, err := pipeline.FromConfig(cfg, log)
	if err != nil {
		return cli.Exit(err.Error(), ExitDataError)
	}
	defer state.Close()

	if _, err := runner.Run(c.Context); err != nil {
		return cli.Exit(fmt.Sprintf("Run failed: %v", err), ExitGeneralError)
	}
	return nil
}

func preview(c *cli.Context) error {
	cfg, log, done, err := setup(c)
	if err != nil {
		return err
	}
	defer done()

	fetcher := feed.NewFetcher(cfg.FetchTimeout)

	var entries []model.Entry
	if path := c.String("file"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cli.Exit(fmt.Sprintf("Failed to read feed file: %v", err), ExitDataError)
		}
		entries, err = fetcher.Parse(string(data))
		if err != nil {
			return cli.Exit(fmt.Sprintf("Failed to parse feed: %v", err), ExitDataError)
		}
	} else {
		url := c.String("url")
		if url == "" {
			url = cfg.Profile.FeedURL
		}
		entries, err = fetcher.Fetch(c.Context, url)
		if err != nil {
			return cli.Exit(fmt.Sprintf("Failed to fetch feed: %v", err), ExitDataError)
		}
	}
	log.Info("rendering preview", zap.Int("entries", len(entries)))

	renderer, err := digest.New(cfg.Profile)
	if err != nil {
		return cli.Exit(err.Error(), ExitUsageError)
	}
	html, err := renderer.Render(entries)
	if err != nil {
		return cli.Exit(err.Error(), ExitGeneralError)
	}

	w, err := openOutput(c.String("output"))
	if err != nil {
		return cli.Exit(err.Error(), ExitDataError)
	}
	defer w.Close()

	if _, err := io.WriteString(w, html); err != nil {
		return cli.Exit(fmt.Sprintf("Failed to write preview: %v", err), ExitDataError)
	}
	return nil
}

func openState(c *cli.Context) (store.StateStore, *config.Config, error) {
	cfg, err := config.Load(overrides(c), os.LookupEnv)
	if err != nil {
		return nil, nil, cli.Exit(fmt.Sprintf("Invalid configuration: %v", err), ExitUsageError)
	}
	s, err := store.Open(cfg.State.Backend, cfg.State.Path, cfg.Profile.Name)
	if err != nil {
		return nil, nil, cli.Exit(err.Error(), ExitDataError)
	}
	return s, cfg, nil
}

func showState(c *cli.Context) error {
	s, cfg, err := openState(c)
	if err != nil {
		return err
	}
	defer s.Close()

	link, found, err := s.LastLink()
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed to read state: %v", err), ExitDataError)
	}

	return outputJSON(map[string]interface{}{
		"profile":   cfg.Profile.Name,
		"backend":   cfg.State.Backend,
		"path":      cfg.State.Path,
		"found":     found,
		"last_link": link,
	})
}

func resetState(c *cli.Context) error {
	s, cfg, err := openState(c)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.Reset(); err != nil {
		return cli.Exit(fmt.Sprintf("Failed to reset state: %v", err), ExitDataError)
	}

	return outputJSON(map[string]interface{}{
		"success": true,
		"profile": cfg.Profile.Name,
	})
}

func profilesFile(c *cli.Context) (*config.File, error) {
	path := c.String("profiles")
	if path == "" {
		return &config.File{}, nil
	}
	f, err := config.LoadFile(path, os.LookupEnv)
	if err != nil {
		return nil, cli.Exit(err.Error(), ExitUsageError)
	}
	return f, nil
}

func listProfiles(c *cli.Context) error {
	f, err := profilesFile(c)
	if err != nil {
		return err
	}

	type summary struct {
		Name    string     `json:"name"`
		FeedURL string     `json:"feed_url"`
		Mode    model.Mode `json:"mode"`
		Valid   bool       `json:"valid"`
		Error   string     `json:"error,omitempty"`
	}
	var out []summary
	for _, p := range f.AllProfiles() {
		s := summary{Name: p.Name, FeedURL: p.FeedURL, Mode: p.Mode, Valid: true}
		if err := p.Validate(); err != nil {
			s.Valid = false
			s.Error = err.Error()
		}
		out = append(out, s)
	}
	return outputJSON(out)
}

func exportOPML(c *cli.Context) error {
	f, err := profilesFile(c)
	if err != nil {
		return err
	}
	profiles := f.AllProfiles()

	outputPath := c.String("output")
	w, err := openOutput(outputPath)
	if err != nil {
		return cli.Exit(err.Error(), ExitDataError)
	}
	defer w.Close()

	if err := opml.Generate(w, profiles); err != nil {
		return cli.Exit(fmt.Sprintf("Failed to generate OPML: %v", err), ExitDataError)
	}

	// If outputting to file, also return JSON status
	if outputPath != "" {
		return outputJSON(map[string]interface{}{
			"success": true,
			"file":    outputPath,
			"count":   len(profiles),
		})
	}
	return nil
}

func importOPML(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.Exit("Usage: feed-push profiles import <opml-file>", ExitUsageError)
	}

	file, err := os.Open(c.Args().Get(0))
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed to open OPML file: %v", err), ExitDataError)
	}
	defer file.Close()

	profiles, err := opml.Parse(file)
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed to parse OPML: %v", err), ExitDataError)
	}

	w, err := openOutput(c.String("output"))
	if err != nil {
		return cli.Exit(err.Error(), ExitDataError)
	}
	defer w.Close()

	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	if err := encoder.Encode(config.File{Profiles: profiles}); err != nil {
		return cli.Exit(fmt.Sprintf("Failed to write profiles: %v", err), ExitDataError)
	}
	if err := encoder.Close(); err != nil {
		return cli.Exit(fmt.Sprintf("Failed to write profiles: %v", err), ExitDataError)
	}
	return nil
}
