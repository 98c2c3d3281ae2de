// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/poiesic/marginalia"
	"github.com/poiesic/marginalia/ai"
	"github.com/poiesic/marginalia/config"
	"github.com/urfave/cli/v2"
)

func main() {
	if err := newApp(&runner{}).Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// runner carries state from the Before hook into command actions.
type runner struct {
	cfg *config.Config
	// provider replaces the configured AI provider when set.
	provider ai.AIProvider
}

func newApp(r *runner) *cli.App {
	return &cli.App{
		Name:  "marginalia",
		Usage: "Ask questions about the documents in your reading library",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to YAML config file (default ./marginalia.yaml, then the user config dir)",
			},
			&cli.StringFlag{
				Name:  "env-file",
				Usage: "Path to a .env file with MARGINALIA_* variables",
				Value: ".env",
			},
			&cli.StringFlag{
				Name:    "data",
				Aliases: []string{"d"},
				Usage:   "Data directory (overrides storage.dir)",
			},
		},
		Before: func(c *cli.Context) error {
			if err := setupLogger(c); err != nil {
				return err
			}
			return r.loadConfig(c)
		},
		Commands: []*cli.Command{
			{
				Name:      "seed",
				Usage:     "Load .txt files into the library as documents",
				ArgsUsage: "FILE...",
				Action:    r.seedCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "user",
						Aliases:  []string{"u"},
						Usage:    "Owner of the seeded documents",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "author",
						Usage: "Author recorded on every seeded document",
					},
				},
			},
			{
				Name:   "index",
				Usage:  "Rebuild the concept index",
				Action: r.indexCommand,
			},
			{
				Name:      "ask",
				Usage:     "Ask a question about your reading",
				ArgsUsage: "QUESTION",
				Action:    r.askCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "user",
						Aliases:  []string{"u"},
						Usage:    "User asking the question",
						Required: true,
					},
					&cli.Uint64Flag{
						Name:  "document",
						Usage: "ID of the currently open document",
					},
					&cli.StringFlag{
						Name:  "chapter",
						Usage: "Currently open chapter",
					},
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of sources",
						Value: 10,
					},
					&cli.Float64Flag{
						Name:  "threshold",
						Usage: "Minimum relevance score in [0,1]",
						Value: 0.5,
					},
					&cli.StringSliceFlag{
						Name:  "source",
						Usage: "Source types to search (document, annotation, memory)",
					},
					&cli.BoolFlag{
						Name:  "concepts",
						Usage: "Build the concept index first to narrow the search",
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Print the response as JSON",
					},
				},
			},
			{
				Name:   "reembed",
				Usage:  "Precompute embedded fragments for every document",
				Action: r.reembedCommand,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "force",
						Usage: "Re-embed documents whose fragments are current",
					},
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "Number of documents to process in each batch",
						Value: 20,
					},
					&cli.IntFlag{
						Name:  "report-interval",
						Usage: "Report progress every N documents",
						Value: 20,
					},
					&cli.IntFlag{
						Name:  "max-retries",
						Usage: "Maximum retry attempts for failed operations",
						Value: 3,
					},
					&cli.DurationFlag{
						Name:  "retry-delay",
						Usage: "Base delay for exponential backoff",
						Value: 1 * time.Second,
					},
				},
			},
			{
				Name:  "cache",
				Usage: "Inspect and maintain the query cache",
				Subcommands: []*cli.Command{
					{
						Name:   "stats",
						Usage:  "Show cache size and usage",
						Action: r.cacheStatsCommand,
					},
					{
						Name:   "compact",
						Usage:  "Remove expired entries and enforce the size bound",
						Action: r.cacheCompactCommand,
					},
					{
						Name:   "invalidate",
						Usage:  "Drop cached answers for a user's document",
						Action: r.cacheInvalidateCommand,
						Flags: []cli.Flag{
							&cli.StringFlag{
								Name:     "user",
								Aliases:  []string{"u"},
								Usage:    "Owner of the cached queries",
								Required: true,
							},
							&cli.Uint64Flag{
								Name:     "document",
								Usage:    "Document whose cached answers are dropped",
								Required: true,
							},
						},
					},
				},
			},
		},
	}
}

func (r *runner) loadConfig(c *cli.Context) error {
	if err := config.LoadEnv(c.String("env-file")); err != nil {
		return err
	}
	path := c.String("config")
	if path == "" {
		path = config.DefaultPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	if dir := c.String("data"); dir != "" {
		cfg.Storage.Dir = dir
	}
	r.cfg = cfg
	slog.Debug("configuration loaded", "path", path, "data", cfg.Storage.Dir, "cache_backend", cfg.Storage.CacheBackend)
	return nil
}

func (r *runner) open(extra ...marginalia.Option) (*marginalia.Database, error) {
	opts := []marginalia.Option{marginalia.WithConfig(r.cfg)}
	if r.provider != nil {
		opts = append(opts, marginalia.WithProvider(r.provider))
	}
	db, err := marginalia.Open(r.cfg.Storage.Dir, append(opts, extra...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to open data directory %s: %w", r.cfg.Storage.Dir, err)
	}
	return db, nil
}

func setupLogger(c *cli.Context) error {
	levelStr := strings.ToLower(c.String("log-level"))

	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}
