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
	"io"
	"log"
	"log/slog"
	"os"
	"strings"

	"github.com/poiesic/corpora"
	"github.com/poiesic/corpora/config"
	"github.com/urfave/cli/v2"
)

var version = "dev"

// opener returns a System for one command and the function that releases it.
type opener func(c *cli.Context) (*corpora.System, func() error, error)

func main() {
	if err := newApp(openSystem).Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp(open opener) *cli.App {
	return &cli.App{
		Name:    "corpora",
		Usage:   "Document collections with hybrid retrieval and grounded answers",
		Version: version,
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
				Usage:   "Path to the TOML config file",
				EnvVars: []string{"CORPORA_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "db",
				Aliases: []string{"d"},
				Usage:   "Path to the BadgerDB directory (overrides store.path)",
			},
			&cli.StringFlag{
				Name:  "blobs",
				Usage: "Blob store root URL (overrides blobs.root)",
			},
			&cli.StringFlag{
				Name:  "ai-host",
				Usage: "OpenAI-compatible host for every model service (overrides ai.host)",
			},
		},
		Before:   setupLogger,
		Commands: commands(open),
	}
}

func setupLogger(c *cli.Context) error {
	var level slog.Level
	switch levelStr := strings.ToLower(c.String("log-level")); levelStr {
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
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	return nil
}

// loadConfig reads the config file, if any, and applies flag overrides.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg := config.Default()
	if path := c.String("config"); path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return nil, err
		}
	}
	if v := c.String("db"); v != "" {
		cfg.Store.Path = v
	}
	if v := c.String("blobs"); v != "" {
		cfg.Blobs.Root = v
	}
	if v := c.String("ai-host"); v != "" {
		cfg.AI.Host = v
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func openSystem(c *cli.Context) (*corpora.System, func() error, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, nil, err
	}
	sys, err := corpora.Open(cfg, corpora.WithLogger(slog.Default()))
	if err != nil {
		return nil, nil, err
	}
	return sys, sys.Close, nil
}

// withSystem runs fn against an open System and releases it afterwards.
func withSystem(open opener, fn func(c *cli.Context, sys *corpora.System) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		sys, release, err := open(c)
		if err != nil {
			return err
		}
		defer func() {
			if err := release(); err != nil {
				slog.Error("error closing system", "err", err)
			}
		}()
		return fn(c, sys)
	}
}

func out(c *cli.Context) io.Writer {
	if c.App.Writer != nil {
		return c.App.Writer
	}
	return os.Stdout
}
