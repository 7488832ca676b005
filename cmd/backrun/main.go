// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// backrun is a thin CLI shell around config.Load; everything the core
// does at start-up (pool loading, market graph construction, the
// search/compose/broadcast pipeline) is wired by the actor supervisor,
// not by this package (spec.md: "CLI & env: out of scope").
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/luxfi/backrun/config"
	"github.com/luxfi/backrun/log"
)

const clientIdentifier = "backrun"

var app = &cli.App{
	Name:    clientIdentifier,
	Usage:   "MEV backrun engine - arbitrage search and bundle broadcast",
	Version: config.Version,
}

func init() {
	app.Action = runBackrun
	app.Flags = []cli.Flag{
		&cli.StringFlag{Name: "config-file", Usage: "path to the TOML config file"},
		&cli.StringFlag{Name: "log-level", Value: "info", Usage: "log level (trace|debug|info|warn|error)"},
		&cli.StringFlag{Name: "log-file", Usage: "optional rotating log file path"},
	}
}

func main() {
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runBackrun(ctx *cli.Context) error {
	if err := setupLogging(ctx.String("log-level"), ctx.String("log-file")); err != nil {
		return fmt.Errorf("backrun: configuring logging: %w", err)
	}

	var args []string
	if path := ctx.String("config-file"); path != "" {
		args = append(args, "--config-file="+path)
	}

	cfg, err := config.Load(args)
	if err != nil {
		return fmt.Errorf("backrun: loading config: %w", err)
	}

	logger := log.New("component", "cmd/backrun")
	logger.Info("resolved configuration",
		"nodeRPCURL", cfg.Topology.NodeRPCURL,
		"relays", len(cfg.Topology.RelayURLs),
		"maxPathHops", cfg.Topology.MaxPathHops,
		"poolLoaderThreads", cfg.PoolsLoading.Threads,
		"smartSigning", cfg.BackrunStrategy.Smart,
	)
	logger.Info("backrun config resolved; pipeline construction (actor supervisor wiring) is left to the embedding process")
	return nil
}
