// (c) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"io"
	"log/slog"
	"os"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/luxfi/backrun/log"
)

// setupLogging builds the root logger: a colorized terminal writer when
// stderr is a TTY, plain stderr otherwise, optionally teed to a rotating
// file when logFile is set. Mirrors cmd/evm-node's app.Before setup.
func setupLogging(level string, logFile string) error {
	lvl, err := log.LvlFromString(level)
	if err != nil {
		return err
	}

	var w io.Writer
	useColor := isatty.IsTerminal(os.Stderr.Fd())
	if useColor {
		w = colorable.NewColorableStderr()
	} else {
		w = os.Stderr
	}

	if logFile != "" {
		w = io.MultiWriter(w, &lumberjack.Logger{
			Filename:   logFile,
			MaxSize:    100,
			MaxBackups: 5,
			MaxAge:     28,
			Compress:   true,
		})
	}

	handler := slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl})
	log.SetDefault(log.NewLogger(handler))
	return nil
}
