// Copyright 2025, the QuickAI contributors
// SPDX-License-Identifier: AGPL-3.0-only

package config

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"codeberg.org/quickai/quickai/core/audit"
)

const (
	responseDirPermissions = 0o700
	logFilePermissions     = 0o640

	logFormatJSON = "json"
)

// setupAudit points the global logger at the configured outputs and
// prepares the response dump directory.
func (cfg *ServerConfig) setupAudit() error {
	level := zerolog.InfoLevel
	if cfg.Development.InDevelopment {
		level = zerolog.DebugLevel
	} else if parsed, err := zerolog.ParseLevel(cfg.Log.Level); err == nil && cfg.Log.Level != "" {
		level = parsed
	}

	zerolog.SetGlobalLevel(level)

	outputs := cfg.Log.Outputs
	if len(outputs) == 0 {
		outputs = []string{"/dev/stderr"}
	}

	writers := make([]io.Writer, 0, len(outputs))

	for _, output := range outputs {
		w, err := openLogOutput(output, cfg.Log.Format)
		if err != nil {
			// the other outputs still work; report on stderr since logging is half set up
			fmt.Fprintf(os.Stderr, "Failed to open log output %s: %v\n", output, err)

			continue
		}

		writers = append(writers, w)
	}

	if len(writers) == 0 {
		writers = append(writers, ConsoleWriter(os.Stderr))
	}

	log.Logger = log.Output(zerolog.MultiLevelWriter(writers...))

	audit.SaveResponses = cfg.Development.SaveResponses
	audit.ResponseDirectory = cfg.Development.ResponseSaveLocation

	if audit.SaveResponses {
		if err := os.MkdirAll(audit.ResponseDirectory, responseDirPermissions); err != nil {
			return fmt.Errorf("creating response directory %s: %w", audit.ResponseDirectory, err)
		}
	}

	return nil
}

// openLogOutput returns the writer for one entry of log.outputs. "-" is
// stdout; anything that is not a standard stream is a file appended to.
func openLogOutput(output, format string) (io.Writer, error) {
	var f *os.File

	switch output {
	case "-", "/dev/stdout":
		f = os.Stdout
	case "/dev/stderr":
		f = os.Stderr
	default:
		file, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePermissions) // #nosec G304 -- path from config
		if err != nil {
			return nil, err
		}

		f = file
	}

	if format == logFormatJSON {
		return f, nil
	}

	return ConsoleWriter(f), nil
}

// ConsoleWriter is a human-readable zerolog writer, coloured only on terminals.
func ConsoleWriter(f *os.File) io.Writer {
	color := isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())

	w := zerolog.ConsoleWriter{Out: f, NoColor: !color, TimeFormat: time.DateTime}
	if color {
		w.FormatPrepare = compactSpanFields
	}

	return w
}

// compactSpanFields folds the fields of a request log into its message.
func compactSpanFields(m map[string]any) error {
	if m["sys"] != "http" {
		return nil
	}

	m["message"] = fmt.Sprintf("[%s] %v %-5s %s", m["destination"], m["status_code"], m["method"], m["url"])

	for _, k := range []string{"sys", "method", "status_code", "url", "destination", "request_id"} {
		delete(m, k)
	}

	return nil
}
