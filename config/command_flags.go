// Copyright 2025, the QuickAI contributors
// SPDX-License-Identifier: AGPL-3.0-only

package config

import (
	"errors"
	"flag"
	"os"
)

const (
	configFlag    = "config"
	configFileEnv = "QUICKAI_CONFIGFILE"
	altConfigPath = "./config.yml"
)

// configFilePath picks the YAML file to load: the -config flag when given,
// then QUICKAI_CONFIGFILE, then ./config.yaml or ./config.yml, whichever
// exists.
func configFilePath() string {
	if flag.Lookup(configFlag) == nil {
		flag.String(configFlag, defaultConfigFilePath, "Path to a QuickAI configuration file in YAML format.")
	}

	if !flag.Parsed() {
		flag.Parse()
	}

	var fromFlag string

	flag.Visit(func(f *flag.Flag) {
		if f.Name == configFlag {
			fromFlag = f.Value.String()
		}
	})

	switch {
	case fromFlag != "":
		return fromFlag
	case os.Getenv(configFileEnv) != "":
		return os.Getenv(configFileEnv)
	}

	if _, err := os.Stat(defaultConfigFilePath); errors.Is(err, os.ErrNotExist) {
		if _, err := os.Stat(altConfigPath); err == nil {
			return altConfigPath
		}
	}

	return defaultConfigFilePath
}
