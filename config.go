package main

import (
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
	"gitlab.com/tozd/go/errors"
	"gopkg.in/yaml.v3"

	"github.com/monsterxx03/godump/pkg/minidump"
)

// config is the --config file. Flags override it.
type config struct {
	minidump.Options `yaml:",inline"`

	LogLevel string `yaml:"log_level"`
	Compress bool   `yaml:"compress"`
	Out      string `yaml:"out"`
}

func defaultConfig() config {
	return config{Options: minidump.DefaultOptions(), LogLevel: "info"}
}

func loadConfig(path string) (config, errors.E) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.WithStack(err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// fromContext loads the config file and applies the flags that were set.
func fromContext(c *cli.Context) (config, errors.E) {
	cfg, err := loadConfig(c.String("config"))
	if err != nil {
		return cfg, err
	}
	if c.IsSet("log-level") {
		cfg.LogLevel = c.String("log-level")
	}
	if c.IsSet("compress") {
		cfg.Compress = c.Bool("compress")
	}
	if c.IsSet("out") {
		cfg.Out = c.String("out")
	}
	if c.IsSet("max-stack-bytes") {
		cfg.MaxStackBytes = c.Uint64("max-stack-bytes")
	}
	if c.IsSet("max-rescans") {
		cfg.MaxRescans = c.Int("max-rescans")
	}
	if c.IsSet("skip-stream") {
		cfg.SkipStreams = c.StringSlice("skip-stream")
	}
	level, perr := log.ParseLevel(cfg.LogLevel)
	if perr != nil {
		return cfg, errors.WithStack(perr)
	}
	log.SetLevel(level)
	if verr := cfg.Validate(); verr != nil {
		return cfg, verr
	}
	return cfg, nil
}
