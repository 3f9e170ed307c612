package main

import (
	"github.com/jessevdk/go-flags"

	"github.com/sjawhar/ghost-tutor/internal/config"
)

// options are the command line flags. Flags win over the config file and the
// environment.
type options struct {
	Config   string `short:"c" long:"config" description:"path to the YAML config file" default:"config.yaml"`
	Addr     string `short:"a" long:"addr" description:"HTTP listen address"`
	LogLevel string `long:"log-level" description:"log level (debug, info, warn, error)"`
	User     string `long:"user" description:"learner name shown to the companion"`
}

func parseOptions(args []string) (*options, error) {
	opts := &options{}
	parser := flags.NewParser(opts, flags.HelpFlag|flags.PassDoubleDash)
	parser.Name = "ghost-tutor"
	if _, err := parser.ParseArgs(args); err != nil {
		return nil, err
	}
	return opts, nil
}

func (o *options) apply(cfg *config.Config) {
	if o.Addr != "" {
		cfg.Addr = o.Addr
	}
	if o.LogLevel != "" {
		cfg.LogLevel = o.LogLevel
	}
	if o.User != "" {
		cfg.User.Name = o.User
	}
}
