package main

import (
	"cmp"
	"fmt"
	"log/slog"
	"os"

	"chronicle/internal/chronicle"
	"chronicle/internal/config"
	"chronicle/internal/home"

	"github.com/spf13/cobra"
)

// env is the state every subcommand shares: home directory, merged
// configuration and the base logger.
type env struct {
	home   home.Dir
	cfg    config.Config
	logger *slog.Logger
	out    *printer
}

func newEnv(cmd *cobra.Command) (*env, error) {
	hd, err := home.Default()
	if root, _ := cmd.Flags().GetString("home"); root != "" {
		hd, err = home.New(root), nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolve home directory: %w", err)
	}

	cfgFlag, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cmp.Or(cfgFlag, hd.ConfigPath()))
	if err != nil {
		return nil, err
	}

	levelFlag, _ := cmd.Flags().GetString("log-level")
	level, err := config.ParseLevel(cmp.Or(levelFlag, cfg.Log.Level))
	if err != nil {
		return nil, err
	}
	formatFlag, _ := cmd.Flags().GetString("log-format")
	logger, filter := newBaseLogger(os.Stderr, cmp.Or(formatFlag, cfg.Log.Format), level)
	if err := cfg.Log.Apply(filter); err != nil {
		return nil, err
	}

	for flag, dst := range map[string]*config.Size{
		"data-segment-size":  &cfg.DataSegmentSize,
		"index-segment-size": &cfg.IndexSegmentSize,
	} {
		v, _ := cmd.Flags().GetString(flag)
		if v == "" {
			continue
		}
		size, err := config.ParseSize(v)
		if err != nil {
			return nil, fmt.Errorf("--%s: %w", flag, err)
		}
		*dst = size
	}

	output, _ := cmd.Flags().GetString("output")
	out, err := newPrinter(output, cmd.OutOrStdout())
	if err != nil {
		return nil, err
	}
	return &env{
		home:   hd,
		cfg:    cfg,
		logger: logger,
		out:    out,
	}, nil
}

// open opens the chronicle named by the first argument, or the config
// file's default path.
func (e *env) open(args []string, readOnly bool) (*chronicle.Chronicle, error) {
	cc, err := e.chronicleConfig(args, readOnly)
	if err != nil {
		return nil, err
	}
	return chronicle.Open(cc)
}

func (e *env) chronicleConfig(args []string, readOnly bool) (chronicle.Config, error) {
	if err := e.home.EnsureExists(); err != nil {
		return chronicle.Config{}, err
	}
	var name string
	if len(args) > 0 {
		name = args[0]
	}
	return e.cfg.Chronicle(e.home, name, readOnly, e.logger)
}
