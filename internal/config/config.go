// Package config loads the chronicle tool's YAML configuration file.
//
// The file is optional. Every field has a default, and command line flags
// override what the file sets. Sizes accept units ("64M", "1GB") and are
// parsed with bytefmt.
package config

import (
	"bytes"
	"cmp"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"code.cloudfoundry.org/bytefmt"
	"gopkg.in/yaml.v3"

	"chronicle/internal/chronicle"
	"chronicle/internal/home"
	"chronicle/internal/logging"
)

var ErrInvalid = errors.New("invalid config")

// Config is the file schema.
type Config struct {
	// Path is the default chronicle base path. Relative names resolve
	// under the home directory's chronicles dir.
	Path string `yaml:"path"`

	DataSegmentSize  Size     `yaml:"data_segment_size"`
	IndexSegmentSize Size     `yaml:"index_segment_size"`
	MaxDataSize      Size     `yaml:"max_data_size"`
	MaxIndexSize     Size     `yaml:"max_index_size"`
	FileMode         FileMode `yaml:"file_mode"`
	WriterLock       bool     `yaml:"writer_lock"`

	// Wait is the reader wait strategy, see wait.Parse.
	Wait string `yaml:"wait"`

	Log     LogConfig     `yaml:"log"`
	Metrics MetricsConfig `yaml:"metrics"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	// Components overrides the level per component, e.g. mapped-region: debug.
	Components map[string]string `yaml:"components"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// Size is a byte count written with an optional unit.
type Size int64

func (s *Size) UnmarshalYAML(node *yaml.Node) error {
	v, err := ParseSize(node.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*s = v
	return nil
}

func (s Size) MarshalYAML() (any, error) {
	if s == 0 {
		return "0", nil
	}
	return bytefmt.ByteSize(uint64(s)), nil
}

func (s Size) String() string {
	if s <= 0 {
		return "0"
	}
	return bytefmt.ByteSize(uint64(s))
}

// ParseSize accepts a plain byte count or a number with a unit such as
// "512K", "64MB" or "1GiB".
func ParseSize(v string) (Size, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, nil
	}
	if n, err := strconv.ParseInt(v, 10, 64); err == nil {
		if n < 0 {
			return 0, fmt.Errorf("%w: negative size %q", ErrInvalid, v)
		}
		return Size(n), nil
	}
	n, err := bytefmt.ToBytes(v)
	if err != nil {
		return 0, fmt.Errorf("%w: size %q: %w", ErrInvalid, v, err)
	}
	if n > 1<<62 {
		return 0, fmt.Errorf("%w: size %q too large", ErrInvalid, v)
	}
	return Size(n), nil
}

// FileMode is an octal permission string such as "0640".
type FileMode os.FileMode

func (m *FileMode) UnmarshalYAML(node *yaml.Node) error {
	n, err := strconv.ParseUint(strings.TrimSpace(node.Value), 8, 32)
	if err != nil || n > 0o777 {
		return fmt.Errorf("line %d: %w: file mode %q", node.Line, ErrInvalid, node.Value)
	}
	*m = FileMode(n)
	return nil
}

// Load reads the file at path. A missing file yields the zero Config.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path comes from the operator
	if errors.Is(err, fs.ErrNotExist) {
		return Config{}, nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML. Unknown keys are rejected.
func Parse(data []byte) (Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if _, err := ParseLevel(cfg.Log.Level); err != nil {
		return Config{}, err
	}
	for comp, lvl := range cfg.Log.Components {
		if _, err := ParseLevel(lvl); err != nil {
			return Config{}, fmt.Errorf("log component %s: %w", comp, err)
		}
	}
	switch cfg.Log.Format {
	case "", "text", "json":
	default:
		return Config{}, fmt.Errorf("%w: log format %q", ErrInvalid, cfg.Log.Format)
	}
	return cfg, nil
}

// Chronicle builds the engine config for the chronicle named name, or for
// cfg.Path when name is empty.
func (cfg Config) Chronicle(hd home.Dir, name string, readOnly bool, logger *slog.Logger) (chronicle.Config, error) {
	name = cmp.Or(name, cfg.Path)
	if name == "" {
		return chronicle.Config{}, fmt.Errorf("%w: no chronicle path given", ErrInvalid)
	}
	id, err := hd.InstanceID()
	if err != nil {
		return chronicle.Config{}, err
	}
	return chronicle.Config{
		Path:             hd.ChroniclePath(name),
		DataSegmentSize:  int64(cfg.DataSegmentSize),
		IndexSegmentSize: int64(cfg.IndexSegmentSize),
		MaxDataSize:      int64(cfg.MaxDataSize),
		MaxIndexSize:     int64(cfg.MaxIndexSize),
		FileMode:         os.FileMode(cfg.FileMode),
		ReadOnly:         readOnly,
		WriterLock:       cfg.WriterLock && !readOnly,
		InstanceID:       id,
		Logger:           logger,
	}, nil
}

// ParseLevel accepts debug, info, warn and error. Empty means info.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(cmp.Or(s, "info"))); err != nil {
		return 0, fmt.Errorf("%w: log level %q", ErrInvalid, s)
	}
	return l, nil
}

// Apply sets the per-component levels on h. The default level is chosen
// when h is built.
func (lc LogConfig) Apply(h *logging.ComponentFilterHandler) error {
	for comp, s := range lc.Components {
		l, err := ParseLevel(s)
		if err != nil {
			return err
		}
		h.SetLevel(comp, l)
	}
	return nil
}
