// Package home manages the chronicle home directory layout.
//
// The home directory is the default location for named chronicles and the
// CLI configuration. Chronicles opened by explicit path do not need it.
//
// Layout:
//
//	<root>/
//	  chronicle.yaml                   (optional CLI configuration)
//	  instance_id                      (persistent identity of this host)
//	  chronicles/
//	    <name>.data                    (record bytes)
//	    <name>.index                   (16-byte index slots)
//	    <name>.lock                    (writer lock, when enabled)
package home

import (
	"cmp"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Dir represents a chronicle home directory.
type Dir struct {
	root string
}

// New creates a Dir with an explicit root path.
func New(root string) Dir {
	return Dir{root: root}
}

// EnvVar overrides the default home location when set.
const EnvVar = "CHRONICLE_HOME"

// Default returns $CHRONICLE_HOME, or "chronicle" under os.UserConfigDir
// (~/.config on Linux, ~/Library/Application Support on macOS, %APPDATA% on
// Windows).
func Default() (Dir, error) {
	if root := os.Getenv(EnvVar); root != "" {
		return Dir{root: root}, nil
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return Dir{}, fmt.Errorf("locate user config directory: %w", err)
	}
	return Dir{root: filepath.Join(base, "chronicle")}, nil
}

func (d Dir) Root() string {
	return d.root
}

// ConfigPath returns the path to the optional YAML configuration file.
func (d Dir) ConfigPath() string {
	return filepath.Join(d.root, "chronicle.yaml")
}

func (d Dir) ChroniclesDir() string {
	return filepath.Join(d.root, "chronicles")
}

// ChroniclePath returns the base path for a named chronicle. A name that is
// already a path (absolute, or containing a separator) is returned as is.
func (d Dir) ChroniclePath(name string) string {
	if filepath.IsAbs(name) || strings.ContainsRune(name, filepath.Separator) {
		return name
	}
	return filepath.Join(d.ChroniclesDir(), name)
}

// EnsureExists creates the home and chronicles directories if needed.
func (d Dir) EnsureExists() error {
	if err := os.MkdirAll(d.ChroniclesDir(), 0o750); err != nil {
		return fmt.Errorf("create home directory %s: %w", d.root, err)
	}
	return nil
}

// InstanceID returns the UUIDv7 stored in <root>/instance_id, creating the
// file on first use. An unreadable or malformed file is replaced.
func (d Dir) InstanceID() (string, error) {
	p := filepath.Join(d.root, "instance_id")
	if data, err := os.ReadFile(p); err == nil { //nolint:gosec // G304: fixed name under the home dir
		if id, err := uuid.Parse(strings.TrimSpace(string(data))); err == nil {
			return id.String(), nil
		}
	}
	if err := os.MkdirAll(d.root, 0o750); err != nil {
		return "", fmt.Errorf("create home directory %s: %w", d.root, err)
	}
	id := uuid.Must(uuid.NewV7()).String()

	// Two processes racing here both rename a complete file; the loser's id
	// is used for its own run only.
	tmp, err := os.CreateTemp(d.root, ".instance_id-*")
	if err != nil {
		return "", fmt.Errorf("write instance id: %w", err)
	}
	_, werr := tmp.WriteString(id + "\n")
	cerr := tmp.Close()
	if err := cmp.Or(werr, cerr); err != nil {
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("write instance id: %w", err)
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("write instance id: %w", err)
	}
	return id, nil
}
