// Package config loads and persists ippd's TOML configuration, and derives
// the spool/log/data directories described in spec.md §6 ("Persisted state
// layout").
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/BurntSushi/toml"
)

// GetConfigSearchPaths returns an ordered list of candidate paths for a
// config filename, highest priority first: system dir, user dir, executable
// dir, then the current working directory.
func GetConfigSearchPaths(filename string) []string {
	var paths []string

	switch runtime.GOOS {
	case "windows":
		paths = append(paths, filepath.Join(os.Getenv("ProgramData"), "ippd", filename))
	case "darwin":
		paths = append(paths, filepath.Join("/Library/Application Support/ippd", filename))
	default:
		paths = append(paths, filepath.Join("/etc/ippd", filename))
	}

	if home, err := os.UserHomeDir(); err == nil {
		switch runtime.GOOS {
		case "windows":
			paths = append(paths, filepath.Join(home, "AppData", "Local", "ippd", filename))
		case "darwin":
			paths = append(paths, filepath.Join(home, "Library", "Application Support", "ippd", filename))
		default:
			paths = append(paths, filepath.Join(home, ".config", "ippd", filename))
		}
	}

	if exe, err := os.Executable(); err == nil {
		paths = append(paths, filepath.Join(filepath.Dir(exe), filename))
	}

	paths = append(paths, filepath.Join(".", filename))
	return paths
}

// FindConfigFile searches GetConfigSearchPaths and returns the first path
// that exists, along with its contents.
func FindConfigFile(filename string) (string, []byte, error) {
	for _, path := range GetConfigSearchPaths(filename) {
		if data, err := os.ReadFile(path); err == nil {
			return path, data, nil
		}
	}
	return "", nil, fmt.Errorf("%s not found in any search path", filename)
}

// File mirrors spec.md's System attributes that are operator-configurable
// (as opposed to runtime state): names, network binding, spool/log sinks,
// and limits.
type File struct {
	SystemName   string `toml:"system_name"`
	DNSSDName    string `toml:"dnssd_name"`
	Hostname     string `toml:"hostname"`
	Port         int    `toml:"port"`
	SpoolDir     string `toml:"spool_dir"`
	LogDir       string `toml:"log_dir"`
	LogLevel     string `toml:"log_level"`
	AdminGroup   string `toml:"admin_group"`
	TLSCertFile  string `toml:"tls_cert_file"`
	TLSKeyFile   string `toml:"tls_key_file"`

	MaxActiveJobs    int `toml:"max_active_jobs"`
	MaxCompletedJobs int `toml:"max_completed_jobs"`
	MaxPreservedJobs int `toml:"max_preserved_jobs"`

	Printers []PrinterFile `toml:"printers"`
}

// PrinterFile is a single statically-configured printer entry; printers may
// also be created at runtime via Create-Printer.
type PrinterFile struct {
	Name      string `toml:"name"`
	DeviceURI string `toml:"device_uri"`
	Driver    string `toml:"driver"`
}

// Default returns a File populated with the same defaults the teacher's
// agent used for its own config (OS-appropriate data directories, sensible
// retention limits).
func Default() File {
	return File{
		SystemName:       "ippd",
		Port:             8631,
		LogLevel:         "INFO",
		MaxActiveJobs:    0,
		MaxCompletedJobs: 100,
		MaxPreservedJobs: 20,
	}
}

// Load reads and decodes a TOML config file.
func Load(path string) (File, error) {
	cfg := Default()
	if _, err := os.Stat(path); err != nil {
		return cfg, fmt.Errorf("config file not found: %w", err)
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file: %w", err)
	}
	return cfg, nil
}

// WriteDefault writes cfg to path if no file exists there yet; it never
// overwrites an existing config.
func WriteDefault(path string, cfg File) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(cfg)
}

// SpoolDirectory returns the configured spool directory, or the per-process
// default "$TMPDIR/ippd<pid>.d" from spec.md §6 with mode 0700.
func SpoolDirectory(cfg File) (string, error) {
	dir := cfg.SpoolDir
	if dir == "" {
		dir = filepath.Join(os.TempDir(), fmt.Sprintf("ippd%d.d", os.Getpid()))
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", fmt.Errorf("failed to create spool directory: %w", err)
	}
	return dir, nil
}

// LogDirectory returns the configured log directory, creating it if needed.
// An empty LogDir means "log to stderr only".
func LogDirectory(cfg File) (string, error) {
	if cfg.LogDir == "" {
		return "", nil
	}
	if err := os.MkdirAll(cfg.LogDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create log directory: %w", err)
	}
	return cfg.LogDir, nil
}
