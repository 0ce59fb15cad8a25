// Package runtime holds the client's configuration and the composition-root
// value threaded through constructors in place of package-level globals.
//
// Config follows the teacher's flat internal/config/config.go shape: nested
// JSON sub-structs, a Default() constructor, and Validate/Load/Save/Ensure
// free functions layered on top.
package runtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/petervdpas/substrata-client/internal/util"
)

// Config is the client's persisted configuration.
type Config struct {
	Server    Server    `json:"server"`
	Paths     Paths     `json:"paths"`
	World     World     `json:"world"`
	Workers   Workers   `json:"workers"`
	Lua       Lua       `json:"lua"`
	Voice     Voice     `json:"voice"`
	Control   Control   `json:"control"`
	Identity  Identity  `json:"identity"`
}

type Server struct {
	Addr        string `json:"addr"`
	WorldName   string `json:"world_name"`
	InsecureTLS bool   `json:"insecure_tls"`
}

type Paths struct {
	DataDir string `json:"data_dir"`
}

type World struct {
	LoadDistance float64 `json:"load_distance"`
}

type Workers struct {
	DownloadWorkers int `json:"download_workers"`
	UploadWorkers   int `json:"upload_workers"`

	// MaxConcurrentDownloads bounds the rate at which the download worker
	// pool starts new per-URL fetches (spec §4.G/§5 backpressure:
	// "max_num_concurrent_downloads (default 10 ...)").
	MaxConcurrentDownloads int `json:"max_concurrent_downloads"`
}

type Lua struct {
	MaxMemoryMB    int           `json:"max_memory_mb"`
	MaxExecTimeSec int           `json:"max_exec_time_sec"`
	maxExecTime    time.Duration // derived, not serialised
}

type Voice struct {
	Enabled   bool   `json:"enabled"`
	LocalAddr string `json:"local_addr"`
}

type Control struct {
	Enabled bool `json:"enabled"`
	Port    int  `json:"port"`
}

type Identity struct {
	Username string `json:"username"`
}

// MaxExecTime returns the Lua per-call execution timeout as a Duration.
func (l Lua) MaxExecTime() time.Duration {
	if l.maxExecTime != 0 {
		return l.maxExecTime
	}
	return time.Duration(l.MaxExecTimeSec) * time.Second
}

// Default returns the client's baseline configuration.
func Default() Config {
	return Config{
		Server: Server{
			Addr:        "localhost:7600",
			WorldName:   "",
			InsecureTLS: false,
		},
		Paths: Paths{
			DataDir: defaultDataDir(),
		},
		World: World{
			LoadDistance: 500.0,
		},
		Workers: Workers{
			DownloadWorkers:        4,
			UploadWorkers:          2,
			MaxConcurrentDownloads: 10,
		},
		Lua: Lua{
			MaxMemoryMB:    64,
			MaxExecTimeSec: 2,
		},
		Voice: Voice{
			Enabled:   true,
			LocalAddr: ":0",
		},
		Control: Control{
			Enabled: false,
			Port:    34534,
		},
		Identity: Identity{
			Username: "",
		},
	}
}

func defaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "substrata-client")
	}
	return "./substrata-data"
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Server.Addr) == "" {
		return errors.New("server.addr is required")
	}
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		return errors.New("paths.data_dir is required")
	}
	if c.World.LoadDistance <= 0 {
		return errors.New("world.load_distance must be > 0")
	}
	if c.Workers.DownloadWorkers <= 0 {
		return errors.New("workers.download_workers must be > 0")
	}
	if c.Workers.UploadWorkers <= 0 {
		return errors.New("workers.upload_workers must be > 0")
	}
	if c.Workers.MaxConcurrentDownloads <= 0 {
		return errors.New("workers.max_concurrent_downloads must be > 0")
	}
	if c.Lua.MaxMemoryMB < 0 {
		return errors.New("lua.max_memory_mb must be >= 0")
	}
	if c.Lua.MaxExecTimeSec <= 0 {
		return errors.New("lua.max_exec_time_sec must be > 0")
	}
	if c.Control.Enabled && (c.Control.Port <= 0 || c.Control.Port > 65535) {
		return errors.New("control.port must be 1..65535 when control.enabled")
	}
	return nil
}

// Load reads and validates a Config from path, starting from Default() so
// missing JSON fields remain initialized.
func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	cfg := Default()
	if err := json.Unmarshal(b, &cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Save validates and writes cfg to path as JSON.
func Save(path string, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	return util.WriteJSONFile(path, cfg)
}

// Ensure loads the config at path if it exists, otherwise writes and returns
// a default one. Returns (cfg, createdNew, err).
func Ensure(path string) (Config, bool, error) {
	if _, err := os.Stat(path); err == nil {
		cfg, err := Load(path)
		return cfg, false, err
	} else if !os.IsNotExist(err) {
		return Config{}, false, err
	}

	cfg := Default()
	if err := Save(path, cfg); err != nil {
		return Config{}, false, fmt.Errorf("create default config: %w", err)
	}
	return cfg, true, nil
}
