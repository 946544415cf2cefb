// Package config resolves AtomKV's runtime configuration. There is no flag
// surface (spec.md §6: "no flags in the specified surface"); configuration
// is the documented defaults, optionally overridden by environment
// variables, themselves optionally loaded from a .env file the way
// small-frappuccino-discordcore loads one at startup via
// github.com/joho/godotenv. A bare binary with no .env and no environment
// behaves exactly per spec.md's defaults.
package config

import (
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

const (
	DefaultTCPAddr   = ":6379"
	DefaultHTTPAddr  = ":8080"
	DefaultCapacity  = 10000
	DefaultAOFRelDir = ".atomkv"
	DefaultAOFFile   = "appendonly.aof"
	SweepInterval    = "1s"
)

// Config is the fully resolved set of knobs the server wires up.
type Config struct {
	TCPAddr  string
	HTTPAddr string
	Capacity int
	AOFPath  string
	DataDir  string
}

// Load resolves configuration from (in increasing priority) compiled-in
// defaults, a .env file in the working directory if present, and the
// process environment.
func Load(log *logrus.Logger) (Config, error) {
	// godotenv.Load is a no-op-with-error if no .env file is present; that
	// error is expected and intentionally ignored, matching how
	// discordcore treats a missing .env as "use ambient environment".
	if err := godotenv.Load(); err != nil && log != nil {
		log.WithError(err).Debug("no .env file loaded; using process environment and defaults")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	dataDir := filepath.Join(home, DefaultAOFRelDir)

	cfg := Config{
		TCPAddr:  DefaultTCPAddr,
		HTTPAddr: DefaultHTTPAddr,
		Capacity: DefaultCapacity,
		DataDir:  dataDir,
		AOFPath:  filepath.Join(dataDir, DefaultAOFFile),
	}

	if v := os.Getenv("ATOMKV_TCP_ADDR"); v != "" {
		cfg.TCPAddr = v
	}
	if v := os.Getenv("ATOMKV_HTTP_ADDR"); v != "" {
		cfg.HTTPAddr = v
	}
	if v := os.Getenv("ATOMKV_CAPACITY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Capacity = n
		}
	}
	if v := os.Getenv("ATOMKV_AOF_PATH"); v != "" {
		cfg.AOFPath = v
		cfg.DataDir = filepath.Dir(v)
	}

	return cfg, nil
}
