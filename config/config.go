// Package config parses the streaming engine's key=value configuration
// file and resolves it into a GutteringSystem and the other knobs the
// engine needs, following the same fluent-setter-with-bounds-checking
// shape as the original GraphConfiguration this module replaces.
package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/sketchgraph/streamcc/gutter"
	"github.com/sketchgraph/streamcc/workerpool"
)

// GutterSystem names the recognized `buffering_system` values.
type GutterSystem string

const (
	Standalone GutterSystem = "standalone"
	Tree       GutterSystem = "tree"
	CacheTree  GutterSystem = "cachetree"
)

// Config holds the resolved, bounds-checked engine configuration.
type Config struct {
	GutterSys    GutterSystem
	DiskDir      string
	BackupInMem  bool
	NumGroups    int
	GroupSize    int
	GutterBufLen int
}

// Default returns the configuration the engine falls back to when no
// config file is supplied.
func Default() *Config {
	return &Config{
		GutterSys:    Standalone,
		DiskDir:      ".",
		BackupInMem:  true,
		NumGroups:    1,
		GroupSize:    1,
		GutterBufLen: 32,
	}
}

func (c *Config) WithGutterSys(g GutterSystem) *Config {
	c.GutterSys = g
	return c
}

func (c *Config) WithDiskDir(dir string) *Config {
	c.DiskDir = dir
	return c
}

func (c *Config) WithBackupInMem(v bool) *Config {
	c.BackupInMem = v
	return c
}

// WithNumGroups sets num_groups, defaulting to 1 with a logged warning if
// out of bounds, matching graph_configuration.cpp's own setter.
func (c *Config) WithNumGroups(n int) *Config {
	if n < 1 {
		log.Warn().Int("num_groups", n).Msg("num_groups is out of bounds, defaulting to 1")
		n = 1
	}
	c.NumGroups = n
	return c
}

// WithGroupSize sets group_size, defaulting to 1 with a logged warning if
// out of bounds, matching graph_configuration.cpp's own setter.
func (c *Config) WithGroupSize(n int) *Config {
	if n < 1 {
		log.Warn().Int("group_size", n).Msg("group_size is out of bounds, defaulting to 1")
		n = 1
	}
	c.GroupSize = n
	return c
}

// Parse reads a key=value configuration file. Unrecognized keys are
// logged and ignored rather than rejected, matching the original's
// forward-compatible parsing stance. Blank lines and lines starting with
// '#' are skipped.
func Parse(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: opening %s: %w", path, err)
	}
	defer f.Close()
	return ParseReader(f)
}

// ParseReader is Parse's io.Reader-based core, split out for testing
// without touching the filesystem.
func ParseReader(r io.Reader) (*Config, error) {
	c := Default()
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return nil, fmt.Errorf("config: line %d: expected key=value, got %q", lineNo, line)
		}
		key, value = strings.TrimSpace(key), strings.TrimSpace(value)
		if err := c.apply(key, value); err != nil {
			return nil, fmt.Errorf("config: line %d: %w", lineNo, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) apply(key, value string) error {
	switch key {
	case "buffering_system":
		switch GutterSystem(value) {
		case Standalone, Tree, CacheTree:
			c.WithGutterSys(GutterSystem(value))
		default:
			return fmt.Errorf("unrecognized buffering_system %q", value)
		}
	case "disk_dir":
		c.WithDiskDir(value)
	case "backup_in_mem":
		switch value {
		case "ON":
			c.WithBackupInMem(true)
		case "OFF":
			c.WithBackupInMem(false)
		default:
			return fmt.Errorf("backup_in_mem must be ON or OFF, got %q", value)
		}
	case "num_groups":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("num_groups: %w", err)
		}
		c.WithNumGroups(n)
	case "group_size":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("group_size: %w", err)
		}
		c.WithGroupSize(n)
	default:
		log.Warn().Str("key", key).Msg("config: unrecognized key, ignoring")
	}
	return nil
}

// WorkerPoolSize returns num_groups*group_size, the size of the shared
// worker pool the engine's gutter flushes and Borůvka sampling rounds
// both dispatch through.
func (c *Config) WorkerPoolSize() int {
	return c.NumGroups * c.GroupSize
}

// NewGuttering builds the GutteringSystem this configuration selects,
// over a graph of n vertices, dispatching flushes through pool. tree and
// cachetree are recognized but not implemented in this module (out of
// scope); both fall back to StandaloneGutters with a logged warning
// rather than failing, so a config file written for the original engine
// still parses and runs here.
func (c *Config) NewGuttering(n uint32, pool *workerpool.Pool) gutter.GutteringSystem {
	switch c.GutterSys {
	case Tree, CacheTree:
		log.Warn().Str("buffering_system", string(c.GutterSys)).
			Msg("disk-backed guttering is out of scope for this module; falling back to standalone")
	}
	return gutter.NewStandaloneGutters(n, c.GutterBufLen, pool)
}

// LogBanner prints the resolved configuration, mirroring the original's
// operator<< human-readable banner.
func (c *Config) LogBanner() {
	log.Info().Msg("GraphStreaming Configuration:")
	log.Info().Msgf(" Guttering system      = %s", c.GutterSys)
	log.Info().Msgf(" Number of groups      = %d", c.NumGroups)
	log.Info().Msgf(" Size of groups        = %d", c.GroupSize)
	log.Info().Msgf(" On disk data location = %s", c.DiskDir)
	backup := "OFF"
	if c.BackupInMem {
		backup = "ON"
	}
	log.Info().Msgf(" Backup sketch to RAM  = %s", backup)
}
