package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

const recentFile = "recent.json"

// Context is the process-wide configuration state: the loaded settings and
// the recent-projects list. It is opened once, passed to the workspace and
// closed on shutdown; nothing in eiscore reads settings from globals.
type Context struct {
	cfg      Config
	stateDir string

	mu     sync.Mutex
	recent []string
	closed bool
}

// Open validates cfg, creates the state directory and loads the
// recent-projects list.
func Open(cfg Config) (*Context, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	dir := cfg.ResolvedStateDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}
	c := &Context{cfg: cfg, stateDir: dir}
	data, err := os.ReadFile(filepath.Join(dir, recentFile))
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read recent projects: %w", err)
	default:
		if err := json.Unmarshal(data, &c.recent); err != nil {
			return nil, fmt.Errorf("decode %s: %w", recentFile, err)
		}
		c.trim()
	}
	return c, nil
}

// Config returns the settings the context was opened with.
func (c *Context) Config() Config { return c.cfg }

// StateDir returns the resolved per-user state directory.
func (c *Context) StateDir() string { return c.stateDir }

// Recent returns the recent project locations, most recent first.
func (c *Context) Recent() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.recent...)
}

// Touch moves location to the front of the recent list.
func (c *Context) Touch(location string) {
	if location == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.remove(location)
	c.recent = append([]string{location}, c.recent...)
	c.trim()
}

// Forget removes location from the recent list.
func (c *Context) Forget(location string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.remove(location)
}

func (c *Context) remove(location string) {
	out := c.recent[:0]
	for _, l := range c.recent {
		if l != location {
			out = append(out, l)
		}
	}
	c.recent = out
}

func (c *Context) trim() {
	if len(c.recent) > c.cfg.Recent.Limit {
		c.recent = c.recent[:c.cfg.Recent.Limit]
	}
}

// Close persists the recent list. Closing twice is a no-op.
func (c *Context) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	data, err := json.MarshalIndent(c.recent, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(c.stateDir, ".recent-*")
	if err != nil {
		return fmt.Errorf("write recent projects: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write recent projects: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write recent projects: %w", err)
	}
	return os.Rename(tmp.Name(), filepath.Join(c.stateDir, recentFile))
}
