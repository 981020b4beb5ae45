//go:build !windows

package config

import (
	"os"
	"path/filepath"
)

func configSearchPaths() []string {
	home, _ := os.UserHomeDir()
	return []string{
		filepath.Join(home, ".vikki", "vikki-agent.yaml"),
		"/etc/vikki/vikki-agent.yaml",
		"/etc/vikki/vikki-agent.toml",
		"/etc/vikki/vikki-agent.cfg",
	}
}
