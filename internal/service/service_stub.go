//go:build !windows

// Package service runs the agent as a foreground process stopped by a
// signal. On Windows it also integrates with the Service Control Manager.
package service

import "go.uber.org/zap"

// AgentService runs the agent in the foreground on non-Windows platforms.
type AgentService struct {
	logger *zap.Logger
	run    RunFunc
}

func New(logger *zap.Logger, run RunFunc) *AgentService {
	return &AgentService{
		logger: logger,
		run:    run,
	}
}

// IsWindowsService always returns false on non-Windows platforms.
func IsWindowsService() bool {
	return false
}

// Run blocks until run returns or the process receives SIGINT or SIGTERM.
func (s *AgentService) Run() error {
	return runForeground(s.logger, s.run)
}
