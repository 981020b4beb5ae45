//go:build windows

// Package service runs the agent either under the Windows Service Control
// Manager or as a foreground process stopped by a signal.
package service

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sys/windows/svc"
)

const (
	serviceName = "VikkiAgent"
	stopTimeout = 10 * time.Second
)

// AgentService implements the Windows service interface (svc.Handler).
type AgentService struct {
	logger *zap.Logger
	run    RunFunc
}

// New creates a service wrapper around run.
func New(logger *zap.Logger, run RunFunc) *AgentService {
	return &AgentService{
		logger: logger,
		run:    run,
	}
}

// IsWindowsService checks if the process is running as a Windows service.
func IsWindowsService() bool {
	isService, err := svc.IsWindowsService()
	if err != nil {
		return false
	}
	return isService
}

// Run enters the SCM control loop when started by the service manager and
// runs in the foreground otherwise.
func (s *AgentService) Run() error {
	if !IsWindowsService() {
		return runForeground(s.logger, s.run)
	}
	s.logger.Info("Running as Windows service")
	return svc.Run(serviceName, s)
}

// Execute implements the svc.Handler interface for Windows SCM integration.
func (s *AgentService) Execute(args []string, r <-chan svc.ChangeRequest, changes chan<- svc.Status) (ssec bool, errno uint32) {
	changes <- svc.Status{State: svc.StartPending}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- s.run(ctx) }()

	changes <- svc.Status{
		State:   svc.Running,
		Accepts: svc.AcceptStop | svc.AcceptShutdown,
	}
	s.logger.Info("Windows service started")

	for {
		select {
		case err := <-done:
			if err != nil {
				s.logger.Error("Agent exited", zap.Error(err))
				return false, 1
			}
			return false, 0
		case c := <-r:
			switch c.Cmd {
			case svc.Interrogate:
				changes <- c.CurrentStatus
			case svc.Stop, svc.Shutdown:
				s.logger.Info("Windows service stopping")
				changes <- svc.Status{State: svc.StopPending}
				cancel()
				select {
				case <-done:
				case <-time.After(stopTimeout):
					s.logger.Warn("Agent did not stop in time")
				}
				return false, 0
			default:
				s.logger.Warn("Unexpected service control request",
					zap.Uint32("cmd", uint32(c.Cmd)))
			}
		}
	}
}
