package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"

	"github.com/hashicorp/go-multierror"
	"github.com/metroloop/metroloop/internal/config"
	"github.com/metroloop/metroloop/internal/daemon"
	"github.com/metroloop/metroloop/internal/scheduler"
	"github.com/metroloop/metroloop/internal/server"
	"github.com/metroloop/metroloop/pkg/logger"
)

// DaemonComponents holds everything a running daemon owns.
type DaemonComponents struct {
	Config    *config.Config
	Scheduler *scheduler.Scheduler
	Server    *server.Server
	Runner    *daemon.Runner
}

// initDaemonComponents builds the scheduler, server and runner for cfg.
// onListen is handed to the runner. The scheduler lives until Close.
var initDaemonComponents = func(cfg *config.Config, log logger.Logger, onListen func(net.Addr)) (*DaemonComponents, error) {
	defaults, err := cfg.Settings()
	if err != nil {
		return nil, fmt.Errorf("invalid default settings: %w", err)
	}

	sched, err := scheduler.New(context.Background(), scheduler.Config{
		PollInterval: cfg.PollInterval.D(),
		Lookahead:    cfg.Lookahead.D(),
		Logger:       logger.Named(log, "scheduler"),
	})
	if err != nil {
		log.Error("Scheduler initialization failed: %v", err)
		return nil, err
	}

	serv := server.New(sched, server.Config{
		Secret:         cfg.Secret,
		AllowedOrigins: cfg.AllowedOrigins,
		Defaults:       defaults,
		Version:        currentBuildArgs.Version,
		Commit:         currentBuildArgs.Commit,
		BuildType:      currentBuildArgs.BuildType,
		Logger:         logger.Named(log, "server"),
	})

	runner := daemon.New(&daemon.Config{
		Host:            cfg.Listen,
		Port:            cfg.Port,
		MaxConns:        cfg.MaxConns,
		ShutdownTimeout: cfg.ShutdownTimeout.D(),
	}, &daemon.Dependencies{
		OnListen: onListen,
		Serve: func(ctx context.Context, l net.Listener) error {
			go serv.Run(ctx)
			return serv.Serve(l)
		},
		ShutdownFunc: func() error {
			ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout.D())
			defer cancel()
			return serv.Shutdown(ctx)
		},
	})

	return &DaemonComponents{
		Config:    cfg,
		Scheduler: sched,
		Server:    serv,
		Runner:    runner,
	}, nil
}

// Close shuts the runner down if it is still up and stops the scheduler.
func (c *DaemonComponents) Close() error {
	var result *multierror.Error
	if c.Runner != nil {
		if err := c.Runner.Shutdown(); err != nil && !errors.Is(err, daemon.ErrNotRunning) {
			result = multierror.Append(result, fmt.Errorf("runner shutdown: %w", err))
		}
	}
	if c.Scheduler != nil {
		c.Scheduler.Close()
	}
	return result.ErrorOrNil()
}

// runDaemon serves until ctx is canceled or the server fails. ready, if
// non-nil, is called with the bound address once the daemon accepts
// connections. The PID file exists for exactly that period.
func runDaemon(ctx context.Context, cfg *config.Config, log logger.Logger, ready func(net.Addr)) error {
	pidFile := daemonPidFile()
	if err := pidFile.Claim(); err != nil {
		return err
	}

	listening := make(chan net.Addr, 1)
	comps, err := initDaemonComponents(cfg, log, func(addr net.Addr) { listening <- addr })
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- comps.Runner.Start(context.Background())
	}()

	var result *multierror.Error
	select {
	case err := <-errCh:
		// The listener could not be bound.
		result = multierror.Append(result, err)
	case addr := <-listening:
		if err := pidFile.Write(os.Getpid()); err != nil {
			log.Warning("Failed to write PID file: %v", err)
		}
		log.Info("Daemon listening on %s", addr)
		if ready != nil {
			ready(addr)
		}

		select {
		case <-ctx.Done():
			log.Info("Shutting down daemon...")
			if err := comps.Runner.Shutdown(); err != nil {
				result = multierror.Append(result, err)
			}
			if err := <-errCh; err != nil && !errors.Is(err, context.Canceled) {
				result = multierror.Append(result, err)
			}
		case err := <-errCh:
			if err == nil {
				err = errors.New("server exited")
			}
			result = multierror.Append(result, fmt.Errorf("server stopped: %w", err))
		}
		if err := pidFile.Remove(); err != nil {
			result = multierror.Append(result, err)
		}
	}

	if err := comps.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	if result.ErrorOrNil() == nil {
		log.Info("Daemon stopped")
	}
	return result.ErrorOrNil()
}
