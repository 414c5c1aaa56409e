package cmd

import (
	"log"
	"os"

	cmdcommon "github.com/metroloop/metroloop/cmd/common"
	"github.com/metroloop/metroloop/internal/config"
	"github.com/metroloop/metroloop/pkg/logger"
	"github.com/urfave/cli"
)

var daemonFlags = []cli.Flag{
	cli.StringFlag{
		Name:  "listen, l",
		Usage: "interface to listen on (default: 127.0.0.1)",
	},
	cli.IntFlag{
		Name:  "max-conns",
		Usage: "maximum number of concurrent connections, 0 for no limit",
	},
	cli.StringFlag{
		Name:  "log-file",
		Usage: "also append daemon logs to this file",
	},
	cli.BoolFlag{
		Name:  "debug, d",
		Usage: "log debug messages",
	},
}

// daemonConfig loads the configuration and applies the daemon flags.
func daemonConfig(ctx *cli.Context) (*config.Config, error) {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return nil, err
	}
	if ctx.IsSet("listen") {
		cfg.Listen = ctx.String("listen")
	}
	if ctx.IsSet("max-conns") {
		cfg.MaxConns = ctx.Int("max-conns")
	}
	if ctx.Bool("debug") {
		cfg.Debug = true
	}
	return cfg, cfg.Validate()
}

// newDaemonLogger logs to stderr and, if path is set, to a file as well.
func newDaemonLogger(path string, debug bool) (logger.Logger, error) {
	console := logger.NewStandardLogger(log.New(os.Stderr, "", log.LstdFlags), debug)
	if path == "" {
		return console, nil
	}
	file, err := logger.NewFileLogger(path, debug)
	if err != nil {
		return nil, err
	}
	return logger.NewMultiLogger(console, file), nil
}

func serveDaemon(ctx *cli.Context) error {
	cfg, err := daemonConfig(ctx)
	if err != nil {
		cmdcommon.PrintRuntimeErr(ctx, "daemon", "load_config", err)
		return nil
	}
	l, err := newDaemonLogger(ctx.String("log-file"), cfg.Debug)
	if err != nil {
		cmdcommon.PrintRuntimeErr(ctx, "daemon", "open_log", err)
		return nil
	}
	defer l.Close()

	sigCtx, stop := setupShutdownHandler()
	defer stop()

	l.Info("Starting daemon on %s", cfg.Addr())
	if err := runDaemon(sigCtx, cfg, l, nil); err != nil {
		l.Error("Daemon exited: %v", err)
		return err
	}
	return nil
}
