package cmd

import (
	"fmt"
	"runtime"

	"github.com/metroloop/metroloop/cmd/common"
	"github.com/urfave/cli"
)

type BuildArgs struct {
	Version   string
	BuildType string
	Date      string
	Commit    string
}

// currentBuildArgs is reported by the daemon's system.getVersion.
var currentBuildArgs BuildArgs

var globalFlags = []cli.Flag{
	cli.StringFlag{
		Name:  "config, c",
		Usage: "path to the JSON configuration file",
	},
	cli.StringFlag{
		Name:  "host",
		Usage: "daemon host to connect to (default: from the listen address)",
	},
	cli.IntFlag{
		Name:  "port, p",
		Usage: "daemon port (default: 7420)",
	},
	cli.StringFlag{
		Name:  "token",
		Usage: "shared secret for the daemon's bearer token",
	},
}

func Execute(args []string, bArgs BuildArgs) error {
	currentBuildArgs = bArgs
	app := cli.App{
		Name:                  "metroloop",
		HelpName:              "metroloop",
		Usage:                 "A metronome and loop transport.",
		Version:               fmt.Sprintf("%s-%s", bArgs.Version, bArgs.BuildType),
		UsageText:             "metroloop [global options] <command> [arguments...]",
		Description:           DESCRIPTION,
		CustomAppHelpTemplate: HELP_TEMPL,
		OnUsageError:          common.UsageErrorCallback,
		Flags:                 globalFlags,
		Commands: []cli.Command{
			{
				Name:               "daemon",
				Usage:              "run the transport daemon",
				Action:             serveDaemon,
				OnUsageError:       common.UsageErrorCallback,
				CustomHelpTemplate: CMD_HELP_TEMPL,
				Description:        DaemonDescription,
				Flags:              daemonFlags,
			},
			{
				Name:                   "start",
				Usage:                  "start playback from the top of the loop",
				Action:                 start,
				OnUsageError:           common.UsageErrorCallback,
				CustomHelpTemplate:     CMD_HELP_TEMPL,
				Description:            StartDescription,
				Flags:                  settingsFlags,
				UseShortOptionHandling: true,
			},
			{
				Name:               "stop",
				Usage:              "stop playback",
				Action:             stop,
				OnUsageError:       common.UsageErrorCallback,
				CustomHelpTemplate: CMD_HELP_TEMPL,
				Description:        StopDescription,
			},
			{
				Name:                   "update",
				Aliases:                []string{"u"},
				Usage:                  "change tempo, meter or loop length",
				Action:                 update,
				OnUsageError:           common.UsageErrorCallback,
				CustomHelpTemplate:     CMD_HELP_TEMPL,
				Description:            UpdateDescription,
				Flags:                  settingsFlags,
				UseShortOptionHandling: true,
			},
			{
				Name:               "status",
				Aliases:            []string{"s"},
				Usage:              "show the transport state",
				Action:             status,
				OnUsageError:       common.UsageErrorCallback,
				CustomHelpTemplate: CMD_HELP_TEMPL,
				Description:        StatusDescription,
			},
			{
				Name:               "watch",
				Aliases:            []string{"w"},
				Usage:              "follow the beat live",
				Action:             watch,
				OnUsageError:       common.UsageErrorCallback,
				CustomHelpTemplate: CMD_HELP_TEMPL,
				Description:        WatchDescription,
			},
			{
				Name:               "stop-daemon",
				Usage:              "stop the running daemon",
				Action:             stopDaemon,
				CustomHelpTemplate: CMD_HELP_TEMPL,
				Description:        StopDaemonDescription,
			},
			{
				Name:    "help",
				Aliases: []string{"h"},
				Usage:   "prints the help message",
				Action:  common.Help,
			},
			{
				Name:               "version",
				Aliases:            []string{"v"},
				Usage:              "prints installed version of metroloop",
				UsageText:          " ",
				CustomHelpTemplate: CMD_HELP_TEMPL,
				Action:             common.GetVersion,
			},
		},
		Action:      common.Help,
		HideHelp:    true,
		HideVersion: true,
	}
	common.VersionCmdStr = fmt.Sprintf("%s %s (%s_%s)\nBuild: %s=%s\n",
		app.Name,
		app.Version,
		runtime.GOOS,
		runtime.GOARCH,
		bArgs.Date, bArgs.Commit,
	)
	return app.Run(args)
}
