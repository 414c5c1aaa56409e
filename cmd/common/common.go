// Package common provides shared helpers for the metroloop CLI commands:
// progress bars for the watch view, error printing and help display.
package common

import (
	"fmt"
	"os"
	"strings"

	"github.com/urfave/cli"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
)

// VersionCmdStr is printed by the version command. Execute fills it in
// from the build arguments.
var VersionCmdStr string

// Overridden in tests.
var (
	showAppHelpAndExit = cli.ShowAppHelpAndExit
	showCommandHelp    = cli.ShowCommandHelp
)

const (
	labelWidth = len("Measure") + 1
	accentMark = "ACCENT"
)

var barStyle = mpb.BarStyle().Lbound("╢").Filler("█").Tip("█").Padding("░").Rbound("╟")

// InitBars creates the beat and measure bars of the watch view. Both
// count from 1 and show 0 while the transport has not played. They are
// built with a zero total so SetCurrent never completes them and SetTotal
// keeps working after a meter or loop change.
func InitBars(p *mpb.Progress, beatsPerMeasure, measuresPerLoop int64) (bbar, mbar *mpb.Bar) {
	bbar = newCounterBar(p, "Beat", decor.Any(Accent, decor.WC{W: len(accentMark) + 1}))
	bbar.SetTotal(beatsPerMeasure, false)
	mbar = newCounterBar(p, "Measure")
	mbar.SetTotal(measuresPerLoop, false)
	return bbar, mbar
}

func newCounterBar(p *mpb.Progress, name string, appended ...decor.Decorator) *mpb.Bar {
	return p.New(0,
		barStyle,
		mpb.PrependDecorators(
			decor.Name(name, decor.WC{W: labelWidth, C: decor.DindentRight}),
			decor.CountersNoUnit("%d / %d", decor.WC{W: 8}),
		),
		mpb.AppendDecorators(appended...),
	)
}

// Accent marks the first beat of a measure on the beat bar.
func Accent(s decor.Statistics) string {
	if s.Current == 1 && !s.Aborted {
		return accentMark
	}
	return ""
}

// Help prints the application help, or the help of the command named by
// the first argument.
func Help(ctx *cli.Context) error {
	switch name := ctx.Args().First(); name {
	case "", "help":
		fmt.Printf("%s %s\n", ctx.App.Name, ctx.App.Version)
		showAppHelpAndExit(ctx, 0)
		return nil
	default:
		return showCommandHelp(ctx, name)
	}
}

func GetVersion(*cli.Context) error {
	fmt.Println(VersionCmdStr)
	return nil
}

// PrintRuntimeErr reports a failed step of a command as
// "<app>: <cmd>[<action>]: <err>". ctx may be nil.
func PrintRuntimeErr(ctx *cli.Context, cmd, action string, err error) {
	if err == nil {
		return
	}
	fmt.Printf("%s: %s[%s]: %v\n", appName(ctx), cmd, action, err)
}

func appName(ctx *cli.Context) string {
	if ctx != nil && ctx.App != nil && ctx.App.HelpName != "" {
		return ctx.App.HelpName
	}
	return os.Args[0]
}

// PrintErrWithCmdHelp prints err followed by the current command's help.
func PrintErrWithCmdHelp(ctx *cli.Context, err error) error {
	return printUsageErr(ctx, err, func() {
		if herr := showCommandHelp(ctx, ctx.Command.Name); herr != nil {
			fmt.Println(herr)
		}
	})
}

// PrintErrWithHelp prints err followed by the application help and exits
// with status 1.
func PrintErrWithHelp(ctx *cli.Context, err error) error {
	return printUsageErr(ctx, err, func() {
		showAppHelpAndExit(ctx, 1)
	})
}

// printUsageErr turns the help and version flags, which the flag package
// reports as errors, back into their commands.
func printUsageErr(ctx *cli.Context, err error, showHelp func()) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	switch {
	case msg == "flag: help requested":
		return Help(ctx)
	case strings.Contains(msg, "-version"):
		return GetVersion(ctx)
	}
	fmt.Printf("%s: %s\n\n", appName(ctx), err)
	showHelp()
	return nil
}

// UsageErrorCallback is the OnUsageError hook for the app and its commands.
func UsageErrorCallback(ctx *cli.Context, err error, _ bool) error {
	if ctx.Command.Name != "" {
		return PrintErrWithCmdHelp(ctx, err)
	}
	return PrintErrWithHelp(ctx, err)
}
