package cmd

import (
	"errors"
	"fmt"

	cmdcommon "github.com/metroloop/metroloop/cmd/common"
	"github.com/metroloop/metroloop/common"
	"github.com/metroloop/metroloop/internal/transport"
	"github.com/urfave/cli"
)

var (
	bpm      float64
	timeSig  string
	measures int

	settingsFlags = []cli.Flag{
		cli.Float64Flag{
			Name:        "bpm, b",
			Usage:       "tempo in quarter-note beats per minute",
			Destination: &bpm,
		},
		cli.StringFlag{
			Name:        "timesig, t",
			Usage:       "time signature as beats/unit, e.g. 3/4 or 7/8",
			Destination: &timeSig,
		},
		cli.IntFlag{
			Name:        "measures, m",
			Usage:       "number of measures in the loop",
			Destination: &measures,
		},
	}
)

// settingsFromFlags collects the settings flags the user actually set.
func settingsFromFlags(ctx *cli.Context) (common.UpdateParams, error) {
	var p common.UpdateParams
	if ctx.IsSet("bpm") {
		v := bpm
		p.BPM = &v
	}
	if ctx.IsSet("timesig") {
		m, err := transport.ParseMeter(timeSig)
		if err != nil {
			return p, err
		}
		p.BeatsPerMeasure = &m.BeatsPerMeasure
		p.BeatUnit = &m.BeatUnit
	}
	if ctx.IsSet("measures") {
		v := measures
		p.MeasuresPerLoop = &v
	}
	return p, nil
}

func start(ctx *cli.Context) error {
	if ctx.Args().First() == "help" {
		return cli.ShowCommandHelp(ctx, ctx.Command.Name)
	}
	p, err := settingsFromFlags(ctx)
	if err != nil {
		return cmdcommon.PrintErrWithCmdHelp(ctx, err)
	}
	client, err := newClient(ctx, nil)
	if err != nil {
		cmdcommon.PrintRuntimeErr(ctx, "start", "new_client", err)
		return nil
	}
	defer client.Close()

	cctx, cancel := callContext()
	defer cancel()
	snap, err := client.Start(cctx, common.StartParams(p))
	if err != nil {
		cmdcommon.PrintRuntimeErr(ctx, "start", "transport_start", err)
		return nil
	}
	fmt.Println("Transport started.")
	printSnapshot(snap)
	return nil
}

func stop(ctx *cli.Context) error {
	if ctx.Args().First() == "help" {
		return cli.ShowCommandHelp(ctx, ctx.Command.Name)
	}
	client, err := newClient(ctx, nil)
	if err != nil {
		cmdcommon.PrintRuntimeErr(ctx, "stop", "new_client", err)
		return nil
	}
	defer client.Close()

	cctx, cancel := callContext()
	defer cancel()
	snap, err := client.Stop(cctx)
	if err != nil {
		cmdcommon.PrintRuntimeErr(ctx, "stop", "transport_stop", err)
		return nil
	}
	fmt.Println("Transport stopped.")
	printSnapshot(snap)
	return nil
}

func update(ctx *cli.Context) error {
	if ctx.Args().First() == "help" {
		return cli.ShowCommandHelp(ctx, ctx.Command.Name)
	}
	p, err := settingsFromFlags(ctx)
	if err != nil {
		return cmdcommon.PrintErrWithCmdHelp(ctx, err)
	}
	if p == (common.UpdateParams{}) {
		return cmdcommon.PrintErrWithCmdHelp(
			ctx,
			errors.New("nothing to update, pass --bpm, --timesig or --measures"),
		)
	}
	client, err := newClient(ctx, nil)
	if err != nil {
		cmdcommon.PrintRuntimeErr(ctx, "update", "new_client", err)
		return nil
	}
	defer client.Close()

	cctx, cancel := callContext()
	defer cancel()
	snap, err := client.Update(cctx, p)
	if err != nil {
		cmdcommon.PrintRuntimeErr(ctx, "update", "transport_update", err)
		return nil
	}
	fmt.Println("Transport updated.")
	printSnapshot(snap)
	return nil
}

func status(ctx *cli.Context) error {
	if ctx.Args().First() == "help" {
		return cli.ShowCommandHelp(ctx, ctx.Command.Name)
	}
	client, err := newClient(ctx, nil)
	if err != nil {
		cmdcommon.PrintRuntimeErr(ctx, "status", "new_client", err)
		return nil
	}
	defer client.Close()

	cctx, cancel := callContext()
	defer cancel()
	snap, err := client.Snapshot(cctx)
	if err != nil {
		cmdcommon.PrintRuntimeErr(ctx, "status", "transport_snapshot", err)
		return nil
	}
	printSnapshot(snap)
	return nil
}
