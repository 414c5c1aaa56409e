package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/metroloop/metroloop/internal/config"
	"github.com/metroloop/metroloop/internal/transport"
	"github.com/metroloop/metroloop/pkg/metrocli"
	"github.com/spf13/afero"
	"github.com/urfave/cli"
)

// Overridden in tests.
var (
	configFs = afero.NewOsFs()
	getenv   = os.Getenv
)

// loadConfig reads the configuration file and environment, then applies
// the global flags on top.
func loadConfig(ctx *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(configFs, ctx.GlobalString("config"), getenv)
	if err != nil {
		return nil, err
	}
	if ctx.GlobalIsSet("port") {
		cfg.Port = ctx.GlobalInt("port")
	}
	if ctx.GlobalIsSet("token") {
		cfg.Secret = ctx.GlobalString("token")
	}
	return cfg, nil
}

// dialHost maps a listen address to one a local client can connect to.
func dialHost(listen string) string {
	switch listen {
	case "", "0.0.0.0", "::", "[::]":
		return "127.0.0.1"
	}
	return strings.Trim(listen, "[]")
}

func newClient(ctx *cli.Context, opts *metrocli.Options) (*metrocli.Client, error) {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return nil, err
	}
	host := ctx.GlobalString("host")
	if host == "" {
		host = dialHost(cfg.Listen)
	}
	var o metrocli.Options
	if opts != nil {
		o = *opts
	}
	o.Token = cfg.Secret

	dctx, cancel := context.WithTimeout(context.Background(), DEF_DIAL_TIMEOUT)
	defer cancel()
	return metrocli.Dial(dctx, metrocli.URL(host, cfg.Port), &o)
}

func callContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), DEF_CALL_TIMEOUT)
}

func statusString(s transport.Snapshot) string {
	if s.Playing {
		return transport.Playing.String()
	}
	return transport.Stopped.String()
}

func printSnapshot(s transport.Snapshot) {
	fmt.Printf(`
Transport
Status`+"\t"+`: %s
Tempo`+"\t"+`: %g bpm
Meter`+"\t"+`: %d/%d
Loop`+"\t"+`: %d measures
Position`+"\t"+`: measure %d, beat %d
`,
		statusString(s),
		s.BPM,
		s.BeatsPerMeasure, s.BeatUnit,
		s.MeasuresPerLoop,
		s.CurrentMeasure+1, s.CurrentTick+1,
	)
}
