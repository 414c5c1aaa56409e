package common

import (
	"bytes"
	"errors"
	"flag"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/urfave/cli"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
)

func newTestContext(args ...string) *cli.Context {
	app := cli.NewApp()
	app.Name = "metroloop"
	app.HelpName = "metroloop"
	app.Version = "test"
	set := flag.NewFlagSet("test", flag.ContinueOnError)
	_ = set.Parse(args)
	ctx := cli.NewContext(app, set, nil)
	ctx.Command = cli.Command{Name: "start"}
	return ctx
}

// stubHelp replaces both help printers for the test and counts calls.
func stubHelp(t *testing.T, cmdErr error) (appCalls, cmdCalls *[]string) {
	t.Helper()
	var apps, cmds []string
	origApp, origCmd := showAppHelpAndExit, showCommandHelp
	showAppHelpAndExit = func(_ *cli.Context, code int) {
		apps = append(apps, string(rune('0'+code)))
	}
	showCommandHelp = func(_ *cli.Context, name string) error {
		cmds = append(cmds, name)
		return cmdErr
	}
	t.Cleanup(func() { showAppHelpAndExit, showCommandHelp = origApp, origCmd })
	return &apps, &cmds
}

func captureStdout(t *testing.T, f func()) string {
	t.Helper()
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("Pipe: %v", err)
	}
	orig := os.Stdout
	os.Stdout = w
	done := make(chan string)
	go func() {
		var buf bytes.Buffer
		_, _ = io.Copy(&buf, r)
		done <- buf.String()
	}()
	defer func() { os.Stdout = orig }()
	f()
	w.Close()
	return <-done
}

func TestInitBars(t *testing.T) {
	p := mpb.New(mpb.WithOutput(io.Discard))
	bbar, mbar := InitBars(p, 4, 2)
	bbar.SetCurrent(4)
	mbar.SetCurrent(2)
	if bbar.Completed() || mbar.Completed() {
		t.Fatal("bars must not complete when they reach their totals")
	}

	bbar.SetTotal(7, false)
	bbar.SetCurrent(6)
	if bbar.Current() != 6 {
		t.Fatalf("beat bar current = %d after meter change, want 6", bbar.Current())
	}
	bbar.Abort(true)
	mbar.Abort(true)
	p.Wait()
}

func TestAccent(t *testing.T) {
	tests := []struct {
		stat decor.Statistics
		want string
	}{
		{decor.Statistics{Current: 1, Total: 4}, accentMark},
		{decor.Statistics{Current: 2, Total: 4}, ""},
		{decor.Statistics{Current: 0, Total: 4}, ""},
		{decor.Statistics{Current: 1, Total: 4, Aborted: true}, ""},
	}
	for _, tt := range tests {
		if got := Accent(tt.stat); got != tt.want {
			t.Errorf("Accent(current=%d, aborted=%v) = %q, want %q",
				tt.stat.Current, tt.stat.Aborted, got, tt.want)
		}
	}
}

func TestPrintRuntimeErr(t *testing.T) {
	out := captureStdout(t, func() {
		PrintRuntimeErr(newTestContext(), "start", "transport_start", errors.New("boom"))
		PrintRuntimeErr(newTestContext(), "start", "transport_start", nil)
	})
	if out != "metroloop: start[transport_start]: boom\n" {
		t.Fatalf("output = %q", out)
	}

	out = captureStdout(t, func() {
		PrintRuntimeErr(nil, "stop", "new_client", errors.New("refused"))
	})
	if !strings.HasSuffix(out, ": stop[new_client]: refused\n") {
		t.Fatalf("output without context = %q", out)
	}
}

func TestPrintErrWithCmdHelp(t *testing.T) {
	_, cmds := stubHelp(t, nil)
	out := captureStdout(t, func() {
		if err := PrintErrWithCmdHelp(newTestContext(), errors.New("bad meter")); err != nil {
			t.Errorf("PrintErrWithCmdHelp: %v", err)
		}
	})
	if !strings.HasPrefix(out, "metroloop: bad meter\n") {
		t.Errorf("output = %q", out)
	}
	if len(*cmds) != 1 || (*cmds)[0] != "start" {
		t.Fatalf("command help calls = %v, want [start]", *cmds)
	}
}

func TestPrintErrWithCmdHelp_HelpFails(t *testing.T) {
	stubHelp(t, errors.New("no such command"))
	out := captureStdout(t, func() {
		_ = PrintErrWithCmdHelp(newTestContext(), errors.New("oops"))
	})
	if !strings.Contains(out, "no such command") {
		t.Fatalf("output = %q", out)
	}
}

func TestPrintErrWithHelp(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantApp  []string
		wantText string
	}{
		{"usage error", errors.New("flag provided but not defined: -x"), []string{"1"}, "metroloop: flag provided"},
		{"help flag", errors.New("flag: help requested"), []string{"0"}, "metroloop test"},
		{"version flag", errors.New("flag provided but not defined: -version"), nil, "metroloop 1.2.3"},
		{"nil", nil, nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			apps, _ := stubHelp(t, nil)
			orig := VersionCmdStr
			VersionCmdStr = "metroloop 1.2.3"
			defer func() { VersionCmdStr = orig }()

			out := captureStdout(t, func() {
				if err := PrintErrWithHelp(newTestContext(), tt.err); err != nil {
					t.Errorf("PrintErrWithHelp: %v", err)
				}
			})
			if strings.Join(*apps, ",") != strings.Join(tt.wantApp, ",") {
				t.Errorf("app help exits = %v, want %v", *apps, tt.wantApp)
			}
			if tt.wantText == "" && out != "" || !strings.Contains(out, tt.wantText) {
				t.Errorf("output = %q, want it to contain %q", out, tt.wantText)
			}
		})
	}
}

func TestUsageErrorCallback_NoCommand(t *testing.T) {
	apps, cmds := stubHelp(t, nil)
	ctx := newTestContext()
	ctx.Command = cli.Command{}
	captureStdout(t, func() {
		_ = UsageErrorCallback(ctx, errors.New("oops"), false)
	})
	if len(*apps) != 1 || len(*cmds) != 0 {
		t.Fatalf("app help = %v, command help = %v", *apps, *cmds)
	}
}

func TestHelp(t *testing.T) {
	tests := []struct {
		args     []string
		wantApp  int
		wantCmds []string
	}{
		{nil, 1, nil},
		{[]string{"help"}, 1, nil},
		{[]string{"watch"}, 0, []string{"watch"}},
	}
	for _, tt := range tests {
		apps, cmds := stubHelp(t, nil)
		captureStdout(t, func() {
			if err := Help(newTestContext(tt.args...)); err != nil {
				t.Errorf("Help(%v): %v", tt.args, err)
			}
		})
		if len(*apps) != tt.wantApp || strings.Join(*cmds, ",") != strings.Join(tt.wantCmds, ",") {
			t.Errorf("Help(%v): app help %v, command help %v", tt.args, *apps, *cmds)
		}
	}
}

func TestHelp_UnknownCommand(t *testing.T) {
	stubHelp(t, errors.New("boom"))
	if err := Help(newTestContext("nope")); err == nil {
		t.Fatal("expected the command help error")
	}
}
