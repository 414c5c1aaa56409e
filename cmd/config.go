package cmd

import "time"

const (
	DEF_DIAL_TIMEOUT = time.Second * 5
	DEF_CALL_TIMEOUT = time.Second * 10
)

const DESCRIPTION = `
Metroloop is a tempo-synchronized metronome and loop transport.
A background daemon keeps the beat on a monotonic clock and
streams ticks to every connected consumer, while this command
controls tempo, time signature and loop length.
`

const (
	DaemonDescription = `The daemon command runs the metroloop transport in the
foreground. It listens for consumers over WebSocket and
JSON-RPC until interrupted.

Example:
        metroloop daemon --port 7420

`
	StartDescription = `The start command begins playback from the first beat of
the loop. Options not given take the daemon's defaults.
Starting while already playing restarts the loop.

Example:
        metroloop start --bpm 120 --timesig 3/4 --measures 4

`
	StopDescription = `The stop command halts playback. The position is kept, so
"metroloop status" still shows where the transport stopped.

Example:
        metroloop stop

`
	UpdateDescription = `The update command changes tempo, time signature or loop
length without restarting. Only later beats are affected.

Example:
        metroloop update --bpm 90

`
	StatusDescription = `The status command prints the transport's current tempo,
meter, loop length and position.

Example:
        metroloop status

`
	WatchDescription = `The watch command follows the transport live, drawing the
current beat and measure until interrupted or until the
daemon goes away.

Example:
        metroloop watch

`
	StopDaemonDescription = `The stop-daemon command signals the running daemon to shut
down gracefully, using the PID file it wrote at startup.

Example:
        metroloop stop-daemon

`
)
