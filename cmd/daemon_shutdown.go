package cmd

import (
	"context"
	"os/signal"
)

// setupShutdownHandler returns a context that is canceled when one of the
// platform's shutdown signals arrives. The cancel func stops listening.
func setupShutdownHandler() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), shutdownSignals...)
}
