// Package corefail centralizes the process-halt behavior the core falls
// back to when an invariant is violated or a durable-write path exhausts its
// retries. Every such path in the core funnels through Halt instead of
// calling os.Exit directly, so there is exactly one place that decides how
// a fatal condition is logged before the process dies.
package corefail

import (
	"os"

	"github.com/rs/zerolog"
)

// Halt logs msg at Fatal with the given fields and terminates the process.
// zerolog's Fatal level already calls os.Exit(1) after writing the event;
// the explicit os.Exit below only guards test builds that install a logger
// with a no-op Fatal hook.
func Halt(log zerolog.Logger, msg string, fields map[string]any) {
	ev := log.Fatal()
	for k, v := range fields {
		ev = ev.Interface(k, v)
	}
	ev.Msg(msg)
	os.Exit(1)
}
