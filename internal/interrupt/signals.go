package interrupt

import (
	"os"
	"sync/atomic"

	"politerm/internal/logging"
)

// WatchSignals trips the controller on the first signal received and logs,
// once, that later signals are ignored. The returned func stops the watcher.
func WatchSignals(controller *Controller, logger *logging.Logger, signalCh <-chan os.Signal) func() {
	if signalCh == nil || controller == nil {
		return func() {}
	}

	done := make(chan struct{})
	var loggedRepeat atomic.Bool

	go func() {
		for {
			select {
			case <-done:
				return
			case sig, ok := <-signalCh:
				if !ok {
					return
				}
				fields := map[string]string{}
				reason := "signal"
				if sig != nil {
					fields["signal"] = sig.String()
					reason = sig.String()
				}
				if controller.Trip(reason) {
					logger.Info("interrupt received, cancelling dialogue", fields)
					continue
				}
				if loggedRepeat.CompareAndSwap(false, true) {
					logger.Info("interrupt already in progress; ignoring signal", fields)
				}
			}
		}
	}()

	var stopOnce atomic.Bool
	return func() {
		if stopOnce.CompareAndSwap(false, true) {
			close(done)
		}
	}
}
