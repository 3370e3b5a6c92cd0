package signals

import (
	"os"
	"os/signal"
	"syscall"
)

// SetupSignalHandler registers for SIGTERM and SIGINT. A stop channel is
// returned which is closed on the first signal, letting an in-flight
// iteration finish before the loop exits. A second signal terminates the
// program with exit code 1.
func SetupSignalHandler() <-chan struct{} {
	stop := make(chan struct{})
	sigCh := make(chan os.Signal, 2)

	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		// First signal: close stop to trigger graceful shutdown
		<-sigCh
		close(stop)

		// Second signal: force exit
		<-sigCh
		os.Exit(1)
	}()

	return stop
}
