package shutdown

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"chatstore/pkg/state/logger"
)

var (
	exit             = os.Exit
	stderr io.Writer = os.Stderr
)

// Abort reports a fatal startup error and exits with status 1.
func Abort(msg string, err error, dbPath string) {
	logger.Error("fatal", "msg", msg, "error", err, "db_path", dbPath)
	if dbPath != "" {
		fmt.Fprintf(stderr, "chatstore: %s (db %s): %v\n", msg, dbPath, err)
	} else {
		fmt.Fprintf(stderr, "chatstore: %s: %v\n", msg, err)
	}
	exit(1)
}

// SetupSignalHandler returns a context cancelled on SIGINT or SIGTERM.
// SIGPIPE additionally dumps every goroutine stack before cancelling.
func SetupSignalHandler(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	sigpipe := make(chan os.Signal, 1)
	signal.Notify(sigpipe, syscall.SIGPIPE)

	go func() {
		defer signal.Stop(sigc)
		defer signal.Stop(sigpipe)
		select {
		case s := <-sigc:
			logger.Info("signal_received", "signal", s.String(), "msg", "shutdown requested")
		case s := <-sigpipe:
			logger.Info("signal_received", "signal", s.String(), "msg", "SIGPIPE - dumping goroutine stacks")
			buf := make([]byte, 1<<20)
			n := runtime.Stack(buf, true)
			logger.Info("goroutine_stack_dump", "dump", string(buf[:n]))
		case <-ctx.Done():
			return
		}
		cancel()
	}()

	return ctx, cancel
}
