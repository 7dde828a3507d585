// Package cleanup stops the server's components when the process is asked to
// terminate.
package cleanup

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
)

// Operation releases one component.
type Operation func(ctx context.Context) error

// exit is replaced in tests.
var exit = os.Exit

// GracefulShutdown waits for SIGINT, SIGTERM, SIGHUP or the end of ctx and
// then runs every operation concurrently. If they have not all returned
// within timeout the process exits with status 3. The returned channel is
// closed once every operation has finished.
func GracefulShutdown(ctx context.Context, log zerolog.Logger, timeout time.Duration, operations map[string]Operation) <-chan struct{} {
	wait := make(chan struct{})

	go func() {
		s := make(chan os.Signal, 1)
		signal.Notify(s, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
		defer signal.Stop(s)

		select {
		case sig := <-s:
			log.Warn().Str("signal", sig.String()).Msg("graceful shutdown in progress")
		case <-ctx.Done():
			log.Warn().Msg("graceful shutdown in progress")
		}

		force := time.AfterFunc(timeout, func() {
			log.Error().Dur("timeout", timeout).Msg("shutdown timed out, forcing exit")
			exit(3)
		})
		defer force.Stop()

		opCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		var wg sync.WaitGroup
		for name, op := range operations {
			wg.Add(1)
			go func(name string, op Operation) {
				defer wg.Done()
				log.Info().Str("component", name).Msg("shutting down")
				if err := op(opCtx); err != nil {
					log.Error().Err(err).Str("component", name).Msg("shutdown failed")
					return
				}
				log.Info().Str("component", name).Msg("shutdown completed")
			}(name, op)
		}
		wg.Wait()
		close(wait)
	}()

	return wait
}
