package dispatch

import (
	"os"
	"os/signal"
	"sync"
	"syscall"

	"dfstore/util"
)

// Lifecycle coordinates graceful shutdown of a node's listener. It is
// an instance rather than package-level
// state so a test can run several nodes in the same process.
type Lifecycle struct {
	done     chan struct{}
	closeOne sync.Once
	wg       sync.WaitGroup
}

func NewLifecycle() *Lifecycle {
	return &Lifecycle{done: make(chan struct{})}
}

// Done returns the channel Server.Serve watches to know when to stop
// accepting new connections.
func (l *Lifecycle) Done() <-chan struct{} {
	return l.done
}

// WatchSignals installs a SIGINT/SIGTERM handler that triggers shutdown
// exactly once, however many signals arrive.
func (l *Lifecycle) WatchSignals() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		sig := <-sigCh
		if util.ProcessLogger != nil {
			util.ProcessLogger.Info("lifecycle", "received "+sig.String()+", shutting down")
		}
		l.Shutdown()
	}()
}

// Shutdown triggers the shutdown signal. Safe to call more than once or
// concurrently with WatchSignals' own trigger.
func (l *Lifecycle) Shutdown() {
	l.closeOne.Do(func() {
		close(l.done)
	})
}

// Wait blocks until the signal-watching goroutine has observed shutdown.
func (l *Lifecycle) Wait() {
	l.wg.Wait()
}
