package xps

import (
	"os"
	"os/signal"
	"sync"
	"syscall"
)

var signalOnce sync.Once

// HandleSignals installs a SIGINT/SIGTERM bridge for the core. The handler
// goroutine only calls Stop, which sets a flag and wakes the poller; all
// teardown runs on the loop goroutine once Start returns. Installed at most
// once per process.
func (c *Core) HandleSignals() {
	signalOnce.Do(func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		go func() {
			sig := <-ch
			c.log.Warn().Str("signal", sig.String()).Msg("shutdown signal received")
			c.Stop()
		}()
	})
}
