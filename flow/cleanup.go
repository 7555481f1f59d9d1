package flow

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/relloyd/forklift/logger"
	"github.com/sirupsen/logrus"
)

type CleanupHandlerFunc = func(log logger.Logger, cancelFunc context.CancelFunc)

type PanicHandlerFunc = func()

// GetCleanupHandlerWithChannelsFunc returns a function that waits for a CTRL-C etc and/or a stop request on
// the closer's shutdown channel, then cancels the run. It returns when the run completes.
func GetCleanupHandlerWithChannelsFunc(log logger.Logger, runID string, tc *RunCloser) CleanupHandlerFunc {
	return func(log logger.Logger, cancelFunc context.CancelFunc) {
		c := make(chan os.Signal, 1)
		signal.Notify(c, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(c)
		select { // block until interrupt or shutdown request...
		case x := <-c: // wait for interrupt...
			fmt.Println()                   // add return char for a clean CLI look n feel.
			log.Info("Caught ", x.String()) // log the interrupt.
		case e, ok := <-tc.chanShutdown: // OR wait for shutdown request (or channel closure)...
			if !ok { // if the run completed...
				return
			}
			if e != nil { // if there was an error...
				log.Error(e)
			}
		}
		if tc.ChannelsAreOpen() { // if the run is not already complete...
			log.Info("Shutting down run ", runID, "...")
			cancelFunc()
		}
	}
}

// GetPanicHandlerWithChannelsFunc will create a func that can be deferred to handle recovery
// and send the final status with the error to the closer.
func GetPanicHandlerWithChannelsFunc(tc *RunCloser) PanicHandlerFunc {
	once := sync.Once{}
	return func() {
		if r := recover(); r != nil { // if there was a panic...
			err := panicError(r)
			once.Do(func() {
				tc.CloseChannels(&StatusUpdate{Status: StatusFailed, Error: err.Error()})
			})
		}
	}
}

// RecoverToError converts a panic into an error saved to err. It must be deferred.
func RecoverToError(err *error) {
	if r := recover(); r != nil {
		*err = panicError(r)
	}
}

func panicError(r interface{}) error {
	switch x := r.(type) {
	case *logrus.Entry: // if the panic came from logger.Panic...
		return fmt.Errorf("panic: %v", x.Message)
	case error:
		return fmt.Errorf("panic: %w", x)
	default:
		return fmt.Errorf("panic: %v", x)
	}
}
