package flow

import (
	"sync"
	"sync/atomic"
)

// RunCloser tracks the channels used to maintain run status and whether it is shutdown or not.
type RunCloser struct {
	flagClosedChanStatusAndShutdown int32 // 0 = open; 1 = closed
	mu                              sync.Mutex
	chanStatus                      chan StatusUpdate
	chanShutdown                    chan error
}

func NewRunCloser(chanStatus chan StatusUpdate, chanShutdown chan error) *RunCloser {
	return &RunCloser{chanStatus: chanStatus, chanShutdown: chanShutdown}
}

// SendStatus sends s if the channels are still open.
func (c *RunCloser) SendStatus(s StatusUpdate) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if atomic.AddInt32(&c.flagClosedChanStatusAndShutdown, 0) == 0 {
		c.chanStatus <- s
	}
}

// CloseChannels closes chanStatus and chanShutdown inside a mutex.
// flagClosedChanStatusAndShutdown is set to 1 when the channels are closed.
func (c *RunCloser) CloseChannels(statusToSend *StatusUpdate) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if atomic.AddInt32(&c.flagClosedChanStatusAndShutdown, 0) == 0 { // if the status channel is still open...
		if statusToSend != nil { // if we have something to send...
			c.chanStatus <- *statusToSend
		}
		close(c.chanStatus) // close the channel - causes the consumer goroutine to exit.
		close(c.chanShutdown)
		atomic.AddInt32(&c.flagClosedChanStatusAndShutdown, 1)
	}
}

// ChannelsAreOpen inspects flagClosedChanStatusAndShutdown (0 = open; 1 = closed) and returns true if 0.
func (c *RunCloser) ChannelsAreOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return atomic.AddInt32(&c.flagClosedChanStatusAndShutdown, 0) == 0
}

// RequestStop asks a running run to shut down. It returns false if the run already completed or a stop
// is already pending.
func (c *RunCloser) RequestStop(err error) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if atomic.AddInt32(&c.flagClosedChanStatusAndShutdown, 0) != 0 {
		return false
	}
	select {
	case c.chanShutdown <- err:
		return true
	default:
		return false
	}
}
