// Package fanout implements the notification fanout (C12): a bounded,
// per-session channel of outbound session/update notifications, with a
// single consumer goroutine forwarding them onto the dispatcher's one
// outbound writer (C1). Keeping one consumer per session (rather than
// handing the channel straight to producers) preserves per-session
// ordering even when several goroutines (turn driver, permission engine)
// produce updates concurrently.
package fanout

import (
	"context"
	"errors"
	"time"

	"github.com/coder/acp-go-sdk"

	"github.com/kandev/claude-acp-agent/internal/common/constants"
	"github.com/kandev/claude-acp-agent/internal/common/logger"
)

// errBackpressure is returned by Send when a session's notification channel
// stays full past NotificationBackpressureTimeout.
var errBackpressure = errors.New("fanout: session/update channel full past backpressure timeout")

// Sink is the single outbound writer's notification method, satisfied by
// *acp.AgentSideConnection.
type Sink interface {
	SessionUpdate(ctx context.Context, params acp.SessionNotification) error
}

// Channel owns one session's bounded notification queue and the goroutine
// draining it into Sink.
type Channel struct {
	ch     chan acp.SessionNotification
	cancel context.CancelFunc
	done   chan struct{}
}

// Start allocates the bounded channel and launches its forwarding
// goroutine. Callers obtain the producer side via Sender() and stop the
// goroutine with Close() at session teardown.
func Start(ctx context.Context, sink Sink, log *logger.Logger) *Channel {
	runCtx, cancel := context.WithCancel(ctx)
	c := &Channel{
		ch:     make(chan acp.SessionNotification, constants.NotificationChannelCapacity),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go c.run(runCtx, sink, log)
	return c
}

func (c *Channel) run(ctx context.Context, sink Sink, log *logger.Logger) {
	defer close(c.done)
	for {
		select {
		case <-ctx.Done():
			c.drain(sink, log)
			return
		case notification, ok := <-c.ch:
			if !ok {
				return
			}
			if err := sink.SessionUpdate(ctx, notification); err != nil && log != nil {
				log.WithError(err).Warn("failed to deliver session/update")
			}
		}
	}
}

// drain flushes any notifications already queued before the channel shuts
// down, using a detached context since the caller's may already be
// cancelled.
func (c *Channel) drain(sink Sink, log *logger.Logger) {
	for {
		select {
		case notification, ok := <-c.ch:
			if !ok {
				return
			}
			if err := sink.SessionUpdate(context.Background(), notification); err != nil && log != nil {
				log.WithError(err).Warn("failed to deliver session/update during drain")
			}
		default:
			return
		}
	}
}

// Sender returns the producer side of the channel, typed for direct use as
// session.Session.NotificationSender.
func (c *Channel) Sender() chan<- acp.SessionNotification {
	return c.ch
}

// Send pushes a notification, respecting NotificationBackpressureTimeout
// before treating a full channel as an internal error — a slow or wedged
// client must not be allowed to block the turn driver forever.
func (c *Channel) Send(notification acp.SessionNotification) error {
	select {
	case c.ch <- notification:
		return nil
	case <-time.After(constants.NotificationBackpressureTimeout):
		return errBackpressure
	}
}

// Close stops the forwarding goroutine and closes the channel. Safe to call
// once per Channel; the caller must not send after calling Close.
func (c *Channel) Close() {
	c.cancel()
	<-c.done
	close(c.ch)
}
