package session

import (
	"context"

	"github.com/jonboulle/clockwork"
)

// timers are armed while a session is held and torn down on every transition out of
// StateAuthenticated.
type timers struct {
	cancel   context.CancelFunc
	refresh  clockwork.Ticker
	watchdog clockwork.Ticker
}

func (c *Controller) armLocked() {
	if c.timers != nil || c.closed {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	t := &timers{
		cancel:   cancel,
		refresh:  c.clock.NewTicker(c.timing.RefreshInterval),
		watchdog: c.clock.NewTicker(c.timing.WatchdogInterval),
	}
	c.timers = t

	c.wg.Add(1)
	go c.runTimers(ctx, t)
}

// disarmLocked stops the tickers and cancels any timer-driven provider call. It does not
// wait for the timer goroutine; Close does.
func (c *Controller) disarmLocked() {
	if c.timers == nil {
		return
	}
	c.timers.refresh.Stop()
	c.timers.watchdog.Stop()
	c.timers.cancel()
	c.timers = nil
}

func (c *Controller) runTimers(ctx context.Context, t *timers) {
	defer c.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.refresh.Chan():
			if err := c.RefreshSession(ctx); err != nil && ctx.Err() == nil {
				c.logger.Warn().Err(err).Msg("scheduled refresh failed")
			}
		case <-t.watchdog.Chan():
			c.checkExpiry(ctx)
		}
	}
}

// checkExpiry ends a session that is already past its expiry and refreshes one that
// is about to expire.
func (c *Controller) checkExpiry(ctx context.Context) {
	c.mu.Lock()
	current := c.session
	c.mu.Unlock()
	if current == nil {
		return
	}

	now := c.clock.Now()
	if !now.Before(current.Expiry()) {
		c.expire(current)
		return
	}
	if current.ExpiresWithin(now, c.timing.ExpiryWindow) {
		c.logger.Debug().Time("expires_at", current.Expiry()).Msg("session close to expiry, refreshing")
		if err := c.RefreshSession(ctx); err != nil && ctx.Err() == nil {
			c.logger.Warn().Err(err).Msg("watchdog refresh failed")
		}
	}
}

// expire clears the session if it is still the one the watchdog inspected.
func (c *Controller) expire(inspected *Session) {
	c.mu.Lock()
	if c.closed || c.session != inspected {
		c.mu.Unlock()
		return
	}
	snapshot, changed := c.applyLocked(nil, true)
	c.mu.Unlock()

	if !changed {
		return
	}
	snapshot.Expired = true
	c.logger.Warn().Msg("session expired")
	c.publish(snapshot)
}
