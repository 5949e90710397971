package serversession

import (
	"context"
	"time"
)

// runHeartbeat issues a lightweight RPC on a fixed period to assess liveness.
// The loop ends when the owning generation's context is canceled; ticks that
// lose the race with a generation change detect it and become no-ops.
func (c *controller) runHeartbeat(ctx context.Context, gen int64) {
	c.heartbeatOnce(ctx, gen)

	ticker := time.NewTicker(c.cfg.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.heartbeatOnce(ctx, gen)
		}
	}
}

func (c *controller) heartbeatOnce(ctx context.Context, gen int64) {
	c.mu.Lock()
	if c.closed || c.session.Generation != gen || c.session.Port == 0 {
		c.mu.Unlock()
		return
	}
	port := c.session.Port
	c.mu.Unlock()

	payload := heartbeatRequest{Metadata: c.requestMetadata(ctx, 0)}
	_, err := c.rpc.Call(ctx, port, _methodHeartbeat, payload)

	c.mu.Lock()
	if c.closed || c.session.Generation != gen {
		// Stale tick from a previous generation; the session has moved on.
		c.mu.Unlock()
		return
	}
	c.session.LastHeartbeatAt = time.Now()
	c.session.LastHeartbeatErr = err
	// Health reflects the most recent heartbeat only.
	c.session.Healthy = err == nil
	c.mu.Unlock()

	if err != nil {
		c.stats.Counter("heartbeat_fail").Inc(1)
		c.ideGateway.Warn(ctx, "language server heartbeat failed", err.Error())
		return
	}
	c.stats.Counter("heartbeat_ok").Inc(1)
}
