// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"time"

	"github.com/bureau-foundation/purple-matrix/account"
	"github.com/bureau-foundation/purple-matrix/messaging"
)

// Sync long-polls /sync until ctx is cancelled or the homeserver
// rejects the access token. It resumes from the stored next_batch
// token and persists each new one before calling onUpdate.
//
// Transient errors are logged and retried with exponential backoff
// (1s doubling up to the configured maximum). An authentication
// failure returns an account.ErrorUnauthorized error. Cancellation
// returns ctx.Err().
func (c *Client) Sync(ctx context.Context, onUpdate func(account.SyncUpdate)) error {
	session, err := c.activeSession()
	if err != nil {
		return err
	}

	since, err := c.store.nextBatch(ctx)
	if err != nil {
		c.logger.Warn("reading sync token failed, starting from scratch", "error", err)
		since = ""
	}

	clk := c.engine.clock
	timeout := int(c.engine.syncTimeout / time.Millisecond)
	backoff := time.Second

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		response, err := session.Sync(ctx, messaging.SyncOptions{
			Since:      since,
			Timeout:    timeout,
			SetTimeout: true,
			Filter:     c.engine.syncFilter,
		})
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if messaging.IsUnauthorized(err) {
				return account.Unauthorized(err)
			}
			c.logger.Error("sync failed, retrying", "error", err, "backoff", backoff)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-clk.After(backoff):
			}
			backoff *= 2
			if backoff > c.engine.maxBackoff {
				backoff = c.engine.maxBackoff
			}
			continue
		}

		backoff = time.Second
		since = response.NextBatch
		if err := c.store.saveNextBatch(ctx, since, clk.Now()); err != nil && ctx.Err() == nil {
			c.logger.Warn("persisting sync token failed", "error", err)
		}

		if onUpdate != nil {
			onUpdate(account.SyncUpdate{
				NextBatch:    response.NextBatch,
				JoinedRooms:  len(response.Rooms.Join),
				InvitedRooms: len(response.Rooms.Invite),
				LeftRooms:    len(response.Rooms.Leave),
			})
		}
	}
}
