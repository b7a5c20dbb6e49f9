// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time source so that deadline
// logic (the SSO callback window, sync backoff) can be tested without
// waiting on the wall clock.
//
// Production code holds a Clock and calls Now, After, and NewTicker on
// it instead of the time package. Real returns the standard library
// behavior. Fake returns a clock that only moves when Advance is
// called:
//
//	fake := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	go waitForCallback(fake) // registers a ticker
//	fake.WaitForTimers(1)
//	fake.Advance(180 * time.Second)
//
// WaitForTimers closes the race between a goroutine registering its
// timer and the test advancing time past it.
package clock
