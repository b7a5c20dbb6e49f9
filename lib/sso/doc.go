// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sso runs the loopback half of Matrix single sign-on.
//
// [Server.Begin] binds an ephemeral listener on 127.0.0.1, issues a
// fresh state token, and asks the caller to turn the resulting
// redirect URL into the homeserver's SSO authorization URL. The
// returned [Flow] delivers exactly one [Outcome]: the captured login
// token, a timeout, or a listener failure.
//
// The browser lands on http://localhost:<port>/login?state=<token>&loginToken=...
// A request whose state does not match is answered with a
// verification failure page and otherwise ignored, so a stale tab
// cannot complete or abort the flow. Requests without a login token
// get a "waiting" page.
//
// Only one flow may be active per Server. A second Begin while one is
// running returns [ErrInProgress] and leaves the active flow's state
// token and deadline untouched.
//
// The user can also paste the final redirect URL (or the bare token)
// into the host; [Server.Complete] feeds it to the active flow.
package sso
