// Package session owns the client's authentication state.
//
// # State Machine
//
//	signed_out ──LoginSucceeded──▶ authenticated ──Refresh──▶ refreshing
//	     ▲                              │  ▲                      │
//	     └──────Logout/401──────────────┘  └──rotation/success────┤
//	                                                              ▼
//	                                                            error
//
// The Controller is the only writer of the TokenPair and the State. All
// mutations are serialized, and transitions are published only when the
// state value actually changes, so repeated LoginSucceeded calls from
// overlapping rotations never produce duplicate notifications.
//
// # Subscribing
//
// StateStream delivers transitions applied after subscription. WatchState
// additionally delivers the current state first:
//
//	for st := range controller.WatchState(ctx) {
//	    if st == session.StateSignedOut {
//	        // show login
//	    }
//	}
//
// Channels are buffered; a subscriber that stops reading misses states
// rather than blocking the controller.
package session
