// Package stream implements the streaming pipeline between a model stream and
// a connected client: the multiplexer that classifies upstream events and
// recovers components from the growing JSON buffer, the dispatcher that
// augments and emits components in order, and the session controller that
// sequences the primary, tool and continuation phases onto one outbound
// channel.
package stream

import (
	"context"

	"github.com/genui/genui/ui"
)

// DoneSentinel is the terminal marker written once per session. It is a fixed
// literal, not a JSON payload; the client closes the channel on receipt.
const DoneSentinel = "[DONE]"

// Sink is the outbound event channel for one session. Implementations
// serialize events onto the transport (server-sent events in production, an
// in-memory slice in tests).
//
// Send and End are called from a single goroutine. End writes the terminal
// sentinel and closes the channel; further calls are no-ops so the sentinel
// is written at most once regardless of which phase terminates the session.
type Sink interface {
	// Send serializes one event onto the channel.
	Send(ctx context.Context, ev ui.Event) error
	// End writes the terminal sentinel and closes the channel.
	End(ctx context.Context) error
	// Sent reports whether any event has been written. The failure contract
	// depends on it: an error envelope is only sent on a pristine channel.
	Sent() bool
}
