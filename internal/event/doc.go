// Package event defines the typed event model distributed by Flare.
//
// An Event is a small immutable record with a common header (id, type,
// priority, channel, timestamp, source) and a kind-specific payload behind
// the Payload interface. Typed constructors assign priority and channel
// deterministically so producers cannot miscategorize what they emit; the
// JSON codec selects the concrete payload type from the event type.
package event
