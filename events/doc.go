// Package events carries kernel events to clients and client requests to the
// orchestrator.
//
// Outbound events are published through a Sink. RedisBus publishes a JSON
// envelope {event, namespace, room, data} on the channel "{prefix}:{namespace}"
// where the client-facing transport fans it out to the room. RelaySink posts
// cell output to the orchestrator's relay endpoint instead, for kernels that
// cannot reach the bus. Recorder keeps events in memory.
//
// Inbound requests arrive on "{prefix}:requests" as {type, channel, payload}
// and are handed to a Handler by RedisBus.Consume.
package events
