// Package client owns the EasyMrcp protocol client.
//
// Ownership boundary:
// - connection lifecycle (Idle -> Connecting -> Connected -> Disconnecting -> Closed)
// - outbound event encoding and serialized writes
// - the receive loop and inbound event/response dispatch
// - the callback registry (one handler per event name, last registration wins)
//
// Callbacks run on the receive goroutine. They may call SendEvent,
// Disconnect or Close; long work should be moved off that goroutine so
// frame processing is not starved.
package client
