// Package protocol groups the EasyMrcp wire contract.
//
// Ownership boundary:
// - frame: magic/length framing and the resynchronizing reader
// - event: JSON envelopes, inbound classification, data canonicalization
// - session: transport timeouts and buffer bounds
package protocol
