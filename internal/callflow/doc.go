// Package callflow holds call-leg behaviors built on the protocol client: an
// echo IVR that repeats what the caller says and a spy leg that asks the
// server for an RTP port and transcribes the pushed audio.
package callflow
