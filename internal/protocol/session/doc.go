// Package session owns per-session transport settings for EasyMrcp clients.
//
// Ownership boundary:
// - connect/read/write timeouts
// - disconnect grace period
// - reader chunk size and payload bound
package session
