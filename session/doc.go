// Package session
// Author: momentics <momentics@gmail.com>
//
// Per-connection state for the application server: the connection record,
// its typed resource bag, the inbound message queue and handler affinity.
//
// A connection is touched by at most one scheduled task at a time, so
// handlers keep private per-connection state in the resource bag without
// their own locking. State shared across connections is the handler's
// responsibility.
package session
