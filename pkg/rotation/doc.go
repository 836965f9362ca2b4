// Package rotation selects which provider serves each request and
// performs quota-aware failover.
//
// The Manager holds the ordered provider list and a single cursor. Each
// Send starts at the cursor, skips providers the usage tracker reports
// unavailable, and calls the first usable one. When that call fails
// with an authentication or quota error, the error is absorbed into a
// status transition, the cursor rotates once, and the request is
// retried against the next available provider: one fallback hop, never
// a full ladder. Transient failures are returned to the caller
// unchanged and trigger no rotation.
//
// A Manager is an explicit instance handed to its callers; there is no
// process-wide singleton.
package rotation
