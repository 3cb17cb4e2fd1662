// Package refresh defines the persisted refresh token record and the store
// capability interface consumed by the Engine's rotation flow.
//
// # Single use
//
// A record is created at login or rotation and consumed (deleted) exactly once.
// Store implementations must guarantee that a delete which removed a record is
// distinguishable from a delete that found nothing: that distinction is what
// drives reuse detection when two requests present the same token value.
//
// # Architecture boundaries
//
// This package owns the record shape, the store contract, and the token value
// hashing helper shared by all store implementations. Rotation policy, reuse
// detection, and remediation live in the Engine.
//
// # What this package must NOT do
//
//   - Access Redis, Postgres, bbolt, or any I/O (implementations live in
//     redisstore, pgstore, and boltstore).
//   - Import sessionkit or jwt.
//   - Implement rotation or replay logic.
package refresh
